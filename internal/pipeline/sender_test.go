package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cleanslate-app/go-push-service/internal/pipeline"
	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

// --- Mocks ---

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDirectory) DeleteTokens(ctx context.Context, userID uuid.UUID, tokens []string) error {
	return m.Called(ctx, userID, tokens).Error(0)
}

func (m *MockDirectory) Membership(ctx context.Context, householdID, userID uuid.UUID) (*notify.Membership, error) {
	args := m.Called(ctx, householdID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notify.Membership), args.Error(1)
}

type MockMinter struct {
	mock.Mock
}

func (m *MockMinter) Mint(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, accessToken string, req *notify.Request, tokens []string) ([]notify.Delivery, error) {
	args := m.Called(ctx, accessToken, req, tokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]notify.Delivery), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSender(t *testing.T) (*pipeline.Sender, *MockDirectory, *MockMinter, *MockDispatcher) {
	t.Helper()
	directory := new(MockDirectory)
	minter := new(MockMinter)
	dispatcher := new(MockDispatcher)
	return pipeline.NewSender(directory, minter, dispatcher, newTestLogger()), directory, minter, dispatcher
}

func TestSenderSend(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	req := &notify.Request{UserID: userID, Title: "Hi"}

	t.Run("No tokens - empty result, no mint, no dispatch", func(t *testing.T) {
		sender, directory, minter, dispatcher := newSender(t)
		directory.On("ListTokens", ctx, userID).Return([]string{}, nil)

		result, err := sender.Send(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, 0, result.Total)
		assert.Equal(t, 0, result.Sent)
		minter.AssertNotCalled(t, "Mint", mock.Anything)
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Directory read failure masked as no tokens", func(t *testing.T) {
		sender, directory, minter, _ := newSender(t)
		directory.On("ListTokens", ctx, userID).Return(nil, assert.AnError)

		result, err := sender.Send(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, 0, result.Total)
		minter.AssertNotCalled(t, "Mint", mock.Anything)
	})

	t.Run("Credential mint failure is request-fatal", func(t *testing.T) {
		sender, directory, minter, dispatcher := newSender(t)
		directory.On("ListTokens", ctx, userID).Return([]string{"token-1"}, nil)
		minter.On("Mint", ctx).Return("", &notify.CredentialError{Stage: "exchange"})

		_, err := sender.Send(ctx, req)
		require.Error(t, err)

		var credErr *notify.CredentialError
		assert.ErrorAs(t, err, &credErr)
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Happy path - aggregates and cleans stale tokens", func(t *testing.T) {
		sender, directory, minter, dispatcher := newSender(t)
		tokens := []string{"live-1", "dead", "live-2"}

		directory.On("ListTokens", ctx, userID).Return(tokens, nil)
		minter.On("Mint", ctx).Return("access-token", nil)
		dispatcher.On("Dispatch", ctx, "access-token", req, tokens).Return([]notify.Delivery{
			{Token: "live-1", Status: notify.StatusDelivered},
			{Token: "dead", Status: notify.StatusInvalidToken, Err: assert.AnError},
			{Token: "live-2", Status: notify.StatusDelivered},
		}, nil)
		directory.On("DeleteTokens", ctx, userID, []string{"dead"}).Return(nil)

		result, err := sender.Send(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Sent)
		assert.Equal(t, 3, result.Total)
		assert.Equal(t, 1, result.Cleaned)
		assert.LessOrEqual(t, result.Sent, result.Total)
		assert.LessOrEqual(t, result.Cleaned, result.Total)
		directory.AssertExpectations(t)
	})

	t.Run("Unclassified failures are not cleaned", func(t *testing.T) {
		sender, directory, minter, dispatcher := newSender(t)
		tokens := []string{"live", "flaky"}

		directory.On("ListTokens", ctx, userID).Return(tokens, nil)
		minter.On("Mint", ctx).Return("access-token", nil)
		dispatcher.On("Dispatch", ctx, "access-token", req, tokens).Return([]notify.Delivery{
			{Token: "live", Status: notify.StatusDelivered},
			{Token: "flaky", Status: notify.StatusFailed, Err: assert.AnError},
		}, nil)

		result, err := sender.Send(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, 1, result.Sent)
		assert.Equal(t, 2, result.Total)
		assert.Equal(t, 0, result.Cleaned)
		directory.AssertNotCalled(t, "DeleteTokens", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Cleanup failure is swallowed, result unchanged", func(t *testing.T) {
		sender, directory, minter, dispatcher := newSender(t)
		tokens := []string{"dead"}

		directory.On("ListTokens", ctx, userID).Return(tokens, nil)
		minter.On("Mint", ctx).Return("access-token", nil)
		dispatcher.On("Dispatch", ctx, "access-token", req, tokens).Return([]notify.Delivery{
			{Token: "dead", Status: notify.StatusInvalidToken, Err: assert.AnError},
		}, nil)
		directory.On("DeleteTokens", ctx, userID, []string{"dead"}).Return(assert.AnError)

		result, err := sender.Send(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, 0, result.Sent)
		assert.Equal(t, 1, result.Cleaned)
	})
}
