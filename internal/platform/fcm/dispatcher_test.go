package fcm_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanslate-app/go-push-service/internal/platform/fcm"
	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRequest() *notify.Request {
	return &notify.Request{
		UserID: uuid.New(),
		Title:  "Chore due",
		Body:   "Take out the bins",
		Data:   map[string]string{"chore_id": "42"},
	}
}

// fakeGateway records per-token behavior keyed by the token in the message.
type fakeGateway struct {
	mu       sync.Mutex
	requests []map[string]any
	respond  func(token string) (int, string)
}

func (g *fakeGateway) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		msg := payload["message"]

		g.mu.Lock()
		g.requests = append(g.requests, msg)
		g.mu.Unlock()

		token, _ := msg["token"].(string)
		status, body := g.respond(token)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestDispatch_Lifecycle(t *testing.T) {
	logger := newTestLogger()
	ctx := context.Background()
	req := newTestRequest()

	t.Run("Happy path - all tokens delivered", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(string) (int, string) {
			return http.StatusOK, `{"name": "projects/p/messages/1"}`
		}}
		server := httptest.NewServer(gateway.handler(t))
		defer server.Close()

		dispatcher := fcm.NewDispatcher(fcm.Config{ProjectID: "p", AndroidChannel: "ch"}, logger).
			WithSendURL(server.URL)

		tokens := []string{"token-1", "token-2", "token-3"}
		deliveries, err := dispatcher.Dispatch(ctx, "access-token", req, tokens)
		require.NoError(t, err)
		require.Len(t, deliveries, 3)

		for i, d := range deliveries {
			assert.Equal(t, tokens[i], d.Token)
			assert.Equal(t, notify.StatusDelivered, d.Status)
			assert.NoError(t, d.Err)
		}
		assert.Len(t, gateway.requests, 3)
	})

	t.Run("Unregistered token classified invalid, siblings unaffected", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(token string) (int, string) {
			if token == "dead-token" {
				return http.StatusNotFound, `{"error": {"status": "NOT_FOUND", "message": "Requested entity was not found."}}`
			}
			return http.StatusOK, `{}`
		}}
		server := httptest.NewServer(gateway.handler(t))
		defer server.Close()

		dispatcher := fcm.NewDispatcher(fcm.Config{ProjectID: "p"}, logger).WithSendURL(server.URL)

		deliveries, err := dispatcher.Dispatch(ctx, "access-token", req, []string{"live-1", "dead-token", "live-2"})
		require.NoError(t, err)

		assert.Equal(t, notify.StatusDelivered, deliveries[0].Status)
		assert.Equal(t, notify.StatusInvalidToken, deliveries[1].Status)
		assert.Equal(t, notify.StatusDelivered, deliveries[2].Status)
	})

	t.Run("UNREGISTERED error body classified invalid even on 400", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(string) (int, string) {
			return http.StatusBadRequest, `{"error": {"details": [{"errorCode": "UNREGISTERED"}]}}`
		}}
		server := httptest.NewServer(gateway.handler(t))
		defer server.Close()

		dispatcher := fcm.NewDispatcher(fcm.Config{ProjectID: "p"}, logger).WithSendURL(server.URL)

		deliveries, err := dispatcher.Dispatch(ctx, "access-token", req, []string{"stale"})
		require.NoError(t, err)
		assert.Equal(t, notify.StatusInvalidToken, deliveries[0].Status)
	})

	t.Run("Other failures recorded, not classified invalid", func(t *testing.T) {
		gateway := &fakeGateway{respond: func(string) (int, string) {
			return http.StatusInternalServerError, `{"error": {"status": "INTERNAL"}}`
		}}
		server := httptest.NewServer(gateway.handler(t))
		defer server.Close()

		dispatcher := fcm.NewDispatcher(fcm.Config{ProjectID: "p"}, logger).WithSendURL(server.URL)

		deliveries, err := dispatcher.Dispatch(ctx, "access-token", req, []string{"flaky"})
		require.NoError(t, err)
		assert.Equal(t, notify.StatusFailed, deliveries[0].Status)
		assert.Error(t, deliveries[0].Err)
	})

	t.Run("Response waits for every outcome", func(t *testing.T) {
		release := make(chan struct{})
		gateway := &fakeGateway{respond: func(token string) (int, string) {
			if token == "slow" {
				<-release
			}
			return http.StatusOK, `{}`
		}}
		server := httptest.NewServer(gateway.handler(t))
		defer server.Close()

		dispatcher := fcm.NewDispatcher(fcm.Config{ProjectID: "p"}, logger).WithSendURL(server.URL)

		done := make(chan []notify.Delivery, 1)
		go func() {
			deliveries, _ := dispatcher.Dispatch(ctx, "access-token", req, []string{"fast", "slow"})
			done <- deliveries
		}()

		select {
		case <-done:
			t.Fatal("dispatch returned before all sends completed")
		default:
		}

		close(release)
		deliveries := <-done
		require.Len(t, deliveries, 2)
		for _, d := range deliveries {
			assert.Equal(t, notify.StatusDelivered, d.Status)
		}
	})
}

func TestDispatch_MessagePayload(t *testing.T) {
	logger := newTestLogger()
	req := newTestRequest()

	gateway := &fakeGateway{respond: func(string) (int, string) { return http.StatusOK, `{}` }}
	server := httptest.NewServer(gateway.handler(t))
	defer server.Close()

	dispatcher := fcm.NewDispatcher(fcm.Config{ProjectID: "p", AndroidChannel: "cleanslate_notifications"}, logger).
		WithSendURL(server.URL)

	_, err := dispatcher.Dispatch(context.Background(), "access-token", req, []string{"token-1"})
	require.NoError(t, err)
	require.Len(t, gateway.requests, 1)
	msg := gateway.requests[0]

	notification := msg["notification"].(map[string]any)
	assert.Equal(t, "Chore due", notification["title"])
	assert.Equal(t, "Take out the bins", notification["body"])

	data := msg["data"].(map[string]any)
	assert.Equal(t, "42", data["chore_id"])

	android := msg["android"].(map[string]any)
	assert.Equal(t, "high", android["priority"])
	androidNotification := android["notification"].(map[string]any)
	assert.Equal(t, "cleanslate_notifications", androidNotification["channel_id"])
	assert.Equal(t, "HIGH", androidNotification["priority"])

	aps := msg["apns"].(map[string]any)["payload"].(map[string]any)["aps"].(map[string]any)
	assert.Equal(t, "default", aps["sound"])
	assert.EqualValues(t, 1, aps["badge"])
	alert := aps["alert"].(map[string]any)
	assert.Equal(t, "Chore due", alert["title"])
}
