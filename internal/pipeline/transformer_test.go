package pipeline_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanslate-app/go-push-service/internal/pipeline"
)

func TestRequestTransformer(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("Valid payload passes through", func(t *testing.T) {
		msg := &messagepipeline.Message{
			MessageData: messagepipeline.MessageData{
				ID:      "msg-1",
				Payload: []byte(`{"user_id": "` + userID.String() + `", "title": "Hi"}`),
			},
		}

		req, skip, err := pipeline.RequestTransformer(ctx, msg)
		require.NoError(t, err)
		assert.False(t, skip)
		assert.Equal(t, userID, req.UserID)
		assert.Equal(t, "Hi", req.Title)
	})

	t.Run("Invalid payload is skipped for DLQ handling", func(t *testing.T) {
		msg := &messagepipeline.Message{
			MessageData: messagepipeline.MessageData{
				ID:      "msg-2",
				Payload: []byte(`{"title": "Hi"}`),
			},
		}

		req, skip, err := pipeline.RequestTransformer(ctx, msg)
		require.Error(t, err)
		assert.True(t, skip)
		assert.Nil(t, req)
	})
}
