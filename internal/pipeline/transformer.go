package pipeline

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

// RequestTransformer is a dataflow Transformer that validates a raw message
// payload into a notify.Request using the same parser as the HTTP path.
//
// Malformed payloads are skipped so the StreamingService can handle the
// Nack/DLQ logic; there is no caller to return a 400 to on this path.
func RequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*notify.Request, bool, error) {
	req, err := notify.ParseRequest(msg.Payload)
	if err != nil {
		return nil, true, fmt.Errorf("failed to parse notification request from message %s: %w", msg.ID, err)
	}
	return req, false, nil
}
