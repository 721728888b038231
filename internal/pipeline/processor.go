package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

// NewProcessor adapts the Sender to the streaming pipeline. Messages on
// this path come from the trusted backend, so the household check does not
// apply; the flow is lookup, mint, fan-out, cleanup.
func NewProcessor(sender *Sender, logger *slog.Logger) messagepipeline.StreamProcessor[notify.Request] {
	return func(ctx context.Context, original messagepipeline.Message, req *notify.Request) error {
		procLogger := logger.With(
			"user_id", req.UserID.String(),
			"pubsub_msg_id", original.ID,
		)

		result, err := sender.Send(ctx, req)
		if err != nil {
			var credErr *notify.CredentialError
			if errors.As(err, &credErr) {
				// Transient auth failure: surface it so the message is
				// retried rather than dropped.
				procLogger.Error("credential minting failed", "stage", credErr.Stage, "err", err)
				return err
			}
			procLogger.Error("dispatch failed", "err", err)
			return err
		}

		if result.Total == 0 {
			procLogger.Info("no devices registered for user; dropping notification")
			return nil
		}

		procLogger.Info("notification dispatched",
			"sent", result.Sent,
			"total", result.Total,
			"cleaned", result.Cleaned,
		)
		return nil
	}
}
