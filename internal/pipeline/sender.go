// Package pipeline contains the core dispatch orchestration shared by the
// HTTP API and the streaming ingestion path: token lookup, credential
// minting, concurrent fan-out and stale-token cleanup.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/cleanslate-app/go-push-service/pkg/dispatch"
	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

// Sender drives one validated request through the full dispatch flow.
type Sender struct {
	directory  dispatch.Directory
	minter     dispatch.TokenMinter
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger
}

func NewSender(directory dispatch.Directory, minter dispatch.TokenMinter, dispatcher dispatch.Dispatcher, logger *slog.Logger) *Sender {
	return &Sender{
		directory:  directory,
		minter:     minter,
		dispatcher: dispatcher,
		logger:     logger.With("component", "Sender"),
	}
}

// Send lists the target's tokens, mints a fresh access token, fans the
// message out and cleans up tokens the gateway reported dead.
//
// A token-lookup failure is collapsed into "no tokens" so store outages are
// not leaked as user-facing errors. A credential-mint failure is fatal to
// the request. Cleanup is best-effort and never alters the result.
func (s *Sender) Send(ctx context.Context, req *notify.Request) (*notify.DispatchResult, error) {
	sendLogger := s.logger.With("user_id", req.UserID.String())

	tokens, err := s.directory.ListTokens(ctx, req.UserID)
	if err != nil {
		sendLogger.Error("device token lookup failed; treating as no tokens", "err", err)
		return &notify.DispatchResult{}, nil
	}
	if len(tokens) == 0 {
		sendLogger.Info("no devices registered for user")
		return &notify.DispatchResult{}, nil
	}

	accessToken, err := s.minter.Mint(ctx)
	if err != nil {
		return nil, err
	}

	deliveries, err := s.dispatcher.Dispatch(ctx, accessToken, req, tokens)
	if err != nil {
		return nil, err
	}

	result := &notify.DispatchResult{
		Total:      len(tokens),
		Deliveries: deliveries,
	}
	for _, d := range deliveries {
		if d.Status == notify.StatusDelivered {
			result.Sent++
		}
	}

	if invalid := result.InvalidTokens(); len(invalid) > 0 {
		result.Cleaned = len(invalid)
		if err := s.directory.DeleteTokens(ctx, req.UserID, invalid); err != nil {
			sendLogger.Warn("stale token cleanup failed", "count", len(invalid), "err", err)
		} else {
			sendLogger.Info("cleaned up stale device tokens", "count", len(invalid))
		}
	}

	sendLogger.Info("dispatch complete",
		"sent", result.Sent,
		"total", result.Total,
		"cleaned", result.Cleaned,
	)
	return result, nil
}
