// Package pushservice assembles the notification-dispatch service: the
// HTTP send endpoint, the optional streaming ingestion pipeline, and their
// shared dispatch components.
package pushservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/cleanslate-app/go-push-service/internal/api"
	"github.com/cleanslate-app/go-push-service/internal/auth"
	"github.com/cleanslate-app/go-push-service/internal/pipeline"
	"github.com/cleanslate-app/go-push-service/pkg/dispatch"
	"github.com/cleanslate-app/go-push-service/pkg/notify"
	"github.com/cleanslate-app/go-push-service/pushservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[notify.Request]
	logger          *slog.Logger
}

// New assembles the service. The consumer may be nil when the async
// ingestion path is not configured; the HTTP endpoint is always registered.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	directory dispatch.Directory,
	minter dispatch.TokenMinter,
	dispatcher dispatch.Dispatcher,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Core dispatch flow, shared by both ingestion paths
	sender := pipeline.NewSender(directory, minter, dispatcher, logger)
	guard := auth.NewGuard(directory, cfg.Auth.JWTSecret, cfg.Auth.RequireAuth, logger)

	// 3. Optional streaming pipeline
	var streamingService *messagepipeline.StreamingService[notify.Request]
	if consumer != nil {
		processor := pipeline.NewProcessor(sender, logger)
		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.RequestTransformer,
			processor,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 4. API
	pushAPI := api.NewPushAPI(guard, sender, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	mux.Handle("POST /api/v1/notifications/send", corsMiddleware(http.HandlerFunc(pushAPI.SendNotification)))

	// CORS preflight: bare 200, headers handled by the middleware.
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Core processing pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
