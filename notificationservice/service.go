package notificationservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinywideclouds/go-fcm-gateway/internal/api"
	"github.com/tinywideclouds/go-fcm-gateway/internal/metrics"
	"github.com/tinywideclouds/go-fcm-gateway/internal/pipeline"
	"github.com/tinywideclouds/go-fcm-gateway/notificationservice/config"
	"github.com/tinywideclouds/go-fcm-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[dispatch.SendRequest]
	logger          *slog.Logger
}

// Backends groups the delivery paths the service fans out to.
// APNS and Web are optional; leave them nil to disable the path.
type Backends struct {
	Gateway dispatch.Gateway
	APNS    dispatch.Dispatcher
	Web     dispatch.WebDispatcher
}

// New assembles the service.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	backends Backends,
	tokenStore dispatch.TokenStore,
	authMiddleware func(http.Handler) http.Handler,
	registry *prometheus.Registry,
	logger *slog.Logger,
) (*Wrapper, error) {
	if backends.Gateway == nil {
		return nil, fmt.Errorf("an fcm gateway is required")
	}

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Processor
	m := metrics.New(registry)
	processor := pipeline.NewProcessor(backends.Gateway, backends.APNS, backends.Web, tokenStore, m, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.SendRequestTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API
	tokenAPI := api.NewTokenAPI(tokenStore, logger)
	topicAPI := api.NewTopicAPI(tokenStore, backends.Gateway, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	// Web routes are literal and win over the {platform} wildcard.
	handle("POST /api/v1/register/web", tokenAPI.RegisterWeb)
	handle("POST /api/v1/unregister/web", tokenAPI.UnregisterWeb)
	handle("POST /api/v1/register/{platform}", tokenAPI.RegisterToken)
	handle("POST /api/v1/unregister/{platform}", tokenAPI.UnregisterToken)

	handle("POST /api/v1/topics/{topic}/subscribe", topicAPI.Subscribe)
	handle("POST /api/v1/topics/{topic}/unsubscribe", topicAPI.Unsubscribe)

	// CORS preflight for the API namespace.
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
