package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/omnichat/webchat/internal/queue"
	conversationservice "github.com/omnichat/webchat/internal/service/conversation"
	"github.com/omnichat/webchat/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

type ServerConfig struct {
	ListenAddr     string
	Queue          *queue.RequestQueueManager
	Conversations  *conversationservice.Service
	Realtime       *websocket.Handler
	Publisher      websocket.Publisher
	Logger         zerolog.Logger
	AllowedOrigins []string
	// Registry receives the HTTP collectors. A nil registry gets a private one.
	Registry *prometheus.Registry
}

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	conversations       *conversationservice.Service
	handler             *websocket.Handler
	publisher           websocket.Publisher
	log                 zerolog.Logger
	allowedOrigins      []string
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
}

func NewAPIServer(cfg ServerConfig, registrars ...RouteRegistrar) *APIServer {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &APIServer{
		listenAddr:          cfg.ListenAddr,
		requestQueueManager: cfg.Queue,
		conversations:       cfg.Conversations,
		handler:             cfg.Realtime,
		publisher:           cfg.Publisher,
		log:                 cfg.Logger,
		allowedOrigins:      cfg.AllowedOrigins,
		routeRegistrars:     registrars,
		metrics:             newMetrics(registry, cfg.ListenAddr, cfg.Queue),
	}
}

// Routes builds the instrumented mux with every registered route plus /metrics.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	return s.metrics.instrument(mux)
}

// Run serves until ctx is cancelled and then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.listenAddr).Msg("server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *APIServer) Conversations() *conversationservice.Service {
	return s.conversations
}

func (s *APIServer) Handler() *websocket.Handler {
	return s.handler
}

func (s *APIServer) Publisher() websocket.Publisher {
	return s.publisher
}

func (s *APIServer) Logger() zerolog.Logger {
	return s.log
}
