package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chatdesk-backend/internal/api/middleware"
	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/env"
	"chatdesk-backend/internal/jwt"
	"chatdesk-backend/internal/queue"
	"chatdesk-backend/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

// EventPublisher fans realtime events out to websocket rooms.
type EventPublisher interface {
	Publish(ctx context.Context, roomID string, event any) error
}

type Options struct {
	ListenAddr string
	CORS       middleware.CORSConfig
	Config     *env.Config
	Queue      *queue.RequestQueueManager
	DB         *database.Database
	Services   *Services
	Publisher  EventPublisher
	WSHandler  *websocket.Handler
	Signer     *jwt.Signer
	// Registry defaults to a fresh registry per server.
	Registry *prometheus.Registry
}

type APIServer struct {
	listenAddr          string
	cors                middleware.CORSConfig
	config              *env.Config
	requestQueueManager *queue.RequestQueueManager
	db                  *database.Database
	services            *Services
	publisher           EventPublisher
	wsHandler           *websocket.Handler
	signer              *jwt.Signer
	registry            *prometheus.Registry
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
}

func NewAPIServer(opts Options, registrars ...RouteRegistrar) *APIServer {
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Config == nil {
		opts.Config = env.Defaults()
	}

	return &APIServer{
		listenAddr:          opts.ListenAddr,
		cors:                opts.CORS,
		config:              opts.Config,
		requestQueueManager: opts.Queue,
		db:                  opts.DB,
		services:            opts.Services,
		publisher:           opts.Publisher,
		wsHandler:           opts.WSHandler,
		signer:              opts.Signer,
		registry:            opts.Registry,
		routeRegistrars:     registrars,
		metrics:             newMetrics(opts.Registry, opts.ListenAddr, opts.Queue),
	}
}

// Handler builds the routed and instrumented handler.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler(s.registry))

	return s.metrics.instrument(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.listenAddr).Msg("server listening")
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

	log.Info().Str("addr", s.listenAddr).Msg("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *APIServer) Database() *database.Database {
	return s.db
}

func (s *APIServer) Config() *env.Config {
	return s.config
}

func (s *APIServer) Services() *Services {
	return s.services
}

func (s *APIServer) Publisher() EventPublisher {
	return s.publisher
}

func (s *APIServer) WSHandler() *websocket.Handler {
	return s.wsHandler
}

func (s *APIServer) Signer() *jwt.Signer {
	return s.signer
}

func (s *APIServer) Registry() *prometheus.Registry {
	return s.registry
}
