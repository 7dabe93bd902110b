package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/room"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/session"
)

// Service is the planning poker gateway: websocket connections, the dispatcher
// that owns room state, and the REST API.
type Service struct {
	store       *room.Store
	sessions    *session.Registry
	timers      *room.Countdowns
	connections *ConnectionManager
	dispatcher  *Dispatcher
	jetstream   *JetStreamSink
	api         *APIHandler
	ws          *WebSocketHandler
	registry    *prometheus.Registry
}

// Config holds configuration for the gateway service.
type Config struct {
	Connection    ConnectionConfig
	Dispatcher    DispatcherConfig
	TimerInterval time.Duration
	// JetStream enables publishing room events to NATS when set.
	JetStream *JetStreamConfig
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		Connection:    DefaultConnectionConfig(),
		Dispatcher:    DefaultDispatcherConfig(),
		TimerInterval: time.Second,
	}
}

// NewService wires the gateway. defaults supplies and stores team defaults.
func NewService(ctx context.Context, config Config, defaults TeamDefaultsStore, clock clockwork.Clock) (*Service, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := room.NewStore(clock)
	sessions := session.NewRegistry()
	timers := room.NewCountdowns(clock, config.TimerInterval)
	app := room.NewApp(store, sessions, defaults, timers, clock)
	metrics := NewMetrics(registry, store.Len)

	var (
		sink      EventSink = NoopSink{}
		jetstream *JetStreamSink
	)
	if config.JetStream != nil {
		js, err := NewJetStreamSink(ctx, *config.JetStream, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create event sink: %w", err)
		}
		sink, jetstream = js, js
	}

	connections := NewConnectionManager(config.Connection, metrics)
	dispatcher := NewDispatcher(app, store, sessions, timers, connections, sink, metrics, clock, config.Dispatcher)

	return &Service{
		store:       store,
		sessions:    sessions,
		timers:      timers,
		connections: connections,
		dispatcher:  dispatcher,
		jetstream:   jetstream,
		api:         NewAPIHandler(dispatcher, defaults, store.Len, connections.Count, clock),
		ws:          NewWebSocketHandler(connections, dispatcher),
		registry:    registry,
	}, nil
}

// Start runs the gateway until ctx is cancelled, then stops it.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting planning poker gateway")

	if s.jetstream != nil {
		go s.jetstream.Run(ctx)
	}

	s.dispatcher.Run(ctx)
	return s.Stop()
}

// Stop closes connections and timers. It must only be called once the
// dispatcher has stopped.
func (s *Service) Stop() error {
	s.connections.CloseAll()
	s.store.StopTimers()
	s.timers.Wait()
	if s.jetstream != nil {
		s.jetstream.Close()
	}

	log.Info().Msg("planning poker gateway stopped")
	return nil
}

// Routes mounts the websocket, REST and metrics endpoints on r.
func (s *Service) Routes(r chi.Router) {
	r.Route("/api", s.api.Routes)
	r.Handle("/ws", s.ws)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler returns a router serving the gateway endpoints.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}
