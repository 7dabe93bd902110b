package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/gateway"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/teamdefaults"
)

type Services struct {
	Defaults *teamdefaults.Registry
	Gateway  *gateway.Service

	closeStore func()
}

func setupServices(ctx context.Context, config *Config, clock clockwork.Clock) (*Services, error) {
	// Team defaults: store → registry
	store, closeStore, err := setupTeamDefaultsStore(ctx, config)
	if err != nil {
		return nil, err
	}
	defaults := teamdefaults.NewRegistry(store, clock)
	if err := defaults.Load(ctx); err != nil {
		log.Error().Err(err).Msg("failed to load team defaults, starting empty")
	}

	// Gateway: rooms, dispatcher, websocket and REST
	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.Connection.CheckOrigin = gateway.OriginChecker(config.Server.AllowedOrigins)
	gatewayConfig.Dispatcher.MaxIdle = config.Rooms.MaxIdle
	gatewayConfig.Dispatcher.SweepInterval = config.Rooms.SweepInterval
	if config.NATS.URL != "" {
		js := gateway.DefaultJetStreamConfig()
		js.URL = config.NATS.URL
		if config.NATS.Stream != "" {
			js.StreamName = config.NATS.Stream
		}
		gatewayConfig.JetStream = &js
	}

	gatewayService, err := gateway.NewService(ctx, gatewayConfig, defaults, clock)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to create gateway service: %w", err)
	}

	return &Services{
		Defaults:   defaults,
		Gateway:    gatewayService,
		closeStore: closeStore,
	}, nil
}

func (s *Services) Close() {
	s.closeStore()
}
