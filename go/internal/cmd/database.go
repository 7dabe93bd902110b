package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/dbconfig"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/teamdefaults"
)

// setupTeamDefaultsStore opens the configured team defaults backend. The
// returned func releases it.
func setupTeamDefaultsStore(ctx context.Context, config *Config) (teamdefaults.Store, func(), error) {
	switch config.TeamDefaults.Backend {
	case "postgres":
		dbConfig := dbconfig.NewConfigFromEnv()
		store, err := teamdefaults.NewPostgresStore(ctx, dbConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres team defaults store: %w", err)
		}
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("connected to database")
		return store, store.Close, nil

	default:
		log.Info().Str("path", config.TeamDefaults.Path).Msg("using file team defaults store")
		return teamdefaults.NewFileStore(config.TeamDefaults.Path), func() {}, nil
	}
}
