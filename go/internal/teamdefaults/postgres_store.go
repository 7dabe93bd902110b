package teamdefaults

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/dbconfig"
	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS team_defaults (
    team_key   TEXT PRIMARY KEY,
    defaults   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSQL = `
INSERT INTO team_defaults (team_key, defaults, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (team_key) DO UPDATE SET defaults = EXCLUDED.defaults, updated_at = now()`

// PostgresStore keeps team defaults in a team_defaults table, one row per team.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the table exists.
func NewPostgresStore(ctx context.Context, cfg dbconfig.Config) (*PostgresStore, error) {
	pc, err := cfg.PoolConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w: %v", ErrPersistence, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w: %v", ErrPersistence, err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create team_defaults table: %w: %v", ErrPersistence, err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Load reads every team's defaults.
func (s *PostgresStore) Load(ctx context.Context) (map[string]models.TeamDefaults, error) {
	rows, err := s.pool.Query(ctx, `SELECT team_key, defaults FROM team_defaults`)
	if err != nil {
		return nil, fmt.Errorf("query team defaults: %w: %v", ErrPersistence, err)
	}
	defer rows.Close()

	teams := make(map[string]models.TeamDefaults)
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan team defaults: %w: %v", ErrPersistence, err)
		}
		var d models.TeamDefaults
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode defaults of team %s: %w: %v", key, ErrPersistence, err)
		}
		teams[key] = d
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team defaults: %w: %v", ErrPersistence, err)
	}
	return teams, nil
}

// Save upserts every team's defaults in one transaction.
func (s *PostgresStore) Save(ctx context.Context, teams map[string]models.TeamDefaults) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for key, d := range teams {
			raw, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("encode defaults of team %s: %w", key, err)
			}
			if _, err := tx.Exec(ctx, upsertSQL, key, raw); err != nil {
				return fmt.Errorf("upsert team %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save team defaults: %w: %v", ErrPersistence, err)
	}
	return nil
}
