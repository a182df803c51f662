package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var DB *pgxpool.Pool

// ConnectDB opens the shared pool. LISTEN connections are hijacked out of it
// and capped separately by LISTEN_MAX_CONNS, so MaxConns only covers queries.
func ConnectDB(ctx context.Context, dbUrl string, log zerolog.Logger) error {
	var err error
	config, err := pgxpool.ParseConfig(dbUrl)
	if err != nil {
		return fmt.Errorf("unable to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	DB, err = pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := DB.Ping(ctx); err != nil {
		DB.Close()
		return fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info().Int32("max_conns", config.MaxConns).Msg("connected to PostgreSQL")
	return nil
}

func CloseDB() {
	if DB != nil {
		DB.Close()
	}
}
