package conn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/akoun-dev/montoit-sub002/infra/config"
	"github.com/akoun-dev/montoit-sub002/infra/logger"
)

const (
	connectAttempts = 5
	connectBackoff  = 2 * time.Second
)

// Open connects to the Postgres instance described by the DB_* settings.
// Attempts are retried with a short backoff so the service survives a
// database that comes up slower than it does.
func Open() (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.GetEnv("DB_HOST", "localhost"),
		config.GetEnv("DB_PORT", "5432"),
		config.GetEnv("DB_USER", "montoit"),
		config.GetEnv("DB_PASS", ""),
		config.GetEnv("DB_NAME", "montoit"),
		config.GetEnv("DB_SSLMODE", "disable"),
	)

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			lastErr = err
			time.Sleep(connectBackoff)
			continue
		}

		db.SetMaxOpenConns(config.GetIntEnv("DB_MAX_OPEN_CONNS", 25))
		db.SetMaxIdleConns(config.GetIntEnv("DB_MAX_IDLE_CONNS", 5))
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(2 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			logger.Info("Postgres connected", logger.LogContext{
				Fields: map[string]any{"attempt": attempt},
			})
			return db, nil
		}

		lastErr = err
		_ = db.Close()
		logger.Warn("Postgres not ready, retrying", logger.LogContext{
			Fields: map[string]any{"attempt": attempt, "error": err.Error()},
		})
		time.Sleep(connectBackoff)
	}

	return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", connectAttempts, lastErr)
}
