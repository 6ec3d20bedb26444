package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-report-server/internal/config"
	"github.com/couchcryptid/disaster-report-server/internal/domain"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq" // registers the "postgres" driver
)

// Open creates the connection pool. It does not contact the database.
func Open(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.PGMaxOpenConns)
	db.SetMaxIdleConns(cfg.PGMaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// WaitForConnection pings db up to attempts times, sleeping delay between
// failures. It returns a ConnectionFailed error once attempts are exhausted.
func WaitForConnection(ctx context.Context, db Pinger, attempts int, delay time.Duration, clock clockwork.Clock, logger *slog.Logger) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			logger.Info("database connected", "attempt", i)
			return nil
		}
		logger.Warn("database connection failed", "attempt", i, "attempts", attempts, "retry_in", delay, "error", err)
		if i == attempts {
			break
		}
		if !sleepWithContext(ctx, clock, delay) {
			return &domain.DatabaseError{Kind: domain.ConnectionFailed, Err: ctx.Err()}
		}
	}
	return &domain.DatabaseError{Kind: domain.ConnectionFailed, Err: fmt.Errorf("gave up after %d attempts: %w", attempts, err)}
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
