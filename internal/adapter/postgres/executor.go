// Package postgres runs parameterised queries against the PostGIS database
// and reports failures as domain.DatabaseError values.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/couchcryptid/disaster-report-server/internal/domain"
	"github.com/couchcryptid/disaster-report-server/internal/observability"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings controls when the executor stops sending queries to an
// unreachable database.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultBreakerSettings trips after five consecutive connection failures and
// tries again after thirty seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{FailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

// Executor runs queries through a circuit breaker with a per-query deadline.
// It holds no state between calls beyond the pool and the breaker.
type Executor struct {
	db      *sql.DB
	breaker *gobreaker.CircuitBreaker[[]domain.Row]
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewExecutor wraps db. A timeout <= 0 disables the per-query deadline.
func NewExecutor(db *sql.DB, timeout time.Duration, bs BreakerSettings, logger *slog.Logger, metrics *observability.Metrics) *Executor {
	e := &Executor{db: db, timeout: timeout, logger: logger, metrics: metrics}

	e.breaker = gobreaker.NewCircuitBreaker[[]domain.Row](gobreaker.Settings{
		Name:        "postgres",
		MaxRequests: 1,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.FailureThreshold
		},
		// A bad query or a caller that went away says nothing about database health.
		IsSuccessful: func(err error) bool {
			return err == nil || domain.DatabaseErrorKind(err) == domain.QueryFailed || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("database circuit breaker state change", "from", from.String(), "to", to.String())
			metrics.BreakerState.Set(float64(to))
		},
	})
	return e
}

// Query runs query with positional arguments and returns every row as a
// column-name keyed map. []byte values are returned as strings.
func (e *Executor) Query(ctx context.Context, query string, args ...any) ([]domain.Row, error) {
	name := domain.QueryName(ctx)
	start := time.Now()

	rows, err := e.breaker.Execute(func() ([]domain.Row, error) {
		return e.query(ctx, query, args...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &domain.DatabaseError{Kind: domain.ConnectionFailed, Err: err}
	}

	e.metrics.QueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if errors.Is(err, context.Canceled) {
		e.logger.Debug("query cancelled", "query", name, "duration", time.Since(start))
		return nil, err
	}
	if err != nil {
		kind := domain.DatabaseErrorKind(err)
		e.metrics.QueryErrors.WithLabelValues(name, kind.String()).Inc()
		e.logger.Error("query failed", "query", name, "kind", kind.String(), "error", errors.Unwrap(err))
		return nil, err
	}
	e.logger.Debug("query complete", "query", name, "rows", len(rows), "duration", time.Since(start))
	return rows, nil
}

func (e *Executor) query(ctx context.Context, query string, args ...any) ([]domain.Row, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, classify(ctx, err, domain.ConnectionFailed)
	}
	defer conn.Close()

	rs, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(ctx, err, domain.QueryFailed)
	}
	defer rs.Close()

	out, err := scanRows(rs)
	if err != nil {
		return nil, classify(ctx, err, domain.QueryFailed)
	}
	return out, nil
}

// classify maps a driver error to a DatabaseError. def is used when the error
// is neither a deadline nor a broken connection. Cancellation by the caller is
// returned as a plain context error so it never counts against the database.
func classify(ctx context.Context, err error, def domain.DBErrorKind) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("query cancelled: %w", context.Canceled)
	}
	kind := def
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = domain.Timeout
	case errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr):
		kind = domain.ConnectionFailed
	}
	return &domain.DatabaseError{Kind: kind, Err: err}
}

func scanRows(rs *sql.Rows) ([]domain.Row, error) {
	cols, err := rs.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	var out []domain.Row
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(domain.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// CheckReadiness pings the database.
func (e *Executor) CheckReadiness(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}
