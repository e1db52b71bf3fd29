package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WaitOptions controls WaitForDB retry behavior.
type WaitOptions struct {
	// MaxAttempts caps the number of tries; 0 means retry until the
	// context expires.
	MaxAttempts int
	// InitialInterval is the delay after the first failed attempt; it
	// doubles up to MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	PingTimeout     time.Duration
}

// DefaultWaitOptions returns the startup wait defaults.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		MaxAttempts:     10,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

// WaitForDB blocks until the database answers a ping, the attempt
// limit is reached or the context is done. Used at startup so the
// service survives the database coming up after it.
func WaitForDB(ctx context.Context, dsn string, opts WaitOptions) error {
	attempt := 0
	interval := opts.InitialInterval

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context done while waiting for database: %w", err)
		}

		attempt++
		err := pingDatabase(ctx, dsn, opts.PingTimeout)
		if err == nil {
			return nil
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return fmt.Errorf("database not available after %d attempts: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("context done after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(interval):
		}

		interval *= 2
		if interval > opts.MaxInterval {
			interval = opts.MaxInterval
		}
	}
}

// HealthCheckPool verifies an existing pool answers a trivial query.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected health query result: %d", result)
	}
	return nil
}

func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
