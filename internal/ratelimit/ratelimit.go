// Package ratelimit keeps fixed-window request counters outside the process,
// so replicas behind a load balancer share one budget per client.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB interface for database operations
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Postgres counts requests in rate_limit_counters.
type Postgres struct {
	db DB
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// NewPostgresWithDB creates a counter with custom DB interface
func NewPostgresWithDB(db DB) *Postgres {
	return &Postgres{db: db}
}

// Incr adds one hit to key and returns the count and end of its current
// window. An expired window restarts at 1.
func (p *Postgres) Incr(ctx context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error) {
	query := `
		INSERT INTO rate_limit_counters (key, count, window_end)
		VALUES ($1, 1, $3)
		ON CONFLICT (key)
		DO UPDATE SET
			count = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN 1
				ELSE rate_limit_counters.count + 1
			END,
			window_end = CASE
				WHEN rate_limit_counters.window_end <= $2 THEN $3
				ELSE rate_limit_counters.window_end
			END
		RETURNING count, window_end
	`

	var (
		count     int
		windowEnd time.Time
	)
	err := p.db.QueryRow(ctx, query, key, now, now.Add(window)).Scan(&count, &windowEnd)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment rate limit counter: %w", err)
	}

	return count, windowEnd, nil
}

// CleanupExpired removes counters whose window closed before cutoff.
func (p *Postgres) CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := p.db.Exec(ctx, `DELETE FROM rate_limit_counters WHERE window_end < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limit counters: %w", err)
	}
	return result.RowsAffected(), nil
}
