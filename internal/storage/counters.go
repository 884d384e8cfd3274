package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/frontdesk/libs/db"
)

// CounterQueries serves the aggregator's point-in-time counts. Every query
// recomputes from live rows; nothing here is cached or incremental.
type CounterQueries struct {
	pool *db.Pool
}

func NewCounterQueries(pool *db.Pool) *CounterQueries {
	return &CounterQueries{pool: pool}
}

func (q *CounterQueries) CountNewLeadsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM leads
		WHERE status = 'new lead' AND created_at >= $1
	`, since).Scan(&n)
	return n, err
}

func (q *CounterQueries) CountNoShowsOn(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE service_date = $1::date AND attendance = 'no-show'
	`, day).Scan(&n)
	return n, err
}

func (q *CounterQueries) CountOverduePayments(ctx context.Context) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM payments
		WHERE status = 'overdue'
	`).Scan(&n)
	return n, err
}

func (q *CounterQueries) CountExpectedArrivals(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE service_date = $1::date AND confirmed AND checked_in_at IS NULL
	`, day).Scan(&n)
	return n, err
}
