package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type PostgresMetricsRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ MetricsRepository = (*PostgresMetricsRepository)(nil)

func NewPostgresMetricsRepository(db *sqlx.DB, timeout time.Duration) *PostgresMetricsRepository {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PostgresMetricsRepository{db: db, timeout: timeout}
}

func (r *PostgresMetricsRepository) GetDashboardMetrics(ctx context.Context) (Metrics, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var m Metrics

	if err := r.db.GetContext(ctx, &m.TotalItems, `SELECT COUNT(*) FROM items WHERE NOT retired`); err != nil {
		return m, err
	}
	if err := r.db.GetContext(ctx, &m.TotalMovements, `SELECT COUNT(*) FROM movements`); err != nil {
		return m, err
	}
	if err := r.db.GetContext(ctx, &m.LowStockCount, `SELECT COUNT(*) FROM items WHERE NOT retired AND quantity < min_threshold`); err != nil {
		return m, err
	}

	err := r.db.GetContext(ctx, &m.MostMovedItem, `
		SELECT i.code, i.name, COUNT(*) AS movement_count
		FROM movements m
		JOIN items i ON m.item_code = i.code
		GROUP BY i.code, i.name
		ORDER BY movement_count DESC, i.code
		LIMIT 1
	`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return m, err
	}

	return m, nil
}

func (r *PostgresMetricsRepository) DailyMovements(ctx context.Context, since time.Time) ([]DailyMovement, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	days := []DailyMovement{}
	err := r.db.SelectContext(ctx, &days, `
		SELECT date_trunc('day', occurred_at AT TIME ZONE 'UTC') AS day,
			COALESCE(SUM(quantity) FILTER (WHERE type = 'inbound'), 0) AS inbound,
			COALESCE(SUM(quantity) FILTER (WHERE type = 'outbound'), 0) AS outbound
		FROM movements
		WHERE occurred_at >= $1
		GROUP BY day
		ORDER BY day
	`, since)
	return days, err
}
