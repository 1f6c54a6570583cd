package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type MostMovedItem struct {
	Code          string `json:"code" db:"code"`
	Name          string `json:"name" db:"name"`
	MovementCount int    `json:"movement_count" db:"movement_count"`
}

type Metrics struct {
	TotalItems     int           `json:"total_items"`
	TotalMovements int           `json:"total_movements"`
	LowStockCount  int           `json:"low_stock_count"`
	MostMovedItem  MostMovedItem `json:"most_moved_item"`
}

// DailyMovement sums the inbound and outbound quantities of one UTC day.
type DailyMovement struct {
	Day      time.Time       `json:"day" db:"day"`
	Inbound  decimal.Decimal `json:"inbound" db:"inbound"`
	Outbound decimal.Decimal `json:"outbound" db:"outbound"`
}

type MetricsRepository interface {
	GetDashboardMetrics(ctx context.Context) (Metrics, error)
	DailyMovements(ctx context.Context, since time.Time) ([]DailyMovement, error)
}
