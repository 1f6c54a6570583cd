package repo

import (
	"context"
	"slices"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/shopspring/decimal"
)

// InMemoryMetricsRepository computes the dashboard by walking a ledger store.
type InMemoryMetricsRepository struct {
	store LedgerStore
}

var _ MetricsRepository = (*InMemoryMetricsRepository)(nil)

func NewInMemoryMetricsRepository(store LedgerStore) *InMemoryMetricsRepository {
	return &InMemoryMetricsRepository{store: store}
}

// GetDashboardMetrics implements MetricsRepository.
func (i *InMemoryMetricsRepository) GetDashboardMetrics(ctx context.Context) (Metrics, error) {
	m := Metrics{}

	items, err := i.store.AllItems(ctx)
	if err != nil {
		return m, err
	}

	for _, item := range items {
		count := 0
		for _, err := range i.store.ListFor(ctx, item.Code, Ascending) {
			if err != nil {
				return m, err
			}
			count++
		}
		m.TotalMovements += count

		if count > m.MostMovedItem.MovementCount {
			m.MostMovedItem = MostMovedItem{Code: item.Code, Name: item.Name, MovementCount: count}
		}

		if item.Retired {
			continue
		}
		m.TotalItems++
		if item.LowStock() {
			m.LowStockCount++
		}
	}

	return m, nil
}

func (i *InMemoryMetricsRepository) DailyMovements(ctx context.Context, since time.Time) ([]DailyMovement, error) {
	items, err := i.store.AllItems(ctx)
	if err != nil {
		return nil, err
	}

	byDay := map[time.Time]*DailyMovement{}
	for _, item := range items {
		for mv, err := range i.store.ListFor(ctx, item.Code, Ascending) {
			if err != nil {
				return nil, err
			}
			if mv.OccurredAt.Before(since) {
				continue
			}
			day := mv.OccurredAt.UTC().Truncate(24 * time.Hour)
			d, ok := byDay[day]
			if !ok {
				d = &DailyMovement{Day: day, Inbound: decimal.Zero, Outbound: decimal.Zero}
				byDay[day] = d
			}
			if mv.Type == models.Inbound {
				d.Inbound = d.Inbound.Add(mv.Quantity)
			} else {
				d.Outbound = d.Outbound.Add(mv.Quantity)
			}
		}
	}

	days := make([]DailyMovement, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, *d)
	}
	slices.SortFunc(days, func(a, b DailyMovement) int { return a.Day.Compare(b.Day) })
	return days, nil
}
