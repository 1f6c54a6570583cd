package ledger

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
)

const maxReportDays = 366

type CategoryValuation struct {
	Category string          `json:"category"`
	Items    int             `json:"items"`
	Value    decimal.Decimal `json:"value"`
}

type Valuation struct {
	Total      decimal.Decimal     `json:"total"`
	Categories []CategoryValuation `json:"categories"`
}

type Dashboard struct {
	repo.Metrics
	TotalValuation decimal.Decimal `json:"total_valuation"`
}

// Reporter answers read-only questions over the cached quantities. Retired
// items are left out of every report.
type Reporter struct {
	store   repo.LedgerStore
	metrics repo.MetricsRepository
}

func NewReporter(store repo.LedgerStore, metrics repo.MetricsRepository) *Reporter {
	return &Reporter{store: store, metrics: metrics}
}

func (r *Reporter) activeItems(ctx context.Context, op string) ([]models.Item, error) {
	items, err := r.store.AllItems(ctx)
	if err != nil {
		return nil, storageError(op, "", err)
	}
	return slices.DeleteFunc(items, func(it models.Item) bool { return it.Retired }), nil
}

// LowStock returns the active items whose quantity is below their minimum
// threshold, ordered by code.
func (r *Reporter) LowStock(ctx context.Context) ([]models.Item, error) {
	items, err := r.activeItems(ctx, "low stock report")
	if err != nil {
		return nil, err
	}

	low := []models.Item{}
	for _, it := range items {
		if it.LowStock() {
			low = append(low, it)
		}
	}
	slices.SortStableFunc(low, func(a, b models.Item) int { return cmp.Compare(a.Code, b.Code) })
	return low, nil
}

func (r *Reporter) TotalValuation(ctx context.Context) (Valuation, error) {
	items, err := r.activeItems(ctx, "valuation report")
	if err != nil {
		return Valuation{}, err
	}

	v := Valuation{Total: decimal.Zero, Categories: []CategoryValuation{}}
	byCategory := map[string]int{}
	for _, it := range items {
		value := it.Valuation()
		v.Total = v.Total.Add(value)

		idx, ok := byCategory[it.Category]
		if !ok {
			idx = len(v.Categories)
			byCategory[it.Category] = idx
			v.Categories = append(v.Categories, CategoryValuation{Category: it.Category, Value: decimal.Zero})
		}
		v.Categories[idx].Items++
		v.Categories[idx].Value = v.Categories[idx].Value.Add(value)
	}

	slices.SortFunc(v.Categories, func(a, b CategoryValuation) int { return cmp.Compare(a.Category, b.Category) })
	return v, nil
}

// StockMovement returns inbound and outbound totals for each of the last
// days UTC days, today included. Days without movements are zero.
func (r *Reporter) StockMovement(ctx context.Context, days int) ([]repo.DailyMovement, error) {
	if days < 1 || days > maxReportDays {
		return nil, ValidationErrors{{Field: "days", Description: "must be between 1 and 366"}}
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))

	totals, err := r.metrics.DailyMovements(ctx, since)
	if err != nil {
		return nil, storageError("stock movement report", "", err)
	}

	byDay := make(map[time.Time]repo.DailyMovement, len(totals))
	for _, d := range totals {
		byDay[d.Day.UTC()] = d
	}

	out := make([]repo.DailyMovement, 0, days)
	for day := since; !day.After(today); day = day.AddDate(0, 0, 1) {
		d, ok := byDay[day]
		if !ok {
			d = repo.DailyMovement{Day: day, Inbound: decimal.Zero, Outbound: decimal.Zero}
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *Reporter) Dashboard(ctx context.Context) (Dashboard, error) {
	m, err := r.metrics.GetDashboardMetrics(ctx)
	if err != nil {
		return Dashboard{}, storageError("dashboard", "", err)
	}
	v, err := r.TotalValuation(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Metrics: m, TotalValuation: v.Total}, nil
}
