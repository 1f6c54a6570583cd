package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
)

// Scenario B
func TestLowStock_LeavesAfterInbound(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "OL-001", "40", "50")
	l.register(t, "OL-002", "150", "40")

	low, err := l.reporter.LowStock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(low) != 1 || low[0].Code != "OL-001" {
		t.Fatalf("expected only OL-001 in low stock, got %+v", low)
	}

	if _, err := l.apply(models.Inbound, "OL-001", "20"); err != nil {
		t.Fatal(err)
	}

	low, err = l.reporter.LowStock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(low) != 0 {
		t.Fatalf("expected empty low stock list, got %+v", low)
	}
}

func TestLowStock_OrderedAndSkipsRetired(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "C-3", "1", "5")
	l.register(t, "A-1", "1", "5")
	l.register(t, "B-2", "1", "5")
	if _, err := l.catalog.Retire(context.Background(), "B-2"); err != nil {
		t.Fatal(err)
	}

	low, err := l.reporter.LowStock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(low) != 2 || low[0].Code != "A-1" || low[1].Code != "C-3" {
		t.Fatalf("unexpected low stock list: %+v", low)
	}
}

func TestTotalValuation_DecimalExact(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for _, in := range []ledger.RegisterInput{
		{Code: "V-1", Name: "a", Category: "Filtros", Unit: "Unidades", InitialQuantity: dec("3"), UnitValue: dec("0.10"), Actor: "admin"},
		{Code: "V-2", Name: "b", Category: "Filtros", Unit: "Unidades", InitialQuantity: dec("3"), UnitValue: dec("0.20"), Actor: "admin"},
		{Code: "V-3", Name: "c", Category: "Lubrificantes", Unit: "Litros", InitialQuantity: dec("2.5"), UnitValue: dec("35.90"), Actor: "admin"},
		{Code: "V-4", Name: "d", Category: "Lubrificantes", Unit: "Litros", InitialQuantity: dec("100"), UnitValue: dec("1"), Actor: "admin"},
	} {
		if _, err := l.catalog.Register(ctx, in); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := l.catalog.Retire(ctx, "V-4"); err != nil {
		t.Fatal(err)
	}

	v, err := l.reporter.TotalValuation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// 0.30 + 0.60 + 89.75
	if !v.Total.Equal(dec("90.65")) {
		t.Fatalf("expected total 90.65, got %s", v.Total)
	}
	if len(v.Categories) != 2 || v.Categories[0].Category != "Filtros" || !v.Categories[0].Value.Equal(dec("0.9")) {
		t.Fatalf("unexpected categories: %+v", v.Categories)
	}
	if v.Categories[1].Items != 1 || !v.Categories[1].Value.Equal(dec("89.75")) {
		t.Errorf("unexpected lubricant valuation: %+v", v.Categories[1])
	}
}

func TestStockMovement_FillsEmptyDays(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "OL-001", "200", "50")
	if _, err := l.apply(models.Outbound, "OL-001", "20"); err != nil {
		t.Fatal(err)
	}

	days, err := l.reporter.StockMovement(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(days))
	}
	today := days[6]
	if !today.Day.Equal(time.Now().UTC().Truncate(24 * time.Hour)) {
		t.Errorf("expected last entry to be today, got %s", today.Day)
	}
	if !today.Inbound.Equal(dec("200")) || !today.Outbound.Equal(dec("20")) {
		t.Errorf("unexpected totals for today: %+v", today)
	}
	if !days[0].Inbound.IsZero() || !days[0].Outbound.IsZero() {
		t.Errorf("expected empty first day, got %+v", days[0])
	}

	if _, err := l.reporter.StockMovement(context.Background(), 0); !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("expected days=0 to be rejected, got %v", err)
	}
}

func TestDashboard_Counts(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "OL-001", "40", "50")
	l.register(t, "OL-002", "150", "40")
	for range 3 {
		if _, err := l.apply(models.Outbound, "OL-002", "1"); err != nil {
			t.Fatal(err)
		}
	}

	d, err := l.reporter.Dashboard(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if d.TotalItems != 2 || d.TotalMovements != 5 || d.LowStockCount != 1 {
		t.Errorf("unexpected counts: %+v", d.Metrics)
	}
	if d.MostMovedItem.Code != "OL-002" || d.MostMovedItem.MovementCount != 4 {
		t.Errorf("unexpected most moved item: %+v", d.MostMovedItem)
	}
	// (40 + 147) * 10
	if !d.TotalValuation.Equal(dec("1870")) {
		t.Errorf("expected valuation 1870, got %s", d.TotalValuation)
	}
}
