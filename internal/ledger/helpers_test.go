package ledger_test

import (
	"context"
	"testing"

	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type testLedger struct {
	store    *repo.InMemoryLedgerStore
	catalog  *ledger.Catalog
	engine   *ledger.Engine
	reporter *ledger.Reporter
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	store := repo.NewInMemoryLedgerStore()
	log := zap.NewNop()
	return &testLedger{
		store:    store,
		catalog:  ledger.NewCatalog(store, log),
		engine:   ledger.NewEngine(store, nil, log, ledger.Options{RetryAttempts: 3, RetryBackoff: 1}),
		reporter: ledger.NewReporter(store, repo.NewInMemoryMetricsRepository(store)),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (l *testLedger) register(t *testing.T, code, initial, minThreshold string) models.Item {
	t.Helper()
	item, err := l.catalog.Register(context.Background(), ledger.RegisterInput{
		Code:            code,
		Name:            "Item " + code,
		Category:        "Lubrificantes",
		Unit:            "Litros",
		MinThreshold:    dec(minThreshold),
		UnitValue:       dec("10"),
		InitialQuantity: dec(initial),
		Actor:           "admin",
	})
	if err != nil {
		t.Fatalf("register %s: %v", code, err)
	}
	return item
}

func (l *testLedger) apply(typ models.MovementType, code, qty string) (models.Movement, error) {
	return l.engine.ApplyMovement(context.Background(), ledger.ApplyInput{
		ItemCode: code,
		Type:     typ,
		Quantity: dec(qty),
		Actor:    "operator",
	})
}

func (l *testLedger) quantity(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	item, err := l.catalog.Get(context.Background(), code)
	if err != nil {
		t.Fatalf("get %s: %v", code, err)
	}
	return item.Quantity
}

func (l *testLedger) movementCount(t *testing.T, code string) int {
	t.Helper()
	n := 0
	for _, err := range l.store.ListFor(context.Background(), code, repo.Ascending) {
		if err != nil {
			t.Fatalf("list %s: %v", code, err)
		}
		n++
	}
	return n
}
