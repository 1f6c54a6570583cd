package ledger_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
)

func TestRecompute_MatchesCacheAfterEveryStep(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 2024} {
		l := newTestLedger(t)
		l.register(t, "OL-001", "20", "5")
		rng := rand.New(rand.NewSource(seed))
		expected := dec("20")

		for step := range 300 {
			qty := decimal.New(rng.Int63n(2000)+1, -2) // 0.01 .. 20.00
			typ := models.Inbound
			if rng.Intn(2) == 0 {
				typ = models.Outbound
			}

			_, err := l.apply(typ, "OL-001", qty.String())
			switch {
			case err == nil:
				if typ == models.Inbound {
					expected = expected.Add(qty)
				} else {
					expected = expected.Sub(qty)
				}
			case errors.Is(err, ledger.ErrInsufficientStock):
				if typ != models.Outbound || !expected.LessThan(qty) {
					t.Fatalf("seed %d step %d: unexpected rejection: %v", seed, step, err)
				}
			default:
				t.Fatalf("seed %d step %d: %v", seed, step, err)
			}

			cached := l.quantity(t, "OL-001")
			if cached.IsNegative() {
				t.Fatalf("seed %d step %d: negative quantity %s", seed, step, cached)
			}
			truth, err := l.engine.Recompute(context.Background(), "OL-001")
			if err != nil {
				t.Fatal(err)
			}
			if !cached.Equal(truth) || !cached.Equal(expected) {
				t.Fatalf("seed %d step %d: cached %s, recompute %s, expected %s", seed, step, cached, truth, expected)
			}
		}
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "FL-002", "20", "8")
	if _, err := l.apply(models.Outbound, "FL-002", "3.25"); err != nil {
		t.Fatal(err)
	}

	first, err := l.engine.Recompute(context.Background(), "FL-002")
	if err != nil {
		t.Fatal(err)
	}
	for range 5 {
		again, err := l.engine.Recompute(context.Background(), "FL-002")
		if err != nil {
			t.Fatal(err)
		}
		if !again.Equal(first) {
			t.Fatalf("recompute changed from %s to %s", first, again)
		}
	}
	if n := l.movementCount(t, "FL-002"); n != 2 {
		t.Errorf("recompute must not write, log has %d movements", n)
	}
}

func TestRecompute_NotFound(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.engine.Recompute(context.Background(), "NONE"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// corrupt overwrites the cached quantity without touching the log.
func corrupt(t *testing.T, store *repo.InMemoryLedgerStore, code, qty string) {
	t.Helper()
	err := store.WithItemLock(context.Background(), code, func(tx repo.LedgerTx) error {
		return tx.SetQuantity(dec(qty))
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReconcile_ReportsDriftWithoutRepair(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "CR-001", "15", "5")
	corrupt(t, l.store, "CR-001", "99")

	res, err := l.engine.Reconcile(context.Background(), "CR-001", false)
	var de *ledger.DriftDetectedError
	if !errors.As(err, &de) {
		t.Fatalf("expected DriftDetectedError, got %v", err)
	}
	if !de.Cached.Equal(dec("99")) || !de.Ledger.Equal(dec("15")) {
		t.Errorf("unexpected drift values: %+v", de)
	}
	if !res.Drift || res.Repaired {
		t.Errorf("unexpected result: %+v", res)
	}
	if ledger.IsRetryable(err) {
		t.Error("drift must not be retryable")
	}
	if !l.quantity(t, "CR-001").Equal(dec("99")) {
		t.Error("reconcile without repair must not write")
	}
}

func TestReconcile_RepairRestoresLedgerTruth(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "CR-002", "12", "4")
	if _, err := l.apply(models.Outbound, "CR-002", "2"); err != nil {
		t.Fatal(err)
	}
	corrupt(t, l.store, "CR-002", "1")

	res, err := l.engine.Reconcile(context.Background(), "CR-002", true)
	if err != nil {
		t.Fatalf("expected repair to succeed, got %v", err)
	}
	if !res.Repaired || !res.Ledger.Equal(dec("10")) {
		t.Errorf("unexpected result: %+v", res)
	}
	if !l.quantity(t, "CR-002").Equal(dec("10")) {
		t.Errorf("expected repaired quantity 10, got %s", l.quantity(t, "CR-002"))
	}

	res, err = l.engine.Reconcile(context.Background(), "CR-002", false)
	if err != nil || res.Drift {
		t.Errorf("expected clean reconcile after repair, got %+v %v", res, err)
	}
}

func TestAudit_ReturnsDriftedItems(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "A-1", "10", "1")
	l.register(t, "A-2", "10", "1")
	l.register(t, "A-3", "10", "1")
	corrupt(t, l.store, "A-2", "3")

	drifted, err := l.engine.Audit(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(drifted) != 1 || drifted[0].Code != "A-2" || drifted[0].Repaired {
		t.Fatalf("unexpected audit result: %+v", drifted)
	}

	drifted, err = l.engine.Audit(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(drifted) != 1 || !drifted[0].Repaired {
		t.Fatalf("expected A-2 repaired, got %+v", drifted)
	}
	if !l.quantity(t, "A-2").Equal(dec("10")) {
		t.Errorf("expected A-2 back at 10, got %s", l.quantity(t, "A-2"))
	}
}
