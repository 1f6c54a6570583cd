package ledger_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"go.uber.org/zap"
)

// Scenario A
func TestApplyMovement_OutboundThenInsufficient(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "OL-001", "200", "50")

	m, err := l.apply(models.Outbound, "OL-001", "50")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !m.BalanceAfter.Equal(dec("150")) {
		t.Errorf("expected balance_after 150, got %s", m.BalanceAfter)
	}
	if !l.quantity(t, "OL-001").Equal(dec("150")) {
		t.Fatalf("expected quantity 150, got %s", l.quantity(t, "OL-001"))
	}

	_, err = l.apply(models.Outbound, "OL-001", "200")
	var ise *ledger.InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !ise.Requested.Equal(dec("200")) || !ise.Available.Equal(dec("150")) {
		t.Errorf("unexpected cause: requested %s available %s", ise.Requested, ise.Available)
	}
	if ledger.IsRetryable(err) {
		t.Error("insufficient stock must not be retryable")
	}
	if !l.quantity(t, "OL-001").Equal(dec("150")) {
		t.Errorf("expected quantity to remain 150, got %s", l.quantity(t, "OL-001"))
	}
	if n := l.movementCount(t, "OL-001"); n != 2 {
		t.Errorf("expected 2 movements in log, got %d", n)
	}
}

func TestApplyMovement_InvalidInput(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "OL-002", "150", "40")

	tests := []struct {
		name string
		in   ledger.ApplyInput
		want error
	}{
		{"zero quantity", ledger.ApplyInput{ItemCode: "OL-002", Type: models.Inbound, Quantity: dec("0"), Actor: "a"}, ledger.ErrInvalidQuantity},
		{"negative quantity", ledger.ApplyInput{ItemCode: "OL-002", Type: models.Outbound, Quantity: dec("-3"), Actor: "a"}, ledger.ErrInvalidQuantity},
		{"bad type", ledger.ApplyInput{ItemCode: "OL-002", Type: "transfer", Quantity: dec("1"), Actor: "a"}, ledger.ErrValidation},
		{"missing actor", ledger.ApplyInput{ItemCode: "OL-002", Type: models.Inbound, Quantity: dec("1")}, ledger.ErrValidation},
		{"unknown item", ledger.ApplyInput{ItemCode: "ZZ-999", Type: models.Inbound, Quantity: dec("1"), Actor: "a"}, ledger.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.engine.ApplyMovement(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if !l.quantity(t, "OL-002").Equal(dec("150")) {
		t.Error("rejected input changed the quantity")
	}
	if n := l.movementCount(t, "OL-002"); n != 1 {
		t.Errorf("rejected input reached the log: %d movements", n)
	}
}

func TestApplyMovement_InvalidQuantityNamesField(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "OL-003", "100", "30")

	_, err := l.apply(models.Inbound, "OL-003", "0")
	var qe *ledger.InvalidQuantityError
	if !errors.As(err, &qe) || qe.Field != "quantity" {
		t.Fatalf("expected InvalidQuantityError on quantity, got %v", err)
	}
}

func TestApplyMovement_ConcurrentOutbound(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "FL-003", "100", "12")

	const workers = 30
	var (
		wg           sync.WaitGroup
		successes    atomic.Int32
		insufficient atomic.Int32
		unexpected   atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.apply(models.Outbound, "FL-003", "7")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ledger.ErrInsufficientStock):
				insufficient.Add(1)
			default:
				unexpected.Add(1)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 14 {
		t.Fatalf("expected floor(100/7)=14 successes, got %d", successes.Load())
	}
	if insufficient.Load() != workers-14 || unexpected.Load() != 0 {
		t.Fatalf("expected %d insufficient and 0 other errors, got %d and %d", workers-14, insufficient.Load(), unexpected.Load())
	}
	if !l.quantity(t, "FL-003").Equal(dec("2")) {
		t.Errorf("expected final quantity 2, got %s", l.quantity(t, "FL-003"))
	}

	qty, err := l.engine.Recompute(context.Background(), "FL-003")
	if err != nil {
		t.Fatal(err)
	}
	if !qty.Equal(dec("2")) {
		t.Errorf("recompute disagrees with cache: %s", qty)
	}
}

func TestApplyMovement_ConcurrentItemsDoNotBlockEachOther(t *testing.T) {
	l := newTestLedger(t)
	codes := []string{"P-1", "P-2", "P-3", "P-4"}
	for _, c := range codes {
		l.register(t, c, "0", "0")
	}

	var wg sync.WaitGroup
	for _, c := range codes {
		for range 25 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := l.apply(models.Inbound, c, "1.5"); err != nil {
					t.Errorf("inbound %s: %v", c, err)
				}
			}()
		}
	}
	wg.Wait()

	for _, c := range codes {
		if !l.quantity(t, c).Equal(dec("37.5")) {
			t.Errorf("%s: expected 37.5, got %s", c, l.quantity(t, c))
		}
	}
}

func TestApplyMovement_IdempotentRetry(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "KT-001", "5", "2")

	in := ledger.ApplyInput{ItemCode: "KT-001", Type: models.Outbound, Quantity: dec("2"), Actor: "op", IdempotencyKey: "req-1"}
	first, err := l.engine.ApplyMovement(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.engine.ApplyMovement(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	if first.ID != second.ID {
		t.Errorf("expected the committed movement back, got %s and %s", first.ID, second.ID)
	}
	if !l.quantity(t, "KT-001").Equal(dec("3")) {
		t.Errorf("expected quantity 3, got %s", l.quantity(t, "KT-001"))
	}

	in.Quantity = dec("1")
	_, err = l.engine.ApplyMovement(context.Background(), in)
	if !errors.Is(err, ledger.ErrValidation) {
		t.Errorf("expected key reuse for a different movement to be rejected, got %v", err)
	}
}

func TestApplyMovement_KeyInFlight(t *testing.T) {
	store := repo.NewInMemoryLedgerStore()
	guard := ledger.NewMemoryGuard()
	catalog := ledger.NewCatalog(store, zap.NewNop())
	engine := ledger.NewEngine(store, guard, zap.NewNop(), ledger.Options{RetryAttempts: 1})

	_, err := catalog.Register(context.Background(), ledger.RegisterInput{
		Code: "CR-002", Name: "Correia", Category: "Correias", Unit: "Unidades", InitialQuantity: dec("12"), Actor: "admin",
	})
	if err != nil {
		t.Fatal(err)
	}

	if ok, _ := guard.Acquire(context.Background(), "busy"); !ok {
		t.Fatal("could not take guard")
	}

	_, err = engine.ApplyMovement(context.Background(), ledger.ApplyInput{
		ItemCode: "CR-002", Type: models.Outbound, Quantity: dec("1"), Actor: "op", IdempotencyKey: "busy",
	})
	if !ledger.IsRetryable(err) {
		t.Fatalf("expected retryable TransientError, got %v", err)
	}

	item, _ := store.GetItem(context.Background(), "CR-002")
	if !item.Quantity.Equal(dec("12")) {
		t.Errorf("expected quantity 12, got %s", item.Quantity)
	}
}

func TestApplyMovement_OutOfOrder(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "JT-001", "8", "3")

	in := ledger.ApplyInput{ItemCode: "JT-001", Type: models.Inbound, Quantity: dec("1"), Actor: "import", Seq: 100}
	m, err := l.engine.ApplyMovement(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if m.Seq != 100 {
		t.Fatalf("expected seq 100, got %d", m.Seq)
	}

	in.Seq = 50
	_, err = l.engine.ApplyMovement(context.Background(), in)
	if !errors.Is(err, ledger.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if !l.quantity(t, "JT-001").Equal(dec("9")) {
		t.Errorf("expected quantity 9, got %s", l.quantity(t, "JT-001"))
	}

	next, err := l.apply(models.Inbound, "JT-001", "1")
	if err != nil {
		t.Fatal(err)
	}
	if next.Seq <= 100 {
		t.Errorf("expected assigned seq after 100, got %d", next.Seq)
	}
}

type flakyStore struct {
	*repo.InMemoryLedgerStore
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyStore) WithItemLock(ctx context.Context, code string, fn func(tx repo.LedgerTx) error) error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return errors.New("connection reset by peer")
	}
	return f.InMemoryLedgerStore.WithItemLock(ctx, code, fn)
}

// lostAckStore commits and then reports a failure once, like a connection
// dropped after COMMIT.
type lostAckStore struct {
	*repo.InMemoryLedgerStore
	lost atomic.Bool
}

func (s *lostAckStore) WithItemLock(ctx context.Context, code string, fn func(tx repo.LedgerTx) error) error {
	err := s.InMemoryLedgerStore.WithItemLock(ctx, code, fn)
	if err == nil && !s.lost.Swap(true) {
		return errors.New("connection reset after commit")
	}
	return err
}

func TestApplyMovement_RetriesTransientFailures(t *testing.T) {
	store := &flakyStore{InMemoryLedgerStore: repo.NewInMemoryLedgerStore()}
	catalog := ledger.NewCatalog(store, zap.NewNop())
	engine := ledger.NewEngine(store, nil, zap.NewNop(), ledger.Options{RetryAttempts: 3, RetryBackoff: 1})

	if _, err := catalog.Register(context.Background(), ledger.RegisterInput{
		Code: "OL-001", Name: "Óleo", Category: "Lubrificantes", Unit: "Litros", InitialQuantity: dec("10"), Actor: "admin",
	}); err != nil {
		t.Fatal(err)
	}

	store.failures.Store(2)
	if _, err := engine.ApplyMovement(context.Background(), ledger.ApplyInput{
		ItemCode: "OL-001", Type: models.Outbound, Quantity: dec("4"), Actor: "op",
	}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if store.calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", store.calls.Load())
	}

	store.failures.Store(5)
	_, err := engine.ApplyMovement(context.Background(), ledger.ApplyInput{
		ItemCode: "OL-001", Type: models.Outbound, Quantity: dec("1"), Actor: "op",
	})
	var te *ledger.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError after exhausting retries, got %v", err)
	}

	item, _ := store.GetItem(context.Background(), "OL-001")
	if !item.Quantity.Equal(dec("6")) {
		t.Errorf("expected quantity 6, got %s", item.Quantity)
	}
}

func TestApplyMovement_RetryAfterLostAckDoesNotDoubleApply(t *testing.T) {
	store := &lostAckStore{InMemoryLedgerStore: repo.NewInMemoryLedgerStore()}
	catalog := ledger.NewCatalog(store, zap.NewNop())
	engine := ledger.NewEngine(store, nil, zap.NewNop(), ledger.Options{RetryAttempts: 3, RetryBackoff: 1})

	if _, err := catalog.Register(context.Background(), ledger.RegisterInput{
		Code: "FL-001", Name: "Filtro", Category: "Filtros", Unit: "Unidades", InitialQuantity: dec("25"), Actor: "admin",
	}); err != nil {
		t.Fatal(err)
	}

	m, err := engine.ApplyMovement(context.Background(), ledger.ApplyInput{
		ItemCode: "FL-001", Type: models.Outbound, Quantity: dec("5"), Actor: "op",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	item, _ := store.GetItem(context.Background(), "FL-001")
	if !item.Quantity.Equal(dec("20")) {
		t.Errorf("expected quantity 20, got %s", item.Quantity)
	}
	if !m.BalanceAfter.Equal(dec("20")) {
		t.Errorf("expected the committed movement, got %+v", m)
	}
}

type recordingAlerter struct {
	mu    sync.Mutex
	codes []string
}

func (r *recordingAlerter) LowStock(ctx context.Context, item models.Item, m models.Movement) {
	r.mu.Lock()
	r.codes = append(r.codes, item.Code)
	r.mu.Unlock()
}

func TestApplyMovement_AlertsBelowThreshold(t *testing.T) {
	l := newTestLedger(t)
	alerts := &recordingAlerter{}
	l.engine.SetAlerter(alerts)
	l.register(t, "OL-001", "60", "50")

	if _, err := l.apply(models.Outbound, "OL-001", "5"); err != nil {
		t.Fatal(err)
	}
	if len(alerts.codes) != 0 {
		t.Fatalf("unexpected alert at 55: %v", alerts.codes)
	}
	if _, err := l.apply(models.Outbound, "OL-001", "10"); err != nil {
		t.Fatal(err)
	}
	if len(alerts.codes) != 1 || alerts.codes[0] != "OL-001" {
		t.Fatalf("expected one alert for OL-001, got %v", alerts.codes)
	}
}

func TestApplyMovement_SeqLimit(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "JT-002", "5", "1")
	l.register(t, "JT-003", "5", "1")

	for _, seq := range []int64{math.MaxInt64, repo.MaxSeq + 1, -7} {
		_, err := l.engine.ApplyMovement(context.Background(), ledger.ApplyInput{
			ItemCode: "JT-002", Type: models.Inbound, Quantity: dec("1"), Actor: "import", Seq: seq,
		})
		var verrs ledger.ValidationErrors
		if !errors.As(err, &verrs) || verrs[0].Field != "seq" {
			t.Fatalf("seq %d: expected a seq validation error, got %v", seq, err)
		}
	}

	pinned, err := l.engine.ApplyMovement(context.Background(), ledger.ApplyInput{
		ItemCode: "JT-002", Type: models.Inbound, Quantity: dec("1"), Actor: "import", Seq: repo.MaxSeq,
	})
	if err != nil {
		t.Fatalf("seq at the limit: %v", err)
	}

	for _, code := range []string{"JT-003", "JT-002"} {
		m, err := l.apply(models.Inbound, code, "1")
		if err != nil {
			t.Fatal(err)
		}
		if m.Seq <= pinned.Seq {
			t.Errorf("%s: assigned seq %d should follow %d", code, m.Seq, pinned.Seq)
		}
	}
	if n := l.movementCount(t, "JT-002"); n != 3 {
		t.Errorf("expected 3 movements on JT-002, got %d", n)
	}
}

func TestApplyMovement_SeqOrderIsPerItem(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "JT-004", "5", "1")
	l.register(t, "JT-005", "5", "1")

	in := ledger.ApplyInput{ItemCode: "JT-004", Type: models.Inbound, Quantity: dec("1"), Actor: "import", Seq: 500}
	if _, err := l.engine.ApplyMovement(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	in.ItemCode, in.Seq = "JT-005", 50
	m, err := l.engine.ApplyMovement(context.Background(), in)
	if err != nil {
		t.Fatalf("expected seq 50 on JT-005 to be accepted, got %v", err)
	}
	if m.Seq != 50 {
		t.Errorf("expected seq 50, got %d", m.Seq)
	}

	in.Seq = 500
	if _, err := l.engine.ApplyMovement(context.Background(), in); !errors.Is(err, ledger.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder for a seq held by JT-004, got %v", err)
	}
}

func TestApplyMovement_UnknownItemBeforeQuantity(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.apply(models.Inbound, "ZZ-404", "0")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyMovement_RejectsUnstorableInput(t *testing.T) {
	l := newTestLedger(t)
	l.register(t, "OL-009", "10", "1")

	tests := []struct {
		name  string
		in    ledger.ApplyInput
		want  error
		field string
	}{
		{"too many decimal places", ledger.ApplyInput{Type: models.Inbound, Quantity: dec("1.23456"), Actor: "op"}, ledger.ErrInvalidQuantity, "quantity"},
		{"rounds to zero", ledger.ApplyInput{Type: models.Inbound, Quantity: dec("0.00001"), Actor: "op"}, ledger.ErrInvalidQuantity, "quantity"},
		{"too large", ledger.ApplyInput{Type: models.Inbound, Quantity: dec("100000000000000"), Actor: "op"}, ledger.ErrInvalidQuantity, "quantity"},
		{"long actor", ledger.ApplyInput{Type: models.Inbound, Quantity: dec("1"), Actor: strings.Repeat("a", 51)}, ledger.ErrValidation, "actor"},
		{"long key", ledger.ApplyInput{Type: models.Inbound, Quantity: dec("1"), Actor: "op", IdempotencyKey: strings.Repeat("k", 201)}, ledger.ErrValidation, "idempotency_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.ItemCode = "OL-009"
			_, err := l.engine.ApplyMovement(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var (
				qe    *ledger.InvalidQuantityError
				verrs ledger.ValidationErrors
			)
			switch {
			case errors.As(err, &qe) && qe.Field != tt.field:
				t.Errorf("expected field %s, got %s", tt.field, qe.Field)
			case errors.As(err, &verrs) && verrs[0].Field != tt.field:
				t.Errorf("expected field %s, got %s", tt.field, verrs[0].Field)
			}
			if ledger.IsRetryable(err) {
				t.Errorf("input errors must not be retryable: %v", err)
			}
		})
	}

	m, err := l.apply(models.Inbound, "OL-009", "1.2345")
	if err != nil {
		t.Fatalf("four decimal places must be accepted: %v", err)
	}
	if !m.BalanceAfter.Equal(dec("11.2345")) {
		t.Errorf("expected balance 11.2345, got %s", m.BalanceAfter)
	}
	if n := l.movementCount(t, "OL-009"); n != 2 {
		t.Errorf("rejected input reached the log: %d movements", n)
	}
}

// rejectingStore refuses every write the way Postgres does for a value that
// does not fit its column.
type rejectingStore struct {
	*repo.InMemoryLedgerStore
	calls atomic.Int32
}

func (s *rejectingStore) WithItemLock(ctx context.Context, code string, fn func(tx repo.LedgerTx) error) error {
	s.calls.Add(1)
	return &repo.RejectedValueError{Column: "reason", Message: "value too long for type character varying(50)"}
}

func TestApplyMovement_RejectedValueIsNotRetried(t *testing.T) {
	store := &rejectingStore{InMemoryLedgerStore: repo.NewInMemoryLedgerStore()}
	engine := ledger.NewEngine(store, nil, zap.NewNop(), ledger.Options{RetryAttempts: 3, RetryBackoff: 1})

	_, err := engine.ApplyMovement(context.Background(), ledger.ApplyInput{
		ItemCode: "OL-001", Type: models.Inbound, Quantity: dec("1"), Actor: "op",
	})
	var verrs ledger.ValidationErrors
	if !errors.As(err, &verrs) || verrs[0].Field != "reason" {
		t.Fatalf("expected a validation error on reason, got %v", err)
	}
	if store.calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", store.calls.Load())
	}
}
