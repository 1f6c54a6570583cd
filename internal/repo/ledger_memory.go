package repo

import (
	"cmp"
	"context"
	"iter"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/shopspring/decimal"
)

// InMemoryLedgerStore is an in-memory implementation of LedgerStore.
// Mutations of one item are serialized by a per-item mutex; mu only guards
// the maps, so items never wait on each other.
type InMemoryLedgerStore struct {
	mu        sync.RWMutex
	items     map[string]models.Item
	movements map[string][]models.Movement
	keys      map[string]keyRef
	seqs      map[int64]struct{}
	lastSeq   int64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

type keyRef struct {
	code string
	idx  int
}

var _ LedgerStore = (*InMemoryLedgerStore)(nil)

// NewInMemoryLedgerStore creates an empty store.
func NewInMemoryLedgerStore() *InMemoryLedgerStore {
	return &InMemoryLedgerStore{
		items:     map[string]models.Item{},
		movements: map[string][]models.Movement{},
		keys:      map[string]keyRef{},
		seqs:      map[int64]struct{}{},
		locks:     map[string]*sync.Mutex{},
	}
}

func (s *InMemoryLedgerStore) itemLock(code string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[code]
	if !ok {
		l = &sync.Mutex{}
		s.locks[code] = l
	}
	return l
}

// nextSeq reserves a sequence number; it must be called with mu held. A
// requested number must be free and within MaxSeq. The per-item order is
// checked by the caller.
func (s *InMemoryLedgerStore) nextSeq(requested int64) (int64, error) {
	if requested == 0 {
		if s.lastSeq == math.MaxInt64 {
			return 0, ErrSeqOutOfRange
		}
		s.lastSeq++
		s.seqs[s.lastSeq] = struct{}{}
		return s.lastSeq, nil
	}
	if requested < 0 || requested > MaxSeq {
		return 0, ErrSeqOutOfRange
	}
	if _, used := s.seqs[requested]; used {
		return 0, ErrOutOfOrder
	}
	s.seqs[requested] = struct{}{}
	s.lastSeq = max(s.lastSeq, requested)
	return requested, nil
}

// releaseSeqs frees the numbers of movements that were never committed.
func (s *InMemoryLedgerStore) releaseSeqs(staged []models.Movement) {
	if len(staged) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range staged {
		delete(s.seqs, m.Seq)
	}
}

func (s *InMemoryLedgerStore) CreateItem(ctx context.Context, item models.Item, opening *models.Movement) (models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.Code]; exists {
		return models.Item{}, ErrDuplicatedValueUnique
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = item.CreatedAt
	item.Version = 1

	if opening != nil {
		if opening.IdempotencyKey != "" {
			if _, used := s.keys[opening.IdempotencyKey]; used {
				return models.Item{}, ErrDuplicateIdempotencyKey
			}
		}
		seq, err := s.nextSeq(opening.Seq)
		if err != nil {
			return models.Item{}, err
		}
		m := *opening
		m.Seq = seq
		m.ItemCode = item.Code
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.RecordedAt = now
		s.movements[item.Code] = []models.Movement{m}
		if m.IdempotencyKey != "" {
			s.keys[m.IdempotencyKey] = keyRef{code: item.Code, idx: 0}
		}
		*opening = m
	}

	s.items[item.Code] = item
	return item, nil
}

func (s *InMemoryLedgerStore) GetItem(ctx context.Context, code string) (models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[code]
	if !ok {
		return models.Item{}, ErrItemNotFound
	}
	return item, nil
}

func (s *InMemoryLedgerStore) UpdateItem(ctx context.Context, item models.Item) (models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[item.Code]
	if !ok {
		return models.Item{}, ErrItemNotFound
	}

	current.Name = item.Name
	current.Category = item.Category
	current.Unit = item.Unit
	current.MinThreshold = item.MinThreshold
	current.UnitValue = item.UnitValue
	current.Location = item.Location
	current.Supplier = item.Supplier
	current.Description = item.Description
	current.UpdatedAt = time.Now().UTC()

	s.items[item.Code] = current
	return current, nil
}

func (s *InMemoryLedgerStore) RetireItem(ctx context.Context, code string) (models.Item, error) {
	l := s.itemLock(code)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[code]
	if !ok {
		return models.Item{}, ErrItemNotFound
	}
	item.Retired = true
	item.UpdatedAt = time.Now().UTC()
	s.items[code] = item
	return item, nil
}

func matchesItemFilter(it models.Item, f ItemFilter) bool {
	if it.Retired && !f.IncludeRetired {
		return false
	}
	if f.Name != "" && !strings.Contains(strings.ToLower(it.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(it.Category, f.Category) {
		return false
	}
	if f.LowStock && !it.LowStock() {
		return false
	}
	return true
}

func (s *InMemoryLedgerStore) FilterItems(ctx context.Context, f ItemFilter) ([]models.Item, int, error) {
	all, err := s.AllItems(ctx)
	if err != nil {
		return nil, 0, err
	}

	var filtered []models.Item
	for _, it := range all {
		if matchesItemFilter(it, f) {
			filtered = append(filtered, it)
		}
	}

	return paginate(filtered, f.Offset, f.Limit), len(filtered), nil
}

func (s *InMemoryLedgerStore) AllItems(ctx context.Context) ([]models.Item, error) {
	s.mu.RLock()
	items := make([]models.Item, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, it)
	}
	s.mu.RUnlock()

	slices.SortFunc(items, func(a, b models.Item) int { return cmp.Compare(a.Code, b.Code) })
	return items, nil
}

func compareOccurrence(a, b models.Movement) int {
	if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

func (s *InMemoryLedgerStore) snapshot(code string) ([]models.Movement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.items[code]
	return slices.Clone(s.movements[code]), ok
}

func (s *InMemoryLedgerStore) ListFor(ctx context.Context, code string, order SortOrder) iter.Seq2[models.Movement, error] {
	return func(yield func(models.Movement, error) bool) {
		ms, ok := s.snapshot(code)
		if !ok {
			yield(models.Movement{}, ErrItemNotFound)
			return
		}

		slices.SortStableFunc(ms, compareOccurrence)
		if order == Descending {
			slices.Reverse(ms)
		}

		for _, m := range ms {
			if err := ctx.Err(); err != nil {
				yield(models.Movement{}, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (s *InMemoryLedgerStore) FilterMovements(ctx context.Context, code string, mf MovementFilter) ([]models.Movement, int, error) {
	ms, ok := s.snapshot(code)
	if !ok {
		return nil, 0, ErrItemNotFound
	}

	var filtered []models.Movement
	for _, m := range ms {
		if mf.Since != nil && m.OccurredAt.Before(*mf.Since) {
			continue
		}
		if mf.Until != nil && m.OccurredAt.After(*mf.Until) {
			continue
		}
		if mf.Type != "" && m.Type != mf.Type {
			continue
		}
		filtered = append(filtered, m)
	}

	slices.SortStableFunc(filtered, func(a, b models.Movement) int { return compareOccurrence(b, a) })

	limit := pageLimit(mf.Limit)
	return paginate(filtered, mf.Offset, &limit), len(filtered), nil
}

func pageLimit(limit *int) int {
	if limit != nil && *limit > 0 {
		return min(*limit, defaultLimit)
	}
	return defaultLimit
}

func (s *InMemoryLedgerStore) MovementByKey(ctx context.Context, key string) (models.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.keys[key]
	if !ok {
		return models.Movement{}, ErrMovementNotFound
	}
	return s.movements[ref.code][ref.idx], nil
}

func (s *InMemoryLedgerStore) WithItemLock(ctx context.Context, code string, fn func(tx LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.itemLock(code)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	item, ok := s.items[code]
	committed := s.movements[code]
	s.mu.RUnlock()
	if !ok {
		return ErrItemNotFound
	}

	tx := &memoryLedgerTx{store: s, item: item, committed: committed, qty: item.Quantity}
	err := fn(tx)
	if err == nil {
		err = s.commit(tx)
	}
	if err != nil {
		s.releaseSeqs(tx.staged)
	}
	return err
}

func (s *InMemoryLedgerStore) commit(tx *memoryLedgerTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := tx.item.Code
	for _, m := range tx.staged {
		if m.IdempotencyKey == "" {
			continue
		}
		if _, used := s.keys[m.IdempotencyKey]; used {
			return ErrDuplicateIdempotencyKey
		}
	}

	for _, m := range tx.staged {
		s.movements[code] = append(s.movements[code], m)
		if m.IdempotencyKey != "" {
			s.keys[m.IdempotencyKey] = keyRef{code: code, idx: len(s.movements[code]) - 1}
		}
	}

	if tx.qtySet {
		item := s.items[code]
		item.Quantity = tx.qty
		item.Version++
		item.UpdatedAt = time.Now().UTC()
		s.items[code] = item
	}
	return nil
}

type memoryLedgerTx struct {
	store     *InMemoryLedgerStore
	item      models.Item
	committed []models.Movement
	staged    []models.Movement
	qty       decimal.Decimal
	qtySet    bool
}

func (tx *memoryLedgerTx) Item() models.Item {
	item := tx.item
	item.Quantity = tx.qty
	return item
}

func (tx *memoryLedgerTx) Movements() iter.Seq2[models.Movement, error] {
	return func(yield func(models.Movement, error) bool) {
		for _, m := range tx.committed {
			if !yield(m, nil) {
				return
			}
		}
		for _, m := range tx.staged {
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (tx *memoryLedgerTx) lastSeq() int64 {
	if n := len(tx.staged); n > 0 {
		return tx.staged[n-1].Seq
	}
	if n := len(tx.committed); n > 0 {
		return tx.committed[n-1].Seq
	}
	return 0
}

func (tx *memoryLedgerTx) keyUsed(key string) bool {
	for _, m := range tx.staged {
		if m.IdempotencyKey == key {
			return true
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, used := tx.store.keys[key]
	return used
}

func (tx *memoryLedgerTx) Append(m models.Movement) (models.Movement, error) {
	if m.Seq < 0 || m.Seq > MaxSeq {
		return models.Movement{}, ErrSeqOutOfRange
	}
	if m.Seq != 0 && m.Seq <= tx.lastSeq() {
		return models.Movement{}, ErrOutOfOrder
	}
	if m.IdempotencyKey != "" && tx.keyUsed(m.IdempotencyKey) {
		return models.Movement{}, ErrDuplicateIdempotencyKey
	}

	tx.store.mu.Lock()
	seq, err := tx.store.nextSeq(m.Seq)
	tx.store.mu.Unlock()
	if err != nil {
		return models.Movement{}, err
	}

	m.Seq = seq
	m.ItemCode = tx.item.Code
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.RecordedAt = time.Now().UTC()

	tx.staged = append(tx.staged, m)
	return m, nil
}

func (tx *memoryLedgerTx) SetQuantity(q decimal.Decimal) error {
	if q.IsNegative() {
		return ErrInvalidQuantityChange
	}
	tx.qty = q
	tx.qtySet = true
	return nil
}
