package repo

import (
	"context"
	"iter"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/shopspring/decimal"
)

type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

type MovementFilter struct {
	Since  *time.Time
	Until  *time.Time
	Type   models.MovementType
	Offset *int
	Limit  *int
}

const defaultLimit = 100

// MaxSeq is the largest sequence number a caller may pin. Numbers above it
// stay free for the store to assign.
const MaxSeq int64 = 1 << 62

type MovementRepository interface {
	// ListFor yields the movements of one item ordered by occurrence time.
	// Every range over the returned sequence reads the log again.
	ListFor(ctx context.Context, code string, order SortOrder) iter.Seq2[models.Movement, error]
	// FilterMovements returns one page of an item's movements, newest first,
	// and the total number of movements matching the filter.
	FilterMovements(ctx context.Context, code string, mf MovementFilter) ([]models.Movement, int, error)
	MovementByKey(ctx context.Context, key string) (models.Movement, error)
}

// LedgerTx is the view of one item handed to WithItemLock callbacks. Nothing
// done through it is visible to others until the callback returns nil.
type LedgerTx interface {
	Item() models.Item
	// Movements yields the item's movements in insertion order, including
	// those appended earlier in the same transaction.
	Movements() iter.Seq2[models.Movement, error]
	// Append adds m to the log. A zero Seq is assigned by the store. A
	// non-zero Seq must be greater than the item's last one and not used by
	// any other movement (ErrOutOfOrder), and at most MaxSeq
	// (ErrSeqOutOfRange).
	Append(m models.Movement) (models.Movement, error)
	SetQuantity(q decimal.Decimal) error
}

type LedgerStore interface {
	ItemRepository
	MovementRepository
	// WithItemLock runs fn while holding the write lock of one item. The
	// appended movements and the new quantity are committed together, or
	// not at all when fn returns an error.
	WithItemLock(ctx context.Context, code string, fn func(tx LedgerTx) error) error
}
