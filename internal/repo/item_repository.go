package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
)

var (
	ErrItemNotFound            = errors.New("item not found")
	ErrDuplicatedValueUnique   = errors.New("duplicated value for unique field")
	ErrInvalidQuantityChange   = errors.New("quantity change would make stock negative")
	ErrOutOfOrder              = errors.New("movement sequence out of order")
	ErrSeqOutOfRange           = errors.New("movement sequence out of range")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	ErrMovementNotFound        = errors.New("movement not found")
)

// RejectedValueError reports a value the database refused to store, such as
// a string longer than its column or a number outside its precision.
type RejectedValueError struct {
	Column  string
	Message string
}

func (e *RejectedValueError) Error() string {
	if e.Column == "" {
		return "value rejected: " + e.Message
	}
	return fmt.Sprintf("value rejected for %s: %s", e.Column, e.Message)
}

type ItemFilter struct {
	Name           string
	Category       string
	LowStock       bool
	IncludeRetired bool
	Offset         *int
	Limit          *int
}

// ItemRepository holds the catalog side of the ledger store. Quantity is
// never written through it except at creation; see LedgerStore.WithItemLock.
type ItemRepository interface {
	// CreateItem stores the item and, when opening is not nil, its opening
	// movement in the same unit of work.
	CreateItem(ctx context.Context, item models.Item, opening *models.Movement) (models.Item, error)
	GetItem(ctx context.Context, code string) (models.Item, error)
	// UpdateItem overwrites descriptive fields only.
	UpdateItem(ctx context.Context, item models.Item) (models.Item, error)
	RetireItem(ctx context.Context, code string) (models.Item, error)
	FilterItems(ctx context.Context, f ItemFilter) ([]models.Item, int, error)
	// AllItems returns every item, retired included, ordered by code.
	AllItems(ctx context.Context) ([]models.Item, error)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func paginate[T any](all []T, offset, limit *int) []T {
	if offset != nil && *offset > len(all) {
		return []T{}
	}

	start := 0
	if offset != nil {
		start = clamp(*offset, 0, len(all))
	}

	end := len(all)
	if limit != nil && *limit > 0 {
		end = clamp(start+*limit, start, len(all))
	}

	return all[start:end]
}
