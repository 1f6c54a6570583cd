package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errInFlight = errors.New("a movement with this idempotency key is being applied")

type ApplyInput struct {
	ItemCode       string
	Type           models.MovementType
	Quantity       decimal.Decimal
	Actor          string
	Reason         string
	OccurredAt     time.Time
	IdempotencyKey string
	// Seq pins the log position when replaying an external log. Zero lets
	// the store assign the next one.
	Seq int64
}

// StockAlerter is told about every committed movement that leaves its item
// below the minimum threshold.
type StockAlerter interface {
	LowStock(ctx context.Context, item models.Item, m models.Movement)
}

type Options struct {
	RetryAttempts int
	RetryBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 50 * time.Millisecond
	}
	return o
}

// Engine applies movements and keeps each item's cached quantity equal to
// the sum of its log.
type Engine struct {
	store   repo.LedgerStore
	guard   Guard
	alerter StockAlerter
	log     *zap.Logger
	opts    Options
}

func NewEngine(store repo.LedgerStore, guard Guard, log *zap.Logger, opts Options) *Engine {
	if guard == nil {
		guard = NewMemoryGuard()
	}
	return &Engine{store: store, guard: guard, log: log, opts: opts.withDefaults()}
}

func (e *Engine) SetAlerter(a StockAlerter) {
	e.alerter = a
}

// Column limits of the movement log.
const (
	maxActorLen = 50
	maxKeyLen   = 200
)

// validateApply checks the fields that do not depend on the item. The
// quantity is checked once the item is loaded.
func validateApply(in ApplyInput) error {
	var errs ValidationErrors
	if in.ItemCode == "" {
		errs = append(errs, FieldError{Field: "item_code", Description: "is required"})
	}
	if !in.Type.Valid() {
		errs = append(errs, FieldError{Field: "type", Description: "must be one of: inbound outbound"})
	}
	switch {
	case in.Actor == "":
		errs = append(errs, FieldError{Field: "actor", Description: "is required"})
	case len(in.Actor) > maxActorLen:
		errs = append(errs, FieldError{Field: "actor", Description: fmt.Sprintf("must be at most %d characters", maxActorLen)})
	}
	if len(in.IdempotencyKey) > maxKeyLen {
		errs = append(errs, FieldError{Field: "idempotency_key", Description: fmt.Sprintf("must be at most %d characters", maxKeyLen)})
	}
	if in.Seq < 0 || in.Seq > repo.MaxSeq {
		errs = append(errs, FieldError{Field: "seq", Description: fmt.Sprintf("must be between 1 and %d", repo.MaxSeq)})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return &InvalidQuantityError{Field: "quantity", Value: q, Reason: "must be greater than zero"}
	}
	return storable("quantity", q, quantityPlaces)
}

func sameRequest(m models.Movement, in ApplyInput) bool {
	return m.ItemCode == in.ItemCode && m.Type == in.Type && m.Quantity.Equal(in.Quantity)
}

func (e *Engine) replayed(m models.Movement, in ApplyInput) (models.Movement, error) {
	if !sameRequest(m, in) {
		return models.Movement{}, ValidationErrors{{Field: "idempotency_key", Description: "was already used for a different movement"}}
	}
	return m, nil
}

// ApplyMovement records one movement and updates the item's quantity
// atomically. Nothing is written when it fails. Calls carrying an
// idempotency key already committed return the committed movement.
func (e *Engine) ApplyMovement(ctx context.Context, in ApplyInput) (models.Movement, error) {
	if err := validateApply(in); err != nil {
		return models.Movement{}, err
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	key := in.IdempotencyKey
	if key == "" {
		// retries below stay safe only if every attempt carries the same key
		key = uuid.NewString()
	} else {
		prior, err := e.store.MovementByKey(ctx, key)
		if err == nil {
			return e.replayed(prior, in)
		}
		if !errors.Is(err, repo.ErrMovementNotFound) {
			return models.Movement{}, storageError("look up idempotency key", in.ItemCode, err)
		}

		acquired, err := e.guard.Acquire(ctx, key)
		if err != nil {
			e.log.Warn("idempotency guard unavailable", zap.String("key", key), zap.Error(err))
		} else if !acquired {
			return models.Movement{}, &TransientError{Op: "apply movement", Err: errInFlight}
		} else {
			defer func() {
				if err := e.guard.Release(context.WithoutCancel(ctx), key); err != nil {
					e.log.Warn("could not release idempotency guard", zap.String("key", key), zap.Error(err))
				}
			}()
		}
	}

	var (
		committed models.Movement
		after     models.Item
	)
	err := e.retry(ctx, "apply movement", func() error {
		m, item, err := e.applyOnce(ctx, in, key)
		if errors.Is(err, repo.ErrDuplicateIdempotencyKey) {
			prior, lookupErr := e.store.MovementByKey(ctx, key)
			if lookupErr != nil {
				return storageError("look up idempotency key", in.ItemCode, lookupErr)
			}
			committed, err = e.replayed(prior, in)
			return err
		}
		if err != nil {
			return storageError("apply movement", in.ItemCode, err)
		}
		committed, after = m, item
		return nil
	})
	if err != nil {
		return models.Movement{}, err
	}

	e.log.Debug("movement applied",
		zap.String("code", committed.ItemCode),
		zap.String("type", string(committed.Type)),
		zap.String("quantity", committed.Quantity.String()),
		zap.String("balance", committed.BalanceAfter.String()),
		zap.Int64("seq", committed.Seq))

	if after.Code != "" && after.LowStock() {
		e.log.Warn("item below minimum threshold",
			zap.String("code", after.Code),
			zap.String("name", after.Name),
			zap.String("quantity", after.Quantity.String()),
			zap.String("min_threshold", after.MinThreshold.String()))
		if e.alerter != nil {
			e.alerter.LowStock(ctx, after, committed)
		}
	}
	return committed, nil
}

// MovementByKey returns the committed movement carrying key.
func (e *Engine) MovementByKey(ctx context.Context, key string) (models.Movement, error) {
	m, err := e.store.MovementByKey(ctx, key)
	if errors.Is(err, repo.ErrMovementNotFound) {
		return models.Movement{}, fmt.Errorf("key %q: %w", key, ErrNoSuchMovement)
	}
	if err != nil {
		return models.Movement{}, storageError("look up idempotency key", "", err)
	}
	return m, nil
}

func (e *Engine) applyOnce(ctx context.Context, in ApplyInput, key string) (models.Movement, models.Item, error) {
	var (
		out  models.Movement
		item models.Item
	)
	err := e.store.WithItemLock(ctx, in.ItemCode, func(tx repo.LedgerTx) error {
		current := tx.Item()
		if err := validateQuantity(in.Quantity); err != nil {
			return err
		}
		if current.Retired {
			return &RetiredError{Code: current.Code}
		}

		delta := in.Quantity
		if in.Type == models.Outbound {
			delta = delta.Neg()
		}
		next := current.Quantity.Add(delta)
		if next.IsNegative() {
			return &InsufficientStockError{Code: current.Code, Requested: in.Quantity, Available: current.Quantity}
		}
		if err := storable("quantity", next, quantityPlaces); err != nil {
			return &InvalidQuantityError{Field: "quantity", Value: in.Quantity, Reason: "would raise the balance above the largest storable quantity"}
		}

		m, err := tx.Append(models.Movement{
			Seq:            in.Seq,
			Type:           in.Type,
			Quantity:       in.Quantity,
			BalanceAfter:   next,
			OccurredAt:     in.OccurredAt,
			Actor:          in.Actor,
			Reason:         in.Reason,
			IdempotencyKey: key,
		})
		if err != nil {
			return err
		}
		if err := tx.SetQuantity(next); err != nil {
			return err
		}

		out = m
		item = current
		item.Quantity = next
		return nil
	})
	return out, item, err
}

// retry runs fn until it succeeds, fails with a non-transient error or the
// attempts are used up. The wait doubles after every attempt.
func (e *Engine) retry(ctx context.Context, op string, fn func() error) error {
	backoff := e.opts.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if !IsRetryable(err) || attempt >= e.opts.RetryAttempts {
			return err
		}

		e.log.Warn("transient ledger failure, retrying",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff *= 2
	}
}
