package ledger

import (
	"errors"
	"fmt"

	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("item not found")
	ErrDuplicateCode     = errors.New("item code already registered")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrTransient         = errors.New("transient storage failure")
	ErrDriftDetected     = errors.New("cached quantity drifted from ledger")
	ErrRetired           = errors.New("item is retired")
	ErrOutOfOrder        = errors.New("movement out of order")
	ErrNoSuchMovement    = errors.New("movement not found")
)

type NotFoundError struct {
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item %q not found", e.Code)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type DuplicateCodeError struct {
	Code string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("item code %q already registered", e.Code)
}

func (e *DuplicateCodeError) Is(target error) bool { return target == ErrDuplicateCode }

// InvalidQuantityError names the offending input field.
type InvalidQuantityError struct {
	Field  string
	Value  decimal.Decimal
	Reason string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidQuantityError) Is(target error) bool { return target == ErrInvalidQuantity }

type InsufficientStockError struct {
	Code      string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %s, available %s", e.Code, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// TransientError wraps a storage failure that is safe to retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func (e *TransientError) Is(target error) bool { return target == ErrTransient }

type DriftDetectedError struct {
	Code   string
	Cached decimal.Decimal
	Ledger decimal.Decimal
}

func (e *DriftDetectedError) Error() string {
	return fmt.Sprintf("item %q: cached quantity %s, ledger says %s", e.Code, e.Cached, e.Ledger)
}

func (e *DriftDetectedError) Is(target error) bool { return target == ErrDriftDetected }

type RetiredError struct {
	Code string
}

func (e *RetiredError) Error() string {
	return fmt.Sprintf("item %q is retired", e.Code)
}

func (e *RetiredError) Is(target error) bool { return target == ErrRetired }

// IsRetryable reports whether err is worth retrying with the same input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrDuplicateCode, ErrInvalidQuantity, ErrInsufficientStock,
		ErrTransient, ErrDriftDetected, ErrRetired, ErrOutOfOrder, ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// storageError translates store failures into ledger errors. Anything the
// store does not name is treated as transient.
func storageError(op, code string, err error) error {
	var rejected *repo.RejectedValueError
	switch {
	case err == nil:
		return nil
	case isDomainError(err):
		return err
	case errors.Is(err, repo.ErrItemNotFound):
		return &NotFoundError{Code: code}
	case errors.Is(err, repo.ErrDuplicatedValueUnique):
		return &DuplicateCodeError{Code: code}
	case errors.Is(err, repo.ErrOutOfOrder):
		return fmt.Errorf("%s: %w", op, ErrOutOfOrder)
	case errors.Is(err, repo.ErrSeqOutOfRange):
		return ValidationErrors{{Field: "seq", Description: fmt.Sprintf("must be between 1 and %d", repo.MaxSeq)}}
	case errors.As(err, &rejected):
		field := rejected.Column
		if field == "" {
			field = "value"
		}
		return ValidationErrors{{Field: field, Description: rejected.Message}}
	case errors.Is(err, repo.ErrInvalidQuantityChange):
		return &InvalidQuantityError{Field: "quantity", Reason: err.Error()}
	}
	return &TransientError{Op: op, Err: err}
}
