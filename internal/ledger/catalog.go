package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RegisterInput struct {
	Code            string          `json:"code" validate:"required,max=20,printascii"`
	Name            string          `json:"name" validate:"required,max=100"`
	Category        string          `json:"category" validate:"required,max=50"`
	Unit            string          `json:"unit" validate:"required,max=20"`
	MinThreshold    decimal.Decimal `json:"min_threshold"`
	UnitValue       decimal.Decimal `json:"unit_value"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	Location        string          `json:"location" validate:"max=50"`
	Supplier        string          `json:"supplier" validate:"max=100"`
	Description     string          `json:"description"`
	Actor           string          `json:"actor" validate:"required,max=50"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// UpdateInput carries the descriptive fields of an item. Quantity can only
// change through movements.
type UpdateInput struct {
	Name         string          `json:"name" validate:"required,max=100"`
	Category     string          `json:"category" validate:"required,max=50"`
	Unit         string          `json:"unit" validate:"required,max=20"`
	MinThreshold decimal.Decimal `json:"min_threshold"`
	UnitValue    decimal.Decimal `json:"unit_value"`
	Location     string          `json:"location" validate:"max=50"`
	Supplier     string          `json:"supplier" validate:"max=100"`
	Description  string          `json:"description"`
}

const openingReason = "opening balance"

// Catalog registers and describes items.
type Catalog struct {
	store    repo.LedgerStore
	validate *validator.Validate
	log      *zap.Logger
}

func NewCatalog(store repo.LedgerStore, log *zap.Logger) *Catalog {
	return &Catalog{store: store, validate: NewValidator(), log: log}
}

// Stored amounts are NUMERIC(18,4) for quantities and NUMERIC(18,2) for
// unit values.
const (
	quantityPlaces  = 4
	unitValuePlaces = 2
	numericDigits   = 18
)

func notNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return &InvalidQuantityError{Field: field, Value: v, Reason: "must not be negative"}
	}
	return nil
}

// storable rejects amounts with more decimal places than the column keeps,
// or too many integer digits to fit it.
func storable(field string, v decimal.Decimal, places int32) error {
	if !v.Equal(v.Truncate(places)) {
		return &InvalidQuantityError{Field: field, Value: v, Reason: fmt.Sprintf("must have at most %d decimal places", places)}
	}
	if v.Abs().GreaterThanOrEqual(decimal.New(1, numericDigits-places)) {
		return &InvalidQuantityError{Field: field, Value: v, Reason: "is too large"}
	}
	return nil
}

func checkAmounts(initial *decimal.Decimal, minThreshold, unitValue decimal.Decimal) error {
	var checks []error
	if initial != nil {
		checks = append(checks, notNegative("initial_quantity", *initial), storable("initial_quantity", *initial, quantityPlaces))
	}
	checks = append(checks,
		notNegative("min_threshold", minThreshold), storable("min_threshold", minThreshold, quantityPlaces),
		notNegative("unit_value", unitValue), storable("unit_value", unitValue, unitValuePlaces))
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// Register adds a new item. A positive initial quantity is recorded as the
// item's opening inbound movement in the same unit of work.
func (c *Catalog) Register(ctx context.Context, in RegisterInput) (models.Item, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)

	if err := ValidateStruct(c.validate, in); err != nil {
		return models.Item{}, err
	}
	if err := checkAmounts(&in.InitialQuantity, in.MinThreshold, in.UnitValue); err != nil {
		return models.Item{}, err
	}

	item := models.Item{
		Code:            in.Code,
		Name:            in.Name,
		Category:        in.Category,
		Unit:            in.Unit,
		MinThreshold:    in.MinThreshold,
		UnitValue:       in.UnitValue,
		Quantity:        in.InitialQuantity,
		InitialQuantity: in.InitialQuantity,
		Location:        in.Location,
		Supplier:        in.Supplier,
		Description:     in.Description,
	}

	var opening *models.Movement
	if in.InitialQuantity.IsPositive() {
		occurredAt := in.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = time.Now().UTC()
		}
		opening = &models.Movement{
			ID:           uuid.NewString(),
			Type:         models.Inbound,
			Quantity:     in.InitialQuantity,
			BalanceAfter: in.InitialQuantity,
			OccurredAt:   occurredAt,
			Actor:        in.Actor,
			Reason:       openingReason,
			Opening:      true,
		}
	}

	created, err := c.store.CreateItem(ctx, item, opening)
	if err != nil {
		return models.Item{}, storageError("register item", in.Code, err)
	}

	c.log.Info("item registered",
		zap.String("code", created.Code),
		zap.String("initial_quantity", created.InitialQuantity.String()),
		zap.String("actor", in.Actor))
	return created, nil
}

func (c *Catalog) Get(ctx context.Context, code string) (models.Item, error) {
	item, err := c.store.GetItem(ctx, code)
	if err != nil {
		return models.Item{}, storageError("get item", code, err)
	}
	return item, nil
}

func (c *Catalog) Update(ctx context.Context, code string, in UpdateInput) (models.Item, error) {
	if err := ValidateStruct(c.validate, in); err != nil {
		return models.Item{}, err
	}
	if err := checkAmounts(nil, in.MinThreshold, in.UnitValue); err != nil {
		return models.Item{}, err
	}

	updated, err := c.store.UpdateItem(ctx, models.Item{
		Code:         code,
		Name:         strings.TrimSpace(in.Name),
		Category:     in.Category,
		Unit:         in.Unit,
		MinThreshold: in.MinThreshold,
		UnitValue:    in.UnitValue,
		Location:     in.Location,
		Supplier:     in.Supplier,
		Description:  in.Description,
	})
	if err != nil {
		return models.Item{}, storageError("update item", code, err)
	}
	return updated, nil
}

// Retire hides the item from reports and blocks further movements. Its
// history stays in the log.
func (c *Catalog) Retire(ctx context.Context, code string) (models.Item, error) {
	item, err := c.store.RetireItem(ctx, code)
	if err != nil {
		return models.Item{}, storageError("retire item", code, err)
	}
	c.log.Info("item retired", zap.String("code", code))
	return item, nil
}

func (c *Catalog) List(ctx context.Context, f repo.ItemFilter) ([]models.Item, int, error) {
	items, total, err := c.store.FilterItems(ctx, f)
	if err != nil {
		return nil, 0, storageError("list items", "", err)
	}
	return items, total, nil
}
