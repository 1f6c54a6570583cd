package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item represents a trackable inventory unit: a spare part, a fluid or a consumable.
type Item struct {
	Code            string          `json:"code" db:"code"`
	Name            string          `json:"name" db:"name"`
	Category        string          `json:"category" db:"category"`
	Unit            string          `json:"unit" db:"unit"`
	MinThreshold    decimal.Decimal `json:"min_threshold" db:"min_threshold"`
	UnitValue       decimal.Decimal `json:"unit_value" db:"unit_value"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	InitialQuantity decimal.Decimal `json:"initial_quantity" db:"initial_quantity"`
	Location        string          `json:"location,omitempty" db:"location"`
	Supplier        string          `json:"supplier,omitempty" db:"supplier"`
	Description     string          `json:"description,omitempty" db:"description"`
	Retired         bool            `json:"retired" db:"retired"`
	Version         int64           `json:"version" db:"version"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// LowStock reports whether the cached quantity is below the minimum threshold.
func (i Item) LowStock() bool {
	return i.Quantity.LessThan(i.MinThreshold)
}

// Valuation is quantity times unit value.
func (i Item) Valuation() decimal.Decimal {
	return i.Quantity.Mul(i.UnitValue)
}
