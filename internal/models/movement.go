package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	Inbound  MovementType = "inbound"
	Outbound MovementType = "outbound"
)

func (t MovementType) Valid() bool {
	return t == Inbound || t == Outbound
}

// Movement is an immutable record of one quantity change of an item.
// Quantity is always positive; Type carries the sign.
type Movement struct {
	ID             string          `json:"id" db:"id"`
	Seq            int64           `json:"seq" db:"seq"`
	ItemCode       string          `json:"item_code" db:"item_code"`
	Type           MovementType    `json:"type" db:"type"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	BalanceAfter   decimal.Decimal `json:"balance_after" db:"balance_after"`
	OccurredAt     time.Time       `json:"occurred_at" db:"occurred_at"`
	Actor          string          `json:"actor" db:"actor"`
	Reason         string          `json:"reason" db:"reason"`
	Opening        bool            `json:"opening" db:"opening"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" db:"idempotency_key"`
	RecordedAt     time.Time       `json:"recorded_at" db:"recorded_at"`
}

// Signed returns the quantity with the sign implied by the movement type.
func (m Movement) Signed() decimal.Decimal {
	if m.Type == Outbound {
		return m.Quantity.Neg()
	}
	return m.Quantity
}
