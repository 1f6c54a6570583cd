package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MaintenanceKind string

const (
	Preventive MaintenanceKind = "preventive"
	Corrective MaintenanceKind = "corrective"
)

type MaintenanceStatus string

const (
	StatusPending       MaintenanceStatus = "pending"
	StatusDone          MaintenanceStatus = "done"
	StatusCancelled     MaintenanceStatus = "cancelled"
	StatusInProgress    MaintenanceStatus = "in_progress"
	StatusAwaitingParts MaintenanceStatus = "awaiting_parts"
	StatusCompleted     MaintenanceStatus = "completed"
)

// Open reports whether the order still blocks its machine.
func (s MaintenanceStatus) Open() bool {
	return s == StatusInProgress || s == StatusAwaitingParts
}

type MaintenanceOrder struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	MachineID      uint              `gorm:"index;not null" json:"machine_id"`
	Kind           MaintenanceKind   `gorm:"type:varchar(20);not null" json:"kind"`
	Description    string            `gorm:"type:text;not null" json:"description"`
	ScheduledAt    *time.Time        `json:"scheduled_at,omitempty"`
	ScheduledHours *decimal.Decimal  `gorm:"type:numeric(12,1)" json:"scheduled_hours,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	HourMeter      *decimal.Decimal  `gorm:"type:numeric(12,1)" json:"hour_meter,omitempty"`
	Solution       string            `gorm:"type:text" json:"solution,omitempty"`
	Notes          string            `gorm:"type:text" json:"notes,omitempty"`
	Status         MaintenanceStatus `gorm:"type:varchar(20);not null" json:"status"`
	Parts          []MaintenancePart `gorm:"foreignKey:OrderID" json:"parts,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// MaintenancePart is a stock item consumed when the order is completed.
type MaintenancePart struct {
	ID         uint            `gorm:"primaryKey" json:"-"`
	OrderID    uint            `gorm:"index;not null" json:"-"`
	ItemCode   string          `gorm:"type:varchar(20);not null" json:"item_code"`
	Quantity   decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"quantity"`
	MovementID string          `gorm:"type:varchar(36)" json:"movement_id,omitempty"`
}
