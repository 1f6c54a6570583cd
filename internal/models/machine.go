package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MachineStatus string

const (
	MachineActive        MachineStatus = "active"
	MachineInMaintenance MachineStatus = "in_maintenance"
	MachineInactive      MachineStatus = "inactive"
)

// Machine is a harvester of the fleet.
type Machine struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	FleetNumber string          `gorm:"type:varchar(20);uniqueIndex;not null" json:"fleet_number"`
	Model       string          `gorm:"type:varchar(100);not null" json:"model"`
	Year        int             `gorm:"not null" json:"year"`
	Status      MachineStatus   `gorm:"type:varchar(20);not null;default:active" json:"status"`
	HourMeter   decimal.Decimal `gorm:"type:numeric(12,1);not null;default:0" json:"hour_meter"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HourMeterReading is one reading of a machine's hour meter.
type HourMeterReading struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	MachineID   uint             `gorm:"index;not null" json:"machine_id"`
	ReadAt      time.Time        `gorm:"not null" json:"read_at"`
	Value       decimal.Decimal  `gorm:"type:numeric(12,1);not null" json:"value"`
	EngineHours *decimal.Decimal `gorm:"type:numeric(12,1)" json:"engine_hours,omitempty"`
	Notes       string           `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// OilChange records an oil change and the ledger movement that consumed the oil.
type OilChange struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	MachineID    uint            `gorm:"index;not null" json:"machine_id"`
	ChangedAt    time.Time       `gorm:"not null" json:"changed_at"`
	HourMeter    decimal.Decimal `gorm:"type:numeric(12,1);not null" json:"hour_meter"`
	OilItemCode  string          `gorm:"type:varchar(20);not null" json:"oil_item_code"`
	Quantity     decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"quantity"`
	NextChangeAt *time.Time      `json:"next_change_at,omitempty"`
	Notes        string          `gorm:"type:text" json:"notes,omitempty"`
	MovementID   string          `gorm:"type:varchar(36)" json:"movement_id"`
	CreatedAt    time.Time       `json:"created_at"`
}
