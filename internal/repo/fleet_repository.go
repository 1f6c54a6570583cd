package repo

import (
	"context"
	"errors"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
)

var (
	ErrMachineNotFound     = errors.New("machine not found")
	ErrOrderNotFound       = errors.New("maintenance order not found")
	ErrHourMeterRegression = errors.New("hour meter reading is lower than the current value")
	ErrStaleOrder          = errors.New("maintenance order was changed concurrently")
)

type MachineFilter struct {
	Status models.MachineStatus
	Offset *int
	Limit  *int
}

type FleetCounts struct {
	Machines          int `json:"machines"`
	ActiveMachines    int `json:"active_machines"`
	InMaintenance     int `json:"in_maintenance"`
	PendingPreventive int `json:"pending_preventive"`
	OpenCorrective    int `json:"open_corrective"`
}

type FleetStore interface {
	CreateMachine(ctx context.Context, m *models.Machine) error
	GetMachine(ctx context.Context, id uint) (models.Machine, error)
	ListMachines(ctx context.Context, f MachineFilter) ([]models.Machine, int, error)
	SetMachineStatus(ctx context.Context, id uint, status models.MachineStatus) error

	// RecordHourMeter stores the reading and moves the machine's hour meter
	// to its value. Readings below the current hour meter fail with
	// ErrHourMeterRegression.
	RecordHourMeter(ctx context.Context, r *models.HourMeterReading) error
	HourMeterReadings(ctx context.Context, machineID uint) ([]models.HourMeterReading, error)

	CreateOilChange(ctx context.Context, oc *models.OilChange) error
	OilChanges(ctx context.Context, machineID uint) ([]models.OilChange, error)
	RecentOilChanges(ctx context.Context, limit int) ([]models.OilChange, error)

	CreateOrder(ctx context.Context, o *models.MaintenanceOrder) error
	GetOrder(ctx context.Context, id uint) (models.MaintenanceOrder, error)
	OrdersFor(ctx context.Context, machineID uint) ([]models.MaintenanceOrder, error)
	UpcomingPreventive(ctx context.Context, limit int) ([]models.MaintenanceOrder, error)
	// SaveOrder persists o only if the stored status is still from.
	SaveOrder(ctx context.Context, o *models.MaintenanceOrder, from models.MaintenanceStatus) error

	Counts(ctx context.Context) (FleetCounts, error)
}
