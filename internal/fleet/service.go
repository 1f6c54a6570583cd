package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StockMover is the part of the ledger engine the fleet consumes stock through.
type StockMover interface {
	ApplyMovement(ctx context.Context, in ledger.ApplyInput) (models.Movement, error)
	MovementByKey(ctx context.Context, key string) (models.Movement, error)
}

type Service struct {
	store    repo.FleetStore
	stock    StockMover
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store repo.FleetStore, stock StockMover, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		stock:    stock,
		validate: ledger.NewValidator(),
		log:      log.Named("fleet"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type MachineInput struct {
	FleetNumber string               `json:"fleet_number" validate:"required,max=20"`
	Model       string               `json:"model" validate:"required,max=100"`
	Year        int                  `json:"year" validate:"gte=1950,lte=2100"`
	Status      models.MachineStatus `json:"status" validate:"omitempty,oneof=active in_maintenance inactive"`
	HourMeter   decimal.Decimal      `json:"hour_meter"`
}

func (s *Service) RegisterMachine(ctx context.Context, in MachineInput) (models.Machine, error) {
	if err := ledger.ValidateStruct(s.validate, in); err != nil {
		return models.Machine{}, err
	}
	if in.HourMeter.IsNegative() {
		return models.Machine{}, &ledger.InvalidQuantityError{Field: "hour_meter", Value: in.HourMeter, Reason: "must not be negative"}
	}
	if in.Status == "" {
		in.Status = models.MachineActive
	}

	m := models.Machine{
		FleetNumber: in.FleetNumber,
		Model:       in.Model,
		Year:        in.Year,
		Status:      in.Status,
		HourMeter:   in.HourMeter,
	}
	if err := s.store.CreateMachine(ctx, &m); err != nil {
		return models.Machine{}, fmt.Errorf("failed to register machine %s: %w", in.FleetNumber, err)
	}

	s.log.Info("machine registered", zap.Uint("id", m.ID), zap.String("fleet_number", m.FleetNumber))
	return m, nil
}

func (s *Service) GetMachine(ctx context.Context, id uint) (models.Machine, error) {
	return s.store.GetMachine(ctx, id)
}

func (s *Service) ListMachines(ctx context.Context, f repo.MachineFilter) ([]models.Machine, int, error) {
	return s.store.ListMachines(ctx, f)
}

// MachineDetail is a machine with its history.
type MachineDetail struct {
	models.Machine
	HourMeterReadings []models.HourMeterReading `json:"hour_meter_readings"`
	OilChanges        []models.OilChange        `json:"oil_changes"`
	Orders            []models.MaintenanceOrder `json:"maintenance_orders"`
}

func (s *Service) MachineDetail(ctx context.Context, id uint) (MachineDetail, error) {
	m, err := s.store.GetMachine(ctx, id)
	if err != nil {
		return MachineDetail{}, err
	}

	d := MachineDetail{Machine: m}
	if d.HourMeterReadings, err = s.store.HourMeterReadings(ctx, id); err != nil {
		return MachineDetail{}, err
	}
	if d.OilChanges, err = s.store.OilChanges(ctx, id); err != nil {
		return MachineDetail{}, err
	}
	if d.Orders, err = s.store.OrdersFor(ctx, id); err != nil {
		return MachineDetail{}, err
	}
	return d, nil
}

type HourMeterInput struct {
	Value       decimal.Decimal  `json:"value"`
	EngineHours *decimal.Decimal `json:"engine_hours,omitempty"`
	ReadAt      time.Time        `json:"read_at"`
	Notes       string           `json:"notes" validate:"max=500"`
}

func (s *Service) RecordHourMeter(ctx context.Context, machineID uint, in HourMeterInput) (models.HourMeterReading, error) {
	if err := ledger.ValidateStruct(s.validate, in); err != nil {
		return models.HourMeterReading{}, err
	}
	if in.Value.IsNegative() {
		return models.HourMeterReading{}, &ledger.InvalidQuantityError{Field: "value", Value: in.Value, Reason: "must not be negative"}
	}
	if in.ReadAt.IsZero() {
		in.ReadAt = s.now()
	}

	r := models.HourMeterReading{
		MachineID:   machineID,
		ReadAt:      in.ReadAt,
		Value:       in.Value,
		EngineHours: in.EngineHours,
		Notes:       in.Notes,
	}
	if err := s.store.RecordHourMeter(ctx, &r); err != nil {
		return models.HourMeterReading{}, err
	}
	return r, nil
}

func (s *Service) HourMeterReadings(ctx context.Context, machineID uint) ([]models.HourMeterReading, error) {
	if _, err := s.store.GetMachine(ctx, machineID); err != nil {
		return nil, err
	}
	return s.store.HourMeterReadings(ctx, machineID)
}

// Dashboard is the fleet side of the metrics dashboard.
type Dashboard struct {
	repo.FleetCounts
	UpcomingPreventive []models.MaintenanceOrder `json:"upcoming_preventive"`
	RecentOilChanges   []models.OilChange        `json:"recent_oil_changes"`
}

const dashboardListSize = 5

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	upcoming, err := s.store.UpcomingPreventive(ctx, dashboardListSize)
	if err != nil {
		return Dashboard{}, err
	}
	recent, err := s.store.RecentOilChanges(ctx, dashboardListSize)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{FleetCounts: counts, UpcomingPreventive: upcoming, RecentOilChanges: recent}, nil
}
