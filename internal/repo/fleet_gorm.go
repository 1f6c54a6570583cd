package repo

import (
	"context"
	"errors"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormFleetStore keeps the fleet registry in Postgres through gorm. The
// connection must be opened with TranslateError so unique violations
// surface as gorm.ErrDuplicatedKey.
type GormFleetStore struct {
	db *gorm.DB
}

var _ FleetStore = (*GormFleetStore)(nil)

func NewGormFleetStore(db *gorm.DB) *GormFleetStore {
	return &GormFleetStore{db: db}
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func (s *GormFleetStore) CreateMachine(ctx context.Context, m *models.Machine) error {
	err := s.db.WithContext(ctx).Create(m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicatedValueUnique
	}
	return err
}

func (s *GormFleetStore) GetMachine(ctx context.Context, id uint) (models.Machine, error) {
	var m models.Machine
	err := s.db.WithContext(ctx).First(&m, id).Error
	return m, notFound(err, ErrMachineNotFound)
}

func (s *GormFleetStore) ListMachines(ctx context.Context, f MachineFilter) ([]models.Machine, int, error) {
	q := s.db.WithContext(ctx).Model(&models.Machine{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Offset != nil && *f.Offset > 0 {
		q = q.Offset(*f.Offset)
	}
	if f.Limit != nil && *f.Limit > 0 {
		q = q.Limit(*f.Limit)
	}

	machines := []models.Machine{}
	if err := q.Order("fleet_number").Find(&machines).Error; err != nil {
		return nil, 0, err
	}
	return machines, int(total), nil
}

func (s *GormFleetStore) SetMachineStatus(ctx context.Context, id uint, status models.MachineStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Machine{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMachineNotFound
	}
	return nil
}

func (s *GormFleetStore) RecordHourMeter(ctx context.Context, r *models.HourMeterReading) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Machine
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, r.MachineID).Error; err != nil {
			return notFound(err, ErrMachineNotFound)
		}
		if r.Value.LessThan(m.HourMeter) {
			return ErrHourMeterRegression
		}
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		return tx.Model(&m).Update("hour_meter", r.Value).Error
	})
}

func (s *GormFleetStore) HourMeterReadings(ctx context.Context, machineID uint) ([]models.HourMeterReading, error) {
	readings := []models.HourMeterReading{}
	err := s.db.WithContext(ctx).Where("machine_id = ?", machineID).Order("read_at DESC").Find(&readings).Error
	return readings, err
}

func (s *GormFleetStore) CreateOilChange(ctx context.Context, oc *models.OilChange) error {
	return s.db.WithContext(ctx).Create(oc).Error
}

func (s *GormFleetStore) OilChanges(ctx context.Context, machineID uint) ([]models.OilChange, error) {
	changes := []models.OilChange{}
	err := s.db.WithContext(ctx).Where("machine_id = ?", machineID).Order("changed_at DESC").Find(&changes).Error
	return changes, err
}

func (s *GormFleetStore) RecentOilChanges(ctx context.Context, limit int) ([]models.OilChange, error) {
	changes := []models.OilChange{}
	err := s.db.WithContext(ctx).Order("changed_at DESC").Limit(limit).Find(&changes).Error
	return changes, err
}

func (s *GormFleetStore) CreateOrder(ctx context.Context, o *models.MaintenanceOrder) error {
	return s.db.WithContext(ctx).Create(o).Error
}

func (s *GormFleetStore) GetOrder(ctx context.Context, id uint) (models.MaintenanceOrder, error) {
	var o models.MaintenanceOrder
	err := s.db.WithContext(ctx).Preload("Parts").First(&o, id).Error
	return o, notFound(err, ErrOrderNotFound)
}

func (s *GormFleetStore) OrdersFor(ctx context.Context, machineID uint) ([]models.MaintenanceOrder, error) {
	orders := []models.MaintenanceOrder{}
	err := s.db.WithContext(ctx).Preload("Parts").Where("machine_id = ?", machineID).Order("id").Find(&orders).Error
	return orders, err
}

func (s *GormFleetStore) UpcomingPreventive(ctx context.Context, limit int) ([]models.MaintenanceOrder, error) {
	orders := []models.MaintenanceOrder{}
	err := s.db.WithContext(ctx).
		Where("kind = ? AND status = ?", models.Preventive, models.StatusPending).
		Order("scheduled_at NULLS LAST").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (s *GormFleetStore) SaveOrder(ctx context.Context, o *models.MaintenanceOrder, from models.MaintenanceStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o.UpdatedAt = time.Now().UTC()
		res := tx.Model(&models.MaintenanceOrder{}).
			Where("id = ? AND status = ?", o.ID, from).
			Updates(map[string]any{
				"status":       o.Status,
				"started_at":   o.StartedAt,
				"completed_at": o.CompletedAt,
				"hour_meter":   o.HourMeter,
				"solution":     o.Solution,
				"notes":        o.Notes,
				"updated_at":   o.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Select("id").First(&models.MaintenanceOrder{}, o.ID).Error; err != nil {
				return notFound(err, ErrOrderNotFound)
			}
			return ErrStaleOrder
		}

		for _, p := range o.Parts {
			err := tx.Model(&models.MaintenancePart{}).Where("id = ?", p.ID).Update("movement_id", p.MovementID).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormFleetStore) Counts(ctx context.Context) (FleetCounts, error) {
	db := s.db.WithContext(ctx)
	var c FleetCounts

	count := func(q *gorm.DB, dst *int) error {
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return err
		}
		*dst = int(n)
		return nil
	}

	steps := []struct {
		q   *gorm.DB
		dst *int
	}{
		{db.Model(&models.Machine{}), &c.Machines},
		{db.Model(&models.Machine{}).Where("status = ?", models.MachineActive), &c.ActiveMachines},
		{db.Model(&models.Machine{}).Where("status = ?", models.MachineInMaintenance), &c.InMaintenance},
		{db.Model(&models.MaintenanceOrder{}).Where("kind = ? AND status = ?", models.Preventive, models.StatusPending), &c.PendingPreventive},
		{db.Model(&models.MaintenanceOrder{}).Where("kind = ? AND status IN ?", models.Corrective,
			[]models.MaintenanceStatus{models.StatusInProgress, models.StatusAwaitingParts}), &c.OpenCorrective},
	}
	for _, st := range steps {
		if err := count(st.q, st.dst); err != nil {
			return c, err
		}
	}
	return c, nil
}
