package repo

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
)

type InMemoryFleetStore struct {
	mu       sync.RWMutex
	machines map[uint]models.Machine
	readings []models.HourMeterReading
	oil      []models.OilChange
	orders   map[uint]models.MaintenanceOrder
	nextID   uint
	nextPart uint
}

var _ FleetStore = (*InMemoryFleetStore)(nil)

func NewInMemoryFleetStore() *InMemoryFleetStore {
	return &InMemoryFleetStore{
		machines: map[uint]models.Machine{},
		orders:   map[uint]models.MaintenanceOrder{},
	}
}

func (s *InMemoryFleetStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *InMemoryFleetStore) CreateMachine(ctx context.Context, m *models.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.machines {
		if existing.FleetNumber == m.FleetNumber {
			return ErrDuplicatedValueUnique
		}
	}

	now := time.Now().UTC()
	m.ID = s.id()
	m.CreatedAt, m.UpdatedAt = now, now
	s.machines[m.ID] = *m
	return nil
}

func (s *InMemoryFleetStore) GetMachine(ctx context.Context, id uint) (models.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.machines[id]
	if !ok {
		return models.Machine{}, ErrMachineNotFound
	}
	return m, nil
}

func (s *InMemoryFleetStore) ListMachines(ctx context.Context, f MachineFilter) ([]models.Machine, int, error) {
	s.mu.RLock()
	var filtered []models.Machine
	for _, m := range s.machines {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		filtered = append(filtered, m)
	}
	s.mu.RUnlock()

	slices.SortFunc(filtered, func(a, b models.Machine) int { return cmp.Compare(a.FleetNumber, b.FleetNumber) })
	return paginate(filtered, f.Offset, f.Limit), len(filtered), nil
}

func (s *InMemoryFleetStore) SetMachineStatus(ctx context.Context, id uint, status models.MachineStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.machines[id]
	if !ok {
		return ErrMachineNotFound
	}
	m.Status = status
	m.UpdatedAt = time.Now().UTC()
	s.machines[id] = m
	return nil
}

func (s *InMemoryFleetStore) RecordHourMeter(ctx context.Context, r *models.HourMeterReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.machines[r.MachineID]
	if !ok {
		return ErrMachineNotFound
	}
	if r.Value.LessThan(m.HourMeter) {
		return ErrHourMeterRegression
	}

	r.ID = s.id()
	r.CreatedAt = time.Now().UTC()
	s.readings = append(s.readings, *r)

	m.HourMeter = r.Value
	m.UpdatedAt = r.CreatedAt
	s.machines[m.ID] = m
	return nil
}

func (s *InMemoryFleetStore) HourMeterReadings(ctx context.Context, machineID uint) ([]models.HourMeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := []models.HourMeterReading{}
	for _, r := range s.readings {
		if r.MachineID == machineID {
			readings = append(readings, r)
		}
	}
	slices.SortStableFunc(readings, func(a, b models.HourMeterReading) int { return b.ReadAt.Compare(a.ReadAt) })
	return readings, nil
}

func (s *InMemoryFleetStore) CreateOilChange(ctx context.Context, oc *models.OilChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.machines[oc.MachineID]; !ok {
		return ErrMachineNotFound
	}
	oc.ID = s.id()
	oc.CreatedAt = time.Now().UTC()
	s.oil = append(s.oil, *oc)
	return nil
}

func (s *InMemoryFleetStore) oilChanges(keep func(models.OilChange) bool) []models.OilChange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	changes := []models.OilChange{}
	for _, oc := range s.oil {
		if keep(oc) {
			changes = append(changes, oc)
		}
	}
	slices.SortStableFunc(changes, func(a, b models.OilChange) int { return b.ChangedAt.Compare(a.ChangedAt) })
	return changes
}

func (s *InMemoryFleetStore) OilChanges(ctx context.Context, machineID uint) ([]models.OilChange, error) {
	return s.oilChanges(func(oc models.OilChange) bool { return oc.MachineID == machineID }), nil
}

func (s *InMemoryFleetStore) RecentOilChanges(ctx context.Context, limit int) ([]models.OilChange, error) {
	changes := s.oilChanges(func(models.OilChange) bool { return true })
	return changes[:min(limit, len(changes))], nil
}

func (s *InMemoryFleetStore) CreateOrder(ctx context.Context, o *models.MaintenanceOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.machines[o.MachineID]; !ok {
		return ErrMachineNotFound
	}

	now := time.Now().UTC()
	o.ID = s.id()
	o.CreatedAt, o.UpdatedAt = now, now
	for i := range o.Parts {
		s.nextPart++
		o.Parts[i].ID = s.nextPart
		o.Parts[i].OrderID = o.ID
	}
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func cloneOrder(o models.MaintenanceOrder) models.MaintenanceOrder {
	o.Parts = slices.Clone(o.Parts)
	return o
}

func (s *InMemoryFleetStore) GetOrder(ctx context.Context, id uint) (models.MaintenanceOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return models.MaintenanceOrder{}, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *InMemoryFleetStore) orderList(keep func(models.MaintenanceOrder) bool) []models.MaintenanceOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := []models.MaintenanceOrder{}
	for _, o := range s.orders {
		if keep(o) {
			orders = append(orders, cloneOrder(o))
		}
	}
	slices.SortFunc(orders, func(a, b models.MaintenanceOrder) int { return cmp.Compare(a.ID, b.ID) })
	return orders
}

func (s *InMemoryFleetStore) OrdersFor(ctx context.Context, machineID uint) ([]models.MaintenanceOrder, error) {
	return s.orderList(func(o models.MaintenanceOrder) bool { return o.MachineID == machineID }), nil
}

func (s *InMemoryFleetStore) UpcomingPreventive(ctx context.Context, limit int) ([]models.MaintenanceOrder, error) {
	orders := s.orderList(func(o models.MaintenanceOrder) bool {
		return o.Kind == models.Preventive && o.Status == models.StatusPending
	})
	slices.SortStableFunc(orders, func(a, b models.MaintenanceOrder) int {
		switch {
		case a.ScheduledAt == nil && b.ScheduledAt == nil:
			return 0
		case a.ScheduledAt == nil:
			return 1
		case b.ScheduledAt == nil:
			return -1
		}
		return a.ScheduledAt.Compare(*b.ScheduledAt)
	})
	return orders[:min(limit, len(orders))], nil
}

func (s *InMemoryFleetStore) SaveOrder(ctx context.Context, o *models.MaintenanceOrder, from models.MaintenanceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if current.Status != from {
		return ErrStaleOrder
	}

	o.UpdatedAt = time.Now().UTC()
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *InMemoryFleetStore) Counts(ctx context.Context) (FleetCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c FleetCounts
	for _, m := range s.machines {
		c.Machines++
		switch m.Status {
		case models.MachineActive:
			c.ActiveMachines++
		case models.MachineInMaintenance:
			c.InMaintenance++
		}
	}
	for _, o := range s.orders {
		if o.Kind == models.Preventive && o.Status == models.StatusPending {
			c.PendingPreventive++
		}
		if o.Kind == models.Corrective && o.Status.Open() {
			c.OpenCorrective++
		}
	}
	return c, nil
}
