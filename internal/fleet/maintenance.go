package fleet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidTransition = errors.New("invalid maintenance transition")

var transitions = map[models.MaintenanceKind]map[models.MaintenanceStatus][]models.MaintenanceStatus{
	models.Preventive: {
		models.StatusPending: {models.StatusDone, models.StatusCancelled},
	},
	models.Corrective: {
		models.StatusInProgress:    {models.StatusAwaitingParts, models.StatusCompleted},
		models.StatusAwaitingParts: {models.StatusInProgress, models.StatusCompleted},
	},
}

func canTransition(kind models.MaintenanceKind, from, to models.MaintenanceStatus) bool {
	return slices.Contains(transitions[kind][from], to)
}

func finishing(to models.MaintenanceStatus) bool {
	return to == models.StatusDone || to == models.StatusCompleted
}

type PartInput struct {
	ItemCode string          `json:"item_code" validate:"required,max=20"`
	Quantity decimal.Decimal `json:"quantity"`
}

type MaintenanceInput struct {
	Kind           models.MaintenanceKind `json:"kind" validate:"required,oneof=preventive corrective"`
	Description    string                 `json:"description" validate:"required,max=500"`
	ScheduledAt    *time.Time             `json:"scheduled_at,omitempty"`
	ScheduledHours *decimal.Decimal       `json:"scheduled_hours,omitempty"`
	Notes          string                 `json:"notes" validate:"max=1000"`
	Parts          []PartInput            `json:"parts" validate:"dive"`
}

// mergeParts sums repeated item codes so every item has one consumption key.
func mergeParts(in []PartInput) ([]models.MaintenancePart, error) {
	var parts []models.MaintenancePart
	for i, p := range in {
		if !p.Quantity.IsPositive() {
			return nil, &ledger.InvalidQuantityError{Field: fmt.Sprintf("parts[%d].quantity", i), Value: p.Quantity, Reason: "must be greater than zero"}
		}
		idx := slices.IndexFunc(parts, func(mp models.MaintenancePart) bool { return mp.ItemCode == p.ItemCode })
		if idx >= 0 {
			parts[idx].Quantity = parts[idx].Quantity.Add(p.Quantity)
			continue
		}
		parts = append(parts, models.MaintenancePart{ItemCode: p.ItemCode, Quantity: p.Quantity})
	}
	return parts, nil
}

// OpenMaintenance creates an order. Corrective orders start in progress and
// take the machine out of service.
func (s *Service) OpenMaintenance(ctx context.Context, machineID uint, in MaintenanceInput) (models.MaintenanceOrder, error) {
	if err := ledger.ValidateStruct(s.validate, in); err != nil {
		return models.MaintenanceOrder{}, err
	}
	parts, err := mergeParts(in.Parts)
	if err != nil {
		return models.MaintenanceOrder{}, err
	}

	machine, err := s.store.GetMachine(ctx, machineID)
	if err != nil {
		return models.MaintenanceOrder{}, err
	}

	o := models.MaintenanceOrder{
		MachineID:      machineID,
		Kind:           in.Kind,
		Description:    in.Description,
		ScheduledAt:    in.ScheduledAt,
		ScheduledHours: in.ScheduledHours,
		Notes:          in.Notes,
		Parts:          parts,
		Status:         models.StatusPending,
	}
	if in.Kind == models.Corrective {
		now := s.now()
		o.Status = models.StatusInProgress
		o.StartedAt = &now
	}

	if err := s.store.CreateOrder(ctx, &o); err != nil {
		return models.MaintenanceOrder{}, fmt.Errorf("failed to open maintenance order: %w", err)
	}

	if in.Kind == models.Corrective && machine.Status != models.MachineInMaintenance {
		if err := s.store.SetMachineStatus(ctx, machineID, models.MachineInMaintenance); err != nil {
			return models.MaintenanceOrder{}, fmt.Errorf("failed to update machine status: %w", err)
		}
	}

	s.log.Info("maintenance order opened",
		zap.Uint("order_id", o.ID),
		zap.String("fleet_number", machine.FleetNumber),
		zap.String("kind", string(o.Kind)))
	return o, nil
}

func (s *Service) Orders(ctx context.Context, machineID uint) ([]models.MaintenanceOrder, error) {
	if _, err := s.store.GetMachine(ctx, machineID); err != nil {
		return nil, err
	}
	return s.store.OrdersFor(ctx, machineID)
}

type TransitionInput struct {
	To        models.MaintenanceStatus `json:"to" validate:"required"`
	HourMeter *decimal.Decimal         `json:"hour_meter,omitempty"`
	Solution  string                   `json:"solution" validate:"max=1000"`
	Notes     string                   `json:"notes" validate:"max=1000"`
	Actor     string                   `json:"-" validate:"required"`
}

// Transition moves an order to a new status. Finishing an order consumes its
// parts from stock first; a failed consumption leaves the order where it was
// and a retry never consumes a part twice.
func (s *Service) Transition(ctx context.Context, orderID uint, in TransitionInput) (models.MaintenanceOrder, error) {
	if err := ledger.ValidateStruct(s.validate, in); err != nil {
		return models.MaintenanceOrder{}, err
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return models.MaintenanceOrder{}, err
	}
	from := o.Status
	if !canTransition(o.Kind, from, in.To) {
		return models.MaintenanceOrder{}, fmt.Errorf("%w: %s order cannot go from %s to %s", ErrInvalidTransition, o.Kind, from, in.To)
	}

	machine, err := s.store.GetMachine(ctx, o.MachineID)
	if err != nil {
		return models.MaintenanceOrder{}, err
	}

	if finishing(in.To) {
		if err := s.consumeParts(ctx, &o, machine, in.Actor); err != nil {
			if saveErr := s.store.SaveOrder(ctx, &o, from); saveErr != nil {
				s.log.Warn("could not save consumed parts", zap.Uint("order_id", o.ID), zap.Error(saveErr))
			}
			return models.MaintenanceOrder{}, err
		}
	}

	now := s.now()
	o.Status = in.To
	switch {
	case finishing(in.To):
		o.CompletedAt = &now
	case in.To == models.StatusInProgress && o.StartedAt == nil:
		o.StartedAt = &now
	}
	if in.HourMeter != nil {
		o.HourMeter = in.HourMeter
	}
	if in.Solution != "" {
		o.Solution = in.Solution
	}
	if in.Notes != "" {
		o.Notes = in.Notes
	}

	if err := s.store.SaveOrder(ctx, &o, from); err != nil {
		return models.MaintenanceOrder{}, err
	}

	if o.Kind == models.Corrective && !o.Status.Open() {
		if err := s.releaseMachine(ctx, machine); err != nil {
			return models.MaintenanceOrder{}, err
		}
	}

	s.log.Info("maintenance order moved",
		zap.Uint("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
		zap.String("actor", in.Actor))
	return o, nil
}

func partKey(orderID uint, itemCode string) string {
	return fmt.Sprintf("maintenance:%d:%s", orderID, itemCode)
}

func (s *Service) consumeParts(ctx context.Context, o *models.MaintenanceOrder, machine models.Machine, actor string) error {
	for i := range o.Parts {
		p := &o.Parts[i]
		if p.MovementID != "" {
			continue
		}
		m, err := s.stock.ApplyMovement(ctx, ledger.ApplyInput{
			ItemCode:       p.ItemCode,
			Type:           models.Outbound,
			Quantity:       p.Quantity,
			Actor:          actor,
			Reason:         fmt.Sprintf("maintenance order %d (%s)", o.ID, machine.FleetNumber),
			IdempotencyKey: partKey(o.ID, p.ItemCode),
		})
		if err != nil {
			return fmt.Errorf("failed to consume %s for order %d: %w", p.ItemCode, o.ID, err)
		}
		p.MovementID = m.ID
	}
	return nil
}

// releaseMachine puts the machine back in service once it has no open
// corrective order left.
func (s *Service) releaseMachine(ctx context.Context, machine models.Machine) error {
	if machine.Status != models.MachineInMaintenance {
		return nil
	}

	orders, err := s.store.OrdersFor(ctx, machine.ID)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.Kind == models.Corrective && o.Status.Open() {
			return nil
		}
	}
	return s.store.SetMachineStatus(ctx, machine.ID, models.MachineActive)
}
