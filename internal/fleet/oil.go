package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OilChangeInput struct {
	OilItemCode    string          `json:"oil_item_code" validate:"required,max=20"`
	Quantity       decimal.Decimal `json:"quantity"`
	HourMeter      decimal.Decimal `json:"hour_meter"`
	ChangedAt      time.Time       `json:"changed_at"`
	NextChangeAt   *time.Time      `json:"next_change_at,omitempty"`
	Notes          string          `json:"notes" validate:"max=500"`
	Actor          string          `json:"-" validate:"required"`
	IdempotencyKey string          `json:"-" validate:"max=100"`
}

func oilKeys(machineID uint, requestKey string) (consume, revert string) {
	if requestKey == "" {
		requestKey = uuid.NewString()
	}
	consume = fmt.Sprintf("oil:%d:%s", machineID, requestKey)
	return consume, consume + ":revert"
}

// RecordOilChange takes the oil out of stock, then stores the oil change and
// its hour meter reading. When the record cannot be stored the oil is put
// back with a compensating inbound movement.
func (s *Service) RecordOilChange(ctx context.Context, machineID uint, in OilChangeInput) (models.OilChange, error) {
	if err := ledger.ValidateStruct(s.validate, in); err != nil {
		return models.OilChange{}, err
	}
	if !in.Quantity.IsPositive() {
		return models.OilChange{}, &ledger.InvalidQuantityError{Field: "quantity", Value: in.Quantity, Reason: "must be greater than zero"}
	}
	if in.ChangedAt.IsZero() {
		in.ChangedAt = s.now()
	}

	machine, err := s.store.GetMachine(ctx, machineID)
	if err != nil {
		return models.OilChange{}, err
	}
	if in.HourMeter.LessThan(machine.HourMeter) {
		return models.OilChange{}, repo.ErrHourMeterRegression
	}

	consumeKey, revertKey := oilKeys(machineID, in.IdempotencyKey)
	if in.IdempotencyKey != "" {
		if _, err := s.stock.MovementByKey(ctx, revertKey); err == nil {
			return models.OilChange{}, ledger.ValidationErrors{{Field: "idempotency_key", Description: "belongs to a reverted oil change"}}
		} else if !errors.Is(err, ledger.ErrNoSuchMovement) {
			return models.OilChange{}, err
		}
	}

	m, err := s.stock.ApplyMovement(ctx, ledger.ApplyInput{
		ItemCode:       in.OilItemCode,
		Type:           models.Outbound,
		Quantity:       in.Quantity,
		Actor:          in.Actor,
		Reason:         "oil change " + machine.FleetNumber,
		OccurredAt:     in.ChangedAt,
		IdempotencyKey: consumeKey,
	})
	if err != nil {
		return models.OilChange{}, err
	}

	existing, err := s.store.OilChanges(ctx, machineID)
	if err != nil {
		return models.OilChange{}, s.revertOil(ctx, in, machine, revertKey, err)
	}
	for _, oc := range existing {
		if oc.MovementID == m.ID {
			return oc, nil
		}
	}

	oc := models.OilChange{
		MachineID:    machineID,
		ChangedAt:    in.ChangedAt,
		HourMeter:    in.HourMeter,
		OilItemCode:  in.OilItemCode,
		Quantity:     in.Quantity,
		NextChangeAt: in.NextChangeAt,
		Notes:        in.Notes,
		MovementID:   m.ID,
	}
	if err := s.store.CreateOilChange(ctx, &oc); err != nil {
		return models.OilChange{}, s.revertOil(ctx, in, machine, revertKey, err)
	}

	if in.HourMeter.GreaterThan(machine.HourMeter) {
		reading := models.HourMeterReading{
			MachineID: machineID,
			ReadAt:    in.ChangedAt,
			Value:     in.HourMeter,
			Notes:     "oil change",
		}
		if err := s.store.RecordHourMeter(ctx, &reading); err != nil {
			s.log.Warn("oil change stored without hour meter reading",
				zap.Uint("machine_id", machineID), zap.Error(err))
		}
	}

	s.log.Info("oil change recorded",
		zap.String("fleet_number", machine.FleetNumber),
		zap.String("item", in.OilItemCode),
		zap.String("quantity", in.Quantity.String()),
		zap.String("movement_id", m.ID))
	return oc, nil
}

func (s *Service) revertOil(ctx context.Context, in OilChangeInput, machine models.Machine, key string, cause error) error {
	_, err := s.stock.ApplyMovement(context.WithoutCancel(ctx), ledger.ApplyInput{
		ItemCode:       in.OilItemCode,
		Type:           models.Inbound,
		Quantity:       in.Quantity,
		Actor:          in.Actor,
		Reason:         "oil change reverted " + machine.FleetNumber,
		IdempotencyKey: key,
	})
	if err != nil {
		s.log.Error("could not revert oil consumption",
			zap.String("item", in.OilItemCode),
			zap.String("quantity", in.Quantity.String()),
			zap.Error(err))
		return fmt.Errorf("failed to store oil change: %w (revert failed: %v)", cause, err)
	}
	return fmt.Errorf("failed to store oil change: %w", cause)
}

func (s *Service) OilChanges(ctx context.Context, machineID uint) ([]models.OilChange, error) {
	if _, err := s.store.GetMachine(ctx, machineID); err != nil {
		return nil, err
	}
	return s.store.OilChanges(ctx, machineID)
}
