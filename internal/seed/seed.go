package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/rogerio-castellano/fleet-maintenance/internal/fleet"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const actor = "seed"

var items = []ledger.RegisterInput{
	{Code: "OL-001", Name: "Óleo de Motor 15W40", Category: "Lubrificantes", Unit: "Litros", InitialQuantity: decimal.NewFromInt(200), MinThreshold: decimal.NewFromInt(50), Location: "Prateleira A1"},
	{Code: "OL-002", Name: "Óleo Hidráulico HLP 68", Category: "Lubrificantes", Unit: "Litros", InitialQuantity: decimal.NewFromInt(150), MinThreshold: decimal.NewFromInt(40), Location: "Prateleira A2"},
	{Code: "OL-003", Name: "Óleo de Transmissão 80W90", Category: "Lubrificantes", Unit: "Litros", InitialQuantity: decimal.NewFromInt(100), MinThreshold: decimal.NewFromInt(30), Location: "Prateleira A3"},
	{Code: "FL-001", Name: "Filtro de Óleo", Category: "Filtros", Unit: "Unidades", InitialQuantity: decimal.NewFromInt(25), MinThreshold: decimal.NewFromInt(10), Location: "Prateleira B1"},
	{Code: "FL-002", Name: "Filtro de Ar", Category: "Filtros", Unit: "Unidades", InitialQuantity: decimal.NewFromInt(20), MinThreshold: decimal.NewFromInt(8), Location: "Prateleira B2"},
	{Code: "FL-003", Name: "Filtro de Combustível", Category: "Filtros", Unit: "Unidades", InitialQuantity: decimal.NewFromInt(30), MinThreshold: decimal.NewFromInt(12), Location: "Prateleira B3"},
	{Code: "CR-001", Name: "Correia do Motor", Category: "Correias", Unit: "Unidades", InitialQuantity: decimal.NewFromInt(15), MinThreshold: decimal.NewFromInt(5), Location: "Prateleira C1"},
	{Code: "CR-002", Name: "Correia do Alternador", Category: "Correias", Unit: "Unidades", InitialQuantity: decimal.NewFromInt(12), MinThreshold: decimal.NewFromInt(4), Location: "Prateleira C2"},
	{Code: "JT-001", Name: "Junta do Cabeçote", Category: "Juntas", Unit: "Unidades", InitialQuantity: decimal.NewFromInt(8), MinThreshold: decimal.NewFromInt(3), Location: "Prateleira D1"},
	{Code: "KT-001", Name: "Kit de Reparo Hidráulico", Category: "Kits de Reparo", Unit: "Unidades", InitialQuantity: decimal.NewFromInt(5), MinThreshold: decimal.NewFromInt(2), Location: "Prateleira E1"},
}

var machines = []fleet.MachineInput{
	{FleetNumber: "JD-001", Model: "S790", Year: 2022, Status: models.MachineActive},
	{FleetNumber: "JD-002", Model: "S680", Year: 2021, Status: models.MachineActive},
	{FleetNumber: "JD-003", Model: "S770", Year: 2023, Status: models.MachineInMaintenance},
	{FleetNumber: "JD-004", Model: "S760", Year: 2020, Status: models.MachineInactive},
	{FleetNumber: "JD-005", Model: "S670", Year: 2019, Status: models.MachineActive},
}

// Demo fills an empty installation with an admin account, the demo spare
// parts catalog and the demo fleet. It does nothing once the admin exists.
func Demo(ctx context.Context, users repo.UserRepository, catalog *ledger.Catalog, fleetSvc *fleet.Service, adminPassword string, log *zap.Logger) error {
	_, err := users.GetByUsername(ctx, "admin")
	if err == nil {
		log.Info("database already seeded, skipping demo data")
		return nil
	}
	if !errors.Is(err, repo.ErrUserNotFound) {
		return fmt.Errorf("failed to check for admin user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := users.CreateUser(ctx, models.User{Username: "admin", PasswordHash: string(hash), Role: models.RoleAdmin}); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	for _, in := range items {
		in.Actor = actor
		if _, err := catalog.Register(ctx, in); err != nil && !errors.Is(err, ledger.ErrDuplicateCode) {
			return fmt.Errorf("failed to seed item %s: %w", in.Code, err)
		}
	}
	for _, in := range machines {
		if _, err := fleetSvc.RegisterMachine(ctx, in); err != nil && !errors.Is(err, repo.ErrDuplicatedValueUnique) {
			return fmt.Errorf("failed to seed machine %s: %w", in.FleetNumber, err)
		}
	}

	log.Info("demo data created", zap.Int("items", len(items)), zap.Int("machines", len(machines)))
	return nil
}
