package handlers

import (
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/fleet"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error  string              `json:"error"`
	Errors []ledger.FieldError `json:"errors,omitempty"`
}

type ItemRequest struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Unit            string          `json:"unit"`
	MinThreshold    decimal.Decimal `json:"min_threshold"`
	UnitValue       decimal.Decimal `json:"unit_value"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	Location        string          `json:"location,omitempty"`
	Supplier        string          `json:"supplier,omitempty"`
	Description     string          `json:"description,omitempty"`
}

type ItemResponse struct {
	models.Item
	LowStock  bool            `json:"low_stock"`
	Valuation decimal.Decimal `json:"valuation"`
}

func toItemResponse(i models.Item) ItemResponse {
	return ItemResponse{Item: i, LowStock: i.LowStock(), Valuation: i.Valuation()}
}

func toItemResponses(items []models.Item) []ItemResponse {
	out := make([]ItemResponse, len(items))
	for i, it := range items {
		out[i] = toItemResponse(it)
	}
	return out
}

type Meta struct {
	TotalCount int `json:"total_count"`
}

type ItemsSearchResult struct {
	Data []ItemResponse `json:"data"`
	Meta Meta           `json:"meta"`
}

type MovementRequest struct {
	Type           models.MovementType `json:"type"`
	Quantity       decimal.Decimal     `json:"quantity"`
	Reason         string              `json:"reason,omitempty"`
	OccurredAt     *time.Time          `json:"occurred_at,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	Seq            int64               `json:"seq,omitempty"`
}

type MovementResult struct {
	Movement models.Movement `json:"movement"`
	Item     ItemResponse    `json:"item"`
}

type MovementsSearchResult struct {
	Data []models.Movement `json:"data"`
	Meta Meta              `json:"meta"`
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RegisterAsAdminRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin operator"`
}

type UserResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type ImportItemsResult struct {
	Imported int                 `json:"imported"`
	Updated  int                 `json:"updated"`
	Skipped  int                 `json:"skipped"`
	Errors   []ledger.FieldError `json:"errors"`
}

type MachinesSearchResult struct {
	Data []models.Machine `json:"data"`
	Meta Meta             `json:"meta"`
}

type DashboardResponse struct {
	Inventory ledger.Dashboard `json:"inventory"`
	Fleet     fleet.Dashboard  `json:"fleet"`
}
