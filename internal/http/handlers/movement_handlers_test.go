package handlers_test

import (
	"encoding/csv"
	"math"
	"net/http"
	"strings"
	"testing"

	"github.com/rogerio-castellano/fleet-maintenance/internal/http/handlers"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
)

func TestApplyMovementHandler(t *testing.T) {
	api := newTestAPI(t)
	api.createItem(t, "OL-001", "100", "20")

	w := api.move(models.Inbound, "OL-001", "50")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var res handlers.MovementResult
	decode(t, w, &res)
	if !res.Item.Quantity.Equal(dec("150")) {
		t.Errorf("expected quantity 150, got %s", res.Item.Quantity)
	}
	if !res.Movement.BalanceAfter.Equal(dec("150")) {
		t.Errorf("expected balance_after 150, got %s", res.Movement.BalanceAfter)
	}
	if res.Movement.Actor != operatorUser {
		t.Errorf("expected actor %q from the token, got %q", operatorUser, res.Movement.Actor)
	}

	tests := []struct {
		name   string
		typ    models.MovementType
		code   string
		qty    string
		status int
	}{
		{"insufficient stock", models.Outbound, "OL-001", "151", http.StatusConflict},
		{"zero quantity", models.Inbound, "OL-001", "0", http.StatusBadRequest},
		{"negative quantity", models.Outbound, "OL-001", "-5", http.StatusBadRequest},
		{"unknown type", "sideways", "OL-001", "1", http.StatusBadRequest},
		{"unknown item", models.Inbound, "NOPE", "1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := api.move(tt.typ, tt.code, tt.qty); w.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	w = api.do(http.MethodGet, "/items/OL-001", api.operatorToken, nil)
	var item handlers.ItemResponse
	decode(t, w, &item)
	if !item.Quantity.Equal(dec("150")) {
		t.Errorf("rejected movements must not change the quantity, got %s", item.Quantity)
	}
}

func TestApplyMovementHandler_IdempotencyKey(t *testing.T) {
	api := newTestAPI(t)
	api.createItem(t, "FH-001", "10", "2")
	key := [2]string{"Idempotency-Key", "req-42"}

	var first, second handlers.MovementResult
	w := api.move(models.Outbound, "FH-001", "3", key)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	decode(t, w, &first)

	w = api.move(models.Outbound, "FH-001", "3", key)
	if w.Code != http.StatusCreated {
		t.Fatalf("retry: expected 201, got %d", w.Code)
	}
	decode(t, w, &second)

	if first.Movement.ID != second.Movement.ID {
		t.Errorf("expected the retry to return movement %s, got %s", first.Movement.ID, second.Movement.ID)
	}
	if !second.Item.Quantity.Equal(dec("7")) {
		t.Errorf("expected quantity 7 after the retry, got %s", second.Item.Quantity)
	}

	if w := api.move(models.Outbound, "FH-001", "4", key); w.Code != http.StatusBadRequest {
		t.Errorf("reusing a key for another movement: expected 400, got %d", w.Code)
	}
}

func TestGetMovementsHandler(t *testing.T) {
	api := newTestAPI(t)
	api.createItem(t, "OL-002", "10", "0")
	for _, q := range []string{"1", "2", "3"} {
		api.move(models.Inbound, "OL-002", q)
	}
	api.move(models.Outbound, "OL-002", "4")

	w := api.do(http.MethodGet, "/items/OL-002/movements?limit=2", api.operatorToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var res handlers.MovementsSearchResult
	decode(t, w, &res)
	if res.Meta.TotalCount != 5 {
		t.Errorf("expected 5 movements including the opening one, got %d", res.Meta.TotalCount)
	}
	if len(res.Data) != 2 {
		t.Fatalf("expected a page of 2, got %d", len(res.Data))
	}
	if res.Data[0].Type != models.Outbound {
		t.Errorf("expected newest first, got %s", res.Data[0].Type)
	}

	w = api.do(http.MethodGet, "/items/OL-002/movements?type=inbound", api.operatorToken, nil)
	decode(t, w, &res)
	if res.Meta.TotalCount != 4 {
		t.Errorf("expected 4 inbound movements, got %d", res.Meta.TotalCount)
	}

	for path, status := range map[string]int{
		"/items/OL-002/movements?since=yesterday":                                       http.StatusBadRequest,
		"/items/OL-002/movements?since=2025-01-02T00:00:00Z&until=2025-01-01T00:00:00Z": http.StatusBadRequest,
		"/items/OL-002/movements?type=sideways":                                         http.StatusBadRequest,
		"/items/NOPE/movements":                                                         http.StatusNotFound,
	} {
		if w := api.do(http.MethodGet, path, api.operatorToken, nil); w.Code != status {
			t.Errorf("%s: expected %d, got %d", path, status, w.Code)
		}
	}
}

func TestExportMovementsHandler(t *testing.T) {
	api := newTestAPI(t)
	api.createItem(t, "FC-001", "8", "0")
	api.move(models.Outbound, "FC-001", "3")

	w := api.do(http.MethodGet, "/items/FC-001/movements/export?format=csv", api.operatorToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("expected text/csv, got %q", ct)
	}
	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(records))
	}
	if records[1][3] != "inbound" || records[1][9] != "true" {
		t.Errorf("expected the opening movement first, got %v", records[1])
	}
	if records[2][3] != "outbound" || records[2][5] != "5" {
		t.Errorf("expected outbound with balance 5, got %v", records[2])
	}

	w = api.do(http.MethodGet, "/items/FC-001/movements/export?format=json", api.operatorToken, nil)
	var movements []models.Movement
	decode(t, w, &movements)
	if len(movements) != 2 {
		t.Errorf("expected 2 movements, got %d", len(movements))
	}

	if w := api.do(http.MethodGet, "/items/FC-001/movements/export?format=xml", api.operatorToken, nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown format, got %d", w.Code)
	}
	if w := api.do(http.MethodGet, "/items/NOPE/movements/export?format=csv", api.operatorToken, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown item, got %d", w.Code)
	}
}

func TestReconcileItemHandler(t *testing.T) {
	api := newTestAPI(t)
	api.createItem(t, "KT-001", "4", "1")
	api.move(models.Outbound, "KT-001", "1")

	w := api.do(http.MethodGet, "/items/KT-001/reconcile", api.operatorToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var res ledger.ReconcileResult
	decode(t, w, &res)
	if res.Drift || !res.Ledger.Equal(dec("3")) {
		t.Errorf("expected no drift at 3, got %+v", res)
	}

	if w := api.do(http.MethodPost, "/items/KT-001/reconcile?repair=true", api.operatorToken, nil); w.Code != http.StatusForbidden {
		t.Errorf("operators cannot repair, got %d", w.Code)
	}
	if w := api.do(http.MethodPost, "/items/KT-001/reconcile?repair=true", api.adminToken, nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 for admin repair, got %d", w.Code)
	}
	if w := api.do(http.MethodGet, "/items/NOPE/reconcile", api.operatorToken, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestApplyMovementHandler_RejectsUnstorableInput(t *testing.T) {
	api := newTestAPI(t)
	api.createItem(t, "OL-001", "100", "20")

	path := "/items/OL-001/movements"
	tests := []struct {
		name    string
		req     handlers.MovementRequest
		headers [][2]string
		field   string
	}{
		{"seq past the limit", handlers.MovementRequest{Type: models.Inbound, Quantity: dec("1"), Seq: math.MaxInt64}, nil, "seq"},
		{"too many decimal places", handlers.MovementRequest{Type: models.Inbound, Quantity: dec("0.00001")}, nil, ""},
		{"long idempotency key", handlers.MovementRequest{Type: models.Inbound, Quantity: dec("1")}, [][2]string{{"Idempotency-Key", strings.Repeat("k", 300)}}, "idempotency_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(http.MethodPost, path, api.operatorToken, tt.req, tt.headers...)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if w.Header().Get("Retry-After") != "" {
				t.Error("input errors must not ask for a retry")
			}
			if tt.field == "" {
				return
			}
			var resp handlers.ErrorResponse
			decode(t, w, &resp)
			if len(resp.Errors) != 1 || resp.Errors[0].Field != tt.field {
				t.Errorf("expected one error on %s, got %+v", tt.field, resp.Errors)
			}
		})
	}

	w := api.move(models.Inbound, "OL-001", "1")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var res handlers.MovementResult
	decode(t, w, &res)
	if res.Movement.Seq <= 0 || !res.Item.Quantity.Equal(dec("101")) {
		t.Errorf("unexpected movement after rejected input: seq %d quantity %s", res.Movement.Seq, res.Item.Quantity)
	}
}
