package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/alerts"
	"github.com/rogerio-castellano/fleet-maintenance/internal/auth"
	"github.com/rogerio-castellano/fleet-maintenance/internal/config"
	"github.com/rogerio-castellano/fleet-maintenance/internal/fleet"
	"github.com/rogerio-castellano/fleet-maintenance/internal/http/handlers"
	"github.com/rogerio-castellano/fleet-maintenance/internal/http/router"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminUser    = "admin"
	operatorUser = "joao"
	password     = "secret123"
)

type testAPI struct {
	h             http.Handler
	adminToken    string
	operatorToken string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := zap.NewNop()

	store := repo.NewInMemoryLedgerStore()
	engine := ledger.NewEngine(store, nil, log, ledger.Options{RetryAttempts: 1})
	notifier := alerts.NewNotifier(alerts.NewMemoryEventLog(), config.AlertsConfig{}, log)
	engine.SetAlerter(notifier)

	users := repo.NewInMemoryUserRepository()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	for name, role := range map[string]string{adminUser: models.RoleAdmin, operatorUser: models.RoleOperator} {
		if _, err := users.CreateUser(context.Background(), models.User{Username: name, PasswordHash: string(hash), Role: role}); err != nil {
			t.Fatal(err)
		}
	}

	tokens := auth.NewTokenIssuer("handler-test-secret", time.Minute)
	srv := handlers.NewServer(handlers.Deps{
		Catalog:   ledger.NewCatalog(store, log),
		Engine:    engine,
		Reporter:  ledger.NewReporter(store, repo.NewInMemoryMetricsRepository(store)),
		Movements: store,
		Fleet:     fleet.NewService(repo.NewInMemoryFleetStore(), engine, log),
		Alerts:    notifier,
		Users:     users,
		Tokens:    tokens,
		Refresh:   auth.NewMemoryRefreshStore(),
		Log:       log,
	})

	api := &testAPI{h: router.NewRouter(router.Options{Server: srv, Tokens: tokens, Log: log})}
	api.adminToken = api.login(t, adminUser, password).Token
	api.operatorToken = api.login(t, operatorUser, password).Token
	return api
}

func (a *testAPI) login(t *testing.T, username, pass string) handlers.LoginResult {
	t.Helper()
	w := a.do(http.MethodPost, "/login", "", handlers.CredentialsRequest{Username: username, Password: pass})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, w.Code, w.Body.String())
	}
	var res handlers.LoginResult
	decode(t, w, &res)
	return res
}

// do sends body as JSON; a nil body sends none.
func (a *testAPI) do(method, path, token string, body any, headers ...[2]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, h := range headers {
		req.Header.Set(h[0], h[1])
	}
	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, req)
	return w
}

func (a *testAPI) createItem(t *testing.T, code, initial, minThreshold string) handlers.ItemResponse {
	t.Helper()
	w := a.do(http.MethodPost, "/items", a.operatorToken, handlers.ItemRequest{
		Code:            code,
		Name:            "Item " + code,
		Category:        "Lubrificantes",
		Unit:            "Litros",
		MinThreshold:    dec(minThreshold),
		UnitValue:       dec("25.5"),
		InitialQuantity: dec(initial),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %s: expected 201, got %d: %s", code, w.Code, w.Body.String())
	}
	var item handlers.ItemResponse
	decode(t, w, &item)
	return item
}

func (a *testAPI) move(typ models.MovementType, code, qty string, headers ...[2]string) *httptest.ResponseRecorder {
	return a.do(http.MethodPost, "/items/"+code+"/movements", a.operatorToken,
		handlers.MovementRequest{Type: typ, Quantity: dec(qty)}, headers...)
}

func multipartCSV(csvContent string) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, _ := writer.CreateFormFile("file", "items.csv")
	_, _ = part.Write([]byte(csvContent))

	_ = writer.Close()
	return &buf, writer.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("error decoding response: %v", err)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
