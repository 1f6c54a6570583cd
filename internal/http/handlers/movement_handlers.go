package handlers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

// ApplyMovementHandler godoc
// @Summary Record an inbound or outbound movement
// @Description Applies the movement and updates the item quantity atomically. Repeating a request with the same Idempotency-Key returns the movement recorded the first time.
// @Tags movements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Item code"
// @Param Idempotency-Key header string false "Client generated key"
// @Param movement body MovementRequest true "Movement"
// @Success 201 {object} MovementResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Insufficient stock, retired item or out of order"
// @Failure 503 {object} ErrorResponse "Transient failure, retry with the same key"
// @Router /items/{code}/movements [post]
func (s *Server) ApplyMovementHandler(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, "invalid input")
		return
	}

	in := ledger.ApplyInput{
		ItemCode:       chi.URLParam(r, "code"),
		Type:           req.Type,
		Quantity:       req.Quantity,
		Actor:          actor(r),
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		Seq:            req.Seq,
	}
	if key := r.Header.Get(idempotencyHeader); key != "" {
		in.IdempotencyKey = key
	}
	if req.OccurredAt != nil {
		in.OccurredAt = req.OccurredAt.UTC()
	}

	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	m, err := s.engine.ApplyMovement(ctx, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.catalog.Get(ctx, m.ItemCode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, MovementResult{Movement: m, Item: toItemResponse(item)})
}

func movementFilter(r *http.Request) (repo.MovementFilter, error) {
	q := r.URL.Query()
	since, until, err := parseRange(q)
	if err != nil {
		return repo.MovementFilter{}, err
	}
	offset, limit, err := parsePage(q)
	if err != nil {
		return repo.MovementFilter{}, err
	}

	mf := repo.MovementFilter{Since: since, Until: until, Offset: offset, Limit: limit}
	if t := models.MovementType(q.Get("type")); t != "" {
		if !t.Valid() {
			return repo.MovementFilter{}, errors.New("type must be inbound or outbound")
		}
		mf.Type = t
	}
	return mf, nil
}

// GetMovementsHandler godoc
// @Summary Get item movement logs
// @Description Newest first. At most 100 movements per page.
// @Tags movements
// @Produce json
// @Security BearerAuth
// @Param code path string true "Item code"
// @Param type query string false "inbound or outbound"
// @Param since query string false "Filter movements from this timestamp (RFC3339)"
// @Param until query string false "Filter movements until this timestamp (RFC3339)"
// @Param offset query int false "Offset for pagination"
// @Param limit query int false "Limit for pagination"
// @Success 200 {object} MovementsSearchResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /items/{code}/movements [get]
func (s *Server) GetMovementsHandler(w http.ResponseWriter, r *http.Request) {
	mf, err := movementFilter(r)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	code := chi.URLParam(r, "code")
	if _, err := s.catalog.Get(ctx, code); err != nil {
		s.writeError(w, r, err)
		return
	}

	movements, total, err := s.movements.FilterMovements(ctx, code, mf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, MovementsSearchResult{Data: movements, Meta: Meta{TotalCount: total}})
}

func inRange(m models.Movement, since, until *time.Time) bool {
	if since != nil && m.OccurredAt.Before(*since) {
		return false
	}
	if until != nil && m.OccurredAt.After(*until) {
		return false
	}
	return true
}

// ExportMovementsHandler godoc
// @Summary Export item movement logs
// @Description Streams the whole log in occurrence order.
// @Tags movements
// @Produce text/csv,application/json
// @Security BearerAuth
// @Param code path string true "Item code"
// @Param format query string true "Export format (csv or json)"
// @Param since query string false "Filter from timestamp (RFC3339)"
// @Param until query string false "Filter until timestamp (RFC3339)"
// @Success 200 {file} file
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /items/{code}/movements/export [get]
func (s *Server) ExportMovementsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := q.Get("format")
	if format != "csv" && format != "json" {
		s.badRequest(w, "format must be 'csv' or 'json'")
		return
	}
	since, until, err := parseRange(q)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	code := chi.URLParam(r, "code")
	if _, err := s.catalog.Get(r.Context(), code); err != nil {
		s.writeError(w, r, err)
		return
	}

	filename := code + "-movements." + format
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	var (
		write func(models.Movement) error
		flush func() error
	)
	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		first := true
		_, _ = w.Write([]byte("["))
		write = func(m models.Movement) error {
			if !first {
				if _, err := w.Write([]byte(",")); err != nil {
					return err
				}
			}
			first = false
			return enc.Encode(m)
		}
		flush = func() error {
			_, err := w.Write([]byte("]\n"))
			return err
		}

	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"seq", "id", "item_code", "type", "quantity", "balance_after", "occurred_at", "actor", "reason", "opening"})
		write = func(m models.Movement) error {
			return cw.Write([]string{
				strconv.FormatInt(m.Seq, 10),
				m.ID,
				m.ItemCode,
				string(m.Type),
				m.Quantity.String(),
				m.BalanceAfter.String(),
				m.OccurredAt.Format(time.RFC3339),
				m.Actor,
				m.Reason,
				strconv.FormatBool(m.Opening),
			})
		}
		flush = func() error {
			cw.Flush()
			return cw.Error()
		}
	}

	for m, err := range s.movements.ListFor(r.Context(), code, repo.Ascending) {
		if err != nil {
			// headers are gone; all that is left is to cut the stream short
			s.log.Error("movement export interrupted", zap.String("code", code), zap.Error(err))
			return
		}
		if !inRange(m, since, until) {
			continue
		}
		if err := write(m); err != nil {
			s.log.Warn("movement export aborted by client", zap.String("code", code), zap.Error(err))
			return
		}
	}
	if err := flush(); err != nil {
		s.log.Warn("failed to finish movement export", zap.String("code", code), zap.Error(err))
	}
}

// ReconcileItemHandler godoc
// @Summary Compare the cached quantity with the movement log
// @Description GET only reports. POST with repair=true overwrites a drifted cached quantity with the value replayed from the log.
// @Tags movements
// @Produce json
// @Security BearerAuth
// @Param code path string true "Item code"
// @Param repair query bool false "Repair drift (POST only)"
// @Success 200 {object} ledger.ReconcileResult
// @Failure 404 {object} ErrorResponse
// @Router /items/{code}/reconcile [get]
// @Router /items/{code}/reconcile [post]
func (s *Server) ReconcileItemHandler(w http.ResponseWriter, r *http.Request) {
	repair := false
	if r.Method == http.MethodPost {
		repair, _ = strconv.ParseBool(r.URL.Query().Get("repair"))
	}

	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	res, err := s.engine.Reconcile(ctx, chi.URLParam(r, "code"), repair)
	if err != nil && !errors.Is(err, ledger.ErrDriftDetected) {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}
