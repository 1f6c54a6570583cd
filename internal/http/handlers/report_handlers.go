package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/alerts"
)

// LowStockHandler godoc
// @Summary Items below their minimum threshold
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Success 200 {array} ItemResponse
// @Router /reports/low-stock [get]
func (s *Server) LowStockHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	items, err := s.reporter.LowStock(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, toItemResponses(items))
}

// LowStockEventsHandler godoc
// @Summary Low-stock alerts raised on one day
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param date query string false "UTC day (YYYY-MM-DD), defaults to today"
// @Success 200 {array} alerts.Event
// @Failure 400 {object} ErrorResponse
// @Router /reports/low-stock/events [get]
func (s *Server) LowStockEventsHandler(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			s.badRequest(w, "date must be YYYY-MM-DD")
			return
		}
		day = d
	}

	events, err := s.alerts.Events(r.Context(), day)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []alerts.Event{}
	}
	s.respond(w, http.StatusOK, events)
}

// ValuationHandler godoc
// @Summary Total stock valuation per category
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ledger.Valuation
// @Router /reports/valuation [get]
func (s *Server) ValuationHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	v, err := s.reporter.TotalValuation(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, v)
}

// StockMovementHandler godoc
// @Summary Inbound and outbound totals per day
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param days query int false "Number of days, today included (1-366, default 7)"
// @Success 200 {array} repo.DailyMovement
// @Failure 400 {object} ErrorResponse
// @Router /reports/stock-movement [get]
func (s *Server) StockMovementHandler(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.badRequest(w, "days must be a number")
			return
		}
		days = n
	}

	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	totals, err := s.reporter.StockMovement(ctx, days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, totals)
}

// DashboardHandler godoc
// @Summary Inventory and fleet dashboard
// @Tags metrics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} DashboardResponse
// @Router /metrics/dashboard [get]
func (s *Server) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	inv, err := s.reporter.Dashboard(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fl, err := s.fleet.Dashboard(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, DashboardResponse{Inventory: inv, Fleet: fl})
}
