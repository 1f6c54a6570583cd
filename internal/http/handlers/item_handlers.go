package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
)

// CreateItemHandler godoc
// @Summary Register a new item
// @Description Adds an item to the catalog. A positive initial quantity is recorded as an opening movement.
// @Tags items
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param item body ItemRequest true "Item to register"
// @Success 201 {object} ItemResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Code already registered"
// @Router /items [post]
func (s *Server) CreateItemHandler(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, "invalid input")
		return
	}

	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	created, err := s.catalog.Register(ctx, ledger.RegisterInput{
		Code:            req.Code,
		Name:            req.Name,
		Category:        req.Category,
		Unit:            req.Unit,
		MinThreshold:    req.MinThreshold,
		UnitValue:       req.UnitValue,
		InitialQuantity: req.InitialQuantity,
		Location:        req.Location,
		Supplier:        req.Supplier,
		Description:     req.Description,
		Actor:           actor(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, toItemResponse(created))
}

// GetItemsHandler godoc
// @Summary Filter and paginate items
// @Tags items
// @Produce json
// @Security BearerAuth
// @Param name query string false "Filter by name"
// @Param category query string false "Filter by category"
// @Param low_stock query bool false "Only items below their minimum"
// @Param include_retired query bool false "Include retired items"
// @Param offset query int false "Offset for pagination"
// @Param limit query int false "Limit for pagination"
// @Success 200 {object} ItemsSearchResult
// @Failure 400 {object} ErrorResponse
// @Router /items [get]
func (s *Server) GetItemsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, limit, err := parsePage(q)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	filter := repo.ItemFilter{
		Name:     q.Get("name"),
		Category: q.Get("category"),
		Offset:   offset,
		Limit:    limit,
	}
	filter.LowStock, _ = strconv.ParseBool(q.Get("low_stock"))
	filter.IncludeRetired, _ = strconv.ParseBool(q.Get("include_retired"))

	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	items, total, err := s.catalog.List(ctx, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, ItemsSearchResult{Data: toItemResponses(items), Meta: Meta{TotalCount: total}})
}

// GetItemHandler godoc
// @Summary Get item by code
// @Tags items
// @Produce json
// @Security BearerAuth
// @Param code path string true "Item code"
// @Success 200 {object} ItemResponse
// @Failure 404 {object} ErrorResponse
// @Router /items/{code} [get]
func (s *Server) GetItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	item, err := s.catalog.Get(ctx, chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, toItemResponse(item))
}

// UpdateItemHandler godoc
// @Summary Update the descriptive fields of an item
// @Description Quantity is ignored; it only changes through movements.
// @Tags items
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Item code"
// @Param item body ItemRequest true "Updated item"
// @Success 200 {object} ItemResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /items/{code} [put]
func (s *Server) UpdateItemHandler(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if err := readJSON(w, r, &req); err != nil {
		s.badRequest(w, "invalid input")
		return
	}

	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	updated, err := s.catalog.Update(ctx, chi.URLParam(r, "code"), ledger.UpdateInput{
		Name:         req.Name,
		Category:     req.Category,
		Unit:         req.Unit,
		MinThreshold: req.MinThreshold,
		UnitValue:    req.UnitValue,
		Location:     req.Location,
		Supplier:     req.Supplier,
		Description:  req.Description,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, toItemResponse(updated))
}

// RetireItemHandler godoc
// @Summary Retire an item
// @Description The item keeps its history but no longer accepts movements.
// @Tags items
// @Produce json
// @Security BearerAuth
// @Param code path string true "Item code"
// @Success 200 {object} ItemResponse
// @Failure 404 {object} ErrorResponse
// @Router /items/{code} [delete]
func (s *Server) RetireItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.opContext(r.Context())
	defer cancel()

	item, err := s.catalog.Retire(ctx, chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, toItemResponse(item))
}
