package handlers

import (
	"net/http"

	"github.com/rogerio-castellano/fleet-maintenance/internal/fleet"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
)

// machineID reads the {id} path parameter, answering 400 when it is not a
// positive number.
func (s *Server) machineID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.badRequest(w, err.Error())
		return 0, false
	}
	return id, true
}

// CreateMachineHandler godoc
// @Summary Register a harvester
// @Tags machines
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param machine body fleet.MachineInput true "Machine"
// @Success 201 {object} models.Machine
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Fleet number already registered"
// @Router /machines [post]
func (s *Server) CreateMachineHandler(w http.ResponseWriter, r *http.Request) {
	var in fleet.MachineInput
	if err := readJSON(w, r, &in); err != nil {
		s.badRequest(w, "invalid input")
		return
	}

	m, err := s.fleet.RegisterMachine(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, m)
}

// GetMachinesHandler godoc
// @Summary List harvesters
// @Tags machines
// @Produce json
// @Security BearerAuth
// @Param status query string false "active, in_maintenance or inactive"
// @Param offset query int false "Offset for pagination"
// @Param limit query int false "Limit for pagination"
// @Success 200 {object} MachinesSearchResult
// @Failure 400 {object} ErrorResponse
// @Router /machines [get]
func (s *Server) GetMachinesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, limit, err := parsePage(q)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	machines, total, err := s.fleet.ListMachines(r.Context(), repo.MachineFilter{
		Status: models.MachineStatus(q.Get("status")),
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, MachinesSearchResult{Data: machines, Meta: Meta{TotalCount: total}})
}

// GetMachineHandler godoc
// @Summary Machine with its readings, oil changes and maintenance orders
// @Tags machines
// @Produce json
// @Security BearerAuth
// @Param id path int true "Machine ID"
// @Success 200 {object} fleet.MachineDetail
// @Failure 404 {object} ErrorResponse
// @Router /machines/{id} [get]
func (s *Server) GetMachineHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.machineID(w, r)
	if !ok {
		return
	}

	d, err := s.fleet.MachineDetail(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, d)
}

// RecordHourMeterHandler godoc
// @Summary Record an hour meter reading
// @Tags machines
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Machine ID"
// @Param reading body fleet.HourMeterInput true "Reading"
// @Success 201 {object} models.HourMeterReading
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Lower than the current reading"
// @Router /machines/{id}/hour-meter [post]
func (s *Server) RecordHourMeterHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.machineID(w, r)
	if !ok {
		return
	}
	var in fleet.HourMeterInput
	if err := readJSON(w, r, &in); err != nil {
		s.badRequest(w, "invalid input")
		return
	}

	reading, err := s.fleet.RecordHourMeter(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, reading)
}

// GetHourMeterHandler godoc
// @Summary Hour meter readings of a machine
// @Tags machines
// @Produce json
// @Security BearerAuth
// @Param id path int true "Machine ID"
// @Success 200 {array} models.HourMeterReading
// @Failure 404 {object} ErrorResponse
// @Router /machines/{id}/hour-meter [get]
func (s *Server) GetHourMeterHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.machineID(w, r)
	if !ok {
		return
	}

	readings, err := s.fleet.HourMeterReadings(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, readings)
}

// RecordOilChangeHandler godoc
// @Summary Record an oil change
// @Description Takes the oil out of stock as an outbound movement. Retrying with the same Idempotency-Key does not consume oil twice.
// @Tags machines
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Machine ID"
// @Param Idempotency-Key header string false "Client generated key"
// @Param change body fleet.OilChangeInput true "Oil change"
// @Success 201 {object} models.OilChange
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Insufficient oil in stock"
// @Router /machines/{id}/oil-changes [post]
func (s *Server) RecordOilChangeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.machineID(w, r)
	if !ok {
		return
	}
	var in fleet.OilChangeInput
	if err := readJSON(w, r, &in); err != nil {
		s.badRequest(w, "invalid input")
		return
	}
	in.Actor = actor(r)
	in.IdempotencyKey = r.Header.Get(idempotencyHeader)

	oc, err := s.fleet.RecordOilChange(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, oc)
}

// GetOilChangesHandler godoc
// @Summary Oil changes of a machine
// @Tags machines
// @Produce json
// @Security BearerAuth
// @Param id path int true "Machine ID"
// @Success 200 {array} models.OilChange
// @Failure 404 {object} ErrorResponse
// @Router /machines/{id}/oil-changes [get]
func (s *Server) GetOilChangesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.machineID(w, r)
	if !ok {
		return
	}

	changes, err := s.fleet.OilChanges(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, changes)
}

// OpenMaintenanceHandler godoc
// @Summary Open a maintenance order
// @Description Corrective orders start in progress and put the machine in maintenance.
// @Tags maintenance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Machine ID"
// @Param order body fleet.MaintenanceInput true "Order"
// @Success 201 {object} models.MaintenanceOrder
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /machines/{id}/maintenance [post]
func (s *Server) OpenMaintenanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.machineID(w, r)
	if !ok {
		return
	}
	var in fleet.MaintenanceInput
	if err := readJSON(w, r, &in); err != nil {
		s.badRequest(w, "invalid input")
		return
	}

	o, err := s.fleet.OpenMaintenance(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, o)
}

// GetMaintenanceHandler godoc
// @Summary Maintenance orders of a machine
// @Tags maintenance
// @Produce json
// @Security BearerAuth
// @Param id path int true "Machine ID"
// @Success 200 {array} models.MaintenanceOrder
// @Failure 404 {object} ErrorResponse
// @Router /machines/{id}/maintenance [get]
func (s *Server) GetMaintenanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.machineID(w, r)
	if !ok {
		return
	}

	orders, err := s.fleet.Orders(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, orders)
}

// TransitionMaintenanceHandler godoc
// @Summary Move a maintenance order to a new status
// @Description Finishing an order consumes its parts from stock.
// @Tags maintenance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Order ID"
// @Param transition body fleet.TransitionInput true "Transition"
// @Success 200 {object} models.MaintenanceOrder
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Transition not allowed or insufficient stock"
// @Router /maintenance/{id}/transition [post]
func (s *Server) TransitionMaintenanceHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	var in fleet.TransitionInput
	if err := readJSON(w, r, &in); err != nil {
		s.badRequest(w, "invalid input")
		return
	}
	in.Actor = actor(r)

	o, err := s.fleet.Transition(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, o)
}
