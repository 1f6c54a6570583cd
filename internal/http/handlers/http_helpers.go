package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rogerio-castellano/fleet-maintenance/internal/auth"
	"github.com/rogerio-castellano/fleet-maintenance/internal/fleet"
	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"go.uber.org/zap"
)

// readJSON tries to read the body of a request and converts it into JSON
func readJSON(w http.ResponseWriter, r *http.Request, data any) error {
	maxBytes := 1048576 // one megabyte
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	err := dec.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to read JSON: %w", err)
	}

	err = dec.Decode(&struct{}{})
	if err != io.EOF {
		return errors.New("body must have only a single json value")
	}

	return nil
}

// writeJSON takes a response status code and arbitrary data and writes a json response to the client
func writeJSON(w http.ResponseWriter, status int, data any, headers ...http.Header) error {
	out, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to read JSON: %w", err)
	}

	if len(headers) > 0 {
		for key, value := range headers[0] {
			w.Header()[key] = value
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(out)
	if err != nil {
		return fmt.Errorf("failed to write to response: %w", err)
	}

	return nil
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	if err := writeJSON(w, status, data); err != nil {
		s.log.Warn("failed to write JSON response", zap.Error(err))
	}
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.respond(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrNoSuchMovement),
		errors.Is(err, repo.ErrMachineNotFound),
		errors.Is(err, repo.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrDuplicateCode),
		errors.Is(err, repo.ErrDuplicatedValueUnique),
		errors.Is(err, ledger.ErrInsufficientStock),
		errors.Is(err, ledger.ErrRetired),
		errors.Is(err, ledger.ErrOutOfOrder),
		errors.Is(err, ledger.ErrDriftDetected),
		errors.Is(err, fleet.ErrInvalidTransition),
		errors.Is(err, repo.ErrStaleOrder),
		errors.Is(err, repo.ErrHourMeterRegression):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrTransient),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)

	resp := ErrorResponse{Error: err.Error()}
	var verrs ledger.ValidationErrors
	if errors.As(err, &verrs) {
		resp = ErrorResponse{Error: "validation failed", Errors: verrs}
	}

	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		s.log.Warn("transient failure", zap.String("path", r.URL.Path), zap.Error(err))
	case http.StatusInternalServerError:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		resp = ErrorResponse{Error: "internal error"}
	}
	s.respond(w, status, resp)
}

func actor(r *http.Request) string {
	if c := auth.ClaimsFrom(r.Context()); c != nil {
		return c.Username
	}
	return ""
}

func parseIntPtr(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseTimePtr parses an RFC3339 query value. A '+' in the offset arrives as
// a space after query decoding and is put back first.
func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if len(s) == len(time.RFC3339) && s[len(s)-6] == ' ' {
		s = s[:len(s)-6] + "+" + s[len(s)-5:]
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func uintParam(r *http.Request, name string) (uint, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(v), nil
}
