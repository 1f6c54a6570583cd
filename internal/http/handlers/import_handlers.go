package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rogerio-castellano/fleet-maintenance/internal/ledger"
	"github.com/shopspring/decimal"
)

type csvRow struct {
	Row             int
	Code            string
	Name            string
	Category        string
	Unit            string
	MinThreshold    decimal.Decimal
	UnitValue       decimal.Decimal
	InitialQuantity decimal.Decimal
	Location        string
	Supplier        string
	Description     string
}

// rowError is a row that could not be parsed. It does not stop the import.
type rowError struct {
	Row int
	Err error
}

func parseCSV(r io.Reader) ([]csvRow, []rowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	headers, err := reader.Read()
	if err != nil {
		return nil, nil, errors.New("invalid CSV header")
	}

	index := map[string]int{}
	for i, h := range headers {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"code", "name", "category", "unit"} {
		if _, ok := index[required]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", required)
		}
	}

	var (
		rows    []csvRow
		badRows []rowError
	)
	for rowNum := 2; ; rowNum++ { // header is row 1
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) && errors.Is(perr.Err, csv.ErrFieldCount) {
				badRows = append(badRows, rowError{Row: rowNum, Err: errors.New("wrong number of fields")})
				continue
			}
			return nil, nil, fmt.Errorf("CSV read error: %v", err)
		}

		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		row := csvRow{
			Row:         rowNum,
			Code:        field("code"),
			Name:        field("name"),
			Category:    field("category"),
			Unit:        field("unit"),
			Location:    field("location"),
			Supplier:    field("supplier"),
			Description: field("description"),
		}
		var parseErr error
		for _, num := range []struct {
			name string
			dst  *decimal.Decimal
		}{
			{"min_threshold", &row.MinThreshold},
			{"unit_value", &row.UnitValue},
			{"initial_quantity", &row.InitialQuantity},
		} {
			v, err := parseDecimal(field(num.name))
			if err != nil {
				parseErr = fmt.Errorf("invalid %s", num.name)
				break
			}
			*num.dst = v
		}
		if parseErr != nil {
			badRows = append(badRows, rowError{Row: rowNum, Err: parseErr})
			continue
		}
		rows = append(rows, row)
	}
	return rows, badRows, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func rowFailure(row int, err error) ledger.FieldError {
	return ledger.FieldError{Field: fmt.Sprintf("row %d", row), Description: err.Error()}
}

// ImportItemsHandler godoc
// @Summary Import items via CSV
// @Description Columns: code,name,category,unit,min_threshold,unit_value,initial_quantity,location,supplier,description. In update mode existing items get their descriptive fields replaced; their quantity only changes through movements.
// @Tags import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Param mode query string false "Import mode (skip|update)"
// @Success 200 {object} ImportItemsResult
// @Failure 400 {object} ErrorResponse "Invalid file"
// @Router /items/import [post]
// @Security BearerAuth
func (s *Server) ImportItemsHandler(w http.ResponseWriter, r *http.Request) {
	mode := strings.ToLower(r.URL.Query().Get("mode"))
	if mode != "update" {
		mode = "skip" // default
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, "missing file")
		return
	}
	defer file.Close()

	records, badRows, err := parseCSV(file)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}

	result := ImportItemsResult{Errors: []ledger.FieldError{}}
	for _, br := range badRows {
		result.Errors = append(result.Errors, rowFailure(br.Row, br.Err))
	}

	ctx := r.Context()
	for _, rec := range records {
		_, err := s.catalog.Register(ctx, ledger.RegisterInput{
			Code:            rec.Code,
			Name:            rec.Name,
			Category:        rec.Category,
			Unit:            rec.Unit,
			MinThreshold:    rec.MinThreshold,
			UnitValue:       rec.UnitValue,
			InitialQuantity: rec.InitialQuantity,
			Location:        rec.Location,
			Supplier:        rec.Supplier,
			Description:     rec.Description,
			Actor:           importActor(r),
		})
		switch {
		case err == nil:
			result.Imported++
			continue
		case !errors.Is(err, ledger.ErrDuplicateCode):
			result.Errors = append(result.Errors, rowFailure(rec.Row, err))
			continue
		case mode == "skip":
			result.Skipped++
			continue
		}

		_, err = s.catalog.Update(ctx, rec.Code, ledger.UpdateInput{
			Name:         rec.Name,
			Category:     rec.Category,
			Unit:         rec.Unit,
			MinThreshold: rec.MinThreshold,
			UnitValue:    rec.UnitValue,
			Location:     rec.Location,
			Supplier:     rec.Supplier,
			Description:  rec.Description,
		})
		if err != nil {
			result.Errors = append(result.Errors, rowFailure(rec.Row, err))
			continue
		}
		result.Updated++
	}

	s.respond(w, http.StatusOK, result)
}

func importActor(r *http.Request) string {
	if a := actor(r); a != "" {
		return a
	}
	return "import"
}
