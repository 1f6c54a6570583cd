package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
)

func (r *PostgresLedgerStore) CreateItem(ctx context.Context, item models.Item, opening *models.Movement) (models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = item.CreatedAt
	item.Version = 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Item{}, err
	}
	defer tx.Rollback()

	query := `INSERT INTO items (` + itemColumns + `)
		VALUES (:code, :name, :category, :unit, :min_threshold, :unit_value, :quantity, :initial_quantity,
			:location, :supplier, :description, :retired, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, item); err != nil {
		return models.Item{}, mapPgError(err)
	}

	if opening != nil {
		opening.ItemCode = item.Code
		if err := insertMovement(ctx, tx, opening); err != nil {
			return models.Item{}, fmt.Errorf("failed to insert opening movement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Item{}, err
	}
	return item, nil
}

func (r *PostgresLedgerStore) GetItem(ctx context.Context, code string) (models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var item models.Item
	err := r.db.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM items WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrItemNotFound
	}
	return item, err
}

func (r *PostgresLedgerStore) UpdateItem(ctx context.Context, item models.Item) (models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE items
		SET name = $1, category = $2, unit = $3, min_threshold = $4, unit_value = $5,
			location = $6, supplier = $7, description = $8, updated_at = $9
		WHERE code = $10
		RETURNING ` + itemColumns

	var updated models.Item
	err := r.db.GetContext(ctx, &updated, query,
		item.Name, item.Category, item.Unit, item.MinThreshold, item.UnitValue,
		item.Location, item.Supplier, item.Description, time.Now().UTC(), item.Code)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrItemNotFound
	}
	if err != nil {
		return models.Item{}, mapPgError(err)
	}
	return updated, nil
}

func (r *PostgresLedgerStore) RetireItem(ctx context.Context, code string) (models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var item models.Item
	err := r.db.GetContext(ctx, &item,
		`UPDATE items SET retired = TRUE, updated_at = $1 WHERE code = $2 RETURNING `+itemColumns,
		time.Now().UTC(), code)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrItemNotFound
	}
	return item, err
}

func (r *PostgresLedgerStore) FilterItems(ctx context.Context, f ItemFilter) ([]models.Item, int, error) {
	conditions, args, argIdx := itemFilterConditions(f)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM items WHERE 1=1"+conditions, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + itemColumns + ` FROM items WHERE 1=1` + conditions + " ORDER BY code"
	if f.Limit != nil && *f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, *f.Limit)
		argIdx++
	}
	if f.Offset != nil && *f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, *f.Offset)
	}

	items := []models.Item{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func itemFilterConditions(f ItemFilter) (string, []any, int) {
	query := ""
	argIdx := 1
	args := []any{}

	if !f.IncludeRetired {
		query += " AND NOT retired"
	}
	if f.Name != "" {
		query += fmt.Sprintf(" AND name ILIKE $%d", argIdx)
		args = append(args, "%"+f.Name+"%")
		argIdx++
	}
	if f.Category != "" {
		query += fmt.Sprintf(" AND category ILIKE $%d", argIdx)
		args = append(args, f.Category)
		argIdx++
	}
	if f.LowStock {
		query += " AND quantity < min_threshold"
	}

	return query, args, argIdx
}

func (r *PostgresLedgerStore) AllItems(ctx context.Context) ([]models.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	items := []models.Item{}
	err := r.db.SelectContext(ctx, &items, `SELECT `+itemColumns+` FROM items ORDER BY code`)
	return items, err
}
