package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
)

func (r *PostgresLedgerStore) ListFor(ctx context.Context, code string, order SortOrder) iter.Seq2[models.Movement, error] {
	direction := "ASC"
	if order == Descending {
		direction = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM movements WHERE item_code = $1 ORDER BY occurred_at %s, seq %s`, movementColumns, direction, direction)

	return func(yield func(models.Movement, error) bool) {
		if _, err := r.GetItem(ctx, code); err != nil {
			yield(models.Movement{}, err)
			return
		}

		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		rows, err := r.db.QueryxContext(ctx, query, code)
		if err != nil {
			yield(models.Movement{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var m models.Movement
			if err := rows.StructScan(&m); err != nil {
				yield(models.Movement{}, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Movement{}, err)
		}
	}
}

// FilterMovements returns movements for a specific item, filtered by date
// range and type, and paginated.
func (r *PostgresLedgerStore) FilterMovements(ctx context.Context, code string, mf MovementFilter) ([]models.Movement, int, error) {
	if _, err := r.GetItem(ctx, code); err != nil {
		return nil, 0, err
	}

	if mf.Offset != nil && *mf.Offset < 0 {
		return nil, 0, fmt.Errorf("offset must be non-negative")
	}

	whereClause, args := buildMovementWhereClause(code, mf)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM movements "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	if mf.Offset != nil && *mf.Offset >= total {
		return []models.Movement{}, total, nil
	}

	query, queryArgs := buildMovementQuery(whereClause, args, mf)
	movements := []models.Movement{}
	if err := r.db.SelectContext(ctx, &movements, query, queryArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to execute query: %w", err)
	}
	return movements, total, nil
}

func buildMovementWhereClause(code string, mf MovementFilter) (string, []any) {
	args := []any{code}
	whereClause := "WHERE item_code = $1"
	argIndex := 2

	if mf.Since != nil {
		whereClause += fmt.Sprintf(" AND occurred_at >= $%d", argIndex)
		args = append(args, *mf.Since)
		argIndex++
	}
	if mf.Until != nil {
		whereClause += fmt.Sprintf(" AND occurred_at <= $%d", argIndex)
		args = append(args, *mf.Until)
		argIndex++
	}
	if mf.Type != "" {
		whereClause += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, string(mf.Type))
	}

	return whereClause, args
}

func buildMovementQuery(whereClause string, baseArgs []any, mf MovementFilter) (string, []any) {
	query := fmt.Sprintf("SELECT %s FROM movements %s ORDER BY occurred_at DESC, seq DESC", movementColumns, whereClause)
	args := append([]any{}, baseArgs...)
	argIndex := len(baseArgs) + 1

	query += fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, pageLimit(mf.Limit))
	argIndex++

	if mf.Offset != nil && *mf.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, *mf.Offset)
	}

	return query, args
}

func (r *PostgresLedgerStore) MovementByKey(ctx context.Context, key string) (models.Movement, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var m models.Movement
	err := r.db.GetContext(ctx, &m, `SELECT `+movementColumns+` FROM movements WHERE idempotency_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Movement{}, ErrMovementNotFound
	}
	return m, err
}
