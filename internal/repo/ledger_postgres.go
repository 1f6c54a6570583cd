package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/shopspring/decimal"
)

const (
	itemColumns     = `code, name, category, unit, min_threshold, unit_value, quantity, initial_quantity, location, supplier, description, retired, version, created_at, updated_at`
	movementColumns = `id, seq, item_code, type, quantity, balance_after, occurred_at, actor, reason, opening, COALESCE(idempotency_key, '') AS idempotency_key, recorded_at`

	uniqueViolation = "23505"
)

// PostgresLedgerStore keeps items and movements in Postgres. Every apply is
// one transaction holding the item row lock.
type PostgresLedgerStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ LedgerStore = (*PostgresLedgerStore)(nil)

func NewPostgresLedgerStore(db *sqlx.DB, timeout time.Duration) *PostgresLedgerStore {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PostgresLedgerStore{db: db, timeout: timeout}
}

// mapPgError turns the Postgres errors callers can act on into repo errors.
// Class 22 (data exception) and class 23 (integrity constraint) mean the
// value itself was refused.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "movements_idempotency_key_idx":
			return ErrDuplicateIdempotencyKey
		case "movements_pkey":
			return ErrOutOfOrder
		}
		return ErrDuplicatedValueUnique
	}
	if strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23") {
		return &RejectedValueError{Column: pgErr.ColumnName, Message: pgErr.Message}
	}
	return err
}

func insertMovement(ctx context.Context, tx *sqlx.Tx, m *models.Movement) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.RecordedAt = time.Now().UTC()

	args := []any{m.ID, m.ItemCode, string(m.Type), m.Quantity, m.BalanceAfter, m.OccurredAt, m.Actor, m.Reason, m.Opening, m.IdempotencyKey, m.RecordedAt}

	if m.Seq == 0 {
		query := `INSERT INTO movements (id, item_code, type, quantity, balance_after, occurred_at, actor, reason, opening, idempotency_key, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11) RETURNING seq`
		return mapPgError(tx.QueryRowxContext(ctx, query, args...).Scan(&m.Seq))
	}

	query := `INSERT INTO movements (id, item_code, type, quantity, balance_after, occurred_at, actor, reason, opening, idempotency_key, recorded_at, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)`
	if _, err := tx.ExecContext(ctx, query, append(args, m.Seq)...); err != nil {
		return mapPgError(err)
	}

	// keep the serial ahead of explicitly numbered rows
	_, err := tx.ExecContext(ctx, `SELECT setval(pg_get_serial_sequence('movements', 'seq'), GREATEST($1, (SELECT COALESCE(MAX(seq), 1) FROM movements)))`, m.Seq)
	return mapPgError(err)
}

func (r *PostgresLedgerStore) WithItemLock(ctx context.Context, code string, fn func(tx LedgerTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	var item models.Item
	err = tx.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM items WHERE code = $1 FOR UPDATE`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock item: %w", err)
	}

	ptx := &postgresLedgerTx{ctx: ctx, tx: tx, item: item, qty: item.Quantity}
	if err := fn(ptx); err != nil {
		return err
	}

	if ptx.qtySet {
		_, err := tx.ExecContext(ctx, `UPDATE items SET quantity = $1, version = version + 1, updated_at = $2 WHERE code = $3`,
			ptx.qty, time.Now().UTC(), code)
		if err != nil {
			return fmt.Errorf("failed to update cached quantity: %w", mapPgError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return nil
}

type postgresLedgerTx struct {
	ctx    context.Context
	tx     *sqlx.Tx
	item   models.Item
	qty    decimal.Decimal
	qtySet bool
}

func (p *postgresLedgerTx) Item() models.Item {
	item := p.item
	item.Quantity = p.qty
	return item
}

func (p *postgresLedgerTx) Movements() iter.Seq2[models.Movement, error] {
	return func(yield func(models.Movement, error) bool) {
		rows, err := p.tx.QueryxContext(p.ctx, `SELECT `+movementColumns+` FROM movements WHERE item_code = $1 ORDER BY seq`, p.item.Code)
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

func (p *postgresLedgerTx) Append(m models.Movement) (models.Movement, error) {
	if m.Seq < 0 || m.Seq > MaxSeq {
		return models.Movement{}, ErrSeqOutOfRange
	}
	if m.Seq != 0 {
		var last int64
		err := p.tx.GetContext(p.ctx, &last, `SELECT COALESCE(MAX(seq), 0) FROM movements WHERE item_code = $1`, p.item.Code)
		if err != nil {
			return models.Movement{}, err
		}
		if m.Seq <= last {
			return models.Movement{}, ErrOutOfOrder
		}
	}

	m.ItemCode = p.item.Code
	if err := insertMovement(p.ctx, p.tx, &m); err != nil {
		return models.Movement{}, err
	}
	return m, nil
}

func (p *postgresLedgerTx) SetQuantity(q decimal.Decimal) error {
	if q.IsNegative() {
		return ErrInvalidQuantityChange
	}
	p.qty = q
	p.qtySet = true
	return nil
}
