package ledger

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/rogerio-castellano/fleet-maintenance/internal/models"
	"github.com/rogerio-castellano/fleet-maintenance/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ReconcileResult struct {
	Code     string          `json:"code"`
	Cached   decimal.Decimal `json:"cached"`
	Ledger   decimal.Decimal `json:"ledger"`
	Drift    bool            `json:"drift"`
	Repaired bool            `json:"repaired"`
}

// replay sums the log of item. Items registered without an opening
// movement start from their declared initial quantity.
func replay(item models.Item, movements iter.Seq2[models.Movement, error]) (decimal.Decimal, error) {
	total := decimal.Zero
	opened := false
	for m, err := range movements {
		if err != nil {
			return decimal.Zero, err
		}
		if m.Opening {
			opened = true
		}
		total = total.Add(m.Signed())
	}
	if !opened {
		total = total.Add(item.InitialQuantity)
	}
	return total, nil
}

// Recompute derives the item's quantity from its movements alone. It never
// writes.
func (e *Engine) Recompute(ctx context.Context, code string) (decimal.Decimal, error) {
	item, err := e.store.GetItem(ctx, code)
	if err != nil {
		return decimal.Zero, storageError("recompute", code, err)
	}

	qty, err := replay(item, e.store.ListFor(ctx, code, repo.Ascending))
	if err != nil {
		return decimal.Zero, storageError("recompute", code, err)
	}
	return qty, nil
}

// Reconcile compares the cached quantity with the log while holding the
// item lock. Drift is reported as a DriftDetectedError unless repair is
// set, in which case the cached quantity is overwritten with the log's.
func (e *Engine) Reconcile(ctx context.Context, code string, repair bool) (ReconcileResult, error) {
	var res ReconcileResult
	err := e.retry(ctx, "reconcile", func() error {
		err := e.store.WithItemLock(ctx, code, func(tx repo.LedgerTx) error {
			item := tx.Item()
			truth, err := replay(item, tx.Movements())
			if err != nil {
				return err
			}

			res = ReconcileResult{Code: code, Cached: item.Quantity, Ledger: truth, Drift: !item.Quantity.Equal(truth)}
			if !res.Drift || !repair {
				return nil
			}
			if err := tx.SetQuantity(truth); err != nil {
				return err
			}
			res.Repaired = true
			return nil
		})
		return storageError("reconcile", code, err)
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	if res.Repaired {
		e.log.Warn("cached quantity repaired from ledger",
			zap.String("code", code),
			zap.String("cached", res.Cached.String()),
			zap.String("ledger", res.Ledger.String()))
		return res, nil
	}
	if res.Drift {
		return res, &DriftDetectedError{Code: code, Cached: res.Cached, Ledger: res.Ledger}
	}
	return res, nil
}

// Audit reconciles every item, retired ones included, and returns the
// results of those that drifted. Failures on one item do not stop the run.
func (e *Engine) Audit(ctx context.Context, repair bool) ([]ReconcileResult, error) {
	items, err := e.store.AllItems(ctx)
	if err != nil {
		return nil, storageError("audit", "", err)
	}

	var (
		drifted []ReconcileResult
		errs    []error
	)
	for _, item := range items {
		res, err := e.Reconcile(ctx, item.Code, repair)
		if res.Drift {
			drifted = append(drifted, res)
		}
		if err != nil && !errors.Is(err, ErrDriftDetected) {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return drifted, errors.Join(errs...)
}

// StartAuditLoop runs Audit every interval until ctx is done.
func (e *Engine) StartAuditLoop(ctx context.Context, interval time.Duration, repair bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		drifted, err := e.Audit(ctx, repair)
		if err != nil {
			e.log.Error("ledger audit failed", zap.Error(err))
		}
		for _, d := range drifted {
			e.log.Warn("ledger drift",
				zap.String("code", d.Code),
				zap.String("cached", d.Cached.String()),
				zap.String("ledger", d.Ledger.String()),
				zap.Bool("repaired", d.Repaired))
		}
		e.log.Info("ledger audit finished", zap.Int("drifted", len(drifted)))
	}
}
