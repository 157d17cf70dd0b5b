package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// IntegrityDeps carries the dependencies for the nightly integrity sweep.
type IntegrityDeps struct {
	Pool   *pgxpool.Pool
	Audit  *shared.AuditLogger
	Logger *slog.Logger
}

// NewIntegrityHandler returns the handler for TaskLedgerIntegrity. It checks
// two things in parallel: every journal batch still sums to zero, and every
// stock cache row still matches its movement history. The job only reports;
// repair goes through the audited rebuild endpoint.
func NewIntegrityHandler(deps IntegrityDeps) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IntegrityPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return scanJournalBalance(ctx, deps, payload) })
		g.Go(func() error { return scanStockCache(ctx, deps) })
		if err := g.Wait(); err != nil {
			return err
		}
		deps.Logger.Info("integrity sweep clean", slog.String("job", TaskLedgerIntegrity))
		return nil
	}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// The sweep reads the same relations the repositories maintain: journal
// lines key their entry by je_id, and the stock cache/movement tables are
// inventory_stocks and stock_movements.
const journalDriftQuery = `
	SELECT je.id, SUM(jl.debit - jl.credit)::text
	FROM journal_entries je
	JOIN journal_lines jl ON jl.je_id = je.id
	WHERE ($1::timestamptz IS NULL OR je.created_at >= $1)
	GROUP BY je.id
	HAVING SUM(jl.debit) <> SUM(jl.credit)
	ORDER BY je.id`

const stockDriftQuery = `
	SELECT s.product_id, s.warehouse_id, s.rack_id, s.qty_available,
		COALESCE(m.total, 0)
	FROM inventory_stocks s
	LEFT JOIN (
		SELECT product_id, warehouse_id, rack_id, SUM(qty) AS total
		FROM stock_movements
		GROUP BY product_id, warehouse_id, rack_id
	) m ON m.product_id = s.product_id
		AND m.warehouse_id = s.warehouse_id
		AND m.rack_id IS NOT DISTINCT FROM s.rack_id
	WHERE s.qty_available <> COALESCE(m.total, 0)`

func scanJournalBalance(ctx context.Context, deps IntegrityDeps, payload IntegrityPayload) error {
	rows, err := deps.Pool.Query(ctx, journalDriftQuery, nullTime(payload.Since))
	if err != nil {
		return err
	}
	defer rows.Close()

	var bad []int64
	for rows.Next() {
		var id int64
		var drift string
		if err := rows.Scan(&id, &drift); err != nil {
			return err
		}
		bad = append(bad, id)
		deps.Logger.Error("unbalanced journal batch",
			slog.Int64("entry_id", id), slog.String("drift", drift))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(bad) == 0 {
		return nil
	}
	_ = deps.Audit.Record(ctx, shared.AuditLog{
		Action:   "jobs.integrity.journal_mismatch",
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", bad[0]),
		Meta:     map[string]any{"entry_ids": bad},
	})
	return shared.Consistencyf("%d unbalanced journal batches", len(bad))
}

func scanStockCache(ctx context.Context, deps IntegrityDeps) error {
	rows, err := deps.Pool.Query(ctx, stockDriftQuery)
	if err != nil {
		return err
	}
	defer rows.Close()

	var mismatches int
	for rows.Next() {
		var productID, warehouseID int64
		var rackID *int64
		var cached, actual float64
		if err := rows.Scan(&productID, &warehouseID, &rackID, &cached, &actual); err != nil {
			return err
		}
		mismatches++
		deps.Logger.Error("stock cache drift",
			slog.Int64("product_id", productID),
			slog.Int64("warehouse_id", warehouseID),
			slog.Float64("cached", cached),
			slog.Float64("actual", actual))
		_ = deps.Audit.Record(ctx, shared.AuditLog{
			Action:   "jobs.integrity.stock_mismatch",
			Entity:   "stock",
			EntityID: fmt.Sprintf("%d:%d", productID, warehouseID),
			Meta: map[string]any{
				"rack_id": rackID,
				"cached":  cached,
				"actual":  actual,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if mismatches > 0 {
		return shared.Consistencyf("%d stock cache rows out of sync", mismatches)
	}
	return nil
}
