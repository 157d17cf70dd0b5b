package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nusantara-erp/ledger-core/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, key StockKey) (Stock, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	SumMovements(ctx context.Context, key StockKey) (float64, error)
}

// TxRepository exposes methods available within a movement transaction.
// InsertStock and UpdateStock are split deliberately: rack_id is nullable,
// and ON CONFLICT on (product_id, warehouse_id, rack_id) never fires for
// NULL racks, so the caller decides from the locked read which path to take.
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, key StockKey) (Stock, error)
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	InsertStock(ctx context.Context, stock Stock) error
	UpdateStock(ctx context.Context, stock Stock) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) RepositoryPort {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetStock(ctx context.Context, key StockKey) (Stock, error) {
	return scanStock(r.db.QueryRow(ctx, `SELECT product_id, warehouse_id, rack_id, qty_available, qty_reserved, updated_at
FROM inventory_stocks WHERE product_id=$1 AND warehouse_id=$2 AND rack_id IS NOT DISTINCT FROM $3`, key.ProductID, key.WarehouseID, key.RackID))
}

func (r *repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	rows, err := r.db.Query(ctx, `SELECT id, product_id, warehouse_id, rack_id, type, qty, value, source_kind, source_id, occurred_at, created_by, metadata, created_at
FROM stock_movements
WHERE product_id=$1 AND warehouse_id=$2
  AND ($3::timestamptz IS NULL OR occurred_at >= $3)
  AND ($4::timestamptz IS NULL OR occurred_at <= $4)
ORDER BY occurred_at ASC, id ASC LIMIT $5`,
		filter.ProductID, filter.WarehouseID, nullTime(filter.From), nullTime(filter.To), limitOrDefault(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		var meta []byte
		if err := rows.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.RackID, &m.Type, &m.Qty, &m.Value, &m.SourceKind, &m.SourceID, &m.OccurredAt, &m.CreatedBy, &meta, &m.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &m.Metadata)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *repository) SumMovements(ctx context.Context, key StockKey) (float64, error) {
	var sum float64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(qty), 0) FROM stock_movements
WHERE product_id=$1 AND warehouse_id=$2 AND rack_id IS NOT DISTINCT FROM $3`, key.ProductID, key.WarehouseID, key.RackID).Scan(&sum)
	return sum, err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, key StockKey) (Stock, error) {
	return scanStock(r.tx.QueryRow(ctx, `SELECT product_id, warehouse_id, rack_id, qty_available, qty_reserved, updated_at
FROM inventory_stocks WHERE product_id=$1 AND warehouse_id=$2 AND rack_id IS NOT DISTINCT FROM $3 FOR UPDATE`, key.ProductID, key.WarehouseID, key.RackID))
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, warehouse_id, rack_id, type, qty, value, source_kind, source_id, occurred_at, created_by, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		m.ProductID, m.WarehouseID, m.RackID, m.Type, m.Qty, m.Value.String(), m.SourceKind, m.SourceID, m.OccurredAt, m.CreatedBy, meta).Scan(&id)
	return id, err
}

func (r *txRepository) InsertStock(ctx context.Context, stock Stock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_stocks (product_id, warehouse_id, rack_id, qty_available, qty_reserved, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())`,
		stock.ProductID, stock.WarehouseID, stock.RackID, stock.QtyAvailable, stock.QtyReserved)
	return err
}

func (r *txRepository) UpdateStock(ctx context.Context, stock Stock) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_stocks SET qty_available=$4, qty_reserved=$5, updated_at=NOW()
WHERE product_id=$1 AND warehouse_id=$2 AND rack_id IS NOT DISTINCT FROM $3`,
		stock.ProductID, stock.WarehouseID, stock.RackID, stock.QtyAvailable, stock.QtyReserved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

func scanStock(row pgx.Row) (Stock, error) {
	var s Stock
	err := row.Scan(&s.ProductID, &s.WarehouseID, &s.RackID, &s.QtyAvailable, &s.QtyReserved, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, ErrStockNotFound
	}
	return s, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 200
	}
	return limit
}
