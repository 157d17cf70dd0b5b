package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory operations. Every change to the derived
// stock aggregate happens inside the same transaction that appends the
// movement row, with the aggregate row locked.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	allowNeg    bool
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, allowNeg: cfg.AllowNegativeStock, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Record appends one movement and updates the derived aggregate atomically.
func (s *Service) Record(ctx context.Context, input MovementInput) (Movement, error) {
	movement, err := s.buildMovement(input)
	if err != nil {
		return Movement{}, err
	}
	release, err := s.claimMovementKeys(ctx, movementKey(movement))
	if err != nil {
		return Movement{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.applyMovement(ctx, tx, &movement)
	})
	if err != nil {
		release()
		return Movement{}, err
	}
	s.record(ctx, input.ActorID, fmt.Sprintf("inventory.%s", input.Type), movement)
	return movement, nil
}

// Transfer moves stock between warehouses as an out+in movement pair inside a
// single transaction. Either both legs commit or neither does: a destination
// failure must not strand stock that already left the source.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (Movement, Movement, error) {
	if input.SrcWarehouse == 0 || input.DstWarehouse == 0 || input.ProductID == 0 {
		return Movement{}, Movement{}, shared.Validationf("product and both warehouses required")
	}
	if input.SrcWarehouse == input.DstWarehouse && rackLabel(input.SrcRackID) == rackLabel(input.DstRackID) {
		return Movement{}, Movement{}, shared.Validationf("source and destination must differ")
	}
	if input.Qty <= 0 {
		return Movement{}, Movement{}, ErrInvalidQuantity
	}
	out, err := s.buildMovement(MovementInput{
		ProductID:   input.ProductID,
		WarehouseID: input.SrcWarehouse,
		RackID:      input.SrcRackID,
		Type:        MovementTransferOut,
		Qty:         input.Qty,
		Value:       input.Value,
		SourceKind:  "TRANSFER",
		SourceID:    input.SourceID,
		OccurredAt:  input.OccurredAt,
		ActorID:     input.ActorID,
		Metadata:    map[string]any{"dst_warehouse_id": input.DstWarehouse},
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	in, err := s.buildMovement(MovementInput{
		ProductID:   input.ProductID,
		WarehouseID: input.DstWarehouse,
		RackID:      input.DstRackID,
		Type:        MovementTransferIn,
		Qty:         input.Qty,
		Value:       input.Value,
		SourceKind:  "TRANSFER",
		SourceID:    input.SourceID,
		OccurredAt:  input.OccurredAt,
		ActorID:     input.ActorID,
		Metadata:    map[string]any{"src_warehouse_id": input.SrcWarehouse},
	})
	if err != nil {
		return Movement{}, Movement{}, err
	}
	release, err := s.claimMovementKeys(ctx, movementKey(out), movementKey(in))
	if err != nil {
		return Movement{}, Movement{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.applyMovement(ctx, tx, &out); err != nil {
			return err
		}
		return s.applyMovement(ctx, tx, &in)
	})
	if err != nil {
		release()
		return Movement{}, Movement{}, err
	}
	s.record(ctx, input.ActorID, fmt.Sprintf("inventory.%s", out.Type), out)
	s.record(ctx, input.ActorID, fmt.Sprintf("inventory.%s", in.Type), in)
	return out, in, nil
}

func (s *Service) buildMovement(input MovementInput) (Movement, error) {
	if input.ProductID == 0 || input.WarehouseID == 0 {
		return Movement{}, shared.Validationf("product and warehouse required")
	}
	if input.Qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	sign := input.Type.Sign()
	if sign == 0 {
		return Movement{}, ErrUnknownMovement
	}
	if input.Value.IsNegative() {
		return Movement{}, shared.Validationf("movement value must be non-negative")
	}
	if input.SourceKind == "" || input.SourceID <= 0 {
		return Movement{}, shared.Validationf("source reference required")
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}
	return Movement{
		ProductID:   input.ProductID,
		WarehouseID: input.WarehouseID,
		RackID:      input.RackID,
		Type:        input.Type,
		Qty:         sign * input.Qty,
		Value:       input.Value,
		SourceKind:  input.SourceKind,
		SourceID:    input.SourceID,
		OccurredAt:  occurredAt,
		CreatedBy:   input.ActorID,
		Metadata:    input.Metadata,
	}, nil
}

// applyMovement locks the aggregate, guards the balance, appends the movement
// row, and writes the cache. It inserts the cache row only when the locked
// read found none: ON CONFLICT cannot be trusted here because rack_id is
// nullable.
func (s *Service) applyMovement(ctx context.Context, tx TxRepository, m *Movement) error {
	key := StockKey{ProductID: m.ProductID, WarehouseID: m.WarehouseID, RackID: m.RackID}
	stock, err := tx.GetStockForUpdate(ctx, key)
	found := true
	if errors.Is(err, ErrStockNotFound) {
		found = false
		stock = Stock{ProductID: key.ProductID, WarehouseID: key.WarehouseID, RackID: key.RackID}
	} else if err != nil {
		return err
	}
	newQty := stock.QtyAvailable + m.Qty
	if math.Abs(newQty) < 1e-9 {
		newQty = 0
	}
	if m.Qty < 0 && !s.allowNeg {
		if newQty < 0 {
			return ErrNegativeStock
		}
		if newQty < stock.QtyReserved {
			return ErrInsufficientStock
		}
	}
	id, err := tx.InsertMovement(ctx, *m)
	if err != nil {
		return err
	}
	m.ID = id
	stock.QtyAvailable = newQty
	if found {
		return tx.UpdateStock(ctx, stock)
	}
	return tx.InsertStock(ctx, stock)
}

// claimMovementKeys registers every idempotency key before the transaction
// runs; the returned release undoes all of them when the transaction fails.
func (s *Service) claimMovementKeys(ctx context.Context, keys ...string) (func(), error) {
	if s.idempotency == nil {
		return func() {}, nil
	}
	claimed := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := s.idempotency.CheckAndInsert(ctx, k, "inventory"); err != nil {
			for _, c := range claimed {
				_ = s.idempotency.Delete(ctx, c)
			}
			return nil, err
		}
		claimed = append(claimed, k)
	}
	return func() {
		for _, c := range claimed {
			_ = s.idempotency.Delete(ctx, c)
		}
	}, nil
}

func movementKey(m Movement) string {
	return fmt.Sprintf("%s:%s:%d:%d:%d:%s", m.Type, m.SourceKind, m.SourceID, m.WarehouseID, m.ProductID, rackLabel(m.RackID))
}

// Reserve claims quantity against the available balance.
func (s *Service) Reserve(ctx context.Context, key StockKey, qty float64, actorID int64) (Stock, error) {
	if qty <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	var updated Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if stock.QtyReserved+qty > stock.QtyAvailable {
			return ErrInsufficientStock
		}
		stock.QtyReserved += qty
		updated = stock
		return tx.UpdateStock(ctx, stock)
	})
	if err != nil {
		return Stock{}, err
	}
	s.recordStock(ctx, actorID, "inventory.reserve", key, qty)
	return updated, nil
}

// Release returns reserved quantity to the available pool.
func (s *Service) Release(ctx context.Context, key StockKey, qty float64, actorID int64) (Stock, error) {
	if qty <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	var updated Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, key)
		if err != nil {
			return err
		}
		stock.QtyReserved -= qty
		if stock.QtyReserved < 0 {
			stock.QtyReserved = 0
		}
		updated = stock
		return tx.UpdateStock(ctx, stock)
	})
	if err != nil {
		return Stock{}, err
	}
	s.recordStock(ctx, actorID, "inventory.release", key, qty)
	return updated, nil
}

// GetStock fetches the derived aggregate for a key.
func (s *Service) GetStock(ctx context.Context, key StockKey) (Stock, error) {
	return s.repo.GetStock(ctx, key)
}

// ListMovements lists the movement ledger for a product/warehouse.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ProductID == 0 || filter.WarehouseID == 0 {
		return nil, shared.Validationf("product and warehouse required")
	}
	return s.repo.ListMovements(ctx, filter)
}

// Verify recomputes the movement sum for a key and compares it to the cached
// aggregate. A mismatch is a consistency violation: it is reported, flagged
// for manual audit, and never silently healed.
func (s *Service) Verify(ctx context.Context, key StockKey) error {
	sum, err := s.repo.SumMovements(ctx, key)
	if err != nil {
		return err
	}
	stock, err := s.repo.GetStock(ctx, key)
	if err != nil {
		if errors.Is(err, ErrStockNotFound) && sum == 0 {
			return nil
		}
		return err
	}
	if math.Abs(stock.QtyAvailable-sum) > 1e-9 {
		s.recordStock(ctx, 0, "inventory.integrity_mismatch", key, stock.QtyAvailable-sum)
		return shared.Consistencyf("stock cache %v != movement sum %v for product=%d warehouse=%d",
			stock.QtyAvailable, sum, key.ProductID, key.WarehouseID)
	}
	return nil
}

// Rebuild recomputes the aggregate from the ledger. This is the one
// audit-sanctioned path that writes the cache without a movement row; it is
// only reachable after Verify has flagged a mismatch.
func (s *Service) Rebuild(ctx context.Context, key StockKey, actorID int64) (Stock, error) {
	sum, err := s.repo.SumMovements(ctx, key)
	if err != nil {
		return Stock{}, err
	}
	var rebuilt Stock
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, key)
		found := true
		if errors.Is(err, ErrStockNotFound) {
			found = false
			stock = Stock{ProductID: key.ProductID, WarehouseID: key.WarehouseID, RackID: key.RackID}
		} else if err != nil {
			return err
		}
		stock.QtyAvailable = sum
		if stock.QtyReserved > sum {
			stock.QtyReserved = sum
		}
		rebuilt = stock
		if found {
			return tx.UpdateStock(ctx, stock)
		}
		return tx.InsertStock(ctx, stock)
	})
	if err != nil {
		return Stock{}, err
	}
	s.recordStock(ctx, actorID, "inventory.rebuild", key, sum)
	return rebuilt, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, m Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%d", m.ID),
		Meta: map[string]any{
			"warehouse_id": m.WarehouseID,
			"product_id":   m.ProductID,
			"qty":          m.Qty,
			"source_kind":  m.SourceKind,
			"source_id":    m.SourceID,
		},
		At: s.now(),
	})
}

func (s *Service) recordStock(ctx context.Context, actorID int64, action string, key StockKey, qty float64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_stock",
		EntityID: fmt.Sprintf("%d:%d:%s", key.ProductID, key.WarehouseID, rackLabel(key.RackID)),
		Meta: map[string]any{
			"warehouse_id": key.WarehouseID,
			"product_id":   key.ProductID,
			"qty":          qty,
		},
		At: s.now(),
	})
}

func rackLabel(rackID *int64) string {
	if rackID == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *rackID)
}
