package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/nusantara-erp/ledger-core/internal/platform/httpx"
	"github.com/nusantara-erp/ledger-core/internal/shared"
)

// Handler exposes the inventory ledger over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.Record)
	r.Get("/movements", h.ListMovements)
	r.Post("/transfers", h.Transfer)
	r.Get("/stocks", h.GetStock)
	r.Post("/stocks/reserve", h.Reserve)
	r.Post("/stocks/release", h.Release)
	r.Post("/stocks/verify", h.Verify)
	r.Post("/stocks/rebuild", h.Rebuild)
}

type movementRequest struct {
	ProductID   int64          `json:"product_id" validate:"required,gt=0"`
	WarehouseID int64          `json:"warehouse_id" validate:"required,gt=0"`
	RackID      *int64         `json:"rack_id,omitempty"`
	Type        string         `json:"type" validate:"required"`
	Qty         float64        `json:"qty" validate:"required,gt=0"`
	Value       string         `json:"value,omitempty"`
	SourceKind  string         `json:"source_kind" validate:"required"`
	SourceID    int64          `json:"source_id" validate:"required,gt=0"`
	OccurredAt  time.Time      `json:"occurred_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type stockKeyRequest struct {
	ProductID   int64   `json:"product_id" validate:"required,gt=0"`
	WarehouseID int64   `json:"warehouse_id" validate:"required,gt=0"`
	RackID      *int64  `json:"rack_id,omitempty"`
	Qty         float64 `json:"qty,omitempty"`
}

type movementResponse struct {
	ID          int64          `json:"id"`
	ProductID   int64          `json:"product_id"`
	WarehouseID int64          `json:"warehouse_id"`
	RackID      *int64         `json:"rack_id,omitempty"`
	Type        string         `json:"type"`
	Qty         float64        `json:"qty"`
	Value       string         `json:"value"`
	SourceKind  string         `json:"source_kind"`
	SourceID    int64          `json:"source_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type stockResponse struct {
	ProductID    int64     `json:"product_id"`
	WarehouseID  int64     `json:"warehouse_id"`
	RackID       *int64    `json:"rack_id,omitempty"`
	QtyAvailable float64   `json:"qty_available"`
	QtyReserved  float64   `json:"qty_reserved"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:          m.ID,
		ProductID:   m.ProductID,
		WarehouseID: m.WarehouseID,
		RackID:      m.RackID,
		Type:        string(m.Type),
		Qty:         m.Qty,
		Value:       m.Value.String(),
		SourceKind:  m.SourceKind,
		SourceID:    m.SourceID,
		OccurredAt:  m.OccurredAt,
		Metadata:    m.Metadata,
	}
}

func toStockResponse(s Stock) stockResponse {
	return stockResponse{
		ProductID:    s.ProductID,
		WarehouseID:  s.WarehouseID,
		RackID:       s.RackID,
		QtyAvailable: s.QtyAvailable,
		QtyReserved:  s.QtyReserved,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	value := decimal.Zero
	if req.Value != "" {
		parsed, err := decimal.NewFromString(req.Value)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "bad value amount")
			return
		}
		value = parsed
	}
	actor, _ := shared.ActorFromContext(r.Context())
	movement, err := h.service.Record(r.Context(), MovementInput{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		RackID:      req.RackID,
		Type:        MovementType(req.Type),
		Qty:         req.Qty,
		Value:       value,
		SourceKind:  req.SourceKind,
		SourceID:    req.SourceID,
		OccurredAt:  req.OccurredAt,
		ActorID:     actor.ID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		h.logger.Error("record movement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMovementResponse(movement))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID    int64     `json:"product_id" validate:"required,gt=0"`
		SrcWarehouse int64     `json:"src_warehouse_id" validate:"required,gt=0"`
		DstWarehouse int64     `json:"dst_warehouse_id" validate:"required,gt=0"`
		SrcRackID    *int64    `json:"src_rack_id,omitempty"`
		DstRackID    *int64    `json:"dst_rack_id,omitempty"`
		Qty          float64   `json:"qty" validate:"required,gt=0"`
		Value        string    `json:"value,omitempty"`
		SourceID     int64     `json:"source_id" validate:"required,gt=0"`
		OccurredAt   time.Time `json:"occurred_at,omitempty"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	value := decimal.Zero
	if req.Value != "" {
		parsed, err := decimal.NewFromString(req.Value)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "bad value amount")
			return
		}
		value = parsed
	}
	actor, _ := shared.ActorFromContext(r.Context())
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		ProductID:    req.ProductID,
		SrcWarehouse: req.SrcWarehouse,
		DstWarehouse: req.DstWarehouse,
		SrcRackID:    req.SrcRackID,
		DstRackID:    req.DstRackID,
		Qty:          req.Qty,
		Value:        value,
		SourceID:     req.SourceID,
		OccurredAt:   req.OccurredAt,
		ActorID:      actor.ID,
	})
	if err != nil {
		h.logger.Error("transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"out": toMovementResponse(out),
		"in":  toMovementResponse(in),
	})
}

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := movementFilterFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	key, err := stockKeyFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	stock, err := h.service.GetStock(r.Context(), key)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.reserveOrRelease(w, r, h.service.Reserve)
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	h.reserveOrRelease(w, r, h.service.Release)
}

func (h *Handler) reserveOrRelease(w http.ResponseWriter, r *http.Request, op func(context.Context, StockKey, float64, int64) (Stock, error)) {
	var req stockKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	stock, err := op(r.Context(), StockKey{ProductID: req.ProductID, WarehouseID: req.WarehouseID, RackID: req.RackID}, req.Qty, actor.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req stockKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	key := StockKey{ProductID: req.ProductID, WarehouseID: req.WarehouseID, RackID: req.RackID}
	if err := h.service.Verify(r.Context(), key); err != nil {
		h.logger.Error("verify stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "consistent"})
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req stockKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	key := StockKey{ProductID: req.ProductID, WarehouseID: req.WarehouseID, RackID: req.RackID}
	stock, err := h.service.Rebuild(r.Context(), key, actor.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStockResponse(stock))
}

func stockKeyFromQuery(r *http.Request) (StockKey, error) {
	q := r.URL.Query()
	productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		return StockKey{}, shared.Validationf("product_id required")
	}
	warehouseID, err := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	if err != nil || warehouseID <= 0 {
		return StockKey{}, shared.Validationf("warehouse_id required")
	}
	key := StockKey{ProductID: productID, WarehouseID: warehouseID}
	if raw := q.Get("rack_id"); raw != "" {
		rackID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return StockKey{}, shared.Validationf("bad rack_id")
		}
		key.RackID = &rackID
	}
	return key, nil
}

func movementFilterFromQuery(r *http.Request) (MovementFilter, error) {
	key, err := stockKeyFromQuery(r)
	if err != nil {
		return MovementFilter{}, err
	}
	filter := MovementFilter{ProductID: key.ProductID, WarehouseID: key.WarehouseID}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		if v, err := time.Parse("2006-01-02", raw); err == nil {
			filter.From = v
		}
	}
	if raw := q.Get("to"); raw != "" {
		if v, err := time.Parse("2006-01-02", raw); err == nil {
			filter.To = v
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			filter.Limit = v
		}
	}
	return filter, nil
}
