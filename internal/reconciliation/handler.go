package reconciliation

import (
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

// Handler exposes reconciliations over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers reconciliation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reconciliations", h.List)
	r.Post("/reconciliations", h.Open)
	r.Get("/reconciliations/{id}", h.Show)
	r.Post("/reconciliations/{id}/claim", h.Claim)
	r.Post("/reconciliations/{id}/release", h.Release)
	r.Post("/reconciliations/{id}/recompute", h.Recompute)
	r.Post("/reconciliations/{id}/close", h.Close)
}

type reconResponse struct {
	ID               int64      `json:"id"`
	AccountID        int64      `json:"account_id"`
	PeriodStart      time.Time  `json:"period_start"`
	PeriodEnd        time.Time  `json:"period_end"`
	StatementBalance string     `json:"statement_balance"`
	BookBalance      string     `json:"book_balance"`
	Difference       string     `json:"difference"`
	Status           string     `json:"status"`
	ClosedBy         *int64     `json:"closed_by,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
}

func toReconResponse(rec Reconciliation) reconResponse {
	return reconResponse{
		ID:               rec.ID,
		AccountID:        rec.AccountID,
		PeriodStart:      rec.PeriodStart,
		PeriodEnd:        rec.PeriodEnd,
		StatementBalance: rec.StatementBalance.String(),
		BookBalance:      rec.BookBalance.String(),
		Difference:       rec.Difference.String(),
		Status:           string(rec.Status),
		ClosedBy:         rec.ClosedBy,
		ClosedAt:         rec.ClosedAt,
	}
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID        int64     `json:"account_id" validate:"required,gt=0"`
		PeriodStart      time.Time `json:"period_start" validate:"required"`
		PeriodEnd        time.Time `json:"period_end" validate:"required"`
		StatementBalance string    `json:"statement_balance" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balance, err := decimal.NewFromString(req.StatementBalance)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "bad statement balance")
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	recon, err := h.service.Open(r.Context(), OpenInput{
		AccountID:        req.AccountID,
		PeriodStart:      req.PeriodStart,
		PeriodEnd:        req.PeriodEnd,
		StatementBalance: balance,
		ActorID:          actor.ID,
	})
	if err != nil {
		h.logger.Error("open reconciliation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReconResponse(recon))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "account_id required")
		return
	}
	recons, err := h.service.List(r.Context(), accountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]reconResponse, 0, len(recons))
	for _, rec := range recons {
		out = append(out, toReconResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	recon, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconResponse(recon))
}

func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req struct {
		LineIDs []int64 `json:"line_ids" validate:"required,min=1"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	recon, err := h.service.ClaimLines(r.Context(), id, req.LineIDs, actor.ID)
	if err != nil {
		h.logger.Error("claim lines", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconResponse(recon))
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req struct {
		LineID int64 `json:"line_id" validate:"required,gt=0"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	recon, err := h.service.ReleaseLine(r.Context(), id, req.LineID, actor.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconResponse(recon))
}

func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	recon, err := h.service.Recompute(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconResponse(recon))
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := reconID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	recon, err := h.service.Close(r.Context(), id, actor.ID)
	if err != nil {
		h.logger.Error("close reconciliation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReconResponse(recon))
}

func reconID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("invalid reconciliation id")
	}
	return id, nil
}
