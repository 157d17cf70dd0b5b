package documents

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

// Handler exposes lifecycle documents over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers document endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/documents", h.List)
	r.Post("/documents", h.Create)
	r.Get("/documents/{id}", h.Show)
	r.Post("/documents/{id}/submit", h.Submit)
	r.Post("/documents/{id}/approve", h.Approve)
	r.Post("/documents/{id}/reject", h.Reject)
	r.Post("/documents/{id}/reverse", h.Reverse)
}

type documentResponse struct {
	ID             int64     `json:"id"`
	UUID           string    `json:"uuid"`
	Kind           string    `json:"kind"`
	Number         string    `json:"number"`
	PartyID        int64     `json:"party_id"`
	BranchID       *int64    `json:"branch_id,omitempty"`
	DebitAccount   int64     `json:"debit_account_id"`
	CreditAccount  int64     `json:"credit_account_id"`
	Amount         string    `json:"amount"`
	Date           time.Time `json:"date"`
	DueDate        time.Time `json:"due_date"`
	Memo           string    `json:"memo,omitempty"`
	Status         string    `json:"status"`
	ApprovedBy     *int64    `json:"approved_by,omitempty"`
	JournalEntryID *int64    `json:"journal_entry_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toResponse(d Document) documentResponse {
	return documentResponse{
		ID:             d.ID,
		UUID:           d.UUID.String(),
		Kind:           string(d.Kind),
		Number:         d.Number,
		PartyID:        d.PartyID,
		BranchID:       d.BranchID,
		DebitAccount:   d.DebitAccountID,
		CreditAccount:  d.CreditAccountID,
		Amount:         d.Amount.String(),
		Date:           d.Date,
		DueDate:        d.DueDate,
		Memo:           d.Memo,
		Status:         string(d.Status),
		ApprovedBy:     d.ApprovedBy,
		JournalEntryID: d.JournalEntryID,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type createDocumentRequest struct {
	Kind            string `json:"kind" validate:"required,oneof=PAYMENT_REQUEST VENDOR_PAYMENT OTHER_SALE"`
	Number          string `json:"number" validate:"required"`
	PartyID         int64  `json:"party_id" validate:"required,gt=0"`
	BranchID        *int64 `json:"branch_id,omitempty"`
	DebitAccountID  int64  `json:"debit_account_id" validate:"required,gt=0"`
	CreditAccountID int64  `json:"credit_account_id" validate:"required,gt=0"`
	Amount          string `json:"amount" validate:"required"`
	Date            string `json:"date" validate:"required"`
	DueDate         string `json:"due_date,omitempty"`
	Memo            string `json:"memo,omitempty"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		Kind:   Kind(r.URL.Query().Get("kind")),
		Status: State(r.URL.Query().Get("status")),
		Page:   shared.PageFromRequest(r),
	}
	docs, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list documents", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toResponse(d))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal string")
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	var dueDate time.Time
	if req.DueDate != "" {
		if dueDate, err = time.Parse("2006-01-02", req.DueDate); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "due_date must be YYYY-MM-DD")
			return
		}
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, err := h.service.Create(r.Context(), CreateInput{
		Kind:            Kind(req.Kind),
		Number:          req.Number,
		PartyID:         req.PartyID,
		BranchID:        req.BranchID,
		DebitAccountID:  req.DebitAccountID,
		CreditAccountID: req.CreditAccountID,
		Amount:          amount,
		Date:            date,
		DueDate:         dueDate,
		Memo:            req.Memo,
		Actor:           actor,
	})
	if err != nil {
		h.logger.Error("create document", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(doc))
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc))
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Submit)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Approve)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.Reject)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req struct {
		Memo string `json:"memo,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, err := h.service.Reverse(r.Context(), id, actor, req.Memo)
	if err != nil {
		h.logger.Error("reverse document", slog.Int64("document_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc))
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64, actor shared.Actor) (Document, error)) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, err := op(r.Context(), id, actor)
	if err != nil {
		h.logger.Error("document transition", slog.Int64("document_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(doc))
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("invalid id %q", raw)
	}
	return id, nil
}
