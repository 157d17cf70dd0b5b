package ledger

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

// Handler exposes the posting engine over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers journal endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/journals", h.List)
	r.Post("/journals", h.Post)
	r.Get("/journals/{id}", h.Show)
	r.Post("/journals/{id}/reverse", h.Reverse)
	r.Get("/journals/by-source/{kind}/{sourceID}", h.ShowBySource)
	r.Get("/journal-lines", h.SearchLines)
}

type postLineRequest struct {
	AccountID   int64   `json:"account_id" validate:"required,gt=0"`
	Debit       string  `json:"debit"`
	Credit      string  `json:"credit"`
	BranchID    *int64  `json:"branch_id,omitempty"`
	Description string  `json:"description,omitempty"`
}

type postJournalRequest struct {
	Date       time.Time         `json:"date" validate:"required"`
	Type       string            `json:"journal_type" validate:"required"`
	SourceKind string            `json:"source_kind" validate:"required"`
	SourceID   int64             `json:"source_id" validate:"required,gt=0"`
	Memo       string            `json:"memo,omitempty"`
	Lines      []postLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type journalLineResponse struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	BranchID    *int64 `json:"branch_id,omitempty"`
	Description string `json:"description,omitempty"`
	BankReconID *int64 `json:"bank_recon_id,omitempty"`
}

type journalResponse struct {
	ID         int64                 `json:"id"`
	Number     int64                 `json:"number"`
	Date       time.Time             `json:"date"`
	Type       string                `json:"journal_type"`
	SourceKind string                `json:"source_kind"`
	SourceID   int64                 `json:"source_id"`
	Memo       string                `json:"memo,omitempty"`
	Status     string                `json:"status"`
	ReversalOf *int64                `json:"reversal_of,omitempty"`
	PostedAt   time.Time             `json:"posted_at"`
	Lines      []journalLineResponse `json:"lines,omitempty"`
}

func toJournalResponse(e JournalEntry) journalResponse {
	resp := journalResponse{
		ID:         e.ID,
		Number:     e.Number,
		Date:       e.Date,
		Type:       string(e.Type),
		SourceKind: string(e.Source.Kind),
		SourceID:   e.Source.ID,
		Memo:       e.Memo,
		Status:     string(e.Status),
		ReversalOf: e.ReversalOf,
		PostedAt:   e.PostedAt,
	}
	for _, line := range e.Lines {
		resp.Lines = append(resp.Lines, journalLineResponse{
			ID:          line.ID,
			AccountID:   line.AccountID,
			Debit:       line.Debit.String(),
			Credit:      line.Credit.String(),
			BranchID:    line.BranchID,
			Description: line.Description,
			BankReconID: line.BankReconID,
		})
	}
	return resp
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := shared.PageFromRequest(r)
	entries, err := h.service.List(r.Context(), page.Limit, page.Offset)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]journalResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toJournalResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	var req postJournalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := h.toPostingInput(r, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.logger.Error("post journal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toJournalResponse(entry))
}

func (h *Handler) toPostingInput(r *http.Request, req postJournalRequest) (PostingInput, error) {
	actor, _ := shared.ActorFromContext(r.Context())
	input := PostingInput{
		Date:     req.Date,
		Type:     JournalType(req.Type),
		Source:   SourceRef{Kind: SourceKind(req.SourceKind), ID: req.SourceID},
		Memo:     req.Memo,
		PostedBy: actor.ID,
	}
	for idx, line := range req.Lines {
		debit, err := parseAmount(line.Debit)
		if err != nil {
			return PostingInput{}, shared.Validationf("line %d: bad debit %q", idx, line.Debit)
		}
		credit, err := parseAmount(line.Credit)
		if err != nil {
			return PostingInput{}, shared.Validationf("line %d: bad credit %q", idx, line.Credit)
		}
		input.Lines = append(input.Lines, PostingLineInput{
			AccountID:   line.AccountID,
			Debit:       debit,
			Credit:      credit,
			BranchID:    line.BranchID,
			Description: line.Description,
		})
	}
	return input, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(entry))
}

func (h *Handler) ShowBySource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := strconv.ParseInt(chi.URLParam(r, "sourceID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Source ID", err.Error())
		return
	}
	ref := SourceRef{Kind: SourceKind(chi.URLParam(r, "kind")), ID: sourceID}
	entry, err := h.service.GetBySource(r.Context(), ref)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(entry))
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req struct {
		Date time.Time `json:"date,omitempty"`
		Memo string    `json:"memo,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
	}
	actor, _ := shared.ActorFromContext(r.Context())
	reversal, err := h.service.Reverse(r.Context(), ReverseInput{
		EntryID: id,
		ActorID: actor.ID,
		Date:    req.Date,
		Memo:    req.Memo,
	})
	if err != nil {
		h.logger.Error("reverse journal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toJournalResponse(reversal))
}

func (h *Handler) SearchLines(w http.ResponseWriter, r *http.Request) {
	filter := LineFilter{}
	q := r.URL.Query()
	if raw := q.Get("account_id"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.AccountID = &v
		}
	}
	if raw := q.Get("source_kind"); raw != "" {
		kind := SourceKind(raw)
		filter.SourceKind = &kind
	}
	if raw := q.Get("source_id"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.SourceID = &v
		}
	}
	if raw := q.Get("date_from"); raw != "" {
		if v, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateFrom = &v
		}
	}
	if raw := q.Get("date_to"); raw != "" {
		if v, err := time.Parse("2006-01-02", raw); err == nil {
			filter.DateTo = &v
		}
	}
	filter.Unreconciled = q.Get("unreconciled") == "1"
	page := shared.PageFromRequest(r)
	filter.Limit = page.Limit
	filter.Offset = page.Offset

	lines, err := h.service.SearchLines(r.Context(), filter)
	if err != nil {
		h.logger.Error("search journal lines", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lines)
}
