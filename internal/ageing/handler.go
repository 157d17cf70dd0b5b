package ageing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nusantara-erp/ledger-core/internal/platform/httpx"
)

// Handler exposes ageing schedules over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the ageing endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ageing/{side}", h.Show)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	side := Side(chi.URLParam(r, "side"))
	asOf := time.Time{}
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	schedule, err := h.service.Schedule(r.Context(), side, asOf)
	if err != nil {
		h.logger.Error("ageing schedule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, schedule)
}
