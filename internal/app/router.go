package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nusantara-erp/ledger-core/internal/accounts"
	"github.com/nusantara-erp/ledger-core/internal/ageing"
	"github.com/nusantara-erp/ledger-core/internal/documents"
	"github.com/nusantara-erp/ledger-core/internal/inventory"
	"github.com/nusantara-erp/ledger-core/internal/ledger"
	"github.com/nusantara-erp/ledger-core/internal/platform/httpx"
	"github.com/nusantara-erp/ledger-core/internal/reconciliation"
	"github.com/nusantara-erp/ledger-core/internal/shared"
	"github.com/nusantara-erp/ledger-core/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	AccountsHandler       *accounts.Handler
	LedgerHandler         *ledger.Handler
	InventoryHandler      *inventory.Handler
	ReconciliationHandler *reconciliation.Handler
	AgeingHandler         *ageing.Handler
	DocumentsHandler      *documents.Handler
	Jobs                  *jobs.Client
	Pool                  *pgxpool.Pool
	Redis                 *redis.Client
}

// NewRouter constructs the chi.Router serving the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(actorMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		params.AccountsHandler.MountRoutes(api)
		params.LedgerHandler.MountRoutes(api)
		params.InventoryHandler.MountRoutes(api)
		params.ReconciliationHandler.MountRoutes(api)
		params.AgeingHandler.MountRoutes(api)
		params.DocumentsHandler.MountRoutes(api)

		if params.Jobs != nil {
			api.Post("/integrity-checks", func(w http.ResponseWriter, r *http.Request) {
				info, err := params.Jobs.EnqueueIntegrityCheck(r.Context(), jobs.IntegrityPayload{})
				if err != nil {
					params.Logger.Error("enqueue integrity check", slog.Any("error", err))
					httpx.RespondError(w, err)
					return
				}
				httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": info.ID})
			})
		}

		if params.Redis != nil {
			api.Get("/ageing/{side}/snapshot", ageingSnapshotHandler(params.Redis))
		}
	})

	return r
}

// actorMiddleware resolves the caller identity from trusted gateway headers.
// Authentication itself happens upstream; the service only needs to know who
// is acting for audit and approval attribution.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := shared.Actor{Name: r.Header.Get("X-Actor-Name")}
		if raw := r.Header.Get("X-Actor-Id"); raw != "" {
			actor.ID = parseInt64(raw)
		}
		if raw := r.Header.Get("X-Branch-Id"); raw != "" {
			actor.BranchID = parseInt64(raw)
		}
		ctx := r.Context()
		if actor.ID > 0 {
			ctx = shared.ContextWithActor(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ageingSnapshotHandler serves the nightly ageing schedule cached by the
// worker. It never folds on the fly: a missing key means the snapshot for
// that day has not been taken.
func ageingSnapshotHandler(rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		side := ageing.Side(chi.URLParam(r, "side"))
		if !side.Valid() {
			httpx.RespondError(w, shared.Validationf("unknown ageing side %q", side))
			return
		}
		asOf := time.Now().UTC()
		if raw := r.URL.Query().Get("as_of"); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				httpx.RespondError(w, shared.Validationf("as_of must be YYYY-MM-DD"))
				return
			}
			asOf = parsed
		}
		payload, err := rdb.Get(r.Context(), jobs.SnapshotKey(side, asOf)).Bytes()
		if errors.Is(err, redis.Nil) {
			httpx.RespondError(w, fmt.Errorf("%w: ageing snapshot for %s", shared.ErrNotFound, asOf.Format("2006-01-02")))
			return
		}
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}
}

func parseInt64(raw string) int64 {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
