package app

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ildocuema64/Kamba-Many-sub001/internal/catalog"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/invoicing"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/licensing"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/observability"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/platform/httpx"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/saft"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/stock"
	"github.com/ildocuema64/Kamba-Many-sub001/internal/store"
	enginesync "github.com/ildocuema64/Kamba-Many-sub001/internal/sync"
	"github.com/ildocuema64/Kamba-Many-sub001/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Store            *store.Store
	CatalogHandler   *catalog.Handler
	StockHandler     *stock.Handler
	InvoicingHandler *invoicing.Handler
	LicensingHandler *licensing.Handler
	SaftHandler      *saft.Handler
	SyncHandler      *enginesync.Handler
	Metrics          *observability.Metrics
	JobsClient       *jobs.Client
}

// NewRouter constructs the chi.Router with Kamba defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.Metrics != nil {
		r.Use(params.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.StockHandler != nil {
			r.Route("/stock", params.StockHandler.MountRoutes)
		}
		if params.InvoicingHandler != nil {
			params.InvoicingHandler.MountRoutes(r)
		}
		if params.LicensingHandler != nil {
			params.LicensingHandler.MountRoutes(r)
		}
		if params.SaftHandler != nil {
			params.SaftHandler.MountRoutes(r)
		}
		if params.SyncHandler != nil {
			params.SyncHandler.MountRoutes(r)
		}
		if params.Store != nil {
			r.Get("/admin/backup", backupHandler(params))
			r.Post("/admin/restore", restoreHandler(params))
		}
		if params.JobsClient != nil {
			r.Post("/admin/stock-audit", stockAuditHandler(params))
		}
	})

	return r
}

// backupHandler streams a full-store snapshot.
func backupHandler(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="kamba.backup"`)
		if err := params.Store.Export(r.Context(), w); err != nil {
			params.Logger.Error("backup export", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
	}
}

// stockAuditHandler enqueues an on-demand audit of the stock projection.
func stockAuditHandler(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, _ := strconv.ParseInt(r.URL.Query().Get("org"), 10, 64)
		info, err := params.JobsClient.EnqueueStockAudit(r.Context(), jobs.StockAuditPayload{OrgID: orgID})
		if err != nil {
			params.Logger.Error("enqueue stock audit", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": info.ID})
	}
}

// restoreHandler replaces the whole store with an uploaded snapshot.
func restoreHandler(params RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := params.Store.Import(r.Context(), r.Body); err != nil {
			params.Logger.Error("backup restore", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "restored"})
	}
}
