// Package api exposes the ledger, the valuation view and price refresh over
// HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"investcalc/pkg/investcalc"
)

// Options wires the optional collaborators of the router.
type Options struct {
	Logger *slog.Logger
	// View is the valuation served by /api/portfolio. When nil the router
	// builds one over core and reloads it on demand.
	View *investcalc.View
	// Refresher runs price refresh cycles; without one refresh requests
	// answer 503.
	Refresher *investcalc.Refresher
	// Delimiter separates fields in import and export text when a request
	// names none.
	Delimiter string
}

// NewRouter builds the HTTP API router.
func NewRouter(core *investcalc.Core, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil && core != nil {
		logger = core.Logger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	view := opts.View
	if view == nil && core != nil {
		view = investcalc.NewView(core)
	}
	delimiter := opts.Delimiter
	if delimiter == "" {
		delimiter = investcalc.DefaultDelimiter
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}))

	h := &handler{
		core:      core,
		view:      view,
		refresher: opts.Refresher,
		logger:    logger,
		delimiter: delimiter,
	}

	r.Get("/api/health", h.health)
	r.Get("/api/storage", h.getStorageInfo)

	// Valuation
	r.Get("/api/portfolio", h.getPortfolio)

	// Stocks
	r.Get("/api/stocks", h.getStocks)
	r.Put("/api/stocks/{name}/quote-code", h.setQuoteCode)

	// Flows
	r.Post("/api/flows", h.recordFlow)
	r.Get("/api/flows", h.getFlows)
	r.Get("/api/history", h.getHistory)
	r.Post("/api/history/delete", h.deleteHistory)

	// Batch text
	r.Post("/api/import", h.importBatch)
	r.Get("/api/export", h.exportHistory)

	// Prices
	r.Post("/api/prices/refresh", h.refreshPrices)
	r.Put("/api/prices/{name}", h.setManualPrice)

	// Operation logs
	r.Get("/api/operation-logs", h.getOperationLogs)

	return r
}

type handler struct {
	core      *investcalc.Core
	view      *investcalc.View
	refresher *investcalc.Refresher
	logger    *slog.Logger
	delimiter string
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
