package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/api/handlers"
	custommiddleware "github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/api/middleware"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/config"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/htx"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/service"
)

// Services bundles everything the router wires into handlers.
type Services struct {
	System       *service.SystemService
	Ledger       *service.LedgerService
	Snapshot     *service.SnapshotService
	MarketChange *service.MarketChangeService
	Baseline     *service.BaselineService
	Exchange     htx.Client
}

// NewRouter creates and configures the HTTP router
func NewRouter(svcs Services, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(svcs.System)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Route("/lots", func(r chi.Router) {
			lotHandler := handlers.NewLotHandler(svcs.Ledger, svcs.Snapshot)
			r.Get("/", lotHandler.GetLedger)
			r.Post("/", lotHandler.CreateLot)
			r.Post("/import", lotHandler.ImportLots)
			r.Get("/export", lotHandler.ExportLots)
			r.Put("/{id}", lotHandler.UpdateLot)
			r.Delete("/{id}", lotHandler.DeleteLot)
		})

		r.Route("/snapshot", func(r chi.Router) {
			snapshotHandler := handlers.NewSnapshotHandler(svcs.Snapshot)
			r.Get("/latest", snapshotHandler.Latest)
			r.Get("/history", snapshotHandler.History)
			r.Post("/refresh", snapshotHandler.Refresh)
		})

		r.Route("/market", func(r chi.Router) {
			marketHandler := handlers.NewMarketHandler(svcs.Exchange, svcs.MarketChange, svcs.Baseline)
			r.Get("/kline", marketHandler.Kline)
			r.Get("/change", marketHandler.Change)
			r.Get("/baseline", marketHandler.Baseline)
		})
	})

	return r
}
