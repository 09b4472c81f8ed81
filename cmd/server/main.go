package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/api"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/atomicfile"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/config"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/database"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/htx"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/repository"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/scheduler"
	"github.com/rdejong/Crypto-Portfolio-Tracker-Backend/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Open the candle cache and run migrations
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open candle cache: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate candle cache: %v", err)
	}

	log.Printf("Candle cache ready: %s", cfg.Database.Path)

	// Create stores and repositories
	writer := atomicfile.NewWriter()
	ledgerStore, err := repository.NewLedgerStore(cfg.Storage.DataDir, cfg.Storage.Backend, writer)
	if err != nil {
		log.Fatalf("Failed to create ledger store: %v", err)
	}
	ledgerRepo := repository.NewLedgerRepository(ledgerStore)
	historyRepo := repository.NewSnapshotHistoryRepository(cfg.Storage.DataDir, writer)
	candleRepo := repository.NewCandleRepository(db)

	log.Printf("Ledger storage ready: %s backend in %s", cfg.Storage.Backend, cfg.Storage.DataDir)

	// Create exchange client and services
	exchange := htx.NewRESTClient(cfg.Exchange.Host, cfg.Exchange.AccessKey, cfg.Exchange.SecretKey, cfg.Exchange.AccountID)

	systemService := service.NewSystemService(db, cfg.Storage.DataDir, cfg.Storage.Backend)
	ledgerService := service.NewLedgerService(ledgerRepo)
	snapshotService := service.NewSnapshotService(
		exchange,
		ledgerService,
		historyRepo,
		candleRepo,
		cfg.Portfolio.RefFiat,
		cfg.Portfolio.MinUSDIgnore,
		cfg.Portfolio.AlwaysInclude,
	)
	marketChangeService := service.NewMarketChangeService(exchange, candleRepo, nil)
	baselineService := service.NewBaselineService(candleRepo)

	// Start the valuation scheduler
	sched := scheduler.New(snapshotService, cfg.Scheduler.PullInterval, cfg.Portfolio.BackfillDays)
	if err := sched.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Create router
	router := api.NewRouter(api.Services{
		System:       systemService,
		Ledger:       ledgerService,
		Snapshot:     snapshotService,
		MarketChange: marketChangeService,
		Baseline:     baselineService,
		Exchange:     exchange,
	}, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
