package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nexus/backend/internal/application/reconcile"
	"github.com/nexus/backend/internal/infrastructure/auth"
	"github.com/nexus/backend/internal/infrastructure/config"
	"github.com/nexus/backend/internal/infrastructure/logger"
	"github.com/nexus/backend/internal/infrastructure/meli"
	"github.com/nexus/backend/internal/infrastructure/persistence"
)

// reconcile is the one-shot counterpart of the daily scheduler job: it
// re-reads a window of stored orders from the platform and patches drift,
// then exits. With -backfill-sku it instead re-resolves SKU enrichment for
// stored rows and exits without touching the platform. Intended for cron or
// manual runs.
func main() {
	var (
		accountID   int64
		days        int
		workers     int
		timeout     time.Duration
		backfillSKU bool
	)

	flag.Int64Var(&accountID, "account", 0, "Seller account id (0 = every registered account)")
	flag.IntVar(&days, "days", 15, "Reconcile orders closed within the last N days")
	flag.IntVar(&workers, "workers", 8, "Concurrent order fetches")
	flag.DurationVar(&timeout, "timeout", 2*time.Hour, "Overall run timeout")
	flag.BoolVar(&backfillSKU, "backfill-sku", false, "Re-resolve SKU enrichment for stored sales and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		_ = db.Close()
	}()

	saleRepo := persistence.NewGormSaleRepository(db.DB)
	skuResolver := persistence.NewGormSKUResolver(db.DB)
	tokenRepo := persistence.NewGormTokenRepository(db.DB)

	if backfillSKU {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		updated, err := saleRepo.BackfillSKUFields(ctx)
		if err != nil {
			log.Fatal("SKU backfill failed", zap.Error(err))
		}
		log.Info("SKU backfill finished", zap.Int64("updated", updated))
		return
	}

	meliConfig := &meli.Config{
		BaseURL:      cfg.Meli.BaseURL,
		Timeout:      cfg.Meli.Timeout,
		MaxRetries:   cfg.Meli.MaxRetries,
		BackoffBase:  cfg.Meli.BackoffBase,
		PoolMaxConns: cfg.Meli.PoolMaxConns,
	}
	refresher, err := meli.NewOAuthRefresher(meliConfig, cfg.Meli.ClientID, cfg.Meli.ClientSecret, log)
	if err != nil {
		log.Fatal("Failed to build token refresher", zap.Error(err))
	}
	tokens := auth.NewStoreTokenProvider(tokenRepo, refresher, log)
	platform, err := meli.NewClient(meliConfig, tokens, log)
	if err != nil {
		log.Fatal("Failed to build platform client", zap.Error(err))
	}

	service := reconcile.NewService(platform, tokens, saleRepo, skuResolver.Lookup(), reconcile.Config{
		ChunkSize:    cfg.Reconcile.ChunkSize,
		MaxWorkers:   cfg.Reconcile.MaxWorkers,
		Tolerance:    decimal.NewFromFloat(cfg.Reconcile.Tolerance),
		WindowMonths: cfg.Reconcile.WindowMonths,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	accounts := []int64{accountID}
	if accountID == 0 {
		accounts, err = tokenRepo.AccountIDs(ctx)
		if err != nil {
			log.Fatal("Failed to list accounts", zap.Error(err))
		}
		if len(accounts) == 0 {
			log.Warn("No registered accounts, nothing to do")
			return
		}
	}

	window := reconcile.Window{Since: time.Now().UTC().AddDate(0, 0, -days)}

	failed := 0
	for _, id := range accounts {
		result, err := service.Reconcile(ctx, id, window, workers)
		if err != nil {
			failed++
			log.Error("Reconciliation failed",
				zap.Int64("account_id", id),
				zap.Error(err),
			)
			continue
		}
		log.Info("Reconciliation finished",
			zap.Int64("account_id", id),
			zap.Int("scanned", result.Scanned),
			zap.Int("updated", result.Updated),
			zap.Int("fetch_errors", result.FetchErrors),
		)
	}

	if failed > 0 {
		log.Error("Some accounts failed", zap.Int("failed", failed), zap.Int("total", len(accounts)))
		os.Exit(1)
	}
}
