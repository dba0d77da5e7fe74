package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/picksync/backend/internal/application/allocation"
	"github.com/picksync/backend/internal/application/reconcile"
	"github.com/picksync/backend/internal/infrastructure/config"
	"github.com/picksync/backend/internal/infrastructure/feed"
	"github.com/picksync/backend/internal/infrastructure/logger"
	"github.com/picksync/backend/internal/infrastructure/persistence"
	"github.com/picksync/backend/internal/infrastructure/picklist"
	"github.com/picksync/backend/internal/infrastructure/runlock"
)

func main() {
	var (
		allocateOnly bool
		logLevel     string
	)
	flag.BoolVar(&allocateOnly, "allocate-only", false, "Skip feed reconciliation and run allocation against the current ledger")
	flag.StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if logLevel == "" {
		logLevel = cfg.Log.Level
	}
	log, err := logger.New(logger.FromAppConfig(logLevel, cfg.Log.Format, cfg.Log.Output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if err := run(cfg, log, allocateOnly); err != nil {
		log.Fatal("Run failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger, allocateOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	ctx, log = logger.WithRunID(ctx, log, runID)

	// Overlapping cron invocations double-allocate against the same free
	// stock; the advisory lock turns the overlap into a skipped run.
	if cfg.RunLock.Enabled {
		lock, err := runlock.NewRedisLock(runlock.Config{
			Host:     cfg.RunLock.Host,
			Port:     cfg.RunLock.Port,
			Password: cfg.RunLock.Password,
			DB:       cfg.RunLock.DB,
			Key:      cfg.RunLock.Key,
			TTL:      cfg.RunLock.TTL,
		})
		if err != nil {
			return err
		}
		defer lock.Close()

		if err := lock.Acquire(ctx); err != nil {
			if errors.Is(err, runlock.ErrHeld) {
				log.Warn("Another run is in progress, skipping")
				return nil
			}
			return err
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				log.Warn("Failed to release run lock", zap.Error(err))
			}
		}()
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer db.Close()

	stockRepo := persistence.NewGormStockUnitRepository(db.DB)
	orderRepo := persistence.NewGormOrderLineRepository(db.DB)
	salesRepo := persistence.NewGormSalesRecordRepository(db.DB)
	catalogRepo := persistence.NewGormCatalogRepository(db.DB)
	marketplace := persistence.NewGormMarketplaceStockReader(db.DB)
	partner := persistence.NewGormPartnerStockReader(db.DB)

	if !allocateOnly {
		feedClient, err := feed.NewStorefrontClient(&feed.StorefrontClientConfig{
			BaseURL:     cfg.Feed.BaseURL,
			AccessToken: cfg.Feed.AccessToken,
			APIVersion:  cfg.Feed.APIVersion,
			Timeout:     cfg.Feed.RequestTimeout,
		})
		if err != nil {
			return err
		}

		reconciler := reconcile.NewReconciler(
			feedClient, orderRepo, stockRepo, salesRepo, catalogRepo,
			reconcile.Config{
				PageSize:     cfg.Feed.PageSize,
				PageDelay:    cfg.Feed.PageDelay,
				MaxRetries:   cfg.Feed.MaxRetries,
				RetryBackoff: cfg.Feed.RetryBackoff,
				OrderPrefix:  cfg.Feed.OrderPrefix,
			},
			log,
		)

		summary, err := reconciler.Run(ctx)
		if err != nil {
			return err
		}
		log.Info("Reconciliation finished",
			zap.Int("pages", summary.PagesPulled),
			zap.Int("orders_seen", summary.OrdersSeen),
			zap.Int("inserted", summary.LinesInserted),
			zap.Int("updated", summary.LinesUpdated),
			zap.Int("archived", summary.LinesArchived),
			zap.Int64("stale_picks_deleted", summary.StaleDeleted),
			zap.Bool("feed_truncated", summary.FeedTruncated),
		)
	}

	audit, err := picklist.NewWriter(cfg.Picklist.Dir, cfg.Picklist.MaxFiles, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := audit.Close(); err != nil {
			log.Error("Failed to close picklist", zap.Error(err))
		}
	}()

	engine := allocation.NewEngine(
		stockRepo, orderRepo, marketplace, partner, catalogRepo, audit, log,
		allocation.WithPartnerSupplier(cfg.Allocation.PartnerSupplier),
	)

	summary, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	log.Info("Allocation finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("fully_allocated", summary.FullyAllocated),
		zap.Int("partially_allocated", summary.PartiallyAllocated),
		zap.Int("unresolved", summary.Unresolved),
		zap.Int("failed", summary.Failed),
		zap.Int("local_picks", summary.LocalPicks),
		zap.Int("splits", summary.SplitCount),
	)

	return nil
}
