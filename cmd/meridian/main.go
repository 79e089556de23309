package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian-erp/internal/movements"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, balance snapshots uncached", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)

	warehouseService := warehouses.NewService(warehouses.NewRepository(pool))
	warehouseHandler := warehouses.NewHandler(logger, warehouseService)
	productService := products.NewService(products.NewRepository(pool))
	productHandler := products.NewHandler(logger, productService)

	snapshotCache := inventory.NewSnapshotCache(redisClient, cfg.SnapshotTTL)
	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, snapshotCache, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	ledger := inventory.NewLedger()
	serviceCfg := movements.ServiceConfig{CompleteRetries: cfg.CompleteRetries}
	handlers := make(map[movements.Type]*movements.Handler, 4)
	for _, def := range movements.Definitions() {
		repo := movements.NewRepository(pool, def)
		service := movements.NewService(def, repo, ledger, warehouseService, productService, auditLogger, snapshotCache, logger, serviceCfg)
		handlers[def.Type] = movements.NewHandler(logger, service)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		StockInHandler:    handlers[movements.TypeStockIn],
		StockOutHandler:   handlers[movements.TypeStockOut],
		TransferHandler:   handlers[movements.TypeTransfer],
		StockCheckHandler: handlers[movements.TypeStockCheck],
		InventoryHandler:  inventoryHandler,
		WarehouseHandler:  warehouseHandler,
		ProductHandler:    productHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
