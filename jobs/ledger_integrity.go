package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

// ViolationFinder reports balance rows that break the ledger invariant.
// Satisfied by the inventory repository.
type ViolationFinder interface {
	FindInvariantViolations(ctx context.Context, limit int) ([]inventory.Balance, error)
}

// LedgerIntegrityJob scans the balance table for invariant violations.
// Completions keep the invariant transactionally; this scan is a safety net
// against out-of-band writes and surfaces anything it finds in the logs.
type LedgerIntegrityJob struct {
	Finder ViolationFinder
	Logger *slog.Logger
}

// NewLedgerIntegrityJob initialises the integrity scan handler.
func NewLedgerIntegrityJob(finder ViolationFinder, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Finder: finder, Logger: logger}
}

// Handle executes the integrity scan.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Finder == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = 500
	}

	start := time.Now()
	j.Logger.Info("starting ledger integrity scan", slog.Int("limit", payload.Limit))

	violations, err := j.Finder.FindInvariantViolations(ctx, payload.Limit)
	if err != nil {
		j.Logger.Error("ledger integrity scan failed", slog.Any("error", err))
		return err
	}

	for _, v := range violations {
		j.Logger.Warn("ledger invariant violated",
			slog.Int64("warehouse_id", v.WarehouseID),
			slog.Int64("product_id", v.ProductID),
			slog.Float64("quantity", v.Quantity),
			slog.Float64("available_qty", v.AvailableQty),
			slog.Float64("reserved_qty", v.ReservedQty),
		)
	}

	j.Logger.Info("completed ledger integrity scan",
		slog.Int("violations", len(violations)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
