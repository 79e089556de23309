package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

type staticFinder struct {
	violations []inventory.Balance
	err        error
	gotLimit   int
}

func (f *staticFinder) FindInvariantViolations(ctx context.Context, limit int) ([]inventory.Balance, error) {
	f.gotLimit = limit
	return f.violations, f.err
}

func newIntegrityTask(t *testing.T, limit int) *asynq.Task {
	t.Helper()
	task, err := NewLedgerIntegrityTask(limit)
	require.NoError(t, err)
	return task
}

func TestLedgerIntegrityScan(t *testing.T) {
	finder := &staticFinder{violations: []inventory.Balance{
		{WarehouseID: 1, ProductID: 10, Quantity: 5, AvailableQty: 2, ReservedQty: 2},
	}}
	job := NewLedgerIntegrityJob(finder, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, job.Handle(context.Background(), newIntegrityTask(t, 50)))
	require.Equal(t, 50, finder.gotLimit)
}

func TestLedgerIntegrityScanDefaultsLimit(t *testing.T) {
	finder := &staticFinder{}
	job := NewLedgerIntegrityJob(finder, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, job.Handle(context.Background(), newIntegrityTask(t, 0)))
	require.Equal(t, 500, finder.gotLimit)
}

func TestLedgerIntegrityScanPropagatesError(t *testing.T) {
	finder := &staticFinder{err: errors.New("boom")}
	job := NewLedgerIntegrityJob(finder, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Error(t, job.Handle(context.Background(), newIntegrityTask(t, 10)))
}

func TestLedgerIntegrityScanSkipsBadPayload(t *testing.T) {
	job := NewLedgerIntegrityJob(&staticFinder{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	task := asynq.NewTask(TaskLedgerIntegrityScan, []byte("{not json"))

	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
