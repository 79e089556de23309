package inventory

import (
	"context"
	"errors"
	"log/slog"
)

// Service serves the read side of the ledger: point snapshots and listings.
// All writes go through Ledger inside a movement completion transaction.
type Service struct {
	repo   *Repository
	cache  *SnapshotCache
	logger *slog.Logger
}

// NewService builds Service. cache may be nil.
func NewService(repo *Repository, cache *SnapshotCache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Snapshot returns the current balance for one pair, preferring the cache.
func (s *Service) Snapshot(ctx context.Context, warehouseID, productID int64) (Balance, error) {
	if warehouseID <= 0 || productID <= 0 {
		return Balance{}, errors.New("inventory: warehouse and product required")
	}
	if bal, err := s.cache.Get(ctx, warehouseID, productID); err == nil {
		return bal, nil
	}
	bal, err := s.repo.Snapshot(ctx, warehouseID, productID)
	if err != nil {
		return Balance{}, err
	}
	if err := s.cache.Set(ctx, bal); err != nil && s.logger != nil {
		s.logger.Warn("cache balance snapshot", slog.Any("error", err))
	}
	return bal, nil
}

// ListBalances pages through balance rows.
func (s *Service) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, int, error) {
	return s.repo.ListBalances(ctx, filter)
}
