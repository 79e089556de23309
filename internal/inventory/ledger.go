package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// epsilon guards float comparisons on quantities.
const epsilon = 1e-9

// BalanceTx is the transactional slice of the repository the ledger mutates
// through. The ledger never opens its own transaction; callers hand it the
// transaction that also flips the triggering document's status, so either
// both commit or both roll back.
type BalanceTx interface {
	GetBalanceForUpdate(ctx context.Context, warehouseID, productID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
}

// Ledger is the sole writer of balance rows. AvailableQty is always derived
// as Quantity - ReservedQty; it is never written independently.
type Ledger struct{}

// NewLedger builds Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Increase adds qty to both total and available quantity, creating the
// balance row lazily on first inbound movement.
func (l *Ledger) Increase(ctx context.Context, tx BalanceTx, warehouseID, productID int64, qty float64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	bal, err := tx.GetBalanceForUpdate(ctx, warehouseID, productID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		bal = Balance{WarehouseID: warehouseID, ProductID: productID}
	}
	bal.Quantity += qty
	bal.AvailableQty = bal.Quantity - bal.ReservedQty
	return tx.UpsertBalance(ctx, bal)
}

// Decrease subtracts qty from both total and available quantity. Fails with
// ErrInsufficientStock when no row exists or available stock is short.
func (l *Ledger) Decrease(ctx context.Context, tx BalanceTx, warehouseID, productID int64, qty float64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	bal, err := tx.GetBalanceForUpdate(ctx, warehouseID, productID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return fmt.Errorf("%w: warehouse %d product %d has no stock", ErrInsufficientStock, warehouseID, productID)
		}
		return err
	}
	if bal.AvailableQty < qty-epsilon {
		return fmt.Errorf("%w: warehouse %d product %d available %.3f, need %.3f", ErrInsufficientStock, warehouseID, productID, bal.AvailableQty, qty)
	}
	bal.Quantity -= qty
	if math.Abs(bal.Quantity) < epsilon {
		bal.Quantity = 0
	}
	bal.AvailableQty = bal.Quantity - bal.ReservedQty
	return tx.UpsertBalance(ctx, bal)
}

// ApplyDelta applies a signed quantity change, used by stock-check
// reconciliation. A zero delta is a no-op.
func (l *Ledger) ApplyDelta(ctx context.Context, tx BalanceTx, warehouseID, productID int64, delta float64) error {
	switch {
	case math.Abs(delta) < epsilon:
		return nil
	case delta > 0:
		return l.Increase(ctx, tx, warehouseID, productID, delta)
	default:
		return l.Decrease(ctx, tx, warehouseID, productID, -delta)
	}
}
