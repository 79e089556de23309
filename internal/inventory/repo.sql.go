package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists inventory balances in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type balanceTx struct {
	tx pgx.Tx
}

// NewBalanceTx wraps an open transaction so the ledger can mutate balance
// rows inside it.
func NewBalanceTx(tx pgx.Tx) BalanceTx {
	return &balanceTx{tx: tx}
}

func (r *balanceTx) GetBalanceForUpdate(ctx context.Context, warehouseID, productID int64) (Balance, error) {
	var bal Balance
	err := r.tx.QueryRow(ctx, `SELECT warehouse_id, product_id, quantity, available_qty, reserved_qty, updated_at
FROM inventory_balances WHERE warehouse_id=$1 AND product_id=$2 FOR UPDATE`, warehouseID, productID).
		Scan(&bal.WarehouseID, &bal.ProductID, &bal.Quantity, &bal.AvailableQty, &bal.ReservedQty, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{WarehouseID: warehouseID, ProductID: productID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *balanceTx) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_balances (warehouse_id, product_id, quantity, available_qty, reserved_qty, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (warehouse_id, product_id) DO UPDATE SET quantity=EXCLUDED.quantity, available_qty=EXCLUDED.available_qty, reserved_qty=EXCLUDED.reserved_qty, updated_at=NOW()`,
		balance.WarehouseID, balance.ProductID, balance.Quantity, balance.AvailableQty, balance.ReservedQty)
	return err
}

// Snapshot returns the current balance for one (warehouse, product) pair.
// Not transactionally significant; used by reporting and pickers.
func (r *Repository) Snapshot(ctx context.Context, warehouseID, productID int64) (Balance, error) {
	var bal Balance
	err := r.pool.QueryRow(ctx, `SELECT warehouse_id, product_id, quantity, available_qty, reserved_qty, updated_at
FROM inventory_balances WHERE warehouse_id=$1 AND product_id=$2`, warehouseID, productID).
		Scan(&bal.WarehouseID, &bal.ProductID, &bal.Quantity, &bal.AvailableQty, &bal.ReservedQty, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

// ListBalances pages through balances, optionally per warehouse or product.
func (r *Repository) ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_balances
WHERE ($1 = 0 OR warehouse_id = $1) AND ($2 = 0 OR product_id = $2)`, filter.WarehouseID, filter.ProductID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT warehouse_id, product_id, quantity, available_qty, reserved_qty, updated_at
FROM inventory_balances
WHERE ($1 = 0 OR warehouse_id = $1) AND ($2 = 0 OR product_id = $2)
ORDER BY warehouse_id, product_id
LIMIT $3 OFFSET $4`, filter.WarehouseID, filter.ProductID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	balances := []Balance{}
	for rows.Next() {
		var bal Balance
		if err := rows.Scan(&bal.WarehouseID, &bal.ProductID, &bal.Quantity, &bal.AvailableQty, &bal.ReservedQty, &bal.UpdatedAt); err != nil {
			return nil, 0, err
		}
		balances = append(balances, bal)
	}
	return balances, total, rows.Err()
}

// FindInvariantViolations returns balances where quantity no longer equals
// available + reserved. Used by the scheduled integrity scan.
func (r *Repository) FindInvariantViolations(ctx context.Context, limit int) ([]Balance, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT warehouse_id, product_id, quantity, available_qty, reserved_qty, updated_at
FROM inventory_balances
WHERE ABS(quantity - available_qty - reserved_qty) > 1e-6
ORDER BY updated_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []Balance
	for rows.Next() {
		var bal Balance
		if err := rows.Scan(&bal.WarehouseID, &bal.ProductID, &bal.Quantity, &bal.AvailableQty, &bal.ReservedQty, &bal.UpdatedAt); err != nil {
			return nil, err
		}
		violations = append(violations, bal)
	}
	return violations, rows.Err()
}
