package inventory

import (
	"errors"
	"time"
)

// Balance summarises stock per (warehouse, product) pair. It is the single
// shared row every completed movement converges on; after every mutation
// Quantity == AvailableQty + ReservedQty must hold.
type Balance struct {
	WarehouseID  int64     `json:"warehouse_id"`
	ProductID    int64     `json:"product_id"`
	Quantity     float64   `json:"quantity"`
	AvailableQty float64   `json:"available_qty"`
	ReservedQty  float64   `json:"reserved_qty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BalanceFilter narrows balance listings.
type BalanceFilter struct {
	WarehouseID int64
	ProductID   int64
	Page        int
	Limit       int
}

// ErrInsufficientStock triggered when a decrease would drive available stock negative.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("inventory: balance not found")
