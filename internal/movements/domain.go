// Package movements implements the stock movement documents that mutate the
// inventory ledger: stock-in, stock-out, inter-warehouse transfer, and
// physical stock-check. All four share one lifecycle and one coordinator;
// only the ledger effect differs per type.
package movements

import (
	"errors"
	"fmt"
	"time"
)

// Type enumerates the movement document variants.
type Type string

const (
	TypeStockIn    Type = "STOCK_IN"
	TypeStockOut   Type = "STOCK_OUT"
	TypeTransfer   Type = "STOCK_TRANSFER"
	TypeStockCheck Type = "STOCK_CHECK"
)

// Status represents the document lifecycle.
type Status string

const (
	// StatusDraft is the initial state; the document can still be edited
	// and has had no ledger effect.
	StatusDraft Status = "DRAFT"
	// StatusCompleted means the ledger effect has been applied. Terminal.
	StatusCompleted Status = "COMPLETED"
	// StatusCancelled means the document was abandoned without any ledger
	// effect. Terminal.
	StatusCancelled Status = "CANCELLED"
)

// CanEdit reports whether the document may still be modified.
func (s Status) CanEdit() bool {
	return s == StatusDraft
}

// Document is the header of a stock movement. WarehouseID is set for
// in/out/check; transfers carry FromWarehouseID and ToWarehouseID instead.
type Document struct {
	ID              int64      `json:"id"`
	DocNumber       string     `json:"doc_number"`
	Type            Type       `json:"type"`
	WarehouseID     int64      `json:"warehouse_id,omitempty"`
	FromWarehouseID int64      `json:"from_warehouse_id,omitempty"`
	ToWarehouseID   int64      `json:"to_warehouse_id,omitempty"`
	MovementDate    time.Time  `json:"movement_date"`
	Operator        string     `json:"operator"`
	Status          Status     `json:"status"`
	Remark          string     `json:"remark,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	Lines           []Line     `json:"lines,omitempty"`
}

// Line is one product position on a movement document. Quantity is used by
// in/out/transfer; stock-checks record book and actual quantities and store
// their signed difference, computed when the line is written.
type Line struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	LineNo     int     `json:"line_no"`
	ProductID  int64   `json:"product_id"`
	Quantity   float64 `json:"quantity,omitempty"`
	BookQty    float64 `json:"book_qty,omitempty"`
	ActualQty  float64 `json:"actual_qty,omitempty"`
	DiffQty    float64 `json:"diff_qty,omitempty"`
	Location   string  `json:"location,omitempty"`
	BatchNo    string  `json:"batch_no,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// ListFilter narrows document listings.
type ListFilter struct {
	Status      *Status
	WarehouseID int64
	DateFrom    time.Time
	DateTo      time.Time
	Search      string
	Page        int
	Limit       int
}

// Domain errors.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("movements: document not found")
	// ErrNotEditable indicates a mutation on a completed or cancelled document.
	ErrNotEditable = errors.New("movements: document can no longer be edited")
	// ErrAlreadyCompleted guards completion idempotency.
	ErrAlreadyCompleted = errors.New("movements: document already completed")
	// ErrAlreadyCancelled guards completion of a cancelled document.
	ErrAlreadyCancelled = errors.New("movements: document already cancelled")
	// ErrEmptyLines indicates a document without line items.
	ErrEmptyLines = errors.New("movements: at least one line is required")
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("movements: line quantity must be greater than zero")
	// ErrInvalidCheckQty indicates a negative book or actual quantity.
	ErrInvalidCheckQty = errors.New("movements: book and actual quantity must not be negative")
	// ErrSameWarehouse indicates a transfer onto itself.
	ErrSameWarehouse = errors.New("movements: source and destination warehouse must differ")
	// ErrWarehouseRequired indicates a missing warehouse reference.
	ErrWarehouseRequired = errors.New("movements: warehouse is required")
)

// ReferenceError names a referenced entity that does not exist.
type ReferenceError struct {
	Entity string
	ID     int64
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("movements: %s %d not found", e.Entity, e.ID)
}
