package movements

import (
	"context"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

// Effect is the per-variant strategy that maps a document line onto ledger
// calls. Apply runs inside the completion transaction; returning an error
// rolls back every line already applied plus the status flip.
type Effect interface {
	// Validate checks variant-specific fields on a draft document before it
	// is persisted.
	Validate(doc *Document) error
	// Warehouses lists the warehouse references the document uses, for
	// existence validation.
	Warehouses(doc *Document) []int64
	// Pairs lists the (warehouse, product) pairs the document touches, in
	// application order.
	Pairs(doc *Document) []BalancePair
	// Apply posts one line's ledger change.
	Apply(ctx context.Context, ledger *inventory.Ledger, tx inventory.BalanceTx, doc *Document, line Line) error
}

// BalancePair identifies one ledger row.
type BalancePair struct {
	WarehouseID int64
	ProductID   int64
}

// Definition binds a movement type to its number prefix, storage tables,
// and ledger effect.
type Definition struct {
	Type      Type
	Prefix    string
	DocTable  string
	LineTable string
	Effect    Effect
}

// StockIn returns the inbound movement definition.
func StockIn() Definition {
	return Definition{Type: TypeStockIn, Prefix: "IN", DocTable: "stock_in_documents", LineTable: "stock_in_lines", Effect: inboundEffect{}}
}

// StockOut returns the outbound movement definition.
func StockOut() Definition {
	return Definition{Type: TypeStockOut, Prefix: "OUT", DocTable: "stock_out_documents", LineTable: "stock_out_lines", Effect: outboundEffect{}}
}

// Transfer returns the inter-warehouse transfer definition.
func Transfer() Definition {
	return Definition{Type: TypeTransfer, Prefix: "TRF", DocTable: "stock_transfer_documents", LineTable: "stock_transfer_lines", Effect: transferEffect{}}
}

// StockCheck returns the physical stock-check definition.
func StockCheck() Definition {
	return Definition{Type: TypeStockCheck, Prefix: "CHK", DocTable: "stock_check_documents", LineTable: "stock_check_lines", Effect: checkEffect{}}
}

// Definitions returns all four movement definitions.
func Definitions() []Definition {
	return []Definition{StockIn(), StockOut(), Transfer(), StockCheck()}
}

type inboundEffect struct{}

func (inboundEffect) Validate(doc *Document) error {
	if doc.WarehouseID <= 0 {
		return ErrWarehouseRequired
	}
	return requirePositiveQuantities(doc.Lines)
}

func (inboundEffect) Warehouses(doc *Document) []int64 {
	return []int64{doc.WarehouseID}
}

func (inboundEffect) Pairs(doc *Document) []BalancePair {
	return singleWarehousePairs(doc)
}

func (inboundEffect) Apply(ctx context.Context, ledger *inventory.Ledger, tx inventory.BalanceTx, doc *Document, line Line) error {
	return ledger.Increase(ctx, tx, doc.WarehouseID, line.ProductID, line.Quantity)
}

type outboundEffect struct{}

func (outboundEffect) Validate(doc *Document) error {
	if doc.WarehouseID <= 0 {
		return ErrWarehouseRequired
	}
	return requirePositiveQuantities(doc.Lines)
}

func (outboundEffect) Warehouses(doc *Document) []int64 {
	return []int64{doc.WarehouseID}
}

func (outboundEffect) Pairs(doc *Document) []BalancePair {
	return singleWarehousePairs(doc)
}

func (outboundEffect) Apply(ctx context.Context, ledger *inventory.Ledger, tx inventory.BalanceTx, doc *Document, line Line) error {
	return ledger.Decrease(ctx, tx, doc.WarehouseID, line.ProductID, line.Quantity)
}

type transferEffect struct{}

func (transferEffect) Validate(doc *Document) error {
	if doc.FromWarehouseID <= 0 || doc.ToWarehouseID <= 0 {
		return ErrWarehouseRequired
	}
	if doc.FromWarehouseID == doc.ToWarehouseID {
		return ErrSameWarehouse
	}
	return requirePositiveQuantities(doc.Lines)
}

func (transferEffect) Warehouses(doc *Document) []int64 {
	return []int64{doc.FromWarehouseID, doc.ToWarehouseID}
}

func (transferEffect) Pairs(doc *Document) []BalancePair {
	pairs := make([]BalancePair, 0, 2*len(doc.Lines))
	for _, line := range doc.Lines {
		pairs = append(pairs,
			BalancePair{WarehouseID: doc.FromWarehouseID, ProductID: line.ProductID},
			BalancePair{WarehouseID: doc.ToWarehouseID, ProductID: line.ProductID})
	}
	return pairs
}

// Apply moves one line out of the source and into the destination. Both
// sides run on the same transaction; a failed destination increase rolls
// back the source decrease.
func (transferEffect) Apply(ctx context.Context, ledger *inventory.Ledger, tx inventory.BalanceTx, doc *Document, line Line) error {
	if err := ledger.Decrease(ctx, tx, doc.FromWarehouseID, line.ProductID, line.Quantity); err != nil {
		return err
	}
	return ledger.Increase(ctx, tx, doc.ToWarehouseID, line.ProductID, line.Quantity)
}

type checkEffect struct{}

func (checkEffect) Validate(doc *Document) error {
	if doc.WarehouseID <= 0 {
		return ErrWarehouseRequired
	}
	for _, line := range doc.Lines {
		if line.BookQty < 0 || line.ActualQty < 0 {
			return ErrInvalidCheckQty
		}
	}
	return nil
}

func (checkEffect) Warehouses(doc *Document) []int64 {
	return []int64{doc.WarehouseID}
}

func (checkEffect) Pairs(doc *Document) []BalancePair {
	return singleWarehousePairs(doc)
}

// Apply reconciles the counted quantity against the books: the stored
// difference (actual minus book) is applied as a signed delta.
func (checkEffect) Apply(ctx context.Context, ledger *inventory.Ledger, tx inventory.BalanceTx, doc *Document, line Line) error {
	return ledger.ApplyDelta(ctx, tx, doc.WarehouseID, line.ProductID, line.DiffQty)
}

func requirePositiveQuantities(lines []Line) error {
	for _, line := range lines {
		if line.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}
	return nil
}

func singleWarehousePairs(doc *Document) []BalancePair {
	pairs := make([]BalancePair, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		pairs = append(pairs, BalancePair{WarehouseID: doc.WarehouseID, ProductID: line.ProductID})
	}
	return pairs
}
