package movements

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

type txRepository struct {
	tx  pgx.Tx
	def Definition
}

func (t *txRepository) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %s (doc_number, warehouse_id, from_warehouse_id, to_warehouse_id, movement_date, operator, status, remark, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id`, t.def.DocTable)
	var id int64
	err := t.tx.QueryRow(ctx, query,
		doc.DocNumber, nullInt(doc.WarehouseID), nullInt(doc.FromWarehouseID), nullInt(doc.ToWarehouseID),
		doc.MovementDate, doc.Operator, string(doc.Status), doc.Remark,
	).Scan(&id)
	return id, err
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %s (document_id, line_no, product_id, quantity, book_qty, actual_qty, diff_qty, location, batch_no, reason)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`, t.def.LineTable)
	var id int64
	err := t.tx.QueryRow(ctx, query,
		line.DocumentID, line.LineNo, line.ProductID, line.Quantity,
		line.BookQty, line.ActualQty, line.DiffQty, line.Location, line.BatchNo, line.Reason,
	).Scan(&id)
	return id, err
}

func (t *txRepository) DeleteLines(ctx context.Context, documentID int64) error {
	_, err := t.tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id=$1`, t.def.LineTable), documentID)
	return err
}

func (t *txRepository) UpdateDocument(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	var setClauses []string
	var args []any
	argPos := 1
	for field, value := range updates {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field, argPos))
		args = append(args, value)
		argPos++
	}
	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, t.def.DocTable, strings.Join(setClauses, ", "), argPos)
	cmdTag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]any) error {
	if updates == nil {
		updates = make(map[string]any)
	}
	updates["status"] = string(status)
	return t.UpdateDocument(ctx, id, updates)
}

// GetStatusForUpdate locks the document row so concurrent completions of the
// same document serialize on it.
func (t *txRepository) GetStatusForUpdate(ctx context.Context, id int64) (Status, error) {
	var status string
	err := t.tx.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id=$1 FOR UPDATE`, t.def.DocTable), id).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}
	return Status(status), nil
}

// GetLines reads the document's lines through the open transaction, after
// the document row has been locked.
func (t *txRepository) GetLines(ctx context.Context, documentID int64) ([]Line, error) {
	return queryLines(ctx, t.tx, t.def.LineTable, documentID)
}

// NextSequence bumps the per-day counter row for the prefix atomically.
func (t *txRepository) NextSequence(ctx context.Context, prefix string, date time.Time) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `INSERT INTO document_sequences (prefix, seq_date, last_seq)
VALUES ($1, $2, 1)
ON CONFLICT (prefix, seq_date) DO UPDATE SET last_seq = document_sequences.last_seq + 1
RETURNING last_seq`, prefix, date.Format("2006-01-02")).Scan(&seq)
	return seq, err
}

// Balances exposes the same transaction to the inventory ledger, so document
// status and balance mutations commit or roll back together.
func (t *txRepository) Balances() inventory.BalanceTx {
	return inventory.NewBalanceTx(t.tx)
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
