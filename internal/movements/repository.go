package movements

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the coordinator.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, id int64) (*Document, error)
	GetLines(ctx context.Context, documentID int64) ([]Line, error)
	List(ctx context.Context, filter ListFilter) ([]Document, int, error)
}

// TxRepository exposes the write operations available inside one transaction.
type TxRepository interface {
	InsertDocument(ctx context.Context, doc Document) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	DeleteLines(ctx context.Context, documentID int64) error
	UpdateDocument(ctx context.Context, id int64, updates map[string]any) error
	UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]any) error
	GetStatusForUpdate(ctx context.Context, id int64) (Status, error)
	GetLines(ctx context.Context, documentID int64) ([]Line, error)
	NextSequence(ctx context.Context, prefix string, date time.Time) (int64, error)
	Balances() inventory.BalanceTx
}

// Repository persists one movement variant's documents and lines. The table
// names come from the Definition; all four variants share this implementation.
type Repository struct {
	pool *pgxpool.Pool
	def  Definition
}

// NewRepository constructs Repository for a movement definition.
func NewRepository(pool *pgxpool.Pool, def Definition) *Repository {
	return &Repository{pool: pool, def: def}
}

const docColumns = `id, doc_number, COALESCE(warehouse_id,0), COALESCE(from_warehouse_id,0), COALESCE(to_warehouse_id,0), movement_date, operator, status, COALESCE(remark,''), created_at, updated_at, completed_at, cancelled_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, def: r.def})
	})
}

// GetByID loads a document header with its lines.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1`, docColumns, r.def.DocTable)
	doc, err := scanDocument(r.pool.QueryRow(ctx, query, id), r.def.Type)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	lines, err := r.GetLines(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Lines = lines
	return doc, nil
}

// GetLines loads a document's lines in stored order.
func (r *Repository) GetLines(ctx context.Context, documentID int64) ([]Line, error) {
	return queryLines(ctx, r.pool, r.def.LineTable, documentID)
}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q pgxQuerier, table string, documentID int64) ([]Line, error) {
	query := fmt.Sprintf(`SELECT id, document_id, line_no, product_id, quantity, book_qty, actual_qty, diff_qty, COALESCE(location,''), COALESCE(batch_no,''), COALESCE(reason,'')
FROM %s WHERE document_id=$1 ORDER BY line_no ASC, id ASC`, table)
	rows, err := q.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.LineNo, &l.ProductID, &l.Quantity, &l.BookQty, &l.ActualQty, &l.DiffQty, &l.Location, &l.BatchNo, &l.Reason); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// List pages through document headers matching the filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.WarehouseID != 0 {
		args = append(args, filter.WarehouseID)
		n := strconv.Itoa(len(args))
		where += ` AND (warehouse_id = $` + n + ` OR from_warehouse_id = $` + n + ` OR to_warehouse_id = $` + n + `)`
	}
	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		where += ` AND movement_date >= $` + strconv.Itoa(len(args))
	}
	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		where += ` AND movement_date <= $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (doc_number ILIKE $` + n + ` OR remark ILIKE $` + n + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+r.def.DocTable+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY id DESC LIMIT $%d`, docColumns, r.def.DocTable, where, len(args))
	args = append(args, (page-1)*limit)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows, r.def.Type)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	return docs, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, typ Type) (*Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.DocNumber, &doc.WarehouseID, &doc.FromWarehouseID, &doc.ToWarehouseID,
		&doc.MovementDate, &doc.Operator, &doc.Status, &doc.Remark,
		&doc.CreatedAt, &doc.UpdatedAt, &doc.CompletedAt, &doc.CancelledAt)
	if err != nil {
		return nil, err
	}
	doc.Type = typ
	return &doc, nil
}
