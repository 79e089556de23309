package movements

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
)

// memoryState is the committed store. WithTx hands the callback a deep copy
// and only copies it back on success, mirroring transaction semantics.
type memoryState struct {
	docs       map[int64]Document
	lines      map[int64][]Line
	balances   map[string]inventory.Balance
	seqs       map[string]int64
	nextDocID  int64
	nextLineID int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		docs:     make(map[int64]Document),
		lines:    make(map[int64][]Line),
		balances: make(map[string]inventory.Balance),
		seqs:     make(map[string]int64),
	}
}

func pairKey(warehouseID, productID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, productID)
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	c.nextDocID = s.nextDocID
	c.nextLineID = s.nextLineID
	for id, doc := range s.docs {
		c.docs[id] = doc
	}
	for id, lines := range s.lines {
		copied := make([]Line, len(lines))
		copy(copied, lines)
		c.lines[id] = copied
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.seqs {
		c.seqs[k] = v
	}
	return c
}

type memoryRepo struct {
	state *memoryState

	// insertFailures makes the next N document inserts fail with a unique
	// violation, to exercise the number collision retry.
	insertFailures int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: newMemoryState()}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: staged, repo: r}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id int64) (*Document, error) {
	doc, ok := r.state.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	lines := make([]Line, len(r.state.lines[id]))
	copy(lines, r.state.lines[id])
	doc.Lines = lines
	return &doc, nil
}

func (r *memoryRepo) GetLines(ctx context.Context, documentID int64) ([]Line, error) {
	lines := make([]Line, len(r.state.lines[documentID]))
	copy(lines, r.state.lines[documentID])
	return lines, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	var docs []Document
	for _, doc := range r.state.docs {
		if filter.Status != nil && doc.Status != *filter.Status {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, len(docs), nil
}

type memoryTx struct {
	state *memoryState
	repo  *memoryRepo
}

func (t *memoryTx) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	if t.repo != nil && t.repo.insertFailures > 0 {
		t.repo.insertFailures--
		return 0, &pgconn.PgError{Code: "23505", ConstraintName: "doc_number_key"}
	}
	t.state.nextDocID++
	doc.ID = t.state.nextDocID
	doc.Lines = nil
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	t.state.docs[doc.ID] = doc
	return doc.ID, nil
}

func (t *memoryTx) InsertLine(ctx context.Context, line Line) (int64, error) {
	t.state.nextLineID++
	line.ID = t.state.nextLineID
	t.state.lines[line.DocumentID] = append(t.state.lines[line.DocumentID], line)
	return line.ID, nil
}

func (t *memoryTx) DeleteLines(ctx context.Context, documentID int64) error {
	delete(t.state.lines, documentID)
	return nil
}

func (t *memoryTx) UpdateDocument(ctx context.Context, id int64, updates map[string]any) error {
	doc, ok := t.state.docs[id]
	if !ok {
		return ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "status":
			doc.Status = Status(value.(string))
		case "warehouse_id":
			doc.WarehouseID = asInt64(value)
		case "from_warehouse_id":
			doc.FromWarehouseID = asInt64(value)
		case "to_warehouse_id":
			doc.ToWarehouseID = asInt64(value)
		case "movement_date":
			doc.MovementDate = value.(time.Time)
		case "remark":
			doc.Remark = value.(string)
		case "completed_at":
			at := value.(time.Time)
			doc.CompletedAt = &at
		case "cancelled_at":
			at := value.(time.Time)
			doc.CancelledAt = &at
		}
	}
	doc.UpdatedAt = time.Now()
	t.state.docs[id] = doc
	return nil
}

func asInt64(value any) int64 {
	if value == nil {
		return 0
	}
	return value.(int64)
}

func (t *memoryTx) UpdateStatus(ctx context.Context, id int64, status Status, updates map[string]any) error {
	if updates == nil {
		updates = make(map[string]any)
	}
	updates["status"] = string(status)
	return t.UpdateDocument(ctx, id, updates)
}

func (t *memoryTx) GetStatusForUpdate(ctx context.Context, id int64) (Status, error) {
	doc, ok := t.state.docs[id]
	if !ok {
		return "", ErrNotFound
	}
	return doc.Status, nil
}

func (t *memoryTx) GetLines(ctx context.Context, documentID int64) ([]Line, error) {
	lines := make([]Line, len(t.state.lines[documentID]))
	copy(lines, t.state.lines[documentID])
	return lines, nil
}

func (t *memoryTx) NextSequence(ctx context.Context, prefix string, date time.Time) (int64, error) {
	key := prefix + ":" + date.Format("2006-01-02")
	t.state.seqs[key]++
	return t.state.seqs[key], nil
}

func (t *memoryTx) Balances() inventory.BalanceTx {
	return &memoryBalanceTx{state: t.state}
}

type memoryBalanceTx struct {
	state *memoryState
}

func (b *memoryBalanceTx) GetBalanceForUpdate(ctx context.Context, warehouseID, productID int64) (inventory.Balance, error) {
	if bal, ok := b.state.balances[pairKey(warehouseID, productID)]; ok {
		return bal, nil
	}
	return inventory.Balance{WarehouseID: warehouseID, ProductID: productID}, inventory.ErrBalanceNotFound
}

func (b *memoryBalanceTx) UpsertBalance(ctx context.Context, balance inventory.Balance) error {
	b.state.balances[pairKey(balance.WarehouseID, balance.ProductID)] = balance
	return nil
}

type dirSet map[int64]bool

func (d dirSet) Exists(ctx context.Context, id int64) (bool, error) {
	return d[id], nil
}

func newTestService(def Definition, repo *memoryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	warehouses := dirSet{1: true, 2: true}
	products := dirSet{10: true, 11: true}
	return NewService(def, repo, inventory.NewLedger(), warehouses, products, nil, nil, logger, ServiceConfig{})
}

func seedBalance(repo *memoryRepo, warehouseID, productID int64, qty float64) {
	repo.state.balances[pairKey(warehouseID, productID)] = inventory.Balance{
		WarehouseID:  warehouseID,
		ProductID:    productID,
		Quantity:     qty,
		AvailableQty: qty,
	}
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(StockIn(), repo)
	ctx := context.Background()

	date := time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC)
	input := CreateInput{
		WarehouseID:  1,
		MovementDate: date,
		Lines:        []LineInput{{ProductID: 10, Quantity: 5}},
	}

	first, err := svc.Create(ctx, input, "alice")
	require.NoError(t, err)
	require.Equal(t, "IN20240521001", first.DocNumber)
	require.Equal(t, StatusDraft, first.Status)
	require.Equal(t, "alice", first.Operator)
	require.Len(t, first.Lines, 1)

	second, err := svc.Create(ctx, input, "alice")
	require.NoError(t, err)
	require.Equal(t, "IN20240521002", second.DocNumber)

	// drafts never touch the ledger
	require.Empty(t, repo.state.balances)
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(StockIn(), repo)
	ctx := context.Background()
	repo.insertFailures = 1

	doc, err := svc.Create(ctx, CreateInput{
		WarehouseID:  1,
		MovementDate: time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC),
		Lines:        []LineInput{{ProductID: 10, Quantity: 5}},
	}, "alice")
	require.NoError(t, err)
	// the failed attempt rolled back its counter bump
	require.Equal(t, "IN20240521001", doc.DocNumber)
	require.Len(t, repo.state.docs, 1)
}

func TestCreateValidations(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()

	svc := newTestService(StockIn(), repo)
	_, err := svc.Create(ctx, CreateInput{WarehouseID: 1}, "alice")
	require.ErrorIs(t, err, ErrEmptyLines)

	_, err = svc.Create(ctx, CreateInput{WarehouseID: 1, Lines: []LineInput{{ProductID: 10, Quantity: 0}}}, "alice")
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Create(ctx, CreateInput{Lines: []LineInput{{ProductID: 10, Quantity: 1}}}, "alice")
	require.ErrorIs(t, err, ErrWarehouseRequired)

	_, err = svc.Create(ctx, CreateInput{WarehouseID: 99, Lines: []LineInput{{ProductID: 10, Quantity: 1}}}, "alice")
	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
	require.Equal(t, "warehouse", refErr.Entity)

	_, err = svc.Create(ctx, CreateInput{WarehouseID: 1, Lines: []LineInput{{ProductID: 77, Quantity: 1}}}, "alice")
	require.ErrorAs(t, err, &refErr)
	require.Equal(t, "product", refErr.Entity)

	transfers := newTestService(Transfer(), repo)
	_, err = transfers.Create(ctx, CreateInput{FromWarehouseID: 1, ToWarehouseID: 1, Lines: []LineInput{{ProductID: 10, Quantity: 1}}}, "alice")
	require.ErrorIs(t, err, ErrSameWarehouse)
}

func TestCompleteStockInAppliesLedgerOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(StockIn(), repo)
	ctx := context.Background()

	doc, err := svc.Create(ctx, CreateInput{
		WarehouseID: 1,
		Lines:       []LineInput{{ProductID: 10, Quantity: 15}},
	}, "alice")
	require.NoError(t, err)

	completed, err := svc.Complete(ctx, doc.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	bal := repo.state.balances[pairKey(1, 10)]
	require.InDelta(t, 15, bal.Quantity, 1e-9)
	require.InDelta(t, 15, bal.AvailableQty, 1e-9)

	// completing again must not double-apply
	_, err = svc.Complete(ctx, doc.ID, "alice")
	require.ErrorIs(t, err, ErrAlreadyCompleted)
	bal = repo.state.balances[pairKey(1, 10)]
	require.InDelta(t, 15, bal.Quantity, 1e-9)
}

func TestCompleteStockOutInsufficientRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(StockOut(), repo)
	ctx := context.Background()
	seedBalance(repo, 1, 10, 5)

	doc, err := svc.Create(ctx, CreateInput{
		WarehouseID: 1,
		Lines: []LineInput{
			{ProductID: 10, Quantity: 3},
			{ProductID: 10, Quantity: 10},
		},
	}, "bob")
	require.NoError(t, err)

	_, err = svc.Complete(ctx, doc.ID, "bob")
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// the first line's decrease rolled back with the failure
	bal := repo.state.balances[pairKey(1, 10)]
	require.InDelta(t, 5, bal.Quantity, 1e-9)
	got, err := svc.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, got.Status)
}

func TestCompleteTransferAtomic(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(Transfer(), repo)
	ctx := context.Background()
	seedBalance(repo, 1, 10, 20)

	failing, err := svc.Create(ctx, CreateInput{
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		Lines: []LineInput{
			{ProductID: 10, Quantity: 5},
			{ProductID: 11, Quantity: 1},
		},
	}, "bob")
	require.NoError(t, err)

	_, err = svc.Complete(ctx, failing.ID, "bob")
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	require.InDelta(t, 20, repo.state.balances[pairKey(1, 10)].Quantity, 1e-9)
	_, moved := repo.state.balances[pairKey(2, 10)]
	require.False(t, moved)

	working, err := svc.Create(ctx, CreateInput{
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		Lines:           []LineInput{{ProductID: 10, Quantity: 5}},
	}, "bob")
	require.NoError(t, err)

	_, err = svc.Complete(ctx, working.ID, "bob")
	require.NoError(t, err)
	require.InDelta(t, 15, repo.state.balances[pairKey(1, 10)].Quantity, 1e-9)
	require.InDelta(t, 5, repo.state.balances[pairKey(2, 10)].Quantity, 1e-9)
}

func TestCompleteStockCheckReconciles(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(StockCheck(), repo)
	ctx := context.Background()
	seedBalance(repo, 1, 10, 10)
	seedBalance(repo, 1, 11, 5)

	doc, err := svc.Create(ctx, CreateInput{
		WarehouseID: 1,
		Lines: []LineInput{
			{ProductID: 10, BookQty: 10, ActualQty: 7},
			{ProductID: 11, BookQty: 5, ActualQty: 10},
		},
	}, "carol")
	require.NoError(t, err)
	require.InDelta(t, -3, doc.Lines[0].DiffQty, 1e-9)
	require.InDelta(t, 5, doc.Lines[1].DiffQty, 1e-9)

	_, err = svc.Complete(ctx, doc.ID, "carol")
	require.NoError(t, err)
	require.InDelta(t, 7, repo.state.balances[pairKey(1, 10)].Quantity, 1e-9)
	require.InDelta(t, 10, repo.state.balances[pairKey(1, 11)].Quantity, 1e-9)
}

func TestUpdateReplacesLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(StockIn(), repo)
	ctx := context.Background()

	doc, err := svc.Create(ctx, CreateInput{
		WarehouseID: 1,
		Lines:       []LineInput{{ProductID: 10, Quantity: 5}},
	}, "alice")
	require.NoError(t, err)

	newLines := []LineInput{
		{ProductID: 10, Quantity: 2},
		{ProductID: 11, Quantity: 4},
	}
	remark := "recount"
	updated, err := svc.Update(ctx, doc.ID, UpdateInput{Remark: &remark, Lines: &newLines}, "alice")
	require.NoError(t, err)
	require.Equal(t, "recount", updated.Remark)
	require.Len(t, updated.Lines, 2)
	require.Equal(t, 1, updated.Lines[0].LineNo)
	require.Equal(t, 2, updated.Lines[1].LineNo)
	require.Equal(t, int64(11), updated.Lines[1].ProductID)

	_, err = svc.Complete(ctx, doc.ID, "alice")
	require.NoError(t, err)

	_, err = svc.Update(ctx, doc.ID, UpdateInput{Remark: &remark}, "alice")
	require.ErrorIs(t, err, ErrNotEditable)
}

func TestCancelSkipsLedger(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(StockIn(), repo)
	ctx := context.Background()

	doc, err := svc.Create(ctx, CreateInput{
		WarehouseID: 1,
		Lines:       []LineInput{{ProductID: 10, Quantity: 5}},
	}, "alice")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, doc.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.Empty(t, repo.state.balances)

	_, err = svc.Complete(ctx, doc.ID, "alice")
	require.ErrorIs(t, err, ErrAlreadyCancelled)
	_, err = svc.Cancel(ctx, doc.ID, "alice")
	require.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCompleteUsesLatestLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(StockIn(), repo)
	ctx := context.Background()

	doc, err := svc.Create(ctx, CreateInput{
		WarehouseID: 1,
		Lines:       []LineInput{{ProductID: 10, Quantity: 5}},
	}, "alice")
	require.NoError(t, err)

	newLines := []LineInput{{ProductID: 10, Quantity: 9}}
	_, err = svc.Update(ctx, doc.ID, UpdateInput{Lines: &newLines}, "alice")
	require.NoError(t, err)

	_, err = svc.Complete(ctx, doc.ID, "alice")
	require.NoError(t, err)
	require.InDelta(t, 9, repo.state.balances[pairKey(1, 10)].Quantity, 1e-9)
}
