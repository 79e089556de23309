package movements

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// WarehouseDirectory checks warehouse references against master data.
type WarehouseDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// ProductDirectory checks product references against master data.
type ProductDirectory interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// AuditPort abstracts audit logging. Audit failures never block the
// primary operation.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SnapshotInvalidator drops cached balance snapshots after completion.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, warehouseID, productID int64) error
}

// ServiceConfig groups optional coordinator settings.
type ServiceConfig struct {
	// CompleteRetries bounds internal retries of the completion transaction
	// on lock or serialization conflicts.
	CompleteRetries int
}

// Service coordinates one movement variant: validate references, generate
// the document number, persist document plus lines, and on completion apply
// the ledger effect and flip the status inside a single transaction.
type Service struct {
	def        Definition
	repo       RepositoryPort
	ledger     *inventory.Ledger
	numbers    NumberGenerator
	warehouses WarehouseDirectory
	products   ProductDirectory
	audit      AuditPort
	snapshots  SnapshotInvalidator
	logger     *slog.Logger
	retries    int
}

// NewService builds Service. audit and snapshots may be nil.
func NewService(def Definition, repo RepositoryPort, ledger *inventory.Ledger, warehouses WarehouseDirectory, products ProductDirectory, audit AuditPort, snapshots SnapshotInvalidator, logger *slog.Logger, cfg ServiceConfig) *Service {
	retries := cfg.CompleteRetries
	if retries <= 0 {
		retries = 3
	}
	return &Service{
		def:        def,
		repo:       repo,
		ledger:     ledger,
		warehouses: warehouses,
		products:   products,
		audit:      audit,
		snapshots:  snapshots,
		logger:     logger,
		retries:    retries,
	}
}

// Definition returns the variant this service coordinates.
func (s *Service) Definition() Definition {
	return s.def
}

// LineInput carries one line of a create or update request.
type LineInput struct {
	ProductID int64
	Quantity  float64
	BookQty   float64
	ActualQty float64
	Location  string
	BatchNo   string
	Reason    string
}

// CreateInput carries a new movement document.
type CreateInput struct {
	WarehouseID     int64
	FromWarehouseID int64
	ToWarehouseID   int64
	MovementDate    time.Time
	Remark          string
	Lines           []LineInput
}

// UpdateInput carries a partial update; nil fields stay unchanged. A
// non-nil Lines replaces the whole line set.
type UpdateInput struct {
	WarehouseID     *int64
	FromWarehouseID *int64
	ToWarehouseID   *int64
	MovementDate    *time.Time
	Remark          *string
	Lines           *[]LineInput
}

// attempts on a duplicate document number; the atomic sequence makes this
// nearly impossible, the unique constraint makes it safe anyway.
const numberAttempts = 3

// Create validates references, assigns a document number, and persists the
// document with its lines as a draft. No ledger effect is applied.
func (s *Service) Create(ctx context.Context, input CreateInput, operator string) (*Document, error) {
	if len(input.Lines) == 0 {
		return nil, ErrEmptyLines
	}
	movementDate := input.MovementDate
	if movementDate.IsZero() {
		movementDate = time.Now().UTC()
	}

	doc := Document{
		Type:            s.def.Type,
		WarehouseID:     input.WarehouseID,
		FromWarehouseID: input.FromWarehouseID,
		ToWarehouseID:   input.ToWarehouseID,
		MovementDate:    movementDate,
		Operator:        operator,
		Status:          StatusDraft,
		Remark:          input.Remark,
		Lines:           buildLines(0, input.Lines),
	}

	if err := s.def.Effect.Validate(&doc); err != nil {
		return nil, err
	}
	if err := s.validateReferences(ctx, &doc); err != nil {
		return nil, err
	}

	var docID int64
	for attempt := 1; ; attempt++ {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			number, err := s.numbers.Next(ctx, tx, s.def.Prefix, movementDate)
			if err != nil {
				return err
			}
			doc.DocNumber = number
			id, err := tx.InsertDocument(ctx, doc)
			if err != nil {
				return fmt.Errorf("insert document: %w", err)
			}
			docID = id
			for i := range doc.Lines {
				doc.Lines[i].DocumentID = id
				if _, err := tx.InsertLine(ctx, doc.Lines[i]); err != nil {
					return fmt.Errorf("insert line %d: %w", doc.Lines[i].LineNo, err)
				}
			}
			return nil
		})
		if err == nil {
			break
		}
		if db.IsUniqueViolation(err) && attempt < numberAttempts {
			s.logger.Warn("document number collision, retrying",
				slog.String("type", string(s.def.Type)), slog.Int("attempt", attempt))
			continue
		}
		return nil, err
	}

	s.recordAudit(ctx, "create", docID, doc.DocNumber, operator, nil)
	return s.repo.GetByID(ctx, docID)
}

// Update modifies a draft document. A supplied line set replaces the stored
// one wholesale; the delete, the inserts, and the header update share one
// transaction.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput, operator string) (*Document, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !existing.Status.CanEdit() {
		return nil, fmt.Errorf("%w: %s", ErrNotEditable, existing.Status)
	}

	candidate := *existing
	updates := make(map[string]any)
	if input.WarehouseID != nil {
		candidate.WarehouseID = *input.WarehouseID
		updates["warehouse_id"] = nullUpdate(*input.WarehouseID)
	}
	if input.FromWarehouseID != nil {
		candidate.FromWarehouseID = *input.FromWarehouseID
		updates["from_warehouse_id"] = nullUpdate(*input.FromWarehouseID)
	}
	if input.ToWarehouseID != nil {
		candidate.ToWarehouseID = *input.ToWarehouseID
		updates["to_warehouse_id"] = nullUpdate(*input.ToWarehouseID)
	}
	if input.MovementDate != nil {
		candidate.MovementDate = *input.MovementDate
		updates["movement_date"] = *input.MovementDate
	}
	if input.Remark != nil {
		candidate.Remark = *input.Remark
		updates["remark"] = *input.Remark
	}
	if input.Lines != nil {
		if len(*input.Lines) == 0 {
			return nil, ErrEmptyLines
		}
		candidate.Lines = buildLines(id, *input.Lines)
	}

	if err := s.def.Effect.Validate(&candidate); err != nil {
		return nil, err
	}
	if err := s.validateReferences(ctx, &candidate); err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		status, err := tx.GetStatusForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !status.CanEdit() {
			return fmt.Errorf("%w: %s", ErrNotEditable, status)
		}
		if err := tx.UpdateDocument(ctx, id, updates); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		if input.Lines != nil {
			if err := tx.DeleteLines(ctx, id); err != nil {
				return fmt.Errorf("delete lines: %w", err)
			}
			for i := range candidate.Lines {
				if _, err := tx.InsertLine(ctx, candidate.Lines[i]); err != nil {
					return fmt.Errorf("insert line %d: %w", candidate.Lines[i].LineNo, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "update", id, existing.DocNumber, operator, nil)
	return s.repo.GetByID(ctx, id)
}

// Complete applies the document's ledger effect and flips the status to
// completed, all inside one transaction. Line effects apply in stored line
// order; any failure rolls back every applied line together with the status
// flip, leaving the document draft and the ledger untouched. Lock and
// serialization conflicts are retried a bounded number of times.
func (s *Service) Complete(ctx context.Context, id int64, operator string) (*Document, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := completionGuard(existing.Status); err != nil {
		return nil, err
	}

	completedAt := time.Now().UTC()
	doc := *existing
	for attempt := 1; ; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			status, err := tx.GetStatusForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := completionGuard(status); err != nil {
				return err
			}
			// Re-read lines under the document lock; a concurrent edit may
			// have replaced them since the initial load.
			lines, err := tx.GetLines(ctx, id)
			if err != nil {
				return err
			}
			doc.Lines = lines
			balances := tx.Balances()
			for _, line := range lines {
				if err := s.def.Effect.Apply(ctx, s.ledger, balances, &doc, line); err != nil {
					return err
				}
			}
			return tx.UpdateStatus(ctx, id, StatusCompleted, map[string]any{"completed_at": completedAt})
		})
		if err == nil {
			break
		}
		if db.IsConflict(err) && attempt < s.retries {
			s.logger.Warn("completion conflict, retrying",
				slog.String("type", string(s.def.Type)), slog.Int64("id", id), slog.Int("attempt", attempt))
			continue
		}
		return nil, err
	}

	s.invalidateSnapshots(ctx, &doc)
	s.recordAudit(ctx, "complete", id, doc.DocNumber, operator, map[string]any{"lines": len(doc.Lines)})
	return s.repo.GetByID(ctx, id)
}

// Cancel abandons a draft document. No ledger effect is ever applied.
func (s *Service) Cancel(ctx context.Context, id int64, operator string) (*Document, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := completionGuard(existing.Status); err != nil {
		return nil, err
	}

	cancelledAt := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		status, err := tx.GetStatusForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := completionGuard(status); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, id, StatusCancelled, map[string]any{"cancelled_at": cancelledAt})
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, "cancel", id, existing.DocNumber, operator, nil)
	return s.repo.GetByID(ctx, id)
}

// List pages through documents matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	return s.repo.List(ctx, filter)
}

// GetByID loads one document with its lines.
func (s *Service) GetByID(ctx context.Context, id int64) (*Document, error) {
	return s.repo.GetByID(ctx, id)
}

// GetLines loads a document's lines.
func (s *Service) GetLines(ctx context.Context, id int64) ([]Line, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetLines(ctx, id)
}

func completionGuard(status Status) error {
	switch status {
	case StatusCompleted:
		return ErrAlreadyCompleted
	case StatusCancelled:
		return ErrAlreadyCancelled
	default:
		return nil
	}
}

func (s *Service) validateReferences(ctx context.Context, doc *Document) error {
	seen := make(map[int64]bool)
	for _, warehouseID := range s.def.Effect.Warehouses(doc) {
		if seen[warehouseID] {
			continue
		}
		seen[warehouseID] = true
		ok, err := s.warehouses.Exists(ctx, warehouseID)
		if err != nil {
			return fmt.Errorf("check warehouse %d: %w", warehouseID, err)
		}
		if !ok {
			return &ReferenceError{Entity: "warehouse", ID: warehouseID}
		}
	}
	seenProducts := make(map[int64]bool)
	for _, line := range doc.Lines {
		if seenProducts[line.ProductID] {
			continue
		}
		seenProducts[line.ProductID] = true
		ok, err := s.products.Exists(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("check product %d: %w", line.ProductID, err)
		}
		if !ok {
			return &ReferenceError{Entity: "product", ID: line.ProductID}
		}
	}
	return nil
}

func (s *Service) invalidateSnapshots(ctx context.Context, doc *Document) {
	if s.snapshots == nil {
		return
	}
	for _, pair := range s.def.Effect.Pairs(doc) {
		if err := s.snapshots.Invalidate(ctx, pair.WarehouseID, pair.ProductID); err != nil {
			s.logger.Warn("invalidate balance snapshot", slog.Any("error", err),
				slog.Int64("warehouse_id", pair.WarehouseID), slog.Int64("product_id", pair.ProductID))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, docNumber, operator string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["doc_number"] = docNumber
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    operator,
		Action:   fmt.Sprintf("movements:%s:%s", s.def.Type, action),
		Entity:   s.def.DocTable,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}

func buildLines(documentID int64, inputs []LineInput) []Line {
	lines := make([]Line, 0, len(inputs))
	for i, in := range inputs {
		lines = append(lines, Line{
			DocumentID: documentID,
			LineNo:     i + 1,
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			BookQty:    in.BookQty,
			ActualQty:  in.ActualQty,
			DiffQty:    in.ActualQty - in.BookQty,
			Location:   in.Location,
			BatchNo:    in.BatchNo,
			Reason:     in.Reason,
		})
	}
	return lines
}

func nullUpdate(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
