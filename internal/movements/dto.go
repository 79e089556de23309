package movements

import (
	"fmt"
	"time"
)

// LineRequest is one line of a create or update payload. Quantity drives
// in/out/transfer documents; book_qty and actual_qty drive stock-checks.
type LineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"gte=0"`
	BookQty   float64 `json:"book_qty" validate:"gte=0"`
	ActualQty float64 `json:"actual_qty" validate:"gte=0"`
	Location  string  `json:"location" validate:"max=100"`
	BatchNo   string  `json:"batch_no" validate:"max=100"`
	Reason    string  `json:"reason" validate:"max=255"`
}

// CreateRequest is the JSON payload for creating a movement document.
type CreateRequest struct {
	WarehouseID     int64         `json:"warehouse_id" validate:"omitempty,gt=0"`
	FromWarehouseID int64         `json:"from_warehouse_id" validate:"omitempty,gt=0"`
	ToWarehouseID   int64         `json:"to_warehouse_id" validate:"omitempty,gt=0"`
	MovementDate    string        `json:"movement_date" validate:"omitempty,datetime=2006-01-02"`
	Remark          string        `json:"remark" validate:"max=500"`
	Lines           []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// ToInput converts the request to a service input.
func (r CreateRequest) ToInput() (CreateInput, error) {
	input := CreateInput{
		WarehouseID:     r.WarehouseID,
		FromWarehouseID: r.FromWarehouseID,
		ToWarehouseID:   r.ToWarehouseID,
		Remark:          r.Remark,
		Lines:           toLineInputs(r.Lines),
	}
	if r.MovementDate != "" {
		date, err := time.Parse("2006-01-02", r.MovementDate)
		if err != nil {
			return CreateInput{}, fmt.Errorf("invalid movement_date: %w", err)
		}
		input.MovementDate = date
	}
	return input, nil
}

// UpdateRequest is the JSON payload for updating a draft document. Absent
// fields stay unchanged; a present lines array replaces the full line set.
type UpdateRequest struct {
	WarehouseID     *int64         `json:"warehouse_id" validate:"omitempty,gt=0"`
	FromWarehouseID *int64         `json:"from_warehouse_id" validate:"omitempty,gt=0"`
	ToWarehouseID   *int64         `json:"to_warehouse_id" validate:"omitempty,gt=0"`
	MovementDate    *string        `json:"movement_date" validate:"omitempty,datetime=2006-01-02"`
	Remark          *string        `json:"remark" validate:"omitempty,max=500"`
	Lines           *[]LineRequest `json:"lines" validate:"omitempty,min=1,dive"`
}

// ToInput converts the request to a service input.
func (r UpdateRequest) ToInput() (UpdateInput, error) {
	input := UpdateInput{
		WarehouseID:     r.WarehouseID,
		FromWarehouseID: r.FromWarehouseID,
		ToWarehouseID:   r.ToWarehouseID,
		Remark:          r.Remark,
	}
	if r.MovementDate != nil {
		date, err := time.Parse("2006-01-02", *r.MovementDate)
		if err != nil {
			return UpdateInput{}, fmt.Errorf("invalid movement_date: %w", err)
		}
		input.MovementDate = &date
	}
	if r.Lines != nil {
		lines := toLineInputs(*r.Lines)
		input.Lines = &lines
	}
	return input, nil
}

func toLineInputs(reqs []LineRequest) []LineInput {
	lines := make([]LineInput, 0, len(reqs))
	for _, req := range reqs {
		lines = append(lines, LineInput{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			BookQty:   req.BookQty,
			ActualQty: req.ActualQty,
			Location:  req.Location,
			BatchNo:   req.BatchNo,
			Reason:    req.Reason,
		})
	}
	return lines
}
