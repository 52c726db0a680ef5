package costing

import (
	"errors"
	"time"

	"github.com/meridian-retail/meridian/internal/shared"
)

// SourceType tags where a cost layer came from.
type SourceType string

const (
	SourcePurchase   SourceType = "PURCHASE"
	SourceTransferIn SourceType = "TRANSFER_IN"
	SourceAdjustment SourceType = "ADJUSTMENT"
	SourceOpening    SourceType = "OPENING"
)

// MovementType enumerates stock movement log entries.
type MovementType string

const (
	MovementIn          MovementType = "IN"
	MovementOut         MovementType = "OUT"
	MovementRestore     MovementType = "RESTORE"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementAdjust      MovementType = "ADJUST"
)

// CostLayer is one acquired batch of stock with its own unit cost.
// Only RemainingQty changes after creation: it decreases on consumption and
// grows back up to OriginalQty on restoration. Layers are never deleted.
type CostLayer struct {
	ID           int64         `json:"id"`
	BranchID     int64         `json:"branch_id"`
	ItemID       int64         `json:"item_id"`
	OriginalQty  int64         `json:"original_qty"`
	RemainingQty int64         `json:"remaining_qty"`
	UnitCost     shared.Money  `json:"unit_cost"`
	AcquiredAt   time.Time     `json:"acquired_at"`
	SourceType   SourceType    `json:"source_type"`
	SourceRef    string        `json:"source_ref"`
}

// Fragment is a slice of one layer taken by a consumption.
type Fragment struct {
	LayerID  int64        `json:"layer_id"`
	Qty      int64        `json:"qty"`
	UnitCost shared.Money `json:"unit_cost"`
}

// Snapshot caches the total on-hand quantity per (branch, item). It is
// mutated only in the same transaction as the layers it summarises.
type Snapshot struct {
	BranchID  int64     `json:"branch_id"`
	ItemID    int64     `json:"item_id"`
	Qty       int64     `json:"qty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Movement is one row of the stock movement log.
type Movement struct {
	ID        int64        `json:"id"`
	BranchID  int64        `json:"branch_id"`
	ItemID    int64        `json:"item_id"`
	Type      MovementType `json:"type"`
	Qty       int64        `json:"qty"`
	UnitCost  shared.Money `json:"unit_cost"`
	Ref       string       `json:"ref"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// ConsumeInput describes a stock consumption request.
type ConsumeInput struct {
	BranchID int64
	ItemID   int64
	Qty      int64
	Ref      string
	ActorID  int64
}

// RestoreInput describes a stock restoration request (e.g. sales return).
type RestoreInput struct {
	BranchID int64
	ItemID   int64
	Qty      int64
	Ref      string
	ActorID  int64
}

// ReceiveInput describes a new inbound batch.
type ReceiveInput struct {
	BranchID   int64
	ItemID     int64
	Qty        int64
	UnitCost   shared.Money
	SourceType SourceType
	SourceRef  string
	ActorID    int64
}

// AdjustInput describes a manual stock adjustment.
type AdjustInput struct {
	BranchID int64
	ItemID   int64
	Qty      int64 // positive adds a layer, negative consumes
	UnitCost shared.Money
	Note     string
	ActorID  int64
}

var (
	// ErrInsufficientStock indicates FIFO consumption cannot satisfy the
	// requested quantity; nothing is mutated.
	ErrInsufficientStock = errors.New("costing: insufficient stock")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("costing: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("costing: unit cost must be >= 0")
	// ErrNothingToRestore indicates restoration exceeds the previously
	// consumed amount across all layers.
	ErrNothingToRestore = errors.New("costing: restore exceeds consumed quantity")
	// ErrSnapshotNotFound indicates a missing snapshot row.
	ErrSnapshotNotFound = errors.New("costing: stock snapshot not found")
)
