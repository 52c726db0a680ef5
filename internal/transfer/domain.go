// Package transfer moves stock between branches while preserving per-batch
// acquisition costs. A transferred quantity drawn from several cost layers
// arrives at the destination as several layers, one per source fragment.
package transfer

import (
	"errors"
	"time"

	"github.com/meridian-retail/meridian/internal/shared"
)

// Status is the transfer lifecycle state. There is no cancellation.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusReceived Status = "RECEIVED"
	StatusMismatch Status = "MISMATCH"
)

// Transfer is the header for one branch-to-branch stock movement.
type Transfer struct {
	ID           int64          `json:"id"`
	TransferNo   string         `json:"transfer_no"`
	FromBranchID int64          `json:"from_branch_id"`
	ToBranchID   int64          `json:"to_branch_id"`
	Status       Status         `json:"status"`
	CreatedBy    int64          `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	ReceivedBy   int64          `json:"received_by,omitempty"`
	ReceivedAt   time.Time      `json:"received_at,omitempty"`
	Items        []TransferItem `json:"items,omitempty"`
}

// TransferItem is one item line on a transfer.
type TransferItem struct {
	ID          int64                 `json:"id"`
	TransferID  int64                 `json:"transfer_id"`
	ItemID      int64                 `json:"item_id"`
	Qty         int64                 `json:"qty"`
	ReceivedQty int64                 `json:"received_qty"`
	TotalCost   shared.Money          `json:"total_cost"`
	Layers      []TransferLayerRecord `json:"layers,omitempty"`
}

// TransferLayerRecord captures one source fragment: which layer it came
// from, how much, and at what unit cost. Receipt recreates one destination
// layer per record so the cost composition survives the move.
type TransferLayerRecord struct {
	ID             int64        `json:"id"`
	TransferItemID int64        `json:"transfer_item_id"`
	SourceLayerID  int64        `json:"source_layer_id"`
	Qty            int64        `json:"qty"`
	UnitCost       shared.Money `json:"unit_cost"`
}

// CreateItem is one requested line on a new transfer.
type CreateItem struct {
	ItemID int64 `json:"item_id"`
	Qty    int64 `json:"qty"`
}

// CreateInput groups everything needed to create a transfer.
type CreateInput struct {
	FromBranchID int64
	ToBranchID   int64
	CreatedBy    int64
	Items        []CreateItem
}

// ReceivedItem reports the quantity that physically arrived for one item.
type ReceivedItem struct {
	ItemID int64 `json:"item_id"`
	Qty    int64 `json:"qty"`
}

// ReceiveInput groups everything needed to receive a transfer.
type ReceiveInput struct {
	TransferID int64
	ReceivedBy int64
	Received   []ReceivedItem
}

var (
	// ErrSameBranch rejects transfers where source equals destination.
	ErrSameBranch = errors.New("transfer: source and destination branch must differ")
	// ErrAlreadyReceived rejects receiving a transfer twice.
	ErrAlreadyReceived = errors.New("transfer: transfer already processed")
	// ErrTransferNotFound indicates a missing transfer.
	ErrTransferNotFound = errors.New("transfer: transfer not found")
	// ErrNoItems rejects a transfer with no lines.
	ErrNoItems = errors.New("transfer: at least one item required")
	// ErrInvalidQuantity rejects non-positive quantities.
	ErrInvalidQuantity = errors.New("transfer: quantity must be positive")
	// ErrUnknownItem rejects a received quantity for an item that is not on
	// the transfer.
	ErrUnknownItem = errors.New("transfer: item not on transfer")
)
