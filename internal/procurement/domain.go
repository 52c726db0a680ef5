// Package procurement orchestrates purchase receipts and supplier returns:
// cost-layer creation (or consumption, for returns) and the matching
// journal posting commit in one transaction.
package procurement

import (
	"errors"
	"time"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// PurchaseLine is one received batch: quantity at an acquisition unit cost.
// Each line becomes its own cost layer.
type PurchaseLine struct {
	ItemID   int64        `json:"item_id"`
	Qty      int64        `json:"qty"`
	UnitCost shared.Money `json:"unit_cost"`
}

// PurchaseInput groups everything needed to receive a purchase.
type PurchaseInput struct {
	BranchID   int64
	Date       time.Time
	ReceivedBy int64
	Supplier   string
	Lines      []PurchaseLine
	CashPaid   shared.Money
	CreditDue  shared.Money
}

// PurchaseResult reports the durable outcome of a receipt.
type PurchaseResult struct {
	PurchaseNo string            `json:"purchase_no"`
	Total      shared.Money      `json:"total"`
	LayerIDs   []int64           `json:"layer_ids"`
	Journal    ledger.PostResult `json:"journal"`
}

// ReturnLine is one item going back to the supplier.
type ReturnLine struct {
	ItemID int64 `json:"item_id"`
	Qty    int64 `json:"qty"`
}

// ReturnInput groups everything needed to return goods to a supplier. The
// returned cost is whatever FIFO consumption yields; RefundToCash decides
// whether it comes back as cash or reduces the payable.
type ReturnInput struct {
	BranchID     int64
	Date         time.Time
	HandledBy    int64
	PurchaseRef  string
	Lines        []ReturnLine
	RefundToCash bool
}

// ReturnResult reports the durable outcome of a supplier return.
type ReturnResult struct {
	ReturnNo string            `json:"return_no"`
	Total    shared.Money      `json:"total"`
	Journal  ledger.PostResult `json:"journal"`
}

var (
	// ErrNoLines rejects a purchase or return with no lines.
	ErrNoLines = errors.New("procurement: at least one line required")
	// ErrInvalidLine rejects non-positive quantities or negative costs.
	ErrInvalidLine = errors.New("procurement: invalid line")
)
