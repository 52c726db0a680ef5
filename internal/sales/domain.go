// Package sales orchestrates point-of-sale operations: stock consumption
// for cost of goods and the matching journal posting happen in one
// transaction, so a failed sale leaves neither.
package sales

import (
	"errors"
	"time"

	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// SaleLine is one item sold at a price.
type SaleLine struct {
	ItemID    int64        `json:"item_id"`
	Qty       int64        `json:"qty"`
	UnitPrice shared.Money `json:"unit_price"`
}

// SaleInput groups everything needed to record a sale.
type SaleInput struct {
	BranchID  int64
	Date      time.Time
	SoldBy    int64
	Lines     []SaleLine
	CashPaid  shared.Money
	CreditDue shared.Money
}

// SaleResult reports the durable outcome of a recorded sale.
type SaleResult struct {
	SaleNo  string            `json:"sale_no"`
	Total   shared.Money      `json:"total"`
	COGS    shared.Money      `json:"cogs"`
	Journal ledger.PostResult `json:"journal"`
}

// ReturnLine is one item coming back with the amount refunded for it.
type ReturnLine struct {
	ItemID int64        `json:"item_id"`
	Qty    int64        `json:"qty"`
	Amount shared.Money `json:"amount"`
}

// ReturnInput groups everything needed to record a sales return.
type ReturnInput struct {
	BranchID     int64
	Date         time.Time
	HandledBy    int64
	SaleRef      string
	Lines        []ReturnLine
	CashRefund   shared.Money
	CreditOffset shared.Money
}

// ReturnResult reports the durable outcome of a recorded return.
type ReturnResult struct {
	ReturnNo     string            `json:"return_no"`
	Total        shared.Money      `json:"total"`
	RestoredCost shared.Money      `json:"restored_cost"`
	Journal      ledger.PostResult `json:"journal"`
}

var (
	// ErrNoLines rejects a sale or return with no lines.
	ErrNoLines = errors.New("sales: at least one line required")
	// ErrInvalidLine rejects non-positive quantities or negative amounts.
	ErrInvalidLine = errors.New("sales: invalid line")
)
