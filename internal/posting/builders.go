// Package posting assembles balanced journal lines for business documents.
// Builders verify amount splits and resolve accounts by role; they carry no
// stock or FIFO logic.
package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-retail/meridian/internal/accounts"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

var (
	// ErrAmountMismatch indicates a cash/due/refund split that does not sum
	// to the stated total.
	ErrAmountMismatch = errors.New("posting: amount split does not sum to total")
	// ErrInvalidAmount indicates a negative or zero amount where a positive
	// one is required.
	ErrInvalidAmount = errors.New("posting: invalid amount")
)

// Resolver resolves logical account roles to account ids.
type Resolver interface {
	AccountFor(ctx context.Context, role accounts.Role) (int64, error)
}

// Builder assembles posting inputs for every money-moving document.
type Builder struct {
	resolver Resolver
}

// NewBuilder constructs a Builder.
func NewBuilder(resolver Resolver) *Builder {
	return &Builder{resolver: resolver}
}

// SaleAmounts carries the already-computed financial effect of a sale.
type SaleAmounts struct {
	BranchID  int64
	RefID     string
	Date      time.Time
	PostedBy  int64
	Total     shared.Money
	CashPaid  shared.Money
	CreditDue shared.Money
	COGS      shared.Money
}

// Sale builds: debit cash and receivable for the payment split, credit
// sales for the total, and move cost of goods from inventory to COGS.
func (b *Builder) Sale(ctx context.Context, in SaleAmounts) (ledger.PostingInput, error) {
	if in.Total <= 0 || in.CashPaid < 0 || in.CreditDue < 0 || in.COGS < 0 {
		return ledger.PostingInput{}, ErrInvalidAmount
	}
	if in.CashPaid+in.CreditDue != in.Total {
		return ledger.PostingInput{}, fmt.Errorf("%w: cash %d + due %d != total %d",
			ErrAmountMismatch, in.CashPaid, in.CreditDue, in.Total)
	}
	lines := newLineSet()
	if err := lines.debit(ctx, b.resolver, accounts.RoleCash, in.CashPaid); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.debit(ctx, b.resolver, accounts.RoleReceivable, in.CreditDue); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RoleSales, in.Total); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.debit(ctx, b.resolver, accounts.RoleCOGS, in.COGS); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RoleInventory, in.COGS); err != nil {
		return ledger.PostingInput{}, err
	}
	return ledger.PostingInput{
		Date:      in.Date,
		RefType:   ledger.RefSale,
		RefID:     in.RefID,
		Narration: "Sale " + in.RefID,
		BranchID:  in.BranchID,
		PostedBy:  in.PostedBy,
		Lines:     lines.out,
	}, nil
}

// SaleReturnAmounts carries the financial effect of a sales return.
type SaleReturnAmounts struct {
	BranchID     int64
	RefID        string
	Date         time.Time
	PostedBy     int64
	Total        shared.Money
	CashRefund   shared.Money
	CreditOffset shared.Money
	RestockCost  shared.Money
}

// SaleReturn builds the reversal of a sale: debit the sales-return contra
// account, pay out the refund split, and move restocked cost back from COGS
// into inventory.
func (b *Builder) SaleReturn(ctx context.Context, in SaleReturnAmounts) (ledger.PostingInput, error) {
	if in.Total <= 0 || in.CashRefund < 0 || in.CreditOffset < 0 || in.RestockCost < 0 {
		return ledger.PostingInput{}, ErrInvalidAmount
	}
	if in.CashRefund+in.CreditOffset != in.Total {
		return ledger.PostingInput{}, fmt.Errorf("%w: refund %d + offset %d != total %d",
			ErrAmountMismatch, in.CashRefund, in.CreditOffset, in.Total)
	}
	lines := newLineSet()
	if err := lines.debit(ctx, b.resolver, accounts.RoleSalesReturn, in.Total); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RoleCash, in.CashRefund); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RoleReceivable, in.CreditOffset); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.debit(ctx, b.resolver, accounts.RoleInventory, in.RestockCost); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RoleCOGS, in.RestockCost); err != nil {
		return ledger.PostingInput{}, err
	}
	return ledger.PostingInput{
		Date:      in.Date,
		RefType:   ledger.RefSaleReturn,
		RefID:     in.RefID,
		Narration: "Sale return " + in.RefID,
		BranchID:  in.BranchID,
		PostedBy:  in.PostedBy,
		Lines:     lines.out,
	}, nil
}

// PurchaseAmounts carries the financial effect of a purchase receipt.
type PurchaseAmounts struct {
	BranchID  int64
	RefID     string
	Date      time.Time
	PostedBy  int64
	Total     shared.Money
	CashPaid  shared.Money
	CreditDue shared.Money
}

// Purchase builds: debit inventory for the received cost, credit cash and
// payable for the payment split.
func (b *Builder) Purchase(ctx context.Context, in PurchaseAmounts) (ledger.PostingInput, error) {
	if in.Total <= 0 || in.CashPaid < 0 || in.CreditDue < 0 {
		return ledger.PostingInput{}, ErrInvalidAmount
	}
	if in.CashPaid+in.CreditDue != in.Total {
		return ledger.PostingInput{}, fmt.Errorf("%w: cash %d + due %d != total %d",
			ErrAmountMismatch, in.CashPaid, in.CreditDue, in.Total)
	}
	lines := newLineSet()
	if err := lines.debit(ctx, b.resolver, accounts.RoleInventory, in.Total); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RoleCash, in.CashPaid); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RolePayable, in.CreditDue); err != nil {
		return ledger.PostingInput{}, err
	}
	return ledger.PostingInput{
		Date:      in.Date,
		RefType:   ledger.RefPurchase,
		RefID:     in.RefID,
		Narration: "Purchase " + in.RefID,
		BranchID:  in.BranchID,
		PostedBy:  in.PostedBy,
		Lines:     lines.out,
	}, nil
}

// PurchaseReturnAmounts carries the financial effect of returning goods to
// a supplier.
type PurchaseReturnAmounts struct {
	BranchID      int64
	RefID         string
	Date          time.Time
	PostedBy      int64
	Total         shared.Money
	CashRefund    shared.Money
	PayableOffset shared.Money
}

// PurchaseReturn builds: credit inventory for the returned cost, debit cash
// and payable for the refund split.
func (b *Builder) PurchaseReturn(ctx context.Context, in PurchaseReturnAmounts) (ledger.PostingInput, error) {
	if in.Total <= 0 || in.CashRefund < 0 || in.PayableOffset < 0 {
		return ledger.PostingInput{}, ErrInvalidAmount
	}
	if in.CashRefund+in.PayableOffset != in.Total {
		return ledger.PostingInput{}, fmt.Errorf("%w: refund %d + offset %d != total %d",
			ErrAmountMismatch, in.CashRefund, in.PayableOffset, in.Total)
	}
	lines := newLineSet()
	if err := lines.debit(ctx, b.resolver, accounts.RoleCash, in.CashRefund); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.debit(ctx, b.resolver, accounts.RolePayable, in.PayableOffset); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RoleInventory, in.Total); err != nil {
		return ledger.PostingInput{}, err
	}
	return ledger.PostingInput{
		Date:      in.Date,
		RefType:   ledger.RefPurchaseReturn,
		RefID:     in.RefID,
		Narration: "Purchase return " + in.RefID,
		BranchID:  in.BranchID,
		PostedBy:  in.PostedBy,
		Lines:     lines.out,
	}, nil
}

// PayrollAmounts carries one payroll run for a branch.
type PayrollAmounts struct {
	BranchID int64
	RefID    string
	Date     time.Time
	PostedBy int64
	Total    shared.Money
	CashPaid shared.Money
	Accrued  shared.Money
}

// Payroll builds: debit payroll expense for the total, credit cash for the
// paid portion and payroll payable for the accrued remainder.
func (b *Builder) Payroll(ctx context.Context, in PayrollAmounts) (ledger.PostingInput, error) {
	if in.Total <= 0 || in.CashPaid < 0 || in.Accrued < 0 {
		return ledger.PostingInput{}, ErrInvalidAmount
	}
	if in.CashPaid+in.Accrued != in.Total {
		return ledger.PostingInput{}, fmt.Errorf("%w: cash %d + accrued %d != total %d",
			ErrAmountMismatch, in.CashPaid, in.Accrued, in.Total)
	}
	lines := newLineSet()
	if err := lines.debit(ctx, b.resolver, accounts.RolePayrollExpense, in.Total); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RoleCash, in.CashPaid); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RolePayrollPayable, in.Accrued); err != nil {
		return ledger.PostingInput{}, err
	}
	return ledger.PostingInput{
		Date:      in.Date,
		RefType:   ledger.RefPayroll,
		RefID:     in.RefID,
		Narration: "Payroll " + in.RefID,
		BranchID:  in.BranchID,
		PostedBy:  in.PostedBy,
		Lines:     lines.out,
	}, nil
}

// CommissionAmounts carries a commission payout.
type CommissionAmounts struct {
	BranchID int64
	RefID    string
	Date     time.Time
	PostedBy int64
	Amount   shared.Money
}

// Commission builds: debit commission expense, credit cash.
func (b *Builder) Commission(ctx context.Context, in CommissionAmounts) (ledger.PostingInput, error) {
	if in.Amount <= 0 {
		return ledger.PostingInput{}, ErrInvalidAmount
	}
	lines := newLineSet()
	if err := lines.debit(ctx, b.resolver, accounts.RoleCommissionExpense, in.Amount); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RoleCash, in.Amount); err != nil {
		return ledger.PostingInput{}, err
	}
	return ledger.PostingInput{
		Date:      in.Date,
		RefType:   ledger.RefCommission,
		RefID:     in.RefID,
		Narration: "Commission " + in.RefID,
		BranchID:  in.BranchID,
		PostedBy:  in.PostedBy,
		Lines:     lines.out,
	}, nil
}

// AdjustmentAmounts carries an inventory write-up or write-down at cost.
type AdjustmentAmounts struct {
	BranchID  int64
	RefID     string
	Date      time.Time
	PostedBy  int64
	Cost      shared.Money
	WriteDown bool
}

// InventoryAdjustment builds the ledger effect of a stock adjustment. A
// write-down expenses lost stock; a write-up reverses the same pair.
func (b *Builder) InventoryAdjustment(ctx context.Context, in AdjustmentAmounts) (ledger.PostingInput, error) {
	if in.Cost <= 0 {
		return ledger.PostingInput{}, ErrInvalidAmount
	}
	lines := newLineSet()
	if in.WriteDown {
		if err := lines.debit(ctx, b.resolver, accounts.RoleAdjustmentExpense, in.Cost); err != nil {
			return ledger.PostingInput{}, err
		}
		if err := lines.credit(ctx, b.resolver, accounts.RoleInventory, in.Cost); err != nil {
			return ledger.PostingInput{}, err
		}
	} else {
		if err := lines.debit(ctx, b.resolver, accounts.RoleInventory, in.Cost); err != nil {
			return ledger.PostingInput{}, err
		}
		if err := lines.credit(ctx, b.resolver, accounts.RoleAdjustmentExpense, in.Cost); err != nil {
			return ledger.PostingInput{}, err
		}
	}
	return ledger.PostingInput{
		Date:      in.Date,
		RefType:   ledger.RefAdjustment,
		RefID:     in.RefID,
		Narration: "Inventory adjustment " + in.RefID,
		BranchID:  in.BranchID,
		PostedBy:  in.PostedBy,
		Lines:     lines.out,
	}, nil
}

// OpeningAmounts carries the opening position of a branch.
type OpeningAmounts struct {
	BranchID  int64
	RefID     string
	Date      time.Time
	PostedBy  int64
	Inventory shared.Money
	Cash      shared.Money
	Bank      shared.Money
}

// OpeningBalance builds: debit each opening asset, credit opening equity
// for the sum.
func (b *Builder) OpeningBalance(ctx context.Context, in OpeningAmounts) (ledger.PostingInput, error) {
	if in.Inventory < 0 || in.Cash < 0 || in.Bank < 0 {
		return ledger.PostingInput{}, ErrInvalidAmount
	}
	total := in.Inventory + in.Cash + in.Bank
	if total == 0 {
		return ledger.PostingInput{}, ErrInvalidAmount
	}
	lines := newLineSet()
	if err := lines.debit(ctx, b.resolver, accounts.RoleInventory, in.Inventory); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.debit(ctx, b.resolver, accounts.RoleCash, in.Cash); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.debit(ctx, b.resolver, accounts.RoleBank, in.Bank); err != nil {
		return ledger.PostingInput{}, err
	}
	if err := lines.credit(ctx, b.resolver, accounts.RoleOpeningEquity, total); err != nil {
		return ledger.PostingInput{}, err
	}
	return ledger.PostingInput{
		Date:      in.Date,
		RefType:   ledger.RefOpeningBalance,
		RefID:     in.RefID,
		Narration: "Opening balance " + in.RefID,
		BranchID:  in.BranchID,
		PostedBy:  in.PostedBy,
		Lines:     lines.out,
	}, nil
}

// lineSet accumulates non-zero lines. Zero-amount legs are dropped so a
// fully-cash sale does not emit an empty receivable line.
type lineSet struct {
	out []ledger.LineInput
}

func newLineSet() *lineSet {
	return &lineSet{}
}

func (l *lineSet) debit(ctx context.Context, r Resolver, role accounts.Role, amount shared.Money) error {
	return l.add(ctx, r, role, amount, 0)
}

func (l *lineSet) credit(ctx context.Context, r Resolver, role accounts.Role, amount shared.Money) error {
	return l.add(ctx, r, role, 0, amount)
}

func (l *lineSet) add(ctx context.Context, r Resolver, role accounts.Role, debit, credit shared.Money) error {
	if debit == 0 && credit == 0 {
		return nil
	}
	accountID, err := r.AccountFor(ctx, role)
	if err != nil {
		return err
	}
	l.out = append(l.out, ledger.LineInput{AccountID: accountID, Debit: debit, Credit: credit})
	return nil
}
