package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/meridian-retail/meridian/internal/shared"
)

// RefType tags the business document a journal originated from.
type RefType string

const (
	RefSale            RefType = "SALE"
	RefSaleReturn      RefType = "SALE_RETURN"
	RefPurchase        RefType = "PURCHASE"
	RefPurchaseReturn  RefType = "PURCHASE_RETURN"
	RefPayroll         RefType = "PAYROLL"
	RefCommission      RefType = "COMMISSION"
	RefAdjustment      RefType = "ADJUSTMENT"
	RefOpeningBalance  RefType = "OPENING_BALANCE"
	RefManual          RefType = "MANUAL"
)

// JournalEntry is a balanced set of debit/credit lines posted as one unit.
type JournalEntry struct {
	ID        int64     `json:"id"`
	VoucherNo string    `json:"voucher_no"`
	Date      time.Time `json:"date"`
	RefType   RefType   `json:"ref_type"`
	RefID     string    `json:"ref_id"`
	Narration string    `json:"narration"`
	BranchID  int64     `json:"branch_id"`
	PostedBy  int64     `json:"posted_by"`
	CreatedAt time.Time `json:"created_at"`
	Lines     []JournalLine `json:"lines,omitempty"`
}

// JournalLine stores a debit or credit amount for one account.
type JournalLine struct {
	ID        int64        `json:"id"`
	JournalID int64        `json:"journal_id"`
	AccountID int64        `json:"account_id"`
	Debit     shared.Money `json:"debit"`
	Credit    shared.Money `json:"credit"`
}

// LedgerRow is one account-level effect of a journal line carrying the
// running balance after the line applied.
type LedgerRow struct {
	ID        int64        `json:"id"`
	JournalID int64        `json:"journal_id"`
	AccountID int64        `json:"account_id"`
	BranchID  int64        `json:"branch_id"`
	Date      time.Time    `json:"date"`
	Debit     shared.Money `json:"debit"`
	Credit    shared.Money `json:"credit"`
	Balance   shared.Money `json:"balance"`
	CreatedAt time.Time    `json:"created_at"`
}

// LineInput describes one posting line.
type LineInput struct {
	AccountID int64        `json:"account_id"`
	Debit     shared.Money `json:"debit"`
	Credit    shared.Money `json:"credit"`
}

// PostingInput groups everything required to post a journal.
type PostingInput struct {
	Date      time.Time
	RefType   RefType
	RefID     string
	Narration string
	BranchID  int64
	PostedBy  int64
	Lines     []LineInput
}

// PostResult reports the durable outcome of a post.
type PostResult struct {
	JournalID   int64        `json:"journal_id"`
	VoucherNo   string       `json:"voucher_no"`
	TotalDebit  shared.Money `json:"total_debit"`
	TotalCredit shared.Money `json:"total_credit"`
}

var (
	// ErrUnbalanced indicates debit != credit; nothing is persisted.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates fewer than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrBranchNotFound indicates an unknown or inactive branch.
	ErrBranchNotFound = errors.New("ledger: branch not found")
	// ErrJournalNotFound indicates a missing journal entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrVoucherConflict indicates a voucher number collision.
	ErrVoucherConflict = errors.New("ledger: voucher number conflict")
)

// Validate ensures posting input meets minimum criteria before anything is
// persisted.
func (in PostingInput) Validate() error {
	if in.BranchID == 0 {
		return errors.New("ledger: branch required")
	}
	if in.Date.IsZero() {
		return errors.New("ledger: date required")
	}
	if in.RefType == "" {
		return errors.New("ledger: ref type required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit shared.Money
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if debit != credit {
		return ErrUnbalanced
	}
	return nil
}

// Totals sums the debit and credit sides.
func (in PostingInput) Totals() (shared.Money, shared.Money) {
	var debit, credit shared.Money
	for _, line := range in.Lines {
		debit += line.Debit
		credit += line.Credit
	}
	return debit, credit
}
