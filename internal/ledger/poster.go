package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-retail/meridian/internal/shared"
)

const sequenceModule = "JRN"

// PostTx validates and persists one balanced journal inside the caller's
// transaction: header, lines, and one ledger row per line carrying the
// running balance. Voucher numbers come from the per-(module, branch,
// period) sequence; a rolled-back post leaves a gap, never a reused number.
func PostTx(ctx context.Context, st TxStore, in PostingInput) (PostResult, error) {
	if err := in.Validate(); err != nil {
		return PostResult{}, err
	}
	branchCode, err := st.BranchCode(ctx, in.BranchID)
	if err != nil {
		return PostResult{}, err
	}
	period := in.Date.Format("200601")
	number, err := st.NextSequence(ctx, shared.SequenceKey(sequenceModule, branchCode, period))
	if err != nil {
		return PostResult{}, err
	}
	voucherNo := fmt.Sprintf("%s-%s-%s-%05d", sequenceModule, branchCode, period, number)

	journalID, err := st.InsertJournal(ctx, JournalEntry{
		VoucherNo: voucherNo,
		Date:      in.Date,
		RefType:   in.RefType,
		RefID:     in.RefID,
		Narration: in.Narration,
		BranchID:  in.BranchID,
		PostedBy:  in.PostedBy,
	})
	if err != nil {
		return PostResult{}, err
	}

	for _, line := range in.Lines {
		if _, err := st.InsertLine(ctx, JournalLine{
			JournalID: journalID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		}); err != nil {
			return PostResult{}, err
		}
		prior, err := st.BalanceForUpdate(ctx, line.AccountID, in.BranchID)
		if err != nil {
			return PostResult{}, err
		}
		balance := prior + line.Debit - line.Credit
		if _, err := st.InsertLedgerRow(ctx, LedgerRow{
			JournalID: journalID,
			AccountID: line.AccountID,
			BranchID:  in.BranchID,
			Date:      in.Date,
			Debit:     line.Debit,
			Credit:    line.Credit,
			Balance:   balance,
		}); err != nil {
			return PostResult{}, err
		}
		if err := st.SetBalance(ctx, line.AccountID, in.BranchID, balance); err != nil {
			return PostResult{}, err
		}
	}

	debit, credit := in.Totals()
	return PostResult{
		JournalID:   journalID,
		VoucherNo:   voucherNo,
		TotalDebit:  debit,
		TotalCredit: credit,
	}, nil
}

// StorePort abstracts the store for the service.
type StorePort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetJournal(ctx context.Context, id int64) (JournalEntry, error)
	ListRows(ctx context.Context, accountID, branchID int64, from, to time.Time, limit int) ([]LedgerRow, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes journal posting and ledger reads.
type Service struct {
	store StorePort
	audit AuditPort
}

// NewService builds Service.
func NewService(store StorePort, audit AuditPort) *Service {
	return &Service{store: store, audit: audit}
}

// Post validates and durably persists one balanced journal.
func (s *Service) Post(ctx context.Context, in PostingInput) (PostResult, error) {
	var result PostResult
	err := s.store.WithTx(ctx, func(ctx context.Context, st TxStore) error {
		var err error
		result, err = PostTx(ctx, st, in)
		return err
	})
	if err != nil {
		return PostResult{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.PostedBy,
			Action:   "journal.post",
			Entity:   "journal",
			EntityID: result.VoucherNo,
			Meta: map[string]any{
				"journal_id": result.JournalID,
				"ref_type":   string(in.RefType),
				"ref_id":     in.RefID,
				"debit":      int64(result.TotalDebit),
			},
		})
	}
	return result, nil
}

// GetJournal loads a journal with lines.
func (s *Service) GetJournal(ctx context.Context, id int64) (JournalEntry, error) {
	return s.store.GetJournal(ctx, id)
}

// ListRows lists ledger rows for an account at a branch.
func (s *Service) ListRows(ctx context.Context, accountID, branchID int64, from, to time.Time, limit int) ([]LedgerRow, error) {
	return s.store.ListRows(ctx, accountID, branchID, from, to, limit)
}
