package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian/internal/costing"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/platform/db"
	"github.com/meridian-retail/meridian/internal/posting"
	"github.com/meridian-retail/meridian/internal/shared"
)

const (
	saleModule   = "SAL"
	returnModule = "SRT"
)

// StorePort provides one transaction spanning stock and ledger mutations.
type StorePort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error) error
}

// Store binds the costing and ledger stores to one PostgreSQL transaction.
type Store struct {
	pool    *pgxpool.Pool
	costing *costing.Store
	ledger  *ledger.Store
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool, costingStore *costing.Store, ledgerStore *ledger.Store) *Store {
	return &Store{pool: pool, costing: costingStore, ledger: ledgerStore}
}

// WithTx executes fn inside one RepeatableRead transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error) error {
	if s == nil {
		return errors.New("sales store not initialised")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, s.costing.Bind(tx), s.ledger.Bind(tx))
	})
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records sales and sales returns.
type Service struct {
	store   StorePort
	builder *posting.Builder
	audit   AuditPort
}

// NewService constructs Service.
func NewService(store StorePort, builder *posting.Builder, audit AuditPort) *Service {
	return &Service{store: store, builder: builder, audit: audit}
}

// RecordSale consumes stock FIFO for each line, computes cost of goods, and
// posts the sale journal, all atomically. Insufficient stock on any line
// aborts the whole sale with nothing persisted.
func (s *Service) RecordSale(ctx context.Context, in SaleInput) (SaleResult, error) {
	total, err := validateSaleLines(in.Lines)
	if err != nil {
		return SaleResult{}, err
	}

	var result SaleResult
	err = s.store.WithTx(ctx, func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error {
		saleNo, err := nextDocNo(ctx, ls, saleModule, in.BranchID, in.Date)
		if err != nil {
			return err
		}

		var cogs shared.Money
		for _, line := range in.Lines {
			cost, _, err := costing.ConsumeTx(ctx, cs, in.BranchID, line.ItemID, line.Qty, saleNo, costing.MovementOut)
			if err != nil {
				return err
			}
			if cogs, err = cogs.Add(cost); err != nil {
				return err
			}
		}

		input, err := s.builder.Sale(ctx, posting.SaleAmounts{
			BranchID:  in.BranchID,
			RefID:     saleNo,
			Date:      in.Date,
			PostedBy:  in.SoldBy,
			Total:     total,
			CashPaid:  in.CashPaid,
			CreditDue: in.CreditDue,
			COGS:      cogs,
		})
		if err != nil {
			return err
		}
		journal, err := ledger.PostTx(ctx, ls, input)
		if err != nil {
			return err
		}
		result = SaleResult{SaleNo: saleNo, Total: total, COGS: cogs, Journal: journal}
		return nil
	})
	if err != nil {
		return SaleResult{}, err
	}
	s.record(ctx, in.SoldBy, "sale.record", result.SaleNo, map[string]any{
		"branch_id": in.BranchID,
		"total":     int64(result.Total),
		"cogs":      int64(result.COGS),
	})
	return result, nil
}

// RecordReturn restores stock newest-layers-first for each line and posts
// the sales-return journal atomically. Restoring more than was ever
// consumed fails and nothing persists.
func (s *Service) RecordReturn(ctx context.Context, in ReturnInput) (ReturnResult, error) {
	if len(in.Lines) == 0 {
		return ReturnResult{}, ErrNoLines
	}
	var total shared.Money
	for _, line := range in.Lines {
		if line.Qty <= 0 || line.Amount < 0 {
			return ReturnResult{}, fmt.Errorf("%w: item %d", ErrInvalidLine, line.ItemID)
		}
		var err error
		if total, err = total.Add(line.Amount); err != nil {
			return ReturnResult{}, err
		}
	}

	var result ReturnResult
	err := s.store.WithTx(ctx, func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error {
		returnNo, err := nextDocNo(ctx, ls, returnModule, in.BranchID, in.Date)
		if err != nil {
			return err
		}

		var restored shared.Money
		for _, line := range in.Lines {
			cost, err := costing.RestoreTx(ctx, cs, in.BranchID, line.ItemID, line.Qty, returnNo)
			if err != nil {
				return err
			}
			if restored, err = restored.Add(cost); err != nil {
				return err
			}
		}

		input, err := s.builder.SaleReturn(ctx, posting.SaleReturnAmounts{
			BranchID:     in.BranchID,
			RefID:        returnNo,
			Date:         in.Date,
			PostedBy:     in.HandledBy,
			Total:        total,
			CashRefund:   in.CashRefund,
			CreditOffset: in.CreditOffset,
			RestockCost:  restored,
		})
		if err != nil {
			return err
		}
		journal, err := ledger.PostTx(ctx, ls, input)
		if err != nil {
			return err
		}
		result = ReturnResult{ReturnNo: returnNo, Total: total, RestoredCost: restored, Journal: journal}
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}
	s.record(ctx, in.HandledBy, "sale.return", result.ReturnNo, map[string]any{
		"branch_id":     in.BranchID,
		"total":         int64(result.Total),
		"restored_cost": int64(result.RestoredCost),
		"sale_ref":      in.SaleRef,
	})
	return result, nil
}

func validateSaleLines(lines []SaleLine) (shared.Money, error) {
	if len(lines) == 0 {
		return 0, ErrNoLines
	}
	var total shared.Money
	for _, line := range lines {
		if line.Qty <= 0 || line.UnitPrice < 0 {
			return 0, fmt.Errorf("%w: item %d", ErrInvalidLine, line.ItemID)
		}
		lineTotal, err := line.UnitPrice.MulQty(line.Qty)
		if err != nil {
			return 0, err
		}
		if total, err = total.Add(lineTotal); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// nextDocNo allocates a document number from the shared sequence, reusing
// the ledger transaction's branch lookup so the number carries the branch
// short code.
func nextDocNo(ctx context.Context, ls ledger.TxStore, module string, branchID int64, date time.Time) (string, error) {
	code, err := ls.BranchCode(ctx, branchID)
	if err != nil {
		return "", err
	}
	period := date.Format("200601")
	number, err := ls.NextSequence(ctx, shared.SequenceKey(module, code, period))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s-%05d", module, code, period, number), nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: entityID,
		Meta:     meta,
	})
}
