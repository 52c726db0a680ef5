package procurement

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
	purchaseModule = "PUR"
	returnModule   = "PRT"
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
		return errors.New("procurement store not initialised")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, s.costing.Bind(tx), s.ledger.Bind(tx))
	})
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records purchase receipts and supplier returns.
type Service struct {
	store   StorePort
	builder *posting.Builder
	audit   AuditPort
}

// NewService constructs Service.
func NewService(store StorePort, builder *posting.Builder, audit AuditPort) *Service {
	return &Service{store: store, builder: builder, audit: audit}
}

// ReceivePurchase creates one cost layer per line and posts the purchase
// journal atomically. The inventory debit equals the summed layer cost.
func (s *Service) ReceivePurchase(ctx context.Context, in PurchaseInput) (PurchaseResult, error) {
	if len(in.Lines) == 0 {
		return PurchaseResult{}, ErrNoLines
	}
	var total shared.Money
	for _, line := range in.Lines {
		if line.Qty <= 0 || line.UnitCost < 0 {
			return PurchaseResult{}, fmt.Errorf("%w: item %d", ErrInvalidLine, line.ItemID)
		}
		lineTotal, err := line.UnitCost.MulQty(line.Qty)
		if err != nil {
			return PurchaseResult{}, err
		}
		if total, err = total.Add(lineTotal); err != nil {
			return PurchaseResult{}, err
		}
	}

	var result PurchaseResult
	err := s.store.WithTx(ctx, func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error {
		purchaseNo, err := nextDocNo(ctx, ls, purchaseModule, in.BranchID, in.Date)
		if err != nil {
			return err
		}

		var layerIDs []int64
		for _, line := range in.Lines {
			layer, err := costing.ReceiveTx(ctx, cs, costing.ReceiveInput{
				BranchID:   in.BranchID,
				ItemID:     line.ItemID,
				Qty:        line.Qty,
				UnitCost:   line.UnitCost,
				SourceType: costing.SourcePurchase,
				SourceRef:  purchaseNo,
			})
			if err != nil {
				return err
			}
			layerIDs = append(layerIDs, layer.ID)
		}

		input, err := s.builder.Purchase(ctx, posting.PurchaseAmounts{
			BranchID:  in.BranchID,
			RefID:     purchaseNo,
			Date:      in.Date,
			PostedBy:  in.ReceivedBy,
			Total:     total,
			CashPaid:  in.CashPaid,
			CreditDue: in.CreditDue,
		})
		if err != nil {
			return err
		}
		journal, err := ledger.PostTx(ctx, ls, input)
		if err != nil {
			return err
		}
		result = PurchaseResult{PurchaseNo: purchaseNo, Total: total, LayerIDs: layerIDs, Journal: journal}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	s.record(ctx, in.ReceivedBy, "purchase.receive", result.PurchaseNo, map[string]any{
		"branch_id": in.BranchID,
		"total":     int64(result.Total),
		"supplier":  in.Supplier,
	})
	return result, nil
}

// ReturnToSupplier consumes the returned stock FIFO and posts the reversal
// at the consumed cost, atomically.
func (s *Service) ReturnToSupplier(ctx context.Context, in ReturnInput) (ReturnResult, error) {
	if len(in.Lines) == 0 {
		return ReturnResult{}, ErrNoLines
	}
	for _, line := range in.Lines {
		if line.Qty <= 0 {
			return ReturnResult{}, fmt.Errorf("%w: item %d", ErrInvalidLine, line.ItemID)
		}
	}

	var result ReturnResult
	err := s.store.WithTx(ctx, func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error {
		returnNo, err := nextDocNo(ctx, ls, returnModule, in.BranchID, in.Date)
		if err != nil {
			return err
		}

		var total shared.Money
		for _, line := range in.Lines {
			cost, _, err := costing.ConsumeTx(ctx, cs, in.BranchID, line.ItemID, line.Qty, returnNo, costing.MovementOut)
			if err != nil {
				return err
			}
			if total, err = total.Add(cost); err != nil {
				return err
			}
		}

		amounts := posting.PurchaseReturnAmounts{
			BranchID: in.BranchID,
			RefID:    returnNo,
			Date:     in.Date,
			PostedBy: in.HandledBy,
			Total:    total,
		}
		if in.RefundToCash {
			amounts.CashRefund = total
		} else {
			amounts.PayableOffset = total
		}
		input, err := s.builder.PurchaseReturn(ctx, amounts)
		if err != nil {
			return err
		}
		journal, err := ledger.PostTx(ctx, ls, input)
		if err != nil {
			return err
		}
		result = ReturnResult{ReturnNo: returnNo, Total: total, Journal: journal}
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}
	s.record(ctx, in.HandledBy, "purchase.return", result.ReturnNo, map[string]any{
		"branch_id":    in.BranchID,
		"total":        int64(result.Total),
		"purchase_ref": in.PurchaseRef,
	})
	return result, nil
}

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
		Entity:   "purchase",
		EntityID: entityID,
		Meta:     meta,
	})
}
