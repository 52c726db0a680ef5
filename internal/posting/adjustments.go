package posting

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
	"github.com/meridian-retail/meridian/internal/shared"
)

// AdjustmentStorePort provides one transaction spanning stock and ledger
// mutations.
type AdjustmentStorePort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error) error
}

// AdjustmentStore binds the costing and ledger stores to one PostgreSQL
// transaction.
type AdjustmentStore struct {
	pool    *pgxpool.Pool
	costing *costing.Store
	ledger  *ledger.Store
}

// NewAdjustmentStore constructs AdjustmentStore.
func NewAdjustmentStore(pool *pgxpool.Pool, costingStore *costing.Store, ledgerStore *ledger.Store) *AdjustmentStore {
	return &AdjustmentStore{pool: pool, costing: costingStore, ledger: ledgerStore}
}

// WithTx executes fn inside one RepeatableRead transaction.
func (s *AdjustmentStore) WithTx(ctx context.Context, fn func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error) error {
	if s == nil {
		return errors.New("posting: adjustment store not initialised")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, s.costing.Bind(tx), s.ledger.Bind(tx))
	})
}

// SnapshotInvalidator drops cached on-hand snapshots after stock mutates
// outside the costing service's own transactions.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, branchID, itemID int64)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AdjustmentService applies manual stock corrections and posts their
// financial effect atomically: a write-down whose journal cannot be posted
// leaves the stock untouched.
type AdjustmentService struct {
	store   AdjustmentStorePort
	builder *Builder
	cache   SnapshotInvalidator
	audit   AuditPort
}

// NewAdjustmentService constructs AdjustmentService. cache and audit are
// optional.
func NewAdjustmentService(store AdjustmentStorePort, builder *Builder, cache SnapshotInvalidator, audit AuditPort) *AdjustmentService {
	return &AdjustmentService{store: store, builder: builder, cache: cache, audit: audit}
}

// Adjust books the stock mutation and the matching journal in one
// transaction. Positive quantities create a layer at the given cost,
// negative quantities consume FIFO. A zero cost delta moves quantity with
// no financial effect, so no journal is posted for it.
func (s *AdjustmentService) Adjust(ctx context.Context, in costing.AdjustInput) (shared.Money, error) {
	if in.Qty == 0 {
		return 0, costing.ErrInvalidQuantity
	}
	var delta shared.Money
	err := s.store.WithTx(ctx, func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error {
		var err error
		delta, err = applyAdjustment(ctx, cs, in)
		if err != nil {
			return err
		}
		cost, writeDown := delta, false
		if cost < 0 {
			cost, writeDown = -cost, true
		}
		if cost == 0 {
			return nil
		}
		input, err := s.builder.InventoryAdjustment(ctx, AdjustmentAmounts{
			BranchID:  in.BranchID,
			RefID:     in.Note,
			Date:      time.Now(),
			PostedBy:  in.ActorID,
			Cost:      cost,
			WriteDown: writeDown,
		})
		if err != nil {
			return err
		}
		_, err = ledger.PostTx(ctx, ls, input)
		return err
	})
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, in.BranchID, in.ItemID)
	}
	s.record(ctx, in)
	return delta, nil
}

func applyAdjustment(ctx context.Context, cs costing.TxStore, in costing.AdjustInput) (shared.Money, error) {
	if in.Qty > 0 {
		if in.UnitCost < 0 {
			return 0, costing.ErrInvalidUnitCost
		}
		layer, err := costing.ReceiveTx(ctx, cs, costing.ReceiveInput{
			BranchID:   in.BranchID,
			ItemID:     in.ItemID,
			Qty:        in.Qty,
			UnitCost:   in.UnitCost,
			SourceType: costing.SourceAdjustment,
			SourceRef:  in.Note,
			ActorID:    in.ActorID,
		})
		if err != nil {
			return 0, err
		}
		return layer.UnitCost.MulQty(in.Qty)
	}
	total, _, err := costing.ConsumeTx(ctx, cs, in.BranchID, in.ItemID, -in.Qty, in.Note, costing.MovementAdjust)
	if err != nil {
		return 0, err
	}
	return -total, nil
}

func (s *AdjustmentService) record(ctx context.Context, in costing.AdjustInput) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   "stock.adjust",
		Entity:   "stock",
		EntityID: fmt.Sprintf("%d:%d", in.BranchID, in.ItemID),
		Meta:     map[string]any{"branch_id": in.BranchID, "item_id": in.ItemID, "qty": in.Qty, "note": in.Note},
	})
}
