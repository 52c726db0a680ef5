package costing

import (
	"context"
	"errors"
	"fmt"

	"github.com/meridian-retail/meridian/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// StorePort abstracts the store for the service.
type StorePort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	ListLayers(ctx context.Context, branchID, itemID int64) ([]CostLayer, error)
	GetSnapshot(ctx context.Context, branchID, itemID int64) (Snapshot, error)
	ListMovements(ctx context.Context, branchID, itemID int64, limit int) ([]Movement, error)
}

// Service exposes stock costing operations to calling services.
type Service struct {
	store       StorePort
	cache       *SnapshotCache
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service. cache, audit and idempotency are optional.
func NewService(store StorePort, cache *SnapshotCache, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{store: store, cache: cache, audit: audit, idempotency: idem}
}

// Consume drains stock FIFO and returns the blended total cost.
func (s *Service) Consume(ctx context.Context, in ConsumeInput) (shared.Money, error) {
	total, _, err := s.consume(ctx, in)
	return total, err
}

// ConsumeWithFragments drains stock FIFO and returns the itemised fragment
// list, needed when the caller must preserve per-batch costs downstream.
func (s *Service) ConsumeWithFragments(ctx context.Context, in ConsumeInput) ([]Fragment, error) {
	_, frags, err := s.consume(ctx, in)
	return frags, err
}

func (s *Service) consume(ctx context.Context, in ConsumeInput) (shared.Money, []Fragment, error) {
	if in.Qty <= 0 {
		return 0, nil, ErrInvalidQuantity
	}
	var (
		total shared.Money
		frags []Fragment
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, st TxStore) error {
		var err error
		total, frags, err = ConsumeTx(ctx, st, in.BranchID, in.ItemID, in.Qty, in.Ref, MovementOut)
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	s.invalidate(ctx, in.BranchID, in.ItemID)
	s.record(ctx, in.ActorID, "stock.consume", in.BranchID, in.ItemID, map[string]any{"qty": in.Qty, "ref": in.Ref, "cost": int64(total)})
	return total, frags, nil
}

// Restore reverses prior consumption for a return and reports the restored cost.
func (s *Service) Restore(ctx context.Context, in RestoreInput) (shared.Money, error) {
	if in.Qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	var restored shared.Money
	err := s.store.WithTx(ctx, func(ctx context.Context, st TxStore) error {
		var err error
		restored, err = RestoreTx(ctx, st, in.BranchID, in.ItemID, in.Qty, in.Ref)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, in.BranchID, in.ItemID)
	s.record(ctx, in.ActorID, "stock.restore", in.BranchID, in.ItemID, map[string]any{"qty": in.Qty, "ref": in.Ref, "cost": int64(restored)})
	return restored, nil
}

// Receive books a new inbound batch as a fresh cost layer.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (CostLayer, error) {
	var layer CostLayer
	key := fmt.Sprintf("receive:%s:%d:%d", in.SourceRef, in.BranchID, in.ItemID)
	insertedKey := false
	if s.idempotency != nil && in.SourceRef != "" {
		if err := s.idempotency.CheckAndInsert(ctx, key, "costing"); err != nil {
			return CostLayer{}, err
		}
		insertedKey = true
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, st TxStore) error {
		var err error
		layer, err = ReceiveTx(ctx, st, in)
		return err
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return CostLayer{}, err
	}
	s.invalidate(ctx, in.BranchID, in.ItemID)
	s.record(ctx, in.ActorID, "stock.receive", in.BranchID, in.ItemID, map[string]any{"qty": in.Qty, "unit_cost": int64(in.UnitCost), "source": string(in.SourceType)})
	return layer, nil
}

// OnHand returns the snapshot quantity, served from the cache when warm.
func (s *Service) OnHand(ctx context.Context, branchID, itemID int64) (Snapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.Get(ctx, branchID, itemID); ok {
			return snap, nil
		}
	}
	snap, err := s.store.GetSnapshot(ctx, branchID, itemID)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return Snapshot{BranchID: branchID, ItemID: itemID}, nil
		}
		return Snapshot{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, snap)
	}
	return snap, nil
}

// Layers lists the cost layers for (branch, item).
func (s *Service) Layers(ctx context.Context, branchID, itemID int64) ([]CostLayer, error) {
	if branchID == 0 || itemID == 0 {
		return nil, errors.New("costing: branch and item required")
	}
	return s.store.ListLayers(ctx, branchID, itemID)
}

// Movements lists recent movement log rows.
func (s *Service) Movements(ctx context.Context, branchID, itemID int64, limit int) ([]Movement, error) {
	if branchID == 0 || itemID == 0 {
		return nil, errors.New("costing: branch and item required")
	}
	return s.store.ListMovements(ctx, branchID, itemID, limit)
}

// Invalidate drops the cached snapshot; exported for orchestrators that
// mutate stock through their own transactions.
func (s *Service) Invalidate(ctx context.Context, branchID, itemID int64) {
	s.invalidate(ctx, branchID, itemID)
}

func (s *Service) invalidate(ctx context.Context, branchID, itemID int64) {
	if s.cache != nil {
		s.cache.Delete(ctx, branchID, itemID)
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, branchID, itemID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	meta["branch_id"] = branchID
	meta["item_id"] = itemID
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock",
		EntityID: fmt.Sprintf("%d:%d", branchID, itemID),
		Meta:     meta,
	})
}
