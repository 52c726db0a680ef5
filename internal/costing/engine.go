package costing

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-retail/meridian/internal/shared"
)

// The engine functions run against a TxStore supplied by the caller, so a
// sale can combine stock consumption with its ledger posting in one
// transaction. They mutate nothing when planning fails.

// ConsumeTx drains layers FIFO for (branch, item) and returns the total cost
// along with the itemised fragments.
func ConsumeTx(ctx context.Context, st TxStore, branchID, itemID, qty int64, ref string, move MovementType) (shared.Money, []Fragment, error) {
	if branchID == 0 || itemID == 0 {
		return 0, nil, errors.New("costing: branch and item required")
	}
	if move == "" {
		move = MovementOut
	}
	// Lock the snapshot row first so competing consumers of the same
	// (branch, item) serialize before touching layers.
	snap, err := st.SnapshotForUpdate(ctx, branchID, itemID)
	if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		return 0, nil, err
	}
	layers, err := st.LayersForUpdate(ctx, branchID, itemID)
	if err != nil {
		return 0, nil, err
	}
	plan, err := PlanConsumption(layers, qty)
	if err != nil {
		return 0, nil, err
	}
	for _, frag := range plan.Fragments {
		if err := st.SetLayerRemaining(ctx, frag.LayerID, plan.Remainders[frag.LayerID]); err != nil {
			return 0, nil, err
		}
	}
	snap.BranchID, snap.ItemID = branchID, itemID
	snap.Qty = remainingAfter(layers, plan.Remainders)
	if err := st.UpsertSnapshot(ctx, snap); err != nil {
		return 0, nil, err
	}
	if err := st.InsertMovement(ctx, Movement{
		BranchID: branchID,
		ItemID:   itemID,
		Type:     move,
		Qty:      -qty,
		Ref:      ref,
	}); err != nil {
		return 0, nil, err
	}
	return plan.TotalCost, plan.Fragments, nil
}

// RestoreTx reverses prior consumption, newest layers first, and returns the
// restored cost.
func RestoreTx(ctx context.Context, st TxStore, branchID, itemID, qty int64, ref string) (shared.Money, error) {
	if branchID == 0 || itemID == 0 {
		return 0, errors.New("costing: branch and item required")
	}
	snap, err := st.SnapshotForUpdate(ctx, branchID, itemID)
	if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		return 0, err
	}
	layers, err := st.LayersForUpdate(ctx, branchID, itemID)
	if err != nil {
		return 0, err
	}
	plan, err := PlanRestoration(layers, qty)
	if err != nil {
		return 0, err
	}
	for layerID, remaining := range plan.Remainders {
		if err := st.SetLayerRemaining(ctx, layerID, remaining); err != nil {
			return 0, err
		}
	}
	snap.BranchID, snap.ItemID = branchID, itemID
	snap.Qty = remainingAfter(layers, plan.Remainders)
	if err := st.UpsertSnapshot(ctx, snap); err != nil {
		return 0, err
	}
	if err := st.InsertMovement(ctx, Movement{
		BranchID: branchID,
		ItemID:   itemID,
		Type:     MovementRestore,
		Qty:      qty,
		Ref:      ref,
	}); err != nil {
		return 0, err
	}
	return plan.RestoredCost, nil
}

// ReceiveTx creates a new cost layer and bumps the snapshot.
func ReceiveTx(ctx context.Context, st TxStore, in ReceiveInput) (CostLayer, error) {
	if in.BranchID == 0 || in.ItemID == 0 {
		return CostLayer{}, errors.New("costing: branch and item required")
	}
	if in.Qty <= 0 {
		return CostLayer{}, ErrInvalidQuantity
	}
	if in.UnitCost < 0 {
		return CostLayer{}, ErrInvalidUnitCost
	}
	snap, err := st.SnapshotForUpdate(ctx, in.BranchID, in.ItemID)
	if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		return CostLayer{}, err
	}
	layer := CostLayer{
		BranchID:     in.BranchID,
		ItemID:       in.ItemID,
		OriginalQty:  in.Qty,
		RemainingQty: in.Qty,
		UnitCost:     in.UnitCost,
		AcquiredAt:   time.Now().UTC(),
		SourceType:   in.SourceType,
		SourceRef:    in.SourceRef,
	}
	id, err := st.InsertLayer(ctx, layer)
	if err != nil {
		return CostLayer{}, err
	}
	layer.ID = id
	snap.BranchID, snap.ItemID = in.BranchID, in.ItemID
	snap.Qty += in.Qty
	if err := st.UpsertSnapshot(ctx, snap); err != nil {
		return CostLayer{}, err
	}
	move := MovementIn
	if in.SourceType == SourceTransferIn {
		move = MovementTransferIn
	}
	if err := st.InsertMovement(ctx, Movement{
		BranchID: in.BranchID,
		ItemID:   in.ItemID,
		Type:     move,
		Qty:      in.Qty,
		UnitCost: in.UnitCost,
		Ref:      in.SourceRef,
	}); err != nil {
		return CostLayer{}, err
	}
	return layer, nil
}

// remainingAfter sums layer remainders with planned updates applied, keeping
// the snapshot equal to the layers it summarises.
func remainingAfter(layers []CostLayer, updates map[int64]int64) int64 {
	var total int64
	for _, layer := range layers {
		if updated, ok := updates[layer.ID]; ok {
			total += updated
			continue
		}
		total += layer.RemainingQty
	}
	return total
}
