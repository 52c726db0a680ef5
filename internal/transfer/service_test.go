package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian/internal/costing"
	"github.com/meridian-retail/meridian/internal/shared"
)

// memState holds everything one fake transaction can touch. WithTx works on
// a deep copy and swaps it in on success, so a failed create leaves no
// trace, matching the real store's rollback.
type memState struct {
	layers    []costing.CostLayer
	snaps     map[string]int64
	moves     []costing.Movement
	transfers map[int64]*Transfer
	seq       map[string]int64
	nextID    int64
}

func snapKey(branchID, itemID int64) string {
	return fmt.Sprintf("%d:%d", branchID, itemID)
}

func (s *memState) clone() *memState {
	out := &memState{
		layers:    append([]costing.CostLayer(nil), s.layers...),
		snaps:     make(map[string]int64, len(s.snaps)),
		moves:     append([]costing.Movement(nil), s.moves...),
		transfers: make(map[int64]*Transfer, len(s.transfers)),
		seq:       make(map[string]int64, len(s.seq)),
		nextID:    s.nextID,
	}
	for k, v := range s.snaps {
		out.snaps[k] = v
	}
	for k, v := range s.seq {
		out.seq[k] = v
	}
	for id, tr := range s.transfers {
		cp := *tr
		cp.Items = make([]TransferItem, len(tr.Items))
		for i, item := range tr.Items {
			cp.Items[i] = item
			cp.Items[i].Layers = append([]TransferLayerRecord(nil), item.Layers...)
		}
		out.transfers[id] = &cp
	}
	return out
}

type memStore struct {
	branches map[int64]string
	state    *memState
}

func newMemStore() *memStore {
	return &memStore{
		branches: map[int64]string{1: "DT01", 2: "UP02"},
		state: &memState{
			snaps:     make(map[string]int64),
			transfers: make(map[int64]*Transfer),
			seq:       make(map[string]int64),
		},
	}
}

func (m *memStore) seedLayer(branchID, itemID, qty int64, cost shared.Money, acquired time.Time) int64 {
	m.state.nextID++
	m.state.layers = append(m.state.layers, costing.CostLayer{
		ID: m.state.nextID, BranchID: branchID, ItemID: itemID,
		OriginalQty: qty, RemainingQty: qty, UnitCost: cost, AcquiredAt: acquired,
		SourceType: costing.SourcePurchase,
	})
	m.state.snaps[snapKey(branchID, itemID)] += qty
	return m.state.nextID
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, ts TxStore, cs costing.TxStore) error) error {
	scratch := m.state.clone()
	tx := &memTx{branches: m.branches, state: scratch}
	if err := fn(ctx, tx, tx); err != nil {
		return err
	}
	m.state = scratch
	return nil
}

func (m *memStore) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	tr, ok := m.state.transfers[id]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return *tr, nil
}

func (m *memStore) ListTransfers(ctx context.Context, branchID int64, limit int) ([]Transfer, error) {
	var out []Transfer
	for _, tr := range m.state.transfers {
		if tr.FromBranchID == branchID || tr.ToBranchID == branchID {
			out = append(out, *tr)
		}
	}
	return out, nil
}

// memTx implements both transfer.TxStore and costing.TxStore so a fake
// transaction spans stock and transfer records the way the real one does.
type memTx struct {
	branches map[int64]string
	state    *memState
}

func (t *memTx) BranchCode(ctx context.Context, branchID int64) (string, error) {
	code, ok := t.branches[branchID]
	if !ok {
		return "", errors.New("transfer: branch not found")
	}
	return code, nil
}

func (t *memTx) NextSequence(ctx context.Context, key string) (int64, error) {
	t.state.seq[key]++
	return t.state.seq[key], nil
}

func (t *memTx) InsertTransfer(ctx context.Context, tr Transfer) (int64, error) {
	t.state.nextID++
	tr.ID = t.state.nextID
	tr.CreatedAt = time.Now()
	t.state.transfers[tr.ID] = &tr
	return tr.ID, nil
}

func (t *memTx) InsertItem(ctx context.Context, item TransferItem) (int64, error) {
	t.state.nextID++
	item.ID = t.state.nextID
	tr := t.state.transfers[item.TransferID]
	tr.Items = append(tr.Items, item)
	return item.ID, nil
}

func (t *memTx) InsertLayerRecord(ctx context.Context, rec TransferLayerRecord) (int64, error) {
	t.state.nextID++
	rec.ID = t.state.nextID
	for _, tr := range t.state.transfers {
		for i := range tr.Items {
			if tr.Items[i].ID == rec.TransferItemID {
				tr.Items[i].Layers = append(tr.Items[i].Layers, rec)
			}
		}
	}
	return rec.ID, nil
}

func (t *memTx) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	tr, ok := t.state.transfers[id]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return *tr, nil
}

func (t *memTx) SetItemReceived(ctx context.Context, itemID, receivedQty int64) error {
	for _, tr := range t.state.transfers {
		for i := range tr.Items {
			if tr.Items[i].ID == itemID {
				tr.Items[i].ReceivedQty = receivedQty
			}
		}
	}
	return nil
}

func (t *memTx) SetStatus(ctx context.Context, transferID int64, status Status, receivedBy int64) error {
	tr, ok := t.state.transfers[transferID]
	if !ok {
		return ErrTransferNotFound
	}
	tr.Status = status
	tr.ReceivedBy = receivedBy
	tr.ReceivedAt = time.Now()
	return nil
}

func (t *memTx) LayersForUpdate(ctx context.Context, branchID, itemID int64) ([]costing.CostLayer, error) {
	var out []costing.CostLayer
	for _, layer := range t.state.layers {
		if layer.BranchID == branchID && layer.ItemID == itemID {
			out = append(out, layer)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AcquiredAt.Equal(out[j].AcquiredAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AcquiredAt.Before(out[j].AcquiredAt)
	})
	return out, nil
}

func (t *memTx) SetLayerRemaining(ctx context.Context, layerID, remaining int64) error {
	for i := range t.state.layers {
		if t.state.layers[i].ID == layerID {
			t.state.layers[i].RemainingQty = remaining
			return nil
		}
	}
	return errors.New("layer not found")
}

func (t *memTx) InsertLayer(ctx context.Context, layer costing.CostLayer) (int64, error) {
	t.state.nextID++
	layer.ID = t.state.nextID
	t.state.layers = append(t.state.layers, layer)
	return layer.ID, nil
}

func (t *memTx) SnapshotForUpdate(ctx context.Context, branchID, itemID int64) (costing.Snapshot, error) {
	qty, ok := t.state.snaps[snapKey(branchID, itemID)]
	if !ok {
		return costing.Snapshot{BranchID: branchID, ItemID: itemID}, costing.ErrSnapshotNotFound
	}
	return costing.Snapshot{BranchID: branchID, ItemID: itemID, Qty: qty}, nil
}

func (t *memTx) UpsertSnapshot(ctx context.Context, snap costing.Snapshot) error {
	t.state.snaps[snapKey(snap.BranchID, snap.ItemID)] = snap.Qty
	return nil
}

func (t *memTx) InsertMovement(ctx context.Context, move costing.Movement) error {
	t.state.moves = append(t.state.moves, move)
	return nil
}

func (m *memStore) layersAt(branchID, itemID int64) []costing.CostLayer {
	var out []costing.CostLayer
	for _, layer := range m.state.layers {
		if layer.BranchID == branchID && layer.ItemID == itemID {
			out = append(out, layer)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func stockValue(layers []costing.CostLayer) shared.Money {
	var total shared.Money
	for _, layer := range layers {
		total += shared.Money(int64(layer.UnitCost) * layer.RemainingQty)
	}
	return total
}

const theItem = int64(42)

func seedTwoLayers(store *memStore) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.seedLayer(1, theItem, 3, 500, base)
	store.seedLayer(1, theItem, 10, 700, base.Add(24*time.Hour))
}

func TestCreatePreservesLayerComposition(t *testing.T) {
	store := newMemStore()
	seedTwoLayers(store)
	svc := NewService(store, nil)

	tr, err := svc.Create(context.Background(), CreateInput{
		FromBranchID: 1, ToBranchID: 2,
		Items: []CreateItem{{ItemID: theItem, Qty: 8}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, tr.Status)
	require.Equal(t, "TRF-DT01-"+time.Now().UTC().Format("200601")+"-00001", tr.TransferNo)
	require.Len(t, tr.Items, 1)

	item := tr.Items[0]
	require.Equal(t, shared.Money(3*500+5*700), item.TotalCost)
	require.Len(t, item.Layers, 2)
	require.Equal(t, int64(3), item.Layers[0].Qty)
	require.Equal(t, shared.Money(500), item.Layers[0].UnitCost)
	require.Equal(t, int64(5), item.Layers[1].Qty)
	require.Equal(t, shared.Money(700), item.Layers[1].UnitCost)

	// Source drained FIFO: oldest layer exhausted, newer reduced to 5.
	layers := store.layersAt(1, theItem)
	require.Equal(t, int64(0), layers[0].RemainingQty)
	require.Equal(t, int64(5), layers[1].RemainingQty)
	require.Equal(t, int64(5), store.state.snaps[snapKey(1, theItem)])
}

func TestCreateRejectsSameBranch(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	_, err := svc.Create(context.Background(), CreateInput{
		FromBranchID: 1, ToBranchID: 1,
		Items: []CreateItem{{ItemID: theItem, Qty: 1}},
	})
	require.ErrorIs(t, err, ErrSameBranch)
}

func TestCreateInsufficientStockAbortsEverything(t *testing.T) {
	store := newMemStore()
	seedTwoLayers(store)
	svc := NewService(store, nil)

	// First line is satisfiable, second is not; nothing may persist.
	_, err := svc.Create(context.Background(), CreateInput{
		FromBranchID: 1, ToBranchID: 2,
		Items: []CreateItem{
			{ItemID: theItem, Qty: 5},
			{ItemID: theItem, Qty: 100},
		},
	})
	require.ErrorIs(t, err, costing.ErrInsufficientStock)
	require.Empty(t, store.state.transfers)
	require.Equal(t, int64(13), store.state.snaps[snapKey(1, theItem)])
	layers := store.layersAt(1, theItem)
	require.Equal(t, int64(3), layers[0].RemainingQty)
	require.Equal(t, int64(10), layers[1].RemainingQty)
}

func TestReceiveRecreatesOneLayerPerFragment(t *testing.T) {
	store := newMemStore()
	seedTwoLayers(store)
	svc := NewService(store, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		FromBranchID: 1, ToBranchID: 2,
		Items: []CreateItem{{ItemID: theItem, Qty: 8}},
	})
	require.NoError(t, err)

	sourceValueBefore := stockValue(store.layersAt(1, theItem))

	received, err := svc.Receive(ctx, ReceiveInput{
		TransferID: created.ID,
		Received:   []ReceivedItem{{ItemID: theItem, Qty: 8}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, received.Status)

	// Two distinct destination layers, costs intact.
	dest := store.layersAt(2, theItem)
	require.Len(t, dest, 2)
	require.Equal(t, int64(3), dest[0].RemainingQty)
	require.Equal(t, shared.Money(500), dest[0].UnitCost)
	require.Equal(t, int64(5), dest[1].RemainingQty)
	require.Equal(t, shared.Money(700), dest[1].UnitCost)
	require.Equal(t, costing.SourceTransferIn, dest[0].SourceType)
	require.Equal(t, int64(8), store.state.snaps[snapKey(2, theItem)])

	// Conservation: value arriving equals value that left the source.
	require.Equal(t, shared.Money(5000), stockValue(dest))
	require.Equal(t, sourceValueBefore, stockValue(store.layersAt(1, theItem)))
}

func TestReceiveTwiceFails(t *testing.T) {
	store := newMemStore()
	seedTwoLayers(store)
	svc := NewService(store, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		FromBranchID: 1, ToBranchID: 2,
		Items: []CreateItem{{ItemID: theItem, Qty: 2}},
	})
	require.NoError(t, err)

	_, err = svc.Receive(ctx, ReceiveInput{TransferID: created.ID, Received: []ReceivedItem{{ItemID: theItem, Qty: 2}}})
	require.NoError(t, err)

	_, err = svc.Receive(ctx, ReceiveInput{TransferID: created.ID, Received: []ReceivedItem{{ItemID: theItem, Qty: 2}}})
	require.ErrorIs(t, err, ErrAlreadyReceived)
}

func TestReceiveQuantityMismatchRecorded(t *testing.T) {
	store := newMemStore()
	seedTwoLayers(store)
	svc := NewService(store, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		FromBranchID: 1, ToBranchID: 2,
		Items: []CreateItem{{ItemID: theItem, Qty: 8}},
	})
	require.NoError(t, err)

	received, err := svc.Receive(ctx, ReceiveInput{
		TransferID: created.ID,
		Received:   []ReceivedItem{{ItemID: theItem, Qty: 7}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusMismatch, received.Status)
	require.Equal(t, int64(7), received.Items[0].ReceivedQty)

	// The discrepancy is recorded, not corrected: the captured fragments
	// still arrive in full pending manual reconciliation.
	require.Equal(t, int64(8), store.state.snaps[snapKey(2, theItem)])

	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusMismatch, stored.Status)
	require.Equal(t, int64(7), stored.Items[0].ReceivedQty)
}

func TestReceiveRejectsItemNotOnTransfer(t *testing.T) {
	store := newMemStore()
	seedTwoLayers(store)
	svc := NewService(store, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		FromBranchID: 1, ToBranchID: 2,
		Items: []CreateItem{{ItemID: theItem, Qty: 8}},
	})
	require.NoError(t, err)

	_, err = svc.Receive(ctx, ReceiveInput{
		TransferID: created.ID,
		Received: []ReceivedItem{
			{ItemID: theItem, Qty: 8},
			{ItemID: 77, Qty: 1},
		},
	})
	require.ErrorIs(t, err, ErrUnknownItem)

	// The rejected receipt leaves the transfer pending and nothing arrives
	// at the destination.
	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Zero(t, store.state.snaps[snapKey(2, theItem)])
}

func TestReceiveUnknownTransfer(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	_, err := svc.Receive(context.Background(), ReceiveInput{TransferID: 999})
	require.ErrorIs(t, err, ErrTransferNotFound)
}
