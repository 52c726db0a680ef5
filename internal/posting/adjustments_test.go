package posting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian/internal/accounts"
	"github.com/meridian-retail/meridian/internal/costing"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/shared"
)

// adjState is everything one fake transaction touches. WithTx clones it and
// commits the clone only on success, mirroring the real rollback.
type adjState struct {
	layers   []costing.CostLayer
	snaps    map[string]int64
	moves    []costing.Movement
	journals []ledger.JournalEntry
	lines    []ledger.JournalLine
	rows     []ledger.LedgerRow
	balances map[string]shared.Money
	seq      map[string]int64
	nextID   int64
}

func adjKey(a, b int64) string { return fmt.Sprintf("%d:%d", a, b) }

func (s *adjState) clone() *adjState {
	out := &adjState{
		layers:   append([]costing.CostLayer(nil), s.layers...),
		snaps:    make(map[string]int64, len(s.snaps)),
		moves:    append([]costing.Movement(nil), s.moves...),
		journals: append([]ledger.JournalEntry(nil), s.journals...),
		lines:    append([]ledger.JournalLine(nil), s.lines...),
		rows:     append([]ledger.LedgerRow(nil), s.rows...),
		balances: make(map[string]shared.Money, len(s.balances)),
		seq:      make(map[string]int64, len(s.seq)),
		nextID:   s.nextID,
	}
	for k, v := range s.snaps {
		out.snaps[k] = v
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	for k, v := range s.seq {
		out.seq[k] = v
	}
	return out
}

type adjStore struct {
	branches   map[int64]string
	state      *adjState
	journalErr error
}

func newAdjStore() *adjStore {
	return &adjStore{
		branches: map[int64]string{1: "DT01"},
		state: &adjState{
			snaps:    make(map[string]int64),
			balances: make(map[string]shared.Money),
			seq:      make(map[string]int64),
		},
	}
}

func (m *adjStore) seedLayer(branchID, itemID, qty int64, cost shared.Money, acquired time.Time) {
	m.state.nextID++
	m.state.layers = append(m.state.layers, costing.CostLayer{
		ID: m.state.nextID, BranchID: branchID, ItemID: itemID,
		OriginalQty: qty, RemainingQty: qty, UnitCost: cost, AcquiredAt: acquired,
		SourceType: costing.SourcePurchase,
	})
	m.state.snaps[adjKey(branchID, itemID)] += qty
}

func (m *adjStore) WithTx(ctx context.Context, fn func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error) error {
	scratch := m.state.clone()
	tx := &adjTx{branches: m.branches, state: scratch, journalErr: m.journalErr}
	if err := fn(ctx, tx, tx); err != nil {
		return err
	}
	m.state = scratch
	return nil
}

// adjTx implements both costing.TxStore and ledger.TxStore.
type adjTx struct {
	branches   map[int64]string
	state      *adjState
	journalErr error
}

func (t *adjTx) LayersForUpdate(ctx context.Context, branchID, itemID int64) ([]costing.CostLayer, error) {
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

func (t *adjTx) SetLayerRemaining(ctx context.Context, layerID, remaining int64) error {
	for i := range t.state.layers {
		if t.state.layers[i].ID == layerID {
			t.state.layers[i].RemainingQty = remaining
			return nil
		}
	}
	return errors.New("layer not found")
}

func (t *adjTx) InsertLayer(ctx context.Context, layer costing.CostLayer) (int64, error) {
	t.state.nextID++
	layer.ID = t.state.nextID
	t.state.layers = append(t.state.layers, layer)
	return layer.ID, nil
}

func (t *adjTx) SnapshotForUpdate(ctx context.Context, branchID, itemID int64) (costing.Snapshot, error) {
	qty, ok := t.state.snaps[adjKey(branchID, itemID)]
	if !ok {
		return costing.Snapshot{BranchID: branchID, ItemID: itemID}, costing.ErrSnapshotNotFound
	}
	return costing.Snapshot{BranchID: branchID, ItemID: itemID, Qty: qty}, nil
}

func (t *adjTx) UpsertSnapshot(ctx context.Context, snap costing.Snapshot) error {
	t.state.snaps[adjKey(snap.BranchID, snap.ItemID)] = snap.Qty
	return nil
}

func (t *adjTx) InsertMovement(ctx context.Context, move costing.Movement) error {
	t.state.moves = append(t.state.moves, move)
	return nil
}

func (t *adjTx) BranchCode(ctx context.Context, branchID int64) (string, error) {
	code, ok := t.branches[branchID]
	if !ok {
		return "", ledger.ErrBranchNotFound
	}
	return code, nil
}

func (t *adjTx) NextSequence(ctx context.Context, key string) (int64, error) {
	t.state.seq[key]++
	return t.state.seq[key], nil
}

func (t *adjTx) InsertJournal(ctx context.Context, entry ledger.JournalEntry) (int64, error) {
	if t.journalErr != nil {
		return 0, t.journalErr
	}
	t.state.nextID++
	entry.ID = t.state.nextID
	t.state.journals = append(t.state.journals, entry)
	return entry.ID, nil
}

func (t *adjTx) InsertLine(ctx context.Context, line ledger.JournalLine) (int64, error) {
	t.state.nextID++
	line.ID = t.state.nextID
	t.state.lines = append(t.state.lines, line)
	return line.ID, nil
}

func (t *adjTx) BalanceForUpdate(ctx context.Context, accountID, branchID int64) (shared.Money, error) {
	return t.state.balances[adjKey(accountID, branchID)], nil
}

func (t *adjTx) SetBalance(ctx context.Context, accountID, branchID int64, balance shared.Money) error {
	t.state.balances[adjKey(accountID, branchID)] = balance
	return nil
}

func (t *adjTx) InsertLedgerRow(ctx context.Context, row ledger.LedgerRow) (int64, error) {
	t.state.nextID++
	row.ID = t.state.nextID
	t.state.rows = append(t.state.rows, row)
	return row.ID, nil
}

const adjItem = int64(42)

func newAdjFixture() (*adjStore, *AdjustmentService, fixedResolver) {
	store := newAdjStore()
	store.seedLayer(1, adjItem, 10, 500, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	resolver := testResolver()
	svc := NewAdjustmentService(store, NewBuilder(resolver), nil, nil)
	return store, svc, resolver
}

func TestAdjustWriteDownConsumesAndPosts(t *testing.T) {
	store, svc, resolver := newAdjFixture()

	delta, err := svc.Adjust(context.Background(), costing.AdjustInput{
		BranchID: 1, ItemID: adjItem, Qty: -4, Note: "STK-TAKE-7",
	})
	require.NoError(t, err)
	require.Equal(t, shared.Money(-2000), delta)
	require.Equal(t, int64(6), store.state.snaps[adjKey(1, adjItem)])

	require.Len(t, store.state.journals, 1)
	require.Equal(t, "JRN-DT01-"+time.Now().Format("200601")+"-00001", store.state.journals[0].VoucherNo)

	var sawExpense, sawInventory bool
	for _, line := range store.state.lines {
		if line.AccountID == resolver[accounts.RoleAdjustmentExpense] {
			require.Equal(t, shared.Money(2000), line.Debit)
			sawExpense = true
		}
		if line.AccountID == resolver[accounts.RoleInventory] {
			require.Equal(t, shared.Money(2000), line.Credit)
			sawInventory = true
		}
	}
	require.True(t, sawExpense)
	require.True(t, sawInventory)
}

func TestAdjustWriteUpCreatesLayerAndPosts(t *testing.T) {
	store, svc, resolver := newAdjFixture()

	delta, err := svc.Adjust(context.Background(), costing.AdjustInput{
		BranchID: 1, ItemID: adjItem, Qty: 3, UnitCost: 450, Note: "found stock",
	})
	require.NoError(t, err)
	require.Equal(t, shared.Money(1350), delta)

	require.Len(t, store.state.layers, 2)
	require.Equal(t, costing.SourceAdjustment, store.state.layers[1].SourceType)
	require.Equal(t, int64(13), store.state.snaps[adjKey(1, adjItem)])

	var sawInventory bool
	for _, line := range store.state.lines {
		if line.AccountID == resolver[accounts.RoleInventory] {
			require.Equal(t, shared.Money(1350), line.Debit)
			sawInventory = true
		}
	}
	require.True(t, sawInventory)
}

func TestAdjustFailedPostingLeavesStockUntouched(t *testing.T) {
	store, svc, _ := newAdjFixture()
	store.journalErr = errors.New("ledger unavailable")

	_, err := svc.Adjust(context.Background(), costing.AdjustInput{
		BranchID: 1, ItemID: adjItem, Qty: -4, Note: "STK-TAKE-7",
	})
	require.ErrorContains(t, err, "ledger unavailable")

	// The consumption ran before the journal failed; the transaction must
	// discard it along with everything else.
	require.Equal(t, int64(10), store.state.layers[0].RemainingQty)
	require.Equal(t, int64(10), store.state.snaps[adjKey(1, adjItem)])
	require.Empty(t, store.state.moves)
	require.Empty(t, store.state.journals)
}

func TestAdjustZeroQuantityRejected(t *testing.T) {
	_, svc, _ := newAdjFixture()
	_, err := svc.Adjust(context.Background(), costing.AdjustInput{BranchID: 1, ItemID: adjItem})
	require.ErrorIs(t, err, costing.ErrInvalidQuantity)
}

func TestAdjustZeroCostLayerSkipsJournal(t *testing.T) {
	store, svc, _ := newAdjFixture()

	delta, err := svc.Adjust(context.Background(), costing.AdjustInput{
		BranchID: 1, ItemID: adjItem, Qty: 5, UnitCost: 0, Note: "donated stock",
	})
	require.NoError(t, err)
	require.Equal(t, shared.Money(0), delta)
	require.Equal(t, int64(15), store.state.snaps[adjKey(1, adjItem)])
	require.Empty(t, store.state.journals)
}
