package sales

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian/internal/accounts"
	"github.com/meridian-retail/meridian/internal/costing"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/posting"
	"github.com/meridian-retail/meridian/internal/shared"
)

// memState is everything one fake transaction touches. WithTx clones it and
// commits the clone only on success, mirroring the real rollback.
type memState struct {
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

func key2(a, b int64) string { return fmt.Sprintf("%d:%d", a, b) }

func (s *memState) clone() *memState {
	out := &memState{
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

type memStore struct {
	branches map[int64]string
	state    *memState
}

func newMemStore() *memStore {
	return &memStore{
		branches: map[int64]string{1: "DT01"},
		state: &memState{
			snaps:    make(map[string]int64),
			balances: make(map[string]shared.Money),
			seq:      make(map[string]int64),
		},
	}
}

func (m *memStore) seedLayer(branchID, itemID, qty int64, cost shared.Money, acquired time.Time) {
	m.state.nextID++
	m.state.layers = append(m.state.layers, costing.CostLayer{
		ID: m.state.nextID, BranchID: branchID, ItemID: itemID,
		OriginalQty: qty, RemainingQty: qty, UnitCost: cost, AcquiredAt: acquired,
		SourceType: costing.SourcePurchase,
	})
	m.state.snaps[key2(branchID, itemID)] += qty
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, cs costing.TxStore, ls ledger.TxStore) error) error {
	scratch := m.state.clone()
	tx := &memTx{branches: m.branches, state: scratch}
	if err := fn(ctx, tx, tx); err != nil {
		return err
	}
	m.state = scratch
	return nil
}

// memTx implements both costing.TxStore and ledger.TxStore.
type memTx struct {
	branches map[int64]string
	state    *memState
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
	qty, ok := t.state.snaps[key2(branchID, itemID)]
	if !ok {
		return costing.Snapshot{BranchID: branchID, ItemID: itemID}, costing.ErrSnapshotNotFound
	}
	return costing.Snapshot{BranchID: branchID, ItemID: itemID, Qty: qty}, nil
}

func (t *memTx) UpsertSnapshot(ctx context.Context, snap costing.Snapshot) error {
	t.state.snaps[key2(snap.BranchID, snap.ItemID)] = snap.Qty
	return nil
}

func (t *memTx) InsertMovement(ctx context.Context, move costing.Movement) error {
	t.state.moves = append(t.state.moves, move)
	return nil
}

func (t *memTx) BranchCode(ctx context.Context, branchID int64) (string, error) {
	code, ok := t.branches[branchID]
	if !ok {
		return "", ledger.ErrBranchNotFound
	}
	return code, nil
}

func (t *memTx) NextSequence(ctx context.Context, key string) (int64, error) {
	t.state.seq[key]++
	return t.state.seq[key], nil
}

func (t *memTx) InsertJournal(ctx context.Context, entry ledger.JournalEntry) (int64, error) {
	t.state.nextID++
	entry.ID = t.state.nextID
	t.state.journals = append(t.state.journals, entry)
	return entry.ID, nil
}

func (t *memTx) InsertLine(ctx context.Context, line ledger.JournalLine) (int64, error) {
	t.state.nextID++
	line.ID = t.state.nextID
	t.state.lines = append(t.state.lines, line)
	return line.ID, nil
}

func (t *memTx) BalanceForUpdate(ctx context.Context, accountID, branchID int64) (shared.Money, error) {
	return t.state.balances[key2(accountID, branchID)], nil
}

func (t *memTx) SetBalance(ctx context.Context, accountID, branchID int64, balance shared.Money) error {
	t.state.balances[key2(accountID, branchID)] = balance
	return nil
}

func (t *memTx) InsertLedgerRow(ctx context.Context, row ledger.LedgerRow) (int64, error) {
	t.state.nextID++
	row.ID = t.state.nextID
	t.state.rows = append(t.state.rows, row)
	return row.ID, nil
}

type fixedResolver map[accounts.Role]int64

func (f fixedResolver) AccountFor(ctx context.Context, role accounts.Role) (int64, error) {
	id, ok := f[role]
	if !ok {
		return 0, accounts.ErrMissingSystemAccount
	}
	return id, nil
}

func testResolver() fixedResolver {
	out := make(fixedResolver, len(accounts.RequiredRoles))
	for i, role := range accounts.RequiredRoles {
		out[role] = int64(i + 1)
	}
	return out
}

const theItem = int64(42)

var saleDate = time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)

func newFixture() (*memStore, *Service, fixedResolver) {
	store := newMemStore()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store.seedLayer(1, theItem, 10, 500, base)
	store.seedLayer(1, theItem, 10, 700, base.Add(24*time.Hour))
	resolver := testResolver()
	svc := NewService(store, posting.NewBuilder(resolver), nil)
	return store, svc, resolver
}

func TestRecordSaleConsumesStockAndPosts(t *testing.T) {
	store, svc, resolver := newFixture()

	result, err := svc.RecordSale(context.Background(), SaleInput{
		BranchID: 1,
		Date:     saleDate,
		Lines:    []SaleLine{{ItemID: theItem, Qty: 15, UnitPrice: 1000}},
		CashPaid: 15000,
	})
	require.NoError(t, err)
	require.Equal(t, shared.Money(15000), result.Total)
	require.Equal(t, shared.Money(10*500+5*700), result.COGS)
	require.Equal(t, "SAL-DT01-202608-00001", result.SaleNo)
	require.Equal(t, "JRN-DT01-202608-00001", result.Journal.VoucherNo)
	require.Equal(t, result.Journal.TotalDebit, result.Journal.TotalCredit)

	// Stock drained FIFO, snapshot in step with the layers.
	require.Equal(t, int64(5), store.state.snaps[key2(1, theItem)])

	// The journal carries the COGS pair against inventory.
	var sawCOGS, sawInventory bool
	for _, line := range store.state.lines {
		if line.AccountID == resolver[accounts.RoleCOGS] {
			require.Equal(t, shared.Money(8500), line.Debit)
			sawCOGS = true
		}
		if line.AccountID == resolver[accounts.RoleInventory] {
			require.Equal(t, shared.Money(8500), line.Credit)
			sawInventory = true
		}
	}
	require.True(t, sawCOGS)
	require.True(t, sawInventory)
}

func TestRecordSaleInsufficientStockLeavesNoTrace(t *testing.T) {
	store, svc, _ := newFixture()

	_, err := svc.RecordSale(context.Background(), SaleInput{
		BranchID: 1,
		Date:     saleDate,
		Lines:    []SaleLine{{ItemID: theItem, Qty: 25, UnitPrice: 1000}},
		CashPaid: 25000,
	})
	require.ErrorIs(t, err, costing.ErrInsufficientStock)
	require.Empty(t, store.state.journals)
	require.Empty(t, store.state.moves)
	require.Equal(t, int64(20), store.state.snaps[key2(1, theItem)])
}

func TestRecordSaleSplitMismatchAbortsStockConsumption(t *testing.T) {
	store, svc, _ := newFixture()

	// Stock consumption happens before the builder rejects the split; the
	// transaction must still discard it.
	_, err := svc.RecordSale(context.Background(), SaleInput{
		BranchID:  1,
		Date:      saleDate,
		Lines:     []SaleLine{{ItemID: theItem, Qty: 5, UnitPrice: 1000}},
		CashPaid:  3000,
		CreditDue: 1000,
	})
	require.ErrorIs(t, err, posting.ErrAmountMismatch)
	require.Equal(t, int64(20), store.state.snaps[key2(1, theItem)])
	require.Empty(t, store.state.journals)
}

func TestRecordSaleValidation(t *testing.T) {
	_, svc, _ := newFixture()
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, SaleInput{BranchID: 1, Date: saleDate, CashPaid: 0})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.RecordSale(ctx, SaleInput{
		BranchID: 1, Date: saleDate,
		Lines: []SaleLine{{ItemID: theItem, Qty: 0, UnitPrice: 100}},
	})
	require.ErrorIs(t, err, ErrInvalidLine)
}

func TestRecordSaleOverflowingAmountRejected(t *testing.T) {
	store, svc, _ := newFixture()

	// The line total no longer fits in minor units; validation must refuse
	// it before any stock moves.
	_, err := svc.RecordSale(context.Background(), SaleInput{
		BranchID: 1,
		Date:     saleDate,
		Lines:    []SaleLine{{ItemID: theItem, Qty: 3, UnitPrice: math.MaxInt64 / 2}},
	})
	require.ErrorIs(t, err, shared.ErrAmountOverflow)
	require.Equal(t, int64(20), store.state.snaps[key2(1, theItem)])
	require.Empty(t, store.state.journals)
}

func TestRecordReturnRestoresNewestLayersFirst(t *testing.T) {
	store, svc, _ := newFixture()
	ctx := context.Background()

	sale, err := svc.RecordSale(ctx, SaleInput{
		BranchID: 1,
		Date:     saleDate,
		Lines:    []SaleLine{{ItemID: theItem, Qty: 15, UnitPrice: 1000}},
		CashPaid: 15000,
	})
	require.NoError(t, err)

	result, err := svc.RecordReturn(ctx, ReturnInput{
		BranchID:   1,
		Date:       saleDate,
		SaleRef:    sale.SaleNo,
		Lines:      []ReturnLine{{ItemID: theItem, Qty: 5, Amount: 5000}},
		CashRefund: 5000,
	})
	require.NoError(t, err)
	require.Equal(t, "SRT-DT01-202608-00001", result.ReturnNo)
	// The newest layer gave up 5 of its original 10, so restoration refills
	// it at 700 before touching the older 500 layer.
	require.Equal(t, shared.Money(5*700), result.RestoredCost)
	require.Equal(t, int64(10), store.state.snaps[key2(1, theItem)])
}

func TestRecordReturnBeyondConsumedFails(t *testing.T) {
	store, svc, _ := newFixture()

	_, err := svc.RecordReturn(context.Background(), ReturnInput{
		BranchID:   1,
		Date:       saleDate,
		Lines:      []ReturnLine{{ItemID: theItem, Qty: 3, Amount: 3000}},
		CashRefund: 3000,
	})
	require.ErrorIs(t, err, costing.ErrNothingToRestore)
	require.Empty(t, store.state.journals)
	require.Equal(t, int64(20), store.state.snaps[key2(1, theItem)])
}
