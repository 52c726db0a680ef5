package costing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian/internal/platform/db"
)

// TxStore exposes layer and snapshot mutations bound to one transaction.
// Everything a single business operation touches goes through one TxStore so
// partial failure leaves no trace.
type TxStore interface {
	LayersForUpdate(ctx context.Context, branchID, itemID int64) ([]CostLayer, error)
	SetLayerRemaining(ctx context.Context, layerID, remaining int64) error
	InsertLayer(ctx context.Context, layer CostLayer) (int64, error)
	SnapshotForUpdate(ctx context.Context, branchID, itemID int64) (Snapshot, error)
	UpsertSnapshot(ctx context.Context, snap Snapshot) error
	InsertMovement(ctx context.Context, move Movement) error
}

// Store persists costing data in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Bind wraps an existing transaction so orchestrating services can mix
// costing mutations with ledger postings atomically.
func (s *Store) Bind(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

// WithTx executes fn inside a RepeatableRead transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if s == nil {
		return errors.New("costing store not initialised")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, s.Bind(tx))
	})
}

// ListLayers returns all layers for (branch, item) in acquisition order,
// exhausted ones included; layers are retained for audit.
func (s *Store) ListLayers(ctx context.Context, branchID, itemID int64) ([]CostLayer, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, branch_id, item_id, original_qty, remaining_qty, unit_cost, acquired_at, source_type, source_ref
FROM cost_layers WHERE branch_id=$1 AND item_id=$2 ORDER BY acquired_at ASC, id ASC`, branchID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLayers(rows)
}

// GetSnapshot reads the cached on-hand quantity.
func (s *Store) GetSnapshot(ctx context.Context, branchID, itemID int64) (Snapshot, error) {
	var snap Snapshot
	err := s.pool.QueryRow(ctx, `SELECT branch_id, item_id, qty, updated_at FROM stock_snapshots WHERE branch_id=$1 AND item_id=$2`, branchID, itemID).
		Scan(&snap.BranchID, &snap.ItemID, &snap.Qty, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{BranchID: branchID, ItemID: itemID}, ErrSnapshotNotFound
		}
		return Snapshot{}, err
	}
	return snap, nil
}

// ListMovements returns recent movement log rows for (branch, item).
func (s *Store) ListMovements(ctx context.Context, branchID, itemID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx, `SELECT id, branch_id, item_id, movement_type, qty, unit_cost, ref, occurred_at
FROM stock_movements WHERE branch_id=$1 AND item_id=$2 ORDER BY occurred_at DESC, id DESC LIMIT $3`, branchID, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var moves []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.BranchID, &m.ItemID, &m.Type, &m.Qty, &m.UnitCost, &m.Ref, &m.OccurredAt); err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) LayersForUpdate(ctx context.Context, branchID, itemID int64) ([]CostLayer, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, branch_id, item_id, original_qty, remaining_qty, unit_cost, acquired_at, source_type, source_ref
FROM cost_layers WHERE branch_id=$1 AND item_id=$2 ORDER BY acquired_at ASC, id ASC FOR UPDATE`, branchID, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLayers(rows)
}

func (t *txStore) SetLayerRemaining(ctx context.Context, layerID, remaining int64) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE cost_layers SET remaining_qty=$2 WHERE id=$1 AND remaining_qty <> $2 AND $2 >= 0 AND $2 <= original_qty`, layerID, remaining)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errors.New("costing: layer remaining update rejected")
	}
	return nil
}

func (t *txStore) InsertLayer(ctx context.Context, layer CostLayer) (int64, error) {
	acquired := layer.AcquiredAt
	if acquired.IsZero() {
		acquired = time.Now().UTC()
	}
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO cost_layers (branch_id, item_id, original_qty, remaining_qty, unit_cost, acquired_at, source_type, source_ref)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		layer.BranchID, layer.ItemID, layer.OriginalQty, layer.RemainingQty, layer.UnitCost, acquired, string(layer.SourceType), layer.SourceRef).Scan(&id)
	return id, err
}

func (t *txStore) SnapshotForUpdate(ctx context.Context, branchID, itemID int64) (Snapshot, error) {
	var snap Snapshot
	err := t.tx.QueryRow(ctx, `SELECT branch_id, item_id, qty, updated_at FROM stock_snapshots WHERE branch_id=$1 AND item_id=$2 FOR UPDATE`, branchID, itemID).
		Scan(&snap.BranchID, &snap.ItemID, &snap.Qty, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{BranchID: branchID, ItemID: itemID}, ErrSnapshotNotFound
		}
		return Snapshot{}, err
	}
	return snap, nil
}

func (t *txStore) UpsertSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_snapshots (branch_id, item_id, qty, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (branch_id, item_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=NOW()`, snap.BranchID, snap.ItemID, snap.Qty)
	return err
}

func (t *txStore) InsertMovement(ctx context.Context, move Movement) error {
	occurred := move.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO stock_movements (branch_id, item_id, movement_type, qty, unit_cost, ref, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, move.BranchID, move.ItemID, string(move.Type), move.Qty, move.UnitCost, move.Ref, occurred)
	return err
}

func scanLayers(rows pgx.Rows) ([]CostLayer, error) {
	var layers []CostLayer
	for rows.Next() {
		var l CostLayer
		if err := rows.Scan(&l.ID, &l.BranchID, &l.ItemID, &l.OriginalQty, &l.RemainingQty, &l.UnitCost, &l.AcquiredAt, &l.SourceType, &l.SourceRef); err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}
