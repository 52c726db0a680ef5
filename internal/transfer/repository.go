package transfer

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian/internal/costing"
	"github.com/meridian-retail/meridian/internal/platform/db"
	"github.com/meridian-retail/meridian/internal/shared"
)

// TxStore exposes transfer persistence bound to one transaction.
type TxStore interface {
	BranchCode(ctx context.Context, branchID int64) (string, error)
	NextSequence(ctx context.Context, key string) (int64, error)
	InsertTransfer(ctx context.Context, tr Transfer) (int64, error)
	InsertItem(ctx context.Context, item TransferItem) (int64, error)
	InsertLayerRecord(ctx context.Context, rec TransferLayerRecord) (int64, error)
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	SetItemReceived(ctx context.Context, itemID, receivedQty int64) error
	SetStatus(ctx context.Context, transferID int64, status Status, receivedBy int64) error
}

// StorePort is what the service depends on. One WithTx call spans both the
// transfer tables and the costing mutations, so a created or received
// transfer commits stock and records together or not at all.
type StorePort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, ts TxStore, cs costing.TxStore) error) error
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	ListTransfers(ctx context.Context, branchID int64, limit int) ([]Transfer, error)
}

// Store persists transfers in PostgreSQL.
type Store struct {
	pool    *pgxpool.Pool
	seq     *shared.Sequences
	costing *costing.Store
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool, seq *shared.Sequences, costingStore *costing.Store) *Store {
	return &Store{pool: pool, seq: seq, costing: costingStore}
}

// WithTx executes fn inside one RepeatableRead transaction with both the
// transfer store and the costing store bound to it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, ts TxStore, cs costing.TxStore) error) error {
	if s == nil {
		return errors.New("transfer store not initialised")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx, seq: s.seq}, s.costing.Bind(tx))
	})
}

// GetTransfer loads a transfer with items and captured layer records.
func (s *Store) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	var tr Transfer
	err := s.pool.QueryRow(ctx, `SELECT id, transfer_no, from_branch_id, to_branch_id, status, created_by, created_at,
COALESCE(received_by, 0), COALESCE(received_at, 'epoch')
FROM transfers WHERE id=$1`, id).
		Scan(&tr.ID, &tr.TransferNo, &tr.FromBranchID, &tr.ToBranchID, &tr.Status, &tr.CreatedBy, &tr.CreatedAt, &tr.ReceivedBy, &tr.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	tr.Items, err = s.loadItems(ctx, id)
	return tr, err
}

// ListTransfers returns recent transfers touching a branch, newest first.
func (s *Store) ListTransfers(ctx context.Context, branchID int64, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT id, transfer_no, from_branch_id, to_branch_id, status, created_by, created_at,
COALESCE(received_by, 0), COALESCE(received_at, 'epoch')
FROM transfers WHERE from_branch_id=$1 OR to_branch_id=$1 ORDER BY id DESC LIMIT $2`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transfer
	for rows.Next() {
		var tr Transfer
		if err := rows.Scan(&tr.ID, &tr.TransferNo, &tr.FromBranchID, &tr.ToBranchID, &tr.Status, &tr.CreatedBy, &tr.CreatedAt, &tr.ReceivedBy, &tr.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (s *Store) loadItems(ctx context.Context, transferID int64) ([]TransferItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, transfer_id, item_id, qty, received_qty, total_cost
FROM transfer_items WHERE transfer_id=$1 ORDER BY id ASC`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransferItem
	for rows.Next() {
		var item TransferItem
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ItemID, &item.Qty, &item.ReceivedQty, &item.TotalCost); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		recRows, err := s.pool.Query(ctx, `SELECT id, transfer_item_id, source_layer_id, qty, unit_cost
FROM transfer_item_layers WHERE transfer_item_id=$1 ORDER BY id ASC`, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Layers, err = scanLayerRecords(recRows)
		recRows.Close()
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

type txStore struct {
	tx  pgx.Tx
	seq *shared.Sequences
}

func (t *txStore) BranchCode(ctx context.Context, branchID int64) (string, error) {
	var code string
	err := t.tx.QueryRow(ctx, `SELECT code FROM branches WHERE id=$1 AND is_active`, branchID).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", errors.New("transfer: branch not found")
		}
		return "", err
	}
	return code, nil
}

func (t *txStore) NextSequence(ctx context.Context, key string) (int64, error) {
	return t.seq.Next(ctx, t.tx, key)
}

func (t *txStore) InsertTransfer(ctx context.Context, tr Transfer) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO transfers (transfer_no, from_branch_id, to_branch_id, status, created_by)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		tr.TransferNo, tr.FromBranchID, tr.ToBranchID, string(tr.Status), nullInt(tr.CreatedBy)).Scan(&id)
	return id, err
}

func (t *txStore) InsertItem(ctx context.Context, item TransferItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO transfer_items (transfer_id, item_id, qty, received_qty, total_cost)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		item.TransferID, item.ItemID, item.Qty, item.ReceivedQty, item.TotalCost).Scan(&id)
	return id, err
}

func (t *txStore) InsertLayerRecord(ctx context.Context, rec TransferLayerRecord) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO transfer_item_layers (transfer_item_id, source_layer_id, qty, unit_cost)
VALUES ($1,$2,$3,$4) RETURNING id`,
		rec.TransferItemID, rec.SourceLayerID, rec.Qty, rec.UnitCost).Scan(&id)
	return id, err
}

// GetTransferForUpdate locks the header so concurrent receives serialize.
func (t *txStore) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	var tr Transfer
	err := t.tx.QueryRow(ctx, `SELECT id, transfer_no, from_branch_id, to_branch_id, status, created_by, created_at,
COALESCE(received_by, 0), COALESCE(received_at, 'epoch')
FROM transfers WHERE id=$1 FOR UPDATE`, id).
		Scan(&tr.ID, &tr.TransferNo, &tr.FromBranchID, &tr.ToBranchID, &tr.Status, &tr.CreatedBy, &tr.CreatedAt, &tr.ReceivedBy, &tr.ReceivedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	itemRows, err := t.tx.Query(ctx, `SELECT id, transfer_id, item_id, qty, received_qty, total_cost
FROM transfer_items WHERE transfer_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item TransferItem
		if err := itemRows.Scan(&item.ID, &item.TransferID, &item.ItemID, &item.Qty, &item.ReceivedQty, &item.TotalCost); err != nil {
			return Transfer{}, err
		}
		tr.Items = append(tr.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return Transfer{}, err
	}
	for i := range tr.Items {
		recRows, err := t.tx.Query(ctx, `SELECT id, transfer_item_id, source_layer_id, qty, unit_cost
FROM transfer_item_layers WHERE transfer_item_id=$1 ORDER BY id ASC`, tr.Items[i].ID)
		if err != nil {
			return Transfer{}, err
		}
		tr.Items[i].Layers, err = scanLayerRecords(recRows)
		recRows.Close()
		if err != nil {
			return Transfer{}, err
		}
	}
	return tr, nil
}

func (t *txStore) SetItemReceived(ctx context.Context, itemID, receivedQty int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE transfer_items SET received_qty=$2 WHERE id=$1`, itemID, receivedQty)
	return err
}

func (t *txStore) SetStatus(ctx context.Context, transferID int64, status Status, receivedBy int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE transfers SET status=$2, received_by=$3, received_at=NOW() WHERE id=$1`,
		transferID, string(status), nullInt(receivedBy))
	return err
}

func scanLayerRecords(rows pgx.Rows) ([]TransferLayerRecord, error) {
	var out []TransferLayerRecord
	for rows.Next() {
		var rec TransferLayerRecord
		if err := rows.Scan(&rec.ID, &rec.TransferItemID, &rec.SourceLayerID, &rec.Qty, &rec.UnitCost); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
