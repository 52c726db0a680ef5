package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-retail/meridian/internal/platform/db"
	"github.com/meridian-retail/meridian/internal/shared"
)

// TxStore exposes the persistence operations a single post needs, bound to
// one transaction.
type TxStore interface {
	BranchCode(ctx context.Context, branchID int64) (string, error)
	NextSequence(ctx context.Context, key string) (int64, error)
	InsertJournal(ctx context.Context, entry JournalEntry) (int64, error)
	InsertLine(ctx context.Context, line JournalLine) (int64, error)
	BalanceForUpdate(ctx context.Context, accountID, branchID int64) (shared.Money, error)
	SetBalance(ctx context.Context, accountID, branchID int64, balance shared.Money) error
	InsertLedgerRow(ctx context.Context, row LedgerRow) (int64, error)
}

// Store persists journals and ledger rows in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	seq  *shared.Sequences
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool, seq *shared.Sequences) *Store {
	return &Store{pool: pool, seq: seq}
}

// Bind wraps an existing transaction for orchestrators combining a posting
// with stock mutations.
func (s *Store) Bind(tx pgx.Tx) TxStore {
	return &txStore{tx: tx, seq: s.seq}
}

// WithTx executes fn inside a RepeatableRead transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if s == nil {
		return errors.New("ledger store not initialised")
	}
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, s.Bind(tx))
	})
}

// GetJournal loads a journal header with its lines.
func (s *Store) GetJournal(ctx context.Context, id int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.pool.QueryRow(ctx, `SELECT id, voucher_no, date, ref_type, ref_id, narration, branch_id, posted_by, created_at
FROM journals WHERE id=$1`, id).
		Scan(&entry.ID, &entry.VoucherNo, &entry.Date, &entry.RefType, &entry.RefID, &entry.Narration, &entry.BranchID, &entry.PostedBy, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := s.pool.Query(ctx, `SELECT id, journal_id, account_id, debit, credit FROM journal_lines WHERE journal_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.Debit, &line.Credit); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

// ListRows returns ledger rows for (account, branch) in posting order.
func (s *Store) ListRows(ctx context.Context, accountID, branchID int64, from, to time.Time, limit int) ([]LedgerRow, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `SELECT id, journal_id, account_id, branch_id, date, debit, credit, balance, created_at
FROM ledger_rows
WHERE account_id=$1 AND branch_id=$2 AND date BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY date ASC, id ASC
LIMIT $5`, accountID, branchID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerRow
	for rows.Next() {
		var row LedgerRow
		if err := rows.Scan(&row.ID, &row.JournalID, &row.AccountID, &row.BranchID, &row.Date, &row.Debit, &row.Credit, &row.Balance, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
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
			return "", ErrBranchNotFound
		}
		return "", err
	}
	return code, nil
}

func (t *txStore) NextSequence(ctx context.Context, key string) (int64, error) {
	return t.seq.Next(ctx, t.tx, key)
}

func (t *txStore) InsertJournal(ctx context.Context, entry JournalEntry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO journals (voucher_no, date, ref_type, ref_id, narration, branch_id, posted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		entry.VoucherNo, entry.Date, string(entry.RefType), entry.RefID, entry.Narration, entry.BranchID, nullInt(entry.PostedBy)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journals_voucher_no" {
			return 0, ErrVoucherConflict
		}
		return 0, err
	}
	return id, nil
}

func (t *txStore) InsertLine(ctx context.Context, line JournalLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO journal_lines (journal_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4) RETURNING id`, line.JournalID, line.AccountID, line.Debit, line.Credit).Scan(&id)
	return id, err
}

// BalanceForUpdate locks the running-balance row for (account, branch),
// creating it on first use. The row lock serializes concurrent posts to the
// same account so the balance chain cannot interleave.
func (t *txStore) BalanceForUpdate(ctx context.Context, accountID, branchID int64) (shared.Money, error) {
	if _, err := t.tx.Exec(ctx, `INSERT INTO ledger_balances (account_id, branch_id, balance)
VALUES ($1,$2,0) ON CONFLICT (account_id, branch_id) DO NOTHING`, accountID, branchID); err != nil {
		return 0, err
	}
	var balance shared.Money
	err := t.tx.QueryRow(ctx, `SELECT balance FROM ledger_balances WHERE account_id=$1 AND branch_id=$2 FOR UPDATE`, accountID, branchID).Scan(&balance)
	return balance, err
}

func (t *txStore) SetBalance(ctx context.Context, accountID, branchID int64, balance shared.Money) error {
	_, err := t.tx.Exec(ctx, `UPDATE ledger_balances SET balance=$3, updated_at=NOW() WHERE account_id=$1 AND branch_id=$2`, accountID, branchID, balance)
	return err
}

func (t *txStore) InsertLedgerRow(ctx context.Context, row LedgerRow) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO ledger_rows (journal_id, account_id, branch_id, date, debit, credit, balance)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		row.JournalID, row.AccountID, row.BranchID, row.Date, row.Debit, row.Credit, row.Balance).Scan(&id)
	return id, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
