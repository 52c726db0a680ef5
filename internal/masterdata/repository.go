package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists branches and items.
type Repository interface {
	ListBranches(ctx context.Context, activeOnly bool) ([]Branch, error)
	GetBranch(ctx context.Context, id int64) (Branch, error)
	CreateBranch(ctx context.Context, branch Branch) (Branch, error)
	SetBranchActive(ctx context.Context, id int64, active bool) error

	ListItems(ctx context.Context, activeOnly bool, limit, offset int) ([]Item, error)
	CountItems(ctx context.Context, activeOnly bool) (int, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	SetItemActive(ctx context.Context, id int64, active bool) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const branchCols = `id, code, name, COALESCE(address, ''), COALESCE(phone, ''), is_active, created_at, updated_at`

func (r *pgRepository) ListBranches(ctx context.Context, activeOnly bool) ([]Branch, error) {
	query := `SELECT ` + branchCols + ` FROM branches`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY code ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *pgRepository) GetBranch(ctx context.Context, id int64) (Branch, error) {
	var b Branch
	err := r.pool.QueryRow(ctx, `SELECT `+branchCols+` FROM branches WHERE id=$1`, id).
		Scan(&b.ID, &b.Code, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Branch{}, ErrBranchNotFound
		}
		return Branch{}, err
	}
	return b, nil
}

func (r *pgRepository) CreateBranch(ctx context.Context, branch Branch) (Branch, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO branches (code, name, address, phone, is_active)
VALUES ($1,$2,$3,$4,TRUE) RETURNING id, created_at, updated_at`,
		branch.Code, branch.Name, nullStr(branch.Address), nullStr(branch.Phone)).
		Scan(&branch.ID, &branch.CreatedAt, &branch.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Branch{}, ErrDuplicateCode
		}
		return Branch{}, err
	}
	branch.IsActive = true
	return branch, nil
}

func (r *pgRepository) SetBranchActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE branches SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBranchNotFound
	}
	return nil
}

const itemCols = `id, sku, name, COALESCE(unit, 'pcs'), default_unit_cost, default_price, is_active, created_at, updated_at`

func (r *pgRepository) ListItems(ctx context.Context, activeOnly bool, limit, offset int) ([]Item, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + itemCols + ` FROM items`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY sku ASC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.SKU, &item.Name, &item.Unit, &item.DefaultUnitCost, &item.DefaultPrice, &item.IsActive, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *pgRepository) CountItems(ctx context.Context, activeOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM items`
	if activeOnly {
		query += ` WHERE is_active`
	}
	var total int
	if err := r.pool.QueryRow(ctx, query).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *pgRepository) GetItem(ctx context.Context, id int64) (Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT `+itemCols+` FROM items WHERE id=$1`, id).
		Scan(&item.ID, &item.SKU, &item.Name, &item.Unit, &item.DefaultUnitCost, &item.DefaultPrice, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *pgRepository) CreateItem(ctx context.Context, item Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO items (sku, name, unit, default_unit_cost, default_price, is_active)
VALUES ($1,$2,$3,$4,$5,TRUE) RETURNING id, created_at, updated_at`,
		item.SKU, item.Name, item.Unit, item.DefaultUnitCost, item.DefaultPrice).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Item{}, ErrDuplicateCode
		}
		return Item{}, err
	}
	item.IsActive = true
	return item, nil
}

func (r *pgRepository) SetItemActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE items SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
