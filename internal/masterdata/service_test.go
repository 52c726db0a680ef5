package masterdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memRepo struct {
	branches map[int64]Branch
	items    map[int64]Item
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{branches: make(map[int64]Branch), items: make(map[int64]Item)}
}

func (m *memRepo) ListBranches(ctx context.Context, activeOnly bool) ([]Branch, error) {
	var out []Branch
	for _, b := range m.branches {
		if activeOnly && !b.IsActive {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memRepo) GetBranch(ctx context.Context, id int64) (Branch, error) {
	b, ok := m.branches[id]
	if !ok {
		return Branch{}, ErrBranchNotFound
	}
	return b, nil
}

func (m *memRepo) CreateBranch(ctx context.Context, branch Branch) (Branch, error) {
	for _, existing := range m.branches {
		if existing.Code == branch.Code {
			return Branch{}, ErrDuplicateCode
		}
	}
	m.nextID++
	branch.ID = m.nextID
	branch.IsActive = true
	branch.CreatedAt = time.Now()
	m.branches[branch.ID] = branch
	return branch, nil
}

func (m *memRepo) SetBranchActive(ctx context.Context, id int64, active bool) error {
	b, ok := m.branches[id]
	if !ok {
		return ErrBranchNotFound
	}
	b.IsActive = active
	m.branches[id] = b
	return nil
}

func (m *memRepo) ListItems(ctx context.Context, activeOnly bool, limit, offset int) ([]Item, error) {
	var all []Item
	for id := int64(1); id <= m.nextID; id++ {
		item, ok := m.items[id]
		if !ok {
			continue
		}
		if activeOnly && !item.IsActive {
			continue
		}
		all = append(all, item)
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *memRepo) CountItems(ctx context.Context, activeOnly bool) (int, error) {
	count := 0
	for _, item := range m.items {
		if activeOnly && !item.IsActive {
			continue
		}
		count++
	}
	return count, nil
}

func (m *memRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	item, ok := m.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (m *memRepo) CreateItem(ctx context.Context, item Item) (Item, error) {
	for _, existing := range m.items {
		if existing.SKU == item.SKU {
			return Item{}, ErrDuplicateCode
		}
	}
	m.nextID++
	item.ID = m.nextID
	item.IsActive = true
	item.CreatedAt = time.Now()
	m.items[item.ID] = item
	return item, nil
}

func (m *memRepo) SetItemActive(ctx context.Context, id int64, active bool) error {
	item, ok := m.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.IsActive = active
	m.items[id] = item
	return nil
}

func TestCreateBranchNormalisesCode(t *testing.T) {
	svc := NewService(newMemRepo())

	branch, err := svc.CreateBranch(context.Background(), CreateBranchInput{
		Code: " dt01 ",
		Name: "  Downtown  ",
	})
	require.NoError(t, err)
	require.Equal(t, "DT01", branch.Code)
	require.Equal(t, "Downtown", branch.Name)
	require.True(t, branch.IsActive)
}

func TestCreateBranchDuplicateCode(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	_, err := svc.CreateBranch(ctx, CreateBranchInput{Code: "DT01", Name: "Downtown"})
	require.NoError(t, err)
	_, err = svc.CreateBranch(ctx, CreateBranchInput{Code: "dt01", Name: "Other"})
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestDeactivateBranchHidesFromActiveList(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	branch, err := svc.CreateBranch(ctx, CreateBranchInput{Code: "DT01", Name: "Downtown"})
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateBranch(ctx, branch.ID))

	active, err := svc.ListBranches(ctx, true)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := svc.ListBranches(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCreateItemDefaultsUnit(t *testing.T) {
	svc := NewService(newMemRepo())

	item, err := svc.CreateItem(context.Background(), CreateItemInput{
		SKU:             "wdg-1",
		Name:            "Widget",
		DefaultUnitCost: 500,
		DefaultPrice:    900,
	})
	require.NoError(t, err)
	require.Equal(t, "WDG-1", item.SKU)
	require.Equal(t, "pcs", item.Unit)
	require.EqualValues(t, 500, item.DefaultUnitCost)
}

func TestListItemsPaginates(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	for _, sku := range []string{"A-1", "B-2", "C-3", "D-4", "E-5"} {
		_, err := svc.CreateItem(ctx, CreateItemInput{SKU: sku, Name: "Item " + sku, DefaultUnitCost: 100, DefaultPrice: 150})
		require.NoError(t, err)
	}

	items, pg, err := svc.ListItems(ctx, false, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "C-3", items[0].SKU)
	require.Equal(t, 5, pg.Total)
	require.Equal(t, 3, pg.TotalPages)
}

func TestGetMissing(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	_, err := svc.GetBranch(ctx, 99)
	require.ErrorIs(t, err, ErrBranchNotFound)
	_, err = svc.GetItem(ctx, 99)
	require.ErrorIs(t, err, ErrItemNotFound)
}
