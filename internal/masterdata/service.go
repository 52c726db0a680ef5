package masterdata

import (
	"context"
	"strings"

	"github.com/meridian-retail/meridian/internal/shared"
)

// Service validates and persists reference data.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateBranch normalises and stores a new branch. Codes are upper-cased so
// voucher numbers stay uniform.
func (s *Service) CreateBranch(ctx context.Context, in CreateBranchInput) (Branch, error) {
	return s.repo.CreateBranch(ctx, Branch{
		Code:    strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:    strings.TrimSpace(in.Name),
		Address: strings.TrimSpace(in.Address),
		Phone:   strings.TrimSpace(in.Phone),
	})
}

// ListBranches lists branches.
func (s *Service) ListBranches(ctx context.Context, activeOnly bool) ([]Branch, error) {
	return s.repo.ListBranches(ctx, activeOnly)
}

// GetBranch loads one branch.
func (s *Service) GetBranch(ctx context.Context, id int64) (Branch, error) {
	return s.repo.GetBranch(ctx, id)
}

// DeactivateBranch soft-deletes a branch; existing vouchers keep its code.
func (s *Service) DeactivateBranch(ctx context.Context, id int64) error {
	return s.repo.SetBranchActive(ctx, id, false)
}

// CreateItem normalises and stores a new item.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (Item, error) {
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = "pcs"
	}
	return s.repo.CreateItem(ctx, Item{
		SKU:             strings.ToUpper(strings.TrimSpace(in.SKU)),
		Name:            strings.TrimSpace(in.Name),
		Unit:            unit,
		DefaultUnitCost: shared.Money(in.DefaultUnitCost),
		DefaultPrice:    shared.Money(in.DefaultPrice),
	})
}

// ListItems lists one page of items with pagination metadata.
func (s *Service) ListItems(ctx context.Context, activeOnly bool, page, perPage int) ([]Item, shared.Pagination, error) {
	total, err := s.repo.CountItems(ctx, activeOnly)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pg := shared.NewPagination(page, perPage, total)
	items, err := s.repo.ListItems(ctx, activeOnly, pg.PerPage, (pg.Page-1)*pg.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, pg, nil
}

// GetItem loads one item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// DeactivateItem soft-deletes an item; its cost layers remain for audit.
func (s *Service) DeactivateItem(ctx context.Context, id int64) error {
	return s.repo.SetItemActive(ctx, id, false)
}
