package accounts

import (
	"context"
	"errors"
	"strings"
)

// Service coordinates chart-of-accounts plumbing.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]Account, error) {
	return s.repo.List(ctx, includeInactive)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	if id <= 0 {
		return Account{}, ErrAccountNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, acc Account) (Account, error) {
	acc.Code = strings.TrimSpace(acc.Code)
	acc.Name = strings.TrimSpace(acc.Name)
	if acc.Code == "" {
		return Account{}, errors.New("accounts: code required")
	}
	if acc.Name == "" {
		return Account{}, errors.New("accounts: name required")
	}
	switch acc.Type {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
	default:
		return Account{}, errors.New("accounts: invalid account type")
	}
	return s.repo.Create(ctx, acc)
}

// Deactivate hides an account from new postings. Already-posted ledger rows
// keep referencing it.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrAccountNotFound
	}
	return s.repo.SetActive(ctx, id, false)
}
