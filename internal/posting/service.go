package posting

import (
	"context"

	"github.com/meridian-retail/meridian/internal/ledger"
)

// Poster abstracts the ledger service.
type Poster interface {
	Post(ctx context.Context, in ledger.PostingInput) (ledger.PostResult, error)
}

// Service posts the documents that move money without touching stock:
// payroll, commission, and opening balances. Stock-coupled documents go
// through the sales and procurement orchestrators instead.
type Service struct {
	builder *Builder
	poster  Poster
}

// NewService constructs Service.
func NewService(builder *Builder, poster Poster) *Service {
	return &Service{builder: builder, poster: poster}
}

// PostPayroll verifies the cash/accrued split and posts one payroll run.
func (s *Service) PostPayroll(ctx context.Context, in PayrollAmounts) (ledger.PostResult, error) {
	input, err := s.builder.Payroll(ctx, in)
	if err != nil {
		return ledger.PostResult{}, err
	}
	return s.poster.Post(ctx, input)
}

// PostCommission posts one commission payout.
func (s *Service) PostCommission(ctx context.Context, in CommissionAmounts) (ledger.PostResult, error) {
	input, err := s.builder.Commission(ctx, in)
	if err != nil {
		return ledger.PostResult{}, err
	}
	return s.poster.Post(ctx, input)
}

// PostOpeningBalance posts the opening position of a branch.
func (s *Service) PostOpeningBalance(ctx context.Context, in OpeningAmounts) (ledger.PostResult, error) {
	input, err := s.builder.OpeningBalance(ctx, in)
	if err != nil {
		return ledger.PostResult{}, err
	}
	return s.poster.Post(ctx, input)
}
