package posting

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian/internal/accounts"
	"github.com/meridian-retail/meridian/internal/ledger"
	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler wires HTTP endpoints for ledger-only postings.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers posting routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payroll", h.postPayroll)
	r.Post("/commissions", h.postCommission)
	r.Post("/opening-balances", h.postOpeningBalance)
}

type payrollRequest struct {
	BranchID int64  `json:"branch_id" validate:"required"`
	RefID    string `json:"ref_id" validate:"required"`
	Date     string `json:"date" validate:"required"`
	Total    int64  `json:"total" validate:"required,gt=0"`
	CashPaid int64  `json:"cash_paid" validate:"gte=0"`
	Accrued  int64  `json:"accrued" validate:"gte=0"`
}

func (h *Handler) postPayroll(w http.ResponseWriter, r *http.Request) {
	var req payrollRequest
	date, ok := h.decode(w, r, &req, func() string { return req.Date })
	if !ok {
		return
	}
	result, err := h.service.PostPayroll(r.Context(), PayrollAmounts{
		BranchID: req.BranchID,
		RefID:    req.RefID,
		Date:     date,
		PostedBy: shared.ActorFromContext(r.Context()),
		Total:    shared.Money(req.Total),
		CashPaid: shared.Money(req.CashPaid),
		Accrued:  shared.Money(req.Accrued),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("payroll posted", "voucher_no", result.VoucherNo, "branch_id", req.BranchID)
	httpx.JSON(w, http.StatusCreated, result)
}

type commissionRequest struct {
	BranchID int64  `json:"branch_id" validate:"required"`
	RefID    string `json:"ref_id" validate:"required"`
	Date     string `json:"date" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) postCommission(w http.ResponseWriter, r *http.Request) {
	var req commissionRequest
	date, ok := h.decode(w, r, &req, func() string { return req.Date })
	if !ok {
		return
	}
	result, err := h.service.PostCommission(r.Context(), CommissionAmounts{
		BranchID: req.BranchID,
		RefID:    req.RefID,
		Date:     date,
		PostedBy: shared.ActorFromContext(r.Context()),
		Amount:   shared.Money(req.Amount),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("commission posted", "voucher_no", result.VoucherNo, "branch_id", req.BranchID)
	httpx.JSON(w, http.StatusCreated, result)
}

type openingBalanceRequest struct {
	BranchID  int64  `json:"branch_id" validate:"required"`
	RefID     string `json:"ref_id" validate:"required"`
	Date      string `json:"date" validate:"required"`
	Inventory int64  `json:"inventory" validate:"gte=0"`
	Cash      int64  `json:"cash" validate:"gte=0"`
	Bank      int64  `json:"bank" validate:"gte=0"`
}

func (h *Handler) postOpeningBalance(w http.ResponseWriter, r *http.Request) {
	var req openingBalanceRequest
	date, ok := h.decode(w, r, &req, func() string { return req.Date })
	if !ok {
		return
	}
	result, err := h.service.PostOpeningBalance(r.Context(), OpeningAmounts{
		BranchID:  req.BranchID,
		RefID:     req.RefID,
		Date:      date,
		PostedBy:  shared.ActorFromContext(r.Context()),
		Inventory: shared.Money(req.Inventory),
		Cash:      shared.Money(req.Cash),
		Bank:      shared.Money(req.Bank),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("opening balance posted", "voucher_no", result.VoucherNo, "branch_id", req.BranchID)
	httpx.JSON(w, http.StatusCreated, result)
}

// decode parses the body, validates the struct, and parses the date field.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any, dateOf func() string) (time.Time, bool) {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid json body", httpx.ErrValidation))
		return time.Time{}, false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return time.Time{}, false
	}
	date, err := time.Parse("2006-01-02", dateOf())
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: date must be YYYY-MM-DD", httpx.ErrValidation))
		return time.Time{}, false
	}
	return date, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAmountMismatch), errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ledger.ErrUnbalanced), errors.Is(err, ledger.ErrTooFewLines):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, err))
	case errors.Is(err, ledger.ErrBranchNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, accounts.ErrMissingSystemAccount):
		h.logger.Error("system account missing", "error", err)
		httpx.RespondError(w, err)
	default:
		h.logger.Error("posting failed", "error", err)
		httpx.RespondError(w, err)
	}
}
