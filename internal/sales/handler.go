package sales

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian/internal/costing"
	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/posting"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler wires HTTP endpoints for sales and returns.
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

// MountRoutes registers sales routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.recordSale)
	r.Post("/returns", h.recordReturn)
}

type saleRequest struct {
	BranchID  int64      `json:"branch_id" validate:"required"`
	Date      string     `json:"date" validate:"required"`
	Lines     []SaleLine `json:"lines" validate:"required,min=1,dive"`
	CashPaid  int64      `json:"cash_paid" validate:"gte=0"`
	CreditDue int64      `json:"credit_due" validate:"gte=0"`
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid json body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: date must be YYYY-MM-DD", httpx.ErrValidation))
		return
	}

	result, err := h.service.RecordSale(r.Context(), SaleInput{
		BranchID:  req.BranchID,
		Date:      date,
		SoldBy:    shared.ActorFromContext(r.Context()),
		Lines:     req.Lines,
		CashPaid:  shared.Money(req.CashPaid),
		CreditDue: shared.Money(req.CreditDue),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("sale recorded", "sale_no", result.SaleNo, "branch_id", req.BranchID,
		"total", int64(result.Total), "voucher_no", result.Journal.VoucherNo)
	httpx.JSON(w, http.StatusCreated, result)
}

type returnRequest struct {
	BranchID     int64        `json:"branch_id" validate:"required"`
	Date         string       `json:"date" validate:"required"`
	SaleRef      string       `json:"sale_ref"`
	Lines        []ReturnLine `json:"lines" validate:"required,min=1,dive"`
	CashRefund   int64        `json:"cash_refund" validate:"gte=0"`
	CreditOffset int64        `json:"credit_offset" validate:"gte=0"`
}

func (h *Handler) recordReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid json body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: date must be YYYY-MM-DD", httpx.ErrValidation))
		return
	}

	result, err := h.service.RecordReturn(r.Context(), ReturnInput{
		BranchID:     req.BranchID,
		Date:         date,
		HandledBy:    shared.ActorFromContext(r.Context()),
		SaleRef:      req.SaleRef,
		Lines:        req.Lines,
		CashRefund:   shared.Money(req.CashRefund),
		CreditOffset: shared.Money(req.CreditOffset),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("sale return recorded", "return_no", result.ReturnNo, "branch_id", req.BranchID)
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoLines), errors.Is(err, ErrInvalidLine), errors.Is(err, shared.ErrAmountOverflow):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	case errors.Is(err, costing.ErrInsufficientStock),
		errors.Is(err, costing.ErrNothingToRestore),
		errors.Is(err, posting.ErrAmountMismatch):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, err))
	default:
		h.logger.Error("sales operation failed", "error", err)
		httpx.RespondError(w, err)
	}
}
