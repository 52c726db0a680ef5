package procurement

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

// Handler wires HTTP endpoints for purchase receipts and supplier returns.
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

// MountRoutes registers procurement routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.receivePurchase)
	r.Post("/returns", h.returnToSupplier)
}

type purchaseRequest struct {
	BranchID  int64          `json:"branch_id" validate:"required"`
	Date      string         `json:"date" validate:"required"`
	Supplier  string         `json:"supplier"`
	Lines     []PurchaseLine `json:"lines" validate:"required,min=1,dive"`
	CashPaid  int64          `json:"cash_paid" validate:"gte=0"`
	CreditDue int64          `json:"credit_due" validate:"gte=0"`
}

func (h *Handler) receivePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
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

	result, err := h.service.ReceivePurchase(r.Context(), PurchaseInput{
		BranchID:   req.BranchID,
		Date:       date,
		ReceivedBy: shared.ActorFromContext(r.Context()),
		Supplier:   req.Supplier,
		Lines:      req.Lines,
		CashPaid:   shared.Money(req.CashPaid),
		CreditDue:  shared.Money(req.CreditDue),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("purchase received", "purchase_no", result.PurchaseNo,
		"branch_id", req.BranchID, "total", int64(result.Total))
	httpx.JSON(w, http.StatusCreated, result)
}

type supplierReturnRequest struct {
	BranchID     int64        `json:"branch_id" validate:"required"`
	Date         string       `json:"date" validate:"required"`
	PurchaseRef  string       `json:"purchase_ref"`
	Lines        []ReturnLine `json:"lines" validate:"required,min=1,dive"`
	RefundToCash bool         `json:"refund_to_cash"`
}

func (h *Handler) returnToSupplier(w http.ResponseWriter, r *http.Request) {
	var req supplierReturnRequest
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

	result, err := h.service.ReturnToSupplier(r.Context(), ReturnInput{
		BranchID:     req.BranchID,
		Date:         date,
		HandledBy:    shared.ActorFromContext(r.Context()),
		PurchaseRef:  req.PurchaseRef,
		Lines:        req.Lines,
		RefundToCash: req.RefundToCash,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("supplier return recorded", "return_no", result.ReturnNo, "branch_id", req.BranchID)
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoLines), errors.Is(err, ErrInvalidLine), errors.Is(err, shared.ErrAmountOverflow):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	case errors.Is(err, costing.ErrInsufficientStock), errors.Is(err, posting.ErrAmountMismatch):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, err))
	default:
		h.logger.Error("procurement operation failed", "error", err)
		httpx.RespondError(w, err)
	}
}
