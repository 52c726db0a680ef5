package transfer

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian/internal/costing"
	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler wires HTTP endpoints for branch transfers.
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

// MountRoutes registers transfer routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/", h.list)
	r.Post("/{id}/receive", h.receive)
}

type createRequest struct {
	FromBranchID int64        `json:"from_branch_id" validate:"required"`
	ToBranchID   int64        `json:"to_branch_id" validate:"required"`
	Items        []CreateItem `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid json body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	tr, err := h.service.Create(r.Context(), CreateInput{
		FromBranchID: req.FromBranchID,
		ToBranchID:   req.ToBranchID,
		CreatedBy:    shared.ActorFromContext(r.Context()),
		Items:        req.Items,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("transfer created", "transfer_no", tr.TransferNo,
		"from_branch_id", req.FromBranchID, "to_branch_id", req.ToBranchID)
	httpx.JSON(w, http.StatusCreated, tr)
}

type receiveRequest struct {
	Received []ReceivedItem `json:"received" validate:"required,min=1,dive"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid transfer id", httpx.ErrValidation))
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid json body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	tr, err := h.service.Receive(r.Context(), ReceiveInput{
		TransferID: id,
		ReceivedBy: shared.ActorFromContext(r.Context()),
		Received:   req.Received,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("transfer received", "transfer_no", tr.TransferNo, "status", string(tr.Status))
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid transfer id", httpx.ErrValidation))
		return
	}
	tr, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tr)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branch_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: branch_id required", httpx.ErrValidation))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	transfers, err := h.service.List(r.Context(), branchID, limit)
	if err != nil {
		h.logger.Error("list transfers failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers, "count": len(transfers)})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTransferNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrAlreadyReceived):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
	case errors.Is(err, ErrSameBranch), errors.Is(err, ErrNoItems), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrUnknownItem):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
	case errors.Is(err, costing.ErrInsufficientStock):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, err))
	default:
		h.logger.Error("transfer operation failed", "error", err)
		httpx.RespondError(w, err)
	}
}
