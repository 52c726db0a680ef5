package costing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Adjuster applies a manual stock adjustment together with its ledger
// posting. Implemented by the posting package so that stock mutation and
// journal commit or roll back as one transaction.
type Adjuster interface {
	Adjust(ctx context.Context, in AdjustInput) (shared.Money, error)
}

// Handler wires HTTP endpoints for stock visibility and manual adjustments.
// Consumption and receipt happen through the sales, procurement, and
// transfer orchestrators, not directly over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	adjuster  Adjuster
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, adjuster Adjuster) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		adjuster:  adjuster,
		validator: validator.New(),
	}
}

// MountRoutes registers stock routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/on-hand", h.onHand)
	r.Get("/layers", h.layers)
	r.Get("/movements", h.movements)
	r.Post("/adjustments", h.adjust)
}

func (h *Handler) onHand(w http.ResponseWriter, r *http.Request) {
	branchID, itemID, ok := h.branchItem(w, r)
	if !ok {
		return
	}
	snap, err := h.service.OnHand(r.Context(), branchID, itemID)
	if err != nil {
		h.logger.Error("on-hand lookup failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) layers(w http.ResponseWriter, r *http.Request) {
	branchID, itemID, ok := h.branchItem(w, r)
	if !ok {
		return
	}
	layers, err := h.service.Layers(r.Context(), branchID, itemID)
	if err != nil {
		h.logger.Error("list layers failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"layers": layers, "count": len(layers)})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	branchID, itemID, ok := h.branchItem(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	moves, err := h.service.Movements(r.Context(), branchID, itemID, limit)
	if err != nil {
		h.logger.Error("list movements failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": moves, "count": len(moves)})
}

type adjustRequest struct {
	BranchID int64  `json:"branch_id" validate:"required"`
	ItemID   int64  `json:"item_id" validate:"required"`
	Qty      int64  `json:"qty" validate:"required"`
	UnitCost int64  `json:"unit_cost" validate:"gte=0"`
	Note     string `json:"note" validate:"required,max=500"`
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid json body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	delta, err := h.adjuster.Adjust(r.Context(), AdjustInput{
		BranchID: req.BranchID,
		ItemID:   req.ItemID,
		Qty:      req.Qty,
		UnitCost: shared.Money(req.UnitCost),
		Note:     req.Note,
		ActorID:  shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		case errors.Is(err, ErrInsufficientStock):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, err))
		default:
			h.logger.Error("stock adjustment failed", "error", err)
			httpx.RespondError(w, err)
		}
		return
	}
	h.logger.Info("stock adjusted", "branch_id", req.BranchID, "item_id", req.ItemID,
		"qty", req.Qty, "cost_delta", int64(delta))
	httpx.JSON(w, http.StatusOK, map[string]any{"cost_delta": delta})
}

func (h *Handler) branchItem(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branch_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: branch_id required", httpx.ErrValidation))
		return 0, 0, false
	}
	itemID, err := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: item_id required", httpx.ErrValidation))
		return 0, 0, false
	}
	return branchID, itemID, true
}
