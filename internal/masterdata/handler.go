package masterdata

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian/internal/platform/httpx"
)

// Handler wires HTTP endpoints for branches and items.
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

// MountRoutes registers masterdata routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/branches", func(r chi.Router) {
		r.Get("/", h.listBranches)
		r.Post("/", h.createBranch)
		r.Get("/{id}", h.getBranch)
		r.Delete("/{id}", h.deactivateBranch)
	})
	r.Route("/items", func(r chi.Router) {
		r.Get("/", h.listItems)
		r.Post("/", h.createItem)
		r.Get("/{id}", h.getItem)
		r.Delete("/{id}", h.deactivateItem)
	})
}

func (h *Handler) listBranches(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	branches, err := h.service.ListBranches(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("list branches failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"branches": branches, "count": len(branches)})
}

func (h *Handler) createBranch(w http.ResponseWriter, r *http.Request) {
	var in CreateBranchInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid json body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	branch, err := h.service.CreateBranch(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("branch created", "code", branch.Code, "id", branch.ID)
	httpx.JSON(w, http.StatusCreated, branch)
}

func (h *Handler) getBranch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid branch id", httpx.ErrValidation))
		return
	}
	branch, err := h.service.GetBranch(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) deactivateBranch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid branch id", httpx.ErrValidation))
		return
	}
	if err := h.service.DeactivateBranch(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	items, pg, err := h.service.ListItems(r.Context(), activeOnly, page, perPage)
	if err != nil {
		h.logger.Error("list items failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "pagination": pg})
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var in CreateItemInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid json body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	item, err := h.service.CreateItem(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Info("item created", "sku", item.SKU, "id", item.ID)
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deactivateItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	if err := h.service.DeactivateItem(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBranchNotFound), errors.Is(err, ErrItemNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicateCode):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrDuplicate, err))
	default:
		h.logger.Error("masterdata operation failed", "error", err)
		httpx.RespondError(w, err)
	}
}
