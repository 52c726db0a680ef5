package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian/internal/platform/httpx"
	"github.com/meridian-retail/meridian/internal/shared"
)

// Handler wires HTTP endpoints for manual journal posting and ledger reads.
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

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/journals", h.postJournal)
	r.Get("/journals/{id}", h.getJournal)
	r.Get("/ledger", h.listRows)
}

type postLineRequest struct {
	AccountID int64 `json:"account_id" validate:"required"`
	Debit     int64 `json:"debit" validate:"gte=0"`
	Credit    int64 `json:"credit" validate:"gte=0"`
}

type postJournalRequest struct {
	Date      string            `json:"date" validate:"required"`
	RefType   string            `json:"ref_type" validate:"required"`
	RefID     string            `json:"ref_id"`
	Narration string            `json:"narration"`
	BranchID  int64             `json:"branch_id" validate:"required"`
	Lines     []postLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	var req postJournalRequest
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

	in := PostingInput{
		Date:      date,
		RefType:   RefManual,
		RefID:     req.RefID,
		Narration: req.Narration,
		BranchID:  req.BranchID,
		PostedBy:  shared.ActorFromContext(r.Context()),
	}
	if req.RefType != "" {
		in.RefType = RefType(req.RefType)
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput{
			AccountID: line.AccountID,
			Debit:     shared.Money(line.Debit),
			Credit:    shared.Money(line.Credit),
		})
	}

	result, err := h.service.Post(r.Context(), in)
	if err != nil {
		h.respondPostError(w, err)
		return
	}
	h.logger.Info("journal posted", "voucher_no", result.VoucherNo, "branch_id", req.BranchID)
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) respondPostError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewLines):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, err))
	case errors.Is(err, ErrBranchNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
	case errors.Is(err, ErrVoucherConflict):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrConflict, err))
	default:
		h.logger.Error("post journal failed", "error", err)
		httpx.RespondError(w, err)
	}
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid journal id", httpx.ErrValidation))
		return
	}
	entry, err := h.service.GetJournal(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrJournalNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err))
			return
		}
		h.logger.Error("get journal failed", "error", err, "id", id)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) listRows(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: account_id required", httpx.ErrValidation))
		return
	}
	branchID, err := strconv.ParseInt(r.URL.Query().Get("branch_id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: branch_id required", httpx.ErrValidation))
		return
	}
	var from, to time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: from must be YYYY-MM-DD", httpx.ErrValidation))
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: to must be YYYY-MM-DD", httpx.ErrValidation))
			return
		}
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	rows, err := h.service.ListRows(r.Context(), accountID, branchID, from, to, limit)
	if err != nil {
		h.logger.Error("list ledger rows failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows, "count": len(rows)})
}
