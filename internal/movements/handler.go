package movements

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/inventory"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for one movement variant. The same handler
// is mounted once per variant under its own route prefix.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a movement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Get("/{id}/lines", h.lines)
	r.Post("/{id}/complete", h.complete)
	r.Post("/{id}/cancel", h.cancel)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	warehouseID, _ := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)

	filter := ListFilter{
		WarehouseID: warehouseID,
		Search:      q.Get("search"),
		Page:        page,
		Limit:       limit,
	}
	if s := q.Get("status"); s != "" {
		status := Status(s)
		filter.Status = &status
	}
	if s := q.Get("from"); s != "" {
		if date, err := time.Parse("2006-01-02", s); err == nil {
			filter.DateFrom = date
		}
	}
	if s := q.Get("to"); s != "" {
		if date, err := time.Parse("2006-01-02", s); err == nil {
			filter.DateTo = date.Add(24*time.Hour - time.Nanosecond)
		}
	}

	docs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements failed", slog.String("type", string(h.service.Definition().Type)), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      docs,
		"pagination": shared.NewPagination(page, limit, total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.ToInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	doc, err := h.service.Create(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "create movement failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.respondError(w, "get movement failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.ToInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	doc, err := h.service.Update(r.Context(), id, input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "update movement failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) lines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	lines, err := h.service.GetLines(r.Context(), id)
	if err != nil {
		h.respondError(w, "get movement lines failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": lines})
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Complete(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "complete movement failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, "cancel movement failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, msg string, err error) {
	var refErr *ReferenceError
	switch {
	case errors.As(err, &refErr):
		httpx.Problem(w, http.StatusBadRequest, "Reference Not Found", refErr.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotEditable),
		errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrAlreadyCancelled):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrEmptyLines),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidCheckQty),
		errors.Is(err, ErrSameWarehouse),
		errors.Is(err, ErrWarehouseRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case db.IsConflict(err):
		httpx.Problem(w, http.StatusConflict, "Conflict", "the operation hit concurrent activity, retry")
	default:
		h.logger.Error(msg, slog.String("type", string(h.service.Definition().Type)), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
