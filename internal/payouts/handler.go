package payouts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finverse/finverse/internal/platform/httpx"
	"github.com/finverse/finverse/internal/statement"
)

// Handler exposes payout request endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the payouts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers payout routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/finance/payouts", func(pr chi.Router) {
		pr.Get("/", h.list)
		pr.Post("/", h.create)
		pr.Post("/{id}/{action}", h.transition)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := statement.EntityKind("")
	if raw := q.Get("entity_kind"); raw != "" {
		parsed, ok := statement.ParseKind(raw)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unsupported entity_kind")
			return
		}
		kind = parsed
	}
	payouts, err := h.service.List(r.Context(), kind, q.Get("entity_id"))
	if err != nil {
		h.respond(w, "list payouts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payouts)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in RequestInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	payout, err := h.service.Request(r.Context(), in)
	if err != nil {
		h.respond(w, "request payout", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payout)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	var in TransitionInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
			return
		}
	}
	in.Action = Action(chi.URLParam(r, "action"))
	payout, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.respond(w, "transition payout", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payout)
}

func (h *Handler) respond(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInsufficientBalance):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
	case errors.Is(err, ErrInvalidTransition):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrConflict, err))
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrNotFound, err))
	default:
		if h.logger != nil {
			h.logger.Error(op, slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
