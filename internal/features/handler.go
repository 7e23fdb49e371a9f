package features

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finverse/finverse/internal/platform/httpx"
)

// Handler exposes the Product Lifecycle Manager endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the features handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers feature routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/admin/features", h.list)
	r.Put("/admin/features/{key}", h.update)
}

type featureResponse struct {
	Feature
	View View `json:"view"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		h.logger.Error("list features", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]featureResponse, 0, len(list))
	for _, f := range list {
		out = append(out, featureResponse{Feature: f, View: Present(f)})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type updateRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var body updateRequest
	if err := httpx.DecodeJSON(r, &body); err != nil || body.Enabled == nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "enabled is required")
		return
	}
	f, err := h.service.SetEnabled(r.Context(), chi.URLParam(r, "key"), *body.Enabled)
	if err != nil {
		if errors.Is(err, ErrUnknownFeature) {
			httpx.RespondError(w, httpx.Wrap(httpx.ErrNotFound, err))
			return
		}
		h.logger.Error("update feature", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, featureResponse{Feature: f, View: Present(f)})
}
