package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pronas-pcd/pronas-core/internal/platform/httpx"
	"github.com/pronas-pcd/pronas-core/internal/shared"
)

// Handler exposes the account provisioning endpoints. The route guards keep
// writes Admin-only; Auditors may read.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers identity routes on an authenticated router. The
// caller supplies the per-action route guards.
func (h *Handler) MountRoutes(r chi.Router, requireCreate, requireRead, requireUpdate func(http.Handler) http.Handler) {
	r.Group(func(gr chi.Router) {
		gr.Use(requireCreate)
		gr.Post("/", h.handleProvision)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(requireRead)
		gr.Get("/{identityID}", h.handleGet)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(requireUpdate)
		gr.Patch("/{identityID}/status", h.handleSetStatus)
	})
}

type provisionRequest struct {
	Email         string `json:"email" validate:"required,email"`
	FullName      string `json:"full_name" validate:"required,min=2"`
	Role          string `json:"role" validate:"required"`
	InstitutionID *int64 `json:"institution_id"`
	Password      string `json:"password" validate:"required,min=8"`
	ConsentGiven  bool   `json:"consent_given"`
}

type identityResponse struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	Role          string `json:"role"`
	InstitutionID *int64 `json:"institution_id,omitempty"`
	Active        bool   `json:"active"`
}

func toResponse(ident *Identity) identityResponse {
	return identityResponse{
		ID:            ident.ID,
		Email:         ident.Email,
		FullName:      ident.FullName,
		Role:          string(ident.Role),
		InstitutionID: ident.InstitutionID,
		Active:        ident.Active,
	}
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	actor := FromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, shared.ErrTokenInvalid)
		return
	}
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	ident, err := h.service.Provision(r.Context(), ProvisionInput{
		Email:         req.Email,
		FullName:      req.FullName,
		Role:          Role(req.Role),
		InstitutionID: req.InstitutionID,
		Password:      req.Password,
		ConsentGiven:  req.ConsentGiven,
	}, actor, shared.MetaFromRequest(r))
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			httpx.RespondError(w, httpx.ErrDuplicate)
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(ident))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "identityID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	ident, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(ident))
}

type statusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	actor := FromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, shared.ErrTokenInvalid)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "identityID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.SetStatus(r.Context(), id, *req.Active, actor, shared.MetaFromRequest(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"active": *req.Active})
}
