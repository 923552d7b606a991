package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pronas-pcd/pronas-core/internal/identity"
	"github.com/pronas-pcd/pronas-core/internal/platform/httpx"
	"github.com/pronas-pcd/pronas-core/internal/shared"
)

// Handler wires the authentication endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	mw        Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		mw:        mw,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes. loginLimit is the tighter, login-only
// budget that blunts credential stuffing independent of the general limit.
func (h *Handler) MountRoutes(r chi.Router, loginLimit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(loginLimit)
		r.Post("/login", h.handleLogin)
	})
	r.Post("/refresh", h.handleRefresh)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Authenticate)
		r.Post("/logout", h.handleLogout)
		r.Post("/password", h.handleChangeSecret)
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	Tokens
	Identity *IdentitySummary `json:"identity"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	meta := shared.MetaFromRequest(r)
	tokens, summary, err := h.service.Login(r.Context(), req.Email, req.Password, meta)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{Tokens: *tokens, Identity: summary})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	meta := shared.MetaFromRequest(r)
	tokens, summary, err := h.service.Refresh(r.Context(), req.RefreshToken, meta)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{Tokens: *tokens, Identity: summary})
}

type changeSecretRequest struct {
	IdentityID  int64  `json:"identity_id"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func (h *Handler) handleChangeSecret(w http.ResponseWriter, r *http.Request) {
	actor := identity.FromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, shared.ErrTokenInvalid)
		return
	}
	var req changeSecretRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	targetID := req.IdentityID
	if targetID == 0 {
		targetID = actor.ID
	}
	meta := shared.MetaFromContext(r.Context())
	if err := h.service.ChangeSecret(r.Context(), targetID, req.OldPassword, req.NewPassword, actor, meta); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ident := identity.FromContext(r.Context())
	if ident == nil {
		httpx.RespondError(w, shared.ErrTokenInvalid)
		return
	}
	h.service.Logout(r.Context(), ident, shared.MetaFromContext(r.Context()))
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
