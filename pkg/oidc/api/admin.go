package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-notes/pkg/auth"
	"github.com/tendant/simple-notes/pkg/oidc"
	"github.com/tendant/simple-notes/pkg/settings"
	"github.com/tendant/simple-notes/pkg/user"
)

// AdminHandle handles the admin-only settings endpoints
type AdminHandle struct {
	oidcService     *oidc.Service
	userService     *user.Service
	settingsService *settings.Service
}

// NewAdminHandle creates a new admin settings handler
func NewAdminHandle(oidcService *oidc.Service, userService *user.Service, settingsService *settings.Service) *AdminHandle {
	return &AdminHandle{
		oidcService:     oidcService,
		userService:     userService,
		settingsService: settingsService,
	}
}

// UpdateSettingsRequest is a partial OIDC settings change; absent fields
// are left untouched.
type UpdateSettingsRequest struct {
	Enabled             *bool   `json:"enabled"`
	ProviderName        *string `json:"provider_name"`
	IssuerURL           *string `json:"issuer_url"`
	ClientID            *string `json:"client_id"`
	ClientSecret        *string `json:"client_secret"`
	DisableInternalAuth *bool   `json:"disable_internal_auth"`
}

// SetRegistrationModeRequest represents the request body for the policy change
type SetRegistrationModeRequest struct {
	Mode string `json:"mode"`
}

// requireAdmin resolves the authenticated user and rejects non-admins.
func (h *AdminHandle) requireAdmin(w http.ResponseWriter, r *http.Request) *user.User {
	authedUser, err := auth.UserFromContext(r.Context())
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Unauthorized"})
		return nil
	}
	u, err := h.userService.Get(r.Context(), authedUser.UserID)
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Unauthorized"})
		return nil
	}
	if !u.IsAdmin {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Admin access required"})
		return nil
	}
	return u
}

// GetSettings handles GET /admin/oidc-settings
func (h *AdminHandle) GetSettings(w http.ResponseWriter, r *http.Request) {
	if h.requireAdmin(w, r) == nil {
		return
	}

	cfg, err := h.oidcService.Resolver().GetAdminConfig(r.Context())
	if err != nil {
		slog.Error("Failed to resolve OIDC settings", "err", err)
		renderError(w, r, err, "Failed to resolve OIDC settings")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, cfg)
}

// UpdateSettings handles PATCH /admin/oidc-settings
func (h *AdminHandle) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	admin := h.requireAdmin(w, r)
	if admin == nil {
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Invalid request body"})
		return
	}

	err := h.oidcService.Resolver().SetSettings(r.Context(), oidc.SettingsUpdate{
		Enabled:             req.Enabled,
		ProviderName:        req.ProviderName,
		IssuerURL:           req.IssuerURL,
		ClientID:            req.ClientID,
		ClientSecret:        req.ClientSecret,
		DisableInternalAuth: req.DisableInternalAuth,
	})
	if err != nil {
		slog.Info("OIDC settings update rejected", "user_id", admin.ID, "err", err)
		renderError(w, r, err, "Failed to update OIDC settings")
		return
	}

	cfg, err := h.oidcService.Resolver().GetAdminConfig(r.Context())
	if err != nil {
		renderError(w, r, err, "Failed to resolve OIDC settings")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, cfg)
}

// SetRegistrationMode handles PUT /admin/registration-mode
func (h *AdminHandle) SetRegistrationMode(w http.ResponseWriter, r *http.Request) {
	admin := h.requireAdmin(w, r)
	if admin == nil {
		return
	}

	var req SetRegistrationModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Invalid request body"})
		return
	}

	if err := h.settingsService.SetRegistrationMode(r.Context(), settings.RegistrationMode(req.Mode)); err != nil {
		renderError(w, r, err, "Failed to set registration mode")
		return
	}

	slog.Info("Registration mode updated", "mode", req.Mode, "user_id", admin.ID)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"mode": req.Mode})
}

// RegisterRoutes registers the admin routes on an authenticated router group
func (h *AdminHandle) RegisterRoutes(r chi.Router) {
	r.Get("/oidc-settings", h.GetSettings)
	r.Patch("/oidc-settings", h.UpdateSettings)
	r.Put("/registration-mode", h.SetRegistrationMode)
}
