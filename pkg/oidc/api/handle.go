package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-notes/pkg/apperrors"
	"github.com/tendant/simple-notes/pkg/oidc"
	"github.com/tendant/simple-notes/pkg/user"
)

// Handle handles HTTP requests for the federated login flow
type Handle struct {
	oidcService *oidc.Service
}

// NewHandle creates a new OIDC API handler
func NewHandle(oidcService *oidc.Service) *Handle {
	return &Handle{oidcService: oidcService}
}

// ExchangeRequest represents the request body for code exchange
type ExchangeRequest struct {
	Code string `json:"code"`
}

// MobileExchangeRequest represents the request body for the native-app flow
type MobileExchangeRequest struct {
	AccessToken string `json:"access_token"`
}

// UserPayload is the public projection of a user record
type UserPayload struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
	IsAdmin      bool   `json:"is_admin"`
	Status       string `json:"status"`
}

// ExchangeResponse is the response body for both exchange endpoints
type ExchangeResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *UserPayload `json:"user"`
	RedirectURL  string       `json:"redirectUrl"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func toUserPayload(u *user.User) *UserPayload {
	if u == nil {
		return nil
	}
	payload := &UserPayload{}
	if err := copier.Copy(payload, u); err != nil {
		slog.Error("Failed to map user payload", "err", err)
	}
	payload.Status = string(u.Status)
	return payload
}

func renderError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	render.Status(r, apperrors.MapErrorCodeToHTTPStatus(apperrors.GetCode(err)))
	render.JSON(w, r, ErrorResponse{
		Status:  "error",
		Message: apperrors.UserMessage(err, fallback),
	})
}

// Config handles GET /config, the public projection
func (h *Handle) Config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.oidcService.Resolver().GetPublicConfig(r.Context())
	if err != nil {
		slog.Error("Failed to resolve OIDC config", "err", err)
		renderError(w, r, err, "Failed to resolve OIDC configuration")
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, cfg)
}

// Initiate handles GET /initiate?redirect= and 302-redirects to the provider
func (h *Handle) Initiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	enabled, err := h.oidcService.Resolver().IsEnabled(ctx)
	if err != nil {
		slog.Error("Failed to resolve OIDC config", "err", err)
		renderError(w, r, err, "Failed to initiate OIDC login")
		return
	}
	if !enabled {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "OIDC is not enabled"})
		return
	}

	authURL, err := h.oidcService.GetAuthorizationURL(ctx, r.URL.Query().Get("redirect"))
	if err != nil {
		slog.Error("Failed to initiate OIDC login", "err", err)
		renderError(w, r, err, "Failed to initiate OIDC login")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET /callback. The provider lands here; the response is
// always a 302 to the front-end login route carrying either a one-time
// exchange code or an error message, never tokens.
func (h *Handle) Callback(w http.ResponseWriter, r *http.Request) {
	appURL := h.oidcService.Resolver().AppURL()
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		msg := query.Get("error_description")
		if msg == "" {
			msg = providerErr
		}
		h.redirectWithError(w, r, appURL, msg)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		h.redirectWithError(w, r, appURL, "Missing authorization code or state")
		return
	}

	callbackURL := appURL + r.URL.RequestURI()
	result, err := h.oidcService.HandleCallback(r.Context(), callbackURL, state)
	if err != nil {
		slog.Error("OIDC callback failed", "err", err)
		h.redirectWithError(w, r, appURL, apperrors.UserMessage(err, "Failed to process OIDC callback"))
		return
	}

	exchangeCode, err := h.oidcService.CreateExchangeCode(result)
	if err != nil {
		slog.Error("Failed to create exchange code", "err", err)
		h.redirectWithError(w, r, appURL, "Failed to process OIDC callback")
		return
	}

	target := appURL + "/login?code=" + url.QueryEscape(exchangeCode) +
		"&redirect=" + url.QueryEscape(result.RedirectURL)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handle) redirectWithError(w http.ResponseWriter, r *http.Request, appURL, msg string) {
	http.Redirect(w, r, appURL+"/login?error="+url.QueryEscape(msg), http.StatusFound)
}

// Exchange handles POST /exchange, consuming a one-time code
func (h *Handle) Exchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Missing or invalid code"})
		return
	}

	result, err := h.oidcService.ExchangeCode(req.Code)
	if err != nil {
		renderError(w, r, err, "Missing or invalid code")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ExchangeResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         toUserPayload(result.User),
		RedirectURL:  result.RedirectURL,
	})
}

// ExchangeMobile handles POST /exchange/mobile for native-app flows
func (h *Handle) ExchangeMobile(w http.ResponseWriter, r *http.Request) {
	var req MobileExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccessToken == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Missing or invalid access_token"})
		return
	}

	result, err := h.oidcService.ExchangeMobileToken(r.Context(), req.AccessToken)
	if err != nil {
		slog.Info("Mobile token exchange failed", "err", err)
		renderError(w, r, err, "Failed to exchange token")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ExchangeResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         toUserPayload(result.User),
		RedirectURL:  result.RedirectURL,
	})
}

// RegisterRoutes registers the public OIDC routes
func (h *Handle) RegisterRoutes(r chi.Router) {
	r.Get("/config", h.Config)
	r.Get("/initiate", h.Initiate)
	r.Get("/callback", h.Callback)
	r.Post("/exchange", h.Exchange)
	r.Post("/exchange/mobile", h.ExchangeMobile)
}
