package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"
	"github.com/tendant/simple-notes/pkg/apperrors"
	"github.com/tendant/simple-notes/pkg/auth"
	"github.com/tendant/simple-notes/pkg/user"
)

const minPasswordLength = 8

// Handle handles HTTP requests for local authentication
type Handle struct {
	authService *auth.Service
}

// NewHandle creates a new auth API handler
func NewHandle(authService *auth.Service) *Handle {
	return &Handle{authService: authService}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// RefreshRequest represents the request body for token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UserResponse is the public projection of a user record
type UserResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
	IsAdmin      bool   `json:"is_admin"`
	Status       string `json:"status"`
}

// TokenResponse is the response body for every token-issuing endpoint
type TokenResponse struct {
	AccessToken  string        `json:"access_token,omitempty"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	User         *UserResponse `json:"user,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func toUserResponse(u *user.User) *UserResponse {
	if u == nil {
		return nil
	}
	resp := &UserResponse{}
	if err := copier.Copy(resp, u); err != nil {
		slog.Error("Failed to map user response", "err", err)
	}
	resp.Status = string(u.Status)
	return resp
}

func renderError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	render.Status(r, apperrors.MapErrorCodeToHTTPStatus(apperrors.GetCode(err)))
	render.JSON(w, r, ErrorResponse{
		Status:  "error",
		Message: apperrors.UserMessage(err, fallback),
	})
}

func renderValidationError(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Status: "error", Message: message})
}

func validEmail(email string) bool {
	if email == "" || len(email) > 255 {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}

// Login handles POST /login
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderValidationError(w, r, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		renderValidationError(w, r, "Email and password are required")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		slog.Info("Login failed", "email", req.Email, "err", err)
		renderError(w, r, err, "Login failed")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, TokenResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		User:         toUserResponse(result.User),
	})
}

// Register handles POST /register
func (h *Handle) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderValidationError(w, r, "Invalid request body")
		return
	}
	if !validEmail(req.Email) {
		renderValidationError(w, r, "A valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		renderValidationError(w, r, "Password must be at least 8 characters")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		renderValidationError(w, r, "Name is required")
		return
	}

	result, err := h.authService.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		slog.Info("Registration failed", "email", req.Email, "err", err)
		renderError(w, r, err, "Registration failed")
		return
	}

	resp := TokenResponse{
		User:    toUserResponse(result.User),
		Message: result.Message,
	}
	if result.Tokens != nil {
		resp.AccessToken = result.Tokens.AccessToken
		resp.RefreshToken = result.Tokens.RefreshToken
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// Refresh handles POST /refresh
func (h *Handle) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderValidationError(w, r, "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		renderValidationError(w, r, "Refresh token is required")
		return
	}

	tokens, err := h.authService.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		slog.Info("Token refresh failed", "err", err)
		renderError(w, r, err, "Token refresh failed")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
}

// RegistrationMode handles GET /registration-mode
func (h *Handle) RegistrationMode(w http.ResponseWriter, r *http.Request) {
	mode, err := h.authService.GetRegistrationMode(r.Context())
	if err != nil {
		slog.Error("Failed to get registration mode", "err", err)
		renderError(w, r, err, "Failed to get registration mode")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"mode": string(mode)})
}

// ChangePassword handles POST /password, on the authenticated router group
func (h *Handle) ChangePassword(w http.ResponseWriter, r *http.Request) {
	authedUser, err := auth.UserFromContext(r.Context())
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Unauthorized"})
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderValidationError(w, r, "Invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		renderValidationError(w, r, "Current and new passwords are required")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		renderValidationError(w, r, "Password must be at least 8 characters")
		return
	}

	if err := h.authService.ChangePassword(r.Context(), authedUser.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		slog.Info("Password change failed", "user_id", authedUser.UserID, "err", err)
		renderError(w, r, err, "Password change failed")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"message": "Password changed successfully"})
}

// Logout handles POST /logout, on the authenticated router group
func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	authedUser, err := auth.UserFromContext(r.Context())
	if err != nil {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{Status: "error", Message: "Unauthorized"})
		return
	}

	if err := h.authService.Logout(r.Context(), authedUser.UserID); err != nil {
		slog.Error("Logout failed", "user_id", authedUser.UserID, "err", err)
		renderError(w, r, err, "Logout failed")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"message": "Logged out"})
}

// RegisterRoutes registers the public auth routes
func (h *Handle) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/register", h.Register)
	r.Post("/refresh", h.Refresh)
	r.Get("/registration-mode", h.RegistrationMode)
}

// RegisterProtectedRoutes registers routes that require a verified access token
func (h *Handle) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/password", h.ChangePassword)
	r.Post("/logout", h.Logout)
}
