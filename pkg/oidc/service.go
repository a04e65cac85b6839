package oidc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/tendant/simple-notes/pkg/apperrors"
	"github.com/tendant/simple-notes/pkg/auth"
	"github.com/tendant/simple-notes/pkg/pkce"
	"github.com/tendant/simple-notes/pkg/user"
)

// AuthResult is the outcome of a successful federated login.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         *user.User
	RedirectURL  string
}

// Service orchestrates the three-phase federated login flow: initiation,
// provider callback, and one-time code exchange.
type Service struct {
	authService *auth.Service
	resolver    *ConfigResolver
	client      *ProviderClient
	states      *StateStore
	reconciler  *Reconciler
}

// NewService creates the OIDC orchestrator
func NewService(
	authService *auth.Service,
	resolver *ConfigResolver,
	client *ProviderClient,
	states *StateStore,
	reconciler *Reconciler,
) *Service {
	return &Service{
		authService: authService,
		resolver:    resolver,
		client:      client,
		states:      states,
		reconciler:  reconciler,
	}
}

// Resolver exposes the config resolver for the HTTP layer.
func (s *Service) Resolver() *ConfigResolver {
	return s.resolver
}

// GetAuthorizationURL starts a login attempt: validates the post-login
// redirect, stores fresh CSRF state with a PKCE verifier, and returns the
// provider's authorize URL.
func (s *Service) GetAuthorizationURL(ctx context.Context, redirectURL string) (string, error) {
	validatedRedirect, err := s.ValidateRedirectURL(redirectURL, "/")
	if err != nil {
		return "", err
	}

	state, err := randomToken(32)
	if err != nil {
		return "", err
	}

	verifier, err := pkce.GenerateCodeVerifier()
	if err != nil {
		return "", fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}
	challenge, err := verifier.GenerateCodeChallenge(pkce.ChallengeS256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PKCE challenge: %w", err)
	}

	s.states.StoreState(state, verifier.Value, validatedRedirect)

	return s.client.BuildAuthorizationURL(ctx, state, challenge.Value)
}

// HandleCallback runs the callback phase: consumes the CSRF state,
// exchanges the code, merges claims, reconciles the user, and mints a
// token pair. The state is removed in the same critical section that reads
// it, so concurrent callbacks racing on one state token cannot both pass.
func (s *Service) HandleCallback(ctx context.Context, callbackURL, state string) (*AuthResult, error) {
	pending, ok := s.states.ConsumeState(state)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeStateInvalid, "Invalid or expired state")
	}

	parsed, err := url.Parse(callbackURL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "Invalid callback URL")
	}

	tokens, err := s.client.ExchangeCodeForTokens(ctx, parsed, state, pending.CodeVerifier)
	if err != nil {
		return nil, err
	}

	idClaims := parseIDToken(tokens.IDToken)
	userinfo, err := s.client.FetchUserInfo(ctx, tokens.AccessToken, idClaims.Subject)
	if err != nil {
		return nil, err
	}

	claims, err := mergeClaims(idClaims, userinfo)
	if err != nil {
		return nil, err
	}

	result, err := s.completeLogin(ctx, claims)
	if err != nil {
		return nil, err
	}

	redirect, err := s.ValidateRedirectURL(pending.RedirectURL, "/")
	if err != nil {
		redirect = "/"
	}
	result.RedirectURL = redirect
	return result, nil
}

// completeLogin is the shared tail of the web and mobile flows:
// reconciliation, the pending-approval gate, and token pair minting.
func (s *Service) completeLogin(ctx context.Context, claims Claims) (*AuthResult, error) {
	u, err := s.reconciler.FindOrCreateUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	if u.Status == user.StatusPending {
		return nil, apperrors.New(apperrors.ErrCodePendingApproval,
			"Account pending approval. Please wait for an administrator to approve your account.")
	}

	tokens, err := s.authService.CreateTokenPair(ctx, u.ID, u.Email)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         u,
	}, nil
}

// CreateExchangeCode parks a completed auth result under a one-time code
// so the browser redirect never carries tokens.
func (s *Service) CreateExchangeCode(result *AuthResult) (string, error) {
	code, err := randomToken(32)
	if err != nil {
		return "", err
	}
	redirect := result.RedirectURL
	if redirect == "" {
		redirect = "/"
	}
	s.states.StoreExchangeResult(code, ExchangeResult{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         result.User,
		RedirectURL:  redirect,
	})
	return code, nil
}

// ExchangeCode consumes a one-time code for its auth result.
func (s *Service) ExchangeCode(code string) (*AuthResult, error) {
	result, ok := s.states.ConsumeExchangeCode(code)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeStateInvalid,
			"Invalid or expired login code. Please sign in again from the login page.")
	}
	return &AuthResult{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         result.User,
		RedirectURL:  result.RedirectURL,
	}, nil
}

// ExchangeMobileToken accepts a provider access token obtained by a native
// app and runs the shared reconciliation and minting path. The flow trusts
// the provider's userinfo endpoint to vouch for the token; no ID token
// exists here to cross-check the subject against.
func (s *Service) ExchangeMobileToken(ctx context.Context, accessToken string) (*AuthResult, error) {
	userinfo, err := s.client.FetchUserInfo(ctx, accessToken, "")
	if err != nil {
		return nil, err
	}
	if userinfo == nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidCredentials,
			"Invalid or expired OIDC token. Please sign in again.")
	}

	claims, err := mergeClaims(idTokenClaims{}, userinfo)
	if err != nil {
		return nil, err
	}

	result, err := s.completeLogin(ctx, claims)
	if err != nil {
		return nil, err
	}
	result.RedirectURL = "/"
	return result, nil
}

// ValidateRedirectURL accepts only same-site targets: paths starting with
// a single slash and free of "//", or absolute URLs on the configured app
// origin. Anything else yields the fallback, or an error when no fallback
// is given.
func (s *Service) ValidateRedirectURL(redirectURL, fallback string) (string, error) {
	trimmed := strings.TrimSpace(redirectURL)
	if trimmed == "" {
		return fallback, nil
	}
	// Protocol-relative URLs escape origin checks.
	if strings.HasPrefix(trimmed, "//") {
		return s.redirectFallback(trimmed, fallback)
	}
	if strings.HasPrefix(trimmed, "/") && !strings.Contains(trimmed, "//") {
		return trimmed, nil
	}
	appURL, err := url.Parse(s.resolver.AppURL())
	if err == nil {
		if target, err := url.Parse(trimmed); err == nil {
			if target.Scheme == appURL.Scheme && target.Host == appURL.Host && target.Host != "" {
				return trimmed, nil
			}
		} else {
			slog.Warn("Invalid redirect URL", "redirect_url", trimmed)
		}
	}
	return s.redirectFallback(trimmed, fallback)
}

func (s *Service) redirectFallback(rejected, fallback string) (string, error) {
	if fallback != "" {
		return fallback, nil
	}
	slog.Warn("Rejected redirect URL", "redirect_url", rejected)
	return "", apperrors.New(apperrors.ErrCodeInvalidInput, "Invalid redirect URL")
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
