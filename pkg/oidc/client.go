package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/simple-notes/pkg/apperrors"
)

const (
	discoveryPath = "/.well-known/openid-configuration"
	callbackPath  = "/api/auth/oidc/callback"

	// Fixed scope for every authorization request.
	authorizationScope = "openid email profile"

	providerTimeout = 10 * time.Second
)

// discoveryDocument is the subset of the provider metadata the client uses.
type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

// TokenResponse is the provider's token endpoint response.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// UserInfo is the provider's userinfo response.
type UserInfo struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	Picture           string `json:"picture"`
	PreferredUsername string `json:"preferred_username"`
}

// providerErrorBody is the OAuth2 structured error payload.
type providerErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ProviderClient talks to whatever identity provider is configured.
// Discovery runs lazily on each call so a settings change takes effect
// without a restart.
type ProviderClient struct {
	resolver *ConfigResolver
	client   *http.Client
}

// NewProviderClient creates a provider client using the given resolver
func NewProviderClient(resolver *ConfigResolver) *ProviderClient {
	return &ProviderClient{
		resolver: resolver,
		client:   &http.Client{Timeout: providerTimeout},
	}
}

// CallbackURL returns the fixed redirect URI registered with the provider.
// It is derived from the configured app URL, never from request input.
func (c *ProviderClient) CallbackURL() string {
	return c.resolver.AppURL() + callbackPath
}

func (c *ProviderClient) discover(ctx context.Context) (Config, *discoveryDocument, error) {
	cfg, err := c.resolver.GetConfig(ctx)
	if err != nil {
		return Config{}, nil, err
	}
	if !cfg.Usable() {
		return Config{}, nil, apperrors.New(apperrors.ErrCodeOidcNotConfigured, "OIDC is not properly configured")
	}

	discoveryURL := strings.TrimRight(cfg.IssuerURL, "/") + discoveryPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return Config{}, nil, fmt.Errorf("failed to build discovery request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("Failed OIDC discovery", "issuer", cfg.IssuerURL, "err", err)
		return Config{}, nil, apperrors.Wrap(err, apperrors.ErrCodeProviderError,
			"Failed to initialize OIDC configuration. Check your OIDC settings.")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Config{}, nil, apperrors.Newf(apperrors.ErrCodeProviderError,
			"OIDC discovery failed with status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Config{}, nil, apperrors.Wrap(err, apperrors.ErrCodeProviderError,
			"Failed to parse OIDC discovery document")
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" {
		return Config{}, nil, apperrors.New(apperrors.ErrCodeProviderError,
			"OIDC discovery document is missing required endpoints")
	}
	return cfg, &doc, nil
}

// BuildAuthorizationURL constructs the provider's authorize URL carrying
// the CSRF state and, when set, the S256 PKCE challenge.
func (c *ProviderClient) BuildAuthorizationURL(ctx context.Context, state, codeChallenge string) (string, error) {
	cfg, doc, err := c.discover(ctx)
	if err != nil {
		return "", err
	}

	authURL, err := url.Parse(doc.AuthorizationEndpoint)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeProviderError, "Invalid authorization endpoint")
	}

	params := authURL.Query()
	params.Set("client_id", cfg.ClientID)
	params.Set("redirect_uri", c.CallbackURL())
	params.Set("response_type", "code")
	params.Set("scope", authorizationScope)
	params.Set("state", state)
	if codeChallenge != "" {
		params.Set("code_challenge", codeChallenge)
		params.Set("code_challenge_method", "S256")
	}
	authURL.RawQuery = params.Encode()
	return authURL.String(), nil
}

// ExchangeCodeForTokens performs the authorization-code grant using the
// code and state carried in the provider's callback URL. The state echoed
// by the provider must match expectedState even though the state store has
// already verified it once.
func (c *ProviderClient) ExchangeCodeForTokens(ctx context.Context, callbackURL *url.URL, expectedState, codeVerifier string) (*TokenResponse, error) {
	cfg, doc, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	query := callbackURL.Query()
	if query.Get("state") != expectedState {
		return nil, apperrors.New(apperrors.ErrCodeStateInvalid, "State mismatch in callback")
	}
	code := query.Get("code")
	if code == "" {
		return nil, apperrors.New(apperrors.ErrCodeProviderError, "Missing authorization code in callback")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.CallbackURL())
	form.Set("client_id", cfg.ClientID)
	// Public clients still send an empty client_secret field, some
	// providers require it to be present.
	form.Set("client_secret", cfg.ClientSecret)
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, doc.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("Failed token exchange", "err", err)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderError, "Failed to exchange authorization code")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderError, "Failed to read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.ErrCodeProviderError, extractProviderError(body, resp.StatusCode))
	}

	var tokens TokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderError, "Failed to parse token response")
	}
	if tokens.AccessToken == "" {
		return nil, apperrors.New(apperrors.ErrCodeProviderError, "Token response is missing access_token")
	}
	return &tokens, nil
}

// FetchUserInfo calls the provider's userinfo endpoint. Transport and
// provider errors return nil without error because userinfo is optional;
// a subject mismatch against expectedSubject is a hard failure.
func (c *ProviderClient) FetchUserInfo(ctx context.Context, accessToken, expectedSubject string) (*UserInfo, error) {
	_, doc, err := c.discover(ctx)
	if err != nil {
		slog.Warn("Failed to fetch userinfo", "err", err)
		return nil, nil
	}
	if doc.UserinfoEndpoint == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.UserinfoEndpoint, nil)
	if err != nil {
		return nil, nil
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("Failed to fetch userinfo", "err", err)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Userinfo request rejected", "status", resp.StatusCode)
		return nil, nil
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		slog.Warn("Failed to parse userinfo response", "err", err)
		return nil, nil
	}

	if expectedSubject != "" && info.Subject != expectedSubject {
		return nil, apperrors.New(apperrors.ErrCodeClaimsInvalid,
			"Userinfo subject does not match ID token subject")
	}
	return &info, nil
}

func extractProviderError(body []byte, status int) string {
	var perr providerErrorBody
	if err := json.Unmarshal(body, &perr); err == nil && perr.Error != "" {
		if perr.ErrorDescription != "" {
			return fmt.Sprintf("Provider error: %s (%s)", perr.Error, perr.ErrorDescription)
		}
		return fmt.Sprintf("Provider error: %s", perr.Error)
	}
	return fmt.Sprintf("Provider returned status %d", status)
}
