package oidc

import (
	"regexp"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/simple-notes/pkg/apperrors"
)

// Claims is the merged, validated identity extracted from a login attempt.
type Claims struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// idTokenClaims is the subset of ID token claims the flow uses. The token
// arrived over TLS directly from the token endpoint, so its payload is read
// without signature verification.
type idTokenClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	Picture           string `json:"picture"`
	PreferredUsername string `json:"preferred_username"`
	jwt.RegisteredClaims
}

// parseIDToken extracts claims from a raw ID token. Returns zero claims
// when the token is absent or unparseable, the flow can still proceed on
// userinfo alone.
func parseIDToken(raw string) idTokenClaims {
	var claims idTokenClaims
	if raw == "" {
		return claims
	}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return idTokenClaims{}
	}
	return claims
}

// mergeClaims combines ID token claims with the userinfo response, with
// userinfo taking precedence, and validates the required fields. The
// display name falls back to the email's local part when neither source
// carries one.
func mergeClaims(idToken idTokenClaims, userinfo *UserInfo) (Claims, error) {
	var merged Claims
	if userinfo != nil {
		merged = Claims{
			Subject: userinfo.Subject,
			Email:   userinfo.Email,
			Name:    strings.TrimSpace(userinfo.Name),
			Picture: userinfo.Picture,
		}
	}
	if merged.Subject == "" {
		merged.Subject = idToken.Subject
	}
	if merged.Email == "" {
		merged.Email = idToken.Email
	}
	if merged.Name == "" {
		merged.Name = idToken.Name
	}
	if merged.Picture == "" {
		merged.Picture = idToken.Picture
	}

	if merged.Email == "" || merged.Subject == "" {
		return Claims{}, apperrors.New(apperrors.ErrCodeClaimsInvalid,
			"OIDC provider did not return required claims (email, sub)")
	}
	if len(merged.Email) > 255 || !emailPattern.MatchString(merged.Email) {
		return Claims{}, apperrors.New(apperrors.ErrCodeClaimsInvalid,
			"OIDC provider returned an invalid email claim")
	}

	if merged.Name == "" && userinfo != nil {
		merged.Name = userinfo.PreferredUsername
	}
	if merged.Name == "" {
		merged.Name = idToken.PreferredUsername
	}
	if merged.Name == "" {
		merged.Name = strings.SplitN(merged.Email, "@", 2)[0]
	}
	return merged, nil
}
