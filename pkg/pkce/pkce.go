// Package pkce implements the client side of RFC 7636 Proof Key for Code
// Exchange, used when talking to the OIDC provider's token endpoint.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// ChallengeMethod represents the PKCE challenge method
type ChallengeMethod string

const (
	// ChallengePlain represents the "plain" challenge method (not recommended for production)
	ChallengePlain ChallengeMethod = "plain"
	// ChallengeS256 represents the "S256" challenge method (recommended)
	ChallengeS256 ChallengeMethod = "S256"
)

// CodeVerifier represents a PKCE code verifier
type CodeVerifier struct {
	Value string
}

// CodeChallenge represents a PKCE code challenge
type CodeChallenge struct {
	Value  string
	Method ChallengeMethod
}

// GenerateCodeVerifier generates a cryptographically random code verifier
// The code verifier should be a cryptographically random string using the characters
// [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~", with a minimum length of 43 characters
// and a maximum length of 128 characters.
func GenerateCodeVerifier() (*CodeVerifier, error) {
	// Generate 32 random bytes (will result in 43 characters when base64url encoded)
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// Base64url encode without padding
	verifier := base64.RawURLEncoding.EncodeToString(bytes)

	return &CodeVerifier{Value: verifier}, nil
}

// GenerateCodeChallenge generates a code challenge from the code verifier using the specified method
func (cv *CodeVerifier) GenerateCodeChallenge(method ChallengeMethod) (*CodeChallenge, error) {
	switch method {
	case ChallengePlain:
		return &CodeChallenge{
			Value:  cv.Value,
			Method: ChallengePlain,
		}, nil
	case ChallengeS256:
		hash := sha256.Sum256([]byte(cv.Value))
		challenge := base64.RawURLEncoding.EncodeToString(hash[:])
		return &CodeChallenge{
			Value:  challenge,
			Method: ChallengeS256,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported challenge method: %s", method)
	}
}
