package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCodeVerifier(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	require.NoError(t, err)

	// RFC 7636: 43-128 characters from the unreserved set.
	assert.GreaterOrEqual(t, len(verifier.Value), 43)
	assert.LessOrEqual(t, len(verifier.Value), 128)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9\-._~]+$`), verifier.Value)

	other, err := GenerateCodeVerifier()
	require.NoError(t, err)
	assert.NotEqual(t, verifier.Value, other.Value)
}

func TestGenerateCodeChallengeS256(t *testing.T) {
	verifier := &CodeVerifier{Value: "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"}

	challenge, err := verifier.GenerateCodeChallenge(ChallengeS256)
	require.NoError(t, err)
	assert.Equal(t, ChallengeS256, challenge.Method)

	hash := sha256.Sum256([]byte(verifier.Value))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(hash[:]), challenge.Value)
}

func TestGenerateCodeChallengePlain(t *testing.T) {
	verifier := &CodeVerifier{Value: "plain-verifier-value-that-is-long-enough-43"}

	challenge, err := verifier.GenerateCodeChallenge(ChallengePlain)
	require.NoError(t, err)
	assert.Equal(t, verifier.Value, challenge.Value)
}

func TestGenerateCodeChallengeUnsupportedMethod(t *testing.T) {
	verifier := &CodeVerifier{Value: "whatever"}

	_, err := verifier.GenerateCodeChallenge(ChallengeMethod("S512"))
	assert.Error(t, err)
}
