package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"panelauth/pkg/logging"
)

// PKCE challenge methods per RFC 7636.
const (
	// PKCEMethodS256 hashes the verifier with SHA-256 before encoding.
	PKCEMethodS256 = "S256"

	// PKCEMethodPlain sends the verifier as the challenge. Only used as a
	// degradation when the hash primitive is unavailable.
	PKCEMethodPlain = "plain"
)

// PKCE is a one-time verifier/challenge pair.
type PKCE struct {
	// CodeVerifier is kept client-side and presented at token exchange.
	CodeVerifier string

	// CodeChallenge is sent in the authorization request.
	CodeChallenge string

	// Method is the challenge method ("S256", or "plain" when degraded).
	Method string
}

// challengeHasher produces the challenge digest for a verifier. It is a
// variable so tests can force the hash-unavailable degradation.
type challengeHasher func(verifier string) ([]byte, error)

func sha256Challenge(verifier string) ([]byte, error) {
	sum := sha256.Sum256([]byte(verifier))
	return sum[:], nil
}

// GeneratePKCE generates a PKCE pair per RFC 7636: the verifier is the
// URL-safe base64 encoding of 32 cryptographically random bytes, and the
// challenge is the URL-safe base64 encoding of its SHA-256 digest.
func GeneratePKCE() (*PKCE, error) {
	return generatePKCE(sha256Challenge)
}

func generatePKCE(hash challengeHasher) (*PKCE, error) {
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	digest, err := hash(verifier)
	if err != nil {
		// Availability over strictness: fall back to the plain method
		// instead of failing the whole flow. The source system carried this
		// path for environments without a usable hash primitive; it is
		// flagged for review rather than assumed intentional.
		logging.Warn("OAuth", "SHA-256 unavailable for PKCE, degrading to plain method: %v", err)
		return &PKCE{
			CodeVerifier:  verifier,
			CodeChallenge: verifier,
			Method:        PKCEMethodPlain,
		}, nil
	}

	return &PKCE{
		CodeVerifier:  verifier,
		CodeChallenge: base64.RawURLEncoding.EncodeToString(digest),
		Method:        PKCEMethodS256,
	}, nil
}

// GenerateNonce generates a random URL-safe nonce for the state parameter.
func GenerateNonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(nonce), nil
}
