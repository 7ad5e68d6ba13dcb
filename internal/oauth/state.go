package oauth

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"panelauth/pkg/logging"
)

// stateVersion is the current state codec version. Payloads encoded with a
// different version decode to nil so unknown formats can never crash the
// callback flow.
const stateVersion = 1

// NewStatePayload builds a current-version payload from a nonce and an
// optional PKCE verifier.
func NewStatePayload(nonce, pkceVerifier string) StatePayload {
	return StatePayload{
		Version:      stateVersion,
		Nonce:        nonce,
		PKCEVerifier: pkceVerifier,
		CreatedAt:    time.Now().UTC(),
	}
}

// EncodeState serializes a payload into a single opaque URL-safe token with
// no padding characters.
func EncodeState(payload StatePayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeState parses an encoded state string. It returns nil on any parse or
// version failure rather than an error: callers treat nil as "no structured
// payload available" and fall back to comparing the raw string as an opaque
// legacy nonce.
func DecodeState(state string) *StatePayload {
	if state == "" {
		return nil
	}

	data, err := base64.RawURLEncoding.DecodeString(state)
	if err != nil {
		return nil
	}

	var payload StatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}

	if payload.Version != stateVersion {
		logging.Debug("OAuth", "Ignoring state payload with version %d (current %d)",
			payload.Version, stateVersion)
		return nil
	}

	return &payload
}
