package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/url"

	"panelauth/pkg/logging"
)

// CallbackParams are the query parameters delivered to the redirect target.
type CallbackParams struct {
	Code             string
	State            string
	ErrorCode        string
	ErrorDescription string
}

// ParseCallback extracts callback parameters from a redirect URL.
func ParseCallback(u *url.URL) CallbackParams {
	q := u.Query()
	return CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		ErrorCode:        q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// StripCallbackParams returns the URL with the code, state and error query
// parameters removed, so the hosting surface can replace the visible
// location and a refresh cannot re-trigger the exchange.
func StripCallbackParams(u *url.URL) *url.URL {
	stripped := *u
	q := stripped.Query()
	q.Del("code")
	q.Del("state")
	q.Del("error")
	q.Del("error_description")
	stripped.RawQuery = q.Encode()
	return &stripped
}

// HandleCallback completes an authorization-code callback.
//
// Behavior:
//   - An error parameter fails immediately with AuthorizationDeniedError.
//   - A missing code returns (nil, nil): not every invocation is a callback.
//   - Concurrent calls for the same code coalesce into one exchange
//     (single-flight), so a doubled invocation cannot mint two tokens.
//   - A code that already completed an exchange is an idempotent no-op: the
//     currently stored token (possibly nil) is returned without a network
//     call.
//   - A state mismatch is a hard failure; it is the CSRF defense.
//   - On exchange failure the code is not marked used, so a legitimate
//     retry with the same code stays possible if the server allows it.
func (c *Client) HandleCallback(ctx context.Context, cfg Config, params CallbackParams) (*Token, error) {
	if params.ErrorCode != "" {
		logging.Warn("OAuth", "Authorization server returned error: %s", params.ErrorCode)
		return nil, &AuthorizationDeniedError{
			Code:        params.ErrorCode,
			Description: params.ErrorDescription,
		}
	}

	if params.Code == "" {
		return nil, nil
	}

	result, err, shared := c.pending.Do(params.Code, func() (interface{}, error) {
		return c.completeExchange(ctx, cfg, params)
	})
	if shared {
		logging.Debug("OAuth", "Coalesced duplicate callback for in-flight code")
	}
	if err != nil {
		return nil, err
	}

	token, _ := result.(*Token)
	return token, nil
}

// completeExchange runs the replay check, state verification, verifier
// resolution and exchange for a single code. It executes at most once per
// code at a time, under the single-flight group.
func (c *Client) completeExchange(ctx context.Context, cfg Config, params CallbackParams) (*Token, error) {
	if c.codeUsed(params.Code) {
		logging.Debug("OAuth", "Ignoring replayed authorization code")
		return c.tokens.Read(), nil
	}

	stored := c.session.Get(sessionKeyState)
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(params.State)) != 1 {
		logging.Warn("OAuth", "Callback state does not match stored state, rejecting")
		return nil, ErrStateMismatch
	}

	// Prefer the separately persisted verifier; fall back to the copy
	// embedded in the state payload, which covers a redirect completed in
	// a context that never stored the verifier.
	verifier := c.session.Get(sessionKeyVerifier)
	if verifier == "" {
		if payload := DecodeState(params.State); payload != nil {
			verifier = payload.PKCEVerifier
		}
	}

	token, err := c.ExchangeCode(ctx, params.Code, cfg, verifier)
	if err != nil {
		return nil, err
	}

	c.tokens.Store(token)
	c.markCodeUsed(params.Code)
	c.session.Remove(sessionKeyState)
	c.session.Remove(sessionKeyVerifier)

	logging.Info("OAuth", "Completed authorization code exchange (scope=%s)", cfg.Scope)
	return token, nil
}

// codeUsed reports whether the code already completed an exchange.
func (c *Client) codeUsed(code string) bool {
	c.usedMu.Lock()
	defer c.usedMu.Unlock()

	for _, used := range c.readUsedCodes() {
		if used == code {
			return true
		}
	}
	return false
}

// markCodeUsed records a successfully exchanged code, evicting the oldest
// entry once the bound is reached.
func (c *Client) markCodeUsed(code string) {
	c.usedMu.Lock()
	defer c.usedMu.Unlock()

	codes := append(c.readUsedCodes(), code)
	if len(codes) > maxUsedCodes {
		codes = codes[len(codes)-maxUsedCodes:]
	}

	data, err := json.Marshal(codes)
	if err != nil {
		logging.Warn("OAuth", "Failed to serialize used-code set: %v", err)
		return
	}
	c.session.Set(sessionKeyUsed, string(data))
}

// readUsedCodes loads the used-code set from session storage. Callers must
// hold usedMu.
func (c *Client) readUsedCodes() []string {
	raw := c.session.Get(sessionKeyUsed)
	if raw == "" {
		return nil
	}

	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		logging.Warn("OAuth", "Discarding unparseable used-code set: %v", err)
		return nil
	}
	return codes
}
