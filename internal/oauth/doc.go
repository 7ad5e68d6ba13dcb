// Package oauth implements the client side of the Authorization Code with
// PKCE flow (RFC 6749, RFC 7636) against the panel's authorization server.
//
// # Components
//
//   - PKCE generation (GeneratePKCE): verifier/challenge pairs with an
//     availability fallback to the plain method.
//   - State codec (EncodeState/DecodeState): a versioned, URL-safe token
//     embedding the anti-CSRF nonce and, optionally, the PKCE verifier.
//   - Authorization URL builder (Client.AuthorizationURL).
//   - Callback coordinator (Client.HandleCallback): the state machine that
//     validates state, enforces single-flight and replay protection, and
//     drives the token exchange.
//   - Token exchange transport (Client.ExchangeCode): delegated JSON mode
//     through a trusted endpoint, or direct form-encoded mode against the
//     authorization server.
//   - TokenStore: durable, lazily expiring persistence for the access token.
//   - CallbackServer: a loopback HTTP server used by the CLI login flow.
//
// # Flow
//
// A login builds the authorization URL (persisting the state string and the
// raw PKCE verifier in session storage), opens the browser, and waits on the
// callback server. The redirect delivers code and state; HandleCallback
// verifies the state, resolves the verifier, exchanges the code, stores the
// token and records the code in the bounded used-code set so a repeated
// invocation is an idempotent no-op rather than a second exchange.
//
// # Concurrency
//
// Client is safe for concurrent use. Exchanges for the same code coalesce
// through a singleflight group; the used-code set is mutex-guarded.
package oauth
