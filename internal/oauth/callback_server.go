package oauth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"time"

	"panelauth/pkg/logging"
)

// callbackResult carries the outcome of one callback to the waiter.
type callbackResult struct {
	token *Token
	err   error
}

// CallbackServer is a loopback HTTP server that receives the authorization
// redirect during a CLI login, hands the parameters to the client, and
// renders a minimal result page. It serves exactly one login attempt.
type CallbackServer struct {
	client *Client
	cfg    Config

	server   *http.Server
	listener net.Listener
	results  chan callbackResult
}

// NewCallbackServer creates a callback server for the given attempt. The
// listen address is derived from cfg.RedirectURI, which must be a loopback
// URL such as http://127.0.0.1:8765/oauth/callback.
func NewCallbackServer(client *Client, cfg Config) (*CallbackServer, error) {
	redirect, err := url.Parse(cfg.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if redirect.Hostname() != "127.0.0.1" && redirect.Hostname() != "localhost" {
		return nil, fmt.Errorf("redirect URI must be a loopback address, got %q", redirect.Hostname())
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	cs := &CallbackServer{
		client:   client,
		cfg:      cfg,
		listener: listener,
		results:  make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, cs.handleCallback)
	cs.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := cs.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("OAuth", err, "Callback server terminated unexpectedly")
		}
	}()

	return cs, nil
}

// Wait blocks until a callback completes or ctx expires, then returns the
// exchanged token.
func (cs *CallbackServer) Wait(ctx context.Context) (*Token, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("timed out waiting for authorization callback: %w", ctx.Err())
	case result := <-cs.results:
		return result.token, result.err
	}
}

// Close shuts the server down.
func (cs *CallbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return cs.server.Shutdown(ctx)
}

func (cs *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	params := ParseCallback(r.URL)

	token, err := cs.client.HandleCallback(r.Context(), cs.cfg, params)
	if err != nil {
		cs.renderPage(w, http.StatusBadRequest, "Authentication failed", err.Error())
		cs.deliver(callbackResult{err: err})
		return
	}
	if token == nil && params.Code == "" {
		// Not a callback (no code, no error); likely a stray request.
		http.NotFound(w, r)
		return
	}

	cs.renderPage(w, http.StatusOK, "Authentication successful",
		"You can close this window and return to the terminal.")
	cs.deliver(callbackResult{token: token})
}

// deliver hands the result to the waiter without blocking; later callbacks
// for the same attempt are dropped.
func (cs *CallbackServer) deliver(result callbackResult) {
	select {
	case cs.results <- result:
	default:
	}
}

// renderPage writes a minimal HTML result page with the usual hardening
// headers for locally served HTML.
func (cs *CallbackServer) renderPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.WriteHeader(status)

	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4rem;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}
