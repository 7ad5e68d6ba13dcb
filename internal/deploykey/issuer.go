package deploykey

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Issuer creates deployment-scoped credentials on the backend. Key
// generation is a privileged, auditable operation, which is why it is only
// invoked on explicit user action and retried through the manager.
type Issuer interface {
	// CreateDeployKey issues a new key named keyName for the deployment,
	// authorized by the given access token.
	CreateDeployKey(ctx context.Context, accessToken, deploymentName, keyName string) (string, error)
}

// HTTPIssuer issues deploy keys through the panel backend's HTTP API.
type HTTPIssuer struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPIssuer creates an issuer against the given API base URL.
func NewHTTPIssuer(baseURL string) *HTTPIssuer {
	return &HTTPIssuer{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateDeployKey implements Issuer.
func (i *HTTPIssuer) CreateDeployKey(ctx context.Context, accessToken, deploymentName, keyName string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"deploymentName": deploymentName,
		"keyName":        keyName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode deploy key request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+"/api/deploy_key", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create deploy key request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deploy key request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read deploy key response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("deploy key request failed with status %d", resp.StatusCode)
	}

	var parsed struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse deploy key response: %w", err)
	}
	if parsed.Key == "" {
		return "", fmt.Errorf("deploy key response missing key")
	}

	return parsed.Key, nil
}
