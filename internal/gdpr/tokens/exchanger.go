// Package tokens talks to the identity provider: exchanging authorization
// codes for per-service API tokens and administering linked user accounts.
package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
)

// discoveryCacheTTL bounds how long a fetched OIDC configuration is reused.
const discoveryCacheTTL = 10 * time.Minute

// Fetcher obtains per-audience API tokens for an authorization code.
type Fetcher interface {
	FetchAPITokens(ctx context.Context, authorizationCode string) (map[string]string, error)
}

// Exchanger implements Fetcher against an OIDC-compatible identity provider
// that exposes a provider-specific API tokens endpoint.
type Exchanger struct {
	issuerURL     string
	apiTokensPath string
	clientID      string
	clientSecret  string
	httpClient    *http.Client

	mu            sync.Mutex
	tokenEndpoint string
	discoveredAt  time.Time
}

// ExchangerOption configures the Exchanger.
type ExchangerOption func(*Exchanger)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) ExchangerOption {
	return func(e *Exchanger) {
		e.httpClient = client
	}
}

// NewExchanger creates a token exchange client for the given issuer.
func NewExchanger(issuerURL, apiTokensPath, clientID, clientSecret string, timeout time.Duration, opts ...ExchangerOption) *Exchanger {
	e := &Exchanger{
		issuerURL:     strings.TrimRight(issuerURL, "/"),
		apiTokensPath: apiTokensPath,
		clientID:      clientID,
		clientSecret:  clientSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type oidcConfiguration struct {
	TokenEndpoint string `json:"token_endpoint"`
}

func (e *Exchanger) discoverTokenEndpoint(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tokenEndpoint != "" && time.Since(e.discoveredAt) < discoveryCacheTTL {
		return e.tokenEndpoint, nil
	}

	wellKnown := e.issuerURL + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return "", fmt.Errorf("create discovery request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeRemoteUnavailable, "identity provider discovery failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", dErrors.New(dErrors.CodeRemoteUnavailable,
			fmt.Sprintf("identity provider discovery returned status %d", resp.StatusCode))
	}
	var config oidcConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&config); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeRemoteUnavailable, "malformed discovery document")
	}
	if config.TokenEndpoint == "" {
		return "", dErrors.New(dErrors.CodeRemoteUnavailable, "discovery document has no token endpoint")
	}

	e.tokenEndpoint = config.TokenEndpoint
	e.discoveredAt = time.Now()
	return e.tokenEndpoint, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// FetchAPITokens exchanges an authorization code for a map of
// audience → API token. A rejected code surfaces as a token exchange
// failure, which callers must keep distinct from a token being absent for
// one specific audience.
func (e *Exchanger) FetchAPITokens(ctx context.Context, authorizationCode string) (map[string]string, error) {
	endpoint, err := e.discoverTokenEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {authorizationCode},
		"client_id":     {e.clientID},
		"client_secret": {e.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRemoteUnavailable, "token endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse
		return nil, dErrors.New(dErrors.CodeTokenExchangeFailed, "authorization code rejected")
	}
	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil || token.AccessToken == "" {
		return nil, dErrors.New(dErrors.CodeTokenExchangeFailed, "malformed token response")
	}

	return e.fetchAPITokenMap(ctx, token.AccessToken)
}

func (e *Exchanger) fetchAPITokenMap(ctx context.Context, accessToken string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.issuerURL+e.apiTokensPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create api tokens request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRemoteUnavailable, "api tokens endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.New(dErrors.CodeTokenExchangeFailed,
			fmt.Sprintf("api tokens endpoint returned status %d", resp.StatusCode))
	}
	var tokens map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, dErrors.New(dErrors.CodeTokenExchangeFailed, "malformed api tokens response")
	}
	return tokens, nil
}
