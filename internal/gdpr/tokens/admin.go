package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
)

// AdminConfig holds the identity provider admin API settings. The client
// can be reconfigured at runtime when these change.
type AdminConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// AdminClient manages user accounts at the identity provider. It caches a
// client-credentials access token and renews it once, retrying the failed
// call exactly once, when the provider rejects it.
type AdminClient struct {
	httpClient *http.Client

	mu          sync.Mutex
	config      AdminConfig
	accessToken string
	tokenExpiry time.Time
}

// AdminOption configures the AdminClient.
type AdminOption func(*AdminClient)

// WithAdminHTTPClient sets a custom HTTP client (for testing).
func WithAdminHTTPClient(client *http.Client) AdminOption {
	return func(c *AdminClient) {
		c.httpClient = client
	}
}

// NewAdminClient creates an identity provider admin client.
func NewAdminClient(config AdminConfig, opts ...AdminOption) *AdminClient {
	c := &AdminClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
	if config.Timeout == 0 {
		c.httpClient.Timeout = 10 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reconfigure replaces the provider settings and drops the cached token so
// the next call authenticates against the new configuration.
func (c *AdminClient) Reconfigure(config AdminConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = config
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
}

// DeleteUser removes the user account from the identity provider.
func (c *AdminClient) DeleteUser(ctx context.Context, userID id.UserID) error {
	return c.withToken(ctx, func(token string, config AdminConfig) (int, error) {
		endpoint := fmt.Sprintf("%s/admin/realms/%s/users/%s",
			strings.TrimRight(config.BaseURL, "/"), config.Realm, userID.String())
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
		if err != nil {
			return 0, fmt.Errorf("create delete user request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeRemoteUnavailable, "identity provider unreachable")
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
			// Already-gone counts as deleted.
			return resp.StatusCode, nil
		case http.StatusUnauthorized, http.StatusForbidden:
			return resp.StatusCode, dErrors.New(dErrors.CodeUnauthorized, "identity provider rejected admin token")
		default:
			return resp.StatusCode, dErrors.New(dErrors.CodeRemoteUnavailable,
				fmt.Sprintf("delete user returned status %d", resp.StatusCode))
		}
	})
}

// withToken runs call with a valid cached token, renewing and retrying
// exactly once on an authentication failure.
func (c *AdminClient) withToken(ctx context.Context, call func(token string, config AdminConfig) (int, error)) error {
	token, config, err := c.currentToken(ctx, false)
	if err != nil {
		return err
	}
	status, err := call(token, config)
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return err
	}

	token, config, err = c.currentToken(ctx, true)
	if err != nil {
		return err
	}
	_, err = call(token, config)
	return err
}

func (c *AdminClient) currentToken(ctx context.Context, force bool) (string, AdminConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, c.config, nil
	}

	token, err := c.authenticate(ctx, c.config)
	if err != nil {
		return "", c.config, err
	}
	c.accessToken = token
	c.tokenExpiry = tokenExpiry(token)
	return c.accessToken, c.config, nil
}

func (c *AdminClient) authenticate(ctx context.Context, config AdminConfig) (string, error) {
	endpoint := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token",
		strings.TrimRight(config.BaseURL, "/"), config.Realm)
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {config.ClientID},
		"client_secret": {config.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create admin token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeRemoteUnavailable, "identity provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", dErrors.New(dErrors.CodeUnauthorized,
			fmt.Sprintf("admin authentication returned status %d", resp.StatusCode))
	}
	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil || token.AccessToken == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "malformed admin token response")
	}
	return token.AccessToken, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// token is only inspected to decide when to renew, never trusted for
// authorization decisions here.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Now().Add(time.Minute)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Now().Add(time.Minute)
	}
	// Renew slightly early to avoid using a token at its expiry edge.
	return exp.Time.Add(-10 * time.Second)
}
