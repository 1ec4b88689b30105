package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext holds state between test steps.
type TestContext struct {
	BaseURL          string
	SigningKey       string
	HTTPClient       *http.Client
	AccessToken      string
	UserID           string
	LastResponse     *http.Response
	LastResponseBody []byte
}

// NewTestContext creates a new test context from the environment.
func NewTestContext() *TestContext {
	baseURL := os.Getenv("PROFILE_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	key := os.Getenv("TOKEN_SIGNING_KEY")
	if key == "" {
		key = "e2e-signing-key"
	}
	return &TestContext{
		BaseURL:    baseURL,
		SigningKey: key,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears per-scenario state while keeping the connection settings.
func (tc *TestContext) Reset() {
	tc.AccessToken = ""
	tc.UserID = ""
	tc.LastResponse = nil
	tc.LastResponseBody = nil
}

// Authenticate mints an HS256 access token for a fresh user, matching what
// the server's authentication middleware validates.
func (tc *TestContext) Authenticate() error {
	tc.UserID = uuid.NewString()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":                tc.UserID,
		"preferred_username": "e2e-user",
		"iat":                now.Unix(),
		"exp":                now.Add(10 * time.Minute).Unix(),
	}).SignedString([]byte(tc.SigningKey))
	if err != nil {
		return fmt.Errorf("sign access token: %w", err)
	}
	tc.AccessToken = token
	return nil
}

// Do sends a request and captures the response for later assertions.
func (tc *TestContext) Do(method, path string, body any) error {
	var payload io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return err
		}
		payload = buf
	}

	req, err := http.NewRequest(method, tc.BaseURL+path, payload)
	if err != nil {
		return err
	}
	if tc.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.AccessToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := tc.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	tc.LastResponse = res
	tc.LastResponseBody, err = io.ReadAll(res.Body)
	return err
}

// BodyField returns a top-level field of the last JSON response body.
func (tc *TestContext) BodyField(name string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &body); err != nil {
		return nil, fmt.Errorf("last response is not a JSON object: %w", err)
	}
	value, ok := body[name]
	if !ok {
		return nil, fmt.Errorf("field %q missing from response: %s", name, tc.LastResponseBody)
	}
	return value, nil
}
