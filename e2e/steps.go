package e2e

import (
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// RegisterSteps binds the profile API step definitions.
func RegisterSteps(sc *godog.ScenarioContext, tc *TestContext) {
	sc.Step(`^an authenticated user$`, tc.stepAuthenticatedUser)
	sc.Step(`^the user has a profile$`, tc.stepUserHasProfile)
	sc.Step(`^the user creates a profile$`, tc.stepCreateProfile)
	sc.Step(`^the user fetches their profile$`, tc.stepFetchProfile)
	sc.Step(`^the user updates their nickname to "([^"]*)"$`, tc.stepUpdateNickname)
	sc.Step(`^the user requests a data export with code "([^"]*)"$`, tc.stepRequestExport)
	sc.Step(`^the user requests profile deletion with code "([^"]*)"$`, tc.stepRequestDeletion)
	sc.Step(`^the response status is (\d+)$`, tc.stepResponseStatus)
	sc.Step(`^the response field "([^"]*)" is "([^"]*)"$`, tc.stepResponseField)
	sc.Step(`^the export document root key is "([^"]*)"$`, tc.stepExportRootKey)
}

func (tc *TestContext) stepAuthenticatedUser() error {
	return tc.Authenticate()
}

func (tc *TestContext) stepCreateProfile() error {
	return tc.Do(http.MethodPost, "/profiles", map[string]any{
		"firstName": "Erkki",
		"lastName":  "Esimerkki",
		"emails": []map[string]any{
			{"email": "erkki@example.com", "type": "personal", "primary": true},
		},
	})
}

func (tc *TestContext) stepUserHasProfile() error {
	if err := tc.stepCreateProfile(); err != nil {
		return err
	}
	return tc.stepResponseStatus(http.StatusCreated)
}

func (tc *TestContext) stepFetchProfile() error {
	return tc.Do(http.MethodGet, "/profiles/me", nil)
}

func (tc *TestContext) stepUpdateNickname(nickname string) error {
	return tc.Do(http.MethodPatch, "/profiles/me", map[string]any{"nickname": nickname})
}

func (tc *TestContext) stepRequestExport(code string) error {
	return tc.Do(http.MethodGet, "/profiles/me/export?authorization_code="+code, nil)
}

func (tc *TestContext) stepRequestDeletion(code string) error {
	return tc.Do(http.MethodPost, "/profiles/me/delete", map[string]any{
		"authorization_code": code,
	})
}

func (tc *TestContext) stepResponseStatus(expected int) error {
	if tc.LastResponse == nil {
		return fmt.Errorf("no request has been made")
	}
	if tc.LastResponse.StatusCode != expected {
		return fmt.Errorf("expected status %d, got %d: %s",
			expected, tc.LastResponse.StatusCode, tc.LastResponseBody)
	}
	return nil
}

func (tc *TestContext) stepResponseField(name, expected string) error {
	value, err := tc.BodyField(name)
	if err != nil {
		return err
	}
	if fmt.Sprintf("%v", value) != expected {
		return fmt.Errorf("expected field %q to be %q, got %v", name, expected, value)
	}
	return nil
}

func (tc *TestContext) stepExportRootKey(expected string) error {
	value, err := tc.BodyField("key")
	if err != nil {
		return err
	}
	if value != expected {
		return fmt.Errorf("expected export root key %q, got %v", expected, value)
	}
	return nil
}
