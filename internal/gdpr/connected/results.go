package connected

import (
	"encoding/json"
	"sort"
)

// UnknownErrorCode replaces any malformed error a downstream service
// returns, so untyped upstream data never reaches callers or the audit
// stream.
const UnknownErrorCode = "SERVICE_GDPR_API_UNKNOWN_ERROR"

const unknownErrorText = "Unknown error occurred when calling the GDPR API of the service"

// ServiceIdentity names the service a result belongs to.
type ServiceIdentity struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LocalizedMessage is one language variant of an error message.
type LocalizedMessage struct {
	Lang string `json:"lang"`
	Text string `json:"text"`
}

// APIError is a structured error reported by a downstream GDPR API.
type APIError struct {
	Code    string             `json:"code"`
	Message []LocalizedMessage `json:"message"`
}

// DeletionResult is the per-service outcome of a delete operation.
type DeletionResult struct {
	Service ServiceIdentity `json:"service"`
	DryRun  bool            `json:"dryRun"`
	Success bool            `json:"success"`
	Errors  []APIError      `json:"errors"`
}

// unknownError is the generic replacement for anything malformed.
func unknownError() APIError {
	return APIError{
		Code:    UnknownErrorCode,
		Message: []LocalizedMessage{{Lang: "en", Text: unknownErrorText}},
	}
}

// remoteErrorEnvelope is the error body shape downstream GDPR APIs are
// expected to return.
type remoteErrorEnvelope struct {
	Errors []json.RawMessage `json:"errors"`
}

type remoteError struct {
	Code    json.RawMessage `json:"code"`
	Message json.RawMessage `json:"message"`
}

// parseRemoteErrors extracts the structured errors from a failed GDPR API
// response body. Every entry is validated before being trusted: a
// well-formed error has a non-empty string code and a non-empty mapping of
// language code to non-empty text. Anything else, including an unparseable
// or empty body, collapses to the single generic unknown error.
func parseRemoteErrors(body []byte) []APIError {
	var envelope remoteErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Errors) == 0 {
		return []APIError{unknownError()}
	}

	errs := make([]APIError, 0, len(envelope.Errors))
	for _, raw := range envelope.Errors {
		errs = append(errs, validateRemoteError(raw))
	}
	return errs
}

func validateRemoteError(raw json.RawMessage) APIError {
	var entry remoteError
	if err := json.Unmarshal(raw, &entry); err != nil {
		return unknownError()
	}

	var code string
	if err := json.Unmarshal(entry.Code, &code); err != nil || code == "" {
		return unknownError()
	}

	var message map[string]string
	if err := json.Unmarshal(entry.Message, &message); err != nil || len(message) == 0 {
		return unknownError()
	}
	localized := make([]LocalizedMessage, 0, len(message))
	for lang, text := range message {
		if lang == "" || text == "" {
			return unknownError()
		}
		localized = append(localized, LocalizedMessage{Lang: lang, Text: text})
	}
	// Map iteration order is random; keep message ordering stable.
	sort.Slice(localized, func(i, j int) bool { return localized[i].Lang < localized[j].Lang })

	return APIError{Code: code, Message: localized}
}
