// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a ProfileID where a ServiceID
// is expected.
type (
	ProfileID    uuid.UUID
	UserID       uuid.UUID
	ServiceID    uuid.UUID
	ConnectionID uuid.UUID
	ContactID    uuid.UUID
	TokenID      uuid.UUID
)

// ServiceName is the stable machine name of a connected service (e.g. "berth").
type ServiceName string

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseProfileID(s string) (ProfileID, error) {
	id, err := parseUUID(s, "profile ID")
	return ProfileID(id), err
}

func ParseUserID(s string) (UserID, error) {
	id, err := parseUUID(s, "user ID")
	return UserID(id), err
}

func ParseServiceID(s string) (ServiceID, error) {
	id, err := parseUUID(s, "service ID")
	return ServiceID(id), err
}

func ParseConnectionID(s string) (ConnectionID, error) {
	id, err := parseUUID(s, "connection ID")
	return ConnectionID(id), err
}

func ParseContactID(s string) (ContactID, error) {
	id, err := parseUUID(s, "contact ID")
	return ContactID(id), err
}

func ParseTokenID(s string) (TokenID, error) {
	id, err := parseUUID(s, "token ID")
	return TokenID(id), err
}

func ParseServiceName(s string) (ServiceName, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "service name cannot be empty")
	}
	return ServiceName(s), nil
}

// String methods - for logging and debugging.

func (id ProfileID) String() string    { return uuid.UUID(id).String() }
func (id UserID) String() string       { return uuid.UUID(id).String() }
func (id ServiceID) String() string    { return uuid.UUID(id).String() }
func (id ConnectionID) String() string { return uuid.UUID(id).String() }
func (id ContactID) String() string    { return uuid.UUID(id).String() }
func (id TokenID) String() string      { return uuid.UUID(id).String() }
func (n ServiceName) String() string   { return string(n) }

// IsNil checks - used for service-layer validation.

func (id ProfileID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ServiceID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ConnectionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ContactID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id TokenID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (n ServiceName) IsNil() bool   { return n == "" }

// parseUUID is the shared validation logic. Nil UUIDs are allowed here so
// store lookups can return proper "not found" errors; use IsNil() at the
// service layer for business validation.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return id, nil
}
