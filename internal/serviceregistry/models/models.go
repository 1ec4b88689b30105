// Package models defines the downstream service registry: which services can
// connect to profiles, what data they may see, and how their GDPR APIs are
// reached.
package models

import (
	"strings"
	"time"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// AllowedDataField names a category of profile data a service is permitted
// to see.
type AllowedDataField string

const (
	FieldName                 AllowedDataField = "name"
	FieldEmail                AllowedDataField = "email"
	FieldPhone                AllowedDataField = "phone"
	FieldAddress              AllowedDataField = "address"
	FieldPersonalIdentityCode AllowedDataField = "personalidentitycode"
)

// Service describes a downstream system that can be connected to a profile
// and exposes a GDPR HTTP API for data export and removal.
type Service struct {
	ID          id.ServiceID
	Name        id.ServiceName
	Title       string
	Description string

	// GDPRQueryScope and GDPRDeleteScope are OAuth scope strings naming the
	// audience whose API token authorizes the corresponding GDPR call.
	// Empty means the service has no such API.
	GDPRQueryScope  string
	GDPRDeleteScope string

	// GDPRURL is the endpoint template; it may embed $profile_id and
	// $user_uuid placeholders, or act as a URL prefix when it has none.
	GDPRURL string

	// IsProfileService marks the profile service itself, which holds its
	// data locally and is exempt from GDPR network calls.
	IsProfileService bool

	AllowedDataFields []AllowedDataField

	// ClientIDs are the OAuth client ids belonging to this service; the
	// authentication middleware resolves the acting service through them.
	ClientIDs []string

	CreatedAt time.Time
}

// AllowsDataField reports whether the service may see the given category of
// profile data.
func (s *Service) AllowsDataField(field AllowedDataField) bool {
	for _, allowed := range s.AllowedDataFields {
		if allowed == field {
			return true
		}
	}
	return false
}

// GDPRAudience derives the API identifier from a GDPR scope string: the
// scope minus its trailing segment. "berthservice.gdprdelete" names the
// token audience "berthservice".
func GDPRAudience(scope string) string {
	if idx := strings.LastIndex(scope, "."); idx > 0 {
		return scope[:idx]
	}
	return scope
}

// ServiceConnection records that a profile has an active relationship with
// a service. Unique per (profile, service).
type ServiceConnection struct {
	ID        id.ConnectionID
	ProfileID id.ProfileID
	ServiceID id.ServiceID
	Enabled   bool
	CreatedAt time.Time

	// Service is the resolved registry entry; stores populate it on list
	// operations so the GDPR orchestrator never does per-connection lookups.
	Service *Service
}
