// Package store provides persistence for profiles and their owned records.
package store

import (
	"context"
	"time"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	"github.com/City-of-Helsinki/open-city-profile-sub000/pkg/platform/sentinel"
)

// Store errors, aliased so callers do not import the sentinel package.
var (
	ErrNotFound = sentinel.ErrNotFound
	ErrConflict = sentinel.ErrConflict
	ErrExpired  = sentinel.ErrExpired
)

// ProfileStore persists profiles with their contacts, sensitive data and
// verified personal information. Get and GetByUser return the full record
// with all owned sub-records resolved.
type ProfileStore interface {
	Create(ctx context.Context, profile *models.Profile) error
	Get(ctx context.Context, profileID id.ProfileID) (*models.Profile, error)
	GetByUser(ctx context.Context, userID id.UserID) (*models.Profile, error)
	Update(ctx context.Context, profile *models.Profile) error

	// Delete removes the profile and everything it owns. When the profile
	// has a linked user account the link is removed with it.
	Delete(ctx context.Context, profileID id.ProfileID) error

	// LinkUser attaches a user account to an unlinked profile.
	LinkUser(ctx context.Context, profileID id.ProfileID, userID id.UserID) error

	// UserUUIDs resolves the owning user for each given profile in one
	// lookup. Profiles without a linked user are absent from the result.
	UserUUIDs(ctx context.Context, profileIDs []id.ProfileID) (map[id.ProfileID]id.UserID, error)
}

// ClaimTokenStore persists claim tokens for unlinked profiles.
type ClaimTokenStore interface {
	CreateClaimToken(ctx context.Context, token *models.ClaimToken) error
	// ClaimTokensForProfile returns the profile's unexpired claim tokens.
	ClaimTokensForProfile(ctx context.Context, profileID id.ProfileID, now time.Time) ([]*models.ClaimToken, error)
	DeleteClaimTokens(ctx context.Context, profileID id.ProfileID) error
}

// ReadTokenStore holds temporary read access tokens. Entries expire on
// their own; Get returns ErrNotFound for unknown and ErrExpired for
// lapsed tokens.
type ReadTokenStore interface {
	CreateReadToken(ctx context.Context, token *models.TemporaryReadAccessToken) error
	GetReadToken(ctx context.Context, tokenID id.TokenID) (*models.TemporaryReadAccessToken, error)
	DeleteReadTokens(ctx context.Context, profileID id.ProfileID) error
}
