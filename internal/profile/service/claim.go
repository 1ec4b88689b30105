package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/audit"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/store"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
	"github.com/City-of-Helsinki/open-city-profile-sub000/pkg/secrets"
)

// CreateClaimToken issues a claim token for a profile that has no linked
// user account. The plaintext token value is present only in the returned
// struct; the store keeps the hash.
func (s *Service) CreateClaimToken(ctx context.Context, profileID id.ProfileID) (*models.ClaimToken, error) {
	profile, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if profile.HasLinkedUser() {
		return nil, dErrors.New(dErrors.CodeConflict, "profile already has a user")
	}

	value, err := secrets.Generate()
	if err != nil {
		return nil, err
	}
	hash, err := secrets.Hash(value)
	if err != nil {
		return nil, err
	}
	token := &models.ClaimToken{
		ID:        id.TokenID(uuid.New()),
		ProfileID: profileID,
		Token:     value,
		TokenHash: hash,
		ExpiresAt: now().Add(models.DefaultClaimTokenTTL),
	}
	if err := s.claims.CreateClaimToken(ctx, token); err != nil {
		return nil, fmt.Errorf("create claim token: %w", err)
	}
	return token, nil
}

// ClaimProfile links the authenticated user to an unlinked profile when the
// presented token matches one of the profile's unexpired claim tokens. All
// claim tokens for the profile are invalidated on success.
func (s *Service) ClaimProfile(ctx context.Context, userID id.UserID, profileID id.ProfileID, tokenValue string) (*models.Profile, error) {
	tokens, err := s.claims.ClaimTokensForProfile(ctx, profileID, now())
	if err != nil {
		return nil, fmt.Errorf("list claim tokens: %w", err)
	}
	matched := false
	for _, token := range tokens {
		if secrets.Verify(tokenValue, token.TokenHash) == nil {
			matched = true
			break
		}
	}
	if !matched {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid claim token")
	}

	if err := s.profiles.LinkUser(ctx, profileID, userID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "profile cannot be claimed")
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, fmt.Errorf("link user: %w", err)
	}
	if err := s.claims.DeleteClaimTokens(ctx, profileID); err != nil {
		return nil, fmt.Errorf("delete claim tokens: %w", err)
	}

	profile, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	s.recordWrite(ctx, audit.OperationUpdate, profile)
	s.logger.InfoContext(ctx, "profile claimed",
		"profile_id", profileID.String(), "user_id", userID.String())
	return profile, nil
}

// CreateReadToken issues a temporary read access token for the user's own
// profile. The plaintext value is present only in the returned struct.
func (s *Service) CreateReadToken(ctx context.Context, userID id.UserID) (*models.TemporaryReadAccessToken, error) {
	profile, err := s.profiles.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	value, err := secrets.Generate()
	if err != nil {
		return nil, err
	}
	hash, err := secrets.Hash(value)
	if err != nil {
		return nil, err
	}
	token := &models.TemporaryReadAccessToken{
		ID:        id.TokenID(uuid.New()),
		ProfileID: profile.ID,
		Token:     value,
		TokenHash: hash,
		ExpiresAt: now().Add(models.DefaultReadTokenTTL),
	}
	if err := s.readTokens.CreateReadToken(ctx, token); err != nil {
		return nil, fmt.Errorf("create read token: %w", err)
	}
	return token, nil
}

// ProfileByReadToken resolves a profile through a temporary read access
// token. Unknown, expired and mismatched tokens all come back as
// unauthorized so callers cannot probe token ids.
func (s *Service) ProfileByReadToken(ctx context.Context, tokenID id.TokenID, tokenValue string) (*models.Profile, error) {
	token, err := s.readTokens.GetReadToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid read token")
		}
		return nil, fmt.Errorf("get read token: %w", err)
	}
	if err := secrets.Verify(tokenValue, token.TokenHash); err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid read token")
	}

	profile, err := s.profiles.Get(ctx, token.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	s.recordRead(ctx, profile)
	return profile, nil
}
