package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// InMemory is a mutex-guarded map-backed profile store for tests and local
// development. It implements ProfileStore, ClaimTokenStore and
// ReadTokenStore.
type InMemory struct {
	mu          sync.RWMutex
	profiles    map[id.ProfileID]*models.Profile
	userIdx     map[id.UserID]id.ProfileID
	claimTokens map[id.ProfileID][]*models.ClaimToken
	readTokens  map[id.TokenID]*models.TemporaryReadAccessToken
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		profiles:    make(map[id.ProfileID]*models.Profile),
		userIdx:     make(map[id.UserID]id.ProfileID),
		claimTokens: make(map[id.ProfileID][]*models.ClaimToken),
		readTokens:  make(map[id.TokenID]*models.TemporaryReadAccessToken),
	}
}

func (s *InMemory) Create(ctx context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.ID]; exists {
		return ErrConflict
	}
	if !profile.UserID.IsNil() {
		if _, exists := s.userIdx[profile.UserID]; exists {
			return ErrConflict
		}
		s.userIdx[profile.UserID] = profile.ID
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	profile.UpdatedAt = profile.CreatedAt
	assignOwnedRecordIDs(profile)
	s.profiles[profile.ID] = profile
	return nil
}

// assignOwnedRecordIDs stamps contact records with an ID and the owning
// profile, the same way the postgres store does on insert.
func assignOwnedRecordIDs(profile *models.Profile) {
	for _, e := range profile.Emails {
		if e.ID.IsNil() {
			e.ID = id.ContactID(uuid.New())
		}
		e.ProfileID = profile.ID
	}
	for _, p := range profile.Phones {
		if p.ID.IsNil() {
			p.ID = id.ContactID(uuid.New())
		}
		p.ProfileID = profile.ID
	}
	for _, a := range profile.Addresses {
		if a.ID.IsNil() {
			a.ID = id.ContactID(uuid.New())
		}
		a.ProfileID = profile.ID
	}
	if sd := profile.SensitiveData; sd != nil {
		sd.ProfileID = profile.ID
	}
	if vi := profile.VerifiedInfo; vi != nil {
		vi.ProfileID = profile.ID
		for _, a := range []*models.VerifiedPersonalInformationAddress{vi.PermanentAddress, vi.TemporaryAddress} {
			if a != nil {
				a.ProfileID = profile.ID
			}
		}
		if a := vi.PermanentForeignAddress; a != nil {
			a.ProfileID = profile.ID
		}
	}
}

func (s *InMemory) Get(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[profileID]
	if !ok {
		return nil, ErrNotFound
	}
	return profile, nil
}

func (s *InMemory) GetByUser(ctx context.Context, userID id.UserID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profileID, ok := s.userIdx[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.profiles[profileID], nil
}

func (s *InMemory) Update(ctx context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.ID]; !exists {
		return ErrNotFound
	}
	profile.UpdatedAt = time.Now()
	assignOwnedRecordIDs(profile)
	s.profiles[profile.ID] = profile
	return nil
}

func (s *InMemory) Delete(ctx context.Context, profileID id.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[profileID]
	if !ok {
		return ErrNotFound
	}
	if !profile.UserID.IsNil() {
		delete(s.userIdx, profile.UserID)
	}
	delete(s.profiles, profileID)
	delete(s.claimTokens, profileID)
	for tokenID, token := range s.readTokens {
		if token.ProfileID == profileID {
			delete(s.readTokens, tokenID)
		}
	}
	return nil
}

func (s *InMemory) LinkUser(ctx context.Context, profileID id.ProfileID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[profileID]
	if !ok {
		return ErrNotFound
	}
	if !profile.UserID.IsNil() {
		return ErrConflict
	}
	if _, exists := s.userIdx[userID]; exists {
		return ErrConflict
	}
	profile.UserID = userID
	s.userIdx[userID] = profileID
	return nil
}

func (s *InMemory) UserUUIDs(ctx context.Context, profileIDs []id.ProfileID) (map[id.ProfileID]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[id.ProfileID]id.UserID, len(profileIDs))
	for _, profileID := range profileIDs {
		if profile, ok := s.profiles[profileID]; ok && !profile.UserID.IsNil() {
			result[profileID] = profile.UserID
		}
	}
	return result, nil
}

func (s *InMemory) CreateClaimToken(ctx context.Context, token *models.ClaimToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[token.ProfileID]; !exists {
		return ErrNotFound
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	s.claimTokens[token.ProfileID] = append(s.claimTokens[token.ProfileID], token)
	return nil
}

func (s *InMemory) ClaimTokensForProfile(ctx context.Context, profileID id.ProfileID, now time.Time) ([]*models.ClaimToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*models.ClaimToken
	for _, token := range s.claimTokens[profileID] {
		if !token.Expired(now) {
			active = append(active, token)
		}
	}
	return active, nil
}

func (s *InMemory) DeleteClaimTokens(ctx context.Context, profileID id.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claimTokens, profileID)
	return nil
}

func (s *InMemory) CreateReadToken(ctx context.Context, token *models.TemporaryReadAccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}
	s.readTokens[token.ID] = token
	return nil
}

func (s *InMemory) GetReadToken(ctx context.Context, tokenID id.TokenID) (*models.TemporaryReadAccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.readTokens[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	if token.Expired(time.Now()) {
		return nil, ErrExpired
	}
	return token, nil
}

func (s *InMemory) DeleteReadTokens(ctx context.Context, profileID id.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tokenID, token := range s.readTokens {
		if token.ProfileID == profileID {
			delete(s.readTokens, tokenID)
		}
	}
	return nil
}
