// Package service implements profile lifecycle operations: CRUD, service
// connections, GDPR export and removal, claiming and temporary read access.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/audit"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/gdpr/connected"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/metrics"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/store"
	registrystore "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/store"

	registry "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
)

// Orchestrator executes GDPR operations across connected services.
type Orchestrator interface {
	Download(ctx context.Context, profile *models.Profile, authorizationCode string) ([]json.RawMessage, error)
	Delete(ctx context.Context, profile *models.Profile, authorizationCode string, dryRun bool) ([]connected.DeletionResult, error)
	DeleteService(ctx context.Context, profile *models.Profile, serviceName id.ServiceName, authorizationCode string, dryRun bool) (*connected.DeletionResult, error)
}

// AccountDeleter removes the linked user account at the identity provider
// once a full GDPR deletion has succeeded.
type AccountDeleter interface {
	DeleteUser(ctx context.Context, userID id.UserID) error
}

// Service wires profile persistence, the service registry and the GDPR
// orchestrator together.
type Service struct {
	profiles     store.ProfileStore
	claims       store.ClaimTokenStore
	readTokens   store.ReadTokenStore
	services     registrystore.ServiceStore
	connections  registrystore.ConnectionStore
	orchestrator Orchestrator
	accounts     AccountDeleter
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithAccountDeleter wires the identity provider admin client.
func WithAccountDeleter(accounts AccountDeleter) Option {
	return func(s *Service) {
		s.accounts = accounts
	}
}

// WithReadTokenStore overrides the temporary read token store. The default
// is whatever the profile store provides; deployments with Redis use it
// instead.
func WithReadTokenStore(readTokens store.ReadTokenStore) Option {
	return func(s *Service) {
		s.readTokens = readTokens
	}
}

// New creates the profile service.
func New(
	profiles store.ProfileStore,
	claims store.ClaimTokenStore,
	readTokens store.ReadTokenStore,
	services registrystore.ServiceStore,
	connections registrystore.ConnectionStore,
	orchestrator Orchestrator,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		profiles:     profiles,
		claims:       claims,
		readTokens:   readTokens,
		services:     services,
		connections:  connections,
		orchestrator: orchestrator,
		metrics:      m,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries everything needed to create a profile.
type CreateInput struct {
	UserID        id.UserID
	FirstName     string
	LastName      string
	Nickname      string
	Language      models.Language
	ContactMethod models.ContactMethod
	Emails        []*models.Email
	Phones        []*models.Phone
	Addresses     []*models.Address
	SensitiveData *models.SensitiveData
}

// Create creates a profile for the given user. A user can have at most one
// profile.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Profile, error) {
	profile, err := models.NewProfile(id.ProfileID(uuid.New()), input.UserID, input.FirstName, input.LastName)
	if err != nil {
		return nil, err
	}
	profile.Nickname = input.Nickname
	if input.Language != "" {
		profile.Language = input.Language
	}
	profile.ContactMethod = input.ContactMethod
	profile.Emails = input.Emails
	profile.Phones = input.Phones
	profile.Addresses = input.Addresses
	profile.SensitiveData = input.SensitiveData

	if err := profile.ValidatePrimaryEmail(true); err != nil {
		return nil, err
	}

	if err := s.profiles.Create(ctx, profile); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeProfileAlreadyExists, "user already has a profile")
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}

	s.recordWrite(ctx, audit.OperationCreate, profile)
	s.metrics.ProfilesCreated.Inc()
	s.logger.InfoContext(ctx, "profile created", "profile_id", profile.ID.String())
	return profile, nil
}

// GetByUser returns the user's profile with all owned records.
func (s *Service) GetByUser(ctx context.Context, userID id.UserID) (*models.Profile, error) {
	profile, err := s.profiles.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	s.recordRead(ctx, profile)
	return profile, nil
}

// UpdateInput carries a partial profile update; nil fields stay untouched.
type UpdateInput struct {
	FirstName     *string
	LastName      *string
	Nickname      *string
	Language      *models.Language
	ContactMethod *models.ContactMethod
	Emails        []*models.Email
	Phones        []*models.Phone
	Addresses     []*models.Address
	SensitiveData *models.SensitiveData
}

// Update applies the given changes to the user's profile.
func (s *Service) Update(ctx context.Context, userID id.UserID, input UpdateInput) (*models.Profile, error) {
	profile, err := s.profiles.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	if input.FirstName != nil {
		profile.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		profile.LastName = *input.LastName
	}
	if input.Nickname != nil {
		profile.Nickname = *input.Nickname
	}
	if input.Language != nil {
		profile.Language = *input.Language
	}
	if input.ContactMethod != nil {
		profile.ContactMethod = *input.ContactMethod
	}
	if input.Emails != nil {
		profile.Emails = input.Emails
	}
	if input.Phones != nil {
		profile.Phones = input.Phones
	}
	if input.Addresses != nil {
		profile.Addresses = input.Addresses
	}
	if input.SensitiveData != nil {
		profile.SensitiveData = input.SensitiveData
	}

	if err := profile.ValidatePrimaryEmail(true); err != nil {
		return nil, err
	}
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	s.recordWrite(ctx, audit.OperationUpdate, profile)
	return profile, nil
}

// ConnectService connects the user's profile to a registered service.
func (s *Service) ConnectService(ctx context.Context, userID id.UserID, serviceName id.ServiceName) (*registry.ServiceConnection, error) {
	profile, err := s.profiles.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	svc, err := s.services.GetServiceByName(ctx, serviceName)
	if err != nil {
		if errors.Is(err, registrystore.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown service")
		}
		return nil, fmt.Errorf("get service: %w", err)
	}

	conn := &registry.ServiceConnection{
		ID:        id.ConnectionID(uuid.New()),
		ProfileID: profile.ID,
		ServiceID: svc.ID,
		Enabled:   true,
		Service:   svc,
	}
	if err := s.connections.CreateConnection(ctx, conn); err != nil {
		if errors.Is(err, registrystore.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "service already connected")
		}
		return nil, fmt.Errorf("create connection: %w", err)
	}

	audit.Record(ctx, audit.OperationUpdate, profile)
	s.metrics.ServiceConnections.Inc()
	s.logger.InfoContext(ctx, "service connected",
		"profile_id", profile.ID.String(),
		"service", serviceName.String())
	return conn, nil
}

// Connections lists the profile's service connections.
func (s *Service) Connections(ctx context.Context, userID id.UserID) ([]*registry.ServiceConnection, error) {
	profile, err := s.profiles.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	conns, err := s.connections.ListConnections(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	audit.Record(ctx, audit.OperationRead, profile)
	return conns, nil
}

// recordRead audits a read of the profile and every owned record returned
// with it. Reaching a sub-record traverses the base profile, so both
// entries are emitted.
func (s *Service) recordRead(ctx context.Context, profile *models.Profile) {
	audit.Record(ctx, audit.OperationRead, profile)
	if profile.SensitiveData != nil {
		audit.Record(ctx, audit.OperationRead, profile.SensitiveData)
	}
	if vi := profile.VerifiedInfo; vi != nil {
		audit.Record(ctx, audit.OperationRead, vi)
		if vi.PermanentAddress != nil {
			audit.Record(ctx, audit.OperationRead, vi.PermanentAddress)
		}
		if vi.TemporaryAddress != nil {
			audit.Record(ctx, audit.OperationRead, vi.TemporaryAddress)
		}
		if vi.PermanentForeignAddress != nil {
			audit.Record(ctx, audit.OperationRead, vi.PermanentForeignAddress)
		}
	}
	for _, e := range profile.Emails {
		audit.Record(ctx, audit.OperationRead, e)
	}
	for _, p := range profile.Phones {
		audit.Record(ctx, audit.OperationRead, p)
	}
	for _, a := range profile.Addresses {
		audit.Record(ctx, audit.OperationRead, a)
	}
}

func (s *Service) recordWrite(ctx context.Context, op audit.Operation, profile *models.Profile) {
	audit.Record(ctx, op, profile)
	if profile.SensitiveData != nil {
		audit.Record(ctx, op, profile.SensitiveData)
	}
	for _, e := range profile.Emails {
		audit.Record(ctx, op, e)
	}
	for _, p := range profile.Phones {
		audit.Record(ctx, op, p)
	}
	for _, a := range profile.Addresses {
		audit.Record(ctx, op, a)
	}
}

// now is stubbed in tests.
var now = time.Now
