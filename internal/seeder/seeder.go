// Package seeder populates stores with demo data for development
// environments.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	profilemodels "github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	profilestore "github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/store"
	registry "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
	registrystore "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/store"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// Seeder loads demo services and profiles.
type Seeder struct {
	profiles    profilestore.ProfileStore
	services    registrystore.ServiceStore
	connections registrystore.ConnectionStore
	logger      *slog.Logger
}

// New creates a seeder.
func New(profiles profilestore.ProfileStore, services registrystore.ServiceStore, connections registrystore.ConnectionStore, logger *slog.Logger) *Seeder {
	return &Seeder{
		profiles:    profiles,
		services:    services,
		connections: connections,
		logger:      logger,
	}
}

// SeedAll loads the demo registry and a demo profile connected to every
// GDPR-capable service. Re-running against an already seeded store is a
// no-op.
func (s *Seeder) SeedAll(ctx context.Context) error {
	services, err := s.seedServices(ctx)
	if err != nil {
		return fmt.Errorf("seed services: %w", err)
	}
	if err := s.seedProfile(ctx, services); err != nil {
		return fmt.Errorf("seed profile: %w", err)
	}
	s.logger.Info("demo data seeded", "services", len(services))
	return nil
}

func (s *Seeder) seedServices(ctx context.Context) ([]*registry.Service, error) {
	services := []*registry.Service{
		{
			ID:               id.ServiceID(uuid.New()),
			Name:             "helsinkiprofile",
			Title:            "Helsinki-profiili",
			Description:      "The profile service itself",
			IsProfileService: true,
			AllowedDataFields: []registry.AllowedDataField{
				registry.FieldName, registry.FieldEmail, registry.FieldPhone,
				registry.FieldAddress, registry.FieldPersonalIdentityCode,
			},
		},
		{
			ID:              id.ServiceID(uuid.New()),
			Name:            "berthservice",
			Title:           "Berth reservations",
			Description:     "Boat berth reservations",
			GDPRQueryScope:  "berthservice.gdprquery",
			GDPRDeleteScope: "berthservice.gdprdelete",
			GDPRURL:         "http://localhost:8081/gdpr-api/v1/profiles/$profile_id",
			AllowedDataFields: []registry.AllowedDataField{
				registry.FieldName, registry.FieldEmail, registry.FieldAddress,
			},
			ClientIDs: []string{"berth-ui"},
		},
		{
			ID:              id.ServiceID(uuid.New()),
			Name:            "parkingservice",
			Title:           "Resident parking",
			Description:     "Resident parking permits",
			GDPRQueryScope:  "parkingservice.gdprquery",
			GDPRDeleteScope: "parkingservice.gdprdelete",
			GDPRURL:         "http://localhost:8082/gdpr-api/v1/profiles/$profile_id",
			AllowedDataFields: []registry.AllowedDataField{
				registry.FieldName, registry.FieldAddress,
			},
			ClientIDs: []string{"parking-ui"},
		},
	}

	for _, svc := range services {
		if err := s.services.CreateService(ctx, svc); err != nil {
			if errors.Is(err, registrystore.ErrConflict) {
				continue
			}
			return nil, err
		}
	}
	return services, nil
}

func (s *Seeder) seedProfile(ctx context.Context, services []*registry.Service) error {
	profileID, err := id.ParseProfileID("9a4716eb-5b55-46f1-8c24-f0b220f3b643")
	if err != nil {
		return err
	}
	if _, err := s.profiles.Get(ctx, profileID); err == nil {
		return nil
	}

	profile, err := profilemodels.NewProfile(profileID, id.UserID{}, "Demo", "Helsinkiläinen")
	if err != nil {
		return err
	}
	profile.Emails = []*profilemodels.Email{{
		ID:      id.ContactID(uuid.New()),
		Email:   "demo@hel.fi",
		Type:    profilemodels.EmailTypePersonal,
		Primary: true,
	}}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return err
	}

	for _, svc := range services {
		if svc.IsProfileService {
			continue
		}
		conn := &registry.ServiceConnection{
			ID:        id.ConnectionID(uuid.New()),
			ProfileID: profile.ID,
			ServiceID: svc.ID,
			Enabled:   true,
			Service:   svc,
		}
		if err := s.connections.CreateConnection(ctx, conn); err != nil && !errors.Is(err, registrystore.ErrConflict) {
			return err
		}
	}
	return nil
}
