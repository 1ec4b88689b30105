//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/store"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	"github.com/City-of-Helsinki/open-city-profile-sub000/pkg/testutil"
	"github.com/City-of-Helsinki/open-city-profile-sub000/pkg/testutil/containers"
)

type RegistryPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestRegistryPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RegistryPostgresSuite))
}

func (s *RegistryPostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *RegistryPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateModuleTables(context.Background()))
}

func (s *RegistryPostgresSuite) TestServiceRoundTrip() {
	ctx := context.Background()
	svc := testutil.NewService("berthservice").Build()
	svc.Description = "Boat berth reservations"
	svc.AllowedDataFields = []models.AllowedDataField{models.FieldName, models.FieldEmail}
	svc.ClientIDs = []string{"berth-ui", "berth-admin"}

	s.Require().NoError(s.store.CreateService(ctx, svc))

	got, err := s.store.GetService(ctx, svc.ID)
	s.Require().NoError(err)
	s.Equal(svc.Name, got.Name)
	s.Equal("Boat berth reservations", got.Description)
	s.ElementsMatch(svc.AllowedDataFields, got.AllowedDataFields)
	s.ElementsMatch(svc.ClientIDs, got.ClientIDs)

	byName, err := s.store.GetServiceByName(ctx, svc.Name)
	s.Require().NoError(err)
	s.Equal(svc.ID, byName.ID)
}

func (s *RegistryPostgresSuite) TestDuplicateServiceNameConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateService(ctx, testutil.NewService("parkingservice").Build()))
	s.ErrorIs(s.store.CreateService(ctx, testutil.NewService("parkingservice").Build()), store.ErrConflict)
}

func (s *RegistryPostgresSuite) TestListServices() {
	ctx := context.Background()
	s.Require().NoError(s.store.CreateService(ctx, testutil.NewService("berthservice").Build()))
	s.Require().NoError(s.store.CreateService(ctx, testutil.NewService("parkingservice").Build()))

	services, err := s.store.ListServices(ctx)
	s.Require().NoError(err)
	s.Len(services, 2)
}

func (s *RegistryPostgresSuite) TestServiceNameForClient() {
	ctx := context.Background()
	svc := testutil.NewService("berthservice").Build()
	svc.ClientIDs = []string{"berth-ui"}
	s.Require().NoError(s.store.CreateService(ctx, svc))

	name, ok := s.store.ServiceNameForClient(ctx, "berth-ui")
	s.True(ok)
	s.Equal(svc.Name, name)

	_, ok = s.store.ServiceNameForClient(ctx, "unknown-client")
	s.False(ok)
}

func (s *RegistryPostgresSuite) TestConnectionLifecycle() {
	ctx := context.Background()
	profileID := s.postgres.CreateTestProfile(ctx, s.T())
	svc := testutil.NewService("berthservice").Build()
	s.Require().NoError(s.store.CreateService(ctx, svc))

	conn := &models.ServiceConnection{
		ID:        id.ConnectionID(uuid.New()),
		ProfileID: profileID,
		ServiceID: svc.ID,
		Enabled:   true,
	}
	s.Require().NoError(s.store.CreateConnection(ctx, conn))

	// Unique per (profile, service).
	dup := &models.ServiceConnection{
		ID:        id.ConnectionID(uuid.New()),
		ProfileID: profileID,
		ServiceID: svc.ID,
		Enabled:   true,
	}
	s.ErrorIs(s.store.CreateConnection(ctx, dup), store.ErrConflict)

	conns, err := s.store.ListConnections(ctx, profileID)
	s.Require().NoError(err)
	s.Require().Len(conns, 1)
	s.Require().NotNil(conns[0].Service)
	s.Equal(svc.Name, conns[0].Service.Name)

	s.Require().NoError(s.store.DeleteConnection(ctx, profileID, svc.ID))
	conns, err = s.store.ListConnections(ctx, profileID)
	s.Require().NoError(err)
	s.Empty(conns)
}

func (s *RegistryPostgresSuite) TestDeleteConnectionsForProfile() {
	ctx := context.Background()
	profileID := s.postgres.CreateTestProfile(ctx, s.T())
	otherProfile := s.postgres.CreateTestProfile(ctx, s.T())

	berth := testutil.NewService("berthservice").Build()
	parking := testutil.NewService("parkingservice").Build()
	s.Require().NoError(s.store.CreateService(ctx, berth))
	s.Require().NoError(s.store.CreateService(ctx, parking))

	for _, svc := range []*models.Service{berth, parking} {
		s.Require().NoError(s.store.CreateConnection(ctx, &models.ServiceConnection{
			ID:        id.ConnectionID(uuid.New()),
			ProfileID: profileID,
			ServiceID: svc.ID,
			Enabled:   true,
		}))
	}
	s.Require().NoError(s.store.CreateConnection(ctx, &models.ServiceConnection{
		ID:        id.ConnectionID(uuid.New()),
		ProfileID: otherProfile,
		ServiceID: berth.ID,
		Enabled:   true,
	}))

	s.Require().NoError(s.store.DeleteConnectionsForProfile(ctx, profileID))

	conns, err := s.store.ListConnections(ctx, profileID)
	s.Require().NoError(err)
	s.Empty(conns)

	kept, err := s.store.ListConnections(ctx, otherProfile)
	s.Require().NoError(err)
	s.Len(kept, 1)
}
