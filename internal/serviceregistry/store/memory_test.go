package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

func newService(name string) *models.Service {
	return &models.Service{
		ID:   id.ServiceID(uuid.New()),
		Name: id.ServiceName(name),
	}
}

func TestCreateServiceRejectsDuplicateName(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	require.NoError(t, s.CreateService(ctx, newService("berth")))
	err := s.CreateService(ctx, newService("berth"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestServiceNameForClient(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	svc := newService("youth-membership")
	svc.ClientIDs = []string{"youth-ui", "youth-admin"}
	require.NoError(t, s.CreateService(ctx, svc))

	name, ok := s.ServiceNameForClient(ctx, "youth-admin")
	require.True(t, ok)
	assert.Equal(t, id.ServiceName("youth-membership"), name)

	_, ok = s.ServiceNameForClient(ctx, "unknown")
	assert.False(t, ok)
}

func TestConnectionLifecycle(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	svc := newService("berth")
	require.NoError(t, s.CreateService(ctx, svc))

	profileID := id.ProfileID(uuid.New())
	conn := &models.ServiceConnection{
		ID:        id.ConnectionID(uuid.New()),
		ProfileID: profileID,
		ServiceID: svc.ID,
		Enabled:   true,
	}
	require.NoError(t, s.CreateConnection(ctx, conn))

	// Duplicate (profile, service) pair is rejected.
	dup := &models.ServiceConnection{
		ID:        id.ConnectionID(uuid.New()),
		ProfileID: profileID,
		ServiceID: svc.ID,
	}
	assert.ErrorIs(t, s.CreateConnection(ctx, dup), ErrConflict)

	conns, err := s.ListConnections(ctx, profileID)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	require.NotNil(t, conns[0].Service, "list must resolve the service")
	assert.Equal(t, id.ServiceName("berth"), conns[0].Service.Name)

	require.NoError(t, s.DeleteConnection(ctx, profileID, svc.ID))
	conns, err = s.ListConnections(ctx, profileID)
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestConnectionRequiresKnownService(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	conn := &models.ServiceConnection{
		ID:        id.ConnectionID(uuid.New()),
		ProfileID: id.ProfileID(uuid.New()),
		ServiceID: id.ServiceID(uuid.New()),
	}
	assert.ErrorIs(t, s.CreateConnection(ctx, conn), ErrNotFound)
}
