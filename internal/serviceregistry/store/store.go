// Package store provides service registry persistence.
package store

import (
	"context"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	"github.com/City-of-Helsinki/open-city-profile-sub000/pkg/platform/sentinel"
)

// ErrNotFound is returned when a service or connection is not found.
var ErrNotFound = sentinel.ErrNotFound

// ErrConflict is returned when a connection already exists for the
// (profile, service) pair.
var ErrConflict = sentinel.ErrConflict

// ServiceStore persists the downstream service registry.
type ServiceStore interface {
	CreateService(ctx context.Context, svc *models.Service) error
	GetService(ctx context.Context, serviceID id.ServiceID) (*models.Service, error)
	GetServiceByName(ctx context.Context, name id.ServiceName) (*models.Service, error)
	ListServices(ctx context.Context) ([]*models.Service, error)
	// ServiceNameForClient resolves which service an OAuth client belongs to.
	ServiceNameForClient(ctx context.Context, clientID string) (id.ServiceName, bool)
}

// ConnectionStore persists profile-to-service connections. List operations
// return connections with the Service field resolved.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, conn *models.ServiceConnection) error
	ListConnections(ctx context.Context, profileID id.ProfileID) ([]*models.ServiceConnection, error)
	DeleteConnection(ctx context.Context, profileID id.ProfileID, serviceID id.ServiceID) error
	DeleteConnectionsForProfile(ctx context.Context, profileID id.ProfileID) error
}
