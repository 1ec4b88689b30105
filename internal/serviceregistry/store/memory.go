package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// InMemory stores services and connections in memory for tests and the demo
// environment.
type InMemory struct {
	mu          sync.RWMutex
	services    map[id.ServiceID]*models.Service
	nameIdx     map[id.ServiceName]id.ServiceID
	clientIdx   map[string]id.ServiceName
	connections map[id.ConnectionID]*models.ServiceConnection
}

// NewInMemory creates an in-memory registry store.
func NewInMemory() *InMemory {
	return &InMemory{
		services:    make(map[id.ServiceID]*models.Service),
		nameIdx:     make(map[id.ServiceName]id.ServiceID),
		clientIdx:   make(map[string]id.ServiceName),
		connections: make(map[id.ConnectionID]*models.ServiceConnection),
	}
}

// CreateService registers a service. Names are unique.
func (s *InMemory) CreateService(_ context.Context, svc *models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nameIdx[svc.Name]; exists {
		return ErrConflict
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now()
	}
	s.services[svc.ID] = svc
	s.nameIdx[svc.Name] = svc.ID
	for _, clientID := range svc.ClientIDs {
		s.clientIdx[clientID] = svc.Name
	}
	return nil
}

// GetService retrieves a service by its UUID.
func (s *InMemory) GetService(_ context.Context, serviceID id.ServiceID) (*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if svc, ok := s.services[serviceID]; ok {
		return svc, nil
	}
	return nil, ErrNotFound
}

// GetServiceByName retrieves a service by its machine name.
func (s *InMemory) GetServiceByName(_ context.Context, name id.ServiceName) (*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if serviceID, ok := s.nameIdx[name]; ok {
		return s.services[serviceID], nil
	}
	return nil, ErrNotFound
}

// ListServices returns all registered services ordered by name.
func (s *InMemory) ListServices(_ context.Context) ([]*models.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	services := make([]*models.Service, 0, len(s.services))
	for _, svc := range s.services {
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}

// ServiceNameForClient resolves which service an OAuth client belongs to.
func (s *InMemory) ServiceNameForClient(_ context.Context, clientID string) (id.ServiceName, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.clientIdx[clientID]
	return name, ok
}

// CreateConnection records a profile-service connection. Unique per
// (profile, service).
func (s *InMemory) CreateConnection(_ context.Context, conn *models.ServiceConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.connections {
		if existing.ProfileID == conn.ProfileID && existing.ServiceID == conn.ServiceID {
			return ErrConflict
		}
	}
	if _, ok := s.services[conn.ServiceID]; !ok {
		return ErrNotFound
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now()
	}
	s.connections[conn.ID] = conn
	return nil
}

// ListConnections returns a profile's connections ordered by creation time,
// with the Service field resolved.
func (s *InMemory) ListConnections(_ context.Context, profileID id.ProfileID) ([]*models.ServiceConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var conns []*models.ServiceConnection
	for _, conn := range s.connections {
		if conn.ProfileID != profileID {
			continue
		}
		resolved := *conn
		resolved.Service = s.services[conn.ServiceID]
		conns = append(conns, &resolved)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].CreatedAt.Before(conns[j].CreatedAt) })
	return conns, nil
}

// DeleteConnection removes the connection between a profile and a service.
func (s *InMemory) DeleteConnection(_ context.Context, profileID id.ProfileID, serviceID id.ServiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for connID, conn := range s.connections {
		if conn.ProfileID == profileID && conn.ServiceID == serviceID {
			delete(s.connections, connID)
			return nil
		}
	}
	return ErrNotFound
}

// DeleteConnectionsForProfile removes all of a profile's connections.
func (s *InMemory) DeleteConnectionsForProfile(_ context.Context, profileID id.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for connID, conn := range s.connections {
		if conn.ProfileID == profileID {
			delete(s.connections, connID)
		}
	}
	return nil
}
