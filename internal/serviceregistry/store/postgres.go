package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// Postgres persists the service registry in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) CreateService(ctx context.Context, svc *models.Service) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create service tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO services (
			id, name, title, description,
			gdpr_query_scope, gdpr_delete_scope, gdpr_url,
			is_profile_service, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (name) DO NOTHING
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, query,
		uuid.UUID(svc.ID),
		svc.Name.String(),
		svc.Title,
		svc.Description,
		svc.GDPRQueryScope,
		svc.GDPRDeleteScope,
		svc.GDPRURL,
		svc.IsProfileService,
	).Scan(&svc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("insert service: %w", err)
	}

	for _, field := range svc.AllowedDataFields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO service_allowed_data_fields (service_id, field_name) VALUES ($1, $2)`,
			uuid.UUID(svc.ID), string(field),
		); err != nil {
			return fmt.Errorf("insert allowed data field: %w", err)
		}
	}
	for _, clientID := range svc.ClientIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO service_clients (service_id, client_id) VALUES ($1, $2)`,
			uuid.UUID(svc.ID), clientID,
		); err != nil {
			return fmt.Errorf("insert service client: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create service: %w", err)
	}
	return nil
}

const serviceColumns = `
	id, name, title, description,
	gdpr_query_scope, gdpr_delete_scope, gdpr_url,
	is_profile_service, created_at
`

func (s *Postgres) GetService(ctx context.Context, serviceID id.ServiceID) (*models.Service, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id = $1`, uuid.UUID(serviceID))
	return s.loadService(ctx, row)
}

func (s *Postgres) GetServiceByName(ctx context.Context, name id.ServiceName) (*models.Service, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE name = $1`, name.String())
	return s.loadService(ctx, row)
}

func (s *Postgres) ListServices(ctx context.Context) ([]*models.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}

	for _, svc := range services {
		if err := s.loadServiceDetails(ctx, svc); err != nil {
			return nil, err
		}
	}
	return services, nil
}

func (s *Postgres) ServiceNameForClient(ctx context.Context, clientID string) (id.ServiceName, bool) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT s.name FROM services s
		JOIN service_clients c ON c.service_id = s.id
		WHERE c.client_id = $1
	`, clientID).Scan(&name)
	if err != nil {
		return "", false
	}
	return id.ServiceName(name), true
}

func (s *Postgres) CreateConnection(ctx context.Context, conn *models.ServiceConnection) error {
	query := `
		INSERT INTO service_connections (id, profile_id, service_id, enabled, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (profile_id, service_id) DO NOTHING
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(conn.ID),
		uuid.UUID(conn.ProfileID),
		uuid.UUID(conn.ServiceID),
		conn.Enabled,
	).Scan(&conn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("insert service connection: %w", err)
	}
	return nil
}

func (s *Postgres) ListConnections(ctx context.Context, profileID id.ProfileID) ([]*models.ServiceConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.id, c.profile_id, c.service_id, c.enabled, c.created_at,
			s.id, s.name, s.title, s.description,
			s.gdpr_query_scope, s.gdpr_delete_scope, s.gdpr_url,
			s.is_profile_service, s.created_at
		FROM service_connections c
		JOIN services s ON s.id = c.service_id
		WHERE c.profile_id = $1
		ORDER BY c.created_at
	`, uuid.UUID(profileID))
	if err != nil {
		return nil, fmt.Errorf("list service connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.ServiceConnection
	for rows.Next() {
		var (
			conn             models.ServiceConnection
			svc              models.Service
			connID, pID, sID uuid.UUID
			svcID            uuid.UUID
			name             string
		)
		if err := rows.Scan(
			&connID, &pID, &sID, &conn.Enabled, &conn.CreatedAt,
			&svcID, &name, &svc.Title, &svc.Description,
			&svc.GDPRQueryScope, &svc.GDPRDeleteScope, &svc.GDPRURL,
			&svc.IsProfileService, &svc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan service connection: %w", err)
		}
		conn.ID = id.ConnectionID(connID)
		conn.ProfileID = id.ProfileID(pID)
		conn.ServiceID = id.ServiceID(sID)
		svc.ID = id.ServiceID(svcID)
		svc.Name = id.ServiceName(name)
		conn.Service = &svc
		conns = append(conns, &conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service connections: %w", err)
	}

	for _, conn := range conns {
		if err := s.loadServiceDetails(ctx, conn.Service); err != nil {
			return nil, err
		}
	}
	return conns, nil
}

func (s *Postgres) DeleteConnection(ctx context.Context, profileID id.ProfileID, serviceID id.ServiceID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM service_connections WHERE profile_id = $1 AND service_id = $2`,
		uuid.UUID(profileID), uuid.UUID(serviceID))
	if err != nil {
		return fmt.Errorf("delete service connection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete service connection result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteConnectionsForProfile(ctx context.Context, profileID id.ProfileID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM service_connections WHERE profile_id = $1`,
		uuid.UUID(profileID)); err != nil {
		return fmt.Errorf("delete profile connections: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*models.Service, error) {
	var (
		svc   models.Service
		svcID uuid.UUID
		name  string
	)
	err := row.Scan(
		&svcID, &name, &svc.Title, &svc.Description,
		&svc.GDPRQueryScope, &svc.GDPRDeleteScope, &svc.GDPRURL,
		&svc.IsProfileService, &svc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	svc.ID = id.ServiceID(svcID)
	svc.Name = id.ServiceName(name)
	return &svc, nil
}

func (s *Postgres) loadService(ctx context.Context, row rowScanner) (*models.Service, error) {
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan service: %w", err)
	}
	if err := s.loadServiceDetails(ctx, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Postgres) loadServiceDetails(ctx context.Context, svc *models.Service) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field_name FROM service_allowed_data_fields WHERE service_id = $1 ORDER BY field_name`,
		uuid.UUID(svc.ID))
	if err != nil {
		return fmt.Errorf("load allowed data fields: %w", err)
	}
	defer rows.Close()
	svc.AllowedDataFields = nil
	for rows.Next() {
		var field string
		if err := rows.Scan(&field); err != nil {
			return fmt.Errorf("scan allowed data field: %w", err)
		}
		svc.AllowedDataFields = append(svc.AllowedDataFields, models.AllowedDataField(field))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate allowed data fields: %w", err)
	}

	clientRows, err := s.db.QueryContext(ctx,
		`SELECT client_id FROM service_clients WHERE service_id = $1 ORDER BY client_id`,
		uuid.UUID(svc.ID))
	if err != nil {
		return fmt.Errorf("load service clients: %w", err)
	}
	defer clientRows.Close()
	svc.ClientIDs = nil
	for clientRows.Next() {
		var clientID string
		if err := clientRows.Scan(&clientID); err != nil {
			return fmt.Errorf("scan service client: %w", err)
		}
		svc.ClientIDs = append(svc.ClientIDs, clientID)
	}
	return clientRows.Err()
}
