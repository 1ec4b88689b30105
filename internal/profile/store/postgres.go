package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// Postgres persists profiles in PostgreSQL. It implements ProfileStore and
// ClaimTokenStore; temporary read tokens live in Redis instead.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed profile store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, profile *models.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create profile tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO profiles (
			id, user_id, first_name, last_name, nickname,
			language, contact_method, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT DO NOTHING
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		uuid.UUID(profile.ID),
		nullableUUID(uuid.UUID(profile.UserID)),
		profile.FirstName,
		profile.LastName,
		profile.Nickname,
		string(profile.Language),
		string(profile.ContactMethod),
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("insert profile: %w", err)
	}

	if err := writeOwnedRecords(ctx, tx, profile); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create profile: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	return s.loadProfile(ctx, `WHERE id = $1`, uuid.UUID(profileID))
}

func (s *Postgres) GetByUser(ctx context.Context, userID id.UserID) (*models.Profile, error) {
	return s.loadProfile(ctx, `WHERE user_id = $1`, uuid.UUID(userID))
}

func (s *Postgres) loadProfile(ctx context.Context, where string, arg any) (*models.Profile, error) {
	var (
		profile       models.Profile
		profileID     uuid.UUID
		userID        sql.NullString
		contactMethod sql.NullString
	)
	query := `
		SELECT id, user_id, first_name, last_name, nickname,
		       language, contact_method, created_at, updated_at
		FROM profiles ` + where
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&profileID, &userID, &profile.FirstName, &profile.LastName,
		&profile.Nickname, &profile.Language, &contactMethod,
		&profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select profile: %w", err)
	}
	profile.ID = id.ProfileID(profileID)
	if userID.Valid {
		parsed, err := uuid.Parse(userID.String)
		if err != nil {
			return nil, fmt.Errorf("parse profile user id: %w", err)
		}
		profile.UserID = id.UserID(parsed)
	}
	if contactMethod.Valid {
		profile.ContactMethod = models.ContactMethod(contactMethod.String)
	}

	if err := s.loadOwnedRecords(ctx, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *Postgres) Update(ctx context.Context, profile *models.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update profile tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		UPDATE profiles
		SET first_name = $2, last_name = $3, nickname = $4,
		    language = $5, contact_method = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		uuid.UUID(profile.ID),
		profile.FirstName,
		profile.LastName,
		profile.Nickname,
		string(profile.Language),
		string(profile.ContactMethod),
	).Scan(&profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update profile: %w", err)
	}

	// Owned records are replaced wholesale. The profile record is the unit
	// of update; diffing individual contacts is not worth the complexity.
	for _, table := range []string{"emails", "phones", "addresses", "sensitive_data", "verified_personal_information", "verified_personal_information_addresses"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE profile_id = $1`, uuid.UUID(profile.ID)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := writeOwnedRecords(ctx, tx, profile); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update profile: %w", err)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, profileID id.ProfileID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM profiles WHERE id = $1`, uuid.UUID(profileID))
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) LinkUser(ctx context.Context, profileID id.ProfileID, userID id.UserID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET user_id = $2, updated_at = NOW()
		WHERE id = $1 AND user_id IS NULL
	`, uuid.UUID(profileID), uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("link profile user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link profile user result: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Postgres) UserUUIDs(ctx context.Context, profileIDs []id.ProfileID) (map[id.ProfileID]id.UserID, error) {
	if len(profileIDs) == 0 {
		return map[id.ProfileID]id.UserID{}, nil
	}
	ids := make([]uuid.UUID, len(profileIDs))
	for i, pid := range profileIDs {
		ids[i] = uuid.UUID(pid)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id FROM profiles
		WHERE id = ANY($1) AND user_id IS NOT NULL
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("select profile users: %w", err)
	}
	defer rows.Close()

	result := make(map[id.ProfileID]id.UserID, len(profileIDs))
	for rows.Next() {
		var pid, uid uuid.UUID
		if err := rows.Scan(&pid, &uid); err != nil {
			return nil, fmt.Errorf("scan profile user: %w", err)
		}
		result[id.ProfileID(pid)] = id.UserID(uid)
	}
	return result, rows.Err()
}

func (s *Postgres) CreateClaimToken(ctx context.Context, token *models.ClaimToken) error {
	query := `
		INSERT INTO claim_tokens (id, profile_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(token.ID),
		uuid.UUID(token.ProfileID),
		token.TokenHash,
		token.ExpiresAt,
	).Scan(&token.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert claim token: %w", err)
	}
	return nil
}

func (s *Postgres) ClaimTokensForProfile(ctx context.Context, profileID id.ProfileID, now time.Time) ([]*models.ClaimToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, profile_id, token_hash, expires_at, created_at
		FROM claim_tokens
		WHERE profile_id = $1 AND expires_at > $2
		ORDER BY created_at
	`, uuid.UUID(profileID), now)
	if err != nil {
		return nil, fmt.Errorf("select claim tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.ClaimToken
	for rows.Next() {
		var (
			token        models.ClaimToken
			tokenID, pid uuid.UUID
		)
		if err := rows.Scan(&tokenID, &pid, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan claim token: %w", err)
		}
		token.ID = id.TokenID(tokenID)
		token.ProfileID = id.ProfileID(pid)
		tokens = append(tokens, &token)
	}
	return tokens, rows.Err()
}

func (s *Postgres) DeleteClaimTokens(ctx context.Context, profileID id.ProfileID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM claim_tokens WHERE profile_id = $1`, uuid.UUID(profileID)); err != nil {
		return fmt.Errorf("delete claim tokens: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func writeOwnedRecords(ctx context.Context, tx execer, profile *models.Profile) error {
	for _, e := range profile.Emails {
		if e.ID.IsNil() {
			e.ID = id.ContactID(uuid.New())
		}
		e.ProfileID = profile.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO emails (id, profile_id, email, email_type, is_primary, verified)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.UUID(e.ID), uuid.UUID(profile.ID), e.Email, string(e.Type), e.Primary, e.Verified); err != nil {
			return fmt.Errorf("insert email: %w", err)
		}
	}
	for _, p := range profile.Phones {
		if p.ID.IsNil() {
			p.ID = id.ContactID(uuid.New())
		}
		p.ProfileID = profile.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO phones (id, profile_id, phone, phone_type, is_primary)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.UUID(p.ID), uuid.UUID(profile.ID), p.Phone, string(p.Type), p.Primary); err != nil {
			return fmt.Errorf("insert phone: %w", err)
		}
	}
	for _, a := range profile.Addresses {
		if a.ID.IsNil() {
			a.ID = id.ContactID(uuid.New())
		}
		a.ProfileID = profile.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO addresses (id, profile_id, address, postal_code, city, country_code, address_type, is_primary)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.UUID(a.ID), uuid.UUID(profile.ID), a.Address, a.PostalCode, a.City, a.CountryCode, string(a.Type), a.Primary); err != nil {
			return fmt.Errorf("insert address: %w", err)
		}
	}

	if sd := profile.SensitiveData; sd != nil {
		sd.ProfileID = profile.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sensitive_data (profile_id, ssn) VALUES ($1, $2)
		`, uuid.UUID(profile.ID), sd.SSN); err != nil {
			return fmt.Errorf("insert sensitive data: %w", err)
		}
	}
	if vi := profile.VerifiedInfo; vi != nil {
		vi.ProfileID = profile.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO verified_personal_information (
				profile_id, first_name, last_name, given_name,
				national_identification_number, municipality_of_residence, municipality_number
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.UUID(profile.ID), vi.FirstName, vi.LastName, vi.GivenName,
			vi.NationalIdentificationNumber, vi.MunicipalityOfResidence, vi.MunicipalityNumber); err != nil {
			return fmt.Errorf("insert verified personal information: %w", err)
		}
		if err := writeVerifiedAddresses(ctx, tx, profile.ID, vi); err != nil {
			return err
		}
	}
	return nil
}

func writeVerifiedAddresses(ctx context.Context, tx execer, profileID id.ProfileID, vi *models.VerifiedPersonalInformation) error {
	insert := func(kind models.VerifiedPersonalInformationAddressKind, street, postal, postOffice, additional, country string) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO verified_personal_information_addresses (
				profile_id, kind, street_address, postal_code, post_office,
				additional_address, country_code
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.UUID(profileID), string(kind), street, postal, postOffice, additional, country)
		if err != nil {
			return fmt.Errorf("insert verified address %s: %w", kind, err)
		}
		return nil
	}

	if a := vi.PermanentAddress; a != nil {
		a.ProfileID = profileID
		a.Kind = models.VerifiedAddressPermanent
		if err := insert(a.Kind, a.StreetAddress, a.PostalCode, a.PostOffice, "", ""); err != nil {
			return err
		}
	}
	if a := vi.TemporaryAddress; a != nil {
		a.ProfileID = profileID
		a.Kind = models.VerifiedAddressTemporary
		if err := insert(a.Kind, a.StreetAddress, a.PostalCode, a.PostOffice, "", ""); err != nil {
			return err
		}
	}
	if a := vi.PermanentForeignAddress; a != nil {
		a.ProfileID = profileID
		if err := insert(models.VerifiedAddressPermanentForeign, a.StreetAddress, "", "", a.AdditionalAddress, a.CountryCode); err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) loadOwnedRecords(ctx context.Context, profile *models.Profile) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, email_type, is_primary, verified
		FROM emails WHERE profile_id = $1 ORDER BY email
	`, uuid.UUID(profile.ID))
	if err != nil {
		return fmt.Errorf("select emails: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e   models.Email
			eid uuid.UUID
		)
		if err := rows.Scan(&eid, &e.Email, &e.Type, &e.Primary, &e.Verified); err != nil {
			return fmt.Errorf("scan email: %w", err)
		}
		e.ID = id.ContactID(eid)
		e.ProfileID = profile.ID
		profile.Emails = append(profile.Emails, &e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate emails: %w", err)
	}

	phoneRows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, phone_type, is_primary
		FROM phones WHERE profile_id = $1 ORDER BY phone
	`, uuid.UUID(profile.ID))
	if err != nil {
		return fmt.Errorf("select phones: %w", err)
	}
	defer phoneRows.Close()
	for phoneRows.Next() {
		var (
			p   models.Phone
			pid uuid.UUID
		)
		if err := phoneRows.Scan(&pid, &p.Phone, &p.Type, &p.Primary); err != nil {
			return fmt.Errorf("scan phone: %w", err)
		}
		p.ID = id.ContactID(pid)
		p.ProfileID = profile.ID
		profile.Phones = append(profile.Phones, &p)
	}
	if err := phoneRows.Err(); err != nil {
		return fmt.Errorf("iterate phones: %w", err)
	}

	addrRows, err := s.db.QueryContext(ctx, `
		SELECT id, address, postal_code, city, country_code, address_type, is_primary
		FROM addresses WHERE profile_id = $1 ORDER BY address
	`, uuid.UUID(profile.ID))
	if err != nil {
		return fmt.Errorf("select addresses: %w", err)
	}
	defer addrRows.Close()
	for addrRows.Next() {
		var (
			a   models.Address
			aid uuid.UUID
		)
		if err := addrRows.Scan(&aid, &a.Address, &a.PostalCode, &a.City, &a.CountryCode, &a.Type, &a.Primary); err != nil {
			return fmt.Errorf("scan address: %w", err)
		}
		a.ID = id.ContactID(aid)
		a.ProfileID = profile.ID
		profile.Addresses = append(profile.Addresses, &a)
	}
	if err := addrRows.Err(); err != nil {
		return fmt.Errorf("iterate addresses: %w", err)
	}

	var sd models.SensitiveData
	err = s.db.QueryRowContext(ctx,
		`SELECT profile_id, ssn FROM sensitive_data WHERE profile_id = $1`,
		uuid.UUID(profile.ID)).Scan(new(uuid.UUID), &sd.SSN)
	switch {
	case err == nil:
		sd.ProfileID = profile.ID
		profile.SensitiveData = &sd
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("select sensitive data: %w", err)
	}

	return s.loadVerifiedInfo(ctx, profile)
}

func (s *Postgres) loadVerifiedInfo(ctx context.Context, profile *models.Profile) error {
	var vi models.VerifiedPersonalInformation
	err := s.db.QueryRowContext(ctx, `
		SELECT first_name, last_name, given_name,
		       national_identification_number, municipality_of_residence, municipality_number
		FROM verified_personal_information WHERE profile_id = $1
	`, uuid.UUID(profile.ID)).Scan(
		&vi.FirstName, &vi.LastName, &vi.GivenName,
		&vi.NationalIdentificationNumber, &vi.MunicipalityOfResidence, &vi.MunicipalityNumber,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("select verified personal information: %w", err)
	}
	vi.ProfileID = profile.ID

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, street_address, postal_code, post_office, additional_address, country_code
		FROM verified_personal_information_addresses WHERE profile_id = $1
	`, uuid.UUID(profile.ID))
	if err != nil {
		return fmt.Errorf("select verified addresses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind, street, postal, postOffice, additional, country string
		if err := rows.Scan(&kind, &street, &postal, &postOffice, &additional, &country); err != nil {
			return fmt.Errorf("scan verified address: %w", err)
		}
		switch models.VerifiedPersonalInformationAddressKind(kind) {
		case models.VerifiedAddressPermanent:
			vi.PermanentAddress = &models.VerifiedPersonalInformationAddress{
				ProfileID: profile.ID, Kind: models.VerifiedAddressPermanent,
				StreetAddress: street, PostalCode: postal, PostOffice: postOffice,
			}
		case models.VerifiedAddressTemporary:
			vi.TemporaryAddress = &models.VerifiedPersonalInformationAddress{
				ProfileID: profile.ID, Kind: models.VerifiedAddressTemporary,
				StreetAddress: street, PostalCode: postal, PostOffice: postOffice,
			}
		case models.VerifiedAddressPermanentForeign:
			vi.PermanentForeignAddress = &models.VerifiedPersonalInformationForeignAddress{
				ProfileID: profile.ID, StreetAddress: street,
				AdditionalAddress: additional, CountryCode: country,
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate verified addresses: %w", err)
	}
	profile.VerifiedInfo = &vi
	return nil
}

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}
