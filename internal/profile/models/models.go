package models

import (
	"time"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
)

// Language preferences recognized for a profile.
type Language string

const (
	LanguageFinnish Language = "fi"
	LanguageSwedish Language = "sv"
	LanguageEnglish Language = "en"
)

// ContactMethod is the profile owner's preferred way of being reached.
type ContactMethod string

const (
	ContactMethodEmail ContactMethod = "email"
	ContactMethodSMS   ContactMethod = "sms"
)

// Profile is a citizen's profile record.
//
// A profile may exist without a linked user account (e.g. created by staff
// and later claimed with a claim token). UserID is the nil UUID in that case.
type Profile struct {
	ID            id.ProfileID
	UserID        id.UserID
	FirstName     string
	LastName      string
	Nickname      string
	Language      Language
	ContactMethod ContactMethod
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Emails    []*Email
	Phones    []*Phone
	Addresses []*Address

	SensitiveData *SensitiveData
	VerifiedInfo  *VerifiedPersonalInformation
}

// NewProfile creates a Profile with domain invariant checks.
func NewProfile(profileID id.ProfileID, userID id.UserID, firstName, lastName string) (*Profile, error) {
	if profileID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "profile ID required")
	}
	if firstName == "" && lastName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "profile requires a name")
	}
	return &Profile{
		ID:        profileID,
		UserID:    userID,
		FirstName: firstName,
		LastName:  lastName,
		Language:  LanguageFinnish,
	}, nil
}

// HasLinkedUser reports whether the profile is attached to a user account.
func (p *Profile) HasLinkedUser() bool {
	return !p.UserID.IsNil()
}

// PrimaryEmail returns the profile's primary email, or nil when none is set.
func (p *Profile) PrimaryEmail() *Email {
	for _, e := range p.Emails {
		if e.Primary {
			return e
		}
	}
	return nil
}

// ValidatePrimaryEmail enforces the at-most-one-primary invariant and, when
// require is set, that exactly one primary email exists.
func (p *Profile) ValidatePrimaryEmail(require bool) error {
	primaries := 0
	for _, e := range p.Emails {
		if e.Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return dErrors.New(dErrors.CodeDataConflict, "profile has multiple primary emails")
	}
	if require && primaries == 0 {
		return dErrors.New(dErrors.CodePrimaryEmailRequired, "profile requires a primary email")
	}
	return nil
}

// EmailType categorizes an email address.
type EmailType string

const (
	EmailTypePersonal EmailType = "personal"
	EmailTypeWork     EmailType = "work"
	EmailTypeOther    EmailType = "other"
)

// Email is a contact email owned by a profile.
type Email struct {
	ID        id.ContactID
	ProfileID id.ProfileID
	Email     string
	Type      EmailType
	Primary   bool
	Verified  bool
}

// PhoneType categorizes a phone number.
type PhoneType string

const (
	PhoneTypeMobile PhoneType = "mobile"
	PhoneTypeHome   PhoneType = "home"
	PhoneTypeWork   PhoneType = "work"
	PhoneTypeOther  PhoneType = "other"
)

// Phone is a contact phone number owned by a profile.
type Phone struct {
	ID        id.ContactID
	ProfileID id.ProfileID
	Phone     string
	Type      PhoneType
	Primary   bool
}

// AddressType categorizes a postal address.
type AddressType string

const (
	AddressTypeHome  AddressType = "home"
	AddressTypeWork  AddressType = "work"
	AddressTypeOther AddressType = "other"
)

// Address is a contact address owned by a profile.
type Address struct {
	ID          id.ContactID
	ProfileID   id.ProfileID
	Address     string
	PostalCode  string
	City        string
	CountryCode string
	Type        AddressType
	Primary     bool
}

// SensitiveData holds restricted personal data, stored separately from the
// base profile so access to it can be audited independently.
type SensitiveData struct {
	ProfileID id.ProfileID
	SSN       string
}

// VerifiedPersonalInformation is officially verified personal data sourced
// from a national registry. It is never editable by the profile owner.
type VerifiedPersonalInformation struct {
	ProfileID                    id.ProfileID
	FirstName                    string
	LastName                     string
	GivenName                    string
	NationalIdentificationNumber string
	MunicipalityOfResidence      string
	MunicipalityNumber           string

	PermanentAddress        *VerifiedPersonalInformationAddress
	TemporaryAddress        *VerifiedPersonalInformationAddress
	PermanentForeignAddress *VerifiedPersonalInformationForeignAddress
}

// VerifiedPersonalInformationAddressKind identifies which verified address
// slot a record occupies.
type VerifiedPersonalInformationAddressKind string

const (
	VerifiedAddressPermanent        VerifiedPersonalInformationAddressKind = "permanent"
	VerifiedAddressTemporary        VerifiedPersonalInformationAddressKind = "temporary"
	VerifiedAddressPermanentForeign VerifiedPersonalInformationAddressKind = "permanent_foreign"
)

// VerifiedPersonalInformationAddress is a domestic verified address.
type VerifiedPersonalInformationAddress struct {
	ProfileID     id.ProfileID
	Kind          VerifiedPersonalInformationAddressKind
	StreetAddress string
	PostalCode    string
	PostOffice    string
}

// VerifiedPersonalInformationForeignAddress is a verified address outside the
// national registry's own country.
type VerifiedPersonalInformationForeignAddress struct {
	ProfileID         id.ProfileID
	StreetAddress     string
	AdditionalAddress string
	CountryCode       string
}

// ClaimToken lets an unlinked profile be claimed by an authenticated user.
// The token value is stored hashed; Token carries the plaintext only at
// creation time.
type ClaimToken struct {
	ID        id.TokenID
	ProfileID id.ProfileID
	Token     string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the claim token is past its expiry.
func (t *ClaimToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && t.ExpiresAt.Before(now)
}

// DefaultClaimTokenTTL bounds how long a created claim token stays usable.
const DefaultClaimTokenTTL = 48 * time.Hour

// TemporaryReadAccessToken grants short-lived read access to a profile
// without authentication, e.g. for a staff member assisting a citizen.
type TemporaryReadAccessToken struct {
	ID        id.TokenID
	ProfileID id.ProfileID
	Token     string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the read token is past its expiry.
func (t *TemporaryReadAccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && t.ExpiresAt.Before(now)
}

// DefaultReadTokenTTL bounds how long a temporary read token stays usable.
const DefaultReadTokenTTL = 2 * 24 * time.Hour
