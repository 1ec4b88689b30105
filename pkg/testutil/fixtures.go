package testutil

import (
	"github.com/google/uuid"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	registry "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// TestIDs provides convenient pre-generated IDs for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	UserID1    id.UserID
	UserID2    id.UserID
	ProfileID1 id.ProfileID
	ProfileID2 id.ProfileID
	ServiceID1 id.ServiceID
	ServiceID2 id.ServiceID
}{
	UserID1:    id.UserID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	UserID2:    id.UserID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
	ProfileID1: id.ProfileID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	ProfileID2: id.ProfileID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000002")),
	ServiceID1: id.ServiceID(uuid.MustParse("cccc0000-0000-0000-0000-000000000001")),
	ServiceID2: id.ServiceID(uuid.MustParse("cccc0000-0000-0000-0000-000000000002")),
}

// ProfileBuilder provides a fluent interface for building test profiles.
type ProfileBuilder struct {
	profile *models.Profile
}

// NewProfile starts a builder with sane defaults: a fresh (profile, user)
// pair and a single primary email.
func NewProfile() *ProfileBuilder {
	profileID := id.ProfileID(uuid.New())
	return &ProfileBuilder{profile: &models.Profile{
		ID:        profileID,
		UserID:    id.UserID(uuid.New()),
		FirstName: "Matti",
		LastName:  "Meikäläinen",
		Language:  models.LanguageFinnish,
		Emails: []*models.Email{{
			ID:        id.ContactID(uuid.New()),
			ProfileID: profileID,
			Email:     "matti@example.com",
			Type:      models.EmailTypePersonal,
			Primary:   true,
		}},
	}}
}

// WithUser sets the owning user.
func (b *ProfileBuilder) WithUser(userID id.UserID) *ProfileBuilder {
	b.profile.UserID = userID
	return b
}

// Unlinked removes the user link, making the profile claimable.
func (b *ProfileBuilder) Unlinked() *ProfileBuilder {
	b.profile.UserID = id.UserID{}
	return b
}

// WithName sets the name.
func (b *ProfileBuilder) WithName(first, last string) *ProfileBuilder {
	b.profile.FirstName = first
	b.profile.LastName = last
	return b
}

// WithSensitiveData attaches a national identification number.
func (b *ProfileBuilder) WithSensitiveData(ssn string) *ProfileBuilder {
	b.profile.SensitiveData = &models.SensitiveData{ProfileID: b.profile.ID, SSN: ssn}
	return b
}

// Build returns the profile.
func (b *ProfileBuilder) Build() *models.Profile {
	return b.profile
}

// ServiceBuilder provides a fluent interface for building registry services.
type ServiceBuilder struct {
	service *registry.Service
}

// NewService starts a builder for a GDPR-capable service.
func NewService(name string) *ServiceBuilder {
	return &ServiceBuilder{service: &registry.Service{
		ID:              id.ServiceID(uuid.New()),
		Name:            id.ServiceName(name),
		Title:           name,
		GDPRQueryScope:  name + ".gdprquery",
		GDPRDeleteScope: name + ".gdprdelete",
		GDPRURL:         "https://" + name + ".example.com/gdpr-api/",
	}}
}

// WithGDPRURL overrides the endpoint template.
func (b *ServiceBuilder) WithGDPRURL(url string) *ServiceBuilder {
	b.service.GDPRURL = url
	return b
}

// WithoutDeleteScope removes the delete capability.
func (b *ServiceBuilder) WithoutDeleteScope() *ServiceBuilder {
	b.service.GDPRDeleteScope = ""
	return b
}

// AsProfileService marks the service as the profile service itself.
func (b *ServiceBuilder) AsProfileService() *ServiceBuilder {
	b.service.IsProfileService = true
	b.service.GDPRQueryScope = ""
	b.service.GDPRDeleteScope = ""
	b.service.GDPRURL = ""
	return b
}

// Build returns the service.
func (b *ServiceBuilder) Build() *registry.Service {
	return b.service
}
