package http

import (
	"time"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	registry "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
)

type emailResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Type     string `json:"type"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type phoneResponse struct {
	ID      string `json:"id"`
	Phone   string `json:"phone"`
	Type    string `json:"type"`
	Primary bool   `json:"primary"`
}

type addressResponse struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	PostalCode  string `json:"postalCode"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
	Type        string `json:"type"`
	Primary     bool   `json:"primary"`
}

type verifiedAddressResponse struct {
	StreetAddress string `json:"streetAddress"`
	PostalCode    string `json:"postalCode"`
	PostOffice    string `json:"postOffice"`
}

type foreignAddressResponse struct {
	StreetAddress     string `json:"streetAddress"`
	AdditionalAddress string `json:"additionalAddress"`
	CountryCode       string `json:"countryCode"`
}

type verifiedInfoResponse struct {
	FirstName               string                   `json:"firstName"`
	LastName                string                   `json:"lastName"`
	GivenName               string                   `json:"givenName"`
	NationalIdentification  string                   `json:"nationalIdentificationNumber"`
	MunicipalityOfResidence string                   `json:"municipalityOfResidence"`
	PermanentAddress        *verifiedAddressResponse `json:"permanentAddress,omitempty"`
	TemporaryAddress        *verifiedAddressResponse `json:"temporaryAddress,omitempty"`
	PermanentForeignAddress *foreignAddressResponse  `json:"permanentForeignAddress,omitempty"`
}

type profileResponse struct {
	ID            string                `json:"id"`
	FirstName     string                `json:"firstName"`
	LastName      string                `json:"lastName"`
	Nickname      string                `json:"nickname,omitempty"`
	Language      string                `json:"language"`
	ContactMethod string                `json:"contactMethod,omitempty"`
	Emails        []emailResponse       `json:"emails"`
	Phones        []phoneResponse       `json:"phones"`
	Addresses     []addressResponse     `json:"addresses"`
	SensitiveData *sensitiveDataInput   `json:"sensitiveData,omitempty"`
	VerifiedInfo  *verifiedInfoResponse `json:"verifiedPersonalInformation,omitempty"`
	CreatedAt     time.Time             `json:"createdAt"`
}

func toProfileResponse(p *models.Profile) *profileResponse {
	res := &profileResponse{
		ID:            p.ID.String(),
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		Nickname:      p.Nickname,
		Language:      string(p.Language),
		ContactMethod: string(p.ContactMethod),
		Emails:        make([]emailResponse, 0, len(p.Emails)),
		Phones:        make([]phoneResponse, 0, len(p.Phones)),
		Addresses:     make([]addressResponse, 0, len(p.Addresses)),
		CreatedAt:     p.CreatedAt,
	}
	for _, e := range p.Emails {
		res.Emails = append(res.Emails, emailResponse{
			ID:       e.ID.String(),
			Email:    e.Email,
			Type:     string(e.Type),
			Primary:  e.Primary,
			Verified: e.Verified,
		})
	}
	for _, ph := range p.Phones {
		res.Phones = append(res.Phones, phoneResponse{
			ID:      ph.ID.String(),
			Phone:   ph.Phone,
			Type:    string(ph.Type),
			Primary: ph.Primary,
		})
	}
	for _, a := range p.Addresses {
		res.Addresses = append(res.Addresses, addressResponse{
			ID:          a.ID.String(),
			Address:     a.Address,
			PostalCode:  a.PostalCode,
			City:        a.City,
			CountryCode: a.CountryCode,
			Type:        string(a.Type),
			Primary:     a.Primary,
		})
	}
	if p.SensitiveData != nil {
		res.SensitiveData = &sensitiveDataInput{SSN: p.SensitiveData.SSN}
	}
	if vi := p.VerifiedInfo; vi != nil {
		res.VerifiedInfo = &verifiedInfoResponse{
			FirstName:               vi.FirstName,
			LastName:                vi.LastName,
			GivenName:               vi.GivenName,
			NationalIdentification:  vi.NationalIdentificationNumber,
			MunicipalityOfResidence: vi.MunicipalityOfResidence,
		}
		if a := vi.PermanentAddress; a != nil {
			res.VerifiedInfo.PermanentAddress = &verifiedAddressResponse{
				StreetAddress: a.StreetAddress,
				PostalCode:    a.PostalCode,
				PostOffice:    a.PostOffice,
			}
		}
		if a := vi.TemporaryAddress; a != nil {
			res.VerifiedInfo.TemporaryAddress = &verifiedAddressResponse{
				StreetAddress: a.StreetAddress,
				PostalCode:    a.PostalCode,
				PostOffice:    a.PostOffice,
			}
		}
		if a := vi.PermanentForeignAddress; a != nil {
			res.VerifiedInfo.PermanentForeignAddress = &foreignAddressResponse{
				StreetAddress:     a.StreetAddress,
				AdditionalAddress: a.AdditionalAddress,
				CountryCode:       a.CountryCode,
			}
		}
	}
	return res
}

type connectionResponse struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

func toConnectionResponse(conn *registry.ServiceConnection) *connectionResponse {
	res := &connectionResponse{
		ID:        conn.ID.String(),
		Enabled:   conn.Enabled,
		CreatedAt: conn.CreatedAt,
	}
	if conn.Service != nil {
		res.Service = conn.Service.Name.String()
	}
	return res
}

type tokenResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
