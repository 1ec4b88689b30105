package http

import (
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/service"

	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
)

type emailInput struct {
	Email   string `json:"email"`
	Type    string `json:"type"`
	Primary bool   `json:"primary"`
}

type phoneInput struct {
	Phone   string `json:"phone"`
	Type    string `json:"type"`
	Primary bool   `json:"primary"`
}

type addressInput struct {
	Address     string `json:"address"`
	PostalCode  string `json:"postalCode"`
	City        string `json:"city"`
	CountryCode string `json:"countryCode"`
	Type        string `json:"type"`
	Primary     bool   `json:"primary"`
}

type sensitiveDataInput struct {
	SSN string `json:"ssn"`
}

type createProfileRequest struct {
	FirstName     string              `json:"firstName"`
	LastName      string              `json:"lastName"`
	Nickname      string              `json:"nickname"`
	Language      string              `json:"language"`
	ContactMethod string              `json:"contactMethod"`
	Emails        []emailInput        `json:"emails"`
	Phones        []phoneInput        `json:"phones"`
	Addresses     []addressInput      `json:"addresses"`
	SensitiveData *sensitiveDataInput `json:"sensitiveData"`
}

func (r *createProfileRequest) Validate() error {
	if r.FirstName == "" && r.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "a name is required")
	}
	return nil
}

type updateProfileRequest struct {
	FirstName     *string             `json:"firstName"`
	LastName      *string             `json:"lastName"`
	Nickname      *string             `json:"nickname"`
	Language      *string             `json:"language"`
	ContactMethod *string             `json:"contactMethod"`
	Emails        []emailInput        `json:"emails"`
	Phones        []phoneInput        `json:"phones"`
	Addresses     []addressInput      `json:"addresses"`
	SensitiveData *sensitiveDataInput `json:"sensitiveData"`
}

type deleteProfileRequest struct {
	AuthorizationCode string `json:"authorization_code"`
	DryRun            bool   `json:"dry_run"`
}

type deleteServiceDataRequest struct {
	AuthorizationCode string `json:"authorization_code"`
	DryRun            bool   `json:"dry_run"`
}

type claimProfileRequest struct {
	ProfileID string `json:"profileId"`
	Token     string `json:"token"`
}

func (r *claimProfileRequest) Validate() error {
	if r.ProfileID == "" || r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "profileId and token are required")
	}
	return nil
}

func emailsFromInput(in []emailInput) []*models.Email {
	if in == nil {
		return nil
	}
	out := make([]*models.Email, 0, len(in))
	for _, e := range in {
		out = append(out, &models.Email{
			Email:   e.Email,
			Type:    models.EmailType(e.Type),
			Primary: e.Primary,
		})
	}
	return out
}

func phonesFromInput(in []phoneInput) []*models.Phone {
	if in == nil {
		return nil
	}
	out := make([]*models.Phone, 0, len(in))
	for _, p := range in {
		out = append(out, &models.Phone{
			Phone:   p.Phone,
			Type:    models.PhoneType(p.Type),
			Primary: p.Primary,
		})
	}
	return out
}

func addressesFromInput(in []addressInput) []*models.Address {
	if in == nil {
		return nil
	}
	out := make([]*models.Address, 0, len(in))
	for _, a := range in {
		out = append(out, &models.Address{
			Address:     a.Address,
			PostalCode:  a.PostalCode,
			City:        a.City,
			CountryCode: a.CountryCode,
			Type:        models.AddressType(a.Type),
			Primary:     a.Primary,
		})
	}
	return out
}

func (r *createProfileRequest) toInput() service.CreateInput {
	input := service.CreateInput{
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Nickname:      r.Nickname,
		Language:      models.Language(r.Language),
		ContactMethod: models.ContactMethod(r.ContactMethod),
		Emails:        emailsFromInput(r.Emails),
		Phones:        phonesFromInput(r.Phones),
		Addresses:     addressesFromInput(r.Addresses),
	}
	if r.SensitiveData != nil {
		input.SensitiveData = &models.SensitiveData{SSN: r.SensitiveData.SSN}
	}
	return input
}

func (r *updateProfileRequest) toInput() service.UpdateInput {
	input := service.UpdateInput{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Nickname:  r.Nickname,
		Emails:    emailsFromInput(r.Emails),
		Phones:    phonesFromInput(r.Phones),
		Addresses: addressesFromInput(r.Addresses),
	}
	if r.Language != nil {
		lang := models.Language(*r.Language)
		input.Language = &lang
	}
	if r.ContactMethod != nil {
		method := models.ContactMethod(*r.ContactMethod)
		input.ContactMethod = &method
	}
	if r.SensitiveData != nil {
		input.SensitiveData = &models.SensitiveData{SSN: r.SensitiveData.SSN}
	}
	return input
}
