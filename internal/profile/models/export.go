package models

import (
	"encoding/json"
	"fmt"
)

// Node is one element of the downloaded profile document. A node carries
// either a scalar value or children, never both. Keys are upper snake case.
type Node struct {
	Key      string
	Value    any
	Children []*Node
}

// MarshalJSON keeps zero-valued scalars in the output; struct tags with
// omitempty would drop them, and an exported boolean false is still data.
func (n *Node) MarshalJSON() ([]byte, error) {
	if len(n.Children) > 0 {
		return json.Marshal(struct {
			Key      string  `json:"key"`
			Children []*Node `json:"children"`
		}{Key: n.Key, Children: n.Children})
	}
	return json.Marshal(struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}{Key: n.Key, Value: n.Value})
}

func scalar(key string, value any) *Node {
	return &Node{Key: key, Value: value}
}

func parent(key string, children ...*Node) *Node {
	return &Node{Key: key, Children: children}
}

// ExportTree serializes the profile and everything it owns into the
// document node shape.
func (p *Profile) ExportTree() *Node {
	children := []*Node{
		scalar("ID", p.ID.String()),
		scalar("FIRST_NAME", p.FirstName),
		scalar("LAST_NAME", p.LastName),
		scalar("NICKNAME", p.Nickname),
		scalar("LANGUAGE", string(p.Language)),
		scalar("CONTACT_METHOD", string(p.ContactMethod)),
	}

	if len(p.Emails) > 0 {
		emails := make([]*Node, 0, len(p.Emails))
		for _, e := range p.Emails {
			emails = append(emails, parent("EMAIL",
				scalar("EMAIL", e.Email),
				scalar("EMAIL_TYPE", string(e.Type)),
				scalar("PRIMARY", e.Primary),
				scalar("VERIFIED", e.Verified),
			))
		}
		children = append(children, parent("EMAILS", emails...))
	}
	if len(p.Phones) > 0 {
		phones := make([]*Node, 0, len(p.Phones))
		for _, ph := range p.Phones {
			phones = append(phones, parent("PHONE",
				scalar("PHONE", ph.Phone),
				scalar("PHONE_TYPE", string(ph.Type)),
				scalar("PRIMARY", ph.Primary),
			))
		}
		children = append(children, parent("PHONES", phones...))
	}
	if len(p.Addresses) > 0 {
		addresses := make([]*Node, 0, len(p.Addresses))
		for _, a := range p.Addresses {
			addresses = append(addresses, parent("ADDRESS",
				scalar("ADDRESS", a.Address),
				scalar("POSTAL_CODE", a.PostalCode),
				scalar("CITY", a.City),
				scalar("COUNTRY_CODE", a.CountryCode),
				scalar("ADDRESS_TYPE", string(a.Type)),
				scalar("PRIMARY", a.Primary),
			))
		}
		children = append(children, parent("ADDRESSES", addresses...))
	}

	if p.SensitiveData != nil {
		children = append(children, parent("SENSITIVEDATA",
			scalar("SSN", p.SensitiveData.SSN),
		))
	}
	if p.VerifiedInfo != nil {
		children = append(children, p.VerifiedInfo.exportTree())
	}

	return parent("PROFILE", children...)
}

func (v *VerifiedPersonalInformation) exportTree() *Node {
	children := []*Node{
		scalar("FIRST_NAME", v.FirstName),
		scalar("LAST_NAME", v.LastName),
		scalar("GIVEN_NAME", v.GivenName),
		scalar("NATIONAL_IDENTIFICATION_NUMBER", v.NationalIdentificationNumber),
		scalar("MUNICIPALITY_OF_RESIDENCE", v.MunicipalityOfResidence),
		scalar("MUNICIPALITY_OF_RESIDENCE_NUMBER", v.MunicipalityNumber),
	}
	if a := v.PermanentAddress; a != nil {
		children = append(children, parent("PERMANENT_ADDRESS",
			scalar("STREET_ADDRESS", a.StreetAddress),
			scalar("POSTAL_CODE", a.PostalCode),
			scalar("POST_OFFICE", a.PostOffice),
		))
	}
	if a := v.TemporaryAddress; a != nil {
		children = append(children, parent("TEMPORARY_ADDRESS",
			scalar("STREET_ADDRESS", a.StreetAddress),
			scalar("POSTAL_CODE", a.PostalCode),
			scalar("POST_OFFICE", a.PostOffice),
		))
	}
	if a := v.PermanentForeignAddress; a != nil {
		children = append(children, parent("PERMANENT_FOREIGN_ADDRESS",
			scalar("STREET_ADDRESS", a.StreetAddress),
			scalar("ADDITIONAL_ADDRESS", a.AdditionalAddress),
			scalar("COUNTRY_CODE", a.CountryCode),
		))
	}
	return parent("VERIFIED_PERSONAL_INFORMATION", children...)
}

// ExportDocument is the combined download payload: the profile's own tree
// followed by the raw per-service contributions, in connection order.
type ExportDocument struct {
	Profile  *Node
	Services []json.RawMessage
}

// MarshalJSON renders the root node {"key":"DATA","children":[...]}.
func (d *ExportDocument) MarshalJSON() ([]byte, error) {
	children := make([]json.RawMessage, 0, 1+len(d.Services))
	profileJSON, err := json.Marshal(d.Profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile tree: %w", err)
	}
	children = append(children, profileJSON)
	children = append(children, d.Services...)
	return json.Marshal(struct {
		Key      string            `json:"key"`
		Children []json.RawMessage `json:"children"`
	}{Key: "DATA", Children: children})
}
