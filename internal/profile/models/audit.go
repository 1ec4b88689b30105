package models

import (
	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// Audit accessors. Every model whose reads and writes are tracked exposes
// its model name, its owning profile and whether it has been persisted yet.
// The audit package consumes these through its Loggable interface; records
// for instances that were never saved are suppressed there.

func (p *Profile) AuditModelName() string           { return "Profile" }
func (p *Profile) AuditOwningProfile() id.ProfileID { return p.ID }
func (p *Profile) AuditOwningUser() id.UserID       { return p.UserID }
func (p *Profile) AuditPersisted() bool             { return !p.CreatedAt.IsZero() }

func (s *SensitiveData) AuditModelName() string           { return "SensitiveData" }
func (s *SensitiveData) AuditOwningProfile() id.ProfileID { return s.ProfileID }
func (s *SensitiveData) AuditOwningUser() id.UserID       { return id.UserID{} }
func (s *SensitiveData) AuditPersisted() bool             { return !s.ProfileID.IsNil() }

func (v *VerifiedPersonalInformation) AuditModelName() string {
	return "VerifiedPersonalInformation"
}
func (v *VerifiedPersonalInformation) AuditOwningProfile() id.ProfileID { return v.ProfileID }
func (v *VerifiedPersonalInformation) AuditOwningUser() id.UserID       { return id.UserID{} }
func (v *VerifiedPersonalInformation) AuditPersisted() bool             { return !v.ProfileID.IsNil() }

func (a *VerifiedPersonalInformationAddress) AuditModelName() string {
	switch a.Kind {
	case VerifiedAddressTemporary:
		return "VerifiedPersonalInformationTemporaryAddress"
	default:
		return "VerifiedPersonalInformationPermanentAddress"
	}
}
func (a *VerifiedPersonalInformationAddress) AuditOwningProfile() id.ProfileID { return a.ProfileID }
func (a *VerifiedPersonalInformationAddress) AuditOwningUser() id.UserID       { return id.UserID{} }
func (a *VerifiedPersonalInformationAddress) AuditPersisted() bool             { return !a.ProfileID.IsNil() }

func (a *VerifiedPersonalInformationForeignAddress) AuditModelName() string {
	return "VerifiedPersonalInformationPermanentForeignAddress"
}
func (a *VerifiedPersonalInformationForeignAddress) AuditOwningProfile() id.ProfileID {
	return a.ProfileID
}
func (a *VerifiedPersonalInformationForeignAddress) AuditOwningUser() id.UserID { return id.UserID{} }
func (a *VerifiedPersonalInformationForeignAddress) AuditPersisted() bool       { return !a.ProfileID.IsNil() }

func (e *Email) AuditModelName() string           { return "Email" }
func (e *Email) AuditOwningProfile() id.ProfileID { return e.ProfileID }
func (e *Email) AuditOwningUser() id.UserID       { return id.UserID{} }
func (e *Email) AuditPersisted() bool             { return !e.ID.IsNil() }

func (p *Phone) AuditModelName() string           { return "Phone" }
func (p *Phone) AuditOwningProfile() id.ProfileID { return p.ProfileID }
func (p *Phone) AuditOwningUser() id.UserID       { return id.UserID{} }
func (p *Phone) AuditPersisted() bool             { return !p.ID.IsNil() }

func (a *Address) AuditModelName() string           { return "Address" }
func (a *Address) AuditOwningProfile() id.ProfileID { return a.ProfileID }
func (a *Address) AuditOwningUser() id.UserID       { return id.UserID{} }
func (a *Address) AuditPersisted() bool             { return !a.ID.IsNil() }
