// Package audit records every read, create, update and delete of profile
// data. Events accumulate in a request-scoped structure and are flushed to
// the configured sinks when the request ends; business logic only calls
// Record and never deals with actors, sinks or timestamps.
package audit

import (
	"strings"
	"time"
	"unicode"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// Operation classifies a data access.
type Operation string

const (
	OperationRead   Operation = "READ"
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// ActorRole classifies who performed an operation relative to the profile
// acted on.
type ActorRole string

const (
	RoleOwner     ActorRole = "OWNER"
	RoleSystem    ActorRole = "SYSTEM"
	RoleAdmin     ActorRole = "ADMIN"
	RoleAnonymous ActorRole = "ANONYMOUS"
)

// Loggable is implemented by every model whose access is audited. It is a
// closed set: the base profile plus the records a profile owns.
type Loggable interface {
	// AuditModelName is the model's camel-case type name; the part name in
	// emitted records derives from it.
	AuditModelName() string
	// AuditOwningProfile resolves the profile this record belongs to.
	AuditOwningProfile() id.ProfileID
	// AuditOwningUser returns the owning user when the model knows it
	// directly; the nil UUID defers resolution to the flush-time batch
	// lookup.
	AuditOwningUser() id.UserID
	// AuditPersisted reports whether the record has been saved; unsaved
	// records are not logged.
	AuditPersisted() bool
}

// basePartName is the part name used for the base Profile model.
const basePartName = "base profile"

// partName converts a model name to the human-readable target part:
// "VerifiedPersonalInformationTemporaryAddress" becomes "verified personal
// information temporary address". The base profile keeps its fixed name.
func partName(modelName string) string {
	if modelName == "Profile" {
		return basePartName
	}
	var b strings.Builder
	b.Grow(len(modelName) + 8)
	for i, r := range modelName {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Entry is one immutable audit record, fully resolved and ready for the
// sinks.
type Entry struct {
	Timestamp       time.Time
	ServiceName     string
	ClientID        string
	IPAddress       string
	ActorUserID     id.UserID
	ActorRole       ActorRole
	Username        string
	TargetUserID    id.UserID
	TargetProfileID id.ProfileID
	TargetType      string
	Operation       Operation
}
