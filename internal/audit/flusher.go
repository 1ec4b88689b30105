package audit

import (
	"context"
	"log/slog"
	"sort"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/metrics"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/middleware"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// Sink receives the resolved audit entries of one request. Sinks are
// independent: a failure in one never blocks another.
type Sink interface {
	Name() string
	Emit(ctx context.Context, entries []Entry) error
}

// UserResolver resolves owning users for profiles in one batched lookup.
// Implemented by the profile store.
type UserResolver interface {
	UserUUIDs(ctx context.Context, profileIDs []id.ProfileID) (map[id.ProfileID]id.UserID, error)
}

// Flusher turns accumulated events into entries and hands them to the
// sinks at request end.
type Flusher struct {
	sinks         []Sink
	users         UserResolver
	systemClients map[string]struct{}
	logUsername   bool
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewFlusher creates a flusher emitting to the given sinks. systemClients
// lists the OAuth client ids whose actions carry the SYSTEM role.
func NewFlusher(sinks []Sink, users UserResolver, systemClients []string, logUsername bool, m *metrics.Metrics, logger *slog.Logger) *Flusher {
	clients := make(map[string]struct{}, len(systemClients))
	for _, c := range systemClients {
		clients[c] = struct{}{}
	}
	return &Flusher{
		sinks:         sinks,
		users:         users,
		systemClients: clients,
		logUsername:   logUsername,
		metrics:       m,
		logger:        logger,
	}
}

// Flush resolves actor context and owning users once, builds one entry per
// accumulated (profile, operation, part) and emits them to every sink.
// Sink failures are logged and counted, never propagated: auditing is
// layered on top of the data operation, not gating it.
func (f *Flusher) Flush(ctx context.Context, acc *Accumulator) {
	if acc == nil || acc.Empty() {
		return
	}
	buckets := acc.snapshot()

	// One batched lookup for the buckets whose owning user is still
	// unknown, before any entry is built.
	var unresolved []id.ProfileID
	for _, b := range buckets {
		if b.userID.IsNil() {
			unresolved = append(unresolved, b.profileID)
		}
	}
	if len(unresolved) > 0 && f.users != nil {
		resolved, err := f.users.UserUUIDs(ctx, unresolved)
		if err != nil {
			f.logger.WarnContext(ctx, "audit owning-user resolution failed", "error", err)
		}
		for _, b := range buckets {
			if b.userID.IsNil() {
				b.userID = resolved[b.profileID]
			}
		}
	}

	identity := middleware.GetIdentity(ctx)
	clientInfo := middleware.GetClientInfo(ctx)

	var entries []Entry
	for _, b := range buckets {
		role := f.resolveRole(identity, b.userID)
		for key, at := range b.events {
			entry := Entry{
				Timestamp:       at,
				ServiceName:     identity.ServiceName.String(),
				ClientID:        identity.ClientID,
				IPAddress:       clientInfo.IPAddress,
				ActorUserID:     identity.UserID,
				ActorRole:       role,
				TargetUserID:    b.userID,
				TargetProfileID: b.profileID,
				TargetType:      key.part,
				Operation:       key.operation,
			}
			if f.logUsername {
				entry.Username = identity.Username
			}
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	for _, sink := range f.sinks {
		if err := sink.Emit(ctx, entries); err != nil {
			f.metrics.AuditFlushFailures.WithLabelValues(sink.Name()).Inc()
			f.logger.ErrorContext(ctx, "audit sink emit failed",
				"sink", sink.Name(),
				"entries", len(entries),
				"error", err)
			continue
		}
		f.metrics.AuditEntriesEmitted.WithLabelValues(sink.Name()).Add(float64(len(entries)))
	}
}

func (f *Flusher) resolveRole(identity middleware.Identity, targetUser id.UserID) ActorRole {
	switch {
	case identity.Authenticated && !targetUser.IsNil() && identity.UserID == targetUser:
		return RoleOwner
	case identity.Authenticated && f.isSystemClient(identity.ClientID):
		return RoleSystem
	case identity.Authenticated:
		return RoleAdmin
	default:
		return RoleAnonymous
	}
}

func (f *Flusher) isSystemClient(clientID string) bool {
	_, ok := f.systemClients[clientID]
	return ok
}
