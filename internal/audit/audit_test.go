package audit

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/metrics"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/middleware"
	profilemodels "github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	"github.com/City-of-Helsinki/open-city-profile-sub000/pkg/testutil"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.New()

func TestPartName(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"Profile", "base profile"},
		{"SensitiveData", "sensitive data"},
		{"Email", "email"},
		{"VerifiedPersonalInformation", "verified personal information"},
		{"VerifiedPersonalInformationTemporaryAddress", "verified personal information temporary address"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, partName(tt.model))
	}
}

func auditedProfile(t *testing.T, userID id.UserID) *profilemodels.Profile {
	t.Helper()
	p, err := profilemodels.NewProfile(id.ProfileID(uuid.New()), userID, "Maija", "Meikäläinen")
	require.NoError(t, err)
	p.CreatedAt = time.Now()
	return p
}

type staticUsers map[id.ProfileID]id.UserID

func (u staticUsers) UserUUIDs(_ context.Context, profileIDs []id.ProfileID) (map[id.ProfileID]id.UserID, error) {
	out := make(map[id.ProfileID]id.UserID)
	for _, pid := range profileIDs {
		if uid, ok := u[pid]; ok {
			out[pid] = uid
		}
	}
	return out, nil
}

func newTestFlusher(sink Sink, users UserResolver, systemClients []string) *Flusher {
	return NewFlusher([]Sink{sink}, users, systemClients, false, testMetrics,
		slog.New(slog.DiscardHandler))
}

func TestRecordWithoutAccumulatorIsNoop(t *testing.T) {
	// Must not panic; auditing is simply inactive for this context.
	Record(context.Background(), OperationRead, auditedProfile(t, id.UserID{}))
}

func TestRecordSkipsUnpersistedModels(t *testing.T) {
	acc := NewAccumulator()
	ctx := WithAccumulator(context.Background(), acc)

	unsaved := &profilemodels.Profile{ID: id.ProfileID(uuid.New())} // zero CreatedAt
	Record(ctx, OperationCreate, unsaved)
	assert.True(t, acc.Empty())
}

func TestAccumulatorConcurrentRecord(t *testing.T) {
	acc := NewAccumulator()
	ctx := WithAccumulator(context.Background(), acc)

	// Handlers may record from parallel goroutines within one request;
	// every distinct profile must survive the contention.
	profiles := make([]*profilemodels.Profile, 20)
	for i := range profiles {
		profiles[i] = auditedProfile(t, id.UserID(uuid.New()))
	}
	result := testutil.RunConcurrent(len(profiles), func(idx int) error {
		Record(ctx, OperationRead, profiles[idx])
		Record(ctx, OperationRead, &profilemodels.SensitiveData{ProfileID: profiles[idx].ID, SSN: "010101-123N"})
		return nil
	})
	require.Equal(t, int32(len(profiles)), result.Successes)

	sink := NewMemorySink()
	newTestFlusher(sink, nil, nil).Flush(context.Background(), acc)
	assert.Len(t, sink.Entries(), 2*len(profiles))
}

func TestRepeatedReadsCollapseToFirstTimestamp(t *testing.T) {
	acc := NewAccumulator()
	profile := auditedProfile(t, id.UserID(uuid.New()))
	sensitive := &profilemodels.SensitiveData{ProfileID: profile.ID, SSN: "010101-123N"}

	first := time.Now()
	acc.record(OperationRead, sensitive, first)
	acc.record(OperationRead, sensitive, first.Add(time.Second))
	acc.record(OperationRead, sensitive, first.Add(2*time.Second))

	sink := NewMemorySink()
	newTestFlusher(sink, nil, nil).Flush(context.Background(), acc)

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "sensitive data", entries[0].TargetType)
	assert.Equal(t, OperationRead, entries[0].Operation)
	assert.True(t, entries[0].Timestamp.Equal(first))
}

func TestTraversalEmitsBothParts(t *testing.T) {
	acc := NewAccumulator()
	profile := auditedProfile(t, id.UserID(uuid.New()))
	sensitive := &profilemodels.SensitiveData{ProfileID: profile.ID, SSN: "010101-123N"}

	now := time.Now()
	acc.record(OperationRead, profile, now)
	acc.record(OperationRead, sensitive, now)

	sink := NewMemorySink()
	newTestFlusher(sink, nil, nil).Flush(context.Background(), acc)

	entries := sink.Entries()
	require.Len(t, entries, 2)
	parts := []string{entries[0].TargetType, entries[1].TargetType}
	assert.ElementsMatch(t, []string{"base profile", "sensitive data"}, parts)
}

func TestActorRoleResolution(t *testing.T) {
	ownerID := id.UserID(uuid.New())
	profile := auditedProfile(t, ownerID)

	tests := []struct {
		name     string
		identity middleware.Identity
		want     ActorRole
	}{
		{
			name:     "owner",
			identity: middleware.Identity{UserID: ownerID, Authenticated: true},
			want:     RoleOwner,
		},
		{
			name:     "system client",
			identity: middleware.Identity{UserID: id.UserID(uuid.New()), ClientID: "batch-importer", Authenticated: true},
			want:     RoleSystem,
		},
		{
			name:     "other authenticated user",
			identity: middleware.Identity{UserID: id.UserID(uuid.New()), Authenticated: true},
			want:     RoleAdmin,
		},
		{
			name:     "anonymous",
			identity: middleware.Identity{},
			want:     RoleAnonymous,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccumulator()
			acc.record(OperationRead, profile, time.Now())

			sink := NewMemorySink()
			flusher := newTestFlusher(sink, nil, []string{"batch-importer"})
			ctx := middleware.WithIdentity(context.Background(), tt.identity)
			flusher.Flush(ctx, acc)

			entries := sink.Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.want, entries[0].ActorRole)
		})
	}
}

func TestFlushResolvesOwningUsersInBatch(t *testing.T) {
	profileID := id.ProfileID(uuid.New())
	ownerID := id.UserID(uuid.New())
	// SensitiveData does not know its owning user; the flush must resolve it.
	sensitive := &profilemodels.SensitiveData{ProfileID: profileID, SSN: "010101-123N"}

	acc := NewAccumulator()
	acc.record(OperationRead, sensitive, time.Now())

	sink := NewMemorySink()
	flusher := newTestFlusher(sink, staticUsers{profileID: ownerID}, nil)
	flusher.Flush(context.Background(), acc)

	entries := sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ownerID, entries[0].TargetUserID)
}

func TestFlushCarriesActorContext(t *testing.T) {
	userID := id.UserID(uuid.New())
	profile := auditedProfile(t, userID)

	acc := NewAccumulator()
	acc.record(OperationUpdate, profile, time.Now())

	ctx := middleware.WithIdentity(context.Background(), middleware.Identity{
		UserID:        userID,
		ClientID:      "exampleapp-ui",
		ServiceName:   "exampleapp",
		Authenticated: true,
	})
	ctx = middleware.WithClientInfo(ctx, middleware.ClientInfo{IPAddress: "203.0.113.7"})

	sink := NewMemorySink()
	newTestFlusher(sink, nil, nil).Flush(ctx, acc)

	entries := sink.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, RoleOwner, e.ActorRole)
	assert.Equal(t, "exampleapp", e.ServiceName)
	assert.Equal(t, "exampleapp-ui", e.ClientID)
	assert.Equal(t, "203.0.113.7", e.IPAddress)
	assert.Equal(t, profile.ID, e.TargetProfileID)
	assert.Equal(t, userID, e.TargetUserID)
}

func TestUsernameIncludedOnlyWhenConfigured(t *testing.T) {
	profile := auditedProfile(t, id.UserID(uuid.New()))
	ctx := middleware.WithIdentity(context.Background(), middleware.Identity{
		UserID:        profile.UserID,
		Username:      "maija.m",
		Authenticated: true,
	})

	for _, logUsername := range []bool{true, false} {
		acc := NewAccumulator()
		acc.record(OperationRead, profile, time.Now())
		sink := NewMemorySink()
		NewFlusher([]Sink{sink}, nil, nil, logUsername, testMetrics,
			slog.New(slog.DiscardHandler)).Flush(ctx, acc)

		entries := sink.Entries()
		require.Len(t, entries, 1)
		if logUsername {
			assert.Equal(t, "maija.m", entries[0].Username)
		} else {
			assert.Empty(t, entries[0].Username)
		}
	}
}

func TestMiddlewareFlushesAfterResponse(t *testing.T) {
	profile := auditedProfile(t, id.UserID(uuid.New()))
	sink := NewMemorySink()
	flusher := newTestFlusher(sink, nil, nil)

	handler := Middleware(flusher, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Record(r.Context(), OperationRead, profile)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profiles/me", nil))

	require.Len(t, sink.Entries(), 1)
	assert.Equal(t, "base profile", sink.Entries()[0].TargetType)
}

func TestMiddlewareDisabledRecordsNothing(t *testing.T) {
	profile := auditedProfile(t, id.UserID(uuid.New()))
	sink := NewMemorySink()
	flusher := newTestFlusher(sink, nil, nil)

	handler := Middleware(flusher, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Record(r.Context(), OperationRead, profile)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profiles/me", nil))
	assert.Empty(t, sink.Entries())
}

func TestAccumulatorClearedAfterFlush(t *testing.T) {
	profile := auditedProfile(t, id.UserID(uuid.New()))
	acc := NewAccumulator()
	acc.record(OperationRead, profile, time.Now())

	sink := NewMemorySink()
	flusher := newTestFlusher(sink, nil, nil)
	flusher.Flush(context.Background(), acc)
	flusher.Flush(context.Background(), acc)

	// Second flush emits nothing: the accumulator was drained.
	assert.Len(t, sink.Entries(), 1)
	assert.True(t, acc.Empty())
}
