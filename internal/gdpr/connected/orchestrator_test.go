package connected

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/gdpr/connected/mocks"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/metrics"
	profilemodels "github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	registry "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/tracer"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.New()

// gdprEndpoint is a fake downstream GDPR API that counts calls per phase.
type gdprEndpoint struct {
	*httptest.Server

	dryRunCalls   atomic.Int32
	commitCalls   atomic.Int32
	downloadCalls atomic.Int32

	dryRunStatus   int
	commitStatus   int
	commitBody     string
	downloadStatus int
	downloadBody   string
}

func newGDPREndpoint(t *testing.T) *gdprEndpoint {
	t.Helper()
	e := &gdprEndpoint{
		dryRunStatus:   http.StatusNoContent,
		commitStatus:   http.StatusNoContent,
		downloadStatus: http.StatusOK,
	}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			e.downloadCalls.Add(1)
			w.WriteHeader(e.downloadStatus)
			w.Write([]byte(e.downloadBody)) //nolint:errcheck // test handler
		case http.MethodDelete:
			if r.URL.Query().Get("dry_run") == "true" {
				e.dryRunCalls.Add(1)
				w.WriteHeader(e.dryRunStatus)
				return
			}
			e.commitCalls.Add(1)
			w.WriteHeader(e.commitStatus)
			w.Write([]byte(e.commitBody)) //nolint:errcheck // test handler
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(e.Close)
	return e
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	tokens       *mocks.MockTokenFetcher
	connections  *mocks.MockConnectionLister
	profile      *profilemodels.Profile
}

func newFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	tokens := mocks.NewMockTokenFetcher(ctrl)
	connections := mocks.NewMockConnectionLister(ctrl)

	profile, err := profilemodels.NewProfile(
		id.ProfileID(uuid.New()), id.UserID(uuid.New()), "Maija", "Meikäläinen")
	require.NoError(t, err)

	return &orchestratorFixture{
		orchestrator: New(tokens, connections, tracer.NewNoop(), testMetrics,
			slog.New(slog.DiscardHandler)),
		tokens:      tokens,
		connections: connections,
		profile:     profile,
	}
}

func connection(profileID id.ProfileID, name, queryScope, deleteScope, gdprURL string) *registry.ServiceConnection {
	svc := &registry.Service{
		ID:              id.ServiceID(uuid.New()),
		Name:            id.ServiceName(name),
		Description:     name + " service",
		GDPRQueryScope:  queryScope,
		GDPRDeleteScope: deleteScope,
		GDPRURL:         gdprURL,
	}
	return &registry.ServiceConnection{
		ID:        id.ConnectionID(uuid.New()),
		ProfileID: profileID,
		ServiceID: svc.ID,
		Enabled:   true,
		Service:   svc,
	}
}

func TestDeleteZeroConnectionsMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(nil, nil)
	// No FetchAPITokens expectation: the token exchange must not happen.

	results, err := f.orchestrator.Delete(context.Background(), f.profile, "code", false)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDownloadZeroConnectionsMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(nil, nil)

	payloads, err := f.orchestrator.Download(context.Background(), f.profile, "code")
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestDeleteMissingScopeFailsBeforeAnyCall(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	b := newGDPREndpoint(t)
	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "berth.gdprquery", "berth.gdprdelete", a.URL+"/gdpr/"),
		connection(f.profile.ID, "kukkuu", "kukkuu.gdprquery", "", b.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)

	_, err := f.orchestrator.Delete(context.Background(), f.profile, "code", false)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingGDPRScope))
	assert.Zero(t, a.dryRunCalls.Load()+a.commitCalls.Load())
	assert.Zero(t, b.dryRunCalls.Load()+b.commitCalls.Load())
}

func TestDeleteUnresolvableURLFailsBeforeAnyCall(t *testing.T) {
	f := newFixture(t)
	unlinked, err := profilemodels.NewProfile(id.ProfileID(uuid.New()), id.UserID{}, "Maija", "M")
	require.NoError(t, err)

	a := newGDPREndpoint(t)
	conns := []*registry.ServiceConnection{
		connection(unlinked.ID, "berth", "", "berth.gdprdelete", a.URL+"/gdpr/$user_uuid"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), unlinked.ID).Return(conns, nil)

	_, err = f.orchestrator.Delete(context.Background(), unlinked, "code", false)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMissingGDPRURL))
	assert.Zero(t, a.dryRunCalls.Load()+a.commitCalls.Load())
}

func TestDeleteMissingTokenIsFatal(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "", "berth.gdprdelete", a.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"unrelated": "token"}, nil)

	_, err := f.orchestrator.Delete(context.Background(), f.profile, "code", false)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAPITokenMissing))
	assert.Zero(t, a.dryRunCalls.Load()+a.commitCalls.Load())
}

func TestDeleteDryRunFailureBlocksAllCommits(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	b := newGDPREndpoint(t)
	b.dryRunStatus = http.StatusForbidden

	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "", "berth.gdprdelete", a.URL+"/gdpr/"),
		connection(f.profile.ID, "kukkuu", "", "kukkuu.gdprdelete", b.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a", "kukkuu": "token-b"}, nil)

	results, err := f.orchestrator.Delete(context.Background(), f.profile, "code", false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.True(t, results[0].DryRun)
	assert.False(t, results[1].Success)
	assert.Equal(t, UnknownErrorCode, results[1].Errors[0].Code)

	assert.Equal(t, int32(1), a.dryRunCalls.Load())
	assert.Equal(t, int32(1), b.dryRunCalls.Load())
	assert.Zero(t, a.commitCalls.Load())
	assert.Zero(t, b.commitCalls.Load())
}

func TestDeleteCommitFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	b := newGDPREndpoint(t)
	b.commitStatus = http.StatusForbidden

	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "", "berth.gdprdelete", a.URL+"/gdpr/"),
		connection(f.profile.ID, "kukkuu", "", "kukkuu.gdprdelete", b.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a", "kukkuu": "token-b"}, nil)

	results, err := f.orchestrator.Delete(context.Background(), f.profile, "code", false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	assert.False(t, results[0].DryRun)
	assert.False(t, results[1].Success)
	require.NotEmpty(t, results[1].Errors)
	assert.Equal(t, UnknownErrorCode, results[1].Errors[0].Code)

	// Both commits were attempted despite kukkuu failing.
	assert.Equal(t, int32(1), a.commitCalls.Load())
	assert.Equal(t, int32(1), b.commitCalls.Load())
}

func TestDeleteDryRunRequestedSkipsCommit(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "", "berth.gdprdelete", a.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a"}, nil)

	results, err := f.orchestrator.Delete(context.Background(), f.profile, "code", true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.True(t, results[0].DryRun)
	assert.Equal(t, int32(1), a.dryRunCalls.Load())
	assert.Zero(t, a.commitCalls.Load())
}

func TestDeleteStructuredRemoteErrorsSurface(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	a.dryRunStatus = http.StatusForbidden
	a.commitStatus = http.StatusForbidden

	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "", "berth.gdprdelete", a.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a"}, nil)

	results, err := f.orchestrator.Delete(context.Background(), f.profile, "code", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}

func TestDeleteServiceScopesToOneConnection(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	b := newGDPREndpoint(t)
	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "", "berth.gdprdelete", a.URL+"/gdpr/"),
		connection(f.profile.ID, "kukkuu", "", "", b.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a"}, nil)

	// kukkuu has no delete scope, but a single-service delete of berth
	// must not care.
	result, err := f.orchestrator.DeleteService(context.Background(), f.profile, "berth", "code", false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "berth", result.Service.Name)
	assert.Zero(t, b.dryRunCalls.Load()+b.commitCalls.Load())
}

func TestDeleteServiceUnknownService(t *testing.T) {
	f := newFixture(t)
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(nil, nil)

	_, err := f.orchestrator.DeleteService(context.Background(), f.profile, "berth", "code", false)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestDownloadSkipsServicesWithoutQueryScope(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	a.downloadBody = `{"key":"BERTH","children":[]}`
	b := newGDPREndpoint(t)

	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "berth.gdprquery", "", a.URL+"/gdpr/"),
		connection(f.profile.ID, "kukkuu", "", "", b.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a"}, nil)

	payloads, err := f.orchestrator.Download(context.Background(), f.profile, "code")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.JSONEq(t, a.downloadBody, string(payloads[0]))
	assert.Zero(t, b.downloadCalls.Load())
}

func TestDownloadMissingTokenIsFatal(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	b := newGDPREndpoint(t)
	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "berth.gdprquery", "", a.URL+"/gdpr/"),
		connection(f.profile.ID, "kukkuu", "kukkuu.gdprquery", "", b.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a"}, nil)

	_, err := f.orchestrator.Download(context.Background(), f.profile, "code")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAPITokenMissing))
}

func TestDownloadRemoteFailureSkipsContribution(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	a.downloadBody = `{"key":"BERTH","children":[]}`
	b := newGDPREndpoint(t)
	b.downloadStatus = http.StatusInternalServerError

	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "berth.gdprquery", "", a.URL+"/gdpr/"),
		connection(f.profile.ID, "kukkuu", "kukkuu.gdprquery", "", b.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a", "kukkuu": "token-b"}, nil)

	payloads, err := f.orchestrator.Download(context.Background(), f.profile, "code")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.JSONEq(t, a.downloadBody, string(payloads[0]))
}

func TestDownloadEmptyBodyContributesNothing(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	a.downloadStatus = http.StatusNoContent

	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "berth.gdprquery", "", a.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a"}, nil)

	payloads, err := f.orchestrator.Download(context.Background(), f.profile, "code")
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestProfileServiceConnectionIsExempt(t *testing.T) {
	f := newFixture(t)
	self := connection(f.profile.ID, "profile", "", "", "")
	self.Service.IsProfileService = true
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(
		[]*registry.ServiceConnection{self}, nil).Times(2)

	results, err := f.orchestrator.Delete(context.Background(), f.profile, "code", false)
	require.NoError(t, err)
	assert.Empty(t, results)

	payloads, err := f.orchestrator.Download(context.Background(), f.profile, "code")
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestDryRunParameterReachesEndpoint(t *testing.T) {
	f := newFixture(t)
	var sawDryRun atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("dry_run") == "true" {
			sawDryRun.Store(true)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "", "berth.gdprdelete", server.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a"}, nil)

	_, err := f.orchestrator.Delete(context.Background(), f.profile, "code", true)
	require.NoError(t, err)
	assert.True(t, sawDryRun.Load())
}

func TestDownloadPayloadFitsExportDocument(t *testing.T) {
	f := newFixture(t)
	a := newGDPREndpoint(t)
	a.downloadBody = `{"key":"BERTH","children":[{"key":"BOAT","value":"s/y Meri"}]}`

	conns := []*registry.ServiceConnection{
		connection(f.profile.ID, "berth", "berth.gdprquery", "", a.URL+"/gdpr/"),
	}
	f.connections.EXPECT().ListConnections(gomock.Any(), f.profile.ID).Return(conns, nil)
	f.tokens.EXPECT().FetchAPITokens(gomock.Any(), "code").
		Return(map[string]string{"berth": "token-a"}, nil)

	payloads, err := f.orchestrator.Download(context.Background(), f.profile, "code")
	require.NoError(t, err)

	doc := &profilemodels.ExportDocument{Profile: f.profile.ExportTree(), Services: payloads}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"key":"DATA"`)
	assert.Contains(t, string(data), `"key":"BERTH"`)
}
