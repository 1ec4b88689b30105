package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/audit"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/gdpr/connected"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/metrics"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	profilestore "github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/store"
	registry "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
	registrystore "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/store"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
)

var testMetrics = metrics.New()

type stubOrchestrator struct {
	downloadFn      func(profile *models.Profile) ([]json.RawMessage, error)
	deleteFn        func(profile *models.Profile, dryRun bool) ([]connected.DeletionResult, error)
	deleteServiceFn func(profile *models.Profile, serviceName id.ServiceName, dryRun bool) (*connected.DeletionResult, error)
}

func (s *stubOrchestrator) Download(ctx context.Context, profile *models.Profile, code string) ([]json.RawMessage, error) {
	if s.downloadFn == nil {
		return nil, nil
	}
	return s.downloadFn(profile)
}

func (s *stubOrchestrator) Delete(ctx context.Context, profile *models.Profile, code string, dryRun bool) ([]connected.DeletionResult, error) {
	if s.deleteFn == nil {
		return nil, nil
	}
	return s.deleteFn(profile, dryRun)
}

func (s *stubOrchestrator) DeleteService(ctx context.Context, profile *models.Profile, serviceName id.ServiceName, code string, dryRun bool) (*connected.DeletionResult, error) {
	return s.deleteServiceFn(profile, serviceName, dryRun)
}

type stubAccounts struct {
	deleted []id.UserID
	err     error
}

func (s *stubAccounts) DeleteUser(ctx context.Context, userID id.UserID) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, userID)
	return nil
}

type fixture struct {
	svc          *Service
	profiles     *profilestore.InMemory
	registry     *registrystore.InMemory
	orchestrator *stubOrchestrator
	accounts     *stubAccounts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	profiles := profilestore.NewInMemory()
	reg := registrystore.NewInMemory()
	orch := &stubOrchestrator{}
	accounts := &stubAccounts{}
	svc := New(profiles, profiles, profiles, reg, reg, orch, testMetrics,
		slog.New(slog.DiscardHandler), WithAccountDeleter(accounts))
	return &fixture{svc: svc, profiles: profiles, registry: reg, orchestrator: orch, accounts: accounts}
}

func (f *fixture) registerService(t *testing.T, name string) *registry.Service {
	t.Helper()
	svc := &registry.Service{
		ID:              id.ServiceID(uuid.New()),
		Name:            id.ServiceName(name),
		Title:           name,
		GDPRQueryScope:  name + ".gdprquery",
		GDPRDeleteScope: name + ".gdprdelete",
		GDPRURL:         "https://" + name + ".example.com/gdpr-api/",
	}
	require.NoError(t, f.registry.CreateService(context.Background(), svc))
	return svc
}

func (f *fixture) createProfile(t *testing.T, userID id.UserID) *models.Profile {
	t.Helper()
	p, err := f.svc.Create(context.Background(), CreateInput{
		UserID:    userID,
		FirstName: "Matti",
		LastName:  "Meikäläinen",
		Emails: []*models.Email{
			{Email: "matti@example.com", Type: models.EmailTypePersonal, Primary: true},
		},
	})
	require.NoError(t, err)
	return p
}

func successFor(svc *registry.Service) connected.DeletionResult {
	return connected.DeletionResult{
		Service: connected.ServiceIdentity{Name: svc.Name.String(), Description: svc.Description},
		Success: true,
	}
}

func failureFor(svc *registry.Service) connected.DeletionResult {
	return connected.DeletionResult{
		Service: connected.ServiceIdentity{Name: svc.Name.String(), Description: svc.Description},
		Errors:  []connected.APIError{{Code: connected.UnknownErrorCode}},
	}
}

func TestCreateRequiresPrimaryEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateInput{
		UserID:    id.UserID(uuid.New()),
		FirstName: "Maija",
		LastName:  "Mallikas",
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodePrimaryEmailRequired))
}

func TestCreateSecondProfileForUserConflicts(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())
	f.createProfile(t, userID)

	_, err := f.svc.Create(context.Background(), CreateInput{
		UserID:    userID,
		FirstName: "Maija",
		LastName:  "Mallikas",
		Emails: []*models.Email{
			{Email: "maija@example.com", Type: models.EmailTypeWork, Primary: true},
		},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeProfileAlreadyExists))
}

func TestUpdateAppliesPartialChanges(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())
	f.createProfile(t, userID)

	nickname := "Masa"
	lang := models.LanguageSwedish
	updated, err := f.svc.Update(context.Background(), userID, UpdateInput{
		Nickname: &nickname,
		Language: &lang,
	})
	require.NoError(t, err)
	assert.Equal(t, "Masa", updated.Nickname)
	assert.Equal(t, models.LanguageSwedish, updated.Language)
	assert.Equal(t, "Matti", updated.FirstName)
}

func TestUpdateRejectsMultiplePrimaryEmails(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())
	f.createProfile(t, userID)

	_, err := f.svc.Update(context.Background(), userID, UpdateInput{
		Emails: []*models.Email{
			{Email: "a@example.com", Type: models.EmailTypePersonal, Primary: true},
			{Email: "b@example.com", Type: models.EmailTypeWork, Primary: true},
		},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDataConflict))
}

func TestConnectService(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())
	p := f.createProfile(t, userID)
	svc := f.registerService(t, "berthservice")

	conn, err := f.svc.ConnectService(context.Background(), userID, svc.Name)
	require.NoError(t, err)
	assert.Equal(t, p.ID, conn.ProfileID)
	assert.Equal(t, svc.ID, conn.ServiceID)

	_, err = f.svc.ConnectService(context.Background(), userID, svc.Name)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = f.svc.ConnectService(context.Background(), userID, id.ServiceName("nosuch"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestDownloadBuildsExportDocument(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())
	f.createProfile(t, userID)
	f.orchestrator.downloadFn = func(profile *models.Profile) ([]json.RawMessage, error) {
		return []json.RawMessage{json.RawMessage(`{"key":"BERTHS","children":[]}`)}, nil
	}

	doc, err := f.svc.Download(context.Background(), userID, "auth-code")
	require.NoError(t, err)

	payload, err := json.Marshal(doc)
	require.NoError(t, err)
	var root struct {
		Key      string            `json:"key"`
		Children []json.RawMessage `json:"children"`
	}
	require.NoError(t, json.Unmarshal(payload, &root))
	assert.Equal(t, "DATA", root.Key)
	require.Len(t, root.Children, 2)
	assert.JSONEq(t, `{"key":"BERTHS","children":[]}`, string(root.Children[1]))
}

func TestDeleteRemovesEverythingWhenAllServicesSucceed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	p := f.createProfile(t, userID)
	berth := f.registerService(t, "berthservice")
	parking := f.registerService(t, "parkingservice")
	_, err := f.svc.ConnectService(ctx, userID, berth.Name)
	require.NoError(t, err)
	_, err = f.svc.ConnectService(ctx, userID, parking.Name)
	require.NoError(t, err)

	f.orchestrator.deleteFn = func(profile *models.Profile, dryRun bool) ([]connected.DeletionResult, error) {
		return []connected.DeletionResult{successFor(berth), successFor(parking)}, nil
	}

	results, err := f.svc.Delete(ctx, userID, "auth-code", false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.Success)
	}

	_, err = f.profiles.GetByUser(ctx, userID)
	assert.ErrorIs(t, err, profilestore.ErrNotFound)
	conns, err := f.registry.ListConnections(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, conns)
	assert.Equal(t, []id.UserID{userID}, f.accounts.deleted)
}

func TestDeletePartialFailureKeepsProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	p := f.createProfile(t, userID)
	berth := f.registerService(t, "berthservice")
	parking := f.registerService(t, "parkingservice")
	_, err := f.svc.ConnectService(ctx, userID, berth.Name)
	require.NoError(t, err)
	_, err = f.svc.ConnectService(ctx, userID, parking.Name)
	require.NoError(t, err)

	f.orchestrator.deleteFn = func(profile *models.Profile, dryRun bool) ([]connected.DeletionResult, error) {
		return []connected.DeletionResult{successFor(berth), failureFor(parking)}, nil
	}

	results, err := f.svc.Delete(ctx, userID, "auth-code", false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The profile and the failing connection stay; only the succeeded
	// service's connection is dropped.
	_, err = f.profiles.GetByUser(ctx, userID)
	require.NoError(t, err)
	conns, err := f.registry.ListConnections(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, parking.ID, conns[0].ServiceID)
	assert.Empty(t, f.accounts.deleted)
}

func TestReadAuditCoversContactRecords(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())
	f.createProfile(t, userID)

	acc := audit.NewAccumulator()
	ctx := audit.WithAccumulator(context.Background(), acc)
	_, err := f.svc.GetByUser(ctx, userID)
	require.NoError(t, err)

	sink := audit.NewMemorySink()
	flusher := audit.NewFlusher([]audit.Sink{sink}, f.profiles, nil, false,
		testMetrics, slog.New(slog.DiscardHandler))
	flusher.Flush(context.Background(), acc)

	parts := make(map[string]bool)
	for _, entry := range sink.Entries() {
		parts[entry.TargetType] = true
	}
	assert.True(t, parts["base profile"])
	assert.True(t, parts["email"], "reading a profile must audit its emails")
}

func TestDeleteBarrierFailureDropsNoConnections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	p := f.createProfile(t, userID)
	berth := f.registerService(t, "berthservice")
	parking := f.registerService(t, "parkingservice")
	_, err := f.svc.ConnectService(ctx, userID, berth.Name)
	require.NoError(t, err)
	_, err = f.svc.ConnectService(ctx, userID, parking.Name)
	require.NoError(t, err)

	// Real delete, but one service fails the dry run: the orchestrator
	// stops at the barrier and hands back dry-run results only.
	f.orchestrator.deleteFn = func(profile *models.Profile, dryRun bool) ([]connected.DeletionResult, error) {
		require.False(t, dryRun)
		passed := successFor(berth)
		passed.DryRun = true
		refused := failureFor(parking)
		refused.DryRun = true
		return []connected.DeletionResult{passed, refused}, nil
	}

	results, err := f.svc.Delete(ctx, userID, "auth-code", false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Nothing was committed remotely, so nothing may change locally: the
	// profile and both connections survive, including the one whose dry
	// run passed.
	_, err = f.profiles.GetByUser(ctx, userID)
	require.NoError(t, err)
	conns, err := f.registry.ListConnections(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, conns, 2)
	assert.Empty(t, f.accounts.deleted)
}

func TestDeleteDryRunTouchesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	p := f.createProfile(t, userID)
	berth := f.registerService(t, "berthservice")
	_, err := f.svc.ConnectService(ctx, userID, berth.Name)
	require.NoError(t, err)

	f.orchestrator.deleteFn = func(profile *models.Profile, dryRun bool) ([]connected.DeletionResult, error) {
		require.True(t, dryRun)
		res := successFor(berth)
		res.DryRun = true
		return []connected.DeletionResult{res}, nil
	}

	_, err = f.svc.Delete(ctx, userID, "auth-code", true)
	require.NoError(t, err)

	_, err = f.profiles.GetByUser(ctx, userID)
	require.NoError(t, err)
	conns, err := f.registry.ListConnections(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, conns, 1)
	assert.Empty(t, f.accounts.deleted)
}

func TestDeleteServiceDataDropsSingleConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	p := f.createProfile(t, userID)
	berth := f.registerService(t, "berthservice")
	parking := f.registerService(t, "parkingservice")
	_, err := f.svc.ConnectService(ctx, userID, berth.Name)
	require.NoError(t, err)
	_, err = f.svc.ConnectService(ctx, userID, parking.Name)
	require.NoError(t, err)

	f.orchestrator.deleteServiceFn = func(profile *models.Profile, name id.ServiceName, dryRun bool) (*connected.DeletionResult, error) {
		require.Equal(t, berth.Name, name)
		res := successFor(berth)
		return &res, nil
	}

	result, err := f.svc.DeleteServiceData(ctx, userID, berth.Name, "auth-code", false)
	require.NoError(t, err)
	assert.True(t, result.Success)

	_, err = f.profiles.GetByUser(ctx, userID)
	require.NoError(t, err)
	conns, err := f.registry.ListConnections(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, parking.ID, conns[0].ServiceID)
}

func TestDeleteServiceDataDryRunResultKeepsConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	p := f.createProfile(t, userID)
	berth := f.registerService(t, "berthservice")
	_, err := f.svc.ConnectService(ctx, userID, berth.Name)
	require.NoError(t, err)

	f.orchestrator.deleteServiceFn = func(profile *models.Profile, name id.ServiceName, dryRun bool) (*connected.DeletionResult, error) {
		res := successFor(berth)
		res.DryRun = true
		return &res, nil
	}

	result, err := f.svc.DeleteServiceData(ctx, userID, berth.Name, "auth-code", false)
	require.NoError(t, err)
	assert.True(t, result.Success)

	// A dry-run result means nothing was committed remotely, so the
	// connection stays.
	conns, err := f.registry.ListConnections(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}

func TestDeleteServiceDataFailureKeepsConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	p := f.createProfile(t, userID)
	berth := f.registerService(t, "berthservice")
	_, err := f.svc.ConnectService(ctx, userID, berth.Name)
	require.NoError(t, err)

	f.orchestrator.deleteServiceFn = func(profile *models.Profile, name id.ServiceName, dryRun bool) (*connected.DeletionResult, error) {
		res := failureFor(berth)
		return &res, nil
	}

	result, err := f.svc.DeleteServiceData(ctx, userID, berth.Name, "auth-code", false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, connected.UnknownErrorCode, result.Errors[0].Code)

	conns, err := f.registry.ListConnections(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}

func TestClaimProfileLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unlinked, err := models.NewProfile(id.ProfileID(uuid.New()), id.UserID{}, "Aino", "Aaltonen")
	require.NoError(t, err)
	require.NoError(t, f.profiles.Create(ctx, unlinked))

	token, err := f.svc.CreateClaimToken(ctx, unlinked.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)
	assert.NotEqual(t, token.Token, token.TokenHash)

	userID := id.UserID(uuid.New())
	_, err = f.svc.ClaimProfile(ctx, userID, unlinked.ID, "wrong-token")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	claimed, err := f.svc.ClaimProfile(ctx, userID, unlinked.ID, token.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, claimed.UserID)

	// Tokens are single use at the profile level.
	_, err = f.svc.ClaimProfile(ctx, id.UserID(uuid.New()), unlinked.ID, token.Token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestCreateClaimTokenRejectsLinkedProfile(t *testing.T) {
	f := newFixture(t)
	userID := id.UserID(uuid.New())
	p := f.createProfile(t, userID)

	_, err := f.svc.CreateClaimToken(context.Background(), p.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestTemporaryReadAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := id.UserID(uuid.New())
	p := f.createProfile(t, userID)

	token, err := f.svc.CreateReadToken(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	got, err := f.svc.ProfileByReadToken(ctx, token.ID, token.Token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.svc.ProfileByReadToken(ctx, token.ID, "wrong-value")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = f.svc.ProfileByReadToken(ctx, id.TokenID(uuid.New()), token.Token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
