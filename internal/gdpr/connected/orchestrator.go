// Package connected executes GDPR download and delete operations across a
// profile's connected services.
package connected

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/gdpr/urltemplate"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/metrics"
	profilemodels "github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	registry "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/tracer"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
)

//go:generate mockgen -source=orchestrator.go -destination=mocks/mocks.go -package=mocks TokenFetcher,ConnectionLister

// remoteTimeout bounds each call to a downstream GDPR endpoint.
const remoteTimeout = 5 * time.Second

// TokenFetcher exchanges an authorization code for per-audience API tokens.
type TokenFetcher interface {
	FetchAPITokens(ctx context.Context, authorizationCode string) (map[string]string, error)
}

// ConnectionLister returns a profile's service connections with the service
// registry entries resolved.
type ConnectionLister interface {
	ListConnections(ctx context.Context, profileID id.ProfileID) ([]*registry.ServiceConnection, error)
}

// Orchestrator drives cross-service GDPR operations. Remote calls run
// sequentially per connection; per-service failure isolation only applies
// during the commit phase of a delete.
type Orchestrator struct {
	tokens      TokenFetcher
	connections ConnectionLister
	httpClient  *http.Client
	tracer      tracer.Tracer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(o *Orchestrator) {
		o.httpClient = client
	}
}

// New creates a connected-service orchestrator.
func New(tokens TokenFetcher, connections ConnectionLister, tr tracer.Tracer, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tokens:      tokens,
		connections: connections,
		httpClient: &http.Client{
			Timeout: remoteTimeout,
		},
		tracer:  tr,
		metrics: m,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// remoteConnections lists the profile's connections, excluding the profile
// service itself, which holds its data locally and gets no GDPR calls.
func (o *Orchestrator) remoteConnections(ctx context.Context, profileID id.ProfileID) ([]*registry.ServiceConnection, error) {
	conns, err := o.connections.ListConnections(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("list service connections: %w", err)
	}
	remote := conns[:0]
	for _, conn := range conns {
		if conn.Service != nil && !conn.Service.IsProfileService {
			remote = append(remote, conn)
		}
	}
	return remote, nil
}

// Download fetches each connected service's data contribution. Services
// without a GDPR query scope are skipped without error; a service whose
// remote call fails contributes nothing rather than failing the export. A
// missing token for any service aborts the whole download, since a profile
// export must not be silently partial.
func (o *Orchestrator) Download(ctx context.Context, profile *profilemodels.Profile, authorizationCode string) ([]json.RawMessage, error) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanDownload)
	var opErr error
	defer func() { span.End(opErr) }()

	conns, err := o.remoteConnections(ctx, profile.ID)
	if err != nil {
		opErr = err
		return nil, err
	}
	if len(conns) == 0 {
		return nil, nil
	}

	apiTokens, err := o.exchangeTokens(ctx, authorizationCode)
	if err != nil {
		opErr = err
		return nil, err
	}

	var payloads []json.RawMessage
	for _, conn := range conns {
		svc := conn.Service
		if svc.GDPRQueryScope == "" {
			continue
		}
		endpoint := urltemplate.Resolve(svc, profile)
		if endpoint == "" {
			opErr = dErrors.New(dErrors.CodeMissingGDPRURL,
				fmt.Sprintf("no GDPR URL resolvable for service %s", svc.Name))
			o.metrics.GDPROperations.WithLabelValues("download", "failed").Inc()
			return nil, opErr
		}
		token, ok := apiTokens[registry.GDPRAudience(svc.GDPRQueryScope)]
		if !ok {
			opErr = dErrors.New(dErrors.CodeAPITokenMissing,
				fmt.Sprintf("no API token for service %s", svc.Name))
			o.metrics.GDPROperations.WithLabelValues("download", "failed").Inc()
			return nil, opErr
		}

		status, body, err := o.callGDPR(ctx, http.MethodGet, endpoint, token, svc.Name.String(), false)
		if err != nil || status < 200 || status >= 300 {
			// The service's contribution is simply absent.
			o.logger.WarnContext(ctx, "service data download failed",
				slog.String("service", svc.Name.String()),
				slog.Int("status", status))
			continue
		}
		if len(body) > 0 && json.Valid(body) {
			payloads = append(payloads, json.RawMessage(body))
		}
	}

	o.metrics.GDPROperations.WithLabelValues("download", "success").Inc()
	return payloads, nil
}

// Delete removes the profile's data from every connected service. All
// capability checks and token resolution happen before any network call;
// then every service must pass a dry-run before any real delete is issued.
// When the caller asks for a dry run, the commit phase is skipped.
func (o *Orchestrator) Delete(ctx context.Context, profile *profilemodels.Profile, authorizationCode string, dryRun bool) ([]DeletionResult, error) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanDelete, tracer.Bool(tracer.AttrDryRun, dryRun))
	var opErr error
	defer func() { span.End(opErr) }()

	conns, err := o.remoteConnections(ctx, profile.ID)
	if err != nil {
		opErr = err
		return nil, err
	}
	results, err := o.deleteConnections(ctx, profile, conns, authorizationCode, dryRun)
	if err != nil {
		opErr = err
		o.metrics.GDPROperations.WithLabelValues("delete", "failed").Inc()
		return nil, err
	}
	o.metrics.GDPROperations.WithLabelValues("delete", deleteOutcome(results)).Inc()
	return results, nil
}

// DeleteService removes the profile's data from one named service. The
// two-phase flow is the same as for a full delete, scoped to the single
// connection.
func (o *Orchestrator) DeleteService(ctx context.Context, profile *profilemodels.Profile, serviceName id.ServiceName, authorizationCode string, dryRun bool) (*DeletionResult, error) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanDelete,
		tracer.String(tracer.AttrService, serviceName.String()),
		tracer.Bool(tracer.AttrDryRun, dryRun))
	var opErr error
	defer func() { span.End(opErr) }()

	conns, err := o.remoteConnections(ctx, profile.ID)
	if err != nil {
		opErr = err
		return nil, err
	}
	var target []*registry.ServiceConnection
	for _, conn := range conns {
		if conn.Service.Name == serviceName {
			target = append(target, conn)
			break
		}
	}
	if len(target) == 0 {
		opErr = dErrors.New(dErrors.CodeNotFound,
			fmt.Sprintf("profile has no connection to service %s", serviceName))
		return nil, opErr
	}

	results, err := o.deleteConnections(ctx, profile, target, authorizationCode, dryRun)
	if err != nil {
		opErr = err
		o.metrics.GDPROperations.WithLabelValues("delete", "failed").Inc()
		return nil, err
	}
	o.metrics.GDPROperations.WithLabelValues("delete", deleteOutcome(results)).Inc()
	return &results[0], nil
}

func (o *Orchestrator) deleteConnections(ctx context.Context, profile *profilemodels.Profile, conns []*registry.ServiceConnection, authorizationCode string, dryRun bool) ([]DeletionResult, error) {
	if len(conns) == 0 {
		return nil, nil
	}

	// Capability check. Any connected service that cannot be called for
	// deletion makes the whole operation fail before a single network
	// call, the token exchange included.
	endpoints := make([]string, len(conns))
	for i, conn := range conns {
		svc := conn.Service
		if svc.GDPRDeleteScope == "" {
			return nil, dErrors.New(dErrors.CodeMissingGDPRScope,
				fmt.Sprintf("service %s has no GDPR delete capability", svc.Name))
		}
		endpoints[i] = urltemplate.Resolve(svc, profile)
		if endpoints[i] == "" {
			return nil, dErrors.New(dErrors.CodeMissingGDPRURL,
				fmt.Sprintf("no GDPR URL resolvable for service %s", svc.Name))
		}
	}

	apiTokens, err := o.exchangeTokens(ctx, authorizationCode)
	if err != nil {
		return nil, err
	}
	serviceTokens := make([]string, len(conns))
	for i, conn := range conns {
		token, ok := apiTokens[registry.GDPRAudience(conn.Service.GDPRDeleteScope)]
		if !ok {
			return nil, dErrors.New(dErrors.CodeAPITokenMissing,
				fmt.Sprintf("no API token for service %s", conn.Service.Name))
		}
		serviceTokens[i] = token
	}

	// Dry-run barrier: every service must confirm deletion would succeed
	// before any real delete is issued anywhere.
	dryRunResults := make([]DeletionResult, len(conns))
	allPassed := true
	for i, conn := range conns {
		dryRunResults[i] = o.deleteFromService(ctx, conn.Service, endpoints[i], serviceTokens[i], true)
		if !dryRunResults[i].Success {
			allPassed = false
		}
	}
	if dryRun || !allPassed {
		return dryRunResults, nil
	}

	results := make([]DeletionResult, len(conns))
	for i, conn := range conns {
		results[i] = o.deleteFromService(ctx, conn.Service, endpoints[i], serviceTokens[i], false)
	}
	return results, nil
}

func (o *Orchestrator) deleteFromService(ctx context.Context, svc *registry.Service, endpoint, token string, dryRun bool) DeletionResult {
	result := DeletionResult{
		Service: ServiceIdentity{Name: svc.Name.String(), Description: svc.Description},
		DryRun:  dryRun,
	}

	status, body, err := o.callGDPR(ctx, http.MethodDelete, endpoint, token, svc.Name.String(), dryRun)
	if err != nil {
		result.Errors = []APIError{unknownError()}
		return result
	}
	switch {
	case status >= 200 && status < 300:
		result.Success = true
	default:
		result.Errors = parseRemoteErrors(body)
	}
	return result
}

func (o *Orchestrator) exchangeTokens(ctx context.Context, authorizationCode string) (map[string]string, error) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanTokenExchange)
	apiTokens, err := o.tokens.FetchAPITokens(ctx, authorizationCode)
	span.End(err)
	return apiTokens, err
}

// callGDPR performs one remote GDPR call and returns the HTTP status and
// response body. A transport-level failure returns an error; HTTP-level
// failures are the caller's to interpret.
func (o *Orchestrator) callGDPR(ctx context.Context, method, endpoint, token, serviceName string, dryRun bool) (int, []byte, error) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanRemoteCall,
		tracer.String(tracer.AttrService, serviceName),
		tracer.Bool(tracer.AttrDryRun, dryRun))
	var callErr error
	defer func() { span.End(callErr) }()

	if dryRun {
		withParam, err := addDryRunParam(endpoint)
		if err != nil {
			callErr = err
			return 0, nil, err
		}
		endpoint = withParam
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		callErr = fmt.Errorf("create GDPR request: %w", err)
		return 0, nil, callErr
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	o.metrics.GDPRRemoteDuration.WithLabelValues(serviceName).Observe(time.Since(start).Seconds())
	if err != nil {
		o.metrics.GDPRRemoteCalls.WithLabelValues(serviceName, "error").Inc()
		callErr = dErrors.Wrap(err, dErrors.CodeRemoteUnavailable, "GDPR endpoint unreachable")
		return 0, nil, callErr
	}
	defer resp.Body.Close()
	span.SetAttributes(tracer.Int64(tracer.AttrStatus, int64(resp.StatusCode)))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		o.metrics.GDPRRemoteCalls.WithLabelValues(serviceName, "error").Inc()
		callErr = dErrors.Wrap(err, dErrors.CodeRemoteUnavailable, "read GDPR response")
		return resp.StatusCode, nil, callErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		o.metrics.GDPRRemoteCalls.WithLabelValues(serviceName, "success").Inc()
	} else {
		o.metrics.GDPRRemoteCalls.WithLabelValues(serviceName, "failure").Inc()
	}
	return resp.StatusCode, body, nil
}

func addDryRunParam(endpoint string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse GDPR endpoint: %w", err)
	}
	query := parsed.Query()
	query.Set("dry_run", "true")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func deleteOutcome(results []DeletionResult) string {
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	switch {
	case failed == 0:
		return "success"
	case failed == len(results):
		return "failed"
	default:
		return "partial"
	}
}
