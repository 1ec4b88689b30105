package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/audit"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/gdpr/connected"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/store"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
)

// Download collects the profile's local data and every connected service's
// contribution into one export document.
func (s *Service) Download(ctx context.Context, userID id.UserID, authorizationCode string) (*models.ExportDocument, error) {
	profile, err := s.profiles.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	contributions, err := s.orchestrator.Download(ctx, profile, authorizationCode)
	if err != nil {
		s.metrics.GDPROperations.WithLabelValues("download", "failed").Inc()
		return nil, err
	}

	s.recordRead(ctx, profile)
	s.metrics.GDPROperations.WithLabelValues("download", "success").Inc()
	return &models.ExportDocument{
		Profile:  profile.ExportTree(),
		Services: contributions,
	}, nil
}

// Delete removes the profile's data from every connected service and, when
// all of them succeed and this is not a dry run, deletes the profile itself
// and the linked user account. Partial failures leave the profile and the
// failed connections in place; the caller gets the per-service results
// either way.
func (s *Service) Delete(ctx context.Context, userID id.UserID, authorizationCode string, dryRun bool) ([]connected.DeletionResult, error) {
	profile, err := s.profiles.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	results, err := s.orchestrator.Delete(ctx, profile, authorizationCode, dryRun)
	if err != nil {
		s.metrics.GDPROperations.WithLabelValues("delete", "failed").Inc()
		return nil, err
	}
	if dryRun {
		s.metrics.GDPROperations.WithLabelValues("delete", deleteOutcome(results)).Inc()
		return results, nil
	}

	// A dry-run result on a real delete means the barrier failed and no
	// commit call was made; local state must stay untouched.
	for _, res := range results {
		if res.DryRun {
			s.metrics.GDPROperations.WithLabelValues("delete", deleteOutcome(results)).Inc()
			return results, nil
		}
	}

	allSucceeded := true
	for _, res := range results {
		if !res.Success {
			allSucceeded = false
			continue
		}
		s.dropConnection(ctx, profile.ID, id.ServiceName(res.Service.Name))
	}
	if !allSucceeded {
		s.metrics.GDPROperations.WithLabelValues("delete", deleteOutcome(results)).Inc()
		return results, nil
	}

	// Record the deletion before the rows disappear; the flusher resolves
	// the owning user from what the accumulator captured.
	s.recordWrite(ctx, audit.OperationDelete, profile)

	if err := s.connections.DeleteConnectionsForProfile(ctx, profile.ID); err != nil {
		return results, fmt.Errorf("delete connections: %w", err)
	}
	if err := s.claims.DeleteClaimTokens(ctx, profile.ID); err != nil {
		return results, fmt.Errorf("delete claim tokens: %w", err)
	}
	if err := s.readTokens.DeleteReadTokens(ctx, profile.ID); err != nil {
		return results, fmt.Errorf("delete read tokens: %w", err)
	}
	if err := s.profiles.Delete(ctx, profile.ID); err != nil {
		return results, fmt.Errorf("delete profile: %w", err)
	}

	if s.accounts != nil && profile.HasLinkedUser() {
		if err := s.accounts.DeleteUser(ctx, profile.UserID); err != nil {
			// The local data is already gone; the account removal can be
			// retried out of band.
			s.logger.ErrorContext(ctx, "user account removal failed",
				"user_id", profile.UserID.String(), "error", err)
		}
	}

	s.metrics.ProfilesDeleted.Inc()
	s.metrics.GDPROperations.WithLabelValues("delete", "success").Inc()
	s.logger.InfoContext(ctx, "profile deleted", "profile_id", profile.ID.String())
	return results, nil
}

// DeleteServiceData removes the profile's data from a single connected
// service and drops the connection when the service reports success. The
// profile itself stays.
func (s *Service) DeleteServiceData(ctx context.Context, userID id.UserID, serviceName id.ServiceName, authorizationCode string, dryRun bool) (*connected.DeletionResult, error) {
	profile, err := s.profiles.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	result, err := s.orchestrator.DeleteService(ctx, profile, serviceName, authorizationCode, dryRun)
	if err != nil {
		s.metrics.GDPROperations.WithLabelValues("delete", "failed").Inc()
		return nil, err
	}

	if result.Success && !dryRun && !result.DryRun {
		s.dropConnection(ctx, profile.ID, serviceName)
		audit.Record(ctx, audit.OperationUpdate, profile)
	}
	outcome := "failed"
	if result.Success {
		outcome = "success"
	}
	s.metrics.GDPROperations.WithLabelValues("delete", outcome).Inc()
	return result, nil
}

func (s *Service) dropConnection(ctx context.Context, profileID id.ProfileID, serviceName id.ServiceName) {
	svc, err := s.services.GetServiceByName(ctx, serviceName)
	if err != nil {
		s.logger.ErrorContext(ctx, "could not resolve service for connection removal",
			"service", serviceName.String(), "error", err)
		return
	}
	if err := s.connections.DeleteConnection(ctx, profileID, svc.ID); err != nil {
		s.logger.ErrorContext(ctx, "could not remove service connection",
			"service", serviceName.String(), "error", err)
	}
}

func deleteOutcome(results []connected.DeletionResult) string {
	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}
	switch {
	case succeeded == len(results):
		return "success"
	case succeeded == 0 && len(results) > 0:
		return "failed"
	default:
		return "partial"
	}
}
