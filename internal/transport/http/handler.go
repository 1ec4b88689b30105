// Package http exposes the profile API over REST.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/gdpr/connected"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/metrics"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/platform/middleware"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/models"
	"github.com/City-of-Helsinki/open-city-profile-sub000/internal/profile/service"
	registry "github.com/City-of-Helsinki/open-city-profile-sub000/internal/serviceregistry/models"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
	dErrors "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain-errors"
	"github.com/City-of-Helsinki/open-city-profile-sub000/pkg/platform/httputil"
)

// Service defines the profile operations the handlers expose.
type Service interface {
	Create(ctx context.Context, input service.CreateInput) (*models.Profile, error)
	GetByUser(ctx context.Context, userID id.UserID) (*models.Profile, error)
	Update(ctx context.Context, userID id.UserID, input service.UpdateInput) (*models.Profile, error)
	ConnectService(ctx context.Context, userID id.UserID, serviceName id.ServiceName) (*registry.ServiceConnection, error)
	Connections(ctx context.Context, userID id.UserID) ([]*registry.ServiceConnection, error)
	Download(ctx context.Context, userID id.UserID, authorizationCode string) (*models.ExportDocument, error)
	Delete(ctx context.Context, userID id.UserID, authorizationCode string, dryRun bool) ([]connected.DeletionResult, error)
	DeleteServiceData(ctx context.Context, userID id.UserID, serviceName id.ServiceName, authorizationCode string, dryRun bool) (*connected.DeletionResult, error)
	CreateClaimToken(ctx context.Context, profileID id.ProfileID) (*models.ClaimToken, error)
	ClaimProfile(ctx context.Context, userID id.UserID, profileID id.ProfileID, token string) (*models.Profile, error)
	CreateReadToken(ctx context.Context, userID id.UserID) (*models.TemporaryReadAccessToken, error)
	ProfileByReadToken(ctx context.Context, tokenID id.TokenID, token string) (*models.Profile, error)
}

// Handler handles profile endpoints.
type Handler struct {
	profiles Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a profile Handler.
func New(profiles Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{profiles: profiles, logger: logger, metrics: m}
}

// Register registers the profile routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Post("/profiles", h.handleCreateProfile)
		r.Get("/profiles/me", h.handleGetMyProfile)
		r.Patch("/profiles/me", h.handleUpdateMyProfile)
		r.Get("/profiles/me/export", h.handleDownloadMyProfile)
		r.Post("/profiles/me/delete", h.handleDeleteMyProfile)
		r.Get("/profiles/me/services", h.handleListConnections)
		r.Post("/profiles/me/services/{service}", h.handleConnectService)
		r.Post("/profiles/me/services/{service}/delete", h.handleDeleteServiceData)
		r.Post("/profiles/me/read-token", h.handleCreateReadToken)
		r.Post("/profiles/{profileID}/claim-token", h.handleCreateClaimToken)
		r.Post("/profiles/claim", h.handleClaimProfile)
	})
	r.Get("/profiles/by-token/{token}", h.handleProfileByReadToken)
}

func (h *Handler) observe(endpoint string, start time.Time) {
	h.metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *Handler) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("create_profile", time.Now())
	ident := middleware.GetIdentity(ctx)

	req, ok := httputil.DecodeAndPrepare[createProfileRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	input := req.toInput()
	input.UserID = ident.UserID

	profile, err := h.profiles.Create(ctx, input)
	if err != nil {
		h.logger.WarnContext(ctx, "profile creation failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toProfileResponse(profile))
}

func (h *Handler) handleGetMyProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("get_my_profile", time.Now())

	profile, err := h.profiles.GetByUser(ctx, middleware.GetIdentity(ctx).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *Handler) handleUpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("update_my_profile", time.Now())

	req, ok := httputil.DecodeAndPrepare[updateProfileRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	profile, err := h.profiles.Update(ctx, middleware.GetIdentity(ctx).UserID, req.toInput())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *Handler) handleDownloadMyProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("download_my_profile", time.Now())

	code := r.URL.Query().Get("authorization_code")
	if code == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "authorization_code is required"))
		return
	}
	doc, err := h.profiles.Download(ctx, middleware.GetIdentity(ctx).UserID, code)
	if err != nil {
		h.logger.ErrorContext(ctx, "profile download failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleDeleteMyProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("delete_my_profile", time.Now())

	req, ok := httputil.DecodeJSON[deleteProfileRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	if req.AuthorizationCode == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "authorization_code is required"))
		return
	}

	results, err := h.profiles.Delete(ctx, middleware.GetIdentity(ctx).UserID, req.AuthorizationCode, req.DryRun)
	if err != nil {
		h.logger.ErrorContext(ctx, "profile deletion failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if results == nil {
		results = []connected.DeletionResult{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) handleListConnections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("list_connections", time.Now())

	conns, err := h.profiles.Connections(ctx, middleware.GetIdentity(ctx).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]*connectionResponse, 0, len(conns))
	for _, conn := range conns {
		out = append(out, toConnectionResponse(conn))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"connections": out})
}

func (h *Handler) handleConnectService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("connect_service", time.Now())

	serviceName, err := id.ParseServiceName(chi.URLParam(r, "service"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid service name"))
		return
	}
	conn, err := h.profiles.ConnectService(ctx, middleware.GetIdentity(ctx).UserID, serviceName)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toConnectionResponse(conn))
}

func (h *Handler) handleDeleteServiceData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("delete_service_data", time.Now())

	serviceName, err := id.ParseServiceName(chi.URLParam(r, "service"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid service name"))
		return
	}
	req, ok := httputil.DecodeJSON[deleteServiceDataRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	if req.AuthorizationCode == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "authorization_code is required"))
		return
	}

	result, err := h.profiles.DeleteServiceData(ctx, middleware.GetIdentity(ctx).UserID, serviceName, req.AuthorizationCode, req.DryRun)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCreateClaimToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("create_claim_token", time.Now())

	profileID, err := id.ParseProfileID(chi.URLParam(r, "profileID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid profile id"))
		return
	}
	token, err := h.profiles.CreateClaimToken(ctx, profileID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tokenResponse{
		ID:        token.ID.String(),
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
	})
}

func (h *Handler) handleClaimProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("claim_profile", time.Now())

	req, ok := httputil.DecodeAndPrepare[claimProfileRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	profileID, err := id.ParseProfileID(req.ProfileID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid profile id"))
		return
	}
	profile, err := h.profiles.ClaimProfile(ctx, middleware.GetIdentity(ctx).UserID, profileID, req.Token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *Handler) handleCreateReadToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("create_read_token", time.Now())

	token, err := h.profiles.CreateReadToken(ctx, middleware.GetIdentity(ctx).UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tokenResponse{
		ID:        token.ID.String(),
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
	})
}

// handleProfileByReadToken serves a profile to an anonymous caller holding
// a temporary read access token. The token id is the path segment, the
// secret value travels in the token query parameter.
func (h *Handler) handleProfileByReadToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("profile_by_read_token", time.Now())

	tokenID, err := id.ParseTokenID(chi.URLParam(r, "token"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid read token"))
		return
	}
	profile, err := h.profiles.ProfileByReadToken(ctx, tokenID, r.URL.Query().Get("token"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}
