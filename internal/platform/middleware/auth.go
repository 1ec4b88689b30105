package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "github.com/City-of-Helsinki/open-city-profile-sub000/pkg/domain"
)

// Identity is the authenticated caller of a request. The audit flush and
// the field-visibility checks both read it from context.
type Identity struct {
	UserID id.UserID
	// Username is included in audit records only when AUDIT_LOG_USERNAME
	// is enabled.
	Username string
	// ServiceName is the connected service the caller's client belongs to,
	// resolved from the token's authorized party.
	ServiceName   id.ServiceName
	ClientID      string
	Authenticated bool
}

type identityKey struct{}

// GetIdentity retrieves the caller identity from the context. The zero
// value means an anonymous request.
func GetIdentity(ctx context.Context) Identity {
	if ident, ok := ctx.Value(identityKey{}).(Identity); ok {
		return ident
	}
	return Identity{}
}

// WithIdentity returns a context carrying the given identity. Exposed for
// tests and internal callers that bypass HTTP.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	Validate(token string) (*TokenClaims, error)
}

// TokenClaims are the claims the profile service reads from an access token.
type TokenClaims struct {
	Subject           string
	PreferredUsername string
	AuthorizedParty   string
}

// ServiceResolver maps an OAuth client id to the connected service it
// belongs to. Implemented by the service registry.
type ServiceResolver interface {
	ServiceNameForClient(ctx context.Context, clientID string) (id.ServiceName, bool)
}

// Authenticate validates the bearer token when present and stores the
// caller identity in context. Requests without a token pass through
// anonymously; handlers decide whether anonymity is acceptable.
func Authenticate(validator TokenValidator, services ServiceResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "invalid bearer token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			userID, err := id.ParseUserID(claims.Subject)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid subject")
				return
			}

			ident := Identity{
				UserID:        userID,
				Username:      claims.PreferredUsername,
				ClientID:      claims.AuthorizedParty,
				Authenticated: true,
			}
			if services != nil && claims.AuthorizedParty != "" {
				if name, found := services.ServiceNameForClient(ctx, claims.AuthorizedParty); found {
					ident.ServiceName = name
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, ident)))
		})
	}
}

// RequireUser rejects anonymous requests. Mount after Authenticate on
// routes that operate on the caller's own profile.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetIdentity(r.Context()).Authenticated {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + errCode + `","error_description":"` + errDesc + `"}`))
}

// HMACValidator validates HS256 tokens with a shared key. Production runs
// behind the city API gateway which re-signs tokens; asymmetric validation
// lives there.
type HMACValidator struct {
	key []byte
}

// NewHMACValidator creates a validator for HS256-signed tokens.
func NewHMACValidator(key string) *HMACValidator {
	return &HMACValidator{key: []byte(key)}
}

type accessTokenClaims struct {
	PreferredUsername string `json:"preferred_username"`
	AuthorizedParty   string `json:"azp"`
	jwt.RegisteredClaims
}

// Validate parses and verifies the token signature and expiry.
func (v *HMACValidator) Validate(token string) (*TokenClaims, error) {
	var claims accessTokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.key, nil
	})
	if err != nil {
		return nil, err
	}
	return &TokenClaims{
		Subject:           claims.Subject,
		PreferredUsername: claims.PreferredUsername,
		AuthorizedParty:   claims.AuthorizedParty,
	}, nil
}
