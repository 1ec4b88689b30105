package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// ClientInfo describes where a request came from. The audit flush reads it
// once per request when resolving the actor.
type ClientInfo struct {
	IPAddress string
	UserAgent string
	Browser   string
	OS        string
}

type clientInfoKey struct{}

// CaptureClientInfo extracts the caller's IP address and user agent and
// stores them in the request context. The first X-Forwarded-For entry is
// used only when trustForwardedFor is set; otherwise the raw connection
// address wins, since the header is client-controlled.
func CaptureClientInfo(trustForwardedFor bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := ClientInfo{
				IPAddress: clientIP(r, trustForwardedFor),
				UserAgent: r.UserAgent(),
			}
			if ua := useragent.New(info.UserAgent); ua != nil {
				name, version := ua.Browser()
				info.Browser = strings.TrimSpace(name + " " + version)
				info.OS = ua.OS()
			}

			ctx := WithClientInfo(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithClientInfo returns a context carrying the given client info. Exposed
// for tests and internal callers that bypass HTTP.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, info)
}

// GetClientInfo retrieves the client info from the context.
func GetClientInfo(ctx context.Context) ClientInfo {
	if info, ok := ctx.Value(clientInfoKey{}).(ClientInfo); ok {
		return info
	}
	return ClientInfo{}
}

func clientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
