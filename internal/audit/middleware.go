package audit

import (
	"net/http"
)

// Middleware attaches a fresh accumulator to every request and flushes it
// after the handler has written its response. When auditing is disabled no
// accumulator is attached and Record calls become no-ops. Nothing survives
// past the flush.
func Middleware(flusher *Flusher, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc := NewAccumulator()
			ctx := WithAccumulator(r.Context(), acc)
			defer flusher.Flush(ctx, acc)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
