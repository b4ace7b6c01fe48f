package middleware

import "net/http"

// NoStore marks responses as private and uncacheable. Shopper state differs
// per session, so shared caches must never serve one shopper's cart to
// another; Vary keeps browser caches keyed by session as well.
func NoStore() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Cache-Control", "private, no-store")
			h.Add("Vary", SessionIDHeader)
			next.ServeHTTP(w, r)
		})
	}
}
