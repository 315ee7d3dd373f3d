// Package security carries the teacher's CORS and security-headers
// middleware forward, narrowed to the debug HTTP surface (internal/debugapi).
// The JWT/CSRF session layer is dropped: spec.md's Non-goals exclude
// authentication for the protocol surface, and the debug surface has no
// session to protect.
package security

import "net/http"

// CORSAndHeaders reflects the request Origin (as the teacher's
// SecurityMiddleware does), answers preflight OPTIONS requests, and sets
// the same baseline hardening headers the teacher applies to its API
// subrouter.
func CORSAndHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
