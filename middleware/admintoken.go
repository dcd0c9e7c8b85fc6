package middleware

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"lyrics-annotator-go/logcolors"
)

// AdminTokenMiddleware guards store administration endpoints with a
// shared bearer token. An empty configured token disables the guarded
// endpoints entirely rather than leaving them open.
func AdminTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				log.Warnf("%s Admin endpoint %s disabled: no token configured", logcolors.LogAdmin, r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":"Admin endpoints are disabled"}`))
				return
			}

			provided := r.Header.Get("Authorization")
			if provided != "Bearer "+token {
				log.Warnf("%s Rejected admin request from %s for %s", logcolors.LogAdmin, r.RemoteAddr, r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Invalid admin token"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
