package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/logger"
)

// AdminAuth requires "Authorization: Bearer <secret>". An empty secret
// rejects every request.
func AdminAuth(secret string) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r)
			if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				logger.FromContext(r.Context()).Warn("admin request rejected",
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeError(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}
