package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/avatarlabs/manim-worker/internal/models"
)

// APIKeyAuth guards the job routes with a shared key, accepted either as an
// X-API-Key header or as Authorization: Bearer <key>. Rejections use the same
// in-band response shape as the pipeline endpoints.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestKey(r)

			if key == "" {
				respondJSON(w, http.StatusUnauthorized, models.VideoResponse{
					Success: false,
					Error:   "Missing API key: set X-API-Key or Authorization: Bearer <key>",
				})
				return
			}

			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				respondJSON(w, http.StatusForbidden, models.VideoResponse{
					Success: false,
					Error:   "Invalid API key",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
