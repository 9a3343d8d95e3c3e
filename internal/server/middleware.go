package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/MHMDHIDR/expenses-tracker/internal/models"
)

// APIKeyAuth authenticates requests by the configured header. A plain key is
// compared in constant time; when a bcrypt hash is configured it takes
// precedence. Health and websocket endpoints are left open.
func APIKeyAuth(apiKey, apiKeyHash, headerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/health" || path == "/ws" {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get(headerName)
			if providedKey == "" {
				unauthorized(w, "API key is required.")
				return
			}

			if apiKeyHash != "" {
				if bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(providedKey)) != nil {
					unauthorized(w, "Invalid API key.")
					return
				}
			} else if !constantTimeEquals(apiKey, providedKey) {
				unauthorized(w, "Invalid API key.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
}

// constantTimeEquals compares digests so length differences leak nothing
func constantTimeEquals(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
