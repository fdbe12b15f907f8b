package auth

import (
	"encoding/json"
	"net/http"
)

// RejectFunc is notified of every rejected request.
type RejectFunc func(r *http.Request, err error)

// RequireAPIKey creates middleware that rejects requests without a valid API key.
func RequireAPIKey(g Gate, onReject RejectFunc) func(http.Handler) http.Handler {
	return apiKeyMiddleware(g, onReject, true)
}

// OptionalAPIKey creates middleware that lets requests without the header
// through but still rejects a key that is presented and wrong.
func OptionalAPIKey(g Gate, onReject RejectFunc) func(http.Handler) http.Handler {
	return apiKeyMiddleware(g, onReject, false)
}

func apiKeyMiddleware(g Gate, onReject RejectFunc, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential, present := extractAPIKey(r, g.Header())

			if !present && !required {
				next.ServeHTTP(w, r)

				return
			}

			if err := g.Authorize(credential, present); err != nil {
				if onReject != nil {
					onReject(r, err)
				}

				writeUnauthorized(w, err)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractAPIKey returns the first value of the API key header.
func extractAPIKey(r *http.Request, header string) (string, bool) {
	values := r.Header.Values(header)
	if len(values) == 0 {
		return "", false
	}

	return values[0], true
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck // Response writing errors are not recoverable
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
