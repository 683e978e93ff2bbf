// Package auth guards the HTTP surface: device bearer tokens on the
// verification endpoints and an operator API key on the enrolment endpoints.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"presence/internal/token"
	"presence/internal/transport/http/shared"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/secrets"
)

type contextKey string

const deviceIDKey contextKey = "device_id"

// DeviceID returns the authenticated device ID from the request context.
func DeviceID(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

// RequireDevice validates the Bearer token on incoming requests and stores
// the device ID in the request context.
func RequireDevice(tokens *token.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(header, bearerPrefix) {
				shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := tokens.Validate(header[len(bearerPrefix):])
			if err != nil {
				logger.WarnContext(r.Context(), "rejected device token", "error", err)
				shared.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), deviceIDKey, claims.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAPIKey validates the X-API-Key header against a bcrypt hash of the
// operator key. Used on the enrolment endpoints.
func RequireAPIKey(keyHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing API key"))
				return
			}
			if err := secrets.Verify(key, keyHash); err != nil {
				logger.WarnContext(r.Context(), "rejected API key")
				shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
