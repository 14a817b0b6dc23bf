package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/appointment"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	actorKey     contextKey = "actor"
)

// RoleAdmin acts as the system actor.
const RoleAdmin = "ADMIN"

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs method, path, status, duration and request ID of
// every request.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			evt := logger.Info()
			if wrapped.statusCode >= http.StatusInternalServerError {
				evt = logger.Error()
			}
			evt.
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ActorClaims are the token claims the booking API reads.
type ActorClaims struct {
	jwt.RegisteredClaims
	EmployeeID int64    `json:"employee_id,omitempty"`
	Roles      []string `json:"roles"`
}

// ActorMiddleware resolves the bearer token into the ActorIdentity passed to
// the engine. ADMIN tokens act as the system actor; every other token must
// carry a positive employee_id. With an empty secret, requests without an
// Authorization header run as the system actor.
func ActorMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" && len(secret) == 0 {
				next.ServeHTTP(w, r.WithContext(withActor(r.Context(), appointment.SystemActor())))
				return
			}

			actor, err := parseActor(header, secret)
			if err != nil {
				writeAppError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
		})
	}
}

func parseActor(header string, secret []byte) (appointment.ActorIdentity, error) {
	scheme, tokenStr, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || tokenStr == "" {
		return appointment.ActorIdentity{}, appointment.ErrNotAuthenticated
	}

	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return appointment.ActorIdentity{}, appointment.ErrNotAuthenticated
	}

	if slices.Contains(claims.Roles, RoleAdmin) {
		return appointment.SystemActor(), nil
	}
	if claims.EmployeeID <= 0 {
		return appointment.ActorIdentity{}, appointment.ErrNotAuthenticated
	}
	return appointment.ActorIdentity{ID: claims.EmployeeID}, nil
}

func withActor(ctx context.Context, actor appointment.ActorIdentity) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor resolved by ActorMiddleware.
func ActorFrom(ctx context.Context) (appointment.ActorIdentity, bool) {
	actor, ok := ctx.Value(actorKey).(appointment.ActorIdentity)
	return actor, ok
}
