package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"passport-tracker/internal/common/auth"
	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const principalKey contextKey = "principal"

// TokenVerifier turns a bearer token into the calling principal.
type TokenVerifier interface {
	Verify(token string) (models.Principal, error)
}

// PrincipalFrom returns the principal authenticate stored on ctx.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}

func authenticate(verifier TokenVerifier, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, r, log, errors.NewUnauthenticatedError("missing bearer token"))
				return
			}
			principal, err := verifier.Verify(token)
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			if !principal.Role.Valid() {
				writeError(w, r, log, errors.NewUnauthenticatedError("unknown role "+string(principal.Role)))
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// observe logs each request and records it under its route pattern, so
// path parameters never become metric labels.
func observe(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			fields := map[string]interface{}{
				"requestId": middleware.GetReqID(r.Context()),
				"method":    r.Method,
				"route":     route,
				"status":    status,
				"duration":  elapsed.String(),
			}
			if status >= http.StatusInternalServerError {
				log.Warn("request served", fields)
			} else {
				log.Debug("request served", fields)
			}
		})
	}
}
