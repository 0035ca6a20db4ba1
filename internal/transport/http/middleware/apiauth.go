package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-verify-api/internal/application/apiauth"
	"github.com/go-verify-api/internal/domain"
)

// Credential headers sent by client applications.
const (
	HeaderAuthKey    = "X-App-Auth-Key"
	HeaderAuthSecret = "X-App-Auth-Secret"
)

// Authenticator resolves an API key/secret pair to an application.
type Authenticator interface {
	Authenticate(ctx context.Context, key, secret string, meta apiauth.RequestMeta) (*domain.Application, error)
}

// APIKeyAuth authenticates the credential headers and puts the application in context.
func APIKeyAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := apiauth.RequestMeta{
				IP:        realIP(r),
				UserAgent: r.UserAgent(),
				Method:    r.Method,
				Path:      r.URL.Path,
			}
			app, err := auth.Authenticate(r.Context(), r.Header.Get(HeaderAuthKey), r.Header.Get(HeaderAuthSecret), meta)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					writeJSONError(w, http.StatusUnauthorized, strings.TrimSuffix(err.Error(), ": "+domain.ErrUnauthorized.Error()))
					return
				}
				slog.Error("api authentication failed", "err", err)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithApplication(r.Context(), app)))
		})
	}
}

// RequireApplicationScope rejects requests whose path application code is not
// the authenticated application.
func RequireApplicationScope(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			app, ok := ApplicationFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if chi.URLParam(r, param) != app.ApplicationID {
				writeJSONError(w, http.StatusForbidden, strings.TrimSuffix(domain.ErrAccessDenied.Error(), ": "+domain.ErrForbidden.Error()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithApplication(ctx context.Context, app *domain.Application) context.Context {
	return context.WithValue(ctx, applicationKey, app)
}

// ApplicationFromContext returns the application authenticated by APIKeyAuth.
func ApplicationFromContext(ctx context.Context) (*domain.Application, bool) {
	a, ok := ctx.Value(applicationKey).(*domain.Application)
	return a, ok && a != nil
}
