package apiauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-verify-api/internal/domain"
)

// Audit event names.
const (
	EventSuccess = "auth_success"
	EventFailure = "auth_failure"
	EventError   = "auth_error"
)

type credentialResolver interface {
	FindByCredentialKey(ctx context.Context, plaintextKey string) (*domain.Application, error)
}

// RequestMeta is the request context recorded on every audit event.
type RequestMeta struct {
	IP        string
	UserAgent string
	Method    string
	Path      string
}

type Service interface {
	// Authenticate checks a key/secret pair and returns the resolved
	// application with plaintext credentials.
	Authenticate(ctx context.Context, key, secret string, meta RequestMeta) (*domain.Application, error)
}

// ServiceDeps holds the dependencies for the authentication service.
type ServiceDeps struct {
	Directory credentialResolver
	Logger    *slog.Logger
	Now       func() time.Time
}

type service struct {
	directory credentialResolver
	log       *slog.Logger
	now       func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{directory: deps.Directory, log: deps.Logger, now: deps.Now}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) Authenticate(ctx context.Context, key, secret string, meta RequestMeta) (*domain.Application, error) {
	if key == "" || secret == "" {
		s.audit(ctx, EventFailure, key, "", meta, domain.ErrMissingCredentials)
		return nil, domain.ErrMissingCredentials
	}

	app, err := s.directory.FindByCredentialKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.audit(ctx, EventFailure, key, "", meta, domain.ErrInvalidCredentials)
			return nil, domain.ErrInvalidCredentials
		}
		s.audit(ctx, EventError, key, "", meta, err)
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(app.APISecret), []byte(secret)) != 1 {
		s.audit(ctx, EventFailure, key, app.ApplicationID, meta, domain.ErrInvalidCredentials)
		return nil, domain.ErrInvalidCredentials
	}
	if !app.IsActive() {
		s.audit(ctx, EventFailure, key, app.ApplicationID, meta, domain.ErrApplicationInactive)
		return nil, domain.ErrApplicationInactive
	}
	if app.KeyExpired(s.now()) {
		s.audit(ctx, EventFailure, key, app.ApplicationID, meta, domain.ErrKeyExpired)
		return nil, domain.ErrKeyExpired
	}

	s.audit(ctx, EventSuccess, key, app.ApplicationID, meta, nil)
	return app, nil
}

// audit emits one structured record per authentication branch. Only the
// masked key is ever logged.
func (s *service) audit(ctx context.Context, event, key, applicationID string, meta RequestMeta, cause error) {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("event", event),
		slog.String("api_key", MaskKey(key)),
		slog.String("ip", meta.IP),
		slog.String("user_agent", meta.UserAgent),
		slog.String("method", meta.Method),
		slog.String("path", meta.Path),
	}
	if applicationID != "" {
		attrs = append(attrs, slog.String("application_id", applicationID))
	}
	switch {
	case event == EventError:
		level = slog.LevelError
		attrs = append(attrs, slog.String("err", cause.Error()))
	case cause != nil:
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("reason", cause.Error()))
	}
	s.log.LogAttrs(ctx, level, "api auth", attrs...)
}

// MaskKey keeps the first and last four characters of key with "***"
// between. Keys shorter than eight characters mask to "***".
func MaskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:4] + "***" + key[len(key)-4:]
}
