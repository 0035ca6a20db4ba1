package keyrotation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-verify-api/internal/domain"
	pkgtoken "github.com/go-verify-api/internal/pkg/token"
)

type applicationStore interface {
	Get(ctx context.Context, applicationID string) (*domain.Application, error)
	ReplaceCredentials(ctx context.Context, applicationID, encKey, encSecret, lookup string, expiry, at time.Time) error
}

type sealer interface {
	Encrypt(plaintext string) (string, error)
	LookupHash(plaintext string) string
}

type Service interface {
	// Rotate issues a new key pair for applicationCode. Only the application
	// itself may rotate its keys.
	Rotate(ctx context.Context, applicationCode, callerApplicationID string) (*domain.Credentials, error)
}

// ServiceDeps holds the dependencies for key rotation.
type ServiceDeps struct {
	ApplicationRepo applicationStore
	Cipher          sealer
	Now             func() time.Time
}

type service struct {
	apps   applicationStore
	cipher sealer
	now    func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{apps: deps.ApplicationRepo, cipher: deps.Cipher, now: deps.Now}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *service) Rotate(ctx context.Context, applicationCode, callerApplicationID string) (*domain.Credentials, error) {
	if applicationCode != callerApplicationID {
		return nil, domain.ErrAccessDenied
	}
	app, err := s.apps.Get(ctx, applicationCode)
	if err != nil {
		return nil, err
	}

	key, secret, err := pkgtoken.NewCredentialPair()
	if err != nil {
		return nil, err
	}
	encKey, err := s.cipher.Encrypt(key)
	if err != nil {
		return nil, fmt.Errorf("encrypt api key: %w", err)
	}
	encSecret, err := s.cipher.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("encrypt api secret: %w", err)
	}
	now := s.now()
	expiry := now.Add(domain.KeyLifetime)

	if err := s.apps.ReplaceCredentials(ctx, app.ApplicationID, encKey, encSecret, s.cipher.LookupHash(key), expiry, now); err != nil {
		return nil, fmt.Errorf("store rotated credentials: %w", err)
	}
	slog.Info("api key rotated", "application_id", app.ApplicationID)

	return &domain.Credentials{
		ApplicationName: app.Name,
		ApplicationCode: app.ApplicationID,
		Key:             key,
		Secret:          secret,
		KeyExpiry:       expiry.Unix(),
	}, nil
}
