package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-verify-api/internal/domain"
)

// applicationStore is the read side of the applications table.
type applicationStore interface {
	Get(ctx context.Context, applicationID string) (*domain.Application, error)
	GetByName(ctx context.Context, name string) (*domain.Application, error)
	GetByKeyLookup(ctx context.Context, lookup string) (*domain.Application, error)
	ScanActive(ctx context.Context) ([]domain.Application, error)
}

type decrypter interface {
	Decrypt(ciphertext string) (string, error)
	LookupHash(plaintext string) string
}

// Service resolves applications and returns them with key and secret decrypted.
type Service interface {
	FindByID(ctx context.Context, applicationID string) (*domain.Application, error)
	FindByName(ctx context.Context, name string) (*domain.Application, error)
	FindByCredentialKey(ctx context.Context, plaintextKey string) (*domain.Application, error)
}

// ServiceDeps holds the dependencies for the directory service.
type ServiceDeps struct {
	ApplicationRepo applicationStore
	Cipher          decrypter
}

type service struct {
	apps   applicationStore
	cipher decrypter
}

func NewService(deps ServiceDeps) Service {
	return &service{apps: deps.ApplicationRepo, cipher: deps.Cipher}
}

func (s *service) FindByID(ctx context.Context, applicationID string) (*domain.Application, error) {
	a, err := s.apps.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	return s.decrypted(a)
}

func (s *service) FindByName(ctx context.Context, name string) (*domain.Application, error) {
	a, err := s.apps.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.decrypted(a)
}

// FindByCredentialKey tries the keyed lookup index first. Rows written before
// the index existed are found by a linear scan over active applications that
// decrypts every stored key; rows that fail to decrypt are skipped. The scan
// is O(n) in application count.
func (s *service) FindByCredentialKey(ctx context.Context, plaintextKey string) (*domain.Application, error) {
	a, err := s.apps.GetByKeyLookup(ctx, s.cipher.LookupHash(plaintextKey))
	switch {
	case err == nil:
		dec, derr := s.decrypted(a)
		if derr == nil && dec.APIKey == plaintextKey {
			return dec, nil
		}
		if derr != nil {
			slog.Error("indexed application failed to decrypt", "application_id", a.ApplicationID, "err", derr)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("lookup by key index: %w", err)
	}

	apps, err := s.apps.ScanActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan applications: %w", err)
	}
	for i := range apps {
		key, err := s.cipher.Decrypt(apps[i].APIKey)
		if err != nil {
			slog.Warn("skipping application with undecryptable key", "application_id", apps[i].ApplicationID)
			continue
		}
		if key != plaintextKey {
			continue
		}
		secret, err := s.cipher.Decrypt(apps[i].APISecret)
		if err != nil {
			slog.Warn("skipping application with undecryptable secret", "application_id", apps[i].ApplicationID)
			continue
		}
		found := apps[i]
		found.APIKey = key
		found.APISecret = secret
		return &found, nil
	}
	return nil, domain.ErrApplicationNotFound
}

// decrypted returns a copy of a with key and secret in plaintext.
func (s *service) decrypted(a *domain.Application) (*domain.Application, error) {
	key, err := s.cipher.Decrypt(a.APIKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt api key of %s: %w", a.ApplicationID, err)
	}
	secret, err := s.cipher.Decrypt(a.APISecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt api secret of %s: %w", a.ApplicationID, err)
	}
	out := *a
	out.APIKey = key
	out.APISecret = secret
	return &out, nil
}
