package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-verify-api/internal/domain"
	"github.com/go-verify-api/internal/pkg/id"
	pkgtoken "github.com/go-verify-api/internal/pkg/token"
)

// RegisterInput is one application of a registration batch.
type RegisterInput struct {
	Name     string                `json:"applicationName" validate:"required,max=100"`
	Services []domain.ServiceInput `json:"services" validate:"dive"`
}

type applicationStore interface {
	Put(ctx context.Context, a *domain.Application) error
	Get(ctx context.Context, applicationID string) (*domain.Application, error)
	GetByName(ctx context.Context, name string) (*domain.Application, error)
	SetStatus(ctx context.Context, applicationID string, status domain.ActivationStatus, at time.Time) error
	Delete(ctx context.Context, applicationID string) error
}

type subscriptionStore interface {
	Put(ctx context.Context, s *domain.Subscription) error
	ListByType(ctx context.Context, applicationID string, serviceType domain.ServiceType) ([]domain.Subscription, error)
	ReplaceConfig(ctx context.Context, serviceID string, policy domain.VerificationPolicy, success, failure domain.Callback, linkRoute *string, at time.Time) error
	SetStatus(ctx context.Context, serviceID string, status domain.ActivationStatus, at time.Time) error
	Delete(ctx context.Context, serviceID string) error
}

type sealer interface {
	Encrypt(plaintext string) (string, error)
	LookupHash(plaintext string) string
}

// Service manages applications and their subscriptions. Batches are checked
// as a whole before the first write; a write that fails part way removes
// everything the batch stored.
type Service interface {
	Register(ctx context.Context, items []RegisterInput) ([]domain.Credentials, error)
	Deactivate(ctx context.Context, applicationCode string) error
	AddServices(ctx context.Context, applicationCode string, items []domain.ServiceInput) ([]domain.Subscription, error)
	UpdateService(ctx context.Context, applicationCode string, serviceType domain.ServiceType, in domain.ServiceInput) (*domain.Subscription, error)
	DeleteService(ctx context.Context, applicationCode string, serviceType domain.ServiceType) error
}

// ServiceDeps holds the dependencies for the onboarding service.
type ServiceDeps struct {
	ApplicationRepo  applicationStore
	SubscriptionRepo subscriptionStore
	Cipher           sealer
	Now              func() time.Time
}

type service struct {
	apps   applicationStore
	subs   subscriptionStore
	cipher sealer
	now    func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{apps: deps.ApplicationRepo, subs: deps.SubscriptionRepo, cipher: deps.Cipher, now: deps.Now}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *service) Register(ctx context.Context, items []RegisterInput) ([]domain.Credentials, error) {
	if err := s.checkRegistrations(ctx, items); err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]domain.Credentials, 0, len(items))
	var stored []registration
	for _, in := range items {
		creds, reg, err := s.registerOne(ctx, in, now)
		if reg.applicationID != "" {
			stored = append(stored, reg)
		}
		if err != nil {
			s.discard(ctx, stored, now)
			return nil, err
		}
		out = append(out, *creds)
	}
	for _, c := range out {
		slog.Info("application registered", "application_id", c.ApplicationCode, "services", len(c.Services))
	}
	return out, nil
}

// checkRegistrations rejects a batch that would fail on a name or service
// conflict, before anything is written.
func (s *service) checkRegistrations(ctx context.Context, items []RegisterInput) error {
	names := make(map[string]struct{}, len(items))
	for _, in := range items {
		if err := uniqueTypes(in.Services); err != nil {
			return err
		}
		if _, dup := names[in.Name]; dup {
			return domain.ErrDuplicateApplication
		}
		names[in.Name] = struct{}{}

		_, err := s.apps.GetByName(ctx, in.Name)
		if err == nil {
			return domain.ErrDuplicateApplication
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("check application name: %w", err)
		}
	}
	return nil
}

// registration records what registerOne stored, for discard.
type registration struct {
	applicationID string
	serviceIDs    []string
}

func (s *service) registerOne(ctx context.Context, in RegisterInput, now time.Time) (*domain.Credentials, registration, error) {
	var reg registration
	key, secret, err := pkgtoken.NewCredentialPair()
	if err != nil {
		return nil, reg, err
	}
	encKey, err := s.cipher.Encrypt(key)
	if err != nil {
		return nil, reg, fmt.Errorf("encrypt api key: %w", err)
	}
	encSecret, err := s.cipher.Encrypt(secret)
	if err != nil {
		return nil, reg, fmt.Errorf("encrypt api secret: %w", err)
	}

	app := &domain.Application{
		ApplicationID: id.NewAt(now),
		Name:          in.Name,
		APIKey:        encKey,
		APISecret:     encSecret,
		KeyLookup:     s.cipher.LookupHash(key),
		KeyExpiry:     now.Add(domain.KeyLifetime),
		Status:        domain.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.apps.Put(ctx, app); err != nil {
		return nil, reg, fmt.Errorf("persist application: %w", err)
	}
	reg.applicationID = app.ApplicationID

	subscribed := make([]string, 0, len(in.Services))
	for _, svc := range in.Services {
		sub := newSubscription(app.ApplicationID, svc, now)
		if err := s.subs.Put(ctx, sub); err != nil {
			return nil, reg, fmt.Errorf("persist subscription %s: %w", svc.ServiceType, err)
		}
		reg.serviceIDs = append(reg.serviceIDs, sub.ServiceID)
		subscribed = append(subscribed, string(svc.ServiceType))
	}

	return &domain.Credentials{
		ApplicationName: app.Name,
		ApplicationCode: app.ApplicationID,
		Key:             key,
		Secret:          secret,
		KeyExpiry:       app.KeyExpiry.Unix(),
		Services:        subscribed,
	}, reg, nil
}

// discard removes applications whose credentials were never returned. An
// application that cannot be deleted is at least deactivated.
func (s *service) discard(ctx context.Context, regs []registration, now time.Time) {
	ctx = context.WithoutCancel(ctx)
	for _, reg := range regs {
		s.discardSubscriptions(ctx, reg.serviceIDs)
		if err := s.apps.Delete(ctx, reg.applicationID); err != nil {
			slog.Error("failed to remove incomplete application", "application_id", reg.applicationID, "err", err)
			if err := s.apps.SetStatus(ctx, reg.applicationID, domain.StatusInactive, now); err != nil {
				slog.Error("failed to deactivate incomplete application", "application_id", reg.applicationID, "err", err)
			}
		}
	}
}

func (s *service) discardSubscriptions(ctx context.Context, serviceIDs []string) {
	for _, serviceID := range serviceIDs {
		if err := s.subs.Delete(ctx, serviceID); err != nil {
			slog.Error("failed to remove incomplete subscription", "service_id", serviceID, "err", err)
		}
	}
}

func (s *service) Deactivate(ctx context.Context, applicationCode string) error {
	if _, err := s.apps.Get(ctx, applicationCode); err != nil {
		return err
	}
	if err := s.apps.SetStatus(ctx, applicationCode, domain.StatusInactive, s.now()); err != nil {
		return fmt.Errorf("deactivate application: %w", err)
	}
	slog.Info("application deactivated", "application_id", applicationCode)
	return nil
}

func (s *service) AddServices(ctx context.Context, applicationCode string, items []domain.ServiceInput) ([]domain.Subscription, error) {
	if err := s.requireActiveApplication(ctx, applicationCode); err != nil {
		return nil, err
	}
	if err := uniqueTypes(items); err != nil {
		return nil, err
	}
	for _, in := range items {
		existing, err := s.subs.ListByType(ctx, applicationCode, in.ServiceType)
		if err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}
		if active(existing) != nil {
			return nil, domain.ErrDuplicateService
		}
	}

	now := s.now()
	out := make([]domain.Subscription, 0, len(items))
	for _, in := range items {
		sub := newSubscription(applicationCode, in, now)
		if err := s.subs.Put(ctx, sub); err != nil {
			written := make([]string, 0, len(out))
			for _, o := range out {
				written = append(written, o.ServiceID)
			}
			s.discardSubscriptions(context.WithoutCancel(ctx), written)
			return nil, fmt.Errorf("persist subscription %s: %w", in.ServiceType, err)
		}
		out = append(out, *sub)
	}
	return out, nil
}

func (s *service) UpdateService(ctx context.Context, applicationCode string, serviceType domain.ServiceType, in domain.ServiceInput) (*domain.Subscription, error) {
	if err := s.requireActiveApplication(ctx, applicationCode); err != nil {
		return nil, err
	}
	sub, err := s.activeSubscription(ctx, applicationCode, serviceType)
	if err != nil {
		return nil, err
	}
	var route *string
	if in.LinkRoute != "" {
		route = &in.LinkRoute
		sub.LinkRoute = route
	}
	now := s.now()
	if err := s.subs.ReplaceConfig(ctx, sub.ServiceID, in.Policy, in.Success, in.Error, route, now); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	sub.Policy = in.Policy
	sub.Success = in.Success
	sub.Error = in.Error
	sub.UpdatedAt = now
	return sub, nil
}

func (s *service) DeleteService(ctx context.Context, applicationCode string, serviceType domain.ServiceType) error {
	if err := s.requireActiveApplication(ctx, applicationCode); err != nil {
		return err
	}
	sub, err := s.activeSubscription(ctx, applicationCode, serviceType)
	if err != nil {
		return err
	}
	if err := s.subs.SetStatus(ctx, sub.ServiceID, domain.StatusInactive, s.now()); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// activeSubscription distinguishes "never subscribed" from "subscribed but deleted".
func (s *service) activeSubscription(ctx context.Context, applicationCode string, serviceType domain.ServiceType) (*domain.Subscription, error) {
	subs, err := s.subs.ListByType(ctx, applicationCode, serviceType)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil, domain.ErrServiceNotFound
	}
	sub := active(subs)
	if sub == nil {
		return nil, domain.ErrServiceInactive
	}
	return sub, nil
}

func (s *service) requireActiveApplication(ctx context.Context, applicationCode string) error {
	app, err := s.apps.Get(ctx, applicationCode)
	if err != nil {
		return err
	}
	if !app.IsActive() {
		return domain.ErrApplicationDisabled
	}
	return nil
}

func newSubscription(applicationID string, in domain.ServiceInput, now time.Time) *domain.Subscription {
	sub := &domain.Subscription{
		ServiceID:     id.NewAt(now),
		ApplicationID: applicationID,
		ServiceType:   in.ServiceType,
		Success:       in.Success,
		Error:         in.Error,
		Policy:        in.Policy,
		Status:        domain.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.LinkRoute != "" {
		route := in.LinkRoute
		sub.LinkRoute = &route
	}
	return sub
}

func active(subs []domain.Subscription) *domain.Subscription {
	for i := range subs {
		if subs[i].IsActive() {
			return &subs[i]
		}
	}
	return nil
}

func uniqueTypes(items []domain.ServiceInput) error {
	seen := make(map[domain.ServiceType]struct{}, len(items))
	for _, in := range items {
		if _, dup := seen[in.ServiceType]; dup {
			return domain.ErrDuplicateService
		}
		seen[in.ServiceType] = struct{}{}
	}
	return nil
}
