package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-verify-api/internal/domain"
	"github.com/go-verify-api/internal/pkg/id"
)

type requestStore interface {
	Put(ctx context.Context, v *domain.VerificationRequest) error
	Get(ctx context.Context, requestID string) (*domain.VerificationRequest, error)
	ListActiveByIdentity(ctx context.Context, identityKey string) ([]domain.VerificationRequest, error)
	Save(ctx context.Context, v *domain.VerificationRequest) error
	Delete(ctx context.Context, requestID string) error
}

type subscriptionStore interface {
	Get(ctx context.Context, serviceID string) (*domain.Subscription, error)
	FindActive(ctx context.Context, applicationID string, serviceType domain.ServiceType) (*domain.Subscription, error)
}

type applicationFinder interface {
	FindByID(ctx context.Context, applicationID string) (*domain.Application, error)
}

// identityLocker holds the one live request per identity key.
type identityLocker interface {
	Acquire(ctx context.Context, identityKey, requestID string, expiresAt, now time.Time) error
	Extend(ctx context.Context, identityKey, requestID string, expiresAt time.Time) error
	Release(ctx context.Context, identityKey, requestID string) error
}

type tokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Result is a batch of per-item results plus any warnings raised on the way.
type Result[T any] struct {
	Items    []T
	Warnings []domain.FieldMessage
}

// Service is the verification request lifecycle engine. Batches are processed
// in order and stop at the first failing item. Generate and Resend check every
// item before writing and undo their writes when a later item fails, so a
// caller never loses an issued token. Verify keeps what earlier items did:
// counted attempts stay counted.
type Service interface {
	Generate(ctx context.Context, applicationID string, items []domain.GenerateInput) (*Result[domain.IssuedToken], error)
	Resend(ctx context.Context, applicationID string, items []domain.ResendInput) (*Result[domain.IssuedToken], error)
	Verify(ctx context.Context, applicationID string, items []domain.VerifyInput) (*Result[domain.VerifiedRequest], error)
}

// ServiceDeps holds the dependencies for the lifecycle engine.
type ServiceDeps struct {
	RequestRepo      requestStore
	SubscriptionRepo subscriptionStore
	Applications     applicationFinder
	Locks            identityLocker
	Cipher           tokenCipher
	Now              func() time.Time
}

type service struct {
	requests requestStore
	subs     subscriptionStore
	apps     applicationFinder
	locks    identityLocker
	cipher   tokenCipher
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		requests: deps.RequestRepo,
		subs:     deps.SubscriptionRepo,
		apps:     deps.Applications,
		locks:    deps.Locks,
		cipher:   deps.Cipher,
		now:      deps.Now,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *service) Generate(ctx context.Context, applicationID string, items []domain.GenerateInput) (*Result[domain.IssuedToken], error) {
	if err := s.requireActiveApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	subs, err := s.resolveSubscriptions(ctx, applicationID, items)
	if err != nil {
		return nil, err
	}
	res := &Result[domain.IssuedToken]{}
	created := make([]*domain.VerificationRequest, 0, len(items))
	for i, in := range items {
		out, req, err := s.generateOne(ctx, applicationID, subs[i], in, res)
		if err != nil {
			s.withdraw(ctx, created)
			return nil, err
		}
		created = append(created, req)
		res.Items = append(res.Items, *out)
	}
	return res, nil
}

// resolveSubscriptions finds the subscription of every item and rejects an
// identity listed twice, before anything is written.
func (s *service) resolveSubscriptions(ctx context.Context, applicationID string, items []domain.GenerateInput) ([]*domain.Subscription, error) {
	byType := make(map[domain.ServiceType]*domain.Subscription)
	seen := make(map[string]struct{}, len(items))
	out := make([]*domain.Subscription, 0, len(items))
	for _, in := range items {
		sub, ok := byType[in.ServiceType]
		if !ok {
			var err error
			if sub, err = s.subs.FindActive(ctx, applicationID, in.ServiceType); err != nil {
				return nil, err
			}
			byType[in.ServiceType] = sub
		}
		key := domain.IdentityKey(applicationID, sub.ServiceID, in.UserIdentity)
		if _, dup := seen[key]; dup {
			return nil, domain.ErrDuplicateActiveRequest
		}
		seen[key] = struct{}{}
		out = append(out, sub)
	}
	return out, nil
}

func (s *service) generateOne(ctx context.Context, applicationID string, sub *domain.Subscription, in domain.GenerateInput, res *Result[domain.IssuedToken]) (*domain.IssuedToken, *domain.VerificationRequest, error) {
	now := s.now()
	policy := sub.Policy.WithDefaults()
	plain, err := generateToken(policy)
	if err != nil {
		return nil, nil, err
	}
	sealed, err := s.cipher.Encrypt(plain)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt token: %w", err)
	}

	req := &domain.VerificationRequest{
		RequestID:       id.NewAt(now),
		ApplicationID:   applicationID,
		ServiceID:       sub.ServiceID,
		ServiceType:     sub.ServiceType,
		UserIdentity:    in.UserIdentity,
		IdentityKey:     domain.IdentityKey(applicationID, sub.ServiceID, in.UserIdentity),
		Token:           sealed,
		ExpiryTime:      now.Add(policy.Expiry()),
		MaxAttemptCount: policy.MaxAttemptCount,
		MaxResendCount:  policy.MaxResendCount,
		Status:          domain.RequestActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	req.Retain(now)

	// The lock is the duplicate check: it is held while a request is pending.
	if err := s.locks.Acquire(ctx, req.IdentityKey, req.RequestID, req.ExpiryTime, now); err != nil {
		return nil, nil, err
	}
	if err := s.retireExpired(ctx, req.IdentityKey, now, res); err != nil {
		s.releaseLock(ctx, req)
		return nil, nil, err
	}
	if err := s.requests.Put(ctx, req); err != nil {
		s.releaseLock(ctx, req)
		return nil, nil, fmt.Errorf("persist verification request: %w", err)
	}

	return issued(req, sub, plain), req, nil
}

// retireExpired deactivates expired predecessors of an identity. Index rows
// may be stale, so each candidate is re-read before it is changed.
func (s *service) retireExpired(ctx context.Context, identityKey string, now time.Time, res *Result[domain.IssuedToken]) error {
	candidates, err := s.requests.ListActiveByIdentity(ctx, identityKey)
	if err != nil {
		return fmt.Errorf("list active requests: %w", err)
	}
	for _, c := range candidates {
		if c.State(now) != domain.StateExpired {
			continue
		}
		prev, err := s.requests.Get(ctx, c.RequestID)
		if err != nil {
			return fmt.Errorf("load request %s: %w", c.RequestID, err)
		}
		if prev.State(now) != domain.StateExpired {
			continue
		}
		prev.Deactivate(now)
		if err := s.requests.Save(ctx, prev); err != nil {
			return fmt.Errorf("deactivate expired request %s: %w", prev.RequestID, err)
		}
		res.Warnings = append(res.Warnings, domain.FieldMessage{
			Type:  domain.MessageWarning,
			ID:    prev.RequestID,
			Field: "requestId",
			Text:  "expired verification request was deactivated",
		})
	}
	return nil
}

// withdraw removes requests whose tokens never reached the caller and frees
// their identities. A row that cannot be removed is deactivated instead.
func (s *service) withdraw(ctx context.Context, reqs []*domain.VerificationRequest) {
	ctx = context.WithoutCancel(ctx)
	for _, req := range reqs {
		if err := s.requests.Delete(ctx, req.RequestID); err != nil {
			slog.Error("failed to withdraw verification request", "request_id", req.RequestID, "err", err)
			req.Deactivate(s.now())
			if err := s.requests.Save(ctx, req); err != nil {
				slog.Error("failed to deactivate withdrawn request", "request_id", req.RequestID, "err", err)
			}
		}
		s.releaseLock(ctx, req)
	}
}

func (s *service) releaseLock(ctx context.Context, req *domain.VerificationRequest) {
	if err := s.locks.Release(ctx, req.IdentityKey, req.RequestID); err != nil {
		slog.Warn("failed to release identity lock", "request_id", req.RequestID, "err", err)
	}
}

// pendingResend is a resend that passed every check.
type pendingResend struct {
	req *domain.VerificationRequest
	sub *domain.Subscription
}

func (s *service) Resend(ctx context.Context, applicationID string, items []domain.ResendInput) (*Result[domain.IssuedToken], error) {
	if err := s.requireActiveApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	pending := make([]pendingResend, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, in := range items {
		if _, dup := seen[in.RequestID]; dup {
			return nil, domain.ErrRepeatedBatchItem
		}
		seen[in.RequestID] = struct{}{}
		p, err := s.checkResend(ctx, applicationID, in)
		if err != nil {
			return nil, err
		}
		pending = append(pending, *p)
	}

	res := &Result[domain.IssuedToken]{}
	done := make([]domain.VerificationRequest, 0, len(pending))
	for _, p := range pending {
		before := *p.req
		out, err := s.resendOne(ctx, p)
		if err != nil {
			s.restore(ctx, done)
			return nil, err
		}
		done = append(done, before)
		res.Items = append(res.Items, *out)
	}
	return res, nil
}

func (s *service) checkResend(ctx context.Context, applicationID string, in domain.ResendInput) (*pendingResend, error) {
	req, err := s.ownedRequest(ctx, applicationID, in.RequestID)
	if err != nil {
		return nil, err
	}
	switch req.State(s.now()) {
	case domain.StateVerified:
		return nil, domain.ErrAlreadyVerified
	case domain.StateExpired, domain.StateDeactivated:
		return nil, domain.ErrRequestExpired
	}
	if req.ResendCount >= req.MaxResendCount {
		return nil, domain.ErrMaxResendExceeded
	}

	// Current configuration, not the copy taken at generation time.
	sub, err := s.subs.Get(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !sub.IsActive() {
		return nil, domain.ErrServiceNotFound
	}
	return &pendingResend{req: req, sub: sub}, nil
}

func (s *service) resendOne(ctx context.Context, p pendingResend) (*domain.IssuedToken, error) {
	req := p.req
	now := s.now()
	policy := p.sub.Policy.WithDefaults()

	previous, err := s.cipher.Decrypt(req.Token)
	if err != nil {
		// The old token is replaced either way; only log the fault.
		slog.Error("stored token failed to decrypt on resend", "request_id", req.RequestID, "err", err)
		previous = ""
	}
	plain, err := generateDistinctToken(policy, previous)
	if err != nil {
		return nil, err
	}
	sealed, err := s.cipher.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("encrypt token: %w", err)
	}

	req.Token = sealed
	req.ExpiryTime = now.Add(policy.Expiry())
	req.ResendCount++
	req.UpdatedAt = now
	if err := s.requests.Save(ctx, req); err != nil {
		return nil, fmt.Errorf("persist resend: %w", err)
	}
	if err := s.locks.Extend(ctx, req.IdentityKey, req.RequestID, req.ExpiryTime); err != nil {
		slog.Warn("failed to extend identity lock", "request_id", req.RequestID, "err", err)
	}

	return issued(req, p.sub, plain), nil
}

// restore puts resent requests back to their earlier token and expiry.
func (s *service) restore(ctx context.Context, before []domain.VerificationRequest) {
	ctx = context.WithoutCancel(ctx)
	for i := range before {
		req := &before[i]
		if err := s.requests.Save(ctx, req); err != nil {
			slog.Error("failed to restore resent request", "request_id", req.RequestID, "err", err)
			continue
		}
		if err := s.locks.Extend(ctx, req.IdentityKey, req.RequestID, req.ExpiryTime); err != nil {
			slog.Warn("failed to restore identity lock", "request_id", req.RequestID, "err", err)
		}
	}
}

func (s *service) Verify(ctx context.Context, applicationID string, items []domain.VerifyInput) (*Result[domain.VerifiedRequest], error) {
	if err := s.requireActiveApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	res := &Result[domain.VerifiedRequest]{}
	for _, in := range items {
		out, err := s.verifyOne(ctx, applicationID, in)
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, *out)
	}
	return res, nil
}

func (s *service) verifyOne(ctx context.Context, applicationID string, in domain.VerifyInput) (*domain.VerifiedRequest, error) {
	req, err := s.ownedRequest(ctx, applicationID, in.RequestID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch req.State(now) {
	case domain.StateVerified:
		return nil, domain.ErrAlreadyVerified
	case domain.StateExpired, domain.StateDeactivated:
		return nil, domain.ErrRequestExpired
	}
	if req.AttemptCount >= req.MaxAttemptCount {
		return nil, domain.ErrMaxAttemptsExceeded
	}

	stored, err := s.cipher.Decrypt(req.Token)
	if err != nil {
		slog.Error("stored token failed to decrypt", "request_id", req.RequestID, "err", err)
		return nil, domain.ErrTokenIntegrityFault
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(in.Token)) != 1 {
		req.AttemptCount++
		req.UpdatedAt = now
		if err := s.requests.Save(ctx, req); err != nil {
			return nil, fmt.Errorf("persist failed attempt: %w", err)
		}
		return nil, domain.ErrInvalidToken
	}

	req.MarkVerified(now)
	if err := s.requests.Save(ctx, req); err != nil {
		return nil, fmt.Errorf("persist verification: %w", err)
	}
	s.releaseLock(ctx, req)
	return &domain.VerifiedRequest{RequestID: req.RequestID, VerifiedAt: now}, nil
}

// ownedRequest loads a request and hides requests of other applications.
func (s *service) ownedRequest(ctx context.Context, applicationID, requestID string) (*domain.VerificationRequest, error) {
	req, err := s.requests.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRequestNotFound
		}
		return nil, fmt.Errorf("load request %s: %w", requestID, err)
	}
	if req.ApplicationID != applicationID {
		return nil, domain.ErrRequestNotFound
	}
	return req, nil
}

func (s *service) requireActiveApplication(ctx context.Context, applicationID string) error {
	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		return err
	}
	if !app.IsActive() {
		return domain.ErrApplicationDisabled
	}
	return nil
}

func issued(req *domain.VerificationRequest, sub *domain.Subscription, plain string) *domain.IssuedToken {
	out := &domain.IssuedToken{
		UserIdentity: req.UserIdentity,
		ServiceType:  req.ServiceType,
		RequestID:    req.RequestID,
		Token:        plain,
		ExpiresAt:    req.ExpiryTime,
	}
	if sub.ServiceType.RequiresLinkRoute() && sub.LinkRoute != nil {
		out.VerificationLink = verificationLink(*sub.LinkRoute, req.RequestID, plain)
	}
	return out
}

// verificationLink appends requestId and token to the subscription's link route.
func verificationLink(route, requestID, token string) string {
	u, err := url.Parse(route)
	if err != nil {
		return route
	}
	q := u.Query()
	q.Set("requestId", requestID)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
