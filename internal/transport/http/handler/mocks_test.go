package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-verify-api/internal/application/onboarding"
	"github.com/go-verify-api/internal/application/verification"
	"github.com/go-verify-api/internal/domain"
	"github.com/go-verify-api/internal/transport/http/middleware"
	"github.com/stretchr/testify/mock"
)

type mockOnboarding struct{ mock.Mock }

func (m *mockOnboarding) Register(ctx context.Context, items []onboarding.RegisterInput) ([]domain.Credentials, error) {
	args := m.Called(ctx, items)
	creds, _ := args.Get(0).([]domain.Credentials)
	return creds, args.Error(1)
}

func (m *mockOnboarding) Deactivate(ctx context.Context, applicationCode string) error {
	return m.Called(ctx, applicationCode).Error(0)
}

func (m *mockOnboarding) AddServices(ctx context.Context, applicationCode string, items []domain.ServiceInput) ([]domain.Subscription, error) {
	args := m.Called(ctx, applicationCode, items)
	subs, _ := args.Get(0).([]domain.Subscription)
	return subs, args.Error(1)
}

func (m *mockOnboarding) UpdateService(ctx context.Context, applicationCode string, serviceType domain.ServiceType, in domain.ServiceInput) (*domain.Subscription, error) {
	args := m.Called(ctx, applicationCode, serviceType, in)
	if s, _ := args.Get(0).(*domain.Subscription); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOnboarding) DeleteService(ctx context.Context, applicationCode string, serviceType domain.ServiceType) error {
	return m.Called(ctx, applicationCode, serviceType).Error(0)
}

type mockRotation struct{ mock.Mock }

func (m *mockRotation) Rotate(ctx context.Context, applicationCode, callerApplicationID string) (*domain.Credentials, error) {
	args := m.Called(ctx, applicationCode, callerApplicationID)
	if c, _ := args.Get(0).(*domain.Credentials); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLifecycle struct{ mock.Mock }

func (m *mockLifecycle) Generate(ctx context.Context, applicationID string, items []domain.GenerateInput) (*verification.Result[domain.IssuedToken], error) {
	args := m.Called(ctx, applicationID, items)
	if r, _ := args.Get(0).(*verification.Result[domain.IssuedToken]); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLifecycle) Resend(ctx context.Context, applicationID string, items []domain.ResendInput) (*verification.Result[domain.IssuedToken], error) {
	args := m.Called(ctx, applicationID, items)
	if r, _ := args.Get(0).(*verification.Result[domain.IssuedToken]); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLifecycle) Verify(ctx context.Context, applicationID string, items []domain.VerifyInput) (*verification.Result[domain.VerifiedRequest], error) {
	args := m.Called(ctx, applicationID, items)
	if r, _ := args.Get(0).(*verification.Result[domain.VerifiedRequest]); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

// withParams injects chi URL params into the request context.
func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// asApplication marks the request as authenticated by the given application.
func asApplication(r *http.Request, applicationID string) *http.Request {
	return r.WithContext(middleware.WithApplication(r.Context(), &domain.Application{ApplicationID: applicationID, Status: domain.StatusActive}))
}
