package onboarding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-verify-api/internal/domain"
	"github.com/go-verify-api/internal/infrastructure/cipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockApplicationStore struct{ mock.Mock }

func (m *mockApplicationStore) Put(ctx context.Context, a *domain.Application) error {
	return m.Called(ctx, a).Error(0)
}
func (m *mockApplicationStore) Get(ctx context.Context, id string) (*domain.Application, error) {
	args := m.Called(ctx, id)
	if a, _ := args.Get(0).(*domain.Application); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockApplicationStore) GetByName(ctx context.Context, name string) (*domain.Application, error) {
	args := m.Called(ctx, name)
	if a, _ := args.Get(0).(*domain.Application); a != nil {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockApplicationStore) SetStatus(ctx context.Context, id string, status domain.ActivationStatus, at time.Time) error {
	return m.Called(ctx, id, status, at).Error(0)
}
func (m *mockApplicationStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockSubscriptionStore struct{ mock.Mock }

func (m *mockSubscriptionStore) Put(ctx context.Context, s *domain.Subscription) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockSubscriptionStore) ListByType(ctx context.Context, appID string, t domain.ServiceType) ([]domain.Subscription, error) {
	args := m.Called(ctx, appID, t)
	subs, _ := args.Get(0).([]domain.Subscription)
	return subs, args.Error(1)
}
func (m *mockSubscriptionStore) ReplaceConfig(ctx context.Context, id string, p domain.VerificationPolicy, ok, fail domain.Callback, route *string, at time.Time) error {
	return m.Called(ctx, id, p, ok, fail, route, at).Error(0)
}
func (m *mockSubscriptionStore) SetStatus(ctx context.Context, id string, status domain.ActivationStatus, at time.Time) error {
	return m.Called(ctx, id, status, at).Error(0)
}
func (m *mockSubscriptionStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- builder ---

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, apps *mockApplicationStore, subs *mockSubscriptionStore) (Service, *cipher.Cipher) {
	t.Helper()
	c, err := cipher.New("test-secret")
	require.NoError(t, err)
	return NewService(ServiceDeps{
		ApplicationRepo:  apps,
		SubscriptionRepo: subs,
		Cipher:           c,
		Now:              func() time.Time { return fixedNow },
	}), c
}

func serviceInput(t domain.ServiceType) domain.ServiceInput {
	cb := domain.Callback{URL: "https://client.example.com/hook", Method: "POST", Payload: map[string]any{"k": "v"}}
	return domain.ServiceInput{ServiceType: t, Success: cb, Error: cb}
}

func activeApp() *domain.Application {
	return &domain.Application{ApplicationID: "app-1", Status: domain.StatusActive}
}

// --- Register ---

func TestRegister_IssuesCredentialsAndSubscriptions(t *testing.T) {
	apps := &mockApplicationStore{}
	subs := &mockSubscriptionStore{}
	apps.On("GetByName", mock.Anything, "Acme").Return(nil, domain.ErrApplicationNotFound)
	apps.On("Put", mock.Anything, mock.AnythingOfType("*domain.Application")).Return(nil)
	subs.On("Put", mock.Anything, mock.AnythingOfType("*domain.Subscription")).Return(nil)
	svc, c := newService(t, apps, subs)

	out, err := svc.Register(context.Background(), []RegisterInput{{
		Name:     "Acme",
		Services: []domain.ServiceInput{serviceInput(domain.ServiceAuthMobileOTP), serviceInput(domain.ServiceVerifyEmailOTP)},
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	creds := out[0]
	assert.Equal(t, "Acme", creds.ApplicationName)
	assert.Equal(t, []string{"authMO", "verifyEO"}, creds.Services)
	assert.Equal(t, fixedNow.Add(domain.KeyLifetime).Unix(), creds.KeyExpiry)

	stored := apps.Calls[1].Arguments.Get(1).(*domain.Application)
	assert.Equal(t, creds.ApplicationCode, stored.ApplicationID)
	assert.NotEqual(t, creds.Key, stored.APIKey)
	assert.Equal(t, c.LookupHash(creds.Key), stored.KeyLookup)
	secret, err := c.Decrypt(stored.APISecret)
	require.NoError(t, err)
	assert.Equal(t, creds.Secret, secret)
	assert.True(t, stored.IsActive())

	subs.AssertNumberOfCalls(t, "Put", 2)
	sub := subs.Calls[0].Arguments.Get(1).(*domain.Subscription)
	assert.Equal(t, stored.ApplicationID, sub.ApplicationID)
	assert.Equal(t, "v", sub.Success.Payload["k"])
}

func TestRegister_DuplicateName(t *testing.T) {
	apps := &mockApplicationStore{}
	apps.On("GetByName", mock.Anything, "Acme").Return(&domain.Application{}, nil)
	svc, _ := newService(t, apps, &mockSubscriptionStore{})

	_, err := svc.Register(context.Background(), []RegisterInput{{Name: "Acme"}})
	assert.ErrorIs(t, err, domain.ErrDuplicateApplication)
	apps.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_DuplicateServiceInInput(t *testing.T) {
	svc, _ := newService(t, &mockApplicationStore{}, &mockSubscriptionStore{})
	_, err := svc.Register(context.Background(), []RegisterInput{{
		Name:     "Acme",
		Services: []domain.ServiceInput{serviceInput(domain.ServiceAuthMobileOTP), serviceInput(domain.ServiceAuthMobileOTP)},
	}})
	assert.ErrorIs(t, err, domain.ErrDuplicateService)
}

func TestRegister_DuplicateNameInBatch(t *testing.T) {
	apps := &mockApplicationStore{}
	apps.On("GetByName", mock.Anything, "Acme").Return(nil, domain.ErrApplicationNotFound)
	svc, _ := newService(t, apps, &mockSubscriptionStore{})

	_, err := svc.Register(context.Background(), []RegisterInput{{Name: "Acme"}, {Name: "Acme"}})
	assert.ErrorIs(t, err, domain.ErrDuplicateApplication)
	apps.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_ConflictLaterInBatchWritesNothing(t *testing.T) {
	apps := &mockApplicationStore{}
	apps.On("GetByName", mock.Anything, "Acme").Return(nil, domain.ErrApplicationNotFound)
	apps.On("GetByName", mock.Anything, "Taken").Return(&domain.Application{}, nil)
	svc, _ := newService(t, apps, &mockSubscriptionStore{})

	_, err := svc.Register(context.Background(), []RegisterInput{{Name: "Acme"}, {Name: "Taken"}})
	assert.ErrorIs(t, err, domain.ErrDuplicateApplication)
	apps.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestRegister_SubscriptionFailureRemovesApplication(t *testing.T) {
	apps := &mockApplicationStore{}
	subs := &mockSubscriptionStore{}
	apps.On("GetByName", mock.Anything, "Acme").Return(nil, domain.ErrApplicationNotFound)
	apps.On("Put", mock.Anything, mock.Anything).Return(nil)
	apps.On("Delete", mock.Anything, mock.Anything).Return(nil)
	subs.On("Put", mock.Anything, mock.MatchedBy(func(s *domain.Subscription) bool {
		return s.ServiceType == domain.ServiceAuthMobileOTP
	})).Return(nil)
	subs.On("Put", mock.Anything, mock.Anything).Return(errors.New("throttled"))
	subs.On("Delete", mock.Anything, mock.Anything).Return(nil)
	svc, _ := newService(t, apps, subs)

	out, err := svc.Register(context.Background(), []RegisterInput{{
		Name:     "Acme",
		Services: []domain.ServiceInput{serviceInput(domain.ServiceAuthMobileOTP), serviceInput(domain.ServiceVerifyEmailOTP)},
	}})
	require.Error(t, err)
	assert.Nil(t, out)

	app := apps.Calls[1].Arguments.Get(1).(*domain.Application)
	firstSub := subs.Calls[0].Arguments.Get(1).(*domain.Subscription)
	apps.AssertCalled(t, "Delete", mock.Anything, app.ApplicationID)
	subs.AssertCalled(t, "Delete", mock.Anything, firstSub.ServiceID)
	subs.AssertNumberOfCalls(t, "Delete", 1)
	apps.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegister_LaterFailureRemovesEarlierApplications(t *testing.T) {
	apps := &mockApplicationStore{}
	apps.On("GetByName", mock.Anything, mock.Anything).Return(nil, domain.ErrApplicationNotFound)
	apps.On("Put", mock.Anything, mock.MatchedBy(func(a *domain.Application) bool { return a.Name == "Acme" })).Return(nil)
	apps.On("Put", mock.Anything, mock.Anything).Return(errors.New("throttled"))
	apps.On("Delete", mock.Anything, mock.Anything).Return(nil)
	svc, _ := newService(t, apps, &mockSubscriptionStore{})

	_, err := svc.Register(context.Background(), []RegisterInput{{Name: "Acme"}, {Name: "Beta"}})
	require.Error(t, err)

	acme := apps.Calls[2].Arguments.Get(1).(*domain.Application)
	require.Equal(t, "Acme", acme.Name)
	apps.AssertCalled(t, "Delete", mock.Anything, acme.ApplicationID)
	apps.AssertNumberOfCalls(t, "Delete", 1)
}

func TestRegister_UndeletableApplicationIsDeactivated(t *testing.T) {
	apps := &mockApplicationStore{}
	subs := &mockSubscriptionStore{}
	apps.On("GetByName", mock.Anything, "Acme").Return(nil, domain.ErrApplicationNotFound)
	apps.On("Put", mock.Anything, mock.Anything).Return(nil)
	apps.On("Delete", mock.Anything, mock.Anything).Return(errors.New("throttled"))
	apps.On("SetStatus", mock.Anything, mock.Anything, domain.StatusInactive, fixedNow).Return(nil)
	subs.On("Put", mock.Anything, mock.Anything).Return(errors.New("throttled"))
	svc, _ := newService(t, apps, subs)

	_, err := svc.Register(context.Background(), []RegisterInput{{
		Name:     "Acme",
		Services: []domain.ServiceInput{serviceInput(domain.ServiceAuthMobileOTP)},
	}})
	require.Error(t, err)
	apps.AssertNumberOfCalls(t, "SetStatus", 1)
}

// --- AddServices ---

func TestAddServices_ChecksWholeBatchBeforeWriting(t *testing.T) {
	apps := &mockApplicationStore{}
	subs := &mockSubscriptionStore{}
	apps.On("Get", mock.Anything, "app-1").Return(activeApp(), nil)
	subs.On("ListByType", mock.Anything, "app-1", domain.ServiceAuthMobileOTP).Return([]domain.Subscription{}, nil)
	subs.On("ListByType", mock.Anything, "app-1", domain.ServiceAuthEmailOTP).
		Return([]domain.Subscription{{ServiceID: "s1", Status: domain.StatusActive}}, nil)
	svc, _ := newService(t, apps, subs)

	_, err := svc.AddServices(context.Background(), "app-1", []domain.ServiceInput{
		serviceInput(domain.ServiceAuthMobileOTP), serviceInput(domain.ServiceAuthEmailOTP),
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateService)
	subs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestAddServices_WriteFailureRemovesEarlierItems(t *testing.T) {
	apps := &mockApplicationStore{}
	subs := &mockSubscriptionStore{}
	apps.On("Get", mock.Anything, "app-1").Return(activeApp(), nil)
	subs.On("ListByType", mock.Anything, "app-1", mock.Anything).Return([]domain.Subscription{}, nil)
	subs.On("Put", mock.Anything, mock.MatchedBy(func(s *domain.Subscription) bool {
		return s.ServiceType == domain.ServiceAuthMobileOTP
	})).Return(nil)
	subs.On("Put", mock.Anything, mock.Anything).Return(errors.New("throttled"))
	subs.On("Delete", mock.Anything, mock.Anything).Return(nil)
	svc, _ := newService(t, apps, subs)

	_, err := svc.AddServices(context.Background(), "app-1", []domain.ServiceInput{
		serviceInput(domain.ServiceAuthMobileOTP), serviceInput(domain.ServiceAuthEmailOTP),
	})
	require.Error(t, err)
	subs.AssertNumberOfCalls(t, "Delete", 1)
}

func TestAddServices_DuplicateActive(t *testing.T) {
	apps := &mockApplicationStore{}
	subs := &mockSubscriptionStore{}
	apps.On("Get", mock.Anything, "app-1").Return(activeApp(), nil)
	subs.On("ListByType", mock.Anything, "app-1", domain.ServiceAuthEmailOTP).
		Return([]domain.Subscription{{ServiceID: "s1", Status: domain.StatusActive}}, nil)
	svc, _ := newService(t, apps, subs)

	_, err := svc.AddServices(context.Background(), "app-1", []domain.ServiceInput{serviceInput(domain.ServiceAuthEmailOTP)})
	assert.ErrorIs(t, err, domain.ErrDuplicateService)
}

func TestAddServices_ReSubscribeAfterDelete(t *testing.T) {
	apps := &mockApplicationStore{}
	subs := &mockSubscriptionStore{}
	apps.On("Get", mock.Anything, "app-1").Return(activeApp(), nil)
	subs.On("ListByType", mock.Anything, "app-1", domain.ServiceAuthEmailOTP).
		Return([]domain.Subscription{{ServiceID: "s1", Status: domain.StatusInactive}}, nil)
	subs.On("Put", mock.Anything, mock.Anything).Return(nil)
	svc, _ := newService(t, apps, subs)

	out, err := svc.AddServices(context.Background(), "app-1", []domain.ServiceInput{serviceInput(domain.ServiceAuthEmailOTP)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "app-1", out[0].ApplicationID)
	assert.True(t, out[0].IsActive())
}

func TestAddServices_InactiveApplication(t *testing.T) {
	apps := &mockApplicationStore{}
	apps.On("Get", mock.Anything, "app-1").Return(&domain.Application{ApplicationID: "app-1", Status: domain.StatusInactive}, nil)
	svc, _ := newService(t, apps, &mockSubscriptionStore{})

	_, err := svc.AddServices(context.Background(), "app-1", []domain.ServiceInput{serviceInput(domain.ServiceAuthEmailOTP)})
	assert.ErrorIs(t, err, domain.ErrApplicationDisabled)
}

// --- UpdateService / DeleteService ---

func TestUpdateService_ReplacesConfig(t *testing.T) {
	apps := &mockApplicationStore{}
	subs := &mockSubscriptionStore{}
	apps.On("Get", mock.Anything, "app-1").Return(activeApp(), nil)
	subs.On("ListByType", mock.Anything, "app-1", domain.ServiceAuthMobileOTP).
		Return([]domain.Subscription{{ServiceID: "s1", Status: domain.StatusActive, Policy: domain.VerificationPolicy{TokenLength: 6}}}, nil)
	in := serviceInput(domain.ServiceAuthMobileOTP)
	in.Policy = domain.VerificationPolicy{TokenLength: 8}
	subs.On("ReplaceConfig", mock.Anything, "s1", in.Policy, in.Success, in.Error, (*string)(nil), fixedNow).Return(nil)
	svc, _ := newService(t, apps, subs)

	out, err := svc.UpdateService(context.Background(), "app-1", domain.ServiceAuthMobileOTP, in)
	require.NoError(t, err)
	assert.Equal(t, 8, out.Policy.TokenLength)
	assert.Equal(t, fixedNow, out.UpdatedAt)
	subs.AssertExpectations(t)
}

func TestUpdateService_MissingAndInactive(t *testing.T) {
	apps := &mockApplicationStore{}
	subs := &mockSubscriptionStore{}
	apps.On("Get", mock.Anything, "app-1").Return(activeApp(), nil)
	subs.On("ListByType", mock.Anything, "app-1", domain.ServiceAuthMobileOTP).Return([]domain.Subscription{}, nil)
	subs.On("ListByType", mock.Anything, "app-1", domain.ServiceAuthEmailOTP).
		Return([]domain.Subscription{{ServiceID: "s2", Status: domain.StatusInactive}}, nil)
	svc, _ := newService(t, apps, subs)

	_, err := svc.UpdateService(context.Background(), "app-1", domain.ServiceAuthMobileOTP, serviceInput(domain.ServiceAuthMobileOTP))
	assert.ErrorIs(t, err, domain.ErrServiceNotFound)

	_, err = svc.UpdateService(context.Background(), "app-1", domain.ServiceAuthEmailOTP, serviceInput(domain.ServiceAuthEmailOTP))
	assert.ErrorIs(t, err, domain.ErrServiceInactive)
}

func TestDeleteService_SoftDeletes(t *testing.T) {
	apps := &mockApplicationStore{}
	subs := &mockSubscriptionStore{}
	apps.On("Get", mock.Anything, "app-1").Return(activeApp(), nil)
	subs.On("ListByType", mock.Anything, "app-1", domain.ServiceVerifyMobileOTP).
		Return([]domain.Subscription{{ServiceID: "s3", Status: domain.StatusActive}}, nil)
	subs.On("SetStatus", mock.Anything, "s3", domain.StatusInactive, fixedNow).Return(nil)
	svc, _ := newService(t, apps, subs)

	require.NoError(t, svc.DeleteService(context.Background(), "app-1", domain.ServiceVerifyMobileOTP))
	subs.AssertExpectations(t)
}

// --- Deactivate ---

func TestDeactivate(t *testing.T) {
	apps := &mockApplicationStore{}
	apps.On("Get", mock.Anything, "app-1").Return(activeApp(), nil)
	apps.On("SetStatus", mock.Anything, "app-1", domain.StatusInactive, fixedNow).Return(nil)
	svc, _ := newService(t, apps, &mockSubscriptionStore{})

	require.NoError(t, svc.Deactivate(context.Background(), "app-1"))
	apps.AssertExpectations(t)
}

func TestDeactivate_NotFound(t *testing.T) {
	apps := &mockApplicationStore{}
	apps.On("Get", mock.Anything, "nope").Return(nil, domain.ErrApplicationNotFound)
	svc, _ := newService(t, apps, &mockSubscriptionStore{})

	assert.ErrorIs(t, svc.Deactivate(context.Background(), "nope"), domain.ErrNotFound)
}
