package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-verify-api/internal/application/verification"
	"github.com/go-verify-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func batchBody[T any](t *testing.T, items ...T) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(BatchRequest[T]{Data: items})
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestGenerate_Unauthenticated(t *testing.T) {
	h := NewVerificationHandler(&mockLifecycle{})
	rr := httptest.NewRecorder()
	h.Generate(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGenerate_UnknownServiceType(t *testing.T) {
	h := NewVerificationHandler(&mockLifecycle{})
	body := batchBody(t, domain.GenerateInput{ServiceType: "fax", UserIdentity: "+15551234567"})
	rr := httptest.NewRecorder()
	h.Generate(rr, asApplication(httptest.NewRequest(http.MethodPost, "/", body), "A1"))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestGenerate_HappyPathWithWarning(t *testing.T) {
	svc := &mockLifecycle{}
	in := domain.GenerateInput{ServiceType: domain.ServiceAuthMobileOTP, UserIdentity: "+15551234567"}
	svc.On("Generate", mock.Anything, "A1", []domain.GenerateInput{in}).Return(&verification.Result[domain.IssuedToken]{
		Items: []domain.IssuedToken{{RequestID: "R1", Token: "123456", ServiceType: in.ServiceType, UserIdentity: in.UserIdentity, ExpiresAt: time.Now().Add(5 * time.Minute)}},
		Warnings: []domain.FieldMessage{
			{Type: domain.MessageWarning, ID: "R0", Field: "requestId", Text: "expired verification request was deactivated"},
		},
	}, nil)
	h := NewVerificationHandler(svc)
	rr := httptest.NewRecorder()
	h.Generate(rr, asApplication(httptest.NewRequest(http.MethodPost, "/", batchBody(t, in)), "A1"))

	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp domain.Response[domain.IssuedToken]
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "123456", resp.Data[0].Token)
	require.NotNil(t, resp.Messages)
	assert.Equal(t, "R0", resp.Messages.FieldMessages[0].ID)
	svc.AssertExpectations(t)
}

func TestGenerate_Duplicate(t *testing.T) {
	svc := &mockLifecycle{}
	svc.On("Generate", mock.Anything, "A1", mock.Anything).Return(nil, domain.ErrDuplicateActiveRequest)
	h := NewVerificationHandler(svc)
	in := domain.GenerateInput{ServiceType: domain.ServiceAuthMobileOTP, UserIdentity: "+15551234567"}
	rr := httptest.NewRecorder()
	h.Generate(rr, asApplication(httptest.NewRequest(http.MethodPost, "/", batchBody(t, in)), "A1"))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestResend_MaxExceeded(t *testing.T) {
	svc := &mockLifecycle{}
	svc.On("Resend", mock.Anything, "A1", []domain.ResendInput{{RequestID: "R1"}}).Return(nil, domain.ErrMaxResendExceeded)
	h := NewVerificationHandler(svc)
	rr := httptest.NewRecorder()
	h.Resend(rr, asApplication(httptest.NewRequest(http.MethodPost, "/", batchBody(t, domain.ResendInput{RequestID: "R1"})), "A1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertExpectations(t)
}

func TestVerify_MissingToken(t *testing.T) {
	h := NewVerificationHandler(&mockLifecycle{})
	rr := httptest.NewRecorder()
	h.Verify(rr, asApplication(httptest.NewRequest(http.MethodPost, "/", batchBody(t, domain.VerifyInput{RequestID: "R1"})), "A1"))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestVerify_HappyPath(t *testing.T) {
	svc := &mockLifecycle{}
	in := domain.VerifyInput{RequestID: "R1", Token: "123456"}
	svc.On("Verify", mock.Anything, "A1", []domain.VerifyInput{in}).Return(&verification.Result[domain.VerifiedRequest]{
		Items: []domain.VerifiedRequest{{RequestID: "R1", VerifiedAt: time.Now().UTC()}},
	}, nil)
	h := NewVerificationHandler(svc)
	rr := httptest.NewRecorder()
	h.Verify(rr, asApplication(httptest.NewRequest(http.MethodPost, "/", batchBody(t, in)), "A1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.Response[domain.VerifiedRequest]
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "R1", resp.Data[0].RequestID)
	assert.Nil(t, resp.Messages)
}

func TestVerify_IntegrityFaultIs500(t *testing.T) {
	svc := &mockLifecycle{}
	svc.On("Verify", mock.Anything, "A1", mock.Anything).Return(nil, domain.ErrTokenIntegrityFault)
	h := NewVerificationHandler(svc)
	rr := httptest.NewRecorder()
	h.Verify(rr, asApplication(httptest.NewRequest(http.MethodPost, "/", batchBody(t, domain.VerifyInput{RequestID: "R1", Token: "x"})), "A1"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
