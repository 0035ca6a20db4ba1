package housekeeping

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/go-verify-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRequestStore struct{ mock.Mock }

func (m *mockRequestStore) ScanUnarchivedBefore(ctx context.Context, cutoff time.Time) ([]domain.VerificationRequest, error) {
	args := m.Called(ctx, cutoff)
	reqs, _ := args.Get(0).([]domain.VerificationRequest)
	return reqs, args.Error(1)
}
func (m *mockRequestStore) MarkArchived(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type mockArchive struct{ mock.Mock }

func (m *mockArchive) PutJSON(ctx context.Context, key string, v any) (string, error) {
	args := m.Called(ctx, key, v)
	return args.String(0), args.Error(1)
}

var fixedNow = time.Date(2026, 3, 7, 2, 0, 0, 0, time.UTC)

func newService(rs *mockRequestStore, ar *mockArchive) Service {
	return NewService(ServiceDeps{RequestRepo: rs, Archive: ar, Now: func() time.Time { return fixedNow }})
}

func TestArchiveExpired_NothingToDo(t *testing.T) {
	rs := &mockRequestStore{}
	ar := &mockArchive{}
	rs.On("ScanUnarchivedBefore", mock.Anything, fixedNow).Return([]domain.VerificationRequest{}, nil)

	rep, err := newService(rs, ar).ArchiveExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Archived)
	ar.AssertNotCalled(t, "PutJSON", mock.Anything, mock.Anything, mock.Anything)
}

func TestArchiveExpired_WritesDocumentWithoutTokens(t *testing.T) {
	rs := &mockRequestStore{}
	ar := &mockArchive{}
	reqs := []domain.VerificationRequest{
		{RequestID: "r1", Token: "ciphertext-1", Status: domain.RequestVerified},
		{RequestID: "r2", Token: "ciphertext-2", Status: domain.RequestActive},
	}
	rs.On("ScanUnarchivedBefore", mock.Anything, fixedNow).Return(reqs, nil)
	rs.On("MarkArchived", mock.Anything, "r1", fixedNow).Return(nil)
	rs.On("MarkArchived", mock.Anything, "r2", fixedNow).Return(errors.New("throttled"))
	keyRe := regexp.MustCompile(`^verification-requests/2026/03/07/[0-9A-Z]{26}\.json$`)
	ar.On("PutJSON", mock.Anything, mock.MatchedBy(keyRe.MatchString), mock.Anything).Return("s3://bucket/key", nil)

	rep, err := newService(rs, ar).ArchiveExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Archived)
	assert.Equal(t, "s3://bucket/key", rep.Location)

	doc := ar.Calls[0].Arguments.Get(2).(Archive)
	require.Len(t, doc.Requests, 2)
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "ciphertext")
}

func TestArchiveExpired_UploadFailureMarksNothing(t *testing.T) {
	rs := &mockRequestStore{}
	ar := &mockArchive{}
	rs.On("ScanUnarchivedBefore", mock.Anything, fixedNow).Return([]domain.VerificationRequest{{RequestID: "r1"}}, nil)
	ar.On("PutJSON", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("denied"))

	_, err := newService(rs, ar).ArchiveExpired(context.Background())
	require.Error(t, err)
	rs.AssertNotCalled(t, "MarkArchived", mock.Anything, mock.Anything, mock.Anything)
}
