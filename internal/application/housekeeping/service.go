package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/go-verify-api/internal/domain"
	"github.com/go-verify-api/internal/pkg/id"
)

type requestStore interface {
	ScanUnarchivedBefore(ctx context.Context, cutoff time.Time) ([]domain.VerificationRequest, error)
	MarkArchived(ctx context.Context, requestID string, at time.Time) error
}

type archiveStore interface {
	PutJSON(ctx context.Context, key string, v any) (string, error)
}

// ArchivedRequest is the audit record written for each request. The token is
// never exported, not even encrypted.
type ArchivedRequest struct {
	RequestID     string               `json:"requestId"`
	ApplicationID string               `json:"applicationId"`
	ServiceID     string               `json:"serviceId"`
	ServiceType   domain.ServiceType   `json:"serviceType"`
	UserIdentity  string               `json:"userIdentity"`
	Status        domain.RequestStatus `json:"status"`
	AttemptCount  int                  `json:"attemptCount"`
	ResendCount   int                  `json:"resendCount"`
	ExpiryTime    time.Time            `json:"expiryTime"`
	VerifiedAt    *time.Time           `json:"verifiedAt,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// Archive is the document written per run.
type Archive struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Requests    []ArchivedRequest `json:"requests"`
}

// Report summarises one run.
type Report struct {
	Archived int
	Location string
}

type Service interface {
	// ArchiveExpired exports requests past their housekeeping horizon and
	// stamps them archived. Removal is left to the table's TTL.
	ArchiveExpired(ctx context.Context) (*Report, error)
}

// ServiceDeps holds the dependencies for housekeeping.
type ServiceDeps struct {
	RequestRepo requestStore
	Archive     archiveStore
	Now         func() time.Time
}

type service struct {
	requests requestStore
	archive  archiveStore
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	s := &service{requests: deps.RequestRepo, archive: deps.Archive, now: deps.Now}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *service) ArchiveExpired(ctx context.Context) (*Report, error) {
	now := s.now()
	reqs, err := s.requests.ScanUnarchivedBefore(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("scan expired requests: %w", err)
	}
	if len(reqs) == 0 {
		return &Report{}, nil
	}

	doc := Archive{GeneratedAt: now, Requests: make([]ArchivedRequest, 0, len(reqs))}
	for _, r := range reqs {
		doc.Requests = append(doc.Requests, ArchivedRequest{
			RequestID:     r.RequestID,
			ApplicationID: r.ApplicationID,
			ServiceID:     r.ServiceID,
			ServiceType:   r.ServiceType,
			UserIdentity:  r.UserIdentity,
			Status:        r.Status,
			AttemptCount:  r.AttemptCount,
			ResendCount:   r.ResendCount,
			ExpiryTime:    r.ExpiryTime,
			VerifiedAt:    r.VerifiedAt,
			CreatedAt:     r.CreatedAt,
		})
	}

	location, err := s.archive.PutJSON(ctx, objectKey(now), doc)
	if err != nil {
		return nil, fmt.Errorf("write archive: %w", err)
	}

	// A request that fails to stamp is exported again next run.
	marked := 0
	for _, r := range reqs {
		if err := s.requests.MarkArchived(ctx, r.RequestID, now); err != nil {
			slog.Warn("failed to mark request archived", "request_id", r.RequestID, "err", err)
			continue
		}
		marked++
	}
	slog.Info("verification requests archived", "count", marked, "location", location)
	return &Report{Archived: marked, Location: location}, nil
}

// objectKey is verification-requests/YYYY/MM/DD/<ulid>.json.
func objectKey(now time.Time) string {
	return path.Join("verification-requests", now.Format("2006/01/02"), id.NewAt(now)+".json")
}
