package domain

import (
	"strings"
	"time"
)

// RequestStatus is the stored state of a verification request. Expired is not
// stored: it is derived from ExpiryTime when the request is read.
type RequestStatus string

const (
	RequestActive      RequestStatus = "active"
	RequestVerified    RequestStatus = "verified"
	RequestDeactivated RequestStatus = "deactivated"
)

// RequestState is the lifecycle state observed at a given instant.
type RequestState int

const (
	StatePending RequestState = iota // active, unverified, unexpired
	StateVerified
	StateExpired
	StateDeactivated
)

func (s RequestState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateVerified:
		return "verified"
	case StateExpired:
		return "expired"
	case StateDeactivated:
		return "deactivated"
	}
	return "unknown"
}

// HousekeepingHorizon is how long a request is retained before housekeeping
// archives it.
const HousekeepingHorizon = 24 * time.Hour

// ArchiveGrace is how long a request outlives its horizon before the store may
// purge it unarchived. Archived requests are purged right away.
const ArchiveGrace = 7 * 24 * time.Hour

// VerificationRequest is one outstanding challenge tied to a user identity.
// Token holds ciphertext; the plaintext is only ever returned by Generate/Resend.
type VerificationRequest struct {
	RequestID       string        `json:"request_id" dynamodbav:"request_id"`
	ApplicationID   string        `json:"application_id" dynamodbav:"application_id"`
	ServiceID       string        `json:"service_id" dynamodbav:"service_id"`
	ServiceType     ServiceType   `json:"service_type" dynamodbav:"service_type"`
	UserIdentity    string        `json:"user_identity" dynamodbav:"user_identity"`
	IdentityKey     string        `json:"-" dynamodbav:"identity_key"`
	Token           string        `json:"-" dynamodbav:"token"`
	ExpiryTime      time.Time     `json:"expiry_time" dynamodbav:"expiry_time"`
	AttemptCount    int           `json:"attempt_count" dynamodbav:"attempt_count"`
	MaxAttemptCount int           `json:"max_attempt_count" dynamodbav:"max_attempt_count"`
	ResendCount     int           `json:"resend_count" dynamodbav:"resend_count"`
	MaxResendCount  int           `json:"max_resend_count" dynamodbav:"max_resend_count"`
	TTL             int64         `json:"ttl" dynamodbav:"ttl"`           // housekeeping horizon (Unix seconds)
	PurgeAt         int64         `json:"purge_at" dynamodbav:"purge_at"` // DynamoDB TTL (Unix seconds)
	Status          RequestStatus `json:"status" dynamodbav:"status"`
	VerifiedAt      *time.Time    `json:"verified_at,omitempty" dynamodbav:"verified_at"`
	ArchivedAt      *time.Time    `json:"archived_at,omitempty" dynamodbav:"archived_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" dynamodbav:"updated_at"`
}

// IdentityKey builds the key that scopes the one-active-request rule.
func IdentityKey(applicationID, serviceID, userIdentity string) string {
	return strings.Join([]string{applicationID, serviceID, userIdentity}, "#")
}

func (r *VerificationRequest) Verified() bool { return r.Status == RequestVerified }

func (r *VerificationRequest) Active() bool { return r.Status == RequestActive }

// Expired reports whether now is past the token expiry.
func (r *VerificationRequest) Expired(now time.Time) bool { return now.After(r.ExpiryTime) }

// State derives the lifecycle state at now.
func (r *VerificationRequest) State(now time.Time) RequestState {
	switch r.Status {
	case RequestVerified:
		return StateVerified
	case RequestDeactivated:
		return StateDeactivated
	}
	if r.Expired(now) {
		return StateExpired
	}
	return StatePending
}

// Retain sets the housekeeping horizon and the later purge time.
func (r *VerificationRequest) Retain(now time.Time) {
	horizon := now.Add(HousekeepingHorizon)
	r.TTL = horizon.Unix()
	r.PurgeAt = horizon.Add(ArchiveGrace).Unix()
}

// MarkVerified moves the request to its terminal verified state.
func (r *VerificationRequest) MarkVerified(now time.Time) {
	r.Status = RequestVerified
	r.VerifiedAt = &now
	r.UpdatedAt = now
}

// Deactivate retires a superseded request.
func (r *VerificationRequest) Deactivate(now time.Time) {
	r.Status = RequestDeactivated
	r.UpdatedAt = now
}

// GenerateInput is one item of a generate-verification batch.
type GenerateInput struct {
	ServiceType  ServiceType `json:"serviceType" validate:"required,service_type"`
	UserIdentity string      `json:"userIdentity" validate:"required,max=320"`
}

// ResendInput is one item of a resend-verification batch.
type ResendInput struct {
	RequestID string `json:"requestId" validate:"required"`
}

// VerifyInput is one item of a verify batch.
type VerifyInput struct {
	RequestID string `json:"requestId" validate:"required"`
	Token     string `json:"token" validate:"required"`
}

// IssuedToken is the per-item result of Generate and Resend. Token is plaintext
// and present only in this response.
type IssuedToken struct {
	UserIdentity     string      `json:"userIdentity"`
	ServiceType      ServiceType `json:"serviceType"`
	RequestID        string      `json:"requestId"`
	Token            string      `json:"token,omitempty"`
	VerificationLink string      `json:"verificationLink,omitempty"`
	ExpiresAt        time.Time   `json:"expiresAt"`
}

// VerifiedRequest is the per-item result of Verify.
type VerifiedRequest struct {
	RequestID  string    `json:"requestId"`
	VerifiedAt time.Time `json:"verifiedAt"`
}
