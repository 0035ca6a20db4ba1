package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	// ErrIntegrity marks stored data that cannot be decrypted or decoded.
	ErrIntegrity = errors.New("integrity fault")
)

// Specific failures. Each wraps exactly one kind above, so errors.Is works
// against both the failure and its kind.
var (
	ErrApplicationNotFound = fmt.Errorf("application not found: %w", ErrNotFound)
	ErrServiceNotFound     = fmt.Errorf("service not found or inactive: %w", ErrNotFound)
	ErrRequestNotFound     = fmt.Errorf("verification request not found: %w", ErrNotFound)

	ErrDuplicateApplication   = fmt.Errorf("application with this name already exists: %w", ErrConflict)
	ErrDuplicateService       = fmt.Errorf("service already subscribed: %w", ErrConflict)
	ErrDuplicateActiveRequest = fmt.Errorf("active verification request already exists: %w", ErrConflict)
	ErrAlreadyVerified        = fmt.Errorf("verification request already verified: %w", ErrConflict)

	ErrApplicationDisabled = fmt.Errorf("application is inactive: %w", ErrBadRequest)
	ErrServiceInactive     = fmt.Errorf("service is inactive: %w", ErrBadRequest)
	ErrRequestExpired      = fmt.Errorf("verification request expired: %w", ErrBadRequest)
	ErrMaxAttemptsExceeded = fmt.Errorf("maximum verification attempts exceeded: %w", ErrBadRequest)
	ErrMaxResendExceeded   = fmt.Errorf("maximum resend attempts exceeded: %w", ErrBadRequest)
	ErrInvalidToken        = fmt.Errorf("invalid token provided: %w", ErrBadRequest)
	ErrRepeatedBatchItem   = fmt.Errorf("item appears more than once in the batch: %w", ErrBadRequest)

	ErrMissingCredentials  = fmt.Errorf("missing api credentials: %w", ErrUnauthorized)
	ErrInvalidCredentials  = fmt.Errorf("invalid api credentials: %w", ErrUnauthorized)
	ErrApplicationInactive = fmt.Errorf("application is inactive: %w", ErrUnauthorized)
	ErrKeyExpired          = fmt.Errorf("api key expired: %w", ErrUnauthorized)

	ErrAccessDenied = fmt.Errorf("access denied to this application: %w", ErrForbidden)

	ErrTokenIntegrityFault = fmt.Errorf("stored token could not be decrypted: %w", ErrIntegrity)
)
