package domain

import "time"

// ServiceType tags one of the five verification capabilities.
type ServiceType string

const (
	ServiceAuthMobileOTP   ServiceType = "authMO"
	ServiceAuthEmailOTP    ServiceType = "authEO"
	ServiceVerifyMobileOTP ServiceType = "verifyMO"
	ServiceVerifyEmailOTP  ServiceType = "verifyEO"
	ServiceVerifyEmailLink ServiceType = "verifyEL"
)

// Valid reports whether t is one of the enumerated service types.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceAuthMobileOTP, ServiceAuthEmailOTP, ServiceVerifyMobileOTP, ServiceVerifyEmailOTP, ServiceVerifyEmailLink:
		return true
	}
	return false
}

// RequiresLinkRoute reports whether subscriptions of this type need a verification link base route.
func (t ServiceType) RequiresLinkRoute() bool { return t == ServiceVerifyEmailLink }

// Token patterns accepted in a policy. Anything else is treated as numeric.
const (
	PatternNumeric          = "N"
	PatternNumericLong      = "numeric"
	PatternAlphanumeric     = "A"
	PatternAlphanumericLong = "alphanumeric"
)

// Policy defaults applied when a stored value is zero or empty.
const (
	DefaultTokenLength   = 6
	DefaultExpirySeconds = 300
	DefaultMaxAttempts   = 3
	DefaultMaxResends    = 3
)

// VerificationPolicy controls token shape, lifetime and retry limits.
type VerificationPolicy struct {
	MaxResendCount  int    `json:"maxResendCount" dynamodbav:"max_resend_count" validate:"min=0,max=20"`
	MaxAttemptCount int    `json:"maxAttemptCount" dynamodbav:"max_attempt_count" validate:"min=0,max=20"`
	TokenLength     int    `json:"tokenLength" dynamodbav:"token_length" validate:"omitempty,min=4,max=32"`
	TokenPattern    string `json:"tokenPattern" dynamodbav:"token_pattern"`
	ExpirySeconds   int    `json:"expiryTime" dynamodbav:"expiry_seconds" validate:"omitempty,min=30,max=86400"`
}

// WithDefaults returns a copy of p with zero values replaced by the defaults.
func (p VerificationPolicy) WithDefaults() VerificationPolicy {
	if p.TokenLength <= 0 {
		p.TokenLength = DefaultTokenLength
	}
	if p.TokenPattern == "" {
		p.TokenPattern = PatternNumeric
	}
	if p.ExpirySeconds <= 0 {
		p.ExpirySeconds = DefaultExpirySeconds
	}
	if p.MaxAttemptCount <= 0 {
		p.MaxAttemptCount = DefaultMaxAttempts
	}
	if p.MaxResendCount <= 0 {
		p.MaxResendCount = DefaultMaxResends
	}
	return p
}

// Expiry returns the lifetime a token issued under p is valid for.
func (p VerificationPolicy) Expiry() time.Duration {
	return time.Duration(p.WithDefaults().ExpirySeconds) * time.Second
}

// Callback describes a client callback. The payload template is stored and
// returned verbatim; nothing here interprets it.
type Callback struct {
	URL     string         `json:"callbackUrl" dynamodbav:"callback_url" validate:"required,url"`
	Method  string         `json:"callbackMethod" dynamodbav:"callback_method" validate:"required,oneof=GET POST PUT PATCH"`
	Payload map[string]any `json:"payload" dynamodbav:"payload"`
}

// Subscription is one verification capability configured for an application.
type Subscription struct {
	ServiceID     string             `json:"service_id" dynamodbav:"service_id"`
	ApplicationID string             `json:"application_id" dynamodbav:"application_id"`
	ServiceType   ServiceType        `json:"service_type" dynamodbav:"service_type"`
	LinkRoute     *string            `json:"verification_link_route,omitempty" dynamodbav:"verification_link_route"`
	Success       Callback           `json:"success_callback_config" dynamodbav:"success_callback_config"`
	Error         Callback           `json:"error_callback_config" dynamodbav:"error_callback_config"`
	Policy        VerificationPolicy `json:"verification_config" dynamodbav:"verification_config"`
	Status        ActivationStatus   `json:"status" dynamodbav:"status"`
	CreatedAt     time.Time          `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" dynamodbav:"updated_at"`
}

func (s *Subscription) IsActive() bool { return s.Status == StatusActive }

// ServiceInput is the client-supplied configuration of a subscription.
type ServiceInput struct {
	ServiceType ServiceType        `json:"serviceType" validate:"required,service_type"`
	LinkRoute   string             `json:"verificationLinkRoute" validate:"omitempty,url"`
	Policy      VerificationPolicy `json:"verificationConfig"`
	Success     Callback           `json:"successCallback"`
	Error       Callback           `json:"errorCallback"`
}
