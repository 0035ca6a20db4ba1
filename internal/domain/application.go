package domain

import "time"

// ActivationStatus is the soft-delete state shared by applications and service subscriptions.
type ActivationStatus string

const (
	StatusActive   ActivationStatus = "active"
	StatusInactive ActivationStatus = "inactive"
)

// Application is an onboarded client identified by an API key/secret pair.
// APIKey and APISecret hold ciphertext at rest; the directory returns copies
// with both fields decrypted.
type Application struct {
	ApplicationID string           `json:"application_id" dynamodbav:"application_id"`
	Name          string           `json:"application_name" dynamodbav:"application_name"`
	APIKey        string           `json:"-" dynamodbav:"api_key"`
	APISecret     string           `json:"-" dynamodbav:"api_secret"`
	KeyLookup     string           `json:"-" dynamodbav:"key_lookup,omitempty"`
	KeyExpiry     time.Time        `json:"api_key_expiry" dynamodbav:"api_key_expiry"`
	Status        ActivationStatus `json:"status" dynamodbav:"status"`
	CreatedAt     time.Time        `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" dynamodbav:"updated_at"`
}

func (a *Application) IsActive() bool { return a.Status == StatusActive }

// KeyExpired reports whether the API key is past its expiry at now.
func (a *Application) KeyExpired(now time.Time) bool { return now.After(a.KeyExpiry) }

// Credentials is the plaintext key pair. It is returned exactly once, when generated.
type Credentials struct {
	ApplicationName string   `json:"applicationName"`
	ApplicationCode string   `json:"applicationCode"`
	Key             string   `json:"applicationKey"`
	Secret          string   `json:"applicationKeySecret"`
	KeyExpiry       int64    `json:"applicationKeyExpiry"` // Unix seconds
	Services        []string `json:"servicesSubscribed,omitempty"`
}

// KeyLifetime is how long a newly issued API key stays valid.
const KeyLifetime = 365 * 24 * time.Hour
