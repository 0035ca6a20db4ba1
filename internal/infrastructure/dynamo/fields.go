package dynamo

// DynamoDB attribute names used in update expressions across all repos.
const (
	fieldStatus    = "status"
	fieldUpdatedAt = "updated_at"

	fieldAPIKey    = "api_key"
	fieldAPISecret = "api_secret"
	fieldKeyLookup = "key_lookup"
	fieldKeyExpiry = "api_key_expiry"

	fieldLinkRoute = "verification_link_route"
	fieldSuccess   = "success_callback_config"
	fieldError     = "error_callback_config"
	fieldPolicy    = "verification_config"

	fieldToken        = "token"
	fieldExpiryTime   = "expiry_time"
	fieldAttemptCount = "attempt_count"
	fieldResendCount  = "resend_count"
	fieldVerifiedAt   = "verified_at"
	fieldArchivedAt   = "archived_at"
	fieldTTL          = "ttl"
	fieldPurgeAt      = "purge_at"
)
