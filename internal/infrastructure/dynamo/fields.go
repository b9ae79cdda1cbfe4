package dynamo

// DynamoDB attribute names used in expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID       = "user_id"
	fieldEmail        = "email"
	fieldPasswordHash = "password_hash"
	fieldLastLogin    = "last_login"
	fieldEntitlements = "entitlements"
	fieldUpdatedAt    = "updated_at"
	fieldCreatedAt    = "created_at"
	fieldPaymentID    = "payment_id"
	fieldAuthority    = "authority"
	fieldRefID        = "ref_id"
	fieldSuccess      = "success"
	fieldStatus       = "status"
	fieldCounterKey   = "counter_key"
	fieldValue        = "value"
	fieldExpiresAt    = "expires_at"
)
