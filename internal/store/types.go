package store

import "time"

// Transaction statuses. Pending is the only non-terminal state; every other
// status is final and never transitions again.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusExpired = "expired"
)

// IsTerminal reports whether a status admits no further transition.
func IsTerminal(status string) bool {
	return status == StatusSuccess || status == StatusFailed || status == StatusExpired
}

// Transaction is one purchase attempt, stored in the transactions table.
// The package fields are denormalized at creation time so reconciliation
// never needs a catalog lookup.
type Transaction struct {
	TransactionID string    `dynamodbav:"transaction_id"` // PK, ^[A-Z0-9]{8,20}$
	PackageID     int       `dynamodbav:"package_id"`
	PackageName   string    `dynamodbav:"package_name,omitempty"`
	DurationHours int       `dynamodbav:"duration_hours"`
	ProfileName   string    `dynamodbav:"profile_name"`
	Amount        float64   `dynamodbav:"amount"`
	Status        string    `dynamodbav:"status"` // pending | success | failed | expired
	GatewayRef    string    `dynamodbav:"gateway_ref,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
	UpdatedAt     time.Time `dynamodbav:"updated_at"`
}

// Voucher is the issued credential, owned 1:1 by a successful transaction.
type Voucher struct {
	TransactionID string    `dynamodbav:"transaction_id"` // PK, same key as the owning transaction
	Username      string    `dynamodbav:"username"`
	Password      string    `dynamodbav:"password"`
	ExpiresAt     time.Time `dynamodbav:"expires_at"`
	IsUsed        bool      `dynamodbav:"is_used"`
}

// WebhookLog is one audit record per inbound gateway callback. The processed
// flag is a trace only; idempotency decisions never read it.
type WebhookLog struct {
	WebhookID     string    `dynamodbav:"webhook_id"` // PK, uuid
	TransactionID string    `dynamodbav:"transaction_id,omitempty"`
	Payload       string    `dynamodbav:"payload"`
	Processed     bool      `dynamodbav:"processed"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
}
