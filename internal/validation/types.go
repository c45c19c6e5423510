package validation

// CreateTransactionRequest is the payload for POST /api/transactions.
type CreateTransactionRequest struct {
	PackageID int `json:"package_id" validate:"required,gt=0"` // catalog package to purchase
}

// WebhookPayload is the body of an inbound gateway callback. ChargeID is
// optional; everything else is required before the store is touched.
type WebhookPayload struct {
	TransactionID string  `json:"transaction_id" validate:"required,trxid"`
	Status        string  `json:"status" validate:"required"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	ChargeID      string  `json:"charge_id,omitempty"`
}
