package main

// ProvisionMessage is the payload sent from API -> SQS -> provisioner.
type ProvisionMessage struct {
	TransactionID string `json:"transaction_id"`
}
