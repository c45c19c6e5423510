package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apsdehal/go-logger"
	"github.com/aws/aws-lambda-go/events"

	"github.com/hotspotid/voucherflow/internal/store"
)

// TransactionReader is the store surface the retry worker needs.
type TransactionReader interface {
	GetTransaction(ctx context.Context, transactionID string) (*store.Transaction, error)
	GetVoucher(ctx context.Context, transactionID string) (*store.Voucher, error)
}

// Device is the provisioning surface the retry worker needs.
type Device interface {
	CreateAccount(ctx context.Context, username, password, profile, comment string) error
	FindAccount(ctx context.Context, username string) (map[string]string, error)
}

// Processor retries device provisioning for transactions whose success
// transition committed but whose account creation failed at trigger time.
type Processor struct {
	store  TransactionReader
	device Device
	log    *logger.Logger
}

// NewProcessor creates a retry processor with its dependencies injected.
func NewProcessor(st TransactionReader, device Device, log *logger.Logger) *Processor {
	return &Processor{store: st, device: device, log: log}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			p.log.ErrorF("provisioner error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg ProvisionMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	p.log.InfoF("retrying provisioning for transaction=%s", msg.TransactionID)

	t, err := p.store.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if t == nil {
		// Should never happen. DLQ if it does.
		return fmt.Errorf("transaction not found: %s", msg.TransactionID)
	}
	if t.Status != store.StatusSuccess {
		// Only successful transactions own a voucher. Swallow anything else;
		// retrying cannot make a failed or expired payment provisionable.
		p.log.WarningF("skipping transaction=%s with status=%s", msg.TransactionID, t.Status)
		return nil
	}

	v, err := p.store.GetVoucher(ctx, msg.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to fetch voucher: %w", err)
	}
	if v == nil {
		return fmt.Errorf("no voucher recorded for successful transaction %s", msg.TransactionID)
	}

	// The original attempt may have created the account before the trigger
	// saw a failure. Creating it twice would trap, so look first.
	existing, err := p.device.FindAccount(ctx, v.Username)
	if err != nil {
		return fmt.Errorf("failed to look up account %s: %w", v.Username, err)
	}
	if existing != nil {
		p.log.InfoF("account %s already provisioned for transaction=%s", v.Username, msg.TransactionID)
		return nil
	}

	comment := "Transaction: " + msg.TransactionID
	if err := p.device.CreateAccount(ctx, v.Username, v.Password, t.ProfileName, comment); err != nil {
		return fmt.Errorf("failed to provision account %s: %w", v.Username, err)
	}

	p.log.InfoF("provisioned account %s for transaction=%s", v.Username, msg.TransactionID)
	return nil
}
