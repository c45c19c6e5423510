package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/hotspotid/voucherflow/internal/aws"
	"github.com/hotspotid/voucherflow/internal/config"
	"github.com/hotspotid/voucherflow/internal/logging"
	"github.com/hotspotid/voucherflow/internal/routeros"
	"github.com/hotspotid/voucherflow/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	txStore := store.NewStore(clients.DynamoDB, cfg.TransactionsTable, cfg.VouchersTable, cfg.WebhookLogsTable)
	device := routeros.NewClient(routeros.Config{
		Host:     cfg.RouterHost,
		Port:     cfg.RouterPort,
		Username: cfg.RouterUsername,
		Password: cfg.RouterPassword,
		Timeout:  time.Duration(cfg.RouterTimeout) * time.Second,
	}, logging.New("routeros", cfg.LogLevel))

	p := NewProcessor(txStore, device, logging.New("provisioner", cfg.LogLevel))

	// If RUN_LOCAL=true, probe the device and simulate a single SQS event
	// for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		if identity, err := device.SystemIdentity(context.Background()); err != nil {
			log.Printf("device probe failed: %v", err)
		} else {
			log.Printf("connected to device %q", identity)
		}
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"transaction_id":"TRX20260101AAAAAA"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
