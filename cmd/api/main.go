package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/hotspotid/voucherflow/internal/aws"
	"github.com/hotspotid/voucherflow/internal/catalog"
	"github.com/hotspotid/voucherflow/internal/config"
	"github.com/hotspotid/voucherflow/internal/gateway"
	"github.com/hotspotid/voucherflow/internal/handlers"
	"github.com/hotspotid/voucherflow/internal/logging"
	"github.com/hotspotid/voucherflow/internal/metrics"
	"github.com/hotspotid/voucherflow/internal/ratelimit"
	"github.com/hotspotid/voucherflow/internal/reconcile"
	"github.com/hotspotid/voucherflow/internal/routeros"
	"github.com/hotspotid/voucherflow/internal/store"
	"github.com/hotspotid/voucherflow/internal/voucher"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	handlers.RegisterRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLog := logging.New("voucherflow-api", cfg.LogLevel)

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	txStore := store.NewStore(clients.DynamoDB, cfg.TransactionsTable, cfg.VouchersTable, cfg.WebhookLogsTable)
	packages := catalog.NewStore(clients.DynamoDB, cfg.PackagesTable)
	generator := voucher.NewGenerator(cfg.UsernamePrefix, cfg.PasswordLength, cfg.TransactionIDPrefix)

	device := routeros.NewClient(routeros.Config{
		Host:     cfg.RouterHost,
		Port:     cfg.RouterPort,
		Username: cfg.RouterUsername,
		Password: cfg.RouterPassword,
		Timeout:  time.Duration(cfg.RouterTimeout) * time.Second,
	}, logging.New("routeros", cfg.LogLevel))

	qris := gateway.NewClient(gateway.Config{
		BaseURL:       cfg.GatewayURL,
		APIKey:        cfg.GatewayAPIKey,
		MerchantID:    cfg.GatewayMerchantID,
		WebhookSecret: cfg.WebhookSecret,
		CallbackURL:   cfg.CallbackURL,
		ExpiryMinutes: cfg.ExpiryMinutes,
		Timeout:       time.Duration(cfg.GatewayTimeout) * time.Second,
	}, logging.New("gateway", cfg.LogLevel))

	retryQueue := aws.NewPublisher(clients.SQS, cfg.ProvisionQueueURL)
	recorder := metrics.NewRecorder(clients.CloudWatch, appLog)

	engine := reconcile.New(
		txStore,
		generator,
		device,
		qris,
		retryQueue,
		recorder,
		time.Duration(cfg.ExpiryMinutes)*time.Minute,
		logging.New("reconcile", cfg.LogLevel),
	)

	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		counter := ratelimit.NewRedisCounter(cfg.RedisAddr, cfg.RedisPassword)
		limiter = ratelimit.NewLimiter(
			counter,
			cfg.RateLimitRequests,
			time.Duration(cfg.RateLimitWindow)*time.Second,
			logging.New("ratelimit", cfg.LogLevel),
		)
	}

	r := setupRouter(handlers.HandlerConfig{
		Engine:  engine,
		Store:   txStore,
		Catalog: packages,
		Gateway: qris,
		IDs:     generator,
		Limiter: limiter,
		Logger:  appLog,
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		appLog.InfoF("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
