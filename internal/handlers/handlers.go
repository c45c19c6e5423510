package handlers

import (
	"context"
	"net/http"

	"github.com/apsdehal/go-logger"
	"github.com/gin-gonic/gin"

	"github.com/hotspotid/voucherflow/internal/catalog"
	"github.com/hotspotid/voucherflow/internal/gateway"
	"github.com/hotspotid/voucherflow/internal/ratelimit"
	"github.com/hotspotid/voucherflow/internal/reconcile"
	"github.com/hotspotid/voucherflow/internal/store"
	"github.com/hotspotid/voucherflow/internal/validation"
)

// Reconciler is the engine surface the trigger adapters call.
type Reconciler interface {
	Reconcile(ctx context.Context, transactionID string, obs *reconcile.Observation, trust reconcile.TrustLevel) (*reconcile.Result, error)
}

// TransactionWriter is the store surface the purchase endpoint needs.
type TransactionWriter interface {
	CreateTransaction(ctx context.Context, t store.Transaction) error
	MarkTerminal(ctx context.Context, transactionID, newStatus string) error
	PutWebhookLog(ctx context.Context, w store.WebhookLog) error
	MarkWebhookProcessed(ctx context.Context, webhookID string) error
}

// PackageCatalog resolves sellable packages.
type PackageCatalog interface {
	GetActive(ctx context.Context, packageID int) (*catalog.Package, error)
}

// ChargeGateway is the gateway surface the purchase and webhook endpoints use.
type ChargeGateway interface {
	CreateCharge(ctx context.Context, transactionID string, amount float64, description string) (*gateway.Charge, error)
	VerifySignature(rawPayload []byte, signature string) bool
}

// IDGenerator mints public transaction identifiers.
type IDGenerator interface {
	TransactionID() (string, error)
}

// HandlerConfig groups dependencies for the HTTP trigger adapters.
type HandlerConfig struct {
	Engine  Reconciler
	Store   TransactionWriter
	Catalog PackageCatalog
	Gateway ChargeGateway
	IDs     IDGenerator
	Limiter *ratelimit.Limiter // optional
	Logger  *logger.Logger
}

// RegisterRoutes wires the trigger endpoints. The webhook is exempt from rate
// limiting; the gateway authenticates with its signature instead.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limited := r.Group("/api")
	if cfg.Limiter != nil {
		limited.Use(cfg.Limiter.Middleware())
	}
	limited.POST("/transactions", createTransactionHandler(cfg, v))
	limited.GET("/status", statusHandler(cfg))

	r.POST("/api/webhooks/qris", webhookHandler(cfg, v))
}
