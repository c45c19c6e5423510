package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hotspotid/voucherflow/internal/reconcile"
	"github.com/hotspotid/voucherflow/internal/store"
	"github.com/hotspotid/voucherflow/internal/validation"
)

const signatureHeader = "X-Webhook-Signature"

// webhookHandler is the push trigger. The signature covers the raw request
// body, so verification happens on the exact bytes received and before any
// store access.
func webhookHandler(cfg HandlerConfig, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw, err := c.GetRawData()
		if err != nil || len(raw) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "empty_payload",
			})
			return
		}

		signature := c.GetHeader(signatureHeader)
		if signature == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing_signature",
			})
			return
		}
		if !cfg.Gateway.VerifySignature(raw, signature) {
			cfg.Logger.WarningF("webhook signature mismatch from %s", c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid_signature",
			})
			return
		}

		var payload validation.WebhookPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "invalid_request_body",
				"message": err.Error(),
			})
			return
		}
		if err := v.Struct(payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "validation_failed",
				"fields":  validation.ErrorsToMap(err),
			})
			return
		}

		// Audit trail only. A failed write never blocks reconciliation; the
		// store of record is the transaction table.
		webhookID := uuid.NewString()
		logged := true
		if err := cfg.Store.PutWebhookLog(ctx, store.WebhookLog{
			WebhookID:     webhookID,
			TransactionID: payload.TransactionID,
			Payload:       string(raw),
		}); err != nil {
			logged = false
			cfg.Logger.WarningF("webhook log write failed for %s: %v", payload.TransactionID, err)
		}

		obs := &reconcile.Observation{
			Status:     payload.Status,
			PaidAmount: payload.Amount,
			GatewayRef: payload.ChargeID,
		}
		result, err := cfg.Engine.Reconcile(ctx, payload.TransactionID, obs, reconcile.TrustAuthenticatedPush)
		if err != nil {
			writeReconcileError(c, cfg, payload.TransactionID, err)
			return
		}

		if logged {
			if err := cfg.Store.MarkWebhookProcessed(ctx, webhookID); err != nil {
				cfg.Logger.WarningF("webhook log update failed for %s: %v", webhookID, err)
			}
		}

		data := gin.H{
			"transaction_id": payload.TransactionID,
			"status":         result.Status,
		}
		if result.ProvisioningErr != nil {
			// Payment is committed either way; provisioning is retried from
			// the queue. The gateway must not re-deliver for this.
			data["provisioning"] = "queued_for_retry"
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    data,
			"message": "Webhook processed",
		})
	}
}
