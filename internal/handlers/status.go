package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hotspotid/voucherflow/internal/reconcile"
	"github.com/hotspotid/voucherflow/internal/store"
	"github.com/hotspotid/voucherflow/internal/validation"
)

// statusHandler is the pull trigger: the buyer's client polls until the
// transaction reaches a terminal state. Voucher fields are returned only once
// the status is success.
func statusHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		transactionID := c.Query("trx")
		if transactionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "transaction_id_required",
				"message": "Please provide a transaction ID (trx parameter)",
			})
			return
		}
		if !validation.TransactionID(transactionID) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "invalid_transaction_id",
			})
			return
		}

		result, err := cfg.Engine.Reconcile(ctx, transactionID, nil, reconcile.TrustUnauthenticatedPull)
		if err != nil {
			writeReconcileError(c, cfg, transactionID, err)
			return
		}

		data := gin.H{
			"transaction_id": transactionID,
			"status":         result.Status,
		}
		if result.GatewayStatus != "" {
			data["payment_status"] = result.GatewayStatus
		}
		if result.Status == store.StatusSuccess && result.Voucher != nil {
			data["voucher"] = gin.H{
				"username":   result.Voucher.Username,
				"password":   result.Voucher.Password,
				"expires_at": result.Voucher.ExpiresAt.Format(time.RFC3339),
				"is_used":    result.Voucher.IsUsed,
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    data,
			"message": statusMessage(result.Status),
		})
	}
}

func statusMessage(status string) string {
	switch status {
	case store.StatusSuccess:
		return "Payment successful! Your voucher is ready."
	case store.StatusFailed:
		return "Payment failed. Please create a new transaction."
	case store.StatusExpired:
		return "Transaction has expired. Please create a new transaction."
	default:
		return "Payment is still being processed. Please wait..."
	}
}

// writeReconcileError maps the engine's error taxonomy onto HTTP responses.
// Shared by both trigger adapters.
func writeReconcileError(c *gin.Context, cfg HandlerConfig, transactionID string, err error) {
	var mismatch *reconcile.AmountMismatchError
	var unknown *reconcile.UnknownStatusError

	switch {
	case errors.Is(err, reconcile.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "transaction_not_found",
			"message": "The specified transaction does not exist",
		})
	case errors.As(err, &mismatch):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "amount_mismatch",
			"message": "Payment amount does not match transaction amount",
		})
	case errors.As(err, &unknown):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "unknown_payment_status",
			"message": "Payment status '" + unknown.Status + "' is not recognized",
		})
	default:
		cfg.Logger.ErrorF("reconcile %s: %v", transactionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "Failed to process transaction. Please try again.",
		})
	}
}
