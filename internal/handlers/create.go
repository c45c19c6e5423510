package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/hotspotid/voucherflow/internal/qr"
	"github.com/hotspotid/voucherflow/internal/store"
	"github.com/hotspotid/voucherflow/internal/validation"
)

// createTransactionHandler starts a purchase: resolve the package, persist a
// pending transaction, create the gateway charge, and hand back the QR
// payload the buyer scans.
func createTransactionHandler(cfg HandlerConfig, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateTransactionRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		pkg, err := cfg.Catalog.GetActive(ctx, req.PackageID)
		if err != nil {
			cfg.Logger.ErrorF("package lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error"})
			return
		}
		if pkg == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "package_not_found",
				"message": "The selected package is not available",
			})
			return
		}

		transactionID, err := cfg.IDs.TransactionID()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error"})
			return
		}

		now := time.Now().UTC()
		t := store.Transaction{
			TransactionID: transactionID,
			PackageID:     pkg.ID,
			PackageName:   pkg.Name,
			DurationHours: pkg.DurationHours,
			ProfileName:   pkg.ProfileName,
			Amount:        pkg.Price,
			Status:        store.StatusPending,
			CreatedAt:     now,
		}

		if err := cfg.Store.CreateTransaction(ctx, t); err != nil {
			if errors.Is(err, store.ErrDuplicateID) {
				// Regenerate once; the suffix space makes a second collision
				// vanishingly unlikely.
				transactionID, err = cfg.IDs.TransactionID()
				if err == nil {
					t.TransactionID = transactionID
					err = cfg.Store.CreateTransaction(ctx, t)
				}
			}
			if err != nil {
				cfg.Logger.ErrorF("create transaction failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal_error"})
				return
			}
		}

		charge, err := cfg.Gateway.CreateCharge(ctx, transactionID, pkg.Price, "WiFi Voucher - "+pkg.Name)
		if err != nil {
			cfg.Logger.ErrorF("charge creation failed for %s: %v", transactionID, err)
			// The pending row must not stay payable without a charge behind it.
			if markErr := cfg.Store.MarkTerminal(ctx, transactionID, store.StatusFailed); markErr != nil {
				cfg.Logger.ErrorF("mark %s failed after charge error: %v", transactionID, markErr)
			}
			c.JSON(http.StatusBadGateway, gin.H{
				"success": false,
				"error":   "payment_gateway_error",
				"message": "Failed to create transaction. Please try again.",
			})
			return
		}

		qrImage := charge.QRCode
		if qrImage == "" && charge.QRString != "" {
			if uri, qerr := qr.DataURI(charge.QRString, 256); qerr == nil {
				qrImage = uri
			}
		}

		cfg.Logger.InfoF("transaction created: trx=%s package=%d amount=%.2f charge=%s",
			transactionID, pkg.ID, pkg.Price, charge.ChargeID)

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"data": gin.H{
				"transaction_id": transactionID,
				"package": gin.H{
					"id":             pkg.ID,
					"name":           pkg.Name,
					"price":          pkg.Price,
					"duration_hours": pkg.DurationHours,
				},
				"payment": gin.H{
					"charge_id":   charge.ChargeID,
					"amount":      pkg.Price,
					"qr_code":     qrImage,
					"qr_string":   charge.QRString,
					"qr_url":      charge.QRURL,
					"expiry_time": charge.ExpiryTime,
				},
				"status":     store.StatusPending,
				"created_at": now.Format(time.RFC3339),
			},
			"message": "Transaction created successfully. Please complete the payment.",
		})
	}
}
