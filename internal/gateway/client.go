package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apsdehal/go-logger"
)

// Charge statuses as reported by the gateway. The engine maps these tokens;
// the client passes them through untouched.
const (
	ChargeStatusPaid      = "paid"
	ChargeStatusSuccess   = "success"
	ChargeStatusPending   = "pending"
	ChargeStatusFailed    = "failed"
	ChargeStatusCancelled = "cancelled"
	ChargeStatusExpired   = "expired"
)

// Config holds gateway endpoint settings and secrets.
type Config struct {
	BaseURL       string
	APIKey        string
	MerchantID    string
	WebhookSecret string
	CallbackURL   string
	ExpiryMinutes int
	Timeout       time.Duration
}

// Client talks to the QRIS payment gateway HTTP API.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
}

// NewClient returns a gateway Client with a bounded request timeout.
func NewClient(cfg Config, log *logger.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Charge is the result of creating a payment charge.
type Charge struct {
	ChargeID   string `json:"charge_id"`
	QRCode     string `json:"qr_code"`
	QRString   string `json:"qr_string"`
	QRURL      string `json:"qr_url"`
	ExpiryTime string `json:"expiry_time"`
}

// ChargeStatus is the gateway's view of a charge.
type ChargeStatus struct {
	Status     string  `json:"payment_status"`
	ChargeID   string  `json:"charge_id"`
	PaidAmount float64 `json:"paid_amount"`
}

type chargeCreateResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	ChargeID   string  `json:"charge_id"`
	QRCode     string  `json:"qr_code"`
	QRString   string  `json:"qr_string"`
	QRURL      string  `json:"qr_url"`
	ExpiryTime string  `json:"expiry_time"`
	Payment    string  `json:"payment_status"`
	PaidAmount float64 `json:"paid_amount"`
}

// CreateCharge registers a payment charge for a transaction and returns the
// QR payload the buyer scans.
func (c *Client) CreateCharge(ctx context.Context, transactionID string, amount float64, description string) (*Charge, error) {
	if description == "" {
		description = fmt.Sprintf("WiFi Voucher Purchase - %s", transactionID)
	}
	payload := map[string]interface{}{
		"merchant_id":    c.cfg.MerchantID,
		"transaction_id": transactionID,
		"amount":         amount,
		"description":    description,
		"expiry_minutes": c.cfg.ExpiryMinutes,
		"callback_url":   c.cfg.CallbackURL,
	}

	var resp chargeCreateResponse
	if err := c.post(ctx, "/charge/create", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		c.log.ErrorF("charge creation rejected for %s: %s", transactionID, resp.Message)
		return nil, fmt.Errorf("gateway rejected charge for %s: %s", transactionID, resp.Message)
	}

	chargeID := resp.ChargeID
	if chargeID == "" {
		chargeID = transactionID
	}
	c.log.InfoF("charge created: trx=%s charge_id=%s amount=%.2f", transactionID, chargeID, amount)
	return &Charge{
		ChargeID:   chargeID,
		QRCode:     resp.QRCode,
		QRString:   resp.QRString,
		QRURL:      resp.QRURL,
		ExpiryTime: resp.ExpiryTime,
	}, nil
}

// CheckStatus asks the gateway for the current charge status.
func (c *Client) CheckStatus(ctx context.Context, transactionID string) (*ChargeStatus, error) {
	payload := map[string]interface{}{
		"merchant_id":    c.cfg.MerchantID,
		"transaction_id": transactionID,
	}

	var resp chargeCreateResponse
	if err := c.post(ctx, "/charge/status", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "" {
		return nil, fmt.Errorf("gateway status check failed for %s: %s", transactionID, resp.Message)
	}

	status := resp.Payment
	if status == "" {
		status = "unknown"
	}
	chargeID := resp.ChargeID
	if chargeID == "" {
		chargeID = transactionID
	}
	return &ChargeStatus{
		Status:     status,
		ChargeID:   chargeID,
		PaidAmount: resp.PaidAmount,
	}, nil
}

// CancelCharge voids a charge, used best-effort when a transaction expires
// locally before the gateway ever confirmed it.
func (c *Client) CancelCharge(ctx context.Context, transactionID string) error {
	payload := map[string]interface{}{
		"merchant_id":    c.cfg.MerchantID,
		"transaction_id": transactionID,
		"reason":         "User cancelled or expired",
	}

	var resp chargeCreateResponse
	if err := c.post(ctx, "/charge/cancel", payload, &resp); err != nil {
		return err
	}
	if resp.Status != "success" {
		return fmt.Errorf("gateway refused cancel for %s: %s", transactionID, resp.Message)
	}
	c.log.InfoF("charge cancelled: trx=%s", transactionID)
	return nil
}

// VerifySignature checks the HMAC-SHA256 of the raw callback body against the
// shared webhook secret, in constant time.
func (c *Client) VerifySignature(rawPayload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(rawPayload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("User-Agent", "WiFi-Voucher-System/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway %s returned HTTP %d", endpoint, resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
