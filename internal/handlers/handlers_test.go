package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hotspotid/voucherflow/internal/catalog"
	"github.com/hotspotid/voucherflow/internal/gateway"
	"github.com/hotspotid/voucherflow/internal/logging"
	"github.com/hotspotid/voucherflow/internal/reconcile"
	"github.com/hotspotid/voucherflow/internal/store"
)

const webhookSecret = "test-secret"

// --- fakes ---

type fakeEngine struct {
	result   *reconcile.Result
	err      error
	calls    int
	lastObs  *reconcile.Observation
	lastTrx  string
	lastMode reconcile.TrustLevel
}

func (f *fakeEngine) Reconcile(ctx context.Context, transactionID string, obs *reconcile.Observation, trust reconcile.TrustLevel) (*reconcile.Result, error) {
	f.calls++
	f.lastTrx = transactionID
	f.lastObs = obs
	f.lastMode = trust
	return f.result, f.err
}

type fakeWriter struct {
	created      []store.Transaction
	createErr    error
	webhookLogs  []store.WebhookLog
	processed    []string
	markedStatus map[string]string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{markedStatus: map[string]string{}}
}

func (f *fakeWriter) CreateTransaction(ctx context.Context, t store.Transaction) error {
	if f.createErr != nil {
		err := f.createErr
		f.createErr = nil
		return err
	}
	f.created = append(f.created, t)
	return nil
}

func (f *fakeWriter) MarkTerminal(ctx context.Context, id, status string) error {
	f.markedStatus[id] = status
	return nil
}

func (f *fakeWriter) PutWebhookLog(ctx context.Context, w store.WebhookLog) error {
	f.webhookLogs = append(f.webhookLogs, w)
	return nil
}

func (f *fakeWriter) MarkWebhookProcessed(ctx context.Context, id string) error {
	f.processed = append(f.processed, id)
	return nil
}

type fakeCatalog struct {
	pkg *catalog.Package
}

func (f *fakeCatalog) GetActive(ctx context.Context, id int) (*catalog.Package, error) {
	if f.pkg != nil && f.pkg.ID == id {
		return f.pkg, nil
	}
	return nil, nil
}

type fakeChargeGateway struct {
	charge    *gateway.Charge
	chargeErr error
}

func (f *fakeChargeGateway) CreateCharge(ctx context.Context, id string, amount float64, desc string) (*gateway.Charge, error) {
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return f.charge, nil
}

func (f *fakeChargeGateway) VerifySignature(raw []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(raw)
	return hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(signature))
}

type fakeIDs struct {
	ids  []string
	next int
}

func (f *fakeIDs) TransactionID() (string, error) {
	id := f.ids[f.next]
	if f.next < len(f.ids)-1 {
		f.next++
	}
	return id, nil
}

// --- helpers ---

type fixture struct {
	router  *gin.Engine
	engine  *fakeEngine
	writer  *fakeWriter
	catalog *fakeCatalog
	gateway *fakeChargeGateway
}

func newRouter(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		engine: &fakeEngine{},
		writer: newFakeWriter(),
		catalog: &fakeCatalog{pkg: &catalog.Package{
			ID:            1,
			Name:          "1 Day Package",
			Price:         10000,
			DurationHours: 24,
			ProfileName:   "1day",
			IsActive:      true,
		}},
		gateway: &fakeChargeGateway{charge: &gateway.Charge{
			ChargeID: "QR-1",
			QRString: "00020101021226",
			QRURL:    "https://gateway.example/qr/QR-1",
		}},
	}

	r := gin.New()
	RegisterRoutes(r, HandlerConfig{
		Engine:  f.engine,
		Store:   f.writer,
		Catalog: f.catalog,
		Gateway: f.gateway,
		IDs:     &fakeIDs{ids: []string{"TRX20260115A1B2C3", "TRX20260115D4E5F6"}},
		Logger:  logging.New("handlers-test", "debug"),
	})
	f.router = r
	return f
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(f *fixture, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/qris", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// --- create transaction ---

func TestCreateTransaction(t *testing.T) {
	f := newRouter(t)

	body := []byte(`{"package_id":1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.writer.created) != 1 {
		t.Fatalf("expected one stored transaction, got %d", len(f.writer.created))
	}
	created := f.writer.created[0]
	if created.Status != store.StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}
	if created.Amount != 10000 {
		t.Fatalf("price not snapshotted: %f", created.Amount)
	}
	if !strings.Contains(w.Body.String(), "TRX20260115A1B2C3") {
		t.Fatalf("transaction id missing from response: %s", w.Body.String())
	}
}

func TestCreateTransaction_UnknownPackage(t *testing.T) {
	f := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(`{"package_id":99}`))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if len(f.writer.created) != 0 {
		t.Fatalf("unknown package must not create a transaction")
	}
}

func TestCreateTransaction_GatewayDown(t *testing.T) {
	f := newRouter(t)
	f.gateway.chargeErr = context.DeadlineExceeded

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(`{"package_id":1}`))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if f.writer.markedStatus["TRX20260115A1B2C3"] != store.StatusFailed {
		t.Fatalf("pending row must be failed when the charge cannot be created")
	}
}

func TestCreateTransaction_InvalidBody(t *testing.T) {
	f := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(`{"package_id":0}`))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateTransaction_RegeneratesOnDuplicateID(t *testing.T) {
	f := newRouter(t)
	// the store may wrap the sentinel; the handler must still recognize it
	f.writer.createErr = fmt.Errorf("put transaction: %w", store.ErrDuplicateID)

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(`{"package_id":1}`))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 after regenerating, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.writer.created) != 1 {
		t.Fatalf("expected one stored transaction, got %d", len(f.writer.created))
	}
	if got := f.writer.created[0].TransactionID; got != "TRX20260115D4E5F6" {
		t.Fatalf("expected regenerated id, got %s", got)
	}
}

// --- webhook ---

func TestWebhook_ValidSignature(t *testing.T) {
	f := newRouter(t)
	f.engine.result = &reconcile.Result{
		Status:  store.StatusSuccess,
		Voucher: &store.Voucher{Username: "user4f2a1c", Password: "pw"},
	}

	payload := []byte(`{"transaction_id":"TRX20260115A1B2C3","status":"paid","amount":10000}`)
	w := postWebhook(f, payload, sign(payload))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if f.engine.calls != 1 {
		t.Fatalf("expected one reconcile call, got %d", f.engine.calls)
	}
	if f.engine.lastMode != reconcile.TrustAuthenticatedPush {
		t.Fatalf("webhook must reconcile as authenticated push")
	}
	if f.engine.lastObs == nil || f.engine.lastObs.PaidAmount != 10000 {
		t.Fatalf("observation not forwarded: %+v", f.engine.lastObs)
	}
	if len(f.writer.webhookLogs) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(f.writer.webhookLogs))
	}
	if len(f.writer.processed) != 1 {
		t.Fatalf("expected audit entry marked processed")
	}
}

func TestWebhook_ForgedSignature(t *testing.T) {
	f := newRouter(t)

	payload := []byte(`{"transaction_id":"TRX20260115A1B2C3","status":"paid","amount":10000}`)
	w := postWebhook(f, payload, "deadbeef")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	// nothing may be touched before the signature verifies
	if f.engine.calls != 0 {
		t.Fatalf("forged webhook must not reach the engine")
	}
	if len(f.writer.webhookLogs) != 0 {
		t.Fatalf("forged webhook must not be logged")
	}
}

func TestWebhook_MissingSignature(t *testing.T) {
	f := newRouter(t)

	payload := []byte(`{"transaction_id":"TRX20260115A1B2C3","status":"paid","amount":10000}`)
	w := postWebhook(f, payload, "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestWebhook_InvalidTransactionIDFormat(t *testing.T) {
	f := newRouter(t)

	payload := []byte(`{"transaction_id":"trx-bad-id!","status":"paid","amount":10000}`)
	w := postWebhook(f, payload, sign(payload))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if f.engine.calls != 0 {
		t.Fatalf("invalid payload must not reach the engine")
	}
}

func TestWebhook_UnknownTransaction(t *testing.T) {
	f := newRouter(t)
	f.engine.err = reconcile.ErrNotFound

	payload := []byte(`{"transaction_id":"TRX20260115ZZZZZZ","status":"paid","amount":10000}`)
	w := postWebhook(f, payload, sign(payload))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestWebhook_AmountMismatch(t *testing.T) {
	f := newRouter(t)
	f.engine.err = &reconcile.AmountMismatchError{
		TransactionID: "TRX20260115A1B2C3",
		Expected:      10000,
		Observed:      5000,
	}

	payload := []byte(`{"transaction_id":"TRX20260115A1B2C3","status":"paid","amount":5000}`)
	w := postWebhook(f, payload, sign(payload))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestWebhook_ProvisioningFailureStillAcknowledged(t *testing.T) {
	f := newRouter(t)
	f.engine.result = &reconcile.Result{
		Status:          store.StatusSuccess,
		Voucher:         &store.Voucher{Username: "user4f2a1c"},
		ProvisioningErr: &reconcile.ProvisioningError{TransactionID: "TRX20260115A1B2C3", Username: "user4f2a1c"},
	}

	payload := []byte(`{"transaction_id":"TRX20260115A1B2C3","status":"paid","amount":10000}`)
	w := postWebhook(f, payload, sign(payload))

	// the gateway must not re-deliver; retry runs from the queue
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "queued_for_retry") {
		t.Fatalf("expected retry indicator in response: %s", w.Body.String())
	}
}

// --- status poll ---

func TestStatus_SuccessReturnsVoucher(t *testing.T) {
	f := newRouter(t)
	expires := time.Date(2026, 1, 16, 10, 0, 0, 0, time.UTC)
	f.engine.result = &reconcile.Result{
		Status:  store.StatusSuccess,
		Voucher: &store.Voucher{Username: "user4f2a1c", Password: "Ab3xY9qZ", ExpiresAt: expires},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status?trx=TRX20260115A1B2C3", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.engine.lastMode != reconcile.TrustUnauthenticatedPull {
		t.Fatalf("status poll must reconcile as unauthenticated pull")
	}
	if f.engine.lastObs != nil {
		t.Fatalf("pull must not carry an observation")
	}

	var resp struct {
		Data struct {
			Voucher map[string]interface{} `json:"voucher"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response json: %v", err)
	}
	if resp.Data.Voucher["username"] != "user4f2a1c" {
		t.Fatalf("voucher missing from success response: %s", w.Body.String())
	}
}

func TestStatus_PendingOmitsVoucher(t *testing.T) {
	f := newRouter(t)
	f.engine.result = &reconcile.Result{Status: store.StatusPending}

	req := httptest.NewRequest(http.MethodGet, "/api/status?trx=TRX20260115A1B2C3", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "voucher") {
		t.Fatalf("pending response must not expose a voucher: %s", w.Body.String())
	}
}

func TestStatus_MissingParam(t *testing.T) {
	f := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if f.engine.calls != 0 {
		t.Fatalf("missing trx must not reach the engine")
	}
}

func TestStatus_BadFormat(t *testing.T) {
	f := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status?trx=bad-id", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStatus_NotFound(t *testing.T) {
	f := newRouter(t)
	f.engine.err = reconcile.ErrNotFound

	req := httptest.NewRequest(http.MethodGet, "/api/status?trx=TRX20260115ZZZZZZ", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
