package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/apsdehal/go-logger"

	"github.com/hotspotid/voucherflow/internal/gateway"
	"github.com/hotspotid/voucherflow/internal/store"
)

// amountTolerance is the maximum accepted difference between the transaction
// amount and the amount a trigger observed.
const amountTolerance = 0.01

// TrustLevel distinguishes the two trigger paths.
type TrustLevel int

const (
	// TrustAuthenticatedPush is a signed gateway callback.
	TrustAuthenticatedPush TrustLevel = iota
	// TrustUnauthenticatedPull is a client-driven status poll.
	TrustUnauthenticatedPull
)

// Observation is the payment status a trigger carries. Push triggers supply
// it from the callback payload; pull triggers pass nil and the engine asks
// the gateway itself.
type Observation struct {
	Status     string
	PaidAmount float64
	GatewayRef string
}

// Result is the reconciliation outcome reported to the trigger.
type Result struct {
	Status  string
	Voucher *store.Voucher
	// GatewayStatus is the raw status token that drove this outcome, if any.
	GatewayStatus string
	// ProvisioningErr is set when the success transition committed but the
	// device account could not be created. The success state stands.
	ProvisioningErr error
}

// TransactionStore is the store access the engine needs.
type TransactionStore interface {
	GetTransaction(ctx context.Context, transactionID string) (*store.Transaction, error)
	GetVoucher(ctx context.Context, transactionID string) (*store.Voucher, error)
	CommitSuccess(ctx context.Context, transactionID, gatewayRef string, v store.Voucher) error
	MarkTerminal(ctx context.Context, transactionID, newStatus string) error
}

// CredentialGenerator produces a credential pair with an expiry.
type CredentialGenerator interface {
	Generate(packageDurationHours int) (store.Voucher, error)
}

// Provisioner creates the access account on the device.
type Provisioner interface {
	CreateAccount(ctx context.Context, username, password, profile, comment string) error
}

// StatusChecker is the gateway surface the pull path needs.
type StatusChecker interface {
	CheckStatus(ctx context.Context, transactionID string) (*gateway.ChargeStatus, error)
	CancelCharge(ctx context.Context, transactionID string) error
}

// RetryQueue enqueues out-of-band provisioning retries. Optional.
type RetryQueue interface {
	SendProvisionMessage(ctx context.Context, messageBody string, attributes map[string]string) error
}

// OutcomeRecorder counts reconciliation outcomes. Optional, best-effort.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome string)
}

// Engine drives a transaction's lifecycle from a trigger to a terminal state.
// All idempotency rests on the store's conditional transition plus the
// voucher uniqueness guard; the engine itself holds no locks.
type Engine struct {
	store        TransactionStore
	generator    CredentialGenerator
	device       Provisioner
	gateway      StatusChecker
	retryQueue   RetryQueue
	metrics      OutcomeRecorder
	expiryWindow time.Duration
	log          *logger.Logger
	nowFunc      func() time.Time
}

// New builds an Engine. retryQueue and metrics may be nil.
func New(
	st TransactionStore,
	gen CredentialGenerator,
	device Provisioner,
	gw StatusChecker,
	retryQueue RetryQueue,
	metrics OutcomeRecorder,
	expiryWindow time.Duration,
	log *logger.Logger,
) *Engine {
	return &Engine{
		store:        st,
		generator:    gen,
		device:       device,
		gateway:      gw,
		retryQueue:   retryQueue,
		metrics:      metrics,
		expiryWindow: expiryWindow,
		log:          log,
		nowFunc:      time.Now,
	}
}

// Reconcile applies an observed payment status to a transaction.
//
// Push triggers pass the callback's observation; pull triggers pass nil and
// the engine queries the gateway after the local expiry check. Terminal
// transactions short-circuit to a no-op before any side effect runs.
func (e *Engine) Reconcile(ctx context.Context, transactionID string, obs *Observation, trust TrustLevel) (*Result, error) {
	t, err := e.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}

	// Idempotent short-circuit: terminal states never re-run side effects.
	if store.IsTerminal(t.Status) {
		return e.terminalResult(ctx, t)
	}

	// Local expiry decision runs before any gateway contact, so a pull can
	// expire a transaction even when the gateway never responds.
	if trust == TrustUnauthenticatedPull && e.nowFunc().Sub(t.CreatedAt) > e.expiryWindow {
		return e.expireLocally(ctx, t)
	}

	if obs == nil {
		if trust != TrustUnauthenticatedPull {
			return nil, fmt.Errorf("push trigger for %s carried no observation", transactionID)
		}
		status, err := e.gateway.CheckStatus(ctx, transactionID)
		if err != nil {
			// The gateway being unreachable leaves the transaction pending;
			// the buyer's client polls again.
			e.log.WarningF("status check failed for %s: %v", transactionID, err)
			return &Result{Status: store.StatusPending}, nil
		}
		obs = &Observation{
			Status:     status.Status,
			PaidAmount: status.PaidAmount,
			GatewayRef: status.ChargeID,
		}
	}

	switch {
	case isSuccessStatus(obs.Status):
		return e.applySuccess(ctx, t, obs)
	case isFailureStatus(obs.Status):
		return e.applyFailure(ctx, t, obs)
	case isPendingStatus(obs.Status):
		return &Result{Status: store.StatusPending, GatewayStatus: obs.Status}, nil
	default:
		return nil, &UnknownStatusError{TransactionID: t.TransactionID, Status: obs.Status}
	}
}

// applySuccess verifies the amount, commits the success transition together
// with the voucher as one atomic store write, then provisions the device
// account. Provisioning failure is surfaced but never reverts the commit.
func (e *Engine) applySuccess(ctx context.Context, t *store.Transaction, obs *Observation) (*Result, error) {
	if math.Abs(obs.PaidAmount-t.Amount) > amountTolerance {
		e.log.WarningF("amount mismatch for %s: expected %.2f observed %.2f",
			t.TransactionID, t.Amount, obs.PaidAmount)
		return nil, &AmountMismatchError{
			TransactionID: t.TransactionID,
			Expected:      t.Amount,
			Observed:      obs.PaidAmount,
		}
	}

	v, err := e.generator.Generate(t.DurationHours)
	if err != nil {
		return nil, fmt.Errorf("generate credential: %w", err)
	}

	if err := e.store.CommitSuccess(ctx, t.TransactionID, obs.GatewayRef, v); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent trigger won; its commit is the result. The losing
			// side never provisions.
			e.recordOutcome(ctx, "conflict")
			return e.rereadTerminal(ctx, t.TransactionID)
		}
		return nil, err
	}

	e.log.InfoF("transaction %s reconciled to success, voucher %s issued", t.TransactionID, v.Username)
	e.recordOutcome(ctx, store.StatusSuccess)
	v.TransactionID = t.TransactionID
	result := &Result{Status: store.StatusSuccess, Voucher: &v, GatewayStatus: obs.Status}

	comment := fmt.Sprintf("Transaction: %s", t.TransactionID)
	if err := e.device.CreateAccount(ctx, v.Username, v.Password, t.ProfileName, comment); err != nil {
		e.log.ErrorF("device provisioning failed for %s: %v", t.TransactionID, err)
		e.recordOutcome(ctx, "provisioning_failed")
		e.enqueueRetry(ctx, t.TransactionID)
		result.ProvisioningErr = &ProvisioningError{
			TransactionID: t.TransactionID,
			Username:      v.Username,
			Err:           err,
		}
	}
	return result, nil
}

func (e *Engine) applyFailure(ctx context.Context, t *store.Transaction, obs *Observation) (*Result, error) {
	if err := e.store.MarkTerminal(ctx, t.TransactionID, store.StatusFailed); err != nil {
		if errors.Is(err, store.ErrConflict) {
			e.recordOutcome(ctx, "conflict")
			return e.rereadTerminal(ctx, t.TransactionID)
		}
		return nil, err
	}
	e.log.InfoF("transaction %s reconciled to failed (gateway status %q)", t.TransactionID, obs.Status)
	e.recordOutcome(ctx, store.StatusFailed)
	return &Result{Status: store.StatusFailed, GatewayStatus: obs.Status}, nil
}

func (e *Engine) expireLocally(ctx context.Context, t *store.Transaction) (*Result, error) {
	if err := e.store.MarkTerminal(ctx, t.TransactionID, store.StatusExpired); err != nil {
		if errors.Is(err, store.ErrConflict) {
			e.recordOutcome(ctx, "conflict")
			return e.rereadTerminal(ctx, t.TransactionID)
		}
		return nil, err
	}
	e.log.InfoF("transaction %s expired locally after %s", t.TransactionID, e.expiryWindow)
	e.recordOutcome(ctx, store.StatusExpired)

	// The charge may still be open on the gateway side; voiding it is
	// best-effort and does not affect the committed state.
	if e.gateway != nil {
		if err := e.gateway.CancelCharge(ctx, t.TransactionID); err != nil {
			e.log.WarningF("cancel charge for expired %s: %v", t.TransactionID, err)
		}
	}
	return &Result{Status: store.StatusExpired}, nil
}

// terminalResult builds the no-op response for an already-terminal
// transaction, attaching the voucher when the state is success.
func (e *Engine) terminalResult(ctx context.Context, t *store.Transaction) (*Result, error) {
	result := &Result{Status: t.Status}
	if t.Status == store.StatusSuccess {
		v, err := e.store.GetVoucher(ctx, t.TransactionID)
		if err != nil {
			return nil, err
		}
		result.Voucher = v
	}
	return result, nil
}

func (e *Engine) rereadTerminal(ctx context.Context, transactionID string) (*Result, error) {
	t, err := e.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return e.terminalResult(ctx, t)
}

func (e *Engine) enqueueRetry(ctx context.Context, transactionID string) {
	if e.retryQueue == nil {
		return
	}
	body, _ := json.Marshal(map[string]string{"transaction_id": transactionID})
	attrs := map[string]string{"transaction_id": transactionID}
	if err := e.retryQueue.SendProvisionMessage(ctx, string(body), attrs); err != nil {
		e.log.ErrorF("enqueue provisioning retry for %s: %v", transactionID, err)
	}
}

func (e *Engine) recordOutcome(ctx context.Context, outcome string) {
	if e.metrics != nil {
		e.metrics.RecordOutcome(ctx, outcome)
	}
}

func isSuccessStatus(status string) bool {
	return status == gateway.ChargeStatusSuccess || status == gateway.ChargeStatusPaid
}

func isFailureStatus(status string) bool {
	switch status {
	case gateway.ChargeStatusFailed, gateway.ChargeStatusCancelled, gateway.ChargeStatusExpired:
		return true
	}
	return false
}

func isPendingStatus(status string) bool {
	switch status {
	case gateway.ChargeStatusPending, "unpaid", "processing":
		return true
	}
	return false
}
