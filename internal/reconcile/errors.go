package reconcile

import (
	"errors"
	"fmt"
)

// ErrNotFound means the public transaction identifier is unknown.
var ErrNotFound = errors.New("transaction not found")

// AmountMismatchError reports a paid amount that disagrees with the
// transaction amount beyond tolerance. The transaction stays pending so the
// discrepancy can be investigated.
type AmountMismatchError struct {
	TransactionID string
	Expected      float64
	Observed      float64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch for %s: expected %.2f, observed %.2f",
		e.TransactionID, e.Expected, e.Observed)
}

// UnknownStatusError reports an unrecognized gateway status token. No
// transition is performed.
type UnknownStatusError struct {
	TransactionID string
	Status        string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown gateway status %q for %s", e.Status, e.TransactionID)
}

// ProvisioningError reports a device account creation failure after the
// success transition already committed. The committed state is never rolled
// back; provisioning is retried out-of-band.
type ProvisioningError struct {
	TransactionID string
	Username      string
	Err           error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed for %s (user %s): %v", e.TransactionID, e.Username, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }
