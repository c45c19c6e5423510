package validation

import (
	"regexp"

	validatorv10 "github.com/go-playground/validator/v10"
)

// transactionIDPattern is the fixed public identifier format: uppercase
// alphanumeric, bounded length. Checked before any store lookup.
var transactionIDPattern = regexp.MustCompile(`^[A-Z0-9]{8,20}$`)

// TransactionID reports whether s is a well-formed public transaction id.
func TransactionID(s string) bool {
	return transactionIDPattern.MatchString(s)
}

// New returns a configured validator with the trxid rule registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	_ = v.RegisterValidation("trxid", func(fl validatorv10.FieldLevel) bool {
		return TransactionID(fl.Field().String())
	})

	return v
}
