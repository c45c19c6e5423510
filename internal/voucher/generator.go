package voucher

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/hotspotid/voucherflow/internal/store"
)

const passwordAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Generator produces login credentials for issued vouchers and public
// transaction identifiers. Pure computation; persistence belongs to callers.
type Generator struct {
	UsernamePrefix      string
	PasswordLength      int
	TransactionIDPrefix string
	nowFunc             func() time.Time
}

// NewGenerator returns a Generator with the configured prefixes and password
// length.
func NewGenerator(usernamePrefix string, passwordLength int, transactionIDPrefix string) *Generator {
	return &Generator{
		UsernamePrefix:      usernamePrefix,
		PasswordLength:      passwordLength,
		TransactionIDPrefix: transactionIDPrefix,
		nowFunc:             time.Now,
	}
}

// Generate builds a credential pair plus its expiry for the given package
// duration. The username keeps the prefix+6-char-suffix shape but draws the
// suffix from a strong random source; collisions are tolerated by the voucher
// table's uniqueness guard, not prevented here.
func (g *Generator) Generate(packageDurationHours int) (store.Voucher, error) {
	suffix, err := randomHex(3)
	if err != nil {
		return store.Voucher{}, fmt.Errorf("generate username: %w", err)
	}

	password, err := randomString(passwordAlphabet, g.PasswordLength)
	if err != nil {
		return store.Voucher{}, fmt.Errorf("generate password: %w", err)
	}

	return store.Voucher{
		Username:  g.UsernamePrefix + suffix,
		Password:  password,
		ExpiresAt: g.nowFunc().UTC().Add(time.Duration(packageDurationHours) * time.Hour),
	}, nil
}

// TransactionID builds a public identifier: prefix, purchase date, and a
// 6-char random uppercase suffix. Matches ^[A-Z0-9]{8,20}$ for the default
// "TRX" prefix.
func (g *Generator) TransactionID() (string, error) {
	suffix, err := randomHex(3)
	if err != nil {
		return "", fmt.Errorf("generate transaction id: %w", err)
	}
	date := g.nowFunc().UTC().Format("20060102")
	return g.TransactionIDPrefix + date + strings.ToUpper(suffix), nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func randomString(alphabet string, length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
