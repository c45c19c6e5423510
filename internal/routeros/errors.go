package routeros

import (
	"errors"
	"fmt"
)

// Failure taxonomy surfaced to callers. Transport, auth, and protocol
// failures wrap these sentinels; device-reported errors carry the trap
// message in a TrapError.
var (
	// ErrTransport covers connect failures, timeouts, and stream breaks.
	ErrTransport = errors.New("routeros: transport error")

	// ErrAuth covers a rejected or malformed login handshake.
	ErrAuth = errors.New("routeros: authentication failed")

	// ErrProtocol covers a malformed reply sentence.
	ErrProtocol = errors.New("routeros: protocol error")

	// ErrAmbiguous marks a command that produced neither a confirmation nor
	// a trap. Some firmware omits explicit confirmation; treated as failure.
	ErrAmbiguous = errors.New("routeros: ambiguous result")

	// ErrNoSuchAccount is returned by DeleteAccount for an unknown user.
	ErrNoSuchAccount = errors.New("routeros: no such account")
)

// TrapError is an application-level error reported by the device in a !trap
// sentence. Fatal to the command, not to the connection.
type TrapError struct {
	Message string
}

func (e *TrapError) Error() string {
	if e.Message == "" {
		return "routeros: device trap"
	}
	return fmt.Sprintf("routeros: device trap: %s", e.Message)
}
