package token

import (
	"errors"
	"fmt"
)

// Kind is the closed failure taxonomy of the acquisition engine. Every
// error returned by GetValidAccessToken carries exactly one Kind.
type Kind int

const (
	// KindConfig: required client configuration is missing. Fatal until
	// an operator fixes it; never retried.
	KindConfig Kind = iota + 1

	// KindAuthRequired: no credential on file. The caller must route
	// the user through the authorization flow.
	KindAuthRequired

	// KindInteractionRequired: the provider rejected the stored refresh
	// token. The user must reconnect; the record is left in place so a
	// reconnect can be told apart from a first-time connect.
	KindInteractionRequired

	// KindRefreshFailed: transient store or provider failure. Safe to
	// retry with backoff; never shown to the user as "re-authenticate".
	KindRefreshFailed

	// KindDecryption: stored ciphertext no longer decrypts under the
	// current key. Caller-equivalent to KindAuthRequired but logged
	// separately because it signals an operational integrity problem.
	KindDecryption
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config_error"
	case KindAuthRequired:
		return "auth_required"
	case KindInteractionRequired:
		return "interaction_required"
	case KindRefreshFailed:
		return "refresh_failed"
	case KindDecryption:
		return "decryption_error"
	default:
		return "unknown"
	}
}

// Error is the typed result every failure path maps to. Retryable is
// only meaningful for KindRefreshFailed.
type Error struct {
	Kind      Kind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("token: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the taxonomy kind from an error chain, or 0 when the
// error did not originate in this package.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

// NeedsConnect reports whether the caller should send the user through
// the authorization flow. Decryption failures count: the stored
// credential is unusable either way.
func NeedsConnect(err error) bool {
	switch KindOf(err) {
	case KindAuthRequired, KindInteractionRequired, KindDecryption:
		return true
	}
	return false
}

// Retryable reports whether the failure is transient.
func Retryable(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == KindRefreshFailed && te.Retryable
	}
	return false
}
