// Package errkind provides the error-kind taxonomy used across the sync
// engine (spec §7). Every fatal error surfaced to a caller carries a stable
// Kind alongside a human string and, where applicable, a chained cause.
package errkind

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies a category of error from the taxonomy in spec §7.
type Kind uint8

const (
	// Validation indicates an illegal path, a non-NFC path with
	// normalization disabled, an unreadable-permission file, or a reserved
	// name.
	Validation Kind = iota
	// Conflict indicates a three-way conflict blocking a sync.
	Conflict
	// LockContended indicates another lock holder is present and is not
	// stale.
	LockContended
	// LockStaleReclaimFailed indicates a concurrent reclamation race was
	// lost.
	LockStaleReclaimFailed
	// Transport indicates a network or I/O failure during transfer.
	Transport
	// RemoteCommit indicates the atomic commit operation on the remote
	// failed.
	RemoteCommit
	// ClientCommit indicates the local commit failed, potentially after a
	// successful remote commit.
	ClientCommit
	// Consistency indicates a post-crash inconsistency detected during a
	// startup scan.
	Consistency
	// CorruptedManifest indicates a JSON parse or schema failure for a
	// manifest, snapshot log, tag table, or lock record.
	CorruptedManifest
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case LockContended:
		return "lock_contended"
	case LockStaleReclaimFailed:
		return "lock_stale_reclaim_failed"
	case Transport:
		return "transport"
	case RemoteCommit:
		return "remote_commit"
	case ClientCommit:
		return "client_commit"
	case Consistency:
		return "consistency"
	case CorruptedManifest:
		return "corrupted_manifest"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carrying a Kind, a human message, and an
// optional chained cause. It is recoverable via errors.As.
type Error struct {
	// Kind is the stable error category.
	Kind Kind
	// Message is a human-readable description.
	Message string
	// Cause is the underlying error, if any.
	Cause error
	// RecoveryHint indicates the failure is non-fatal in the sense that a
	// subsequent operation can resolve it (used for ClientCommit failures
	// that occur after a successful RemoteCommit, per spec §7).
	RecoveryHint bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new *Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new *Error wrapping cause with the given kind and message.
// The cause is wrapped with github.com/pkg/errors so that it retains a
// stack trace even when the concrete error type being wrapped provides
// none.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, Cause: errors.WithStack(cause)}
}

// Wrapf is like Wrap but formats the message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return Wrap(kind, cause, fmt.Sprintf(format, args...))
}

// Recoverable marks an *Error as carrying a recovery hint (spec §7:
// "client_commit failure after remote_commit success: surface with a
// recovery hint").
func Recoverable(kind Kind, cause error, message string) *Error {
	err := Wrap(kind, cause, message)
	err.RecoveryHint = true
	return err
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
