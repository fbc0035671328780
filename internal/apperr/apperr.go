// Package apperr defines the failure kinds shared by the transport, the
// synchronizers and the daemon API.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure by how callers must react to it.
type Kind string

const (
	// AuthExpired means the platform session is no longer valid; the user has
	// to log in again.
	AuthExpired Kind = "auth_expired"
	// TokenUnavailable means the token issuer returned no channel credential.
	// The connection attempt is abandoned until the next trigger.
	TokenUnavailable Kind = "token_unavailable"
	// NetworkFailure covers failed fetches and failed channel opens.
	NetworkFailure Kind = "network_failure"
	// MalformedFrame is an unparseable server push. Never reaches UI state.
	MalformedFrame Kind = "malformed_frame"
	// ConnectionTimeout means a token fetch, history fetch or handshake did not
	// complete within its deadline.
	ConnectionTimeout Kind = "connection_timeout"
)

// Sentinels for errors.Is comparisons.
var (
	ErrAuthExpired       = &Error{Kind: AuthExpired}
	ErrTokenUnavailable  = &Error{Kind: TokenUnavailable}
	ErrNetworkFailure    = &Error{Kind: NetworkFailure}
	ErrMalformedFrame    = &Error{Kind: MalformedFrame}
	ErrConnectionTimeout = &Error{Kind: ConnectionTimeout}
)

// Error is a classified failure of a named operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with
// errors.Is regardless of Op and the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an *Error of the given kind.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Transient reports whether err is worth retrying on the next reconnection
// trigger.
func Transient(err error) bool {
	switch KindOf(err) {
	case TokenUnavailable, NetworkFailure, ConnectionTimeout:
		return true
	}
	return false
}

// FromIO classifies an I/O error: deadline overruns become ConnectionTimeout,
// everything else NetworkFailure. Already classified errors pass through.
func FromIO(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(ConnectionTimeout, op, err)
	}
	return New(NetworkFailure, op, err)
}
