// Package errs defines the typed failures that cross component boundaries in
// the signal-to-order pipeline and how they map onto HTTP responses.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	InvalidSignal       Kind = "invalid_signal"
	UpstreamUnavailable Kind = "upstream_unavailable"
	UpstreamTimeout     Kind = "upstream_timeout"
	UpstreamMalformed   Kind = "upstream_malformed"
	ExchangeRejected    Kind = "exchange_rejected"
	ZeroBalance         Kind = "zero_balance"
	SizeBelowMinimum    Kind = "size_below_minimum"
	InvalidMarketPrice  Kind = "invalid_market_price"
	SigningFailure      Kind = "signing_failure"
	TransportNotReady   Kind = "transport_not_ready"

	// Internal is reported for errors that carry no Kind.
	Internal Kind = "internal"
)

// HTTPStatus maps a kind onto the status returned to the webhook caller.
func (k Kind) HTTPStatus() int {
	if k == InvalidSignal {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Error is a failure tagged with its Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: ZeroBalance}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// New builds an Error with a formatted cause.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
