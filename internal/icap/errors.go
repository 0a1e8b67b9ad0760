package icap

import (
	"errors"
	"fmt"
)

// Kind classifies an *Error for programmatic handling.
type Kind string

// Error kinds.
const (
	// KindConnection means the transport could not be established or dropped mid-exchange.
	KindConnection Kind = "connection_error"
	// KindTimeout means no complete response arrived before the exchange deadline.
	KindTimeout Kind = "timeout"
	// KindMalformedStatusLine means the response had no parseable status code.
	KindMalformedStatusLine Kind = "malformed_status_line"
	// KindNegotiationRejected means the OPTIONS exchange did not answer 200.
	KindNegotiationRejected Kind = "negotiation_rejected"
	// KindSubmissionRejected means the RESPMOD answer was neither 204 nor 200 with an infection header.
	KindSubmissionRejected Kind = "submission_rejected"
	// KindInvalidRequest means the ScanRequest could not be rendered.
	KindInvalidRequest Kind = "invalid_request"
)

// Sentinel errors for use with errors.Is. They match any *Error of the same Kind.
var (
	ErrConnection          = &Error{Kind: KindConnection, Message: "connection error"}
	ErrTimeout             = &Error{Kind: KindTimeout, Message: "exchange timed out"}
	ErrMalformedStatusLine = &Error{Kind: KindMalformedStatusLine, Message: "malformed status line"}
	ErrNegotiationRejected = &Error{Kind: KindNegotiationRejected, Message: "negotiation rejected"}
	ErrSubmissionRejected  = &Error{Kind: KindSubmissionRejected, Message: "submission rejected"}
	ErrInvalidRequest      = &Error{Kind: KindInvalidRequest, Message: "invalid scan request"}
)

// Error is the error type returned by every failing ICAP operation.
type Error struct {
	// Kind is the machine-readable classification.
	Kind Kind
	// Message is a human-readable description.
	Message string
	// StatusCode is the ICAP status code for rejected exchanges, 0 otherwise.
	StatusCode int
	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newConnectionError(msg string, cause error) *Error {
	return &Error{Kind: KindConnection, Message: msg, Cause: cause}
}

func newTimeoutError(msg string, cause error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Cause: cause}
}

func newMalformedStatusLineError(line string) *Error {
	return &Error{Kind: KindMalformedStatusLine, Message: fmt.Sprintf("malformed status line %q", line)}
}

func newNegotiationRejectedError(code int) *Error {
	return &Error{Kind: KindNegotiationRejected, Message: "OPTIONS: unrecognised status code in response", StatusCode: code}
}

func newSubmissionRejectedError(code int) *Error {
	return &Error{Kind: KindSubmissionRejected, Message: "RESPMOD: unrecognised status code in response", StatusCode: code}
}

func newInvalidRequestError(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

// KindOf returns the Kind of err, or the empty Kind when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusCodeOf returns the ICAP status code carried by err, or 0.
func StatusCodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsConnectionError reports whether err is or wraps a connection error.
func IsConnectionError(err error) bool {
	return KindOf(err) == KindConnection
}

// IsTimeoutError reports whether err is or wraps a timeout error.
func IsTimeoutError(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsRejected reports whether err is a negotiation or submission rejection.
func IsRejected(err error) bool {
	k := KindOf(err)
	return k == KindNegotiationRejected || k == KindSubmissionRejected
}
