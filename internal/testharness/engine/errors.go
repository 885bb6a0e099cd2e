package engine

import (
	"errors"
	"io"
	"net"

	"github.com/atcase/atcase-go/pkg/transport"
)

// Engine errors.
var (
	ErrRunInProgress    = errors.New("run in progress")
	ErrNoTransport      = errors.New("no transport configured")
	ErrTimeout          = errors.New("timed out waiting for response")
	ErrURCTimeout       = errors.New("timed out waiting for URC")
	ErrTerminalResponse = errors.New("device reported failure")
	ErrOperatorDeclined = errors.New("operator declined")
	ErrPaused           = errors.New("run paused")
	ErrJumpTarget       = errors.New("jump target not found")
	ErrTooManyJumps     = errors.New("jump limit reached")
)

// ErrorKind classifies failures for reporting and policy decisions.
type ErrorKind int

const (
	// ErrKindAssertion means the device did not respond as expected.
	ErrKindAssertion ErrorKind = iota
	// ErrKindConfiguration means the case itself is wrong (bad regex,
	// unknown jump target). Never retried.
	ErrKindConfiguration
	// ErrKindTransport means sending or receiving failed.
	ErrKindTransport
	// ErrKindOperator means the operator declined to go on. Always terminal.
	ErrKindOperator
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindAssertion:
		return "assertion"
	case ErrKindConfiguration:
		return "configuration"
	case ErrKindTransport:
		return "transport"
	case ErrKindOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ErrorKind) UnmarshalText(b []byte) error {
	*k = ParseErrorKind(string(b))
	return nil
}

// ParseErrorKind converts a kind name back to an ErrorKind. Unknown names
// map to ErrKindAssertion.
func ParseErrorKind(s string) ErrorKind {
	switch s {
	case "configuration":
		return ErrKindConfiguration
	case "transport":
		return ErrKindTransport
	case "operator":
		return ErrKindOperator
	default:
		return ErrKindAssertion
	}
}

// ClassifiedError wraps an error with its kind.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Configuration wraps an error as a configuration error.
func Configuration(err error) error {
	return &ClassifiedError{Kind: ErrKindConfiguration, Err: err}
}

// Assertion wraps an error as an assertion failure.
func Assertion(err error) error {
	return &ClassifiedError{Kind: ErrKindAssertion, Err: err}
}

// TransportError wraps an error as a transport error.
func TransportError(err error) error {
	return &ClassifiedError{Kind: ErrKindTransport, Err: err}
}

// OperatorCancellation wraps an error as an operator cancellation.
func OperatorCancellation(err error) error {
	return &ClassifiedError{Kind: ErrKindOperator, Err: err}
}

// KindOf extracts the error kind. Unclassified I/O errors are transport
// errors; anything else is an assertion failure.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if isIOError(err) {
		return ErrKindTransport
	}
	return ErrKindAssertion
}

func isIOError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, transport.ErrNotConnected) {
		return true
	}
	var netErr *net.OpError
	return errors.As(err, &netErr)
}
