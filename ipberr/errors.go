// Package ipberr defines the typed error taxonomy shared across the routing
// fabric. It follows the same semantic-vs-failure split iox uses for queue
// backpressure (iox.IsSemantic, iox.IsNonFailure), layering a richer,
// domain-specific Kind on top.
package ipberr

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// Kind is a typed error category. Every fallible control-plane operation
// returns an *Error carrying one of these, never a bare string.
type Kind uint8

const (
	// InvalidArgument covers malformed patterns, bad configuration, and
	// zero/oversized capacities.
	InvalidArgument Kind = iota
	// NotFound covers lookups on an unknown sink/scoop/rule id.
	NotFound
	// AlreadyExists covers duplicate registration ids.
	AlreadyExists
	// Unavailable covers entries that are UNHEALTHY or disabled.
	Unavailable
	// QueueFull is returned only when the drop policy is Block or Reject.
	QueueFull
	// DeadlineExceeded covers EDF submissions timed out during shutdown, or
	// sink writes that exceeded their deadline.
	DeadlineExceeded
	// PatternUnsafe is a ReDoS validator rejection.
	PatternUnsafe
	// PatternCompileTimeout is a pattern compilation deadline overrun.
	PatternCompileTimeout
	// Cancelled covers operations rejected because shutdown is in progress.
	Cancelled
	// InternalError covers invariant violations that should be unreachable.
	InternalError
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case Unavailable:
		return "unavailable"
	case QueueFull:
		return "queue_full"
	case DeadlineExceeded:
		return "deadline_exceeded"
	case PatternUnsafe:
		return "pattern_unsafe"
	case PatternCompileTimeout:
		return "pattern_compile_timeout"
	case Cancelled:
		return "cancelled"
	case InternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Error is the concrete typed error every control-plane operation returns.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ipb: %s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("ipb: %s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a typed Error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs a typed Error around an underlying cause.
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsSemantic reports whether err is a control-flow signal rather than a
// failure — QueueFull (caller should back off and retry) and Cancelled
// (shutdown in progress) are semantic in the same sense iox.IsSemantic
// classifies ErrWouldBlock.
func IsSemantic(err error) bool {
	return Is(err, QueueFull) || Is(err, Cancelled) || iox.IsSemantic(err)
}

// QueueFullFrom wraps a lock-free queue's ErrWouldBlock as a typed QueueFull
// error, preserving iox.IsWouldBlock/IsSemantic classification up the stack
// via Unwrap.
func QueueFullFrom(op string, err error) *Error {
	return Wrap(QueueFull, op, "queue is full", err)
}
