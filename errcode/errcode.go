package errcode

// Code is a stable status identifier for recoverable driver and stream
// conditions. It is a string newtype, comparable, allocation-free, and
// implements error. Programmer errors (refcount misuse, close-at-zero)
// are panics, never Codes.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK Code = "ok"

	// Stream/channel conditions.
	Timeout Code = "timeout" // wait budget exhausted before completion
	Reset   Code = "reset"   // underlying queue reset/torn down while waiting

	// Driver conditions.
	StartFailed  Code = "start_failed"  // peripheral refused to activate
	ConfigFailed Code = "config_failed" // configuration rejected by driver
	NotReady     Code = "not_ready"     // peripheral not in a usable state

	// Control pass-through.
	InvalidOp   Code = "invalid_op"  // reserved operation code zero
	Unsupported Code = "unsupported" // operation not implemented by driver

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
