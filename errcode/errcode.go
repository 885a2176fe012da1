package errcode

import "errors"

// Code is a stable, wire-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	Busy          Code = "busy"
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"
	Timeout       Code = "timeout"

	// Camera state machine
	NotPowered     Code = "not_powered"
	NotInitialised Code = "not_initialised"
	NotCaptured    Code = "not_captured"
	SensorError    Code = "sensor_error"

	// Frame persistence
	NoEndMarker Code = "no_end_marker"

	// Question index
	OutOfRange  Code = "out_of_range"
	StaleIndex  Code = "stale_index"
	TableFull   Code = "table_full"
	LineTooLong Code = "line_too_long"

	// Storage
	OpenFailed Code = "open_failed"
	IOError    Code = "io_error"
	NoMedia    Code = "no_media"

	// Protocol
	MalformedFrame Code = "malformed_frame"
	Rejected       Code = "rejected" // the device answered NAK

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap returns nil when err is nil, otherwise an *E with code c.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// Of extracts the outermost Code from an error chain, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch x := e.(type) {
		case Code:
			return x
		case coder:
			return x.Code()
		}
	}
	return Error
}

// Is reports whether err carries code c anywhere in its chain.
func Is(err error, c Code) bool { return Of(err) == c }
