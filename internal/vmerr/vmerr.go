// Package vmerr defines the interpreter's error model: a small set of
// runtime error kinds, each carrying the call-stack unwind trail active
// when it was raised. It follows the structured-error-with-stack shape the
// original compiler/VM error type used, generalized from source positions
// (meaningless once code is bytecode) to function/PC unwind frames, and
// wraps github.com/pkg/errors so every Error carries a captured stack trace
// alongside its KPL-level one.
package vmerr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies the five ways the interpreter can fail at runtime.
type Kind uint8

const (
	// BadValueOperation covers an operator applied to operand kinds it does
	// not support (spec's runtime_* dispatch falling through to its error
	// case), including an Object/Userdata with no matching overload
	// property, and calling a value that is not callable. An error raised
	// inside an overload itself is passed through with its own kind.
	BadValueOperation Kind = iota
	// IndexOutOfRange covers subscript/element access outside an Array's,
	// List's, or String's valid range.
	IndexOutOfRange
	// BadProperty covers calling an Object or Userdata that has no __call__
	// property. GET_PROP of an absent name reads Null and SET_PROP never
	// fails, so neither raises it.
	BadProperty
	// StackOverflow covers the call stack or register stack exceeding its
	// fixed capacity.
	StackOverflow
	// OutOfMemory covers the managed heap failing to make room for a new
	// allocation even after collection and capacity growth.
	OutOfMemory
)

func (k Kind) String() string {
	switch k {
	case BadValueOperation:
		return "BadValueOperation"
	case IndexOutOfRange:
		return "IndexOutOfRange"
	case BadProperty:
		return "BadProperty"
	case StackOverflow:
		return "StackOverflow"
	case OutOfMemory:
		return "OutOfMemory"
	default:
		return "UnknownError"
	}
}

// Frame identifies one active call-stack activation at the moment an error
// was raised: the function being run and the instruction it was executing.
type Frame struct {
	Function string
	PC       int
}

func (f Frame) String() string {
	return fmt.Sprintf("%s (pc=%d)", f.Function, f.PC)
}

// Error is the concrete error value every interpreter failure surfaces as.
type Error struct {
	Kind    Kind
	Message string
	Frames  []Frame
	cause   error
}

// New creates an Error of the given kind, capturing a stack trace via
// github.com/pkg/errors so the cause can be inspected in development even
// though the message shown to KPL callers is just Message.
func New(kind Kind, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		Kind:    kind,
		Message: msg,
		cause:   errors.New(msg),
	}
}

// Wrap attaches kind/message context to an underlying Go error (e.g. a
// Userdata host call failing), preserving it as the cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		Kind:    kind,
		Message: msg,
		cause:   errors.Wrap(cause, msg),
	}
}

// WithFrame records one more unwound call-stack activation, innermost
// first, as the error returns out of each activation to the host.
func (e *Error) WithFrame(function string, pc int) *Error {
	e.Frames = append(e.Frames, Frame{Function: function, PC: pc})
	return e
}

func (e *Error) Error() string {
	if len(e.Frames) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	for _, f := range e.Frames {
		fmt.Fprintf(&b, "\n\tat %s", f)
	}
	return b.String()
}

// Unwrap exposes the github.com/pkg/errors-wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// StackTrace forwards to the wrapped pkg/errors cause when it carries one,
// for diagnostic logging.
func (e *Error) StackTrace() errors.StackTrace {
	type tracer interface{ StackTrace() errors.StackTrace }
	if t, ok := e.cause.(tracer); ok {
		return t.StackTrace()
	}
	return nil
}
