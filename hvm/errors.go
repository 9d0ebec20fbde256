package hvm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStackUnderflow    = errors.New("stack underflow")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrInvalidSlot       = errors.New("invalid slot")
	ErrUnknownProperty   = errors.New("unknown property")
	ErrUnresolvedAddress = errors.New("unresolved address")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrNativeContract    = errors.New("native contract violated")
	ErrCallDepthExceeded = errors.New("call depth exceeded")
	ErrMissingNative     = errors.New("native function missing")
	ErrBadOperand        = errors.New("bad operand")
)

// Error is a fatal execution failure.
type Error struct {
	Func string
	PC   int
	Op   OpCode
	Kind Kind // kind of the offending value, KindInvalid if none
	Err  error
}

var _ error = new(Error)

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at %s:%d", e.Op, e.Func, e.PC)
	if e.Kind != KindInvalid {
		fmt.Fprintf(&b, " (%s)", e.Kind)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// kindError carries the kind of the value that caused err.
type kindError struct {
	kind Kind
	err  error
}

func (k *kindError) Error() string {
	return k.err.Error()
}

func (k *kindError) Unwrap() error {
	return k.err
}

func withKind(v any, err error) error {
	return &kindError{
		kind: KindOf(v),
		err:  err,
	}
}

func mismatch(values ...Sized) error {
	kinds := make([]string, 0, len(values))
	for _, v := range values {
		kinds = append(kinds, KindOf(v).String())
	}
	var offending any
	if len(values) > 0 {
		offending = values[len(values)-1]
	}
	return withKind(offending, fmt.Errorf("%w: %s", ErrTypeMismatch, strings.Join(kinds, ", ")))
}

func wrapError(fn *Function, pc int, op OpCode, err error) error {
	var e *Error
	if errors.As(err, &e) {
		// already attributed by a nested call
		return err
	}
	ret := &Error{
		Func: fn.Name,
		PC:   pc,
		Op:   op,
		Err:  err,
	}
	var k *kindError
	if errors.As(err, &k) {
		ret.Kind = k.kind
	}
	return ret
}
