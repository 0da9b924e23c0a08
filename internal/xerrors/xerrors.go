// Package xerrors attaches call-site information to errors so structured
// logs can point at where a failure was created or wrapped.
//
// New/Newf capture a full stack. Wrap/Wrapf record only the caller's PC,
// which is enough to build a link per hop in the error chain. Both keep
// errors.Is and errors.As working through Unwrap.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

type withStack struct {
	err error
	pcs []uintptr
}

func (w *withStack) Error() string       { return w.err.Error() }
func (w *withStack) Unwrap() error       { return w.err }
func (w *withStack) StackPCs() []uintptr { return w.pcs }

type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrapped) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
func (w *wrapped) PC() uintptr   { return w.pc }

// skip counts frames above runtime.Callers
func stack(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+1, pcs)
	return pcs[:n]
}

func caller(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+1, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func New(msg string) error {
	return &withStack{err: errors.New(msg), pcs: stack(2)}
}

func Newf(format string, args ...any) error {
	return &withStack{err: fmt.Errorf(format, args...), pcs: stack(2)}
}

// WithStack attaches the current stack to err. nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &withStack{err: err, pcs: stack(2)}
}

// EnsureTrace is WithStack unless some error in the chain already carries a stack.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return &withStack{err: err, pcs: stack(2)}
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: caller(2)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: caller(2)}
}
