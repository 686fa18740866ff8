package driver

import (
	"errors"

	"github.com/ezrec/halrt/translate"
)

var f = translate.From

var logf = translate.Logf

var (
	// Synchronous driver failures
	ErrStartAsyncOpFailure  = errors.New(f("failed to start asynchronous operation"))
	ErrCancelAsyncOpFailure = errors.New(f("failed to cancel asynchronous operation"))
)

// ErrAsyncOp is a rejected start or cancel request, with the reason.
type ErrAsyncOp struct {
	Op     string
	Reason string
	Err    error
}

func (err *ErrAsyncOp) Error() string {
	return f("%v: %v: %v", err.Op, err.Err, err.Reason)
}

func (err *ErrAsyncOp) Unwrap() error {
	return err.Err
}

func startFailure(op string, reason string) error {
	return &ErrAsyncOp{Op: op, Reason: reason, Err: ErrStartAsyncOpFailure}
}

func cancelFailure(op string, reason string) error {
	return &ErrAsyncOp{Op: op, Reason: reason, Err: ErrCancelAsyncOpFailure}
}
