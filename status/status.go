// Package status describes the outcome of an asynchronous hardware operation.
package status

import (
	"errors"

	"github.com/ezrec/halrt/translate"
)

var f = translate.From

// ErrorKind is the closed set of operation outcomes.
type ErrorKind int

//go:generate go tool stringer -linecomment -type=ErrorKind
const (
	SUCCESS           = ErrorKind(0) // success
	ABORTED           = ErrorKind(1) // aborted
	FAILURE           = ErrorKind(2) // failure
	BUFFER_OVERFLOW   = ErrorKind(3) // buffer overflow
	HW_PROTOCOL_ERROR = ErrorKind(4) // hw protocol error
	TIMEOUT           = ErrorKind(5) // timeout
)

var (
	ErrAborted         = errors.New(f("operation aborted"))
	ErrFailure         = errors.New(f("operation failed"))
	ErrBufferOverflow  = errors.New(f("buffer full before read terminated"))
	ErrHwProtocolError = errors.New(f("hardware protocol error"))
	ErrTimeout         = errors.New(f("operation timed out"))
)

var kindErr = map[ErrorKind]error{
	ABORTED:           ErrAborted,
	FAILURE:           ErrFailure,
	BUFFER_OVERFLOW:   ErrBufferOverflow,
	HW_PROTOCOL_ERROR: ErrHwProtocolError,
	TIMEOUT:           ErrTimeout,
}

// Status is the immutable outcome handed to completion callbacks.
// The zero value is a success.
type Status struct {
	kind ErrorKind
}

// Common status values.
var (
	Success = Status{}
	Aborted = Status{kind: ABORTED}
)

// New returns the status for an outcome kind.
func New(kind ErrorKind) Status {
	return Status{kind: kind}
}

// Kind returns the outcome kind.
func (st Status) Kind() ErrorKind {
	return st.kind
}

// IsError is true for every outcome other than SUCCESS.
func (st Status) IsError() bool {
	return st.kind != SUCCESS
}

// Err returns nil on success, otherwise an error matching the kind's sentinel.
func (st Status) Err() (err error) {
	if !st.IsError() {
		return
	}

	err, ok := kindErr[st.kind]
	if !ok {
		err = &ErrUnknownKind{Kind: st.kind}
	}

	return
}

func (st Status) String() string {
	return st.kind.String()
}

// ErrUnknownKind is reported for a kind outside the closed set.
type ErrUnknownKind struct {
	Kind ErrorKind
}

func (err *ErrUnknownKind) Error() string {
	return f("unknown status kind %d", int(err.Kind))
}

func (err *ErrUnknownKind) Is(target error) bool {
	return target == ErrFailure
}
