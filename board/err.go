package board

import (
	"errors"

	"github.com/ezrec/halrt/translate"
)

var f = translate.From

var (
	// Board description errors
	ErrLoggingUart = errors.New(f("logging_uart must name a declared uart"))
)

// ErrInvalidTimerId is the lookup of a timer the board does not have.
type ErrInvalidTimerId int

func (err ErrInvalidTimerId) Error() string {
	return f("invalid timer id %d", int(err))
}

// ErrInvalidUartId is the lookup of a uart the board does not have.
type ErrInvalidUartId int

func (err ErrInvalidUartId) Error() string {
	return f("invalid uart id %d", int(err))
}

// ErrDuplicateId is a resource declared twice.
type ErrDuplicateId struct {
	Kind string
	Id   int
}

func (err *ErrDuplicateId) Error() string {
	return f("%v %d declared twice", err.Kind, err.Id)
}

// ErrConfigValue is an out of range board setting.
type ErrConfigValue struct {
	Key   string
	Value int
}

func (err *ErrConfigValue) Error() string {
	return f("invalid %v value %d", err.Key, err.Value)
}

// ErrLoad locates a failure in a board description.
type ErrLoad struct {
	Name string
	Err  error
}

func (err *ErrLoad) Error() string {
	return f("%v: %v", err.Name, err.Err)
}

func (err *ErrLoad) Unwrap() error {
	return err.Err
}
