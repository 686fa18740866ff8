package device

import (
	"errors"

	"github.com/ezrec/halrt/status"
	"github.com/ezrec/halrt/translate"
)

var f = translate.From

var logf = translate.Logf

// Status is the outcome value passed to completion callbacks.
type Status = status.Status

var (
	// Device errors
	ErrUnsupported = errors.New(f("unsupported device operation"))
)

// ErrInvalidTimerCount is reported for a count beyond the counter width.
type ErrInvalidTimerCount struct {
	Count    Ticks
	MaxCount Ticks
}

func (err *ErrInvalidTimerCount) Error() string {
	return f("invalid timer count %v, max count is %v", uint32(err.Count), uint32(err.MaxCount))
}
