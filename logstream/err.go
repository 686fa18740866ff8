package logstream

import (
	"github.com/ezrec/halrt/translate"
)

var f = translate.From

var logf = translate.Logf

// ErrLevel is an unknown log level name.
type ErrLevel string

func (err ErrLevel) Error() string {
	return f("unknown log level %q", string(err))
}
