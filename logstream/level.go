package logstream

import (
	"strings"
)

//go:generate go tool stringer -type=Level

// Level is the severity of a log line.
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARNING
	ERROR
	FATAL
	NONE // Threshold that disables logging.
)

// ParseLevel returns the level with the given name, in any case.
func ParseLevel(name string) (level Level, err error) {
	for level = TRACE; level <= NONE; level++ {
		if strings.EqualFold(level.String(), name) {
			return
		}
	}

	err = ErrLevel(name)

	return
}
