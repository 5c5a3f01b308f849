package record

import (
	"fmt"

	"github.com/batchatco/go-thrower"
)

// Various kinds of assertions

// Throws err with the formatted detail if condition isn't met
func assertError(condition bool, err error, format string, v ...any) {
	if condition {
		return
	}
	failError(err, format, v...)
}

// Throws always, wrapping err with the formatted detail
func failError(err error, format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	logger.Info(msg)
	thrower.Throw(fmt.Errorf("%w: %s", err, msg))
	panic("never gets here")
}
