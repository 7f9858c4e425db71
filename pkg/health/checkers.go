package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines. Display sockets cost two goroutines each, so size it with the
// expected screen count in mind.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// CapacityCheck fails when count reports more than limit items, e.g. open
// terminal sessions.
func CapacityCheck(what string, count func() int, limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := count(); n > limit {
			return errors.Errorf("%d %s exceeds limit %d", n, what, limit)
		}
		return nil
	}
}
