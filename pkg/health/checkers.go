package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the process exceeds maxGoroutines, a cheap
// proxy for leaked handlers.
func GoroutineCountCheck(maxGoroutines int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > maxGoroutines {
			return errors.Errorf("too many goroutines: %d > %d", n, maxGoroutines)
		}
		return nil
	}
}
