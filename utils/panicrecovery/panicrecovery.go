package panicrecovery

import (
	"context"
	"os"
	"runtime/debug"

	"go.uber.org/zap"
)

var osExit = os.Exit

// exit terminates the process once the packet filter was cleaned up.
var exit = osExit

// HandleEventualPanic recovers a panic of the goroutine it is deferred in,
// removes the packet filter state through cleanup and terminates the
// process. It must be called directly by defer.
func HandleEventualPanic(source string, cancel context.CancelFunc, cleanup func() error) {

	r := recover()
	if r == nil {
		return
	}

	if cancel != nil {
		// cancel other go routines
		cancel()
	}

	if cleanup != nil {
		zap.L().Info("Cleaning up packet filter")
		if err := cleanup(); err != nil {
			zap.L().Error("Failed to clean up packet filter", zap.Error(err))
		}
	}

	zap.L().Error("Panic in ", zap.String("source", source), zap.Any("panic", r))
	st := string(debug.Stack())
	zap.L().Error("panic", zap.String("stacktrace", st))

	exit(-1)
}
