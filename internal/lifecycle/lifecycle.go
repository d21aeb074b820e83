// Package lifecycle installs signal handling for the server binaries, per
// spec.md §4.7. It is grounded on
// sandia-minimega-minimega/src/minimega/main.go's own
// signal.Notify(os.Interrupt) + teardown() goroutine, generalized to: a
// bounded graceful-shutdown window, a second signal forcing an immediate
// exit, and guaranteed storage persistence on every exit path.
package lifecycle

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lutongjia9090/tinykv/internal/logging"
)

// Server is the subset of lineserver.Server/rpcserver.Server that Run
// needs: something with a blocking stop and nothing else. Declared locally
// so this package does not import either server package.
type Server interface {
	Stop() error
}

// Persister is implemented by storage engines that must flush on shutdown.
// storage.Engine.Close satisfies this for every engine (a no-op for the
// in-memory ones).
type Persister interface {
	Close() error
}

// exitFunc is os.Exit by default, overridable in tests so the forced-exit
// paths can be exercised without killing the test binary.
var exitFunc = os.Exit

// Run installs SIGINT/SIGTERM handlers and blocks until one arrives, then
// drives graceful shutdown: Stop() is called on a dedicated goroutine,
// bounded by timeout, after which the process force-exits. A second signal
// received during shutdown forces an immediate exit regardless of Stop's
// progress. storage is always Closed before returning or exiting, on every
// path, so file-backed persistence happens even on a forced exit.
//
// Run returns nil on a clean shutdown within timeout. It calls os.Exit
// directly on the forced paths (timeout, double signal) since there is no
// useful way to unwind further up the call stack at that point.
func Run(srv Server, storage Persister, timeout time.Duration) error {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	<-sig
	logging.Infof("lifecycle: caught signal, shutting down (second signal forces immediate exit)")

	done := make(chan error, 1)
	go func() {
		done <- srv.Stop()
	}()

	select {
	case <-sig:
		logging.Warnf("lifecycle: second signal received, forcing exit")
		storage.Close()
		exitFunc(130)
	case err := <-done:
		if cerr := storage.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	case <-time.After(timeout):
		logging.Errorf("lifecycle: graceful shutdown exceeded %s, forcing exit", timeout)
		storage.Close()
		exitFunc(1)
	}
	return nil
}
