// Package shutdown installs the process-wide signal dispositions for the
// revfs server.
//
// Shutdown is deliberately abrupt: sessions are independent and disposable,
// so SIGINT and SIGTERM terminate the process immediately instead of
// draining in-flight connections. SIGPIPE is ignored so a session writing
// to an already-closed peer cannot kill the whole server.
package shutdown

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/revfs/internal/logger"
)

// Install registers the signal handlers. It must be called before the
// acceptor starts serving.
func Install() {
	signal.Ignore(syscall.SIGPIPE)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received %s, shutting down", sig)
		os.Exit(1)
	}()
}
