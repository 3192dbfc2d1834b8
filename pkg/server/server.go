// Package server runs the session acceptor: the accept loop that pairs
// every incoming connection with a brand-new session root and serves the
// pair as an isolated unit of work.
package server

import (
	"context"
	"errors"
	"net"

	"github.com/marmos91/revfs/internal/logger"
	"github.com/marmos91/revfs/pkg/backend"
	"github.com/marmos91/revfs/pkg/protocol"
)

// Server accepts connections on a listening socket and dispatches one
// protocol session per connection.
//
// The listener is owned by the server for the process lifetime; it is
// never closed except via context cancellation at process teardown. Each
// session owns its connection and its root exclusively and releases both
// when its goroutine terminates, on every exit path.
type Server struct {
	listener net.Listener
	factory  backend.RootFactory
	engine   protocol.Engine
}

// New creates a server over an already-listening socket.
func New(listener net.Listener, factory backend.RootFactory, engine protocol.Engine) *Server {
	return &Server{
		listener: listener,
		factory:  factory,
		engine:   engine,
	}
}

// Addr reports the listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop indefinitely. Under normal operation it
// never returns; only closing the listener through context cancellation
// ends it.
//
// For every accepted connection a fresh session root is obtained
// synchronously on the accepting path, so per-session construction
// failures surface at a well-defined point, then the session is
// dispatched fire-and-forget: the next accept never waits for any
// previously dispatched session.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Debug("Error accepting connection: %v", err)
			continue
		}

		root, err := s.factory()
		if err != nil {
			logger.Error("Session root for %s: %v", conn.RemoteAddr(), err)
			conn.Close()
			continue
		}

		logger.Debug("Connection accepted from %s", conn.RemoteAddr())
		go s.serveSession(ctx, conn, root)
	}
}

// serveSession is the dispatch boundary of one session. Nothing escapes
// it: protocol-level failures are logged at debug level, anything else,
// panics included, is logged at error level. Either way the session is
// torn down and the accept loop keeps running.
func (s *Server) serveSession(ctx context.Context, conn net.Conn, root *backend.SessionRoot) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Session from %s panicked: %v", conn.RemoteAddr(), r)
		}
	}()

	err := s.engine.Serve(ctx, conn, root)
	switch {
	case err == nil:
		logger.Debug("Session from %s completed", conn.RemoteAddr())
	case protocol.IsProtocolError(err):
		logger.Debug("Session from %s failed: %v", conn.RemoteAddr(), err)
	default:
		logger.Error("Session from %s aborted: %v", conn.RemoteAddr(), err)
	}
}
