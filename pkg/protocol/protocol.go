// Package protocol speaks the revfs wire protocol over an accepted byte
// stream.
//
// The session acceptor consumes the protocol engine as an opaque "serve
// this connection" operation: it hands the engine one connection and one
// session root and only interprets the success/failure outcome. Failures
// of the protocol conversation itself are reported as *Error so the
// acceptor can tell them apart from unexpected session errors.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/marmos91/revfs/pkg/backend"
)

// Engine serves one protocol session over an accepted connection.
//
// Serve blocks until the client disconnects, the conversation fails, or
// the context is cancelled. A nil return means a clean completion; an
// *Error return means a protocol-level failure; any other error is an
// unexpected session failure.
type Engine interface {
	Serve(ctx context.Context, conn net.Conn, root *backend.SessionRoot) error
}

// Error is a protocol-level failure, identified by its message string.
// It marks a session as failed without being propagated past the
// acceptor's dispatch boundary.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return e.Msg
}

// Errorf builds a protocol-level error.
func Errorf(format string, v ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, v...)}
}

// IsProtocolError reports whether err is a protocol-level failure.
func IsProtocolError(err error) bool {
	var perr *Error
	return errors.As(err, &perr)
}
