package server

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/revfs/pkg/backend"
	"github.com/marmos91/revfs/pkg/backend/memory"
	"github.com/marmos91/revfs/pkg/protocol"
)

// commandEngine reads a single command byte per session: 'F' fails the
// conversation, 'P' panics, anything else is echoed back and the session
// completes cleanly.
type commandEngine struct {
	mu    sync.Mutex
	roots []*backend.SessionRoot
}

func (e *commandEngine) Serve(ctx context.Context, conn net.Conn, root *backend.SessionRoot) error {
	e.mu.Lock()
	e.roots = append(e.roots, root)
	e.mu.Unlock()

	buf := make([]byte, 1)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil
	}

	switch buf[0] {
	case 'F':
		return protocol.Errorf("session failed on command")
	case 'P':
		panic("session panic on command")
	default:
		_, _ = conn.Write(buf)
		return nil
	}
}

func (e *commandEngine) sessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.roots)
}

func startServer(t *testing.T, engine protocol.Engine, factory backend.RootFactory) (*Server, context.CancelFunc) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(ln, factory, engine)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()

	t.Cleanup(cancel)
	return srv, cancel
}

func countingFactory(inner backend.RootFactory, calls *int32, mu *sync.Mutex) backend.RootFactory {
	return func() (*backend.SessionRoot, error) {
		mu.Lock()
		*calls++
		mu.Unlock()
		return inner()
	}
}

func TestFactoryCalledOncePerConnection(t *testing.T) {
	engine := &commandEngine{}
	var calls int32
	var mu sync.Mutex
	factory := countingFactory(backend.NewFactory(memory.New()), &calls, &mu)

	srv, _ := startServer(t, engine, factory)

	const n = 5
	for i := 0; i < n; i++ {
		conn, err := net.Dial("tcp", srv.Addr().String())
		require.NoError(t, err)

		_, err = conn.Write([]byte{'x'})
		require.NoError(t, err)

		buf := make([]byte, 1)
		_, err = io.ReadFull(conn, buf)
		require.NoError(t, err)
		conn.Close()
	}

	require.Eventually(t, func() bool {
		return engine.sessionCount() == n
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.EqualValues(t, n, calls, "factory must be invoked exactly once per connection")
	mu.Unlock()

	// Every session got its own root: no sharing, no reuse.
	seen := map[*backend.SessionRoot]bool{}
	engine.mu.Lock()
	for _, root := range engine.roots {
		require.False(t, seen[root], "session root reused across sessions")
		seen[root] = true
	}
	engine.mu.Unlock()
}

func TestSessionFailureIsolation(t *testing.T) {
	engine := &commandEngine{}
	srv, _ := startServer(t, engine, backend.NewFactory(memory.New()))

	// First session fails at the protocol level.
	failing, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer failing.Close()
	_, err = failing.Write([]byte{'F'})
	require.NoError(t, err)

	// A concurrently accepted session still completes normally.
	ok, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer ok.Close()
	_, err = ok.Write([]byte{'y'})
	require.NoError(t, err)

	ok.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = io.ReadFull(ok, buf)
	require.NoError(t, err, "healthy session must complete despite the failed one")
	require.Equal(t, byte('y'), buf[0])
}

func TestSessionPanicIsolation(t *testing.T) {
	engine := &commandEngine{}
	srv, _ := startServer(t, engine, backend.NewFactory(memory.New()))

	panicking, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer panicking.Close()
	_, err = panicking.Write([]byte{'P'})
	require.NoError(t, err)

	// The accept loop survives the panicking session.
	next, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer next.Close()
	_, err = next.Write([]byte{'z'})
	require.NoError(t, err)

	next.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = io.ReadFull(next, buf)
	require.NoError(t, err)
	require.Equal(t, byte('z'), buf[0])
}

func TestServeReturnsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(ln, backend.NewFactory(memory.New()), &commandEngine{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
