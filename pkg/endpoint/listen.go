package endpoint

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Listen binds the endpoint and puts it in listening state with the fixed
// backlog. The raw socket is created through the unix package so the
// backlog is explicit, then wrapped via net.FileListener so Accept
// integrates with the runtime poller.
//
// The returned listener is owned by the caller for the process lifetime.
// Bind and listen failures are fatal to startup and are reported together
// with the offending URL.
func (e *Endpoint) Listen() (net.Listener, error) {
	switch e.Scheme {
	case SchemeFile:
		return e.listenFile()
	case SchemeTCP:
		return e.listenTCP()
	default:
		return nil, fmt.Errorf("unknown endpoint scheme %q in %q", e.Scheme, e.raw)
	}
}

func (e *Endpoint) listenFile() (net.Listener, error) {
	// A stale socket file from a previous run blocks bind. Its absence is
	// tolerated; any other removal failure is fatal and surfaces before
	// bind is attempted.
	if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: remove stale socket %s: %w", e.raw, e.Path, err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: create socket: %w", e.raw, err)
	}
	unix.CloseOnExec(fd)

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: e.Path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: bind %s: %w", e.raw, e.Path, err)
	}

	return e.wrap(fd, e.Path)
}

func (e *Endpoint) listenTCP() (net.Listener, error) {
	addr, err := lookupIPv4(e.Host)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve host %s: %w", e.raw, e.Host, err)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: create socket: %w", e.raw, err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: set SO_REUSEADDR: %w", e.raw, err)
	}

	sa := &unix.SockaddrInet4{Port: e.Port, Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: bind %s:%d: %w", e.raw, e.Host, e.Port, err)
	}

	return e.wrap(fd, fmt.Sprintf("%s:%d", e.Host, e.Port))
}

// wrap puts the bound socket in listening state and hands it to the net
// package.
func (e *Endpoint) wrap(fd int, name string) (net.Listener, error) {
	if err := unix.Listen(fd, Backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: listen: %w", e.raw, err)
	}

	f := os.NewFile(uintptr(fd), name)
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("%s: wrap listener: %w", e.raw, err)
	}
	return ln, nil
}

func lookupIPv4(host string) ([4]byte, error) {
	var addr [4]byte

	if ip := net.ParseIP(host); ip != nil {
		ip4 := ip.To4()
		if ip4 == nil {
			return addr, fmt.Errorf("%s is not an IPv4 address", host)
		}
		copy(addr[:], ip4)
		return addr, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return addr, err
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			copy(addr[:], ip4)
			return addr, nil
		}
	}
	return addr, fmt.Errorf("no IPv4 address for %s", host)
}
