package sea

import (
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrReusePortUnsupported means the OS rejected SO_REUSEPORT on the
// reservation socket. Without it every worker past the first would fail
// to bind, so startup must abort instead of degrading to a single
// listener. The target platform must support SO_REUSEPORT semantics
// where incoming connections are distributed between all listeners
// bound to the same address.
var ErrReusePortUnsupported = errors.New("SO_REUSEPORT rejected by the OS")

// ReleaseFunc closes the reservation socket. Only the first call closes;
// the rest are no-ops.
type ReleaseFunc func() error

// ReservePort binds host:port with SO_REUSEPORT set and verified, and
// keeps the socket open so that the address stays bindable for every
// worker process for the whole spawn loop. The reservation only binds,
// it never listens: a listening socket would join the reuse-port group
// and the kernel would route a share of incoming connections into its
// backlog, where nothing ever accepts them. Workers open their own
// listeners on the same address.
//
// Port 0 is resolved to an OS-assigned ephemeral port, which is returned.
// The returned release must be called after all workers have exited.
func ReservePort(host string, port int) (int, ReleaseFunc, error) {
	addr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return 0, nil, errors.Wrap(err, "unable to resolve address")
	}

	ip := addr.IP
	if ip == nil {
		ip = net.IPv4zero
	}

	domain := unix.AF_INET
	if ip.To4() == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, nil, errors.Wrap(err, "unable to open reservation socket")
	}

	if err = applyReusePort(fd); err != nil {
		_ = unix.Close(fd)
		return 0, nil, err
	}

	if err = unix.Bind(fd, sockaddr(domain, ip, addr.Port)); err != nil {
		_ = unix.Close(fd)
		return 0, nil, errors.Wrap(err, "unable to reserve address")
	}

	bound, err := boundPort(fd)
	if err != nil {
		_ = unix.Close(fd)
		return 0, nil, err
	}

	var once sync.Once
	release := func() error {
		var closeErr error
		once.Do(func() { closeErr = unix.Close(fd) })
		return closeErr
	}

	return bound, release, nil
}

func sockaddr(domain int, ip net.IP, port int) unix.Sockaddr {
	if domain == unix.AF_INET {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip.To4())
		return sa
	}

	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa
}

// boundPort reads the effective port back from the socket, which is the
// only way to learn the OS choice for port 0.
func boundPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, errors.Wrap(err, "unable to read bound address")
	}

	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return sa.Port, nil
	case *unix.SockaddrInet6:
		return sa.Port, nil
	}
	return 0, errors.New("unexpected socket address family")
}

// applyReusePort enables SO_REUSEPORT on the socket and reads the
// option back to make sure the OS actually accepted it.
func applyReusePort(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return errors.Wrap(ErrReusePortUnsupported, err.Error())
	}

	val, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT)
	if err != nil {
		return errors.Wrap(err, "unable to read SO_REUSEPORT back")
	}
	if val == 0 {
		return ErrReusePortUnsupported
	}
	return nil
}

// setReusePort is the `net.ListenConfig.Control` hook for the workers'
// own serving listeners.
func setReusePort(_, _ string, conn syscall.RawConn) error {
	var sockErr error

	err := conn.Control(func(fd uintptr) {
		sockErr = applyReusePort(int(fd))
	})
	if err != nil {
		return err
	}
	return sockErr
}
