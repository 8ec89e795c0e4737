//go:build linux

package core

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// =============================================================================
// I/O adapters: cooperative wrappers around non-blocking descriptors
// =============================================================================

// FileAdapter turns a file descriptor into cooperative I/O: operations that
// would block suspend the calling task on a poll trap and retry once the
// kernel reports readiness. The descriptor is switched to non-blocking mode
// on construction.
//
// Readiness is advisory, so every operation retries in a loop.
type FileAdapter struct {
	kernel *Kernel
	fd     int
}

// NewFileAdapter wraps fd. The caller transfers ownership; Close both
// detaches the fd from the kernel and closes it.
func NewFileAdapter(kernel *Kernel, fd int) (*FileAdapter, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("set nonblock fd=%d: %w", fd, err)
	}
	return &FileAdapter{kernel: kernel, fd: fd}, nil
}

// FD returns the wrapped descriptor.
func (a *FileAdapter) FD() int {
	return a.fd
}

// Read reads into buf, suspending until data is available. It returns
// io.EOF at end of file.
func (a *FileAdapter) Read(tc *TaskContext, buf []byte) (int, error) {
	for {
		n, err := unix.Read(a.fd, buf)
		switch {
		case err == nil && n == 0 && len(buf) > 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if pollErr := tc.PollRead(a.fd); pollErr != nil {
				return 0, pollErr
			}
		default:
			return 0, fmt.Errorf("read fd=%d: %w", a.fd, err)
		}
	}
}

// Write writes all of buf, suspending whenever the descriptor is not
// writable. It returns the number of bytes written, which is len(buf)
// unless an error occurred.
func (a *FileAdapter) Write(tc *TaskContext, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Write(a.fd, buf[total:])
		switch {
		case err == nil:
			total += n
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if pollErr := tc.PollWrite(a.fd); pollErr != nil {
				return total, pollErr
			}
		default:
			return total, fmt.Errorf("write fd=%d: %w", a.fd, err)
		}
	}
	return total, nil
}

// Close detaches the descriptor from the kernel, waking any tasks polling
// it, and then closes it. Must be called on the kernel goroutine; use
// Kernel.NotifyClose from other threads.
func (a *FileAdapter) Close() error {
	a.kernel.CloseFD(a.fd)
	if err := unix.Close(a.fd); err != nil {
		return fmt.Errorf("close fd=%d: %w", a.fd, err)
	}
	return nil
}

// SocketAdapter extends FileAdapter with socket operations.
type SocketAdapter struct {
	FileAdapter
}

// NewSocketAdapter wraps a socket descriptor.
func NewSocketAdapter(kernel *Kernel, fd int) (*SocketAdapter, error) {
	file, err := NewFileAdapter(kernel, fd)
	if err != nil {
		return nil, err
	}
	return &SocketAdapter{FileAdapter: *file}, nil
}

// Bind binds the socket to addr.
func (a *SocketAdapter) Bind(addr unix.Sockaddr) error {
	if err := unix.Bind(a.fd, addr); err != nil {
		return fmt.Errorf("bind fd=%d: %w", a.fd, err)
	}
	return nil
}

// Listen marks the socket as accepting connections.
func (a *SocketAdapter) Listen(backlog int) error {
	if err := unix.Listen(a.fd, backlog); err != nil {
		return fmt.Errorf("listen fd=%d: %w", a.fd, err)
	}
	return nil
}

// Accept suspends until a connection arrives and returns an adapter wrapping
// the accepted socket, created non-blocking and close-on-exec.
func (a *SocketAdapter) Accept(tc *TaskContext) (*SocketAdapter, unix.Sockaddr, error) {
	for {
		connFD, addr, err := unix.Accept4(a.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			conn, wrapErr := NewSocketAdapter(a.kernel, connFD)
			if wrapErr != nil {
				unix.Close(connFD)
				return nil, nil, wrapErr
			}
			return conn, addr, nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN, err == unix.ECONNABORTED:
			if pollErr := tc.PollRead(a.fd); pollErr != nil {
				return nil, nil, pollErr
			}
		default:
			return nil, nil, fmt.Errorf("accept fd=%d: %w", a.fd, err)
		}
	}
}

// Connect initiates a connection and suspends until it finishes. The
// connection outcome is read back with SO_ERROR, as an in-progress connect
// reports completion via writability.
func (a *SocketAdapter) Connect(tc *TaskContext, addr unix.Sockaddr) error {
	for {
		err := unix.Connect(a.fd, addr)
		switch {
		case err == nil:
			return nil
		case err == unix.EINTR:
			continue
		case err == unix.EINPROGRESS, err == unix.EALREADY:
			if pollErr := tc.PollWrite(a.fd); pollErr != nil {
				return pollErr
			}
			soErr, optErr := unix.GetsockoptInt(a.fd, unix.SOL_SOCKET, unix.SO_ERROR)
			if optErr != nil {
				return fmt.Errorf("connect fd=%d: %w", a.fd, optErr)
			}
			if soErr != 0 {
				return fmt.Errorf("connect fd=%d: %w", a.fd, unix.Errno(soErr))
			}
			return nil
		case err == unix.EISCONN:
			return nil
		default:
			return fmt.Errorf("connect fd=%d: %w", a.fd, err)
		}
	}
}

// Recv receives into buf, suspending until data arrives. An orderly
// shutdown by the peer is reported as io.EOF.
func (a *SocketAdapter) Recv(tc *TaskContext, buf []byte) (int, error) {
	return a.Read(tc, buf)
}

// Send writes all of buf to the socket.
func (a *SocketAdapter) Send(tc *TaskContext, buf []byte) (int, error) {
	return a.Write(tc, buf)
}

// Shutdown shuts down the socket's read and/or write side.
func (a *SocketAdapter) Shutdown(how int) error {
	if err := unix.Shutdown(a.fd, how); err != nil {
		return fmt.Errorf("shutdown fd=%d: %w", a.fd, err)
	}
	return nil
}
