package core

import (
	"bytes"
	"errors"
	"io"
)

// ErrStreamClosed is returned when writing to a closed stream.
var ErrStreamClosed = errors.New("stream is closed")

// BytesStream is an unbounded in-memory pipe between tasks of one kernel:
// writers append, readers suspend until bytes or EOF arrive. Kernel
// goroutine only; use a Future or adapter pipe to cross threads.
type BytesStream struct {
	gate   *Gate
	buffer bytes.Buffer
	closed bool
}

// NewBytesStream creates an empty open stream.
func NewBytesStream(kernel *Kernel) *BytesStream {
	return &BytesStream{gate: NewGate(kernel)}
}

// Read reads up to len(buf) bytes, suspending while the stream is empty and
// open. It returns io.EOF once the stream is closed and drained.
func (s *BytesStream) Read(tc *TaskContext, buf []byte) (int, error) {
	for s.buffer.Len() == 0 {
		if s.closed {
			return 0, io.EOF
		}
		if err := s.gate.Wait(tc); err != nil {
			return 0, err
		}
	}
	return s.buffer.Read(buf)
}

// ReadNonblocking reads up to len(buf) buffered bytes without suspending.
// It returns io.EOF on a closed, drained stream and (0, nil) on an empty
// open one.
func (s *BytesStream) ReadNonblocking(buf []byte) (int, error) {
	if s.buffer.Len() == 0 {
		if s.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	return s.buffer.Read(buf)
}

// ReadLine reads one newline-terminated line, suspending until a full line
// or EOF is buffered. The trailing newline is included. A final unterminated
// line is returned just before io.EOF.
func (s *BytesStream) ReadLine(tc *TaskContext) ([]byte, error) {
	for {
		if i := bytes.IndexByte(s.buffer.Bytes(), '\n'); i >= 0 {
			line := make([]byte, i+1)
			s.buffer.Read(line)
			return line, nil
		}
		if s.closed {
			if s.buffer.Len() == 0 {
				return nil, io.EOF
			}
			line := make([]byte, s.buffer.Len())
			s.buffer.Read(line)
			return line, nil
		}
		if err := s.gate.Wait(tc); err != nil {
			return nil, err
		}
	}
}

// Write appends data and wakes readers. Writing to a closed stream fails.
func (s *BytesStream) Write(data []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	n, _ := s.buffer.Write(data)
	if n > 0 {
		s.gate.Unblock()
	}
	return n, nil
}

// Close marks EOF. Buffered bytes remain readable; blocked readers wake up.
// Closing twice is a no-op.
func (s *BytesStream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.gate.Unblock()
}

// Len returns the number of buffered, unread bytes.
func (s *BytesStream) Len() int {
	return s.buffer.Len()
}

// IsClosed reports whether Close was called.
func (s *BytesStream) IsClosed() bool {
	return s.closed
}
