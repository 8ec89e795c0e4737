package core

import (
	"errors"
	"io"
	"testing"
	"time"
)

// TestBytesStream_ReadWaitsForWrite verifies reader suspension
// Given: A reader task on an empty stream
// When: A writer task appends bytes
// Then: The reader wakes and receives them
func TestBytesStream_ReadWaitsForWrite(t *testing.T) {
	kernel := newTestKernel(t)
	stream := NewBytesStream(kernel)

	kernel.Spawn(func(tc *TaskContext) (any, error) {
		if err := tc.Yield(); err != nil {
			return nil, err
		}
		if _, err := stream.Write([]byte("hello")); err != nil {
			return nil, err
		}
		return nil, nil
	})

	result, err := kernel.Run(func(tc *TaskContext) (any, error) {
		buf := make([]byte, 16)
		n, err := stream.Read(tc, buf)
		if err != nil {
			return nil, err
		}
		return string(buf[:n]), nil
	}, time.Second)

	if err != nil || result != "hello" {
		t.Fatalf("Read = (%v, %v), want (hello, nil)", result, err)
	}
}

// TestBytesStream_EOFAfterClose verifies drain-then-EOF semantics
func TestBytesStream_EOFAfterClose(t *testing.T) {
	kernel := newTestKernel(t)
	stream := NewBytesStream(kernel)

	if _, err := stream.Write([]byte("tail")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	stream.Close()
	stream.Close() // idempotent

	_, err := kernel.Run(func(tc *TaskContext) (any, error) {
		buf := make([]byte, 16)
		n, err := stream.Read(tc, buf)
		if err != nil {
			return nil, err
		}
		if string(buf[:n]) != "tail" {
			t.Errorf("Read = %q, want tail", buf[:n])
		}
		// Drained and closed: EOF now.
		if _, err := stream.Read(tc, buf); !errors.Is(err, io.EOF) {
			t.Errorf("Read after drain = %v, want io.EOF", err)
		}
		return nil, nil
	}, time.Second)

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

// TestBytesStream_ReadLine verifies line framing across partial writes
// Given: A writer delivering a line in two pieces plus an unterminated tail
// When: The reader calls ReadLine repeatedly
// Then: It gets the full line, then the tail, then io.EOF
func TestBytesStream_ReadLine(t *testing.T) {
	kernel := newTestKernel(t)
	stream := NewBytesStream(kernel)

	kernel.Spawn(func(tc *TaskContext) (any, error) {
		stream.Write([]byte("hel"))
		if err := tc.Yield(); err != nil {
			return nil, err
		}
		stream.Write([]byte("lo\nworld"))
		stream.Close()
		return nil, nil
	})

	_, err := kernel.Run(func(tc *TaskContext) (any, error) {
		line, err := stream.ReadLine(tc)
		if err != nil || string(line) != "hello\n" {
			t.Errorf("first line = (%q, %v), want (hello\\n, nil)", line, err)
		}
		line, err = stream.ReadLine(tc)
		if err != nil || string(line) != "world" {
			t.Errorf("tail = (%q, %v), want (world, nil)", line, err)
		}
		if _, err = stream.ReadLine(tc); !errors.Is(err, io.EOF) {
			t.Errorf("after EOF = %v, want io.EOF", err)
		}
		return nil, nil
	}, time.Second)

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

// TestBytesStream_ReadNonblocking verifies the non-suspending read path
func TestBytesStream_ReadNonblocking(t *testing.T) {
	kernel := newTestKernel(t)
	stream := NewBytesStream(kernel)
	buf := make([]byte, 8)

	if n, err := stream.ReadNonblocking(buf); n != 0 || err != nil {
		t.Fatalf("empty open stream = (%d, %v), want (0, nil)", n, err)
	}
	stream.Write([]byte("abc"))
	if n, err := stream.ReadNonblocking(buf); n != 3 || err != nil {
		t.Fatalf("buffered read = (%d, %v), want (3, nil)", n, err)
	}
	stream.Close()
	if _, err := stream.ReadNonblocking(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("closed drained stream = %v, want io.EOF", err)
	}
}

// TestBytesStream_WriteAfterCloseFails verifies the closed-write guard
func TestBytesStream_WriteAfterCloseFails(t *testing.T) {
	kernel := newTestKernel(t)
	stream := NewBytesStream(kernel)
	stream.Close()

	if _, err := stream.Write([]byte("x")); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("Write after close = %v, want ErrStreamClosed", err)
	}
}

// TestBytesStream_CloseWakesBlockedReader verifies EOF delivery to a
// suspended reader
func TestBytesStream_CloseWakesBlockedReader(t *testing.T) {
	kernel := newTestKernel(t)
	stream := NewBytesStream(kernel)

	kernel.Spawn(func(tc *TaskContext) (any, error) {
		if err := tc.Yield(); err != nil {
			return nil, err
		}
		stream.Close()
		return nil, nil
	})

	_, err := kernel.Run(func(tc *TaskContext) (any, error) {
		buf := make([]byte, 4)
		if _, err := stream.Read(tc, buf); !errors.Is(err, io.EOF) {
			t.Errorf("Read = %v, want io.EOF", err)
		}
		return nil, nil
	}, time.Second)

	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}
