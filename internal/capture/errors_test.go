package capture

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestConnectErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("dial tcp: connection refused")
	err := error(&ConnectError{Addr: "10.0.0.5:8000", Err: inner})

	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("errors.As failed for ConnectError")
	}
	if ce.Addr != "10.0.0.5:8000" {
		t.Fatalf("Addr = %q", ce.Addr)
	}
	if !errors.Is(err, inner) {
		t.Fatalf("wrapped error not reachable via errors.Is")
	}
}

func TestReadErrorUnwrap(t *testing.T) {
	err := error(&ReadError{Err: io.ErrUnexpectedEOF})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("wrapped error not reachable via errors.Is")
	}
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("errors.As failed for ReadError")
	}
}

func TestEndOfStreamIsSentinel(t *testing.T) {
	if !errors.Is(ErrEndOfStream, ErrEndOfStream) {
		t.Fatalf("sentinel comparison failed")
	}
	if errors.Is(&ReadError{Err: io.EOF}, ErrEndOfStream) {
		t.Fatalf("ReadError must not match the end-of-stream sentinel")
	}
}
