package capture

import (
	"errors"
	"fmt"
)

// ErrEndOfStream indicates the camera closed the stream cleanly. The
// caller is expected to tear down the connection and reconnect.
var ErrEndOfStream = errors.New("end of stream")

// ConnectError indicates the camera could not be reached. It is always
// retried with backoff and is never fatal.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ReadError indicates a mid-stream failure, including partial or corrupt
// frames from the capture layer. It triggers a reconnect.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read frame: %v", e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
