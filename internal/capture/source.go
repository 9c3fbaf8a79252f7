// Package capture wraps a single camera connection. Frames are pulled from
// the camera's TCP stream through an ffmpeg subprocess that re-emits every
// decoded frame as an uncompressed BMP on its stdout pipe, which keeps the
// server itself free of codec work.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"time"

	"golang.org/x/image/bmp"

	"github.com/streetwatch/streamserver/internal/logger"
	"github.com/streetwatch/streamserver/pkg/types"
)

const bmpFileHeaderSize = 14

// Source reads decoded frames from one camera.
type Source struct {
	addr       string
	ffmpegPath string

	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr bytes.Buffer
}

// NewSource creates a frame source for a camera reachable at host:port.
// ffmpegPath may be empty, in which case "ffmpeg" is resolved from PATH.
func NewSource(addr, ffmpegPath string) *Source {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Source{addr: addr, ffmpegPath: ffmpegPath}
}

// Connect starts the decode subprocess and blocks until the camera
// produces data. A camera that cannot be reached, or a subprocess that
// exits before emitting a frame, yields a ConnectError.
func (s *Source) Connect(ctx context.Context) error {
	url := "tcp://" + s.addr
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-i", url,
		"-c:v", "bmp",
		"-f", "image2pipe",
		"-",
	)
	s.stderr.Reset()
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ConnectError{Addr: s.addr, Err: err}
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		return &ConnectError{Addr: s.addr, Err: err}
	}

	s.cmd = cmd
	s.stdout = stdout
	s.reader = bufio.NewReaderSize(stdout, 1<<16)

	// Block until the first bytes arrive. If ffmpeg gives up on the
	// camera it exits without output and Peek returns EOF.
	if _, err := s.reader.Peek(2); err != nil {
		s.teardown()
		return &ConnectError{Addr: s.addr, Err: fmt.Errorf("no stream data: %w", err)}
	}

	logger.Info("Capture", "connected to %s", url)
	return nil
}

// ReadFrame reads and decodes the next frame. It returns ErrEndOfStream
// when the camera closes the stream and a ReadError on any mid-stream
// failure, including corrupt frame data.
func (s *Source) ReadFrame() (*types.Frame, error) {
	if s.reader == nil {
		return nil, &ReadError{Err: fmt.Errorf("source not connected")}
	}

	header := make([]byte, bmpFileHeaderSize)
	if _, err := io.ReadFull(s.reader, header); err != nil {
		if err == io.EOF {
			return nil, ErrEndOfStream
		}
		return nil, &ReadError{Err: err}
	}

	if header[0] != 'B' || header[1] != 'M' {
		return nil, &ReadError{Err: fmt.Errorf("bad frame header %q", header[:2])}
	}

	fileSize := binary.LittleEndian.Uint32(header[2:6])
	if fileSize <= bmpFileHeaderSize || fileSize > 64<<20 {
		return nil, &ReadError{Err: fmt.Errorf("implausible frame size %d", fileSize)}
	}

	body := make([]byte, fileSize-bmpFileHeaderSize)
	if _, err := io.ReadFull(s.reader, body); err != nil {
		return nil, &ReadError{Err: err}
	}

	img, err := bmp.Decode(bytes.NewReader(append(header, body...)))
	if err != nil {
		return nil, &ReadError{Err: err}
	}

	return &types.Frame{Image: toRGBA(img), Timestamp: time.Now()}, nil
}

// Close releases the connection. Safe to call on an unconnected source
// and after a failed connect.
func (s *Source) Close() error {
	s.teardown()
	return nil
}

func (s *Source) teardown() {
	if s.stdout != nil {
		s.stdout.Close()
		s.stdout = nil
	}
	if s.cmd != nil {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
		s.cmd = nil
	}
	s.reader = nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Rect, img, img.Bounds().Min, draw.Src)
	return out
}
