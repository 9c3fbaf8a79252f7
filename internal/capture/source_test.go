package capture

import (
	"bufio"
	"bytes"
	"errors"
	"image"
	"testing"

	"golang.org/x/image/bmp"
)

// sourceFromBytes builds a Source whose reader is fed from a canned
// byte stream instead of a subprocess pipe.
func sourceFromBytes(data []byte) *Source {
	s := NewSource("127.0.0.1:8000", "")
	s.reader = bufio.NewReader(bytes.NewReader(data))
	return s
}

func encodeTestBMP(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 120
		img.Pix[i+3] = 255
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}
	return buf.Bytes()
}

func TestReadFrameDecodesStream(t *testing.T) {
	one := encodeTestBMP(t, 16, 12)
	s := sourceFromBytes(append(append([]byte{}, one...), one...))

	for i := 0; i < 2; i++ {
		frame, err := s.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame #%d: %v", i, err)
		}
		if frame.Width() != 16 || frame.Height() != 12 {
			t.Fatalf("frame #%d size = %dx%d", i, frame.Width(), frame.Height())
		}
		if frame.Timestamp.IsZero() {
			t.Fatalf("frame #%d has no timestamp", i)
		}
	}

	if _, err := s.ReadFrame(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("exhausted stream error = %v, want end of stream", err)
	}
}

func TestReadFrameBadMagic(t *testing.T) {
	data := encodeTestBMP(t, 8, 8)
	data[0] = 'X'
	s := sourceFromBytes(data)

	_, err := s.ReadFrame()
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("corrupt header error = %v, want ReadError", err)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	data := encodeTestBMP(t, 8, 8)
	s := sourceFromBytes(data[:len(data)-10])

	_, err := s.ReadFrame()
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("truncated frame error = %v, want ReadError", err)
	}
}

func TestReadFrameImplausibleSize(t *testing.T) {
	data := encodeTestBMP(t, 8, 8)
	// Corrupt the declared file size to something absurd.
	data[2], data[3], data[4], data[5] = 0xff, 0xff, 0xff, 0xff
	s := sourceFromBytes(data)

	_, err := s.ReadFrame()
	var re *ReadError
	if !errors.As(err, &re) {
		t.Fatalf("oversized frame error = %v, want ReadError", err)
	}
}

func TestReadFrameUnconnected(t *testing.T) {
	s := NewSource("127.0.0.1:8000", "")
	if _, err := s.ReadFrame(); err == nil {
		t.Fatalf("read on unconnected source succeeded")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close on unconnected source: %v", err)
	}
}
