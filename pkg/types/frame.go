package types

import (
	"fmt"
	"image"
	"time"
)

// Frame is a single decoded camera frame with its capture timestamp.
// The pixel buffer belongs to the pipeline stage currently processing it;
// anything that retains a frame past the current iteration must take a
// Clone, because the capture layer reuses its decode buffers.
type Frame struct {
	Image     *image.RGBA // Decoded pixels, RGBA order
	Timestamp time.Time   // Capture time
	JPEG      []byte      // Distribution encoding, set by the pipeline
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dx()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Rect.Dy()
}

// Clone returns a deep copy of the frame, safe to retain across iterations.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := &Frame{Timestamp: f.Timestamp}
	if f.Image != nil {
		img := image.NewRGBA(f.Image.Rect)
		copy(img.Pix, f.Image.Pix)
		c.Image = img
	}
	if len(f.JPEG) > 0 {
		c.JPEG = make([]byte, len(f.JPEG))
		copy(c.JPEG, f.JPEG)
	}
	return c
}

// StreamConfig holds the per-camera configuration. It is immutable after
// the owning stream manager is created; changing a stream means removing
// the manager and creating a new one.
type StreamConfig struct {
	ID              string `toml:"-"`
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Name            string `toml:"name"`
	Active          bool   `toml:"active"`
	MotionDetection bool   `toml:"motion_detection"`
	OutputDirectory string `toml:"output_directory"`
	FPS             int    `toml:"fps"`

	// ProcessEveryN runs motion detection on every Nth frame to trade
	// detection latency for CPU. Values below 1 mean every frame. The
	// clip pipeline still sees every frame regardless.
	ProcessEveryN int `toml:"process_every_n_frames"`

	// CircularMask restricts motion detection to a centered circular
	// region, for cameras with circular fisheye optics.
	CircularMask bool `toml:"circular_mask"`
}

// Addr returns the camera's TCP address in host:port form.
func (c StreamConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
