// Package encode persists finished clips as MP4 files by piping raw
// frames through an external ffmpeg process.
package encode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/streetwatch/streamserver/internal/clip"
	"github.com/streetwatch/streamserver/internal/logger"
	"github.com/streetwatch/streamserver/pkg/types"
)

const (
	minFPS = 5
	maxFPS = 30

	// encodeTimeout bounds one subprocess run so a wedged encoder can
	// never hold the pipeline or a shutdown indefinitely.
	encodeTimeout = 60 * time.Second
)

// EncodeError wraps any failure of the encoder subprocess, including a
// zero-byte output file.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Encoder writes clips for one stream into its output directory. It
// implements clip.Sink.
type Encoder struct {
	OutputDir  string
	FFmpegPath string

	// MinLength pads short clips by repeating the final frame so the
	// resulting file never falls under this wall-clock duration.
	MinLength time.Duration

	// OnSaved, if set, is called with the output path and clip duration
	// after a file has been written and verified.
	OnSaved func(path string, duration time.Duration)

	// OnError, if set, is called once per failed encode attempt, before
	// Save returns the error.
	OnError func(err error)

	ctx context.Context
}

// NewEncoder returns an encoder rooted at dir. ctx is the outer bound
// on every subprocess spawned; each run additionally gets its own
// timeout. Shutdown finalization passes a background context so the
// last clip of a stopping stream still persists.
func NewEncoder(ctx context.Context, dir, ffmpegPath string) *Encoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Encoder{
		OutputDir:  dir,
		FFmpegPath: ffmpegPath,
		MinLength:  clip.DefaultMinLength,
		ctx:        ctx,
	}
}

// Save encodes a clip to motion_<start>.mp4 under the output directory.
// A subprocess failure or empty output file is an EncodeError; the clip
// is never retried.
func (e *Encoder) Save(c *clip.Clip) error {
	if len(c.Frames) == 0 {
		return nil
	}

	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return e.fail(&EncodeError{Path: e.OutputDir, Err: err})
	}

	frames, fps := prepareFrames(c.Frames, e.MinLength)
	name := fmt.Sprintf("motion_%s.mp4", c.Start.Format("20060102_150405"))
	path := filepath.Join(e.OutputDir, name)

	if err := e.run(frames, fps, path); err != nil {
		// A partial file from a failed run is useless, drop it.
		os.Remove(path)
		return e.fail(err)
	}
	logger.Info("Encode", "wrote %s (%d frames at %d fps)", path, len(frames), fps)
	if e.OnSaved != nil {
		duration := frames[len(frames)-1].Timestamp.Sub(frames[0].Timestamp)
		e.OnSaved(path, duration)
	}
	return nil
}

func (e *Encoder) fail(err error) error {
	if e.OnError != nil {
		e.OnError(err)
	}
	return err
}

func (e *Encoder) run(frames []*types.Frame, fps int, path string) error {
	first := frames[0].Image
	w := first.Rect.Dx()
	h := first.Rect.Dy()
	fpsArg := fmt.Sprintf("%d", fps)

	ctx, cancel := context.WithTimeout(e.ctx, encodeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, e.FFmpegPath,
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-r", fpsArg,
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", fpsArg,
		"-vsync", "cfr",
		path,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return &EncodeError{Path: path, Err: err}
	}

	var writeErr error
	for _, f := range frames {
		if f.Image.Rect.Dx() != w || f.Image.Rect.Dy() != h {
			continue
		}
		if _, werr := stdin.Write(f.Image.Pix); werr != nil {
			writeErr = werr
			break
		}
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	if writeErr != nil {
		return &EncodeError{Path: path, Err: writeErr}
	}

	info, err := os.Stat(path)
	if err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		return &EncodeError{Path: path, Err: fmt.Errorf("empty output file")}
	}
	return nil
}

// prepareFrames pads clips shorter than minLength by duplicating the
// final frame and computes the frame rate actually observed, clamped so
// pathological timing cannot produce an unplayable file. The same rate
// is used for both the raw input framing and the encoded output.
func prepareFrames(frames []*types.Frame, minLength time.Duration) ([]*types.Frame, int) {
	actual := frames[len(frames)-1].Timestamp.Sub(frames[0].Timestamp)

	fps := maxFPS
	if actual > 0 {
		fps = int(float64(len(frames)) / actual.Seconds())
	}
	if fps < minFPS {
		fps = minFPS
	} else if fps > maxFPS {
		fps = maxFPS
	}

	if actual < minLength {
		interval := time.Second / time.Duration(fps)
		last := frames[len(frames)-1]
		for padded := actual; padded < minLength; padded += interval {
			frames = append(frames, last)
		}
	}
	return frames, fps
}
