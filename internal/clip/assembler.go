// Package clip turns a stream of per-frame motion verdicts into
// finished clips. The assembler buffers recent frames for pre-roll
// context, keeps recording through short gaps in motion, and hands
// completed clips to a sink for encoding.
package clip

import (
	"time"

	"github.com/streetwatch/streamserver/internal/logger"
	"github.com/streetwatch/streamserver/pkg/types"
)

const (
	// DefaultPreRoll is how far before confirmed motion a clip reaches back.
	DefaultPreRoll = 1 * time.Second
	// DefaultPostRoll is how long recording continues after motion ceases.
	DefaultPostRoll = 2 * time.Second
	// DefaultMinLength is the shortest motion episode worth persisting.
	DefaultMinLength = 2 * time.Second
	// DefaultRetention bounds the pre-roll buffer.
	DefaultRetention = 3 * time.Second
	// motionGrace keeps the external motion flag up briefly after
	// motion ceases so status consumers do not flicker.
	motionGrace = 2 * time.Second
)

// Clip is a finalized sequence of frames ready for encoding.
type Clip struct {
	Frames []*types.Frame
	Start  time.Time
}

// Sink receives finalized clips. Save may block; the assembler calls it
// inline from the stream's pipeline.
type Sink interface {
	Save(c *Clip) error
}

// Assembler is the per-stream recording state machine. Not safe for
// concurrent use.
type Assembler struct {
	PreRoll   time.Duration
	PostRoll  time.Duration
	MinLength time.Duration

	// OnDiscard, if set, is called once per motion episode dropped for
	// being shorter than MinLength.
	OnDiscard func()

	sink    Sink
	preroll *PreRollBuffer

	recording  bool
	frames     []*types.Frame
	clipStart  time.Time
	lastMotion time.Time

	motionFlag   bool
	motionUpdate time.Time

	now func() time.Time
}

// NewAssembler returns an idle assembler delivering finished clips to
// sink.
func NewAssembler(sink Sink) *Assembler {
	return &Assembler{
		PreRoll:   DefaultPreRoll,
		PostRoll:  DefaultPostRoll,
		MinLength: DefaultMinLength,
		sink:      sink,
		preroll:   NewPreRollBuffer(DefaultRetention),
		now:       time.Now,
	}
}

// Recording reports whether a clip is currently being assembled.
func (a *Assembler) Recording() bool {
	return a.recording
}

// MotionDetected reports the externally visible motion flag, which
// stays up for a short grace period after motion ends.
func (a *Assembler) MotionDetected() bool {
	if a.motionFlag && a.now().Sub(a.motionUpdate) > motionGrace {
		a.motionFlag = false
	}
	return a.motionFlag
}

// Buffer records a frame for pre-roll context without advancing the
// state machine. Used for frames that skipped motion detection.
func (a *Assembler) Buffer(f *types.Frame) {
	a.preroll.Push(f)
}

// Process feeds one frame and its debounced motion verdict through the
// state machine. Every frame lands in the pre-roll buffer regardless of
// state.
func (a *Assembler) Process(f *types.Frame, motion bool) {
	a.preroll.Push(f)
	now := f.Timestamp

	if motion {
		if !a.recording {
			a.recording = true
			a.clipStart = now
			a.frames = a.preroll.Since(now.Add(-a.PreRoll))
			logger.Info("Clip", "motion confirmed at %s, recording started with %d pre-roll frames",
				now.Format("15:04:05.000"), len(a.frames))
		} else {
			a.frames = append(a.frames, f)
		}
		a.lastMotion = now
		a.motionFlag = true
		a.motionUpdate = now
		return
	}

	if a.recording {
		// Keep appending through the post-roll window so the tail of
		// the event makes it into the clip.
		a.frames = append(a.frames, f)
		if now.Sub(a.lastMotion) > a.PostRoll {
			a.finalize()
		}
	}
}

// Finalize closes out any in-progress clip using the timestamps seen so
// far. Called on shutdown and before tearing down a failed connection.
func (a *Assembler) Finalize() {
	if a.recording {
		a.finalize()
	}
}

func (a *Assembler) finalize() {
	frames := a.frames
	a.recording = false
	a.frames = nil

	episode := a.lastMotion.Sub(a.clipStart)
	if episode < a.MinLength {
		logger.Debug("Clip", "discarding %.2fs motion episode below %.2fs minimum",
			episode.Seconds(), a.MinLength.Seconds())
		if a.OnDiscard != nil {
			a.OnDiscard()
		}
		return
	}
	if len(frames) == 0 {
		return
	}

	c := &Clip{Frames: frames, Start: a.clipStart}
	if err := a.sink.Save(c); err != nil {
		logger.Error("Clip", "failed to save clip: %v", err)
		return
	}
	logger.Info("Clip", "saved motion clip: %.2f seconds, %d frames",
		frames[len(frames)-1].Timestamp.Sub(frames[0].Timestamp).Seconds(), len(frames))
}
