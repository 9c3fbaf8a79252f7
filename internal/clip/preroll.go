package clip

import (
	"time"

	"github.com/streetwatch/streamserver/pkg/types"
)

// PreRollBuffer keeps the most recent frames bounded by age rather than
// count, so clip assembly can reach back in time when motion is first
// confirmed. Timestamps must be pushed in non-decreasing order; frames
// older than the retention window are evicted on every push.
type PreRollBuffer struct {
	retention time.Duration
	frames    []*types.Frame
}

// NewPreRollBuffer returns a buffer retaining frames for the given
// window.
func NewPreRollBuffer(retention time.Duration) *PreRollBuffer {
	return &PreRollBuffer{retention: retention}
}

// Push appends a frame and evicts everything older than the retention
// window relative to the new frame's timestamp.
func (b *PreRollBuffer) Push(f *types.Frame) {
	b.frames = append(b.frames, f)
	cutoff := f.Timestamp.Add(-b.retention)
	i := 0
	for i < len(b.frames) && b.frames[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.frames = append(b.frames[:0], b.frames[i:]...)
	}
}

// Since returns the held frames with timestamps at or after cutoff, in
// order. The returned slice is freshly allocated.
func (b *PreRollBuffer) Since(cutoff time.Time) []*types.Frame {
	i := 0
	for i < len(b.frames) && b.frames[i].Timestamp.Before(cutoff) {
		i++
	}
	out := make([]*types.Frame, len(b.frames)-i)
	copy(out, b.frames[i:])
	return out
}

// Len reports how many frames are currently held.
func (b *PreRollBuffer) Len() int {
	return len(b.frames)
}
