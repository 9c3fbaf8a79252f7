package stream

import (
	"image"
	"testing"
	"time"

	"github.com/streetwatch/streamserver/internal/clip"
	"github.com/streetwatch/streamserver/internal/events"
	"github.com/streetwatch/streamserver/internal/metrics"
	"github.com/streetwatch/streamserver/pkg/types"
)

// noEncoder points managers at a binary that cannot exist so connect
// attempts fail fast instead of spawning real processes.
const noEncoder = "/nonexistent/ffmpeg-for-tests"

func testStreamConfig(id string) types.StreamConfig {
	return types.StreamConfig{
		ID:              id,
		Host:            "127.0.0.1",
		Port:            1,
		Name:            id,
		Active:          true,
		OutputDirectory: "/tmp/clips-" + id,
		FPS:             30,
	}
}

func TestManagerStartStopIdempotent(t *testing.T) {
	m := metrics.New()
	mgr := NewManager(testStreamConfig("cam1"), noEncoder, m, events.NewBus())

	mgr.Start()
	mgr.Start() // second Start is a no-op

	if got := m.ActiveStreams.Load(); got != 1 {
		t.Fatalf("active streams = %d after Start, want 1", got)
	}

	done := make(chan struct{})
	go func() {
		mgr.Stop()
		mgr.Stop() // second Stop is a no-op
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Stop did not return")
	}

	if got := m.ActiveStreams.Load(); got != 0 {
		t.Fatalf("active streams = %d after Stop, want 0", got)
	}
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := metrics.New()
	mgr := NewManager(testStreamConfig("cam1"), noEncoder, m, events.NewBus())
	mgr.Stop()
	if got := m.ActiveStreams.Load(); got != 0 {
		t.Fatalf("active streams = %d, want 0", got)
	}
}

func TestManagerSubscriberLifecycle(t *testing.T) {
	m := metrics.New()
	mgr := NewManager(testStreamConfig("cam1"), noEncoder, m, events.NewBus())

	s1 := mgr.Attach()
	s2 := mgr.Attach()
	if mgr.ClientCount() != 2 {
		t.Fatalf("client count = %d, want 2", mgr.ClientCount())
	}
	if m.ActiveSubscribers.Load() != 2 {
		t.Fatalf("subscriber gauge = %d", m.ActiveSubscribers.Load())
	}

	mgr.Detach(s1)
	if mgr.ClientCount() != 1 {
		t.Fatalf("client count = %d after detach, want 1", mgr.ClientCount())
	}

	// Stop must force the remaining subscriber off.
	mgr.Stop()
	if mgr.ClientCount() != 0 {
		t.Fatalf("client count = %d after Stop, want 0", mgr.ClientCount())
	}
	if _, ok := <-s2.Frames(); ok {
		t.Fatalf("subscriber queue open after Stop")
	}
}

func TestManagerAttachAfterStop(t *testing.T) {
	m := metrics.New()
	mgr := NewManager(testStreamConfig("cam1"), noEncoder, m, events.NewBus())
	mgr.Stop()

	s := mgr.Attach()
	if got := m.ActiveSubscribers.Load(); got != 0 {
		t.Fatalf("subscriber gauge = %d after attach to a stopped manager, want 0", got)
	}
	if _, open := <-s.Frames(); open {
		t.Fatalf("subscriber queue open on a stopped manager")
	}

	// Detaching the rejected subscriber must not underflow the gauge.
	mgr.Detach(s)
	if got := m.ActiveSubscribers.Load(); got != 0 {
		t.Fatalf("subscriber gauge = %d after detach, want 0", got)
	}
}

// scriptedDetector replays a fixed verdict sequence.
type scriptedDetector struct {
	verdicts []bool
	pos      int
	resets   int
}

func (d *scriptedDetector) Process(frame *types.Frame) bool {
	if d.pos >= len(d.verdicts) {
		return false
	}
	v := d.verdicts[d.pos]
	d.pos++
	return v
}

func (d *scriptedDetector) Reset() { d.resets++ }

func TestManagerMotionPipeline(t *testing.T) {
	cfg := testStreamConfig("cam1")
	cfg.MotionDetection = true

	m := metrics.New()
	mgr := NewManager(cfg, noEncoder, m, events.NewBus())

	sink := &recordingSink{}
	mgr.assembler = clip.NewAssembler(sink)

	// 10 fps: motion from frame 10 through 31 (2.2s), then quiet.
	verdicts := make([]bool, 70)
	for i := 10; i < 32; i++ {
		verdicts[i] = true
	}
	mgr.detector = &scriptedDetector{verdicts: verdicts}

	base := time.Now()
	sawRecording := false
	for i := 0; i < 70; i++ {
		frame := &types.Frame{Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond)}
		mgr.processMotion(frame, i+1)
		if mgr.assembler.Recording() {
			sawRecording = true
			if m.RecordingStreams.Load() != 1 {
				t.Fatalf("recording gauge = %d while recording", m.RecordingStreams.Load())
			}
		}
	}

	if !sawRecording {
		t.Fatalf("pipeline never entered recording")
	}
	if len(sink.clips) != 1 {
		t.Fatalf("saved %d clips, want 1", len(sink.clips))
	}
	if m.RecordingStreams.Load() != 0 {
		t.Fatalf("recording gauge = %d after episode, want 0", m.RecordingStreams.Load())
	}
}

func TestManagerDiscardsShortEpisode(t *testing.T) {
	cfg := testStreamConfig("cam1")
	cfg.MotionDetection = true

	m := metrics.New()
	mgr := NewManager(cfg, noEncoder, m, events.NewBus())

	sink := &recordingSink{}
	mgr.assembler = clip.NewAssembler(sink)
	mgr.assembler.OnDiscard = func() { m.ClipsDiscarded.Add(1) }

	// Only 0.3s of motion.
	verdicts := make([]bool, 60)
	for i := 10; i < 13; i++ {
		verdicts[i] = true
	}
	mgr.detector = &scriptedDetector{verdicts: verdicts}

	base := time.Now()
	for i := 0; i < 60; i++ {
		frame := &types.Frame{Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond)}
		mgr.processMotion(frame, i+1)
	}

	if len(sink.clips) != 0 {
		t.Fatalf("short episode persisted %d clips", len(sink.clips))
	}
	if m.ClipsDiscarded.Load() != 1 {
		t.Fatalf("discard counter = %d, want 1", m.ClipsDiscarded.Load())
	}
}

func TestManagerCountsEncodeFailures(t *testing.T) {
	cfg := testStreamConfig("cam1")
	cfg.MotionDetection = true
	cfg.OutputDirectory = t.TempDir()

	m := metrics.New()
	mgr := NewManager(cfg, noEncoder, m, events.NewBus())

	// 10 fps: motion from frame 10 through 41 (3.1s) clears the minimum
	// length, so the finalized clip reaches the encoder and fails there.
	verdicts := make([]bool, 80)
	for i := 10; i < 42; i++ {
		verdicts[i] = true
	}
	mgr.detector = &scriptedDetector{verdicts: verdicts}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	base := time.Now()
	for i := 0; i < 80; i++ {
		frame := &types.Frame{Image: img, Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond)}
		mgr.processMotion(frame, i+1)
	}

	if got := m.EncodeErrors.Load(); got != 1 {
		t.Fatalf("encode errors metric = %d after a failed encode, want 1", got)
	}
	if got := m.ClipsSaved.Load(); got != 0 {
		t.Fatalf("clips saved metric = %d after a failed encode, want 0", got)
	}
}

func TestManagerFrameSampling(t *testing.T) {
	cfg := testStreamConfig("cam1")
	cfg.MotionDetection = true
	cfg.ProcessEveryN = 3

	m := metrics.New()
	mgr := NewManager(cfg, noEncoder, m, events.NewBus())
	mgr.assembler = clip.NewAssembler(&recordingSink{})

	det := &scriptedDetector{verdicts: make([]bool, 100)}
	mgr.detector = det

	base := time.Now()
	for i := 0; i < 30; i++ {
		frame := &types.Frame{Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond)}
		mgr.processMotion(frame, i+1)
	}

	if det.pos != 10 {
		t.Fatalf("detector ran %d times for 30 frames with sampling 3, want 10", det.pos)
	}
}

type recordingSink struct {
	clips []*clip.Clip
}

func (s *recordingSink) Save(c *clip.Clip) error {
	s.clips = append(s.clips, c)
	return nil
}
