// Package stream ties the pipeline together: one manager per camera
// owns the connection, the broadcaster, and the motion recording chain,
// and a registry reconciles the set of managers against configuration.
package stream

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streetwatch/streamserver/internal/broadcast"
	"github.com/streetwatch/streamserver/internal/capture"
	"github.com/streetwatch/streamserver/internal/clip"
	"github.com/streetwatch/streamserver/internal/encode"
	"github.com/streetwatch/streamserver/internal/events"
	"github.com/streetwatch/streamserver/internal/logger"
	"github.com/streetwatch/streamserver/internal/metrics"
	"github.com/streetwatch/streamserver/pkg/types"
)

const (
	// distributionQuality is the JPEG quality for frames fanned out to
	// subscribers. Low on purpose so many consumers stay cheap.
	distributionQuality = 10

	// framePacing throttles the read loop so a fast camera cannot pin
	// a core.
	framePacing = 10 * time.Millisecond
)

// Manager runs the full pipeline for one camera. Ingest, detection,
// clip bookkeeping and fan-out all happen sequentially on the manager's
// own goroutine.
type Manager struct {
	cfg        types.StreamConfig
	ffmpegPath string

	broadcaster *broadcast.Broadcaster
	detector    motionDetector
	assembler   *clip.Assembler

	metrics *metrics.Metrics
	bus     *events.Bus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running   atomic.Bool
	connected atomic.Bool
	motion    atomic.Bool
	stopOnce  sync.Once

	// wasRecording is only touched from the run goroutine.
	wasRecording bool
}

// motionDetector narrows the motion package surface the manager needs,
// so tests can substitute a deterministic implementation.
type motionDetector interface {
	Process(frame *types.Frame) bool
	Reset()
}

// NewManager builds a manager for one configured camera. Nothing runs
// until Start is called.
func NewManager(cfg types.StreamConfig, ffmpegPath string, m *metrics.Metrics, bus *events.Bus) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		cfg:        cfg,
		ffmpegPath: ffmpegPath,
		metrics:    m,
		bus:        bus,
		ctx:        ctx,
		cancel:     cancel,
	}
	mgr.broadcaster = broadcast.New(func() {
		m.FramesDropped.Add(1)
	})

	if cfg.MotionDetection {
		// The encoder deliberately does not share the manager's
		// context: a clip finalized during Stop must still reach disk.
		// Each encode run is bounded by the encoder's own timeout.
		enc := encode.NewEncoder(context.Background(), cfg.OutputDirectory, ffmpegPath)
		enc.OnSaved = func(path string, duration time.Duration) {
			m.ClipsSaved.Add(1)
			bus.Publish(events.ClipSavedEvent{
				StreamID: cfg.ID,
				Path:     path,
				Duration: duration,
				At:       time.Now(),
			})
		}
		enc.OnError = func(err error) {
			m.EncodeErrors.Add(1)
		}
		mgr.detector = newPipelineDetector(cfg)
		mgr.assembler = clip.NewAssembler(enc)
		mgr.assembler.OnDiscard = func() {
			m.ClipsDiscarded.Add(1)
		}
	}
	return mgr
}

// Start launches the read loop. Calling Start on a running or stopped
// manager is a no-op.
func (mgr *Manager) Start() {
	if !mgr.running.CompareAndSwap(false, true) {
		return
	}
	mgr.metrics.ActiveStreams.Add(1)
	mgr.wg.Add(1)
	go mgr.run()
	logger.Info("Stream", "[%s] manager started for %s", mgr.cfg.ID, mgr.cfg.Addr())
}

// Stop shuts the pipeline down: the read loop exits, any in-progress
// clip is finalized and encoded before Stop returns, and all
// subscribers are detached. Safe to call more than once and while the
// read loop is mid-iteration.
func (mgr *Manager) Stop() {
	mgr.stopOnce.Do(func() {
		wasRunning := mgr.running.Swap(false)
		mgr.cancel()
		mgr.wg.Wait()
		if evicted := mgr.broadcaster.Count(); evicted > 0 {
			mgr.metrics.ActiveSubscribers.Add(^uint64(evicted - 1))
		}
		mgr.broadcaster.Close()
		if wasRunning {
			mgr.metrics.ActiveStreams.Add(^uint64(0))
		}
		logger.Info("Stream", "[%s] manager stopped", mgr.cfg.ID)
	})
}

// Config returns the manager's stream configuration.
func (mgr *Manager) Config() types.StreamConfig { return mgr.cfg }

// Attach registers a new frame subscriber. Attaching to a stopped
// manager yields a subscriber whose queue is already closed.
func (mgr *Manager) Attach() *broadcast.Subscriber {
	sub, ok := mgr.broadcaster.Attach()
	if ok {
		mgr.metrics.ActiveSubscribers.Add(1)
	}
	return sub
}

// Detach removes a subscriber.
func (mgr *Manager) Detach(sub *broadcast.Subscriber) {
	if mgr.broadcaster.Detach(sub) {
		mgr.metrics.ActiveSubscribers.Add(^uint64(0))
	}
}

// LastFrame returns the most recent JPEG published for this stream,
// or nil before the first frame.
func (mgr *Manager) LastFrame() []byte { return mgr.broadcaster.LastFrame() }

// ClientCount reports the current number of subscribers.
func (mgr *Manager) ClientCount() int { return mgr.broadcaster.Count() }

// Connected reports whether the camera link is currently up.
func (mgr *Manager) Connected() bool { return mgr.connected.Load() }

// MotionDetected reports the debounced motion flag, which lingers
// briefly after motion ends.
func (mgr *Manager) MotionDetected() bool { return mgr.motion.Load() }

func (mgr *Manager) run() {
	defer mgr.wg.Done()
	backoff := capture.NewBackoff()

	for mgr.running.Load() {
		source := capture.NewSource(mgr.cfg.Addr(), mgr.ffmpegPath)
		if err := source.Connect(mgr.ctx); err != nil {
			mgr.metrics.ConnectErrors.Add(1)
			delay := backoff.Next()
			logger.Warn("Stream", "[%s] connect failed: %v, retrying in %s", mgr.cfg.ID, err, delay)
			if !mgr.sleep(delay) {
				return
			}
			mgr.metrics.Reconnects.Add(1)
			continue
		}

		backoff.Reset()
		mgr.connected.Store(true)
		if mgr.detector != nil {
			// Stale background state from the previous session would
			// misclassify the first frames after a reconnect.
			mgr.detector.Reset()
		}
		mgr.bus.Publish(events.StreamConnectedEvent{
			StreamID: mgr.cfg.ID,
			Addr:     mgr.cfg.Addr(),
			At:       time.Now(),
		})

		reason := mgr.readLoop(source)

		// Close out any in-progress clip with the timestamps seen so
		// far before the connection is torn down.
		if mgr.assembler != nil {
			mgr.assembler.Finalize()
			mgr.syncRecording(time.Now())
		}
		source.Close()
		mgr.connected.Store(false)

		if !mgr.running.Load() {
			return
		}

		mgr.bus.Publish(events.StreamLostEvent{
			StreamID: mgr.cfg.ID,
			Addr:     mgr.cfg.Addr(),
			Reason:   reason,
			At:       time.Now(),
		})
		delay := backoff.Next()
		logger.Warn("Stream", "[%s] stream lost (%s), reconnecting in %s", mgr.cfg.ID, reason, delay)
		if !mgr.sleep(delay) {
			return
		}
		mgr.metrics.Reconnects.Add(1)
	}
}

// readLoop pumps frames until the stream fails or the manager stops.
// It returns a short description of why the stream ended.
func (mgr *Manager) readLoop(source *capture.Source) string {
	frameCount := 0

	for mgr.running.Load() {
		frame, err := source.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrEndOfStream) {
				return "end of stream"
			}
			mgr.metrics.ReadErrors.Add(1)
			return err.Error()
		}
		mgr.metrics.FramesRead.Add(1)
		frameCount++

		jpg, err := encodeJPEG(frame)
		if err != nil {
			logger.Warn("Stream", "[%s] jpeg encode failed: %v", mgr.cfg.ID, err)
		} else {
			frame.JPEG = jpg
			mgr.broadcaster.Publish(jpg)
			mgr.metrics.FramesPublished.Add(1)
		}

		if mgr.detector != nil {
			mgr.processMotion(frame, frameCount)
		}

		if !mgr.sleep(framePacing) {
			return "stopped"
		}
	}
	return "stopped"
}

func (mgr *Manager) processMotion(frame *types.Frame, frameCount int) {
	every := mgr.cfg.ProcessEveryN
	if every < 1 {
		every = 1
	}

	// The clip pipeline retains frames past this iteration, so it
	// gets its own copy.
	retained := frame.Clone()

	if frameCount%every != 0 {
		// Sampled-out frames still provide pre-roll context but do
		// not advance the recording state machine.
		mgr.assembler.Buffer(retained)
		return
	}

	verdict := mgr.detector.Process(frame)
	mgr.assembler.Process(retained, verdict)
	mgr.syncRecording(frame.Timestamp)
}

// syncRecording reconciles the externally visible motion state and the
// recording gauge with the assembler after it may have changed state.
func (mgr *Manager) syncRecording(at time.Time) {
	recording := mgr.assembler.Recording()
	if recording && !mgr.wasRecording {
		mgr.metrics.RecordingStreams.Add(1)
		mgr.bus.Publish(events.MotionStartedEvent{StreamID: mgr.cfg.ID, At: at})
	} else if !recording && mgr.wasRecording {
		mgr.metrics.RecordingStreams.Add(^uint64(0))
		mgr.bus.Publish(events.MotionEndedEvent{StreamID: mgr.cfg.ID, At: at})
	}
	mgr.wasRecording = recording
	mgr.motion.Store(mgr.assembler.MotionDetected())
}

// sleep waits for d unless the manager is cancelled first. It reports
// whether the manager should keep going.
func (mgr *Manager) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-mgr.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func encodeJPEG(frame *types.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: distributionQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
