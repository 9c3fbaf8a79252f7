// Package metrics exposes pipeline counters over Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. Counters are plain atomics
// bumped from the hot path; Prometheus reads them lazily on scrape.
type Metrics struct {
	// Frame pipeline counters
	FramesRead      atomic.Uint64
	FramesPublished atomic.Uint64
	FramesDropped   atomic.Uint64

	// Connection counters
	Reconnects    atomic.Uint64
	ConnectErrors atomic.Uint64
	ReadErrors    atomic.Uint64

	// Recording counters
	ClipsSaved     atomic.Uint64
	ClipsDiscarded atomic.Uint64
	EncodeErrors   atomic.Uint64

	// Live state
	ActiveStreams     atomic.Uint64
	ActiveSubscribers atomic.Uint64
	RecordingStreams  atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerCollectors()
	return m
}

func (m *Metrics) registerCollectors() {
	gauges := []struct {
		name string
		help string
		load func() uint64
	}{
		{"streamserver_frames_read_total", "Total frames read from cameras", m.FramesRead.Load},
		{"streamserver_frames_published_total", "Total frames published to subscribers", m.FramesPublished.Load},
		{"streamserver_frames_dropped_total", "Total frames dropped from slow subscriber queues", m.FramesDropped.Load},
		{"streamserver_reconnects_total", "Total camera reconnect attempts", m.Reconnects.Load},
		{"streamserver_connect_errors_total", "Total camera connection failures", m.ConnectErrors.Load},
		{"streamserver_read_errors_total", "Total mid-stream read failures", m.ReadErrors.Load},
		{"streamserver_clips_saved_total", "Total motion clips written to disk", m.ClipsSaved.Load},
		{"streamserver_clips_discarded_total", "Total motion episodes below the minimum clip length", m.ClipsDiscarded.Load},
		{"streamserver_encode_errors_total", "Total encoder subprocess failures", m.EncodeErrors.Load},
		{"streamserver_active_streams", "Number of running stream managers", m.ActiveStreams.Load},
		{"streamserver_active_subscribers", "Number of attached frame subscribers", m.ActiveSubscribers.Load},
		{"streamserver_recording_streams", "Number of streams currently recording a clip", m.RecordingStreams.Load},
	}
	for _, g := range gauges {
		load := g.load
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(load()) },
		))
	}
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
