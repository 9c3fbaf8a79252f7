package stream

import (
	"sort"
	"sync"

	"github.com/streetwatch/streamserver/internal/config"
	"github.com/streetwatch/streamserver/internal/events"
	"github.com/streetwatch/streamserver/internal/logger"
	"github.com/streetwatch/streamserver/internal/metrics"
	"github.com/streetwatch/streamserver/pkg/types"
)

// Registry owns the set of running stream managers and reconciles it
// against configuration. A changed stream is restarted with its new
// settings; managers are never mutated in place.
type Registry struct {
	ffmpegPath string
	metrics    *metrics.Metrics
	bus        *events.Bus

	mu       sync.Mutex
	managers map[string]*Manager
	closed   bool
}

// NewRegistry returns an empty registry.
func NewRegistry(ffmpegPath string, m *metrics.Metrics, bus *events.Bus) *Registry {
	return &Registry{
		ffmpegPath: ffmpegPath,
		metrics:    m,
		bus:        bus,
		managers:   make(map[string]*Manager),
	}
}

// ApplyConfig reconciles running managers against cfg: new active
// streams are started, removed or deactivated streams are stopped, and
// streams whose settings changed are stopped and recreated.
func (r *Registry) ApplyConfig(cfg *config.Config) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	var toStop []*Manager
	var toStart []*Manager

	for id, mgr := range r.managers {
		sc, ok := cfg.Streams[id]
		if !ok || !sc.Active || sc != mgr.Config() {
			toStop = append(toStop, mgr)
			delete(r.managers, id)
		}
	}
	for _, id := range cfg.StreamIDs() {
		sc := cfg.Streams[id]
		if !sc.Active {
			continue
		}
		if _, ok := r.managers[id]; ok {
			continue
		}
		mgr := NewManager(sc, r.ffmpegPath, r.metrics, r.bus)
		r.managers[id] = mgr
		toStart = append(toStart, mgr)
	}
	r.mu.Unlock()

	// Stop blocks on the read loop, keep it outside the lock.
	for _, mgr := range toStop {
		logger.Info("Registry", "removing stream %s", mgr.Config().ID)
		mgr.Stop()
	}
	for _, mgr := range toStart {
		mgr.Start()
	}
}

// Get returns the manager for a stream ID.
func (r *Registry) Get(id string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mgr, ok := r.managers[id]
	return mgr, ok
}

// List returns the running managers ordered by stream ID.
func (r *Registry) List() []*Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Manager, 0, len(r.managers))
	for _, mgr := range r.managers {
		out = append(out, mgr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Config().ID < out[j].Config().ID
	})
	return out
}

// Add starts a manager for a single stream outside the config cycle.
// An existing manager with the same ID is replaced.
func (r *Registry) Add(sc types.StreamConfig) *Manager {
	r.mu.Lock()
	old := r.managers[sc.ID]
	mgr := NewManager(sc, r.ffmpegPath, r.metrics, r.bus)
	r.managers[sc.ID] = mgr
	r.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	mgr.Start()
	return mgr
}

// Remove stops and forgets one stream. It reports whether the stream
// existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	mgr, ok := r.managers[id]
	delete(r.managers, id)
	r.mu.Unlock()

	if ok {
		mgr.Stop()
	}
	return ok
}

// Close stops every manager. The registry refuses further changes.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	managers := make([]*Manager, 0, len(r.managers))
	for id, mgr := range r.managers {
		managers = append(managers, mgr)
		delete(r.managers, id)
	}
	r.mu.Unlock()

	for _, mgr := range managers {
		mgr.Stop()
	}
}
