package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/streetwatch/streamserver/internal/logger"
)

// Watcher reloads the configuration file when it changes on disk and
// hands the fresh Config to registered handlers. Editors that replace
// the file on save generate bursts of events, so changes are debounced.
type Watcher struct {
	path     string
	debounce time.Duration

	mu       sync.Mutex
	handlers []func(*Config)

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for path. Start must be called before
// any reloads are delivered.
func NewWatcher(path string) *Watcher {
	return &Watcher{
		path:     path,
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}
}

// OnReload registers a handler called with each successfully loaded
// configuration.
func (w *Watcher) OnReload(handler func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Start begins watching the file.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw
	logger.Info("Config", "watching %s for changes", w.path)
	go w.loop()
	return nil
}

// Stop ends the watch loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			}

		case <-timerC:
			timerC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Config", "watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Error("Config", "reload failed, keeping previous config: %v", err)
		return
	}
	logger.Info("Config", "reloaded %s (%d streams)", w.path, len(cfg.Streams))

	w.mu.Lock()
	handlers := append([]func(*Config){}, w.handlers...)
	w.mu.Unlock()
	for _, h := range handlers {
		h(cfg)
	}
}
