// Package config loads and watches the server's TOML configuration.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/streetwatch/streamserver/pkg/types"
)

// Config is the full server configuration as stored on disk.
type Config struct {
	// LogLevel selects the minimum level emitted: debug, info, warn,
	// error or silent.
	LogLevel string `toml:"log_level"`

	// ListenAddr is the HTTP bind address for status and metrics.
	ListenAddr string `toml:"listen_addr"`

	// FFmpegPath overrides the ffmpeg binary used for capture and
	// encoding. Empty means resolve from PATH.
	FFmpegPath string `toml:"ffmpeg_path"`

	// Streams maps stream IDs to their camera settings.
	Streams map[string]types.StreamConfig `toml:"streams"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		ListenAddr: ":9100",
		Streams:    map[string]types.StreamConfig{},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.Streams == nil {
		c.Streams = map[string]types.StreamConfig{}
	}
	for id, sc := range c.Streams {
		if sc.Host == "" {
			return fmt.Errorf("stream %q: host is required", id)
		}
		if sc.Port <= 0 || sc.Port > 65535 {
			return fmt.Errorf("stream %q: invalid port %d", id, sc.Port)
		}
		sc.ID = id
		if sc.Name == "" {
			sc.Name = id
		}
		if sc.FPS <= 0 {
			sc.FPS = 30
		}
		if sc.OutputDirectory == "" {
			sc.OutputDirectory = "recordings/" + id
		}
		c.Streams[id] = sc
	}
	return nil
}

// StreamIDs returns the configured stream IDs in sorted order.
func (c *Config) StreamIDs() []string {
	ids := make([]string, 0, len(c.Streams))
	for id := range c.Streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
