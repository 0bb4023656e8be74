// control/config.go
// Author: momentics <momentics@gmail.com>
//
// TOML-backed configuration and a thread-safe store with reload propagation.

package control

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full runtime configuration.
type Config struct {
	Reactor ReactorConfig `toml:"reactor"`
	Log     LogConfig     `toml:"log"`
}

// ReactorConfig tunes selector behaviour.
type ReactorConfig struct {
	// PollTimeout bounds each select call made by loop drivers. Zero or
	// negative means block until woken.
	PollTimeout Duration `toml:"poll_timeout"`
	// InitialKeys pre-sizes selector bookkeeping.
	InitialKeys int `toml:"initial_keys"`
}

// LogConfig selects logger level and output format.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// Duration is a time.Duration that reads and writes TOML strings ("250ms").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("control: duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Reactor: ReactorConfig{
			PollTimeout: Duration{500 * time.Millisecond},
			InitialKeys: 64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Reactor.InitialKeys < 0 {
		return fmt.Errorf("control: reactor.initial_keys must be >= 0, got %d", c.Reactor.InitialKeys)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("control: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// LoadConfig decodes the TOML file at path over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("control: load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		Logger().WithField("keys", undecoded).Warn("unknown config keys ignored")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteConfig encodes cfg as TOML.
func WriteConfig(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// ConfigStore holds the live configuration snapshot and reload listeners.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store with cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{config: cfg}
}

// GetSnapshot returns a copy of the current configuration.
func (cs *ConfigStore) GetSnapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// SetConfig replaces the configuration and notifies listeners.
func (cs *ConfigStore) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg
	listeners := append([]func(Config){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnReload registers a listener called after every SetConfig.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
