// Package config handles loom.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/loom/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "loom.toml"

// Config represents a loom.toml configuration.
type Config struct {
	Runtime   Runtime   `toml:"runtime" json:"runtime"`
	Cache     Cache     `toml:"cache" json:"cache"`
	Scheduler Scheduler `toml:"scheduler" json:"scheduler"`
	Journal   Journal   `toml:"journal" json:"journal"`
	Server    Server    `toml:"server" json:"server"`
	Logging   Logging   `toml:"logging" json:"logging"`

	// Dir is the directory containing the loom.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Runtime sizes each Fiber's frame stack and locals array.
type Runtime struct {
	MaxFrames     int  `toml:"max-frames" json:"maxFrames"`
	InitialLocals int  `toml:"initial-locals" json:"initialLocals"`
	MaxLocals     int  `toml:"max-locals" json:"maxLocals"`
	Profile       bool `toml:"profile" json:"profile"`
}

// Cache configures the adaptive call cache.
type Cache struct {
	Enabled  bool `toml:"enabled" json:"enabled"`
	Size     int  `toml:"size" json:"size"`
	MaxProbe int  `toml:"max-probe" json:"maxProbe"`
}

// Scheduler configures the worker pool.
type Scheduler struct {
	Workers   int `toml:"workers" json:"workers"`
	QuantumMs int `toml:"quantum-ms" json:"quantumMs"`
}

// Journal configures the fiber lifecycle journal. An empty path disables it.
type Journal struct {
	Path string `toml:"path" json:"path"`
}

// Server configures the status endpoints: gRPC on Address, Connect over
// HTTP on HTTPAddress. An empty address disables that listener.
type Server struct {
	Address     string `toml:"address" json:"address"`
	HTTPAddress string `toml:"http-address" json:"httpAddress"`
}

// Logging configures commonlog.
type Logging struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Default returns the configuration used when no loom.toml is present.
func Default() *Config {
	opts := vm.DefaultOptions()
	return &Config{
		Runtime: Runtime{
			MaxFrames:     opts.MaxFrames,
			InitialLocals: opts.InitialLocals,
			MaxLocals:     opts.MaxLocals,
			Profile:       opts.Profile,
		},
		Cache: Cache{
			Enabled:  !opts.DisableCache,
			Size:     opts.CacheSize,
			MaxProbe: opts.MaxProbe,
		},
		Scheduler: Scheduler{
			Workers:   4,
			QuantumMs: 10,
		},
	}
}

// Load parses a loom.toml file from the given directory. Keys absent from
// the file keep their Default values.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// Parse decodes and validates loom.toml content.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %s", undecoded[0])
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a loom.toml file, then loads
// and returns it. Returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// RuntimeOptions converts the runtime and cache sections to vm.Options.
func (c *Config) RuntimeOptions() vm.Options {
	return vm.Options{
		MaxFrames:     c.Runtime.MaxFrames,
		InitialLocals: c.Runtime.InitialLocals,
		MaxLocals:     c.Runtime.MaxLocals,
		Profile:       c.Runtime.Profile,
		DisableCache:  !c.Cache.Enabled,
		CacheSize:     c.Cache.Size,
		MaxProbe:      c.Cache.MaxProbe,
	}
}

// Quantum returns the scheduler time slice.
func (c *Config) Quantum() time.Duration {
	return time.Duration(c.Scheduler.QuantumMs) * time.Millisecond
}

// JournalPath returns the journal path resolved against Dir, or "" when
// the journal is disabled.
func (c *Config) JournalPath() string {
	p := c.Journal.Path
	if p == "" || p == ":memory:" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}
