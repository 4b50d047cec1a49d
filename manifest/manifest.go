// Package manifest handles extptr.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "extptr.toml"

// DefaultCollectInterval is used when [heap] collect-interval is not set.
const DefaultCollectInterval = 30 * time.Second

// Manifest represents an extptr.toml configuration.
type Manifest struct {
	Heap HeapConfig `toml:"heap"`
	Log  LogConfig  `toml:"log"`
	Dump DumpConfig `toml:"dump"`

	// Path is the file the manifest was loaded from; empty for Default().
	Path string `toml:"-"`
}

// HeapConfig configures the heap and its periodic collector.
type HeapConfig struct {
	// CollectInterval uses time.ParseDuration syntax. "0" disables periodic
	// collection.
	CollectInterval string `toml:"collect-interval"`
	AutoCollect     bool   `toml:"auto-collect"`

	// Interval is CollectInterval parsed at load time.
	Interval time.Duration `toml:"-"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// DumpConfig configures heap dumps.
type DumpConfig struct {
	Output string `toml:"output"`
}

// Default returns the configuration used when no extptr.toml exists.
func Default() *Manifest {
	return &Manifest{
		Heap: HeapConfig{
			CollectInterval: DefaultCollectInterval.String(),
			AutoCollect:     true,
			Interval:        DefaultCollectInterval,
		},
		Log:  LogConfig{Verbosity: 1},
		Dump: DumpConfig{Output: "heap.cbor"},
	}
}

// LoadFile parses the configuration file at path. Keys the file does not set
// keep their Default() values.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if _, err := toml.Decode(string(data), m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Heap.Interval, err = time.ParseDuration(m.Heap.CollectInterval)
	if err != nil {
		return nil, fmt.Errorf("%s: heap.collect-interval: %w", path, err)
	}
	if m.Heap.Interval < 0 {
		return nil, fmt.Errorf("%s: heap.collect-interval must not be negative", path)
	}
	if m.Log.Verbosity < 0 {
		return nil, fmt.Errorf("%s: log.verbosity must not be negative", path)
	}

	m.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return m, nil
}

// Load parses the extptr.toml file in dir.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// FindAndLoad walks up from startDir to find an extptr.toml file,
// then loads and returns it. Returns Default() if none is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// PeriodicCollection reports whether a background collector should run.
func (m *Manifest) PeriodicCollection() bool {
	return m.Heap.AutoCollect && m.Heap.Interval > 0
}

// LogPath returns the log file path for commonlog.Configure, or nil for
// stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.Log.File
	if m.Path != "" && !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(m.Path), p)
	}
	return &p
}
