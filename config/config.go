// Package config loads the workspace settings that control how the engine
// treats results across runs and reloads.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidPolicy = errors.New("invalid state policy")
	ErrInvalidSort   = errors.New("invalid sort order")
)

// FileNames are the config file names searched for, in order.
var FileNames = []string{".testexplorer.yaml", ".testexplorer.yml"}

// Policy decides what happens to existing results when a run starts or a
// reload finishes.
type Policy string

const (
	PolicyNone   Policy = "none"
	PolicyRetire Policy = "retire"
	PolicyReset  Policy = "reset"
)

func (p Policy) valid() bool {
	switch p {
	case "", PolicyNone, PolicyRetire, PolicyReset:
		return true
	}
	return false
}

// SortOrder selects how suite children are ordered for display.
type SortOrder string

const (
	SortNone                      SortOrder = ""
	SortByLabel                   SortOrder = "byLabel"
	SortByLocation                SortOrder = "byLocation"
	SortByLabelWithSuitesFirst    SortOrder = "byLabelWithSuitesFirst"
	SortByLocationWithSuitesFirst SortOrder = "byLocationWithSuitesFirst"
)

func (s SortOrder) valid() bool {
	switch s {
	case SortNone, SortByLabel, SortByLocation, SortByLabelWithSuitesFirst, SortByLocationWithSuitesFirst:
		return true
	}
	return false
}

// Override holds per-adapter settings. Nil fields inherit the workspace value.
type Override struct {
	OnStart          Policy `yaml:"onStart,omitempty"`
	OnReload         Policy `yaml:"onReload,omitempty"`
	MergeSuites      *bool  `yaml:"mergeSuites,omitempty"`
	CodeLens         *bool  `yaml:"codeLens,omitempty"`
	GutterDecoration *bool  `yaml:"gutterDecoration,omitempty"`
}

type Config struct {
	OnStart          Policy              `yaml:"onStart"`
	OnReload         Policy              `yaml:"onReload"`
	CodeLens         bool                `yaml:"codeLens"`
	GutterDecoration bool                `yaml:"gutterDecoration"`
	ErrorDecoration  bool                `yaml:"errorDecoration"`
	Sort             SortOrder           `yaml:"sort"`
	MergeSuites      bool                `yaml:"mergeSuites"`
	Debounce         string              `yaml:"debounce"`
	LogLevel         string              `yaml:"logLevel"`
	Adapters         map[string]Override `yaml:"adapters"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

// Scope is the effective configuration for one adapter.
type Scope struct {
	OnStart          Policy
	OnReload         Policy
	MergeSuites      bool
	CodeLens         bool
	GutterDecoration bool
	ErrorDecoration  bool
	Sort             SortOrder
}

// Default returns the settings used when no config file is found.
func Default() Config {
	return Config{
		OnStart:          PolicyNone,
		OnReload:         PolicyNone,
		CodeLens:         true,
		GutterDecoration: true,
		ErrorDecoration:  true,
		Debounce:         "200ms",
		LogLevel:         "info",
	}
}

// Load looks for a config file starting at root and walking up to the
// filesystem root. If none is found, the defaults are returned.
func Load(root string) (Config, error) {
	path, ok := find(root)
	if !ok {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path on top of the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func find(root string) (string, bool) {
	dir, err := filepath.Abs(root)
	if err != nil {
		dir = root
	}
	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, true
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return "", false
		}
		dir = parent
	}
}

// Validate rejects unknown policy and sort values and malformed durations.
func (c Config) Validate() error {
	if !c.OnStart.valid() {
		return fmt.Errorf("onStart %q: %w", c.OnStart, ErrInvalidPolicy)
	}
	if !c.OnReload.valid() {
		return fmt.Errorf("onReload %q: %w", c.OnReload, ErrInvalidPolicy)
	}
	if !c.Sort.valid() {
		return fmt.Errorf("sort %q: %w", c.Sort, ErrInvalidSort)
	}
	for name, o := range c.Adapters {
		if !o.OnStart.valid() {
			return fmt.Errorf("adapters.%s.onStart %q: %w", name, o.OnStart, ErrInvalidPolicy)
		}
		if !o.OnReload.valid() {
			return fmt.Errorf("adapters.%s.onReload %q: %w", name, o.OnReload, ErrInvalidPolicy)
		}
	}
	if c.Debounce != "" {
		d, err := time.ParseDuration(c.Debounce)
		if err != nil {
			return fmt.Errorf("debounce: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("debounce %s is negative", c.Debounce)
		}
	}
	return nil
}

// DebounceDelay returns the parsed debounce window, 200ms when unset.
func (c Config) DebounceDelay() time.Duration {
	d, err := time.ParseDuration(c.Debounce)
	if err != nil || c.Debounce == "" {
		return 200 * time.Millisecond
	}
	return d
}

// For resolves the settings for the named adapter.
func (c Config) For(name string) Scope {
	s := Scope{
		OnStart:          orNone(c.OnStart),
		OnReload:         orNone(c.OnReload),
		MergeSuites:      c.MergeSuites,
		CodeLens:         c.CodeLens,
		GutterDecoration: c.GutterDecoration,
		ErrorDecoration:  c.ErrorDecoration,
		Sort:             c.Sort,
	}

	o, ok := c.Adapters[name]
	if !ok {
		return s
	}
	if o.OnStart != "" {
		s.OnStart = o.OnStart
	}
	if o.OnReload != "" {
		s.OnReload = o.OnReload
	}
	if o.MergeSuites != nil {
		s.MergeSuites = *o.MergeSuites
	}
	if o.CodeLens != nil {
		s.CodeLens = *o.CodeLens
	}
	if o.GutterDecoration != nil {
		s.GutterDecoration = *o.GutterDecoration
	}
	return s
}

func orNone(p Policy) Policy {
	if p == "" {
		return PolicyNone
	}
	return p
}
