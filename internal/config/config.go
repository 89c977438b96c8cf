// Package config holds framestep's configuration structs, their defaults
// and the YAML file loader.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/framestep/internal/life"
	"github.com/me/framestep/internal/limiter"
	"github.com/me/framestep/internal/logging"
	"github.com/me/framestep/internal/script"
	"github.com/me/framestep/pkg/model"
)

// SimConfig describes one simulation.
type SimConfig struct {
	Width            int           `yaml:"width"`               // Columns
	Height           int           `yaml:"height"`              // Rows
	Density          float64       `yaml:"density"`             // Probability a seeded cell is alive
	Seed             int64         `yaml:"seed"`                // 0 picks a random seed
	Rule             string        `yaml:"rule"`                // B/S rulestring
	Wrap             bool          `yaml:"wrap"`                // Toroidal neighbourhood
	Pattern          string        `yaml:"pattern"`             // Registered pattern to stamp in the centre instead of random seeding
	Script           string        `yaml:"script"`              // JavaScript rule file; overrides Rule
	ScriptTimeout    time.Duration `yaml:"script_timeout"`      // Per-cell limit on one script evaluation
	TargetFPS        float64       `yaml:"target_fps"`          // Frame rate of the frame loop
	MaxRate          float64       `yaml:"max_rate"`            // Maximum scheduling calls per second (0 = none)
	MaxDuration      time.Duration `yaml:"max_duration"`        // Per-call ceiling (0 = none)
	WindowSize       int           `yaml:"window_size"`         // Pass durations averaged for strategy selection
	MaxPassesPerCall int           `yaml:"max_passes_per_call"` // Passes one call may commit under the full strategy
	Frames           int           `yaml:"frames"`              // Stop after this many frames (0 = no limit)
	RunFor           time.Duration `yaml:"run_for"`             // Stop after this long (0 = no limit)
}

// DefaultSimConfig returns sensible defaults.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Width:            128,
		Height:           96,
		Density:          0.2,
		Rule:             "B3/S23",
		TargetFPS:        60,
		WindowSize:       300,
		MaxPassesPerCall: 1,
		ScriptTimeout:    script.DefaultUnitTimeout,
	}
}

// ServerConfig holds configuration for the telemetry server.
type ServerConfig struct {
	Addr          string `yaml:"addr"`           // Listen address (default ":8080")
	LogLevel      string `yaml:"log_level"`      // Log level: debug, info, warn, error
	LogFormat     string `yaml:"log_format"`     // Log format: text, json
	DBPath        string `yaml:"db_path"`        // SQLite database path (default ~/.framestep/framestep.db, ":memory:" for testing)
	Statsview     bool   `yaml:"statsview"`      // Serve the Go runtime stats page
	StatsviewAddr string `yaml:"statsview_addr"` // Listen address of the stats page
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:          ":8080",
		LogLevel:      "info",
		LogFormat:     "text",
		StatsviewAddr: "localhost:12600",
	}
}

// Config is the layout of a framestep YAML file.
type Config struct {
	Sim    SimConfig    `yaml:"sim"`
	Server ServerConfig `yaml:"server"`
}

// Default returns a Config holding every default.
func Default() Config {
	return Config{Sim: DefaultSimConfig(), Server: DefaultServerConfig()}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the whole file.
func (c Config) Validate() error {
	if err := c.Sim.Validate(); err != nil {
		return err
	}
	return c.Server.Validate()
}

// Validate returns a *model.ConfigError for the first invalid field.
func (c SimConfig) Validate() error {
	switch {
	case c.Width < 1:
		return model.NewConfigError("width", c.Width, "must be at least 1")
	case c.Height < 1:
		return model.NewConfigError("height", c.Height, "must be at least 1")
	case math.IsNaN(c.Density) || c.Density < 0 || c.Density > 1:
		return model.NewConfigError("density", c.Density, "must be between 0 and 1")
	case c.TargetFPS <= 0 || math.IsInf(c.TargetFPS, 0) || math.IsNaN(c.TargetFPS):
		return model.NewConfigError("target_fps", c.TargetFPS, "must be positive")
	case c.MaxRate < 0:
		return model.NewConfigError("max_rate", c.MaxRate, "must not be negative")
	case c.MaxDuration < 0:
		return model.NewConfigError("max_duration", c.MaxDuration, "must not be negative")
	case c.MaxRate > 0 && c.MaxDuration > 0:
		return model.NewConfigError("max_rate", c.MaxRate, "cannot be combined with max_duration")
	case c.WindowSize < 1:
		return model.NewConfigError("window_size", c.WindowSize, "must be at least 1")
	case c.MaxPassesPerCall < 1:
		return model.NewConfigError("max_passes_per_call", c.MaxPassesPerCall, "must be at least 1")
	case c.Frames < 0:
		return model.NewConfigError("frames", c.Frames, "must not be negative")
	case c.RunFor < 0:
		return model.NewConfigError("run_for", c.RunFor, "must not be negative")
	case c.Script != "" && c.ScriptTimeout <= 0:
		return model.NewConfigError("script_timeout", c.ScriptTimeout, "must be positive")
	}
	if c.Script == "" {
		if _, err := life.ParseRule(c.Rule); err != nil {
			return model.NewConfigError("rule", c.Rule, err.Error())
		}
	}
	return nil
}

// Validate returns a *model.ConfigError for the first invalid field.
func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return model.NewConfigError("addr", c.Addr, "must not be empty")
	}
	if !logging.ValidFormat(c.LogFormat) {
		return model.NewConfigError("log_format", c.LogFormat, "must be text or json")
	}
	return nil
}

// Limiter builds the rate limiter described by MaxRate or MaxDuration.
func (c SimConfig) Limiter() (*limiter.RateLimiter, error) {
	var opts []limiter.Option
	switch {
	case c.MaxRate > 0:
		opts = append(opts, limiter.WithMaximumRate(c.MaxRate))
	case c.MaxDuration > 0:
		opts = append(opts, limiter.WithMaximumDuration(c.MaxDuration))
	}
	return limiter.New(opts...)
}

// ResolveDBPath returns c.DBPath, or ~/.framestep/framestep.db when it is
// empty, creating the directory as needed.
func (c ServerConfig) ResolveDBPath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".framestep")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	return filepath.Join(dir, "framestep.db"), nil
}
