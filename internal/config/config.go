// Package config loads tool configuration from YAML and provides
// defaults. Every tolerance and default lives here and is passed
// explicitly into the components that use it, so two runs with
// different settings can share a process.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Interpolation kernel names accepted for resampling.
const (
	InterpLinear  = "linear"
	InterpNearest = "nearest"
)

// Config is the full tool configuration.
type Config struct {
	// Tolerance holds numeric comparison tolerances.
	Tolerance struct {
		// Spacing is the component-wise absolute tolerance used for
		// dataset spacing consistency and preprocess verification.
		Spacing float64 `yaml:"spacing"`
	} `yaml:"tolerance"`

	// Preprocess holds resampling defaults.
	Preprocess struct {
		// Orientation is the default target orientation code.
		Orientation string `yaml:"orientation"`

		// ImageInterpolation is the kernel for image volumes.
		ImageInterpolation string `yaml:"imageInterpolation"`

		// LabelInterpolation is the kernel for label volumes; nearest
		// preserves label identity.
		LabelInterpolation string `yaml:"labelInterpolation"`
	} `yaml:"preprocess"`

	// Workers is the per-file parallelism bound (0 = CPU cores).
	Workers int `yaml:"workers"`

	// Report holds rendering options.
	Report struct {
		// PreviewSize is the pixel bound for mid-slice preview images.
		PreviewSize int `yaml:"previewSize"`
	} `yaml:"report"`
}

// Default returns the documented default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Tolerance.Spacing = 1e-3
	cfg.Preprocess.Orientation = "RAS"
	cfg.Preprocess.ImageInterpolation = InterpLinear
	cfg.Preprocess.LabelInterpolation = InterpNearest
	cfg.Workers = runtime.NumCPU()
	cfg.Report.PreviewSize = 160
	return cfg
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no run could produce a meaningful report
// with.
func (c *Config) Validate() error {
	if c.Tolerance.Spacing <= 0 {
		return fmt.Errorf("tolerance.spacing must be > 0, got %g", c.Tolerance.Spacing)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	for _, k := range []string{c.Preprocess.ImageInterpolation, c.Preprocess.LabelInterpolation} {
		if k != InterpLinear && k != InterpNearest {
			return fmt.Errorf("unknown interpolation kernel %q", k)
		}
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
