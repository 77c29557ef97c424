// Package config handles HelixScreen configuration loading and management.
package config

import "time"

// Config holds all HelixScreen settings.
type Config struct {
	Display     DisplayConfig     `yaml:"display"`
	Moonraker   MoonrakerConfig   `yaml:"moonraker"`
	GCodeViewer GCodeViewerConfig `yaml:"gcode_viewer"`
	BedMesh     BedMeshConfig     `yaml:"bed_mesh"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DisplayConfig holds screen settings.
type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// MoonrakerConfig holds printer connection settings.
type MoonrakerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"` // per HTTP request
}

// GCodeViewerConfig holds G-code visualization settings.
type GCodeViewerConfig struct {
	// StreamingMode is "auto", "on" or "off". The HELIX_GCODE_STREAMING
	// environment variable overrides it.
	StreamingMode string `yaml:"streaming_mode"`
	// StreamingThresholdPercent is the share of available RAM (1-90) a
	// fully loaded model may consume before streaming kicks in.
	StreamingThresholdPercent int     `yaml:"streaming_threshold_percent"`
	ExtrusionWidthMM          float32 `yaml:"extrusion_width_mm"`
	CachedLayers              int     `yaml:"cached_layers"`
}

// BedMeshConfig holds bed mesh visualization settings.
type BedMeshConfig struct {
	Opacity  float32 `yaml:"opacity"`   // 0-1 surface opacity
	FOVScale float32 `yaml:"fov_scale"` // perspective strength
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Display: DisplayConfig{
			Width:  800,
			Height: 480,
		},
		Moonraker: MoonrakerConfig{
			URL:     "http://127.0.0.1:7125",
			Timeout: 10 * time.Second,
		},
		GCodeViewer: GCodeViewerConfig{
			StreamingMode:             "auto",
			StreamingThresholdPercent: 40,
			ExtrusionWidthMM:          0.4,
			CachedLayers:              5,
		},
		BedMesh: BedMeshConfig{
			Opacity:  0.9,
			FOVScale: 400,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
