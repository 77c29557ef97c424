package config

import "flag"

var (
	flagConfig    = flag.String("config", "", "Path to config file")
	flagDebug     = flag.Bool("debug", false, "Enable debug logging")
	flagMoonraker = flag.String("moonraker", "", "Moonraker base URL")
	flagWidth     = flag.Int("width", 0, "Canvas width")
	flagHeight    = flag.Int("height", 0, "Canvas height")
	flagStreaming = flag.String("streaming", "", "G-code streaming mode (auto/on/off)")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagMoonraker != "" {
		cfg.Moonraker.URL = *flagMoonraker
	}
	if *flagWidth > 0 {
		cfg.Display.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Display.Height = *flagHeight
	}
	if *flagStreaming != "" {
		cfg.GCodeViewer.StreamingMode = *flagStreaming
	}
}
