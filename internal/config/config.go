// Package config provides configuration loading for the webshot server and
// CLI. It supports YAML files, environment variable overrides, and
// programmatic defaults.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	screenshot "github.com/porticus-lab/go-screenshot"
)

// Config holds all configuration for webshot.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Browser BrowserConfig `yaml:"browser"`
	Capture CaptureConfig `yaml:"capture"`
	Vision  VisionConfig  `yaml:"vision"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RequestTimeout bounds one HTTP request end to end. It should exceed
	// the browser timeout or slow captures get cut off at the transport.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// BrowserConfig holds headless browser settings.
type BrowserConfig struct {
	ChromePath   string        `yaml:"chrome_path"`
	NoSandbox    bool          `yaml:"no_sandbox"`
	AutoDownload bool          `yaml:"auto_download"`
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
}

// CaptureConfig holds server-wide capture defaults applied to requests that
// leave the corresponding fields unset.
type CaptureConfig struct {
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	Format         string `yaml:"format"`
	Quality        int    `yaml:"quality"`
	MaxTileCount   int    `yaml:"max_tile_count"`
}

// VisionConfig holds vision hint settings, including overrides for the
// built-in model table.
type VisionConfig struct {
	DefaultModel            string                 `yaml:"default_model"`
	TilingImpactThreshold   float64                `yaml:"tiling_impact_threshold"`
	SuggestionTileAllowance int                    `yaml:"suggestion_tile_allowance"`
	Models                  map[string]ModelLimits `yaml:"models"`
}

// ModelLimits mirrors the library's model limits with YAML tags. Entries
// override or extend the built-in table by name.
type ModelLimits struct {
	MaxDimension   int     `yaml:"max_dimension"`
	MaxPixels      int     `yaml:"max_pixels"`
	MaxAspectRatio float64 `yaml:"max_aspect_ratio"`
	TileWidth      int     `yaml:"tile_width"`
	TileHeight     int     `yaml:"tile_height"`
	TileOverlap    int     `yaml:"tile_overlap"`
}

// Load reads configuration from a YAML file and applies environment
// overrides. An empty path skips the file and uses defaults plus
// environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8087,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  90 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Browser: BrowserConfig{
			Timeout: 60 * time.Second,
		},
		Capture: CaptureConfig{
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			Format:         "png",
			Quality:        90,
			MaxTileCount:   50,
		},
		Vision: VisionConfig{
			DefaultModel:            screenshot.DefaultModel,
			TilingImpactThreshold:   screenshot.DefaultResizeImpactThreshold,
			SuggestionTileAllowance: screenshot.DefaultSuggestionTileAllowance,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	switch c.Capture.Format {
	case "png", "jpeg", "webp":
	default:
		return fmt.Errorf("invalid capture format: %s", c.Capture.Format)
	}
	if c.Capture.Quality < 1 || c.Capture.Quality > 100 {
		return fmt.Errorf("capture quality must be between 1 and 100, got %d", c.Capture.Quality)
	}
	if c.Capture.ViewportWidth < 1 || c.Capture.ViewportHeight < 1 {
		return fmt.Errorf("invalid capture viewport: %dx%d", c.Capture.ViewportWidth, c.Capture.ViewportHeight)
	}
	if c.Capture.MaxTileCount < 1 {
		return fmt.Errorf("capture max_tile_count must be at least 1, got %d", c.Capture.MaxTileCount)
	}
	for name, m := range c.Vision.Models {
		if m.MaxDimension < 1 || m.MaxPixels < 1 || m.MaxAspectRatio <= 0 {
			return fmt.Errorf("invalid limits for vision model %q", name)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BROWSER_PATH"); v != "" {
		cfg.Browser.ChromePath = v
	}
	if v := os.Getenv("BROWSER_NO_SANDBOX"); v != "" {
		cfg.Browser.NoSandbox = v == "true" || v == "1"
	}
	if v := os.Getenv("BROWSER_AUTO_DOWNLOAD"); v != "" {
		cfg.Browser.AutoDownload = v == "true" || v == "1"
	}
	if v := os.Getenv("BROWSER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Browser.Timeout = d
		}
	}
	if v := os.Getenv("BROWSER_USER_AGENT"); v != "" {
		cfg.Browser.UserAgent = v
	}
	if v := os.Getenv("CAPTURE_MAX_TILE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Capture.MaxTileCount = n
		}
	}
	if v := os.Getenv("VISION_DEFAULT_MODEL"); v != "" {
		cfg.Vision.DefaultModel = v
	}
	if v := os.Getenv("VISION_TILING_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.TilingImpactThreshold = f
		}
	}
}

// Logger builds a zerolog logger for the configured level and format,
// writing to w.
func (c LogConfig) Logger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var zl zerolog.Logger
	if c.Format == "console" {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	} else {
		zl = zerolog.New(w)
	}
	return zl.Level(level).With().
		Timestamp().
		Str("service", "webshot").
		Logger()
}

// ServiceOptions translates the configuration into library options for
// [screenshot.NewService].
func (c *Config) ServiceOptions(logger zerolog.Logger) []screenshot.Option {
	opts := []screenshot.Option{
		screenshot.WithLogger(logger),
		screenshot.WithTimeout(c.Browser.Timeout),
	}
	if c.Browser.ChromePath != "" {
		opts = append(opts, screenshot.WithChromePath(c.Browser.ChromePath))
	}
	if c.Browser.NoSandbox {
		opts = append(opts, screenshot.WithNoSandbox())
	}
	if c.Browser.AutoDownload {
		opts = append(opts, screenshot.WithAutoDownloadBrowser())
	}
	if c.Browser.UserAgent != "" {
		opts = append(opts, screenshot.WithUserAgent(c.Browser.UserAgent))
	}
	if table := c.Vision.ModelTable(); table != nil {
		opts = append(opts, screenshot.WithModelTable(table))
	}
	if c.Vision.DefaultModel != "" {
		opts = append(opts, screenshot.WithDefaultModel(c.Vision.DefaultModel))
	}
	if c.Vision.TilingImpactThreshold > 0 {
		opts = append(opts, screenshot.WithResizeImpactThreshold(c.Vision.TilingImpactThreshold))
	}
	if c.Vision.SuggestionTileAllowance > 0 {
		opts = append(opts, screenshot.WithSuggestionTileAllowance(c.Vision.SuggestionTileAllowance))
	}
	return opts
}

// ModelTable merges the configured model overrides into the built-in table.
// It returns nil when nothing is overridden, letting the library use its
// own defaults.
func (v VisionConfig) ModelTable() screenshot.ModelTable {
	if len(v.Models) == 0 {
		return nil
	}
	table := screenshot.DefaultModelTable()
	for name, m := range v.Models {
		table[strings.ToLower(name)] = screenshot.ModelLimits{
			MaxDimension:   m.MaxDimension,
			MaxPixels:      m.MaxPixels,
			MaxAspectRatio: m.MaxAspectRatio,
			TileWidth:      m.TileWidth,
			TileHeight:     m.TileHeight,
			Overlap:        m.TileOverlap,
		}
	}
	return table
}

// HintConfig translates the vision section into a hint engine config, for
// paths that compute hints without a browser.
func (v VisionConfig) HintConfig() screenshot.HintEngineConfig {
	return screenshot.HintEngineConfig{
		Table:                   v.ModelTable(),
		DefaultModel:            v.DefaultModel,
		ResizeImpactThreshold:   v.TilingImpactThreshold,
		SuggestionTileAllowance: v.SuggestionTileAllowance,
	}
}
