package screenshot

import (
	"time"

	"github.com/rs/zerolog"
)

// serviceConfig holds internal configuration for a Service.
type serviceConfig struct {
	chromePath   string
	timeout      time.Duration
	noSandbox    bool
	headless     string
	autoDownload bool
	userAgent    string
	logger       zerolog.Logger
	hints        HintEngineConfig
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{
		timeout:  60 * time.Second,
		headless: "new",
		logger:   zerolog.Nop(),
	}
}

// Option configures a [Service].
type Option func(*serviceConfig)

// WithChromePath sets the path to the Chrome or Chromium executable.
// By default the library searches standard locations automatically.
func WithChromePath(path string) Option {
	return func(c *serviceConfig) {
		c.chromePath = path
	}
}

// WithAutoDownloadBrowser downloads a compatible Chromium binary when no
// executable is configured, caching it under the user cache directory.
func WithAutoDownloadBrowser() Option {
	return func(c *serviceConfig) {
		c.autoDownload = true
	}
}

// WithTimeout sets the maximum duration for a single capture, tiled captures
// included. Defaults to 60 seconds. A zero or negative value disables the
// timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *serviceConfig) {
		c.timeout = d
	}
}

// WithNoSandbox disables the Chrome sandbox. This is required when
// running as root, for example inside Docker containers.
func WithNoSandbox() Option {
	return func(c *serviceConfig) {
		c.noSandbox = true
	}
}

// WithUserAgent sets the user agent applied to captures that do not supply
// their own.
func WithUserAgent(ua string) Option {
	return func(c *serviceConfig) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger for capture lifecycle events. The default
// discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

// WithModelTable replaces the built-in vision model table used for presets
// and hints.
func WithModelTable(table ModelTable) Option {
	return func(c *serviceConfig) {
		c.hints.Table = table
	}
}

// WithDefaultModel sets the vision model assumed when requests name none.
func WithDefaultModel(name string) Option {
	return func(c *serviceConfig) {
		c.hints.DefaultModel = name
	}
}

// WithResizeImpactThreshold sets the resize impact percent above which
// vision hints recommend tiling. Defaults to 30.
func WithResizeImpactThreshold(percent float64) Option {
	return func(c *serviceConfig) {
		c.hints.ResizeImpactThreshold = percent
	}
}

// WithSuggestionTileAllowance caps the grid size vision hints may recommend.
// Defaults to 1000 tiles.
func WithSuggestionTileAllowance(n int) Option {
	return func(c *serviceConfig) {
		c.hints.SuggestionTileAllowance = n
	}
}
