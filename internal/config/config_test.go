package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	screenshot "github.com/porticus-lab/go-screenshot"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Port != 8087 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Browser.Timeout != 60*time.Second {
		t.Errorf("browser timeout = %v", cfg.Browser.Timeout)
	}
	if cfg.Capture.Format != "png" || cfg.Capture.MaxTileCount != 50 {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.Vision.DefaultModel != "claude" {
		t.Errorf("default model = %q", cfg.Vision.DefaultModel)
	}
}

func TestLoad_File(t *testing.T) {
	raw := `
server:
  host: 127.0.0.1
  port: 9090
log:
  level: debug
  format: console
browser:
  chrome_path: /usr/bin/chromium
  no_sandbox: true
capture:
  format: jpeg
  quality: 80
vision:
  default_model: gemini
  models:
    claude:
      max_dimension: 2000
      max_pixels: 4000000
      max_aspect_ratio: 3.5
      tile_width: 2000
      tile_height: 2000
      tile_overlap: 60
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Browser.ChromePath != "/usr/bin/chromium" || !cfg.Browser.NoSandbox {
		t.Errorf("browser = %+v", cfg.Browser)
	}
	if cfg.Capture.Format != "jpeg" || cfg.Capture.Quality != 80 {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	// Fields the file does not mention keep their defaults.
	if cfg.Capture.ViewportWidth != 1920 {
		t.Errorf("viewport width = %d, want the default", cfg.Capture.ViewportWidth)
	}
	if cfg.Vision.DefaultModel != "gemini" {
		t.Errorf("default model = %q", cfg.Vision.DefaultModel)
	}
	if cfg.Vision.Models["claude"].MaxDimension != 2000 {
		t.Errorf("claude override = %+v", cfg.Vision.Models["claude"])
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("BROWSER_NO_SANDBOX", "1")
	t.Setenv("BROWSER_TIMEOUT", "90s")
	t.Setenv("BROWSER_USER_AGENT", "webshot-test/1.0")
	t.Setenv("CAPTURE_MAX_TILE_COUNT", "25")
	t.Setenv("VISION_DEFAULT_MODEL", "llama")
	t.Setenv("VISION_TILING_THRESHOLD", "12.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if !cfg.Browser.NoSandbox {
		t.Error("no_sandbox not applied")
	}
	if cfg.Browser.Timeout != 90*time.Second {
		t.Errorf("browser timeout = %v", cfg.Browser.Timeout)
	}
	if cfg.Browser.UserAgent != "webshot-test/1.0" {
		t.Errorf("user agent = %q", cfg.Browser.UserAgent)
	}
	if cfg.Capture.MaxTileCount != 25 {
		t.Errorf("max tile count = %d", cfg.Capture.MaxTileCount)
	}
	if cfg.Vision.DefaultModel != "llama" {
		t.Errorf("default model = %q", cfg.Vision.DefaultModel)
	}
	if cfg.Vision.TilingImpactThreshold != 12.5 {
		t.Errorf("tiling threshold = %v", cfg.Vision.TilingImpactThreshold)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SERVER_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want the env value", cfg.Server.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/webshot.yaml")
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not: a: mapping"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"huge port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad capture format", func(c *Config) { c.Capture.Format = "gif" }},
		{"zero quality", func(c *Config) { c.Capture.Quality = 0 }},
		{"quality over 100", func(c *Config) { c.Capture.Quality = 101 }},
		{"zero viewport", func(c *Config) { c.Capture.ViewportWidth = 0 }},
		{"zero max tiles", func(c *Config) { c.Capture.MaxTileCount = 0 }},
		{"bad model limits", func(c *Config) {
			c.Vision.Models = map[string]ModelLimits{"bad": {MaxDimension: 0}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestVisionConfig_ModelTable(t *testing.T) {
	var v VisionConfig
	if v.ModelTable() != nil {
		t.Error("expected nil table without overrides")
	}

	v.Models = map[string]ModelLimits{
		"Claude": {MaxDimension: 2000, MaxPixels: 4_000_000, MaxAspectRatio: 3.5, TileWidth: 2000, TileHeight: 2000, TileOverlap: 60},
		"custom": {MaxDimension: 1024, MaxPixels: 1024 * 1024, MaxAspectRatio: 2.0, TileWidth: 1024, TileHeight: 1024, TileOverlap: 32},
	}
	table := v.ModelTable()
	if table["claude"].MaxDimension != 2000 || table["claude"].Overlap != 60 {
		t.Errorf("claude = %+v, want the lowercased override", table["claude"])
	}
	if table["gemini"].MaxDimension != 3072 {
		t.Errorf("gemini = %+v, want the built-in entry intact", table["gemini"])
	}
	if _, ok := table["custom"]; !ok {
		t.Error("custom model not added")
	}
}

func TestVisionConfig_HintConfig(t *testing.T) {
	v := VisionConfig{
		DefaultModel: "llama",
		Models: map[string]ModelLimits{
			"custom": {MaxDimension: 1024, MaxPixels: 1024 * 1024, MaxAspectRatio: 2.0, TileWidth: 1024, TileHeight: 1024, TileOverlap: 32},
		},
	}
	engine := screenshot.NewHintEngine(v.HintConfig())

	names := engine.ModelNames()
	found := false
	for _, n := range names {
		if n == "custom" {
			found = true
		}
	}
	if !found {
		t.Errorf("model names = %v, want custom included", names)
	}

	hints, err := engine.Hints(screenshot.HintRequest{ImageWidth: 100, ImageHeight: 100})
	if err != nil {
		t.Fatalf("Hints: %v", err)
	}
	if hints.TargetModel != "llama" {
		t.Errorf("target model = %q, want the configured default", hints.TargetModel)
	}
}

func TestLogConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	lg := LogConfig{Level: "info", Format: "json"}.Logger(&buf)
	lg.Debug().Msg("suppressed")
	lg.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"service":"webshot"`) {
		t.Errorf("json log missing service field: %s", out)
	}
	if !strings.Contains(out, "hello") || strings.Contains(out, "suppressed") {
		t.Errorf("level filtering wrong: %s", out)
	}

	buf.Reset()
	clg := LogConfig{Level: "debug", Format: "console"}.Logger(&buf)
	clg.Info().Msg("console line")
	if !strings.Contains(buf.String(), "console line") {
		t.Errorf("console log missing message: %s", buf.String())
	}
}
