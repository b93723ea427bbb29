package screenshot

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
)

// ImageFormat is the encoding of captured pixels.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatWebP ImageFormat = "webp"
)

// MIMEType returns the media type for the format.
func (f ImageFormat) MIMEType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// Cookie is injected into the browser before navigation.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
	// SameSite is "Strict", "Lax" or "None" (case-insensitive). Empty leaves
	// the browser default.
	SameSite string `json:"same_site,omitempty"`
}

// ExtractOptions controls DOM element extraction.
type ExtractOptions struct {
	// Selectors queried in the page. Empty uses [DefaultSelectors].
	Selectors []string `json:"selectors,omitempty"`
	// IncludeHidden keeps elements that fail the visibility check.
	IncludeHidden bool `json:"include_hidden,omitempty"`
	// MinTextLength skips elements whose trimmed text is shorter.
	// Defaults to 1, which skips empty elements.
	MinTextLength int `json:"min_text_length,omitempty"`
	// MaxElements caps extraction. Defaults to 500, at most 5000.
	MaxElements int `json:"max_elements,omitempty"`
}

// DefaultExtractOptions returns the extraction defaults.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		Selectors:     DefaultSelectors,
		MinTextLength: 1,
		MaxElements:   500,
	}
}

func (o ExtractOptions) resolved() ExtractOptions {
	if len(o.Selectors) == 0 {
		o.Selectors = DefaultSelectors
	}
	if o.MinTextLength <= 0 {
		o.MinTextLength = 1
	}
	if o.MaxElements <= 0 {
		o.MaxElements = 500
	}
	return o
}

func (o ExtractOptions) validate() error {
	if o.MaxElements > 5000 {
		return &ValidationError{Field: "extract.max_elements", Reason: fmt.Sprintf("must be at most 5000, got %d", o.MaxElements)}
	}
	for _, sel := range o.Selectors {
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return &ValidationError{Field: "extract.selectors", Reason: fmt.Sprintf("invalid CSS selector %q: %v", sel, err)}
		}
	}
	return nil
}

// CaptureRequest describes a single-frame screenshot.
//
// Zero-valued fields use sensible defaults: a 1920x1080 viewport, PNG
// output, quality 90 for lossy formats, and no extraction.
type CaptureRequest struct {
	URL string `json:"url"`

	// Width and Height set the viewport in CSS pixels.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// FullPage captures the whole scrollable document instead of one
	// viewport.
	FullPage bool `json:"full_page,omitempty"`

	Format ImageFormat `json:"format,omitempty"`
	// Quality applies to JPEG and WebP output, 1-100.
	Quality int `json:"quality,omitempty"`

	// DeviceScaleFactor emulates a HiDPI display. Defaults to 1.
	DeviceScaleFactor float64 `json:"device_scale_factor,omitempty"`
	UserAgent         string  `json:"user_agent,omitempty"`
	// DarkMode emulates a dark prefers-color-scheme.
	DarkMode bool `json:"dark_mode,omitempty"`
	// BlockAds blocks requests to common ad and tracking hosts.
	BlockAds bool `json:"block_ads,omitempty"`

	// WaitForSelector blocks until the selector is visible after load.
	WaitForSelector string `json:"wait_for_selector,omitempty"`
	// ExtraWait settles the page after load, at most 30s.
	ExtraWait time.Duration `json:"-"`
	// Delay runs right before the screenshot, at most 10s.
	Delay time.Duration `json:"-"`

	Cookies        []Cookie          `json:"cookies,omitempty"`
	LocalStorage   map[string]string `json:"local_storage,omitempty"`
	SessionStorage map[string]string `json:"session_storage,omitempty"`

	// Extract enables DOM extraction alongside the pixels. The result then
	// carries elements and a quality report. Nil disables extraction.
	Extract *ExtractOptions `json:"extract,omitempty"`
	// IncludeQualityMetrics attaches full metrics to the quality report.
	IncludeQualityMetrics bool `json:"include_quality_metrics,omitempty"`

	// IncludeVisionHints attaches vision-model hints for TargetModel.
	IncludeVisionHints bool   `json:"include_vision_hints,omitempty"`
	TargetModel        string `json:"target_model,omitempty"`
}

func (r CaptureRequest) resolved() CaptureRequest {
	if r.Width <= 0 {
		r.Width = 1920
	}
	if r.Height <= 0 {
		r.Height = 1080
	}
	if r.Format == "" {
		r.Format = FormatPNG
	}
	if r.Quality <= 0 {
		r.Quality = 90
	}
	if r.DeviceScaleFactor <= 0 {
		r.DeviceScaleFactor = 1.0
	}
	if r.Extract != nil {
		e := r.Extract.resolved()
		r.Extract = &e
	}
	return r
}

func (r CaptureRequest) validate() error {
	if err := validateTargetURL(r.URL, len(r.LocalStorage)+len(r.SessionStorage) > 0); err != nil {
		return err
	}
	switch {
	case r.Width < 320 || r.Width > 3840:
		return &ValidationError{Field: "width", Reason: fmt.Sprintf("must be 320-3840, got %d", r.Width)}
	case r.Height < 240 || r.Height > 2160:
		return &ValidationError{Field: "height", Reason: fmt.Sprintf("must be 240-2160, got %d", r.Height)}
	}
	if err := validateCommon(r.Format, r.Quality, r.WaitForSelector, r.ExtraWait, r.Delay, r.Cookies); err != nil {
		return err
	}
	if r.Extract != nil {
		return r.Extract.validate()
	}
	return nil
}

func (r CaptureRequest) renderTarget(defaultUA string) RenderTarget {
	ua := r.UserAgent
	if ua == "" {
		ua = defaultUA
	}
	return RenderTarget{
		URL:               r.URL,
		ViewportWidth:     r.Width,
		ViewportHeight:    r.Height,
		DeviceScaleFactor: r.DeviceScaleFactor,
		UserAgent:         ua,
		DarkMode:          r.DarkMode,
		BlockAds:          r.BlockAds,
		Cookies:           r.Cookies,
		LocalStorage:      r.LocalStorage,
		SessionStorage:    r.SessionStorage,
		WaitForSelector:   r.WaitForSelector,
		ExtraWait:         r.ExtraWait,
		Format:            r.Format,
		Quality:           r.Quality,
	}
}

// TiledCaptureRequest describes a full-page capture as an overlapping tile
// grid with per-tile element extraction.
type TiledCaptureRequest struct {
	URL string `json:"url"`

	// Tiles controls the grid. Zero fields fall back to the Model preset
	// when Model is set, else to the library defaults (1568x1568, overlap
	// 50, at most 50 tiles). Explicit values always win over presets.
	Tiles TileConfig `json:"tiles,omitempty"`
	// Model names a vision-model tiling preset, e.g. "claude".
	Model string `json:"model,omitempty"`

	Format ImageFormat `json:"format,omitempty"`
	// Quality applies to JPEG and WebP tiles, 1-100.
	Quality int `json:"quality,omitempty"`

	DeviceScaleFactor float64 `json:"device_scale_factor,omitempty"`
	UserAgent         string  `json:"user_agent,omitempty"`
	DarkMode          bool    `json:"dark_mode,omitempty"`
	BlockAds          bool    `json:"block_ads,omitempty"`

	WaitForSelector string `json:"wait_for_selector,omitempty"`
	// ExtraWait settles the page once after load, at most 30s.
	ExtraWait time.Duration `json:"-"`
	// WaitBudget is spread across tiles for lazy-loading content, with a
	// 50ms floor per tile. At most 120s.
	WaitBudget time.Duration `json:"-"`

	Cookies        []Cookie          `json:"cookies,omitempty"`
	LocalStorage   map[string]string `json:"local_storage,omitempty"`
	SessionStorage map[string]string `json:"session_storage,omitempty"`

	// Extract configures per-tile extraction. Nil uses
	// [DefaultExtractOptions]; tiled captures always extract, the merged
	// elements are their point.
	Extract               *ExtractOptions `json:"extract,omitempty"`
	IncludeQualityMetrics bool            `json:"include_quality_metrics,omitempty"`

	// IncludeVisionHints attaches hints evaluating the tile size against
	// the target model, with the document dimensions for context.
	IncludeVisionHints bool `json:"include_vision_hints,omitempty"`
}

// resolvedWith applies the model preset from table and fills remaining
// defaults. Explicit tile fields are never overwritten by a preset.
func (r TiledCaptureRequest) resolvedWith(table ModelTable) (TiledCaptureRequest, error) {
	if r.Model != "" {
		preset, ok := table[strings.ToLower(r.Model)]
		if !ok {
			names := make([]string, 0, len(table))
			for name := range table {
				names = append(names, name)
			}
			sort.Strings(names)
			return r, &ValidationError{Field: "model", Reason: fmt.Sprintf("unknown model %q, valid models: %s", r.Model, strings.Join(names, ", "))}
		}
		r.Model = strings.ToLower(r.Model)
		if r.Tiles.TileWidth <= 0 {
			r.Tiles.TileWidth = preset.TileWidth
		}
		if r.Tiles.TileHeight <= 0 {
			r.Tiles.TileHeight = preset.TileHeight
		}
		if r.Tiles.Overlap == 0 {
			r.Tiles.Overlap = preset.Overlap
		}
	}
	if r.Tiles.TileWidth <= 0 {
		r.Tiles.TileWidth = 1568
	}
	if r.Tiles.TileHeight <= 0 {
		r.Tiles.TileHeight = 1568
	}
	if r.Tiles.Overlap == 0 {
		r.Tiles.Overlap = 50
	}
	if r.Tiles.MaxTileCount <= 0 {
		r.Tiles.MaxTileCount = 50
	}
	if r.Format == "" {
		r.Format = FormatPNG
	}
	if r.Quality <= 0 {
		r.Quality = 90
	}
	if r.DeviceScaleFactor <= 0 {
		r.DeviceScaleFactor = 1.0
	}
	opts := DefaultExtractOptions()
	if r.Extract != nil {
		opts = r.Extract.resolved()
	}
	r.Extract = &opts
	return r, nil
}

func (r TiledCaptureRequest) validate() error {
	if err := validateTargetURL(r.URL, len(r.LocalStorage)+len(r.SessionStorage) > 0); err != nil {
		return err
	}
	switch {
	case r.Tiles.TileWidth < 256 || r.Tiles.TileWidth > 4096:
		return &ValidationError{Field: "tiles.tile_width", Reason: fmt.Sprintf("must be 256-4096, got %d", r.Tiles.TileWidth)}
	case r.Tiles.TileHeight < 256 || r.Tiles.TileHeight > 4096:
		return &ValidationError{Field: "tiles.tile_height", Reason: fmt.Sprintf("must be 256-4096, got %d", r.Tiles.TileHeight)}
	case r.Tiles.Overlap < 0 || r.Tiles.Overlap >= r.Tiles.TileWidth || r.Tiles.Overlap >= r.Tiles.TileHeight:
		return &ValidationError{Field: "tiles.overlap", Reason: fmt.Sprintf("must be non-negative and smaller than the tile, got %d", r.Tiles.Overlap)}
	case r.Tiles.MaxTileCount < 1 || r.Tiles.MaxTileCount > 1000:
		return &ValidationError{Field: "tiles.max_tile_count", Reason: fmt.Sprintf("must be 1-1000, got %d", r.Tiles.MaxTileCount)}
	case r.WaitBudget < 0 || r.WaitBudget > 120*time.Second:
		return &ValidationError{Field: "wait_budget", Reason: "must be between 0 and 2m"}
	}
	if err := validateCommon(r.Format, r.Quality, r.WaitForSelector, r.ExtraWait, 0, r.Cookies); err != nil {
		return err
	}
	return r.Extract.validate()
}

func (r TiledCaptureRequest) renderTarget(defaultUA string) RenderTarget {
	ua := r.UserAgent
	if ua == "" {
		ua = defaultUA
	}
	return RenderTarget{
		URL:               r.URL,
		ViewportWidth:     r.Tiles.TileWidth,
		ViewportHeight:    r.Tiles.TileHeight,
		DeviceScaleFactor: r.DeviceScaleFactor,
		UserAgent:         ua,
		DarkMode:          r.DarkMode,
		BlockAds:          r.BlockAds,
		Cookies:           r.Cookies,
		LocalStorage:      r.LocalStorage,
		SessionStorage:    r.SessionStorage,
		WaitForSelector:   r.WaitForSelector,
		ExtraWait:         r.ExtraWait,
		Format:            r.Format,
		Quality:           r.Quality,
	}
}

func validateTargetURL(raw string, needsOrigin bool) error {
	if raw == "" {
		return &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "url", Reason: fmt.Sprintf("not a valid URL: %v", err)}
	}
	switch u.Scheme {
	case "http", "https":
	case "file", "data":
		if needsOrigin {
			return &ValidationError{Field: "url", Reason: "storage injection requires an http or https URL"}
		}
	default:
		return &ValidationError{Field: "url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	return nil
}

func validateCommon(format ImageFormat, quality int, waitFor string, extraWait, delay time.Duration, cookies []Cookie) error {
	switch format {
	case FormatPNG, FormatJPEG, FormatWebP:
	default:
		return &ValidationError{Field: "format", Reason: fmt.Sprintf("must be png, jpeg or webp, got %q", format)}
	}
	switch {
	case quality < 1 || quality > 100:
		return &ValidationError{Field: "quality", Reason: fmt.Sprintf("must be 1-100, got %d", quality)}
	case extraWait < 0 || extraWait > 30*time.Second:
		return &ValidationError{Field: "extra_wait", Reason: "must be between 0 and 30s"}
	case delay < 0 || delay > 10*time.Second:
		return &ValidationError{Field: "delay", Reason: "must be between 0 and 10s"}
	}
	if waitFor != "" {
		if _, err := cascadia.ParseGroup(waitFor); err != nil {
			return &ValidationError{Field: "wait_for_selector", Reason: fmt.Sprintf("invalid CSS selector %q: %v", waitFor, err)}
		}
	}
	for _, c := range cookies {
		if c.Name == "" {
			return &ValidationError{Field: "cookies", Reason: "cookie name must not be empty"}
		}
		switch strings.ToLower(c.SameSite) {
		case "", "strict", "lax", "none":
		default:
			return &ValidationError{Field: "cookies", Reason: fmt.Sprintf("cookie %q: same_site must be Strict, Lax or None, got %q", c.Name, c.SameSite)}
		}
	}
	return nil
}
