package screenshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// Service captures web pages as pixel screenshots together with
// coordinate-accurate element ground truth.
//
// A Service manages a headless browser instance that is reused across
// multiple captures for performance. It is safe for concurrent use: each
// capture runs in its own browser tab. Within one tiled capture, tiles are
// rendered strictly sequentially because a tab has a single scroll position.
//
// Call [Service.Close] when the Service is no longer needed to release
// browser resources.
type Service struct {
	cfg    serviceConfig
	engine RenderEngine
	hints  *HintEngine

	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewService creates a Service with the given options.
//
// It starts a headless browser in the background. The caller must call
// [Service.Close] when finished.
func NewService(opts ...Option) (*Service, error) {
	cfg := defaultServiceConfig()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.chromePath == "" && cfg.autoDownload {
		path, err := resolveBrowser()
		if err != nil {
			return nil, err
		}
		cfg.chromePath = path
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("headless", cfg.headless),
	)
	if cfg.chromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.chromePath))
	}
	if cfg.noSandbox {
		allocOpts = append(allocOpts, chromedp.Flag("no-sandbox", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so errors surface at creation time.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("screenshot: starting browser: %w", err)
	}

	s := newService(cfg, &chromeEngine{browserCtx: browserCtx})
	s.allocCancel = allocCancel
	s.browserCancel = browserCancel
	return s, nil
}

// newService wires a Service around an arbitrary render engine. NewService
// injects the chromedp engine; tests inject fakes.
func newService(cfg serviceConfig, engine RenderEngine) *Service {
	return &Service{
		cfg:    cfg,
		engine: engine,
		hints:  NewHintEngine(cfg.hints),
	}
}

// Close releases all resources held by the Service, including the browser
// process. Close is idempotent. In-flight captures are interrupted.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

func (s *Service) checkClosed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Healthy reports whether the Service can still drive its browser. The probe
// opens a fresh tab and evaluates a trivial script, bounded to a few seconds,
// so it is cheap enough for liveness endpoints.
func (s *Service) Healthy(ctx context.Context) bool {
	if s.checkClosed() != nil {
		return false
	}
	p, ok := s.engine.(interface{ Ping(context.Context) error })
	if !ok {
		return true
	}
	return p.Ping(ctx) == nil
}

// Models returns a copy of the configured vision model table.
func (s *Service) Models() ModelTable {
	return s.hints.Table()
}

// DefaultModel returns the vision model assumed when requests name none.
func (s *Service) DefaultModel() string {
	return s.hints.DefaultModel()
}

// VisionHints evaluates an image against the configured vision models
// without touching the browser.
func (s *Service) VisionHints(req HintRequest) (*VisionHints, error) {
	return s.hints.Hints(req)
}

// Capture takes a single screenshot of a web page.
//
// Zero-valued request fields resolve to defaults: a 1920x1080 viewport, PNG
// encoding, no extraction. With req.Extract set, the result also carries the
// extracted elements in frame coordinates and a quality report; with
// req.IncludeVisionHints set, compatibility hints for the target model.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	resolved := req.resolved()
	if err := resolved.validate(); err != nil {
		return nil, err
	}
	if resolved.IncludeVisionHints {
		// Reject unknown models before any browser work happens.
		if _, _, err := s.hints.limitsFor(resolved.TargetModel); err != nil {
			return nil, err
		}
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	captureID := uuid.NewString()
	start := time.Now()
	logger := s.cfg.logger.With().
		Str("capture_id", captureID).
		Str("url", resolved.URL).
		Logger()
	logger.Debug().
		Int("width", resolved.Width).
		Int("height", resolved.Height).
		Bool("full_page", resolved.FullPage).
		Str("format", string(resolved.Format)).
		Msg("starting capture")

	session, err := s.engine.NewSession(ctx, resolved.renderTarget(s.cfg.userAgent))
	if err != nil {
		logger.Error().Err(err).Msg("capture failed")
		return nil, err
	}
	defer session.Close()

	document, err := session.DocumentSize(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("capture failed")
		return nil, err
	}

	frame, err := session.CaptureFrame(ctx, resolved.FullPage, resolved.Delay)
	if err != nil {
		logger.Error().Err(err).Msg("capture failed")
		return nil, err
	}

	result := &CaptureResult{
		CaptureID: captureID,
		URL:       resolved.URL,
		Image:     newImage(frame),
		Viewport:  PageDimensions{Width: resolved.Width, Height: resolved.Height},
		Document:  document,
		FullPage:  resolved.FullPage,
	}

	if resolved.Extract != nil {
		elements, err := session.ExtractElements(ctx, *resolved.Extract, nil)
		if err != nil {
			logger.Error().Err(err).Msg("extraction failed")
			return nil, err
		}
		result.Elements = elements
		result.Quality = AssessQuality(elements, QualityOptions{IncludeMetrics: resolved.IncludeQualityMetrics})
	}

	if resolved.IncludeVisionHints {
		hints, err := s.hints.Hints(HintRequest{
			ImageWidth:     frame.Width,
			ImageHeight:    frame.Height,
			ImageSizeBytes: result.Image.Len(),
			DocumentWidth:  document.Width,
			DocumentHeight: document.Height,
			TargetModel:    resolved.TargetModel,
		})
		if err != nil {
			return nil, err
		}
		result.Hints = hints
	}

	result.CaptureTime = time.Since(start)
	logger.Info().
		Dur("duration", result.CaptureTime).
		Int("bytes", result.Image.Len()).
		Int("elements", len(result.Elements)).
		Msg("capture complete")
	return result, nil
}

// CaptureTiled captures a full page as an overlapping tile grid with
// per-tile element extraction, then reconciles the tiles into one full-page
// ground truth.
//
// The grid is planned from the measured document size; a page that would
// need more tiles than req.Tiles.MaxTileCount fails with a
// [*GridOverflowError] before any tile is rendered. Tiles render
// sequentially in row-major order. Every element carries both its full-page
// rect and its rect within the tile it was extracted from; elements pinned
// by fixed or sticky positioning are deduplicated across tiles.
func (s *Service) CaptureTiled(ctx context.Context, req TiledCaptureRequest) (*TiledCaptureResult, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	resolved, err := req.resolvedWith(s.hints.Table())
	if err != nil {
		return nil, err
	}
	if err := resolved.validate(); err != nil {
		return nil, err
	}
	if resolved.IncludeVisionHints {
		if _, _, err := s.hints.limitsFor(resolved.Model); err != nil {
			return nil, err
		}
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	captureID := uuid.NewString()
	start := time.Now()
	logger := s.cfg.logger.With().
		Str("capture_id", captureID).
		Str("url", resolved.URL).
		Logger()

	session, err := s.engine.NewSession(ctx, resolved.renderTarget(s.cfg.userAgent))
	if err != nil {
		logger.Error().Err(err).Msg("tiled capture failed")
		return nil, err
	}
	defer session.Close()

	document, err := session.DocumentSize(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("tiled capture failed")
		return nil, err
	}

	plan, err := PlanTiles(document, resolved.Tiles)
	if err != nil {
		logger.Error().Err(err).
			Int("doc_width", document.Width).
			Int("doc_height", document.Height).
			Msg("tile planning failed")
		return nil, err
	}
	plan.AppliedPreset = resolved.Model

	settle := perTileSettle(resolved.WaitBudget, len(plan.Tiles))
	logger.Debug().
		Int("rows", plan.Rows).
		Int("cols", plan.Cols).
		Int("tiles", len(plan.Tiles)).
		Dur("per_tile_settle", settle).
		Msg("starting tiled capture")

	tiles := make([]TileCapture, 0, len(plan.Tiles))
	perTile := make([][]Element, 0, len(plan.Tiles))
	for _, tile := range plan.Tiles {
		frame, err := session.RenderTile(ctx, tile.Bounds, settle)
		if err != nil {
			logger.Error().Err(err).Int("tile", tile.Index).Msg("tile render failed")
			return nil, fmt.Errorf("screenshot: tile %d: %w", tile.Index, err)
		}
		locals, err := session.ExtractElements(ctx, *resolved.Extract, &tile.Bounds)
		if err != nil {
			logger.Error().Err(err).Int("tile", tile.Index).Msg("tile extraction failed")
			return nil, fmt.Errorf("screenshot: tile %d: %w", tile.Index, err)
		}
		elements := bindToTile(locals, tile)

		capture := TileCapture{
			Tile:         tile,
			Image:        newImage(frame),
			ElementCount: len(elements),
		}
		if len(elements) < sparseTileThreshold {
			capture.Warnings = append(capture.Warnings,
				fmt.Sprintf("tile %d extracted only %d elements; content may not have rendered", tile.Index, len(elements)))
		}
		tiles = append(tiles, capture)
		perTile = append(perTile, elements)
	}

	merged := Reconcile(perTile)

	result := &TiledCaptureResult{
		CaptureID: captureID,
		URL:       resolved.URL,
		Plan:      plan,
		Tiles:     tiles,
		Elements:  merged,
		Quality:   AssessQuality(merged, QualityOptions{IncludeMetrics: resolved.IncludeQualityMetrics}),
	}

	if resolved.IncludeVisionHints {
		hints, err := s.hints.Hints(HintRequest{
			ImageWidth:     resolved.Tiles.TileWidth,
			ImageHeight:    resolved.Tiles.TileHeight,
			ImageSizeBytes: largestTileBytes(tiles),
			DocumentWidth:  document.Width,
			DocumentHeight: document.Height,
			TargetModel:    resolved.Model,
		})
		if err != nil {
			return nil, err
		}
		result.Hints = hints
	}

	result.CaptureTime = time.Since(start)
	logger.Info().
		Dur("duration", result.CaptureTime).
		Int("tiles", len(tiles)).
		Int("elements", len(merged)).
		Str("quality", string(result.Quality.Level)).
		Msg("tiled capture complete")
	return result, nil
}

// sparseTileThreshold flags tiles whose extraction looks suspiciously empty.
const sparseTileThreshold = 5

// bindToTile stamps tile provenance on freshly extracted elements and maps
// their rects from tile-local to full-page coordinates. The tile-local rect
// is preserved so consumers can locate the element inside the tile image.
func bindToTile(locals []Element, tile Tile) []Element {
	out := make([]Element, len(locals))
	for i, el := range locals {
		local := el.Rect
		index := tile.Index
		el.TileIndex = &index
		el.TileLocalRect = &local
		el.Rect = tile.ToFullPage(local)
		out[i] = el
	}
	return out
}

// perTileSettle spreads a total wait budget across tiles so lazy-loaded
// content has a chance to render as the capture scrolls. Every tile gets at
// least 50ms; with no budget the floor applies as-is.
func perTileSettle(budget time.Duration, tileCount int) time.Duration {
	const floor = 50 * time.Millisecond
	if budget <= 0 || tileCount <= 0 {
		return floor
	}
	per := budget / time.Duration(tileCount)
	if per < floor {
		return floor
	}
	return per
}

func largestTileBytes(tiles []TileCapture) int {
	largest := 0
	for _, t := range tiles {
		if n := t.Image.Len(); n > largest {
			largest = n
		}
	}
	return largest
}

// --- Package-level convenience functions ---

// Capture takes a screenshot using a temporary [Service]. This is convenient
// for one-off captures. For repeated use, create a [Service] with
// [NewService] to reuse the browser instance.
func Capture(ctx context.Context, req CaptureRequest, opts ...Option) (*CaptureResult, error) {
	svc, err := NewService(opts...)
	if err != nil {
		return nil, err
	}
	defer svc.Close()
	return svc.Capture(ctx, req)
}

// CaptureTiled captures a page as a tile grid using a temporary [Service].
func CaptureTiled(ctx context.Context, req TiledCaptureRequest, opts ...Option) (*TiledCaptureResult, error) {
	svc, err := NewService(opts...)
	if err != nil {
		return nil, err
	}
	defer svc.Close()
	return svc.CaptureTiled(ctx, req)
}
