package screenshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// fakeSession scripts a render session without a browser.
type fakeSession struct {
	target      RenderTarget
	doc         PageDimensions
	elementsFor func(tile *Rect) []Element
	extractErr  error
	failTile    int // fail RenderTile once this many tiles rendered; -1 never

	renderedTiles []Rect
	settles       []time.Duration
	frameCalls    int
	closeCalls    int
}

func newFakeSession(doc PageDimensions) *fakeSession {
	return &fakeSession{doc: doc, failTile: -1}
}

func (s *fakeSession) DocumentSize(ctx context.Context) (PageDimensions, error) {
	return s.doc, nil
}

func (s *fakeSession) RenderTile(ctx context.Context, bounds Rect, settle time.Duration) (*Frame, error) {
	if s.failTile >= 0 && len(s.renderedTiles) == s.failTile {
		return nil, errors.New("render crashed")
	}
	s.renderedTiles = append(s.renderedTiles, bounds)
	s.settles = append(s.settles, settle)
	return &Frame{Image: []byte("tile-pixels"), Format: s.target.Format, Width: bounds.Width, Height: bounds.Height}, nil
}

func (s *fakeSession) CaptureFrame(ctx context.Context, fullPage bool, settle time.Duration) (*Frame, error) {
	s.frameCalls++
	w, h := s.target.ViewportWidth, s.target.ViewportHeight
	if fullPage {
		w, h = s.doc.Width, s.doc.Height
	}
	return &Frame{Image: []byte("frame-pixels"), Format: s.target.Format, Width: w, Height: h}, nil
}

func (s *fakeSession) ExtractElements(ctx context.Context, opts ExtractOptions, tile *Rect) ([]Element, error) {
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	if s.elementsFor == nil {
		return nil, nil
	}
	return s.elementsFor(tile), nil
}

func (s *fakeSession) Close() error {
	s.closeCalls++
	return nil
}

type fakeEngine struct {
	session    *fakeSession
	sessionErr error
	targets    []RenderTarget
}

func (e *fakeEngine) NewSession(ctx context.Context, target RenderTarget) (RenderSession, error) {
	if e.sessionErr != nil {
		return nil, e.sessionErr
	}
	e.targets = append(e.targets, target)
	e.session.target = target
	return e.session, nil
}

func newFakeService(session *fakeSession) (*Service, *fakeEngine) {
	engine := &fakeEngine{session: session}
	return newService(defaultServiceConfig(), engine), engine
}

func TestServiceCapture_Defaults(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1920, Height: 2400})
	svc, engine := newFakeService(session)

	res, err := svc.Capture(context.Background(), CaptureRequest{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.CaptureID == "" {
		t.Error("missing capture ID")
	}
	if res.Viewport != (PageDimensions{Width: 1920, Height: 1080}) {
		t.Errorf("viewport = %+v", res.Viewport)
	}
	if res.Document != session.doc {
		t.Errorf("document = %+v, want %+v", res.Document, session.doc)
	}
	if string(res.Image.Bytes()) != "frame-pixels" {
		t.Error("image bytes did not come from the session frame")
	}
	if res.Elements != nil || res.Quality != nil || res.Hints != nil {
		t.Error("extraction artifacts present without being requested")
	}
	if len(engine.targets) != 1 || engine.targets[0].ViewportWidth != 1920 {
		t.Errorf("targets = %+v", engine.targets)
	}
	if session.closeCalls != 1 {
		t.Errorf("session closed %d times, want 1", session.closeCalls)
	}
}

func TestServiceCapture_WithExtraction(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1920, Height: 2400})
	session.elementsFor = func(tile *Rect) []Element {
		if tile != nil {
			t.Error("single capture should extract without a tile filter")
		}
		return richElements(25)
	}
	svc, _ := newFakeService(session)

	res, err := svc.Capture(context.Background(), CaptureRequest{
		URL:     "https://example.com",
		Extract: &ExtractOptions{},
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(res.Elements) != 25 {
		t.Errorf("elements = %d, want 25", len(res.Elements))
	}
	if res.Quality == nil || res.Quality.Level != QualityGood {
		t.Errorf("quality = %+v, want good", res.Quality)
	}
}

func TestServiceCapture_VisionHints(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1920, Height: 2400})
	svc, _ := newFakeService(session)

	res, err := svc.Capture(context.Background(), CaptureRequest{
		URL:                "https://example.com",
		IncludeVisionHints: true,
		TargetModel:        "claude",
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Hints == nil {
		t.Fatal("hints not attached")
	}
	// The default viewport frame is 1920x1080.
	if res.Hints.ImageWidth != 1920 || res.Hints.ImageHeight != 1080 {
		t.Errorf("hints sized %dx%d", res.Hints.ImageWidth, res.Hints.ImageHeight)
	}
	if res.Hints.Models["claude"].Compatible {
		t.Error("1920x1080 should be incompatible with claude")
	}
	if *res.Hints.RecommendedWidth != 1568 || *res.Hints.RecommendedHeight != 882 {
		t.Errorf("recommended = %dx%d", *res.Hints.RecommendedWidth, *res.Hints.RecommendedHeight)
	}
}

func TestServiceCapture_FullPageHintsUseDocumentFrame(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1920, Height: 5000})
	svc, _ := newFakeService(session)

	res, err := svc.Capture(context.Background(), CaptureRequest{
		URL:                "https://example.com",
		FullPage:           true,
		IncludeVisionHints: true,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Hints.ImageHeight != 5000 {
		t.Errorf("hints height = %d, want the document height", res.Hints.ImageHeight)
	}
	if res.Hints.Tiling == nil {
		t.Error("a 5000px frame should earn a tiling recommendation")
	}
}

func TestServiceCapture_UnknownModelFailsBeforeBrowser(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1920, Height: 2400})
	svc, engine := newFakeService(session)

	_, err := svc.Capture(context.Background(), CaptureRequest{
		URL:                "https://example.com",
		IncludeVisionHints: true,
		TargetModel:        "gpt9",
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if len(engine.targets) != 0 {
		t.Error("a session was opened for a request that cannot succeed")
	}
}

func TestServiceCapture_InvalidRequestNoSession(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1920, Height: 2400})
	svc, engine := newFakeService(session)

	_, err := svc.Capture(context.Background(), CaptureRequest{URL: "ftp://example.com"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if len(engine.targets) != 0 {
		t.Error("a session was opened for an invalid request")
	}
}

func TestServiceCapture_SessionError(t *testing.T) {
	svc, engine := newFakeService(newFakeSession(PageDimensions{Width: 800, Height: 600}))
	engine.sessionErr = errors.New("browser gone")

	if _, err := svc.Capture(context.Background(), CaptureRequest{URL: "https://example.com"}); err == nil {
		t.Fatal("expected the session error to surface")
	}
}

func TestService_Closed(t *testing.T) {
	svc, _ := newFakeService(newFakeSession(PageDimensions{Width: 800, Height: 600}))

	if err := svc.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := svc.Capture(context.Background(), CaptureRequest{URL: "https://example.com"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Capture after Close: %v, want ErrClosed", err)
	}
	if _, err := svc.CaptureTiled(context.Background(), TiledCaptureRequest{URL: "https://example.com"}); !errors.Is(err, ErrClosed) {
		t.Errorf("CaptureTiled after Close: %v, want ErrClosed", err)
	}
	if svc.Healthy(context.Background()) {
		t.Error("closed service reports healthy")
	}
}

type pingableEngine struct {
	fakeEngine
	pingErr error
}

func (e *pingableEngine) Ping(ctx context.Context) error { return e.pingErr }

func TestService_Healthy(t *testing.T) {
	plain, _ := newFakeService(newFakeSession(PageDimensions{Width: 800, Height: 600}))
	if !plain.Healthy(context.Background()) {
		t.Error("engine without a ping should count as healthy")
	}

	dead := newService(defaultServiceConfig(), &pingableEngine{pingErr: errors.New("dead")})
	if dead.Healthy(context.Background()) {
		t.Error("failing ping should report unhealthy")
	}

	alive := newService(defaultServiceConfig(), &pingableEngine{})
	if !alive.Healthy(context.Background()) {
		t.Error("successful ping should report healthy")
	}
}

func TestServiceCaptureTiled_Pipeline(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1000, Height: 2000})
	session.elementsFor = func(tile *Rect) []Element {
		if tile == nil {
			t.Error("tiled capture should extract with a tile filter")
			return nil
		}
		return []Element{
			{Selector: "#nav", TagName: "nav", Text: "Menu", Rect: Rect{X: 0, Y: 0, Width: tile.Width, Height: 64}, Visible: true, Fixed: true},
			{Selector: fmt.Sprintf("p.at-%d-%d", tile.X, tile.Y), TagName: "p", Text: "tile content paragraph", Rect: Rect{X: 10, Y: 20, Width: 100, Height: 30}, Visible: true},
		}
	}
	svc, engine := newFakeService(session)

	res, err := svc.CaptureTiled(context.Background(), TiledCaptureRequest{
		URL:   "https://example.com",
		Tiles: TileConfig{TileWidth: 800, TileHeight: 800, Overlap: 50, MaxTileCount: 10},
	})
	if err != nil {
		t.Fatalf("CaptureTiled: %v", err)
	}

	// 1000x2000 with stride 750: 3 rows, 2 cols.
	if res.Plan.Rows != 3 || res.Plan.Cols != 2 || len(res.Tiles) != 6 {
		t.Fatalf("plan = %dx%d with %d tiles, want 3x2 with 6", res.Plan.Rows, res.Plan.Cols, len(res.Tiles))
	}
	if res.Plan.AppliedPreset != "" {
		t.Errorf("applied preset = %q, want empty without a model", res.Plan.AppliedPreset)
	}
	if len(engine.targets) != 1 || engine.targets[0].ViewportWidth != 800 {
		t.Errorf("session viewport = %+v, want the tile size", engine.targets)
	}

	// Tiles were rendered in plan order.
	for i, tile := range res.Plan.Tiles {
		if session.renderedTiles[i] != tile.Bounds {
			t.Errorf("render %d = %+v, want %+v", i, session.renderedTiles[i], tile.Bounds)
		}
	}

	// One nav plus one paragraph per tile; the nav is kept once.
	if len(res.Elements) != 7 {
		t.Fatalf("merged %d elements, want 7", len(res.Elements))
	}
	nav := res.Elements[0]
	if nav.Selector != "#nav" || nav.TileIndex == nil || *nav.TileIndex != 0 {
		t.Errorf("first element = %+v, want the tile-0 nav", nav)
	}
	if nav.Rect != (Rect{X: 0, Y: 0, Width: 800, Height: 64}) {
		t.Errorf("nav rect = %+v", nav.Rect)
	}

	for i, el := range res.Elements[1:] {
		tile := res.Plan.Tiles[i]
		wantRect := Rect{X: tile.Bounds.X + 10, Y: tile.Bounds.Y + 20, Width: 100, Height: 30}
		if el.Rect != wantRect {
			t.Errorf("tile %d element rect = %+v, want %+v", i, el.Rect, wantRect)
		}
		if el.TileIndex == nil || *el.TileIndex != i {
			t.Errorf("tile %d element has TileIndex %v", i, el.TileIndex)
		}
		if el.TileLocalRect == nil || *el.TileLocalRect != (Rect{X: 10, Y: 20, Width: 100, Height: 30}) {
			t.Errorf("tile %d element local rect = %+v", i, el.TileLocalRect)
		}
	}

	// Two elements per tile is under the sparse threshold.
	for _, tc := range res.Tiles {
		if tc.ElementCount != 2 {
			t.Errorf("tile %d element count = %d, want 2", tc.Tile.Index, tc.ElementCount)
		}
		if len(tc.Warnings) != 1 || !strings.Contains(tc.Warnings[0], "only 2 elements") {
			t.Errorf("tile %d warnings = %v", tc.Tile.Index, tc.Warnings)
		}
		if string(tc.Image.Bytes()) != "tile-pixels" {
			t.Errorf("tile %d image missing", tc.Tile.Index)
		}
	}

	if res.Quality == nil || res.Quality.Level != QualityLow {
		t.Errorf("quality = %+v, want low for 7 elements", res.Quality)
	}
	if session.closeCalls != 1 {
		t.Errorf("session closed %d times, want 1", session.closeCalls)
	}
}

func TestServiceCaptureTiled_ModelPreset(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1920, Height: 5000})
	session.elementsFor = func(tile *Rect) []Element { return richElements(6) }
	svc, engine := newFakeService(session)

	res, err := svc.CaptureTiled(context.Background(), TiledCaptureRequest{
		URL:                "https://example.com",
		Model:              "claude",
		IncludeVisionHints: true,
	})
	if err != nil {
		t.Fatalf("CaptureTiled: %v", err)
	}
	if res.Plan.Rows != 4 || res.Plan.Cols != 2 {
		t.Errorf("plan = %dx%d, want 4x2", res.Plan.Rows, res.Plan.Cols)
	}
	if res.Plan.AppliedPreset != "claude" {
		t.Errorf("applied preset = %q, want claude", res.Plan.AppliedPreset)
	}
	if engine.targets[0].ViewportWidth != 1568 || engine.targets[0].ViewportHeight != 1568 {
		t.Errorf("viewport = %dx%d, want the claude tile", engine.targets[0].ViewportWidth, engine.targets[0].ViewportHeight)
	}
	if res.Hints == nil || res.Hints.TargetModel != "claude" {
		t.Fatalf("hints = %+v", res.Hints)
	}
	// Hints evaluate the tile size, not the page.
	if res.Hints.ImageWidth != 1568 || res.Hints.ImageHeight != 1568 {
		t.Errorf("hints sized %dx%d, want 1568x1568", res.Hints.ImageWidth, res.Hints.ImageHeight)
	}
	if !res.Hints.Models["claude"].Compatible {
		t.Error("claude tiles should be claude-compatible")
	}
}

func TestServiceCaptureTiled_OverflowRendersNothing(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1920, Height: 100000})
	svc, _ := newFakeService(session)

	_, err := svc.CaptureTiled(context.Background(), TiledCaptureRequest{
		URL:   "https://example.com",
		Tiles: TileConfig{TileWidth: 800, TileHeight: 800, Overlap: 50, MaxTileCount: 10},
	})
	var overflow *GridOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("err = %v, want *GridOverflowError", err)
	}
	if overflow.Allowed != 10 {
		t.Errorf("allowed = %d, want 10", overflow.Allowed)
	}
	if len(session.renderedTiles) != 0 {
		t.Errorf("%d tiles rendered despite overflow", len(session.renderedTiles))
	}
}

func TestServiceCaptureTiled_TileFailureIsNamed(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1000, Height: 2000})
	session.failTile = 2
	svc, _ := newFakeService(session)

	_, err := svc.CaptureTiled(context.Background(), TiledCaptureRequest{
		URL:   "https://example.com",
		Tiles: TileConfig{TileWidth: 800, TileHeight: 800, Overlap: 50, MaxTileCount: 10},
	})
	if err == nil || !strings.Contains(err.Error(), "tile 2") {
		t.Fatalf("err = %v, want a tile-2 failure", err)
	}
	if len(session.renderedTiles) != 2 {
		t.Errorf("%d tiles rendered before the failure, want 2", len(session.renderedTiles))
	}
}

func TestServiceCaptureTiled_ExtractionFailureIsNamed(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 800, Height: 600})
	session.extractErr = errors.New("script blew up")
	svc, _ := newFakeService(session)

	_, err := svc.CaptureTiled(context.Background(), TiledCaptureRequest{
		URL:   "https://example.com",
		Tiles: TileConfig{TileWidth: 800, TileHeight: 800, Overlap: 50, MaxTileCount: 10},
	})
	if err == nil || !strings.Contains(err.Error(), "tile 0") {
		t.Fatalf("err = %v, want a tile-0 failure", err)
	}
}

func TestServiceCaptureTiled_SpreadsWaitBudget(t *testing.T) {
	session := newFakeSession(PageDimensions{Width: 1000, Height: 2000})
	svc, _ := newFakeService(session)

	_, err := svc.CaptureTiled(context.Background(), TiledCaptureRequest{
		URL:        "https://example.com",
		Tiles:      TileConfig{TileWidth: 800, TileHeight: 800, Overlap: 50, MaxTileCount: 10},
		WaitBudget: 1200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("CaptureTiled: %v", err)
	}
	// 1200ms over 6 tiles.
	for i, settle := range session.settles {
		if settle != 200*time.Millisecond {
			t.Errorf("tile %d settle = %v, want 200ms", i, settle)
		}
	}
}

func TestPerTileSettle(t *testing.T) {
	tests := []struct {
		budget time.Duration
		tiles  int
		want   time.Duration
	}{
		{0, 8, 50 * time.Millisecond},
		{-time.Second, 4, 50 * time.Millisecond},
		{time.Second, 4, 250 * time.Millisecond},
		{100 * time.Millisecond, 4, 50 * time.Millisecond},
		{10 * time.Second, 2, 5 * time.Second},
		{time.Second, 0, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := perTileSettle(tt.budget, tt.tiles); got != tt.want {
			t.Errorf("perTileSettle(%v, %d) = %v, want %v", tt.budget, tt.tiles, got, tt.want)
		}
	}
}
