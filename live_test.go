package screenshot_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	screenshot "github.com/porticus-lab/go-screenshot"
)

// chromeAvailable reports whether a Chrome/Chromium executable is in PATH.
func chromeAvailable() bool {
	for _, name := range []string{
		"chromium-browser", "chromium", "google-chrome",
		"google-chrome-stable", "chrome",
	} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func skipIfNoChrome(t *testing.T) {
	t.Helper()
	if !chromeAvailable() {
		t.Skip("skipping: Chrome/Chromium not found in PATH")
	}
}

func newTestService(t *testing.T) *screenshot.Service {
	t.Helper()
	skipIfNoChrome(t)
	svc, err := screenshot.NewService(screenshot.WithNoSandbox())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

// writeTestPage writes html to a temp file and returns a file:// URL for it.
func writeTestPage(t *testing.T, html string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		t.Fatal(err)
	}
	return "file://" + path
}

// isPNG checks whether data starts with the PNG magic number.
func isPNG(data []byte) bool {
	return len(data) > 8 && string(data[:4]) == "\x89PNG"
}

// isJPEG checks whether data starts with the JPEG magic number.
func isJPEG(data []byte) bool {
	return len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8
}

const basicPage = `<!DOCTYPE html>
<html>
<head><style>
  body { font-family: sans-serif; margin: 0; padding: 2rem; }
  nav { position: fixed; top: 0; left: 0; right: 0; background: #1e293b; color: white; padding: 1rem; }
  main { margin-top: 5rem; }
</style></head>
<body>
  <nav>Site Navigation</nav>
  <main>
    <h1>Capture Test Page</h1>
    <p>First paragraph with enough text to register as content.</p>
    <p>Second paragraph, also carrying a reasonable amount of text.</p>
    <a href="/about">About this page</a>
    <button type="button">Click me</button>
  </main>
</body>
</html>`

func TestCapture_Basic(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Capture(context.Background(), screenshot.CaptureRequest{
		URL:     writeTestPage(t, basicPage),
		Extract: &screenshot.ExtractOptions{},
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !isPNG(res.Image.Bytes()) {
		t.Fatal("output is not a valid PNG")
	}
	if res.CaptureID == "" {
		t.Error("missing capture ID")
	}
	if res.Document.Width <= 0 || res.Document.Height <= 0 {
		t.Errorf("document = %+v", res.Document)
	}
	if len(res.Elements) == 0 {
		t.Fatal("no elements extracted")
	}

	var h1 *screenshot.Element
	for i := range res.Elements {
		if res.Elements[i].TagName == "h1" {
			h1 = &res.Elements[i]
			break
		}
	}
	if h1 == nil {
		t.Fatal("h1 not found in extracted elements")
	}
	if h1.Rect.Width <= 0 || h1.Rect.Height <= 0 {
		t.Errorf("h1 rect = %+v", h1.Rect)
	}
	if !strings.Contains(h1.Text, "Capture Test Page") {
		t.Errorf("h1 text = %q", h1.Text)
	}
	if res.Quality == nil {
		t.Error("quality report missing")
	}
}

func TestCapture_FullPageTallDocument(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Capture(context.Background(), screenshot.CaptureRequest{
		URL:      writeTestPage(t, `<body style="margin:0"><div style="height:4000px;background:linear-gradient(#fff,#000)"><h1>Tall</h1></div></body>`),
		FullPage: true,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !isPNG(res.Image.Bytes()) {
		t.Fatal("output is not a valid PNG")
	}
	if res.Document.Height < 4000 {
		t.Errorf("document height = %d, want >= 4000", res.Document.Height)
	}
	_, h, err := res.Image.Dimensions()
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if h <= 1080 {
		t.Errorf("full-page image height = %d, want taller than the viewport", h)
	}
}

func TestCapture_JPEGFormat(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Capture(context.Background(), screenshot.CaptureRequest{
		URL:     writeTestPage(t, basicPage),
		Format:  screenshot.FormatJPEG,
		Quality: 80,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !isJPEG(res.Image.Bytes()) {
		t.Fatal("output is not a valid JPEG")
	}
	if res.Image.MIMEType() != "image/jpeg" {
		t.Errorf("MIME type = %q", res.Image.MIMEType())
	}
}

func TestCapture_DataURL(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Capture(context.Background(), screenshot.CaptureRequest{
		URL: "data:text/html,<h1>Inline</h1>",
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !isPNG(res.Image.Bytes()) {
		t.Fatal("output is not a valid PNG")
	}
}

func TestCapture_WaitForSelector(t *testing.T) {
	svc := newTestService(t)

	res, err := svc.Capture(context.Background(), screenshot.CaptureRequest{
		URL:             writeTestPage(t, basicPage),
		WaitForSelector: "h1",
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Image.Len() == 0 {
		t.Fatal("empty image")
	}
}

func TestCaptureTiled_TallPage(t *testing.T) {
	svc := newTestService(t)

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><style>
  body { font-family: sans-serif; margin: 0; }
  nav { position: fixed; top: 0; left: 0; right: 0; background: #1e293b; color: white; padding: 1rem; }
  section { height: 600px; padding: 1rem; border-bottom: 1px solid #ccc; }
</style></head><body><nav id="topnav">Sticky Navigation</nav>`)
	for i := 1; i <= 6; i++ {
		b.WriteString(`<section><h2>Section heading</h2><p>Body text long enough to count as real page content.</p></section>`)
	}
	b.WriteString(`</body></html>`)

	res, err := svc.CaptureTiled(context.Background(), screenshot.TiledCaptureRequest{
		URL:   writeTestPage(t, b.String()),
		Tiles: screenshot.TileConfig{TileWidth: 1280, TileHeight: 1000, Overlap: 50, MaxTileCount: 20},
	})
	if err != nil {
		t.Fatalf("CaptureTiled: %v", err)
	}
	if len(res.Tiles) != len(res.Plan.Tiles) {
		t.Fatalf("%d tile captures for %d planned tiles", len(res.Tiles), len(res.Plan.Tiles))
	}
	if len(res.Tiles) < 2 {
		t.Fatalf("tall page produced only %d tiles", len(res.Tiles))
	}
	for _, tc := range res.Tiles {
		if !isPNG(tc.Image.Bytes()) {
			t.Fatalf("tile %d is not a valid PNG", tc.Tile.Index)
		}
	}
	if len(res.Elements) == 0 {
		t.Fatal("no elements reconciled")
	}
	for _, el := range res.Elements {
		if el.TileIndex == nil {
			t.Errorf("element %q has no tile provenance", el.Selector)
			continue
		}
		if *el.TileIndex < 0 || *el.TileIndex >= len(res.Plan.Tiles) {
			t.Errorf("element %q has tile index %d out of range", el.Selector, *el.TileIndex)
		}
	}
	if res.Quality == nil {
		t.Error("quality report missing")
	}
}

func TestService_CloseIdempotent(t *testing.T) {
	skipIfNoChrome(t)

	svc, err := screenshot.NewService(screenshot.WithNoSandbox())
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestService_UsedAfterClose(t *testing.T) {
	skipIfNoChrome(t)

	svc, err := screenshot.NewService(screenshot.WithNoSandbox())
	if err != nil {
		t.Fatal(err)
	}
	svc.Close()

	_, err = svc.Capture(context.Background(), screenshot.CaptureRequest{URL: "data:text/html,<p>test</p>"})
	if err != screenshot.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestService_HealthyLifecycle(t *testing.T) {
	skipIfNoChrome(t)

	svc, err := screenshot.NewService(screenshot.WithNoSandbox())
	if err != nil {
		t.Fatal(err)
	}
	if !svc.Healthy(context.Background()) {
		t.Error("fresh service reports unhealthy")
	}
	svc.Close()
	if svc.Healthy(context.Background()) {
		t.Error("closed service reports healthy")
	}
}

func TestCapture_PackageLevel(t *testing.T) {
	skipIfNoChrome(t)

	res, err := screenshot.Capture(
		context.Background(),
		screenshot.CaptureRequest{URL: "data:text/html,<p>Package-level function</p>"},
		screenshot.WithNoSandbox(),
	)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !isPNG(res.Image.Bytes()) {
		t.Fatal("output is not a valid PNG")
	}
}
