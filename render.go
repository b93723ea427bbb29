package screenshot

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Frame is one rendered image together with the geometry it was captured at.
type Frame struct {
	Image  []byte
	Format ImageFormat
	Width  int
	Height int
}

// RenderTarget describes the navigation performed when a session opens:
// where to go, how the viewport looks, and what to inject first.
type RenderTarget struct {
	URL               string
	ViewportWidth     int
	ViewportHeight    int
	DeviceScaleFactor float64
	UserAgent         string
	DarkMode          bool
	BlockAds          bool
	Cookies           []Cookie
	LocalStorage      map[string]string
	SessionStorage    map[string]string
	WaitForSelector   string
	ExtraWait         time.Duration
	Format            ImageFormat
	Quality           int
}

// RenderSession is one navigated page. A session holds a single browser tab
// with a single scroll position, so it is not safe for concurrent use; the
// orchestrator drives it strictly sequentially.
type RenderSession interface {
	// DocumentSize measures the fully rendered document.
	DocumentSize(ctx context.Context) (PageDimensions, error)

	// RenderTile scrolls to the tile origin, settles, and captures exactly
	// the tile bounds. The clip is absolute, so pixels are correct even
	// when the browser clamps the scroll near the document edge.
	RenderTile(ctx context.Context, bounds Rect, settle time.Duration) (*Frame, error)

	// CaptureFrame captures the current viewport, or the whole document
	// when fullPage is set, after an optional settle delay.
	CaptureFrame(ctx context.Context, fullPage bool, settle time.Duration) (*Frame, error)

	// ExtractElements runs the extraction script. A non-nil tile restricts
	// the result to elements intersecting it, with rects relative to the
	// tile origin; nil reports absolute page coordinates.
	ExtractElements(ctx context.Context, opts ExtractOptions, tile *Rect) ([]Element, error)

	// Close releases the tab. It is safe to call more than once.
	Close() error
}

// RenderEngine opens render sessions. It is implemented by the chromedp
// engine owned by [Service] and by fakes in tests.
type RenderEngine interface {
	NewSession(ctx context.Context, target RenderTarget) (RenderSession, error)
}

// chromeEngine renders pages in tabs of a shared headless browser.
type chromeEngine struct {
	browserCtx context.Context
}

func (e *chromeEngine) NewSession(ctx context.Context, target RenderTarget) (RenderSession, error) {
	tabCtx, tabCancel := chromedp.NewContext(e.browserCtx)
	s := &chromeSession{tabCtx: tabCtx, tabCancel: tabCancel, target: target}
	if err := s.navigate(ctx); err != nil {
		tabCancel()
		return nil, err
	}
	return s, nil
}

// Ping evaluates a trivial expression in a fresh tab. The wait is bounded so
// health probes cannot hang on a wedged browser.
func (e *chromeEngine) Ping(ctx context.Context) error {
	tabCtx, cancel := chromedp.NewContext(e.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	runCtx, runCancel := context.WithTimeout(tabCtx, 5*time.Second)
	defer runCancel()

	var sum int
	if err := chromedp.Run(runCtx, chromedp.Evaluate("1+1", &sum)); err != nil {
		return fmt.Errorf("screenshot: browser ping: %w", err)
	}
	if sum != 2 {
		return fmt.Errorf("screenshot: browser ping returned %d", sum)
	}
	return nil
}

type chromeSession struct {
	tabCtx    context.Context
	tabCancel context.CancelFunc
	target    RenderTarget
}

// run executes actions on the session tab. The tab context descends from the
// browser, not from the caller, so the caller's cancellation and deadline are
// bridged in explicitly.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (s *chromeSession) navigate(ctx context.Context) error {
	t := s.target
	var actions []chromedp.Action

	if t.ViewportWidth > 0 && t.ViewportHeight > 0 {
		scale := t.DeviceScaleFactor
		if scale <= 0 {
			scale = 1.0
		}
		actions = append(actions, chromedp.EmulateViewport(
			int64(t.ViewportWidth), int64(t.ViewportHeight), chromedp.EmulateScale(scale),
		))
	}
	if t.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(t.UserAgent))
	}
	if t.DarkMode {
		actions = append(actions, emulation.SetEmulatedMedia().WithFeatures([]*emulation.MediaFeature{
			{Name: "prefers-color-scheme", Value: "dark"},
		}))
	}
	if t.BlockAds || len(t.Cookies) > 0 {
		actions = append(actions, network.Enable())
	}
	if t.BlockAds {
		actions = append(actions, network.SetBlockedURLs(blockedURLPatterns))
	}
	if len(t.Cookies) > 0 {
		actions = append(actions, setCookiesAction(t.Cookies, t.URL))
	}

	// Storage can only be written on the target origin, so injection takes
	// a detour: load the origin, set the items, then navigate for real.
	if len(t.LocalStorage) > 0 || len(t.SessionStorage) > 0 {
		origin, err := originOf(t.URL)
		if err != nil {
			return err
		}
		actions = append(actions,
			chromedp.Navigate(origin),
			chromedp.Evaluate(buildStorageExpr(t.LocalStorage, t.SessionStorage), nil),
		)
	}

	actions = append(actions,
		chromedp.Navigate(t.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if t.WaitForSelector != "" {
		actions = append(actions, chromedp.WaitVisible(t.WaitForSelector, chromedp.ByQuery))
	}
	if t.ExtraWait > 0 {
		actions = append(actions, chromedp.Sleep(t.ExtraWait))
	}

	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("screenshot: navigating to %s: %w", t.URL, err)
	}
	return nil
}

func setCookiesAction(cookies []Cookie, targetURL string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			p := network.SetCookie(c.Name, c.Value).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if c.Domain != "" {
				p = p.WithDomain(c.Domain)
			} else {
				p = p.WithURL(targetURL)
			}
			if c.Path != "" {
				p = p.WithPath(c.Path)
			}
			switch strings.ToLower(c.SameSite) {
			case "strict":
				p = p.WithSameSite(network.CookieSameSiteStrict)
			case "lax":
				p = p.WithSameSite(network.CookieSameSiteLax)
			case "none":
				p = p.WithSameSite(network.CookieSameSiteNone)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("setting cookie %q: %w", c.Name, err)
			}
		}
		return nil
	})
}

func (s *chromeSession) DocumentSize(ctx context.Context) (PageDimensions, error) {
	var dims PageDimensions
	if err := s.run(ctx, chromedp.Evaluate(documentSizeJS, &dims)); err != nil {
		return PageDimensions{}, fmt.Errorf("screenshot: measuring document: %w", err)
	}
	if dims.Width <= 0 || dims.Height <= 0 {
		return PageDimensions{}, fmt.Errorf("screenshot: document reported empty size %dx%d", dims.Width, dims.Height)
	}
	return dims, nil
}

func (s *chromeSession) RenderTile(ctx context.Context, bounds Rect, settle time.Duration) (*Frame, error) {
	if bounds.Empty() {
		return nil, fmt.Errorf("screenshot: rendering tile: empty bounds %+v", bounds)
	}

	// Scrolling is still worth doing for lazy-loaded content even though
	// the clip below is absolute.
	actions := []chromedp.Action{chromedp.Evaluate(scrollToExpr(bounds.X, bounds.Y), nil)}
	if settle > 0 {
		actions = append(actions, chromedp.Sleep(settle))
	}

	var buf []byte
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().
			WithFormat(cdpFormat(s.target.Format)).
			WithClip(&page.Viewport{
				X:      float64(bounds.X),
				Y:      float64(bounds.Y),
				Width:  float64(bounds.Width),
				Height: float64(bounds.Height),
				Scale:  1,
			}).
			WithCaptureBeyondViewport(true)
		if s.target.Format != FormatPNG {
			params = params.WithQuality(int64(s.target.Quality))
		}
		var err error
		buf, err = params.Do(ctx)
		return err
	}))

	if err := s.run(ctx, actions...); err != nil {
		return nil, fmt.Errorf("screenshot: rendering tile at %d,%d: %w", bounds.X, bounds.Y, err)
	}
	return &Frame{Image: buf, Format: s.target.Format, Width: bounds.Width, Height: bounds.Height}, nil
}

func (s *chromeSession) CaptureFrame(ctx context.Context, fullPage bool, settle time.Duration) (*Frame, error) {
	if fullPage {
		dims, err := s.DocumentSize(ctx)
		if err != nil {
			return nil, err
		}
		return s.RenderTile(ctx, Rect{Width: dims.Width, Height: dims.Height}, settle)
	}

	var actions []chromedp.Action
	if settle > 0 {
		actions = append(actions, chromedp.Sleep(settle))
	}
	var buf []byte
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().WithFormat(cdpFormat(s.target.Format))
		if s.target.Format != FormatPNG {
			params = params.WithQuality(int64(s.target.Quality))
		}
		var err error
		buf, err = params.Do(ctx)
		return err
	}))

	if err := s.run(ctx, actions...); err != nil {
		return nil, fmt.Errorf("screenshot: capturing viewport: %w", err)
	}
	return &Frame{Image: buf, Format: s.target.Format, Width: s.target.ViewportWidth, Height: s.target.ViewportHeight}, nil
}

func (s *chromeSession) ExtractElements(ctx context.Context, opts ExtractOptions, tile *Rect) ([]Element, error) {
	expr, err := buildExtractionExpr(opts, tile)
	if err != nil {
		return nil, err
	}
	var elements []Element
	if err := s.run(ctx, chromedp.Evaluate(expr, &elements)); err != nil {
		return nil, fmt.Errorf("screenshot: extracting elements: %w", err)
	}
	return elements, nil
}

func (s *chromeSession) Close() error {
	s.tabCancel()
	return nil
}

func cdpFormat(f ImageFormat) page.CaptureScreenshotFormat {
	switch f {
	case FormatJPEG:
		return page.CaptureScreenshotFormatJpeg
	case FormatWebP:
		return page.CaptureScreenshotFormatWebp
	default:
		return page.CaptureScreenshotFormatPng
	}
}

// originOf reduces a URL to its origin for the storage-injection detour.
func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("screenshot: parsing URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("screenshot: URL %q has no origin for storage injection", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
