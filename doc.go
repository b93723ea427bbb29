// Package screenshot captures web pages as pixel screenshots together with
// structured, coordinate-accurate DOM ground truth for vision-capable AI
// models:
//
//   - single-frame and full-page captures via headless Chrome (Chrome
//     DevTools Protocol)
//   - tall pages split into overlapping tile grids that respect model
//     input limits, with per-tile element extraction reconciled into one
//     full-page ground truth
//   - extraction quality assessment and per-model compatibility hints
//
// # Capturing
//
// For one-off captures use the package-level helpers:
//
//	res, err := screenshot.Capture(ctx, screenshot.CaptureRequest{
//	    URL: "https://example.com",
//	})
//
// For repeated captures create a [Service], which reuses the browser
// process:
//
//	svc, err := screenshot.NewService()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	res, err := svc.Capture(ctx, screenshot.CaptureRequest{
//	    URL:      "https://example.com",
//	    FullPage: true,
//	    Extract:  &screenshot.ExtractOptions{},
//	})
//
// A [CaptureResult] carries the pixels and, when extraction is enabled, the
// elements with their page-coordinate rects plus a quality report:
//
//	res.Image.Bytes()                        // encoded image
//	res.Image.WriteToFile("page.png", 0o644) // write to disk
//	res.Elements                             // []Element ground truth
//	res.Quality.Level                        // empty, poor, low or good
//
// # Tiled captures
//
// Vision models downscale oversized images, which destroys the pixel
// correspondence of ground-truth coordinates. [Service.CaptureTiled] renders
// a page as overlapping tiles that each fit the target model, extracting
// elements per tile:
//
//	res, err := svc.CaptureTiled(ctx, screenshot.TiledCaptureRequest{
//	    URL:   "https://example.com/long-article",
//	    Model: "claude",
//	})
//
// Every element carries its full-page rect and its rect inside the tile it
// came from; elements pinned by fixed or sticky positioning appear once even
// though they render in every tile. The grid itself is available through
// [PlanTiles], and [MapToFullPage] and [MapToTileLocal] translate rects
// between the two coordinate spaces.
//
// # Vision hints
//
// [HintEngine] evaluates image dimensions against known model limits without
// touching a browser:
//
//	engine := screenshot.NewHintEngine(screenshot.HintEngineConfig{})
//	hints, err := engine.Hints(screenshot.HintRequest{
//	    ImageWidth:  1920,
//	    ImageHeight: 5000,
//	    TargetModel: "claude",
//	})
//
// Hints report per-model compatibility, the detail lost to provider-side
// downscaling, recommended dimensions, and whether to tile instead.
//
// Chrome or Chromium must be available in standard locations, or use
// [WithAutoDownloadBrowser]:
//
//	svc, err := screenshot.NewService(screenshot.WithAutoDownloadBrowser())
package screenshot
