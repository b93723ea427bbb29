package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	screenshot "github.com/porticus-lab/go-screenshot"
)

var captureFlags struct {
	output   string
	fullPage bool
	format   string
	width    int
	height   int
	quality  int
	wait     time.Duration
	delay    time.Duration
	waitFor  string
	dark     bool
	blockAds bool

	extract bool
	metrics bool
	truth   string

	hints bool
	model string

	tiled      bool
	tileWidth  int
	tileHeight int
	overlap    int
	maxTiles   int
	waitBudget time.Duration
}

var captureCmd = &cobra.Command{
	Use:   "capture <url>",
	Short: "Capture a page to an image file or a tile directory",
	Long: `Capture a web page. The default saves one image; --full-page captures the
whole document; --tiled renders the page as an overlapping tile grid and
writes one image per tile plus a ground-truth.json with the tile plan and
the extracted elements in full-page coordinates.

Examples:
  webshot capture https://example.com -o page.png
  webshot capture https://example.com --full-page --dark -o page.jpg
  webshot capture https://example.com --extract --truth elements.json -o page.png
  webshot capture https://example.com --tiled --model claude -o ./tiles
  webshot capture https://example.com --tiled --tile-width 1024 --tile-height 1024 --overlap 64 -o ./tiles`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	f := captureCmd.Flags()

	f.StringVarP(&captureFlags.output, "output", "o", "", "output file, or directory with --tiled")
	f.BoolVar(&captureFlags.fullPage, "full-page", false, "capture the whole scrollable document")
	f.StringVar(&captureFlags.format, "format", "", "image format: png, jpeg or webp (default from extension)")
	f.IntVar(&captureFlags.width, "width", 0, "viewport width in pixels")
	f.IntVar(&captureFlags.height, "height", 0, "viewport height in pixels")
	f.IntVar(&captureFlags.quality, "quality", 0, "quality 1-100 for jpeg and webp")
	f.DurationVar(&captureFlags.wait, "wait", 0, "extra wait after page load, e.g. 1500ms")
	f.DurationVar(&captureFlags.delay, "delay", 0, "delay right before the screenshot")
	f.StringVar(&captureFlags.waitFor, "wait-for", "", "CSS selector to wait for before capture")
	f.BoolVar(&captureFlags.dark, "dark", false, "emulate a dark prefers-color-scheme")
	f.BoolVar(&captureFlags.blockAds, "block-ads", false, "block common ad and tracking hosts")

	f.BoolVar(&captureFlags.extract, "extract", false, "extract visible text elements")
	f.BoolVar(&captureFlags.metrics, "metrics", false, "include full metrics in the quality report")
	f.StringVar(&captureFlags.truth, "truth", "", "write extracted elements as ground-truth JSON to this file")

	f.BoolVar(&captureFlags.hints, "hints", false, "attach vision-model compatibility hints")
	f.StringVar(&captureFlags.model, "model", "", "vision model: preset for --tiled, hint target otherwise")

	f.BoolVar(&captureFlags.tiled, "tiled", false, "capture as an overlapping tile grid")
	f.IntVar(&captureFlags.tileWidth, "tile-width", 0, "tile width in pixels")
	f.IntVar(&captureFlags.tileHeight, "tile-height", 0, "tile height in pixels")
	f.IntVar(&captureFlags.overlap, "overlap", 0, "pixels adjacent tiles share")
	f.IntVar(&captureFlags.maxTiles, "max-tiles", 0, "upper bound on the tile count")
	f.DurationVar(&captureFlags.waitBudget, "wait-budget", 0, "total wait spread across tiles")
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := screenshot.NewService(cfg.ServiceOptions(logger)...)
	if err != nil {
		return fmt.Errorf("start capture service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error().Err(err).Msg("close capture service")
		}
	}()

	if captureFlags.tiled {
		return runCaptureTiled(ctx, svc, args[0])
	}
	return runCaptureSingle(ctx, svc, args[0])
}

func runCaptureSingle(ctx context.Context, svc *screenshot.Service, url string) error {
	format := captureFlags.format
	if format == "" && captureFlags.output != "" {
		format = string(formatForPath(captureFlags.output))
	}

	req := screenshot.CaptureRequest{
		URL:             url,
		Width:           orDefault(captureFlags.width, cfg.Capture.ViewportWidth),
		Height:          orDefault(captureFlags.height, cfg.Capture.ViewportHeight),
		FullPage:        captureFlags.fullPage,
		Format:          screenshot.ImageFormat(orDefaultStr(format, cfg.Capture.Format)),
		Quality:         orDefault(captureFlags.quality, cfg.Capture.Quality),
		DarkMode:        captureFlags.dark,
		BlockAds:        captureFlags.blockAds,
		WaitForSelector: captureFlags.waitFor,
		ExtraWait:       captureFlags.wait,
		Delay:           captureFlags.delay,
	}
	if captureFlags.extract || captureFlags.truth != "" {
		req.Extract = &screenshot.ExtractOptions{}
		req.IncludeQualityMetrics = captureFlags.metrics
	}
	if captureFlags.hints || captureFlags.model != "" {
		req.IncludeVisionHints = true
		req.TargetModel = captureFlags.model
	}

	res, err := svc.Capture(ctx, req)
	if err != nil {
		return err
	}

	out := captureFlags.output
	if out == "" {
		out = "screenshot." + imageExt(res.Image.Format())
	}
	if err := res.Image.WriteToFile(out, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes, %s, %v)\n", out, res.Image.Len(), res.Image.Format(), res.CaptureTime.Round(time.Millisecond))

	if res.Quality != nil {
		fmt.Printf("extracted %d elements, quality %s\n", len(res.Elements), res.Quality.Level)
		for _, warn := range res.Quality.Warnings {
			fmt.Printf("  warning: %s\n", warn.Message)
		}
	}
	if res.Hints != nil {
		printHintSummary(res.Hints)
	}
	if captureFlags.truth != "" {
		if err := writeJSONFile(captureFlags.truth, singleGroundTruth(res)); err != nil {
			return err
		}
		fmt.Printf("ground truth: %s\n", captureFlags.truth)
	}
	return nil
}

func runCaptureTiled(ctx context.Context, svc *screenshot.Service, url string) error {
	req := screenshot.TiledCaptureRequest{
		URL:   url,
		Model: captureFlags.model,
		Tiles: screenshot.TileConfig{
			TileWidth:    captureFlags.tileWidth,
			TileHeight:   captureFlags.tileHeight,
			Overlap:      captureFlags.overlap,
			MaxTileCount: orDefault(captureFlags.maxTiles, cfg.Capture.MaxTileCount),
		},
		Format:                screenshot.ImageFormat(orDefaultStr(captureFlags.format, cfg.Capture.Format)),
		Quality:               orDefault(captureFlags.quality, cfg.Capture.Quality),
		DarkMode:              captureFlags.dark,
		BlockAds:              captureFlags.blockAds,
		WaitForSelector:       captureFlags.waitFor,
		ExtraWait:             captureFlags.wait,
		WaitBudget:            captureFlags.waitBudget,
		IncludeQualityMetrics: captureFlags.metrics,
		IncludeVisionHints:    captureFlags.hints,
	}

	res, err := svc.CaptureTiled(ctx, req)
	if err != nil {
		return err
	}

	dir := captureFlags.output
	if dir == "" {
		dir = "tiles"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, tc := range res.Tiles {
		name := fmt.Sprintf("tile-%03d.%s", tc.Tile.Index, imageExt(tc.Image.Format()))
		if err := tc.Image.WriteToFile(filepath.Join(dir, name), 0o644); err != nil {
			return err
		}
	}
	if err := writeJSONFile(filepath.Join(dir, "ground-truth.json"), tiledGroundTruth(res)); err != nil {
		return err
	}

	fmt.Printf("wrote %d tiles (%dx%d grid, %dx%d page) to %s in %v\n",
		len(res.Tiles), res.Plan.Rows, res.Plan.Cols,
		res.Plan.Page.Width, res.Plan.Page.Height, dir, res.CaptureTime.Round(time.Millisecond))
	fmt.Printf("extracted %d elements, quality %s\n", len(res.Elements), res.Quality.Level)
	for _, warn := range res.Quality.Warnings {
		fmt.Printf("  warning: %s\n", warn.Message)
	}
	if res.Hints != nil {
		printHintSummary(res.Hints)
	}
	return nil
}

// groundTruth is the JSON written next to captured images so vision-model
// answers can be checked against real element positions.
type groundTruth struct {
	CaptureID string                     `json:"capture_id"`
	URL       string                     `json:"url"`
	Viewport  *screenshot.PageDimensions `json:"viewport,omitempty"`
	Document  screenshot.PageDimensions  `json:"document"`
	FullPage  bool                       `json:"full_page,omitempty"`
	Plan      *screenshot.TilePlan       `json:"plan,omitempty"`
	Elements  []screenshot.Element       `json:"elements"`
	Quality   *screenshot.QualityReport  `json:"quality,omitempty"`
	Hints     *screenshot.VisionHints    `json:"hints,omitempty"`
}

func singleGroundTruth(res *screenshot.CaptureResult) groundTruth {
	return groundTruth{
		CaptureID: res.CaptureID,
		URL:       res.URL,
		Viewport:  &res.Viewport,
		Document:  res.Document,
		FullPage:  res.FullPage,
		Elements:  res.Elements,
		Quality:   res.Quality,
		Hints:     res.Hints,
	}
}

func tiledGroundTruth(res *screenshot.TiledCaptureResult) groundTruth {
	return groundTruth{
		CaptureID: res.CaptureID,
		URL:       res.URL,
		Document:  res.Plan.Page,
		Plan:      res.Plan,
		Elements:  res.Elements,
		Quality:   res.Quality,
		Hints:     res.Hints,
	}
}

func printHintSummary(hints *screenshot.VisionHints) {
	verdict := "incompatible"
	if hints.Models[hints.TargetModel].Compatible {
		verdict = "compatible"
	}
	fmt.Printf("vision: %dx%d is %s with %s (coordinate accuracy %.2f)\n",
		hints.ImageWidth, hints.ImageHeight, verdict, hints.TargetModel, hints.CoordinateAccuracy)
	if t := hints.Tiling; t != nil {
		fmt.Printf("  suggested tiling: %d %dx%d tiles, overlap %d (%s)\n",
			t.TileCount, t.TileWidth, t.TileHeight, t.Overlap, t.Reason)
	}
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func imageExt(f screenshot.ImageFormat) string {
	switch f {
	case screenshot.FormatJPEG:
		return "jpg"
	case screenshot.FormatWebP:
		return "webp"
	default:
		return "png"
	}
}

// formatForPath infers the image format from a file extension. Unknown
// extensions fall back to the configured default.
func formatForPath(path string) screenshot.ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return screenshot.FormatJPEG
	case ".webp":
		return screenshot.FormatWebP
	case ".png":
		return screenshot.FormatPNG
	default:
		return ""
	}
}
