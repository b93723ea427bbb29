// Package mcpserver exposes captures as Model Context Protocol tools over
// stdio, so agents can drive the browser without the HTTP API.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	screenshot "github.com/porticus-lab/go-screenshot"
)

// Capturer is the service surface the tools use. *screenshot.Service
// implements it.
type Capturer interface {
	Capture(ctx context.Context, req screenshot.CaptureRequest) (*screenshot.CaptureResult, error)
	CaptureTiled(ctx context.Context, req screenshot.TiledCaptureRequest) (*screenshot.TiledCaptureResult, error)
}

// Server wraps an MCP stdio server around a capture service.
type Server struct {
	svc    Capturer
	logger zerolog.Logger
	mcp    *server.MCPServer
}

// New assembles the MCP server and registers the screenshot tools.
func New(svc Capturer, logger zerolog.Logger, version string) *Server {
	s := &Server{svc: svc, logger: logger}

	m := server.NewMCPServer("webshot", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	m.AddTool(screenshotTool(), s.handleScreenshot)
	m.AddTool(screenshotToFileTool(), s.handleScreenshotToFile)
	m.AddTool(screenshotTiledTool(), s.handleScreenshotTiled)
	s.mcp = m
	return s
}

// ServeStdio serves the tools over stdin/stdout until the client disconnects.
// Logs must go to stderr, stdout carries the protocol.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

var cookieItemSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":      map[string]any{"type": "string"},
		"value":     map[string]any{"type": "string"},
		"domain":    map[string]any{"type": "string"},
		"path":      map[string]any{"type": "string"},
		"secure":    map[string]any{"type": "boolean"},
		"http_only": map[string]any{"type": "boolean"},
		"same_site": map[string]any{"type": "string", "enum": []string{"Strict", "Lax", "None"}},
	},
	"required": []string{"name", "value"},
}

func screenshotTool() mcp.Tool {
	return mcp.NewTool("screenshot",
		mcp.WithDescription("Capture a screenshot of a webpage and return it as image content. Supports full-page capture, cookie and storage injection for authenticated pages, and optional element extraction with a quality report."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to capture, including the protocol")),
		mcp.WithBoolean("full_page", mcp.Description("Capture the entire scrollable page instead of the viewport")),
		mcp.WithString("format", mcp.Enum("png", "jpeg", "webp"), mcp.Description("Image format, default png")),
		mcp.WithNumber("width", mcp.Description("Viewport width in pixels, 320-3840, default 1920")),
		mcp.WithNumber("height", mcp.Description("Viewport height in pixels, 240-2160, default 1080")),
		mcp.WithNumber("quality", mcp.Description("Quality 1-100 for jpeg and webp, default 90")),
		mcp.WithNumber("wait_for_timeout", mcp.Description("Extra wait after page load in milliseconds, at most 30000")),
		mcp.WithString("wait_for_selector", mcp.Description("CSS selector to wait for before capture")),
		mcp.WithNumber("delay", mcp.Description("Delay right before the screenshot in milliseconds, at most 10000")),
		mcp.WithBoolean("dark_mode", mcp.Description("Emulate a dark prefers-color-scheme")),
		mcp.WithBoolean("block_ads", mcp.Description("Block common ad and tracking hosts")),
		mcp.WithArray("cookies", mcp.Description("Cookies to inject for authenticated pages"), mcp.Items(cookieItemSchema)),
		mcp.WithObject("local_storage", mcp.Description("localStorage key-value pairs to inject before capture")),
		mcp.WithObject("session_storage", mcp.Description("sessionStorage key-value pairs to inject before capture")),
		mcp.WithBoolean("extract", mcp.Description("Extract visible text elements and report extraction quality")),
		mcp.WithString("target_model", mcp.Description("Vision model to evaluate the image against, e.g. claude; attaches compatibility hints")),
	)
}

func screenshotToFileTool() mcp.Tool {
	return mcp.NewTool("screenshot_to_file",
		mcp.WithDescription("Capture a screenshot and save it to a file. Returns the path and capture metadata. The format follows the file extension unless given explicitly."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to capture, including the protocol")),
		mcp.WithString("output_path", mcp.Required(), mcp.Description("Path the image is written to; parent directories are created")),
		mcp.WithBoolean("full_page", mcp.Description("Capture the entire scrollable page instead of the viewport")),
		mcp.WithString("format", mcp.Enum("png", "jpeg", "webp"), mcp.Description("Image format, default inferred from the extension")),
		mcp.WithNumber("width", mcp.Description("Viewport width in pixels, 320-3840, default 1920")),
		mcp.WithNumber("height", mcp.Description("Viewport height in pixels, 240-2160, default 1080")),
		mcp.WithNumber("quality", mcp.Description("Quality 1-100 for jpeg and webp, default 90")),
		mcp.WithNumber("wait_for_timeout", mcp.Description("Extra wait after page load in milliseconds, at most 30000")),
		mcp.WithString("wait_for_selector", mcp.Description("CSS selector to wait for before capture")),
		mcp.WithNumber("delay", mcp.Description("Delay right before the screenshot in milliseconds, at most 10000")),
		mcp.WithBoolean("dark_mode", mcp.Description("Emulate a dark prefers-color-scheme")),
		mcp.WithBoolean("block_ads", mcp.Description("Block common ad and tracking hosts")),
		mcp.WithArray("cookies", mcp.Description("Cookies to inject for authenticated pages"), mcp.Items(cookieItemSchema)),
		mcp.WithObject("local_storage", mcp.Description("localStorage key-value pairs to inject before capture")),
		mcp.WithObject("session_storage", mcp.Description("sessionStorage key-value pairs to inject before capture")),
	)
}

func screenshotTiledTool() mcp.Tool {
	return mcp.NewTool("screenshot_tiled",
		mcp.WithDescription("Capture a full page as a grid of overlapping tiles sized for a vision model. Tiles are written to a directory; the result is a JSON summary with the tile plan, per-tile files, merged page elements in full-page coordinates and an extraction quality report."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to capture, including the protocol")),
		mcp.WithString("output_dir", mcp.Required(), mcp.Description("Directory the tile images are written to; created if missing")),
		mcp.WithString("model", mcp.Description("Vision model preset for the tile size, e.g. claude, gemini, gpt4v, llama")),
		mcp.WithNumber("tile_width", mcp.Description("Tile width in pixels, overrides the preset")),
		mcp.WithNumber("tile_height", mcp.Description("Tile height in pixels, overrides the preset")),
		mcp.WithNumber("overlap", mcp.Description("Pixels adjacent tiles share, overrides the preset")),
		mcp.WithNumber("max_tile_count", mcp.Description("Upper bound on tiles; the capture fails instead of exceeding it, default 50")),
		mcp.WithString("format", mcp.Enum("png", "jpeg", "webp"), mcp.Description("Tile image format, default png")),
		mcp.WithNumber("quality", mcp.Description("Quality 1-100 for jpeg and webp tiles, default 90")),
		mcp.WithNumber("wait_for_timeout", mcp.Description("Extra wait after page load in milliseconds, at most 30000")),
		mcp.WithNumber("wait_budget", mcp.Description("Total wait in milliseconds spread across tiles for lazy-loading pages")),
		mcp.WithBoolean("dark_mode", mcp.Description("Emulate a dark prefers-color-scheme")),
		mcp.WithBoolean("block_ads", mcp.Description("Block common ad and tracking hosts")),
		mcp.WithBoolean("include_vision_hints", mcp.Description("Attach vision-model compatibility hints for the tile size")),
	)
}

type captureArgs struct {
	URL             string              `json:"url"`
	FullPage        bool                `json:"full_page"`
	Format          string              `json:"format"`
	Width           int                 `json:"width"`
	Height          int                 `json:"height"`
	Quality         int                 `json:"quality"`
	WaitMs          int                 `json:"wait_for_timeout"`
	WaitForSelector string              `json:"wait_for_selector"`
	DelayMs         int                 `json:"delay"`
	DarkMode        bool                `json:"dark_mode"`
	BlockAds        bool                `json:"block_ads"`
	Cookies         []screenshot.Cookie `json:"cookies"`
	LocalStorage    map[string]string   `json:"local_storage"`
	SessionStorage  map[string]string   `json:"session_storage"`
	Extract         bool                `json:"extract"`
	TargetModel     string              `json:"target_model"`

	OutputPath string `json:"output_path"`
}

func (a captureArgs) toRequest() screenshot.CaptureRequest {
	req := screenshot.CaptureRequest{
		URL:             a.URL,
		Width:           a.Width,
		Height:          a.Height,
		FullPage:        a.FullPage,
		Format:          screenshot.ImageFormat(a.Format),
		Quality:         a.Quality,
		DarkMode:        a.DarkMode,
		BlockAds:        a.BlockAds,
		WaitForSelector: a.WaitForSelector,
		ExtraWait:       time.Duration(a.WaitMs) * time.Millisecond,
		Delay:           time.Duration(a.DelayMs) * time.Millisecond,
		Cookies:         a.Cookies,
		LocalStorage:    a.LocalStorage,
		SessionStorage:  a.SessionStorage,
	}
	if a.Extract {
		req.Extract = &screenshot.ExtractOptions{}
	}
	if a.TargetModel != "" {
		req.IncludeVisionHints = true
		req.TargetModel = a.TargetModel
	}
	return req
}

type tiledArgs struct {
	URL          string `json:"url"`
	OutputDir    string `json:"output_dir"`
	Model        string `json:"model"`
	TileWidth    int    `json:"tile_width"`
	TileHeight   int    `json:"tile_height"`
	Overlap      int    `json:"overlap"`
	MaxTileCount int    `json:"max_tile_count"`
	Format       string `json:"format"`
	Quality      int    `json:"quality"`
	WaitMs       int    `json:"wait_for_timeout"`
	WaitBudgetMs int    `json:"wait_budget"`
	DarkMode     bool   `json:"dark_mode"`
	BlockAds     bool   `json:"block_ads"`
	IncludeHints bool   `json:"include_vision_hints"`
}

func (a tiledArgs) toRequest() screenshot.TiledCaptureRequest {
	return screenshot.TiledCaptureRequest{
		URL:   a.URL,
		Model: a.Model,
		Tiles: screenshot.TileConfig{
			TileWidth:    a.TileWidth,
			TileHeight:   a.TileHeight,
			Overlap:      a.Overlap,
			MaxTileCount: a.MaxTileCount,
		},
		Format:             screenshot.ImageFormat(a.Format),
		Quality:            a.Quality,
		DarkMode:           a.DarkMode,
		BlockAds:           a.BlockAds,
		ExtraWait:          time.Duration(a.WaitMs) * time.Millisecond,
		WaitBudget:         time.Duration(a.WaitBudgetMs) * time.Millisecond,
		IncludeVisionHints: a.IncludeHints,
	}
}

func (s *Server) handleScreenshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args captureArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	res, err := s.svc.Capture(ctx, args.toRequest())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Debug().Str("capture_id", res.CaptureID).Str("url", res.URL).Msg("screenshot tool done")
	return mcp.NewToolResultImage(captureSummary(res), res.Image.Base64(), res.Image.MIMEType()), nil
}

func (s *Server) handleScreenshotToFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args captureArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.OutputPath == "" {
		return mcp.NewToolResultError("output_path is required"), nil
	}
	if args.Format == "" {
		args.Format = string(formatForPath(args.OutputPath))
	}

	res, err := s.svc.Capture(ctx, args.toRequest())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if dir := filepath.Dir(args.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("create output directory: %v", err)), nil
		}
	}
	if err := res.Image.WriteToFile(args.OutputPath, 0o644); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("write %s: %v", args.OutputPath, err)), nil
	}
	s.logger.Debug().Str("capture_id", res.CaptureID).Str("path", args.OutputPath).Msg("screenshot saved")
	return mcp.NewToolResultText(fmt.Sprintf("Screenshot saved.\nPath: %s\n%s", args.OutputPath, captureSummary(res))), nil
}

func (s *Server) handleScreenshotTiled(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args tiledArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.OutputDir == "" {
		return mcp.NewToolResultError("output_dir is required"), nil
	}

	res, err := s.svc.CaptureTiled(ctx, args.toRequest())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := os.MkdirAll(args.OutputDir, 0o755); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create output directory: %v", err)), nil
	}

	entries := make([]tileFileEntry, 0, len(res.Tiles))
	for _, tc := range res.Tiles {
		name := tileFileName(tc.Tile.Index, tc.Image.Format())
		path := filepath.Join(args.OutputDir, name)
		if err := tc.Image.WriteToFile(path, 0o644); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("write %s: %v", path, err)), nil
		}
		entries = append(entries, tileFileEntry{
			Tile:         tc.Tile,
			File:         name,
			SizeBytes:    tc.Image.Len(),
			ElementCount: tc.ElementCount,
			Warnings:     tc.Warnings,
		})
	}

	summary := tiledSummary{
		CaptureID: res.CaptureID,
		URL:       res.URL,
		OutputDir: args.OutputDir,
		Plan:      res.Plan,
		Tiles:     entries,
		Elements:  res.Elements,
		Quality:   res.Quality,
		Hints:     res.Hints,
		CoordinateMapping: coordinateMapping{
			Type:           "tile_offset",
			Instructions:   "Element rects are full-page; add tile bounds x/y to tile_local_rect for the same position",
			FullPageWidth:  res.Plan.Page.Width,
			FullPageHeight: res.Plan.Page.Height,
		},
		CaptureTimeMs: float64(res.CaptureTime.Microseconds()) / 1000,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode summary: %v", err)), nil
	}
	s.logger.Debug().Str("capture_id", res.CaptureID).Int("tiles", len(entries)).Str("dir", args.OutputDir).Msg("tiled screenshot saved")
	return mcp.NewToolResultText(string(data)), nil
}

// tiledSummary is the JSON document returned by the screenshot_tiled tool.
// Tile images live on disk, everything an agent needs to map elements back
// onto them travels inline.
type tiledSummary struct {
	CaptureID         string                    `json:"capture_id"`
	URL               string                    `json:"url"`
	OutputDir         string                    `json:"output_dir"`
	Plan              *screenshot.TilePlan      `json:"plan"`
	Tiles             []tileFileEntry           `json:"tiles"`
	Elements          []screenshot.Element      `json:"elements"`
	Quality           *screenshot.QualityReport `json:"quality"`
	Hints             *screenshot.VisionHints   `json:"hints,omitempty"`
	CoordinateMapping coordinateMapping         `json:"coordinate_mapping"`
	CaptureTimeMs     float64                   `json:"capture_time_ms"`
}

// coordinateMapping tells the consuming agent how tile-local and full-page
// rects relate.
type coordinateMapping struct {
	Type           string `json:"type"`
	Instructions   string `json:"instructions"`
	FullPageWidth  int    `json:"full_page_width"`
	FullPageHeight int    `json:"full_page_height"`
}

type tileFileEntry struct {
	Tile         screenshot.Tile `json:"tile"`
	File         string          `json:"file"`
	SizeBytes    int             `json:"size_bytes"`
	ElementCount int             `json:"element_count"`
	Warnings     []string        `json:"warnings,omitempty"`
}

func captureSummary(res *screenshot.CaptureResult) string {
	kind := "viewport"
	dims := res.Viewport
	if res.FullPage {
		kind = "full_page"
		dims = res.Document
	}
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nFormat: %s\nSize: %d bytes\nDimensions: %dx%d\nType: %s\nCapture time: %.2fms",
		res.URL, res.Image.Format(), res.Image.Len(), dims.Width, dims.Height, kind,
		float64(res.CaptureTime.Microseconds())/1000)
	if res.Quality != nil {
		fmt.Fprintf(&b, "\nElements: %d\nExtraction quality: %s", len(res.Elements), res.Quality.Level)
	}
	if res.Hints != nil {
		verdict := "incompatible"
		if res.Hints.Models[res.Hints.TargetModel].Compatible {
			verdict = "compatible"
		}
		fmt.Fprintf(&b, "\nVision: %s with %s", verdict, res.Hints.TargetModel)
	}
	return b.String()
}

// tileFileName names tile images so a directory listing sorts in plan order.
func tileFileName(index int, format screenshot.ImageFormat) string {
	return fmt.Sprintf("tile-%03d.%s", index, fileExt(format))
}

func fileExt(f screenshot.ImageFormat) string {
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
// extensions fall back to PNG.
func formatForPath(path string) screenshot.ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return screenshot.FormatJPEG
	case ".webp":
		return screenshot.FormatWebP
	default:
		return screenshot.FormatPNG
	}
}
