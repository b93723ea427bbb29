package httpapi

import (
	"time"

	screenshot "github.com/porticus-lab/go-screenshot"
)

// captureRequestDTO is the JSON body accepted by the screenshot endpoints.
// It extends the library request with millisecond wait fields, since JSON
// callers cannot express Go durations.
type captureRequestDTO struct {
	screenshot.CaptureRequest
	// WaitMs settles the page after load, in milliseconds.
	WaitMs int `json:"wait_for_timeout,omitempty"`
	// DelayMs runs right before the screenshot, in milliseconds.
	DelayMs int `json:"delay,omitempty"`
}

func (d captureRequestDTO) toRequest() screenshot.CaptureRequest {
	req := d.CaptureRequest
	req.ExtraWait = time.Duration(d.WaitMs) * time.Millisecond
	req.Delay = time.Duration(d.DelayMs) * time.Millisecond
	return req
}

// tiledRequestDTO is the JSON body for tiled captures.
type tiledRequestDTO struct {
	screenshot.TiledCaptureRequest
	// WaitMs settles the page once after load, in milliseconds.
	WaitMs int `json:"wait_for_timeout,omitempty"`
	// WaitBudgetMs is spread across tiles, in milliseconds.
	WaitBudgetMs int `json:"wait_budget,omitempty"`
}

func (d tiledRequestDTO) toRequest() screenshot.TiledCaptureRequest {
	req := d.TiledCaptureRequest
	req.ExtraWait = time.Duration(d.WaitMs) * time.Millisecond
	req.WaitBudget = time.Duration(d.WaitBudgetMs) * time.Millisecond
	return req
}

// captureResponse is the JSON form of a single capture: metadata, the
// base64-encoded image, and the ground-truth blocks when requested.
type captureResponse struct {
	CaptureID     string                    `json:"capture_id"`
	URL           string                    `json:"url"`
	Format        string                    `json:"format"`
	FullPage      bool                      `json:"full_page"`
	Viewport      screenshot.PageDimensions `json:"viewport"`
	Document      screenshot.PageDimensions `json:"document"`
	FileSizeBytes int                       `json:"file_size_bytes"`
	CaptureTimeMs float64                   `json:"capture_time_ms"`
	ImageBase64   string                    `json:"image_base64"`

	Elements []screenshot.Element      `json:"elements,omitempty"`
	Quality  *screenshot.QualityReport `json:"quality,omitempty"`
	Hints    *screenshot.VisionHints   `json:"hints,omitempty"`
}

func toCaptureResponse(res *screenshot.CaptureResult) captureResponse {
	return captureResponse{
		CaptureID:     res.CaptureID,
		URL:           res.URL,
		Format:        string(res.Image.Format()),
		FullPage:      res.FullPage,
		Viewport:      res.Viewport,
		Document:      res.Document,
		FileSizeBytes: res.Image.Len(),
		CaptureTimeMs: durationMs(res.CaptureTime),
		ImageBase64:   res.Image.Base64(),
		Elements:      res.Elements,
		Quality:       res.Quality,
		Hints:         res.Hints,
	}
}

// tileDTO is one rendered tile with its image inline.
type tileDTO struct {
	Tile         screenshot.Tile `json:"tile"`
	ImageBase64  string          `json:"image_base64"`
	ElementCount int             `json:"element_count"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// coordinateMapping tells an agent consuming the response how tile-local and
// full-page rects relate.
type coordinateMapping struct {
	Type           string `json:"type"`
	Instructions   string `json:"instructions"`
	FullPageWidth  int    `json:"full_page_width"`
	FullPageHeight int    `json:"full_page_height"`
}

func mappingNote(page screenshot.PageDimensions) coordinateMapping {
	return coordinateMapping{
		Type:           "tile_offset",
		Instructions:   "Element rects are full-page; add tile bounds x/y to tile_local_rect for the same position",
		FullPageWidth:  page.Width,
		FullPageHeight: page.Height,
	}
}

// tiledResponse is the JSON form of a tiled capture: the executed plan, one
// entry per tile, and the reconciled full-page ground truth.
type tiledResponse struct {
	CaptureID         string                    `json:"capture_id"`
	URL               string                    `json:"url"`
	Format            string                    `json:"format"`
	Plan              *screenshot.TilePlan      `json:"plan"`
	Tiles             []tileDTO                 `json:"tiles"`
	Elements          []screenshot.Element      `json:"elements"`
	Quality           *screenshot.QualityReport `json:"quality"`
	Hints             *screenshot.VisionHints   `json:"hints,omitempty"`
	CoordinateMapping coordinateMapping         `json:"coordinate_mapping"`
	CaptureTimeMs     float64                   `json:"capture_time_ms"`
}

func toTiledResponse(res *screenshot.TiledCaptureResult) tiledResponse {
	tiles := make([]tileDTO, 0, len(res.Tiles))
	format := ""
	for _, tc := range res.Tiles {
		format = string(tc.Image.Format())
		tiles = append(tiles, tileDTO{
			Tile:         tc.Tile,
			ImageBase64:  tc.Image.Base64(),
			ElementCount: tc.ElementCount,
			Warnings:     tc.Warnings,
		})
	}
	return tiledResponse{
		CaptureID:         res.CaptureID,
		URL:               res.URL,
		Format:            format,
		Plan:              res.Plan,
		Tiles:             tiles,
		Elements:          res.Elements,
		Quality:           res.Quality,
		Hints:             res.Hints,
		CoordinateMapping: mappingNote(res.Plan.Page),
		CaptureTimeMs:     durationMs(res.CaptureTime),
	}
}

// healthResponse reports service liveness for container orchestration.
type healthResponse struct {
	Status  string `json:"status"`
	Browser bool   `json:"browser"`
	Version string `json:"version,omitempty"`
}

// modelsResponse lists the configured vision model table.
type modelsResponse struct {
	DefaultModel string                `json:"default_model"`
	Models       screenshot.ModelTable `json:"models"`
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	// Field names the offending request field on validation failures.
	Field string `json:"field,omitempty"`
	// Required and Allowed carry tile counts on grid overflows so callers
	// can adjust their request.
	Required int `json:"required,omitempty"`
	Allowed  int `json:"allowed,omitempty"`
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
