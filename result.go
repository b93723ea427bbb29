package screenshot

import (
	"bytes"
	"encoding/base64"
	"image"
	"io"
	"os"
	"time"

	// Header decoders for Image.Dimensions: PNG and JPEG from the standard
	// library, WebP from golang.org/x/image.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Image holds captured pixels and provides helpers for common output forms
// such as raw bytes, base64 encoding, and streaming readers.
//
// It is safe to call its methods multiple times; the underlying data is
// never modified.
type Image struct {
	data   []byte
	format ImageFormat
}

func newImage(f *Frame) *Image {
	return NewImage(f.Image, f.Format)
}

// NewImage wraps already-encoded pixels in an [Image]. Captures construct
// their own images; NewImage exists for fakes and tests that assemble
// results by hand.
func NewImage(data []byte, format ImageFormat) *Image {
	return &Image{data: data, format: format}
}

// Bytes returns the raw encoded image.
func (i *Image) Bytes() []byte {
	return i.data
}

// Base64 returns the image encoded as a standard base64 string (RFC 4648).
// This is the form vision model APIs and JSON payloads expect.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.data)
}

// Reader returns an [*bytes.Reader] over the image content, suitable for
// streaming uploads or any API that accepts an [io.Reader].
func (i *Image) Reader() *bytes.Reader {
	return bytes.NewReader(i.data)
}

// WriteTo writes the full image content to w. It implements [io.WriterTo].
func (i *Image) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(i.data)
	return int64(n), err
}

// WriteToFile writes the image to the file at path, creating it if needed.
func (i *Image) WriteToFile(path string, perm os.FileMode) error {
	return os.WriteFile(path, i.data, perm)
}

// Len returns the encoded size in bytes.
func (i *Image) Len() int {
	return len(i.data)
}

// Format returns the image encoding.
func (i *Image) Format() ImageFormat {
	return i.format
}

// MIMEType returns the media type matching the encoding.
func (i *Image) MIMEType() string {
	return i.format.MIMEType()
}

// Dimensions decodes the image header and returns the pixel dimensions.
func (i *Image) Dimensions() (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(i.data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// CaptureResult is the outcome of a single-frame capture.
type CaptureResult struct {
	// CaptureID correlates the result with service logs.
	CaptureID string `json:"capture_id"`
	URL       string `json:"url"`

	Image *Image `json:"-"`

	// Viewport is the emulated viewport; Document the measured page size.
	Viewport PageDimensions `json:"viewport"`
	Document PageDimensions `json:"document"`
	FullPage bool           `json:"full_page"`

	// Elements and Quality are set when extraction was requested. Rects
	// are frame coordinates, which equal page coordinates.
	Elements []Element      `json:"elements,omitempty"`
	Quality  *QualityReport `json:"quality,omitempty"`
	Hints    *VisionHints   `json:"hints,omitempty"`

	CaptureTime time.Duration `json:"-"`
}

// TileCapture is one rendered tile of a tiled capture.
type TileCapture struct {
	Tile  Tile   `json:"tile"`
	Image *Image `json:"-"`
	// ElementCount is the per-tile extraction size before reconciliation.
	ElementCount int      `json:"element_count"`
	Warnings     []string `json:"warnings,omitempty"`
}

// TiledCaptureResult is the outcome of a tiled capture: the plan that was
// executed, one image per tile, and the reconciled full-page ground truth.
type TiledCaptureResult struct {
	CaptureID string `json:"capture_id"`
	URL       string `json:"url"`

	Plan  *TilePlan     `json:"plan"`
	Tiles []TileCapture `json:"tiles"`

	// Elements is the merged list in full-page coordinates, fixed elements
	// deduplicated. Quality grades this merged list.
	Elements []Element      `json:"elements"`
	Quality  *QualityReport `json:"quality"`
	Hints    *VisionHints   `json:"hints,omitempty"`

	CaptureTime time.Duration `json:"-"`
}
