// Package httpapi serves captures, vision hints and health over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	screenshot "github.com/porticus-lab/go-screenshot"
)

// maxBodyBytes bounds request bodies. Capture requests are small; images
// only ever flow out.
const maxBodyBytes = 1 << 20

// Capturer is the service surface the handlers use. *screenshot.Service
// implements it.
type Capturer interface {
	Capture(ctx context.Context, req screenshot.CaptureRequest) (*screenshot.CaptureResult, error)
	CaptureTiled(ctx context.Context, req screenshot.TiledCaptureRequest) (*screenshot.TiledCaptureResult, error)
	VisionHints(req screenshot.HintRequest) (*screenshot.VisionHints, error)
	Models() screenshot.ModelTable
	DefaultModel() string
	Healthy(ctx context.Context) bool
}

// Defaults are server-wide capture defaults applied to request fields the
// caller left unset. Zero fields defer to the library defaults.
type Defaults struct {
	ViewportWidth  int
	ViewportHeight int
	Format         screenshot.ImageFormat
	Quality        int
	MaxTileCount   int
}

func (d Defaults) applyCapture(req *screenshot.CaptureRequest) {
	if req.Width == 0 {
		req.Width = d.ViewportWidth
	}
	if req.Height == 0 {
		req.Height = d.ViewportHeight
	}
	if req.Format == "" {
		req.Format = d.Format
	}
	if req.Quality == 0 {
		req.Quality = d.Quality
	}
}

func (d Defaults) applyTiled(req *screenshot.TiledCaptureRequest) {
	if req.Format == "" {
		req.Format = d.Format
	}
	if req.Quality == 0 {
		req.Quality = d.Quality
	}
	if req.Tiles.MaxTileCount == 0 {
		req.Tiles.MaxTileCount = d.MaxTileCount
	}
}

// Handler holds the handlers for all API routes.
type Handler struct {
	svc      Capturer
	logger   zerolog.Logger
	version  string
	defaults Defaults
}

// NewHandler creates a Handler around svc.
func NewHandler(svc Capturer, logger zerolog.Logger, version string, defaults Defaults) *Handler {
	return &Handler{svc: svc, logger: logger, version: version, defaults: defaults}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ok := h.svc.Healthy(r.Context())
	resp := healthResponse{Status: "ok", Browser: ok, Version: h.version}
	status := http.StatusOK
	if !ok {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

// Screenshot handles POST /screenshot. The image comes back as the response
// body, metadata travels in X- headers.
func (h *Handler) Screenshot(w http.ResponseWriter, r *http.Request) {
	var dto captureRequestDTO
	if err := h.decode(w, r, &dto); err != nil {
		h.writeError(w, r, err)
		return
	}
	req := dto.toRequest()
	h.defaults.applyCapture(&req)
	res, err := h.svc.Capture(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeImage(w, res)
}

// ScreenshotQuery handles GET /screenshot. Options arrive as query
// parameters; cookies use the compact "name=value;name2=value2" form.
func (h *Handler) ScreenshotQuery(w http.ResponseWriter, r *http.Request) {
	req, err := captureRequestFromQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.defaults.applyCapture(&req)
	res, err := h.svc.Capture(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeImage(w, res)
}

// ScreenshotJSON handles POST /screenshot/json: the capture plus extraction,
// quality and hints as one JSON document, image base64-encoded.
func (h *Handler) ScreenshotJSON(w http.ResponseWriter, r *http.Request) {
	var dto captureRequestDTO
	if err := h.decode(w, r, &dto); err != nil {
		h.writeError(w, r, err)
		return
	}
	req := dto.toRequest()
	h.defaults.applyCapture(&req)
	res, err := h.svc.Capture(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toCaptureResponse(res))
}

// ScreenshotTiled handles POST /screenshot/tiled.
func (h *Handler) ScreenshotTiled(w http.ResponseWriter, r *http.Request) {
	var dto tiledRequestDTO
	if err := h.decode(w, r, &dto); err != nil {
		h.writeError(w, r, err)
		return
	}
	req := dto.toRequest()
	h.defaults.applyTiled(&req)
	res, err := h.svc.CaptureTiled(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTiledResponse(res))
}

// VisionHints handles POST /vision/hints. Pure computation, no browser.
func (h *Handler) VisionHints(w http.ResponseWriter, r *http.Request) {
	var req screenshot.HintRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	hints, err := h.svc.VisionHints(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, hints)
}

// VisionModels handles GET /vision/models.
func (h *Handler) VisionModels(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, modelsResponse{
		DefaultModel: h.svc.DefaultModel(),
		Models:       h.svc.Models(),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &screenshot.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("encode response")
	}
}

func (h *Handler) writeImage(w http.ResponseWriter, res *screenshot.CaptureResult) {
	kind := "viewport"
	if res.FullPage {
		kind = "full_page"
	}
	img := res.Image
	w.Header().Set("Content-Type", img.MIMEType())
	w.Header().Set("Content-Length", strconv.Itoa(img.Len()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "screenshot."+string(img.Format())))
	w.Header().Set("X-Capture-Id", res.CaptureID)
	w.Header().Set("X-Capture-Time-Ms", strconv.FormatFloat(durationMs(res.CaptureTime), 'f', 2, 64))
	w.Header().Set("X-Screenshot-Type", kind)
	if _, err := img.WriteTo(w); err != nil {
		h.logger.Warn().Err(err).Msg("write image response")
	}
}

// writeError maps library errors onto HTTP statuses: caller mistakes to 400,
// a closed service to 503, capture timeouts to 504 and the rest to 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}

	var verr *screenshot.ValidationError
	var gerr *screenshot.GridOverflowError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp.Field = verr.Field
	case errors.As(err, &gerr):
		status = http.StatusBadRequest
		resp.Required = gerr.Required
		resp.Allowed = gerr.Allowed
	case errors.Is(err, screenshot.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	h.writeJSON(w, status, resp)
}

func captureRequestFromQuery(q url.Values) (screenshot.CaptureRequest, error) {
	req := screenshot.CaptureRequest{URL: q.Get("url")}
	if req.URL == "" {
		return req, &screenshot.ValidationError{Field: "url", Reason: "query parameter is required"}
	}
	switch q.Get("type") {
	case "", "viewport":
	case "full_page":
		req.FullPage = true
	default:
		return req, &screenshot.ValidationError{Field: "type", Reason: fmt.Sprintf("must be viewport or full_page, got %q", q.Get("type"))}
	}
	req.Format = screenshot.ImageFormat(q.Get("format"))

	var err error
	if req.Width, err = queryInt(q, "width"); err != nil {
		return req, err
	}
	if req.Height, err = queryInt(q, "height"); err != nil {
		return req, err
	}
	if req.Quality, err = queryInt(q, "quality"); err != nil {
		return req, err
	}
	waitMs, err := queryInt(q, "wait")
	if err != nil {
		return req, err
	}
	req.ExtraWait = time.Duration(waitMs) * time.Millisecond
	if req.DarkMode, err = queryBool(q, "dark"); err != nil {
		return req, err
	}
	if req.Cookies, err = parseCookieString(q.Get("cookies")); err != nil {
		return req, err
	}
	return req, nil
}

func queryInt(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &screenshot.ValidationError{Field: name, Reason: fmt.Sprintf("not an integer: %q", raw)}
	}
	return n, nil
}

func queryBool(q url.Values, name string) (bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &screenshot.ValidationError{Field: name, Reason: fmt.Sprintf("not a boolean: %q", raw)}
	}
	return v, nil
}

// parseCookieString parses the semicolon-separated "name=value" form. Values
// may contain =, the split happens on the first one.
func parseCookieString(s string) ([]screenshot.Cookie, error) {
	if s == "" {
		return nil, nil
	}
	var cookies []screenshot.Cookie
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, &screenshot.ValidationError{Field: "cookies", Reason: fmt.Sprintf("expected name=value, got %q", part)}
		}
		cookies = append(cookies, screenshot.Cookie{
			Name:  strings.TrimSpace(name),
			Value: strings.TrimSpace(value),
		})
	}
	return cookies, nil
}
