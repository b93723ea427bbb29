package screenshot

import (
	"fmt"
	"sort"
	"strings"
)

// ModelLimits describes one vision model's image constraints and the tile
// geometry recommended when a page must be split for it.
type ModelLimits struct {
	// MaxDimension is the longest edge the model accepts without
	// downscaling, in pixels.
	MaxDimension int `json:"max_dimension"`
	// MaxPixels is the total pixel budget (width * height).
	MaxPixels int `json:"max_pixels"`
	// MaxAspectRatio is the largest long-edge/short-edge ratio accepted.
	MaxAspectRatio float64 `json:"max_aspect_ratio"`

	// Preferred tiling when a page exceeds the limits above.
	TileWidth  int `json:"tile_width"`
	TileHeight int `json:"tile_height"`
	Overlap    int `json:"overlap"`
}

// ModelTable maps model names to their limits.
type ModelTable map[string]ModelLimits

// DefaultModel is assumed when a request names no target model.
const DefaultModel = "claude"

// DefaultResizeImpactThreshold is the resize impact, in percent, above which
// the engine recommends tiling over single-frame downscaling.
const DefaultResizeImpactThreshold = 30.0

// DefaultSuggestionTileAllowance caps the grid size of a tiling
// recommendation. It matches the service-level tile ceiling.
const DefaultSuggestionTileAllowance = 1000

// DefaultModelTable returns the built-in limits for the vision models the
// library knows about, following the providers' published constraints.
func DefaultModelTable() ModelTable {
	return ModelTable{
		"claude": {MaxDimension: 1568, MaxPixels: 1568 * 1568, MaxAspectRatio: 3.5, TileWidth: 1568, TileHeight: 1568, Overlap: 50},
		"gemini": {MaxDimension: 3072, MaxPixels: 3072 * 3072, MaxAspectRatio: 4.0, TileWidth: 3072, TileHeight: 3072, Overlap: 100},
		"gpt4v":  {MaxDimension: 2048, MaxPixels: 2048 * 2048, MaxAspectRatio: 2.0, TileWidth: 2048, TileHeight: 2048, Overlap: 75},
		"llama":  {MaxDimension: 1120, MaxPixels: 1120 * 1120, MaxAspectRatio: 2.0, TileWidth: 1120, TileHeight: 1120, Overlap: 40},
	}
}

// HintEngineConfig configures a [HintEngine]. Zero-valued fields fall back
// to the library defaults, so the zero config is usable.
type HintEngineConfig struct {
	// Table overrides the built-in model table.
	Table ModelTable
	// DefaultModel is used when a request names no model.
	DefaultModel string
	// ResizeImpactThreshold is the resize impact percent above which the
	// engine recommends tiling.
	ResizeImpactThreshold float64
	// SuggestionTileAllowance caps the tile count of a recommendation.
	SuggestionTileAllowance int
}

// HintEngine computes vision-model compatibility hints. All configuration is
// injected at construction; the engine performs no I/O and keeps no state
// beyond its config, so it is safe for concurrent use.
type HintEngine struct {
	table        ModelTable
	defaultModel string
	threshold    float64
	allowance    int
}

// NewHintEngine builds an engine from cfg, substituting library defaults for
// zero fields.
func NewHintEngine(cfg HintEngineConfig) *HintEngine {
	e := &HintEngine{
		table:        cfg.Table,
		defaultModel: cfg.DefaultModel,
		threshold:    cfg.ResizeImpactThreshold,
		allowance:    cfg.SuggestionTileAllowance,
	}
	if len(e.table) == 0 {
		e.table = DefaultModelTable()
	}
	if e.defaultModel == "" {
		e.defaultModel = DefaultModel
	}
	if e.threshold <= 0 {
		e.threshold = DefaultResizeImpactThreshold
	}
	if e.allowance <= 0 {
		e.allowance = DefaultSuggestionTileAllowance
	}
	return e
}

// Table returns a copy of the engine's model table.
func (e *HintEngine) Table() ModelTable {
	out := make(ModelTable, len(e.table))
	for name, limits := range e.table {
		out[name] = limits
	}
	return out
}

// DefaultModel returns the model assumed when requests name none.
func (e *HintEngine) DefaultModel() string {
	return e.defaultModel
}

// ModelNames returns the configured model names in sorted order.
func (e *HintEngine) ModelNames() []string {
	names := make([]string, 0, len(e.table))
	for name := range e.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// limitsFor resolves a model name, empty meaning the engine default. Lookup
// is case-insensitive; the returned name is the canonical lowercase form.
func (e *HintEngine) limitsFor(name string) (string, ModelLimits, error) {
	if name == "" {
		name = e.defaultModel
	}
	name = strings.ToLower(name)
	limits, ok := e.table[name]
	if !ok {
		return "", ModelLimits{}, &ValidationError{
			Field:  "target_model",
			Reason: fmt.Sprintf("unknown model %q, valid models: %s", name, strings.Join(e.ModelNames(), ", ")),
		}
	}
	return name, limits, nil
}

// HintRequest describes the image, and optionally the source document, to
// evaluate.
type HintRequest struct {
	ImageWidth  int `json:"image_width"`
	ImageHeight int `json:"image_height"`
	// ImageSizeBytes is informational and echoed into the hints.
	ImageSizeBytes int `json:"image_size_bytes,omitempty"`

	// Document dimensions enable tiling recommendations. Zero means the
	// source document is unknown (or the image is not a page capture).
	DocumentWidth  int `json:"document_width,omitempty"`
	DocumentHeight int `json:"document_height,omitempty"`

	// TargetModel defaults to the engine's default model.
	TargetModel string `json:"target_model,omitempty"`
}

// ModelCompatibility is one model's verdict on an image.
type ModelCompatibility struct {
	Compatible bool `json:"compatible"`
	// MaxDimension echoes the model limit the verdict was computed against.
	MaxDimension int `json:"max_dimension"`
	// ResizeImpactPercent estimates how much detail a provider-side resize
	// would cost: (longest - limit) / longest * 100, floored at zero for
	// images within the limit.
	ResizeImpactPercent float64  `json:"resize_impact_percent"`
	Reasons             []string `json:"reasons,omitempty"`
}

// TilingRecommendation suggests capturing the document as a tile grid
// instead of downscaling a single oversized frame.
type TilingRecommendation struct {
	Model      string `json:"model"`
	TileWidth  int    `json:"tile_width"`
	TileHeight int    `json:"tile_height"`
	Overlap    int    `json:"overlap"`
	Rows       int    `json:"rows"`
	Cols       int    `json:"cols"`
	TileCount  int    `json:"tile_count"`
	Reason     string `json:"reason"`
}

// VisionHints summarizes how well an image suits the configured vision
// models and what to do when it does not.
type VisionHints struct {
	ImageWidth     int `json:"image_width"`
	ImageHeight    int `json:"image_height"`
	ImageSizeBytes int `json:"image_size_bytes,omitempty"`

	TargetModel string                        `json:"target_model"`
	Models      map[string]ModelCompatibility `json:"models"`

	// EstimatedResizeFactor is min(1, limit/longest) for the target model:
	// the scale the provider would apply before inference.
	EstimatedResizeFactor float64 `json:"estimated_resize_factor"`
	// CoordinateAccuracy equals the resize factor: ground-truth rects
	// degrade linearly with provider-side downscaling.
	CoordinateAccuracy float64 `json:"coordinate_accuracy"`

	// Recommended dimensions are present only when the image is
	// incompatible with the target model: the largest aspect-preserving
	// size within the model's long-edge limit, rounded down.
	RecommendedWidth  *int `json:"recommended_width,omitempty"`
	RecommendedHeight *int `json:"recommended_height,omitempty"`

	Tiling *TilingRecommendation `json:"tiling,omitempty"`
}

// Hints evaluates an image against every configured model and derives
// guidance for the target model. Unknown target models and non-positive
// image dimensions fail with a *ValidationError.
func (e *HintEngine) Hints(req HintRequest) (*VisionHints, error) {
	if req.ImageWidth <= 0 || req.ImageHeight <= 0 {
		return nil, &ValidationError{
			Field:  "image",
			Reason: fmt.Sprintf("dimensions must be positive, got %dx%d", req.ImageWidth, req.ImageHeight),
		}
	}

	target, limits, err := e.limitsFor(req.TargetModel)
	if err != nil {
		return nil, err
	}

	hints := &VisionHints{
		ImageWidth:     req.ImageWidth,
		ImageHeight:    req.ImageHeight,
		ImageSizeBytes: req.ImageSizeBytes,
		TargetModel:    target,
		Models:         make(map[string]ModelCompatibility, len(e.table)),
	}
	for name, ml := range e.table {
		hints.Models[name] = assessModel(req.ImageWidth, req.ImageHeight, ml)
	}

	longest := max(req.ImageWidth, req.ImageHeight)
	factor := 1.0
	if longest > limits.MaxDimension {
		factor = float64(limits.MaxDimension) / float64(longest)
	}
	hints.EstimatedResizeFactor = factor
	hints.CoordinateAccuracy = factor

	targetCompat := hints.Models[target]
	if !targetCompat.Compatible {
		// Integer arithmetic keeps the limiting edge exactly at the model
		// cap instead of drifting a pixel below it through float rounding.
		w, h := req.ImageWidth, req.ImageHeight
		if longest > limits.MaxDimension {
			if w >= h {
				h = h * limits.MaxDimension / w
				w = limits.MaxDimension
			} else {
				w = w * limits.MaxDimension / h
				h = limits.MaxDimension
			}
		}
		hints.RecommendedWidth = &w
		hints.RecommendedHeight = &h
	}

	if req.DocumentWidth > 0 && req.DocumentHeight > 0 && targetCompat.ResizeImpactPercent > e.threshold {
		hints.Tiling = e.recommendTiling(target, limits, req.DocumentWidth, req.DocumentHeight, targetCompat.ResizeImpactPercent)
	}

	return hints, nil
}

func assessModel(width, height int, ml ModelLimits) ModelCompatibility {
	longest := max(width, height)
	shortest := min(width, height)
	aspect := float64(longest) / float64(shortest)
	pixels := width * height

	var reasons []string
	if longest > ml.MaxDimension {
		reasons = append(reasons, fmt.Sprintf("longest edge %dpx exceeds limit %dpx", longest, ml.MaxDimension))
	}
	if ml.MaxPixels > 0 && pixels > ml.MaxPixels {
		reasons = append(reasons, fmt.Sprintf("%d pixels exceed budget %d", pixels, ml.MaxPixels))
	}
	if ml.MaxAspectRatio > 0 && aspect > ml.MaxAspectRatio {
		reasons = append(reasons, fmt.Sprintf("aspect ratio %.2f:1 exceeds limit %.2f:1", aspect, ml.MaxAspectRatio))
	}

	impact := 0.0
	if longest > ml.MaxDimension {
		impact = float64(longest-ml.MaxDimension) / float64(longest) * 100
	}

	return ModelCompatibility{
		Compatible:          len(reasons) == 0,
		MaxDimension:        ml.MaxDimension,
		ResizeImpactPercent: impact,
		Reasons:             reasons,
	}
}

// recommendTiling delegates grid arithmetic to the planner so suggestions
// obey the same coverage rules as real captures. A document too large even
// for the suggestion allowance yields no recommendation; hints stay advisory.
func (e *HintEngine) recommendTiling(model string, ml ModelLimits, docWidth, docHeight int, impact float64) *TilingRecommendation {
	plan, err := PlanTiles(
		PageDimensions{Width: docWidth, Height: docHeight},
		TileConfig{TileWidth: ml.TileWidth, TileHeight: ml.TileHeight, Overlap: ml.Overlap, MaxTileCount: e.allowance},
	)
	if err != nil {
		return nil
	}
	return &TilingRecommendation{
		Model:      model,
		TileWidth:  ml.TileWidth,
		TileHeight: ml.TileHeight,
		Overlap:    ml.Overlap,
		Rows:       plan.Rows,
		Cols:       plan.Cols,
		TileCount:  len(plan.Tiles),
		Reason: fmt.Sprintf(
			"document %dx%d exceeds %s max dimension %dpx; a single frame would be downscaled by %.1f%%, tile at %dx%d with %dpx overlap instead",
			docWidth, docHeight, model, ml.MaxDimension, impact, ml.TileWidth, ml.TileHeight, ml.Overlap,
		),
	}
}
