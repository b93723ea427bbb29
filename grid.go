package screenshot

import "fmt"

// TileConfig controls how a page is divided into overlapping tiles.
type TileConfig struct {
	// TileWidth and TileHeight are the nominal tile dimensions in CSS
	// pixels. Tiles in the last row/column may be smaller after clipping.
	TileWidth  int `json:"tile_width"`
	TileHeight int `json:"tile_height"`

	// Overlap is the number of pixels adjacent tiles share on each axis.
	// It must be non-negative and smaller than both tile dimensions.
	Overlap int `json:"overlap"`

	// MaxTileCount caps rows*cols. Plans that would exceed it fail with a
	// *GridOverflowError instead of being clamped.
	MaxTileCount int `json:"max_tile_count"`
}

// Tile is one cell of a [TilePlan].
type Tile struct {
	Index  int  `json:"index"` // row-major: row*cols + col
	Row    int  `json:"row"`
	Col    int  `json:"col"`
	Bounds Rect `json:"bounds"` // full-page coordinates, clipped to the page edge
}

// ToFullPage translates a tile-local rectangle into full-page coordinates
// using this tile's origin. See [MapToFullPage].
func (t Tile) ToFullPage(local Rect) Rect {
	return MapToFullPage(local, t.Bounds)
}

// ToTileLocal translates a full-page rectangle into this tile's local
// coordinates. See [MapToTileLocal].
func (t Tile) ToTileLocal(full Rect) Rect {
	return MapToTileLocal(full, t.Bounds)
}

// TilePlan is a deterministic tiling of a page. The same page dimensions and
// config always produce the same plan.
type TilePlan struct {
	Page   PageDimensions `json:"page"`
	Config TileConfig     `json:"config"`
	Rows   int            `json:"rows"`
	Cols   int            `json:"cols"`
	Tiles  []Tile         `json:"tiles"` // row-major order

	// AppliedPreset names the vision-model preset the config came from when
	// the capture request used one. Stamped by the orchestrator right after
	// planning; [PlanTiles] itself knows nothing about models.
	AppliedPreset string `json:"applied_preset,omitempty"`
}

// StrideX is the horizontal distance between the origins of adjacent tiles.
func (p *TilePlan) StrideX() int {
	return p.Config.TileWidth - p.Config.Overlap
}

// StrideY is the vertical distance between the origins of adjacent tiles.
func (p *TilePlan) StrideY() int {
	return p.Config.TileHeight - p.Config.Overlap
}

// PlanTiles divides a page into a row-major grid of overlapping tiles.
//
// Tile origins advance by tile size minus overlap on each axis, so adjacent
// tiles share exactly cfg.Overlap pixels. Tiles in the last row and column
// are clipped to the page edge; the union of all tile bounds covers the page
// exactly. A page no larger than one tile yields a 1x1 plan through the same
// arithmetic.
//
// When the grid would exceed cfg.MaxTileCount the plan fails with a
// *GridOverflowError carrying the required and allowed counts. Invalid
// dimensions or overlaps fail with a *ValidationError.
func PlanTiles(page PageDimensions, cfg TileConfig) (*TilePlan, error) {
	if err := validateGrid(page, cfg); err != nil {
		return nil, err
	}

	strideX := cfg.TileWidth - cfg.Overlap
	strideY := cfg.TileHeight - cfg.Overlap

	cols := max(ceilDiv(page.Width-cfg.Overlap, strideX), 1)
	rows := max(ceilDiv(page.Height-cfg.Overlap, strideY), 1)

	if required := rows * cols; required > cfg.MaxTileCount {
		return nil, &GridOverflowError{Required: required, Allowed: cfg.MaxTileCount}
	}

	tiles := make([]Tile, 0, rows*cols)
	for row := 0; row < rows; row++ {
		y := row * strideY
		h := min(cfg.TileHeight, page.Height-y)
		for col := 0; col < cols; col++ {
			x := col * strideX
			tiles = append(tiles, Tile{
				Index:  row*cols + col,
				Row:    row,
				Col:    col,
				Bounds: Rect{X: x, Y: y, Width: min(cfg.TileWidth, page.Width-x), Height: h},
			})
		}
	}

	return &TilePlan{Page: page, Config: cfg, Rows: rows, Cols: cols, Tiles: tiles}, nil
}

func validateGrid(page PageDimensions, cfg TileConfig) error {
	switch {
	case page.Width <= 0 || page.Height <= 0:
		return &ValidationError{Field: "page", Reason: fmt.Sprintf("dimensions must be positive, got %dx%d", page.Width, page.Height)}
	case cfg.TileWidth <= 0 || cfg.TileHeight <= 0:
		return &ValidationError{Field: "tiles", Reason: fmt.Sprintf("tile dimensions must be positive, got %dx%d", cfg.TileWidth, cfg.TileHeight)}
	case cfg.Overlap < 0:
		return &ValidationError{Field: "tiles.overlap", Reason: fmt.Sprintf("must be non-negative, got %d", cfg.Overlap)}
	case cfg.Overlap >= cfg.TileWidth || cfg.Overlap >= cfg.TileHeight:
		return &ValidationError{Field: "tiles.overlap", Reason: fmt.Sprintf("%d must be smaller than the tile on both axes (%dx%d)", cfg.Overlap, cfg.TileWidth, cfg.TileHeight)}
	case cfg.MaxTileCount < 1:
		return &ValidationError{Field: "tiles.max_tile_count", Reason: fmt.Sprintf("must be at least 1, got %d", cfg.MaxTileCount)}
	}
	return nil
}

// ceilDiv is ceil(a/b) for positive b, clamped to zero for non-positive a.
func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
