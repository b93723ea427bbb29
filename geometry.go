package screenshot

// PageDimensions is the size of a fully rendered document in CSS pixels.
type PageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is an axis-aligned rectangle in CSS pixels. Depending on context it
// is expressed in full-page coordinates (origin at the document's top-left)
// or in tile-local coordinates (origin at a tile's top-left).
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersects reports whether r and o share any area. Rectangles that only
// touch edges do not intersect.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// MapToFullPage translates a rectangle from a tile's local coordinates into
// full-page coordinates by adding the tile origin. Size is unchanged.
//
// The function is total: rectangles partially or fully outside the tile
// translate like any other, so callers never need to clamp first.
func MapToFullPage(local, tileBounds Rect) Rect {
	return Rect{
		X:      local.X + tileBounds.X,
		Y:      local.Y + tileBounds.Y,
		Width:  local.Width,
		Height: local.Height,
	}
}

// MapToTileLocal translates a full-page rectangle into a tile's local
// coordinates. It is the exact inverse of [MapToFullPage]: mapping a rect
// to full-page coordinates and back yields the original rect.
func MapToTileLocal(full, tileBounds Rect) Rect {
	return Rect{
		X:      full.X - tileBounds.X,
		Y:      full.Y - tileBounds.Y,
		Width:  full.Width,
		Height: full.Height,
	}
}
