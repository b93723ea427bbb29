package screenshot

import "strings"

// DefaultSelectors is the query set used when extraction options do not name
// their own. It covers the text-bearing tags that matter as vision-model
// ground truth.
var DefaultSelectors = []string{
	"h1", "h2", "h3", "h4", "h5", "h6",
	"p", "span", "a", "li", "button", "label",
	"td", "th", "caption", "figcaption", "blockquote",
}

// ComputedStyle is the style subset captured for each element.
type ComputedStyle struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"background_color"`
	FontSize        string `json:"font_size"`
	FontWeight      string `json:"font_weight"`
}

// Element is one extracted DOM element together with its geometry.
//
// Rect is in full-page coordinates for tiled captures and in frame
// coordinates for single captures (identical to page coordinates when the
// frame covers the whole document). TileIndex and TileLocalRect are set only
// on elements produced by a tiled capture.
type Element struct {
	Selector string `json:"selector"`
	XPath    string `json:"xpath"`
	TagName  string `json:"tag_name"`
	Text     string `json:"text"`

	Rect    Rect          `json:"rect"`
	Style   ComputedStyle `json:"style"`
	Visible bool          `json:"visible"`
	ZIndex  int           `json:"z_index"`

	// Fixed marks position:fixed and position:sticky elements. The browser
	// repaints these into every tile's viewport, so they reappear once per
	// tile until [Reconcile] collapses them.
	Fixed bool `json:"fixed"`

	TileIndex     *int  `json:"tile_index,omitempty"`
	TileLocalRect *Rect `json:"tile_local_rect,omitempty"`
}

func isHeadingTag(tag string) bool {
	switch strings.ToLower(tag) {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}
