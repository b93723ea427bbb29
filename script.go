package screenshot

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// documentSizeJS measures the fully rendered document. Both body and
// documentElement are consulted; some layouts only report the true size on
// one of them.
const documentSizeJS = `({
	width: Math.max(
		document.body ? document.body.scrollWidth : 0,
		document.documentElement.scrollWidth
	),
	height: Math.max(
		document.body ? document.body.scrollHeight : 0,
		document.documentElement.scrollHeight
	)
})`

// extractionJS collects ground-truth elements. Geometry is computed in
// absolute page coordinates (viewport rect plus scroll offsets) so results do
// not depend on the scroll position at evaluation time. When a tile is given,
// only elements intersecting it are returned and rects are reported relative
// to the tile origin; pixels and rects then come from the same pass.
const extractionJS = `(function(opts) {
	function esc(v) {
		return (window.CSS && CSS.escape) ? CSS.escape(v) : v;
	}
	function uniqueSelector(el) {
		if (el.id) return '#' + esc(el.id);
		var path = [];
		var node = el;
		while (node && node.nodeType === Node.ELEMENT_NODE && path.length < 6) {
			var sel = node.nodeName.toLowerCase();
			if (node.id) {
				path.unshift(sel + '#' + esc(node.id));
				break;
			}
			var cls = (typeof node.className === 'string')
				? node.className.trim().split(/\s+/).filter(Boolean).slice(0, 2)
				: [];
			if (cls.length) sel += '.' + cls.map(esc).join('.');
			var parent = node.parentElement;
			if (parent) {
				var same = Array.prototype.filter.call(parent.children, function(c) {
					return c.nodeName === node.nodeName;
				});
				if (same.length > 1) sel += ':nth-of-type(' + (same.indexOf(node) + 1) + ')';
			}
			path.unshift(sel);
			node = parent;
		}
		return path.join(' > ');
	}
	function xpathOf(el) {
		var parts = [];
		var node = el;
		while (node && node.nodeType === Node.ELEMENT_NODE) {
			var idx = 1;
			var sib = node.previousElementSibling;
			while (sib) {
				if (sib.nodeName === node.nodeName) idx++;
				sib = sib.previousElementSibling;
			}
			parts.unshift(node.nodeName.toLowerCase() + '[' + idx + ']');
			node = node.parentElement;
		}
		return '/' + parts.join('/');
	}
	function isVisible(rect, style) {
		if (rect.width <= 0 || rect.height <= 0) return false;
		if (style.display === 'none' || style.visibility === 'hidden') return false;
		if (parseFloat(style.opacity) === 0) return false;
		return true;
	}

	var out = [];
	var nodes = document.querySelectorAll(opts.selectors.join(','));
	for (var i = 0; i < nodes.length && out.length < opts.maxElements; i++) {
		var el = nodes[i];
		var rect = el.getBoundingClientRect();
		var style = window.getComputedStyle(el);
		var visible = isVisible(rect, style);
		if (!visible && !opts.includeHidden) continue;

		var text = (el.innerText || el.textContent || '').trim();
		if (text.length < opts.minTextLength) continue;

		var x = Math.round(rect.left + window.scrollX);
		var y = Math.round(rect.top + window.scrollY);
		var w = Math.round(rect.width);
		var h = Math.round(rect.height);

		if (opts.tile) {
			var t = opts.tile;
			if (x + w <= t.x || t.x + t.width <= x || y + h <= t.y || t.y + t.height <= y) continue;
			x -= t.x;
			y -= t.y;
		}

		out.push({
			selector: uniqueSelector(el),
			xpath: xpathOf(el),
			tag_name: el.nodeName.toLowerCase(),
			text: text.slice(0, 200),
			rect: {x: x, y: y, width: w, height: h},
			style: {
				color: style.color,
				background_color: style.backgroundColor,
				font_size: style.fontSize,
				font_weight: style.fontWeight
			},
			visible: visible,
			z_index: parseInt(style.zIndex, 10) || 0,
			fixed: style.position === 'fixed' || style.position === 'sticky'
		});
	}
	return out;
})`

// extractionParams is the wire form of the options handed to extractionJS.
type extractionParams struct {
	Selectors     []string `json:"selectors"`
	IncludeHidden bool     `json:"includeHidden"`
	MinTextLength int      `json:"minTextLength"`
	MaxElements   int      `json:"maxElements"`
	Tile          *Rect    `json:"tile,omitempty"`
}

// buildExtractionExpr returns a JS expression evaluating to the element list
// for the given options. A non-nil tile requests tile-filtered, tile-local
// extraction.
func buildExtractionExpr(opts ExtractOptions, tile *Rect) (string, error) {
	params := extractionParams{
		Selectors:     opts.Selectors,
		IncludeHidden: opts.IncludeHidden,
		MinTextLength: opts.MinTextLength,
		MaxElements:   opts.MaxElements,
		Tile:          tile,
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("screenshot: encoding extraction options: %w", err)
	}
	return extractionJS + "(" + string(raw) + ")", nil
}

// buildStorageExpr returns a JS statement injecting the given key/value pairs
// into localStorage and sessionStorage. Keys are emitted in sorted order so
// the expression is deterministic; JSON encoding handles all escaping.
func buildStorageExpr(local, session map[string]string) string {
	var b strings.Builder
	b.WriteString("(function(){")
	writeStorageItems(&b, "localStorage", local)
	writeStorageItems(&b, "sessionStorage", session)
	b.WriteString("})()")
	return b.String()
}

func writeStorageItems(b *strings.Builder, store string, items map[string]string) {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s.setItem(%s,%s);", store, jsString(k), jsString(items[k]))
	}
}

// jsString encodes s as a JS string literal. JSON string syntax is a subset
// of JS, so marshaling is sufficient.
func jsString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func scrollToExpr(x, y int) string {
	return fmt.Sprintf("window.scrollTo(%d, %d)", x, y)
}
