package screenshot

// fixedKey identifies a fixed/sticky element independent of which tile it was
// seen in. Geometry is deliberately excluded: the same fixed header reports a
// different full-page rect in every tile it was repainted into.
type fixedKey struct {
	selector string
	text     string
}

// Reconcile merges per-tile element extractions into one full-page list.
//
// Input lists must be in ascending tile order with element rects already
// translated to full-page coordinates. The output preserves ascending tile
// order and, within a tile, the original extraction order.
//
// Only fixed/sticky elements are deduplicated. The browser repaints them into
// every tile's viewport, so every occurrence after the first (the lowest tile
// index) is dropped; identity is selector plus text. Non-fixed elements are
// never dropped, even when selector and text collide: genuinely repeated
// content on a long page stays intact, at worst with duplicates from overlap
// bands. Reconcile fails open rather than guessing.
func Reconcile(perTile [][]Element) []Element {
	total := 0
	for _, tile := range perTile {
		total += len(tile)
	}

	merged := make([]Element, 0, total)
	seenFixed := make(map[fixedKey]struct{})

	for _, tile := range perTile {
		for _, el := range tile {
			if el.Fixed {
				key := fixedKey{selector: el.Selector, text: el.Text}
				if _, dup := seenFixed[key]; dup {
					continue
				}
				seenFixed[key] = struct{}{}
			}
			merged = append(merged, el)
		}
	}
	return merged
}
