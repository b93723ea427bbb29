package screenshot

import (
	"fmt"
	"strings"
)

// QualityLevel grades how trustworthy an extraction looks.
type QualityLevel string

const (
	QualityEmpty QualityLevel = "empty"
	QualityPoor  QualityLevel = "poor"
	QualityLow   QualityLevel = "low"
	QualityGood  QualityLevel = "good"
)

// Warning codes attached to quality reports.
const (
	WarnNoElements      = "NO_ELEMENTS"
	WarnLowElementCount = "LOW_ELEMENT_COUNT"
	WarnLowTagDiversity = "LOW_TAG_DIVERSITY"
	WarnNoHeadings      = "NO_HEADINGS"
	WarnManyHidden      = "MANY_HIDDEN"
	WarnMinimalText     = "MINIMAL_TEXT"
)

// Quality thresholds. Counts at or below poorMax grade poor, at or below
// lowMax grade low; good additionally requires tag diversity and a heading.
const (
	qualityPoorMax        = 4
	qualityLowMax         = 20
	minTagDiversity       = 3
	maxHiddenRatio        = 0.5
	minAvgTextLength      = 10.0
	headingCheckThreshold = 10
)

// QualityWarning is one actionable finding about an extraction.
type QualityWarning struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// QualityMetrics are the aggregates behind a report, included on request.
type QualityMetrics struct {
	ElementCount    int            `json:"element_count"`
	VisibleCount    int            `json:"visible_count"`
	HiddenCount     int            `json:"hidden_count"`
	UniqueTags      int            `json:"unique_tags"`
	TagDistribution map[string]int `json:"tag_distribution"`
	HiddenRatio     float64        `json:"hidden_ratio"`
	TotalTextLength int            `json:"total_text_length"`
	AvgTextLength   float64        `json:"avg_text_length"`
	MinTextLength   int            `json:"min_text_length"`
	MaxTextLength   int            `json:"max_text_length"`
	HasHeading      bool           `json:"has_heading"`
}

// QualityReport grades one extraction and explains anything suspicious.
type QualityReport struct {
	Level    QualityLevel     `json:"level"`
	Warnings []QualityWarning `json:"warnings,omitempty"`
	Metrics  *QualityMetrics  `json:"metrics,omitempty"`
}

// QualityOptions controls optional report content.
type QualityOptions struct {
	// IncludeMetrics attaches the full [QualityMetrics] to the report.
	IncludeMetrics bool
}

// AssessQuality grades a merged element list.
//
// The level follows an ordered rule list on the element count: 0 is empty,
// 1-4 poor, 5-20 low; 21 and above is good only when at least three unique
// tags and a heading are present, otherwise low. Independent warnings for
// hidden-element ratio, minimal text, and missing headings are appended
// without changing the level. The pass is O(n) and the function is pure:
// assessing the same elements twice yields the same report.
func AssessQuality(elements []Element, opts QualityOptions) *QualityReport {
	count := len(elements)

	if count == 0 {
		report := &QualityReport{
			Level: QualityEmpty,
			Warnings: []QualityWarning{{
				Code:       WarnNoElements,
				Message:    "No DOM elements were extracted from the page.",
				Suggestion: "Verify the page has loaded completely and contains the expected content. Try a simple URL like https://example.com to confirm extraction is working.",
			}},
		}
		if opts.IncludeMetrics {
			report.Metrics = &QualityMetrics{TagDistribution: map[string]int{}}
		}
		return report
	}

	stats := gatherStats(elements)
	var warnings []QualityWarning

	if count <= qualityPoorMax {
		warnings = append(warnings, QualityWarning{
			Code:       WarnLowElementCount,
			Message:    fmt.Sprintf("Only %d element(s) extracted, which is very sparse.", count),
			Suggestion: "Check if the page has finished loading, or expand the extraction selectors.",
		})
	}

	if stats.uniqueTags < minTagDiversity && count >= qualityLowMax+1 {
		warnings = append(warnings, QualityWarning{
			Code:       WarnLowTagDiversity,
			Message:    fmt.Sprintf("Only %d unique tag type(s) found among %d elements.", stats.uniqueTags, count),
			Suggestion: "Consider expanding extraction selectors to capture a broader variety of content (headings, paragraphs, links, etc.).",
		})
	}

	if !stats.hasHeading && count >= headingCheckThreshold {
		warnings = append(warnings, QualityWarning{
			Code:       WarnNoHeadings,
			Message:    "No heading elements (h1-h6) found in the extraction.",
			Suggestion: "Heading elements often contain important structural information. Consider adding h1-h6 to your extraction selectors.",
		})
	}

	hiddenRatio := float64(stats.hiddenCount) / float64(count)
	if hiddenRatio > maxHiddenRatio {
		warnings = append(warnings, QualityWarning{
			Code:       WarnManyHidden,
			Message:    fmt.Sprintf("%d%% of elements are hidden (%d/%d).", int(hiddenRatio*100), stats.hiddenCount, count),
			Suggestion: "Many hidden elements may indicate the page has not rendered fully or content is behind user interaction. Consider adding wait time.",
		})
	}

	avgText := float64(stats.totalTextLength) / float64(count)
	if avgText < minAvgTextLength {
		warnings = append(warnings, QualityWarning{
			Code:       WarnMinimalText,
			Message:    fmt.Sprintf("Average text length is only %.1f characters per element.", avgText),
			Suggestion: "Elements have minimal text content. This may indicate extraction of UI elements rather than content, or the page may have limited text.",
		})
	}

	var level QualityLevel
	switch {
	case count <= qualityPoorMax:
		level = QualityPoor
	case count <= qualityLowMax:
		level = QualityLow
	case stats.uniqueTags >= minTagDiversity && stats.hasHeading:
		level = QualityGood
	default:
		level = QualityLow
	}

	report := &QualityReport{Level: level, Warnings: warnings}
	if opts.IncludeMetrics {
		report.Metrics = &QualityMetrics{
			ElementCount:    count,
			VisibleCount:    count - stats.hiddenCount,
			HiddenCount:     stats.hiddenCount,
			UniqueTags:      stats.uniqueTags,
			TagDistribution: stats.tagDistribution,
			HiddenRatio:     hiddenRatio,
			TotalTextLength: stats.totalTextLength,
			AvgTextLength:   avgText,
			MinTextLength:   stats.minTextLength,
			MaxTextLength:   stats.maxTextLength,
			HasHeading:      stats.hasHeading,
		}
	}
	return report
}

type extractionStats struct {
	uniqueTags      int
	tagDistribution map[string]int
	hasHeading      bool
	hiddenCount     int
	totalTextLength int
	minTextLength   int
	maxTextLength   int
}

func gatherStats(elements []Element) extractionStats {
	stats := extractionStats{
		tagDistribution: make(map[string]int),
		minTextLength:   len(elements[0].Text),
	}
	for _, el := range elements {
		tag := strings.ToLower(el.TagName)
		stats.tagDistribution[tag]++
		if isHeadingTag(tag) {
			stats.hasHeading = true
		}
		if !el.Visible {
			stats.hiddenCount++
		}
		n := len(el.Text)
		stats.totalTextLength += n
		if n < stats.minTextLength {
			stats.minTextLength = n
		}
		if n > stats.maxTextLength {
			stats.maxTextLength = n
		}
	}
	stats.uniqueTags = len(stats.tagDistribution)
	return stats
}
