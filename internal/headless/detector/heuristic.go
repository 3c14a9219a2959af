// Package detector decides how much of a loaded blog post is worth capturing.
//
// Detection is an ordered chain of strategies. Each strategy either produces a
// Region or declines, and the first Region wins. Selector strategies come
// first (most platform-specific first), then the document title, then a
// caller-supplied label. Detect never fails.
package detector

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"
)

// Region bounds and defaults.
const (
	Margin        = 50
	HardCap       = 600
	DefaultBottom = 400
)

// Source records which strategy produced a Region.
type Source string

// Known region sources.
const (
	SourceSelector  Source = "detected-selector"
	SourcePageTitle Source = "page-title-fallback"
	SourceDefault   Source = "default"
)

const titleSuffixNaver = ": 네이버 블로그"

// DefaultSelectors lists title selectors, most specific first. Naver blog
// templates (SmartEditor ONE, SmartEditor 2, legacy) lead, followed by
// generic article headings.
var DefaultSelectors = []string{
	".se-title-text",
	".se_title .se_textarea",
	".pcol1 .itemSubjectBoldfont",
	".htitle",
	"h3.se_textarea",
	".tit_h3",
	"h1.entry-title",
	"article h1",
	"h1",
}

var titleSuffixes = []string{
	" " + titleSuffixNaver,
	titleSuffixNaver,
	" : 네이버블로그",
	" : Naver Blog",
}

// Element is the measured state of the first node matching a selector.
type Element struct {
	Found   bool
	Visible bool
	Text    string
	// Bottom is the element's bottom edge in document coordinates (px).
	Bottom float64
}

// Page is the minimal view of a loaded document the detector needs.
type Page interface {
	Probe(ctx context.Context, selector string) (Element, error)
	Title(ctx context.Context) (string, error)
}

// Region is the computed capture boundary plus the label used for reporting.
type Region struct {
	BottomOffsetPx int
	Source         Source
	Title          string
}

// Strategy attempts to produce a Region; ok=false falls through to the next one.
type Strategy func(ctx context.Context, page Page) (region Region, ok bool)

// Heuristic runs the strategy chain.
type Heuristic struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewHeuristic builds a detector for the given selectors, falling back to
// DefaultSelectors when none are supplied.
func NewHeuristic(logger *zap.Logger, selectors ...string) *Heuristic {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	h := &Heuristic{logger: logger}
	for _, sel := range selectors {
		h.strategies = append(h.strategies, h.selectorStrategy(sel))
	}
	h.strategies = append(h.strategies, h.pageTitleStrategy())
	return h
}

// Detect returns the first Region any strategy yields, or a default Region
// labelled with fallbackTitle.
func (h *Heuristic) Detect(ctx context.Context, page Page, fallbackTitle string) Region {
	for _, strategy := range h.strategies {
		if ctx.Err() != nil {
			break
		}
		if region, ok := h.try(ctx, strategy, page); ok {
			return region
		}
	}
	return Region{BottomOffsetPx: DefaultBottom, Source: SourceDefault, Title: fallbackTitle}
}

func (h *Heuristic) try(ctx context.Context, strategy Strategy, page Page) (region Region, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Warn("detection strategy panicked", zap.Any("panic", rec))
			region, ok = Region{}, false
		}
	}()
	return strategy(ctx, page)
}

func (h *Heuristic) selectorStrategy(selector string) Strategy {
	return func(ctx context.Context, page Page) (Region, bool) {
		el, err := page.Probe(ctx, selector)
		if err != nil {
			h.logger.Debug("selector probe failed", zap.String("selector", selector), zap.Error(err))
			return Region{}, false
		}
		text := strings.TrimSpace(el.Text)
		if !el.Found || !el.Visible || text == "" {
			return Region{}, false
		}
		return Region{
			BottomOffsetPx: BottomOffset(el.Bottom),
			Source:         SourceSelector,
			Title:          text,
		}, true
	}
}

func (h *Heuristic) pageTitleStrategy() Strategy {
	return func(ctx context.Context, page Page) (Region, bool) {
		raw, err := page.Title(ctx)
		if err != nil {
			h.logger.Debug("document title unavailable", zap.Error(err))
			return Region{}, false
		}
		title := StripTitleSuffix(raw)
		if title == "" {
			return Region{}, false
		}
		return Region{BottomOffsetPx: DefaultBottom, Source: SourcePageTitle, Title: title}, true
	}
}

// BottomOffset applies the margin and the hard cap to an element bottom edge.
func BottomOffset(elementBottom float64) int {
	if math.IsNaN(elementBottom) || elementBottom < 0 {
		elementBottom = 0
	}
	return int(math.Ceil(math.Min(elementBottom+Margin, HardCap)))
}

// StripTitleSuffix removes the blog platform suffix from a document title.
func StripTitleSuffix(title string) string {
	title = strings.TrimSpace(title)
	for _, suffix := range titleSuffixes {
		if trimmed, ok := strings.CutSuffix(title, suffix); ok {
			return strings.TrimSpace(trimmed)
		}
	}
	return title
}
