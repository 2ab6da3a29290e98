package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/pagelift/internal/fetch"
	"github.com/jmylchreest/pagelift/internal/router"
	"github.com/jmylchreest/pagelift/internal/schema"
)

// StructuralStrategy extracts with the caller's CSS selector recipe: one
// base selector matching each item element, per-field selectors scoped
// inside it. No model call involved.
type StructuralStrategy struct {
	selectors *router.Selectors
	logger    *slog.Logger
}

// NewStructuralStrategy creates the selector-driven strategy.
func NewStructuralStrategy(selectors *router.Selectors, logger *slog.Logger) *StructuralStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &StructuralStrategy{selectors: selectors, logger: logger}
}

// Extract evaluates the selectors against the page. Fields whose selector
// matches nothing are simply absent from the item; the validator decides
// whether that is fatal.
func (st *StructuralStrategy) Extract(ctx context.Context, page *fetch.Page, s *schema.Schema, _ string) (map[string]any, error) {
	if st.selectors.Empty() {
		return nil, fmt.Errorf("structural strategy requires selectors")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	var items []any
	doc.Find(st.selectors.Base).Each(func(_ int, el *goquery.Selection) {
		item := make(map[string]any, len(st.selectors.Fields))
		for _, f := range st.selectors.Fields {
			target := el
			if f.Selector != "" {
				target = el.Find(f.Selector).First()
			}
			if target.Length() == 0 {
				continue
			}
			var val string
			if f.Attribute != "" {
				val, _ = target.Attr(f.Attribute)
			} else {
				val = strings.TrimSpace(target.Text())
			}
			if val != "" {
				item[f.Name] = val
			}
		}
		if len(item) > 0 {
			items = append(items, item)
		}
	})

	st.logger.DebugContext(ctx, "structural extraction complete",
		"base_selector", st.selectors.Base,
		"items", len(items),
	)

	if items == nil {
		items = []any{}
	}
	return map[string]any{s.ContainerKey: items}, nil
}
