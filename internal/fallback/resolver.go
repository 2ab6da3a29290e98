// Package fallback mines a fetched page's machine-readable side channels
// when the primary extraction strategy finds nothing: JSON-LD blocks, then
// OpenGraph/Twitter/standard meta tags, then key/value-looking data-*
// attributes. The first kind that yields anything wins; kinds are never
// merged. Whatever is found gets reshaped to the schema contract.
package fallback

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/pagelift/internal/fetch"
	"github.com/jmylchreest/pagelift/internal/llm"
	"github.com/jmylchreest/pagelift/internal/schema"
)

// preferredTypes are the JSON-LD @type taxonomies worth extracting from, in
// the order pages typically carry them.
var preferredTypes = []string{"Product", "Article", "JobPosting", "Review"}

// metaNames are the standard (non-OG, non-Twitter) meta tag names worth
// collecting.
var metaNames = map[string]bool{
	"description":  true,
	"keywords":     true,
	"author":       true,
	"price":        true,
	"availability": true,
}

// Resolver resolves alternative page sources into a schema-shaped record.
type Resolver struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// New creates a Resolver. client may be nil; reshaping then uses only the
// deterministic name match.
func New(client llm.Client, model string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{client: client, model: model, logger: logger}
}

// Resolve mines the page's side channels in precedence order and reshapes
// the first non-empty find to the schema. An empty container means the
// page had nothing usable.
func (r *Resolver) Resolve(ctx context.Context, page *fetch.Page, s *schema.Schema, query string) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, err
	}

	if raw := extractJSONLD(doc); len(raw) > 0 {
		r.logger.InfoContext(ctx, "alternative source found", "kind", "json-ld", "keys", len(raw))
		return r.reshape(ctx, raw, s, query)
	}
	if raw := extractMetaTags(doc); len(raw) > 0 {
		r.logger.InfoContext(ctx, "alternative source found", "kind", "meta-tags", "keys", len(raw))
		return r.reshape(ctx, raw, s, query)
	}
	if raw := extractDataAttributes(doc); len(raw) > 0 {
		r.logger.InfoContext(ctx, "alternative source found", "kind", "data-attributes", "keys", len(raw))
		return r.reshape(ctx, raw, s, query)
	}

	r.logger.InfoContext(ctx, "no alternative sources found")
	return map[string]any{s.ContainerKey: []any{}}, nil
}

// extractJSONLD returns the first JSON-LD block with a preferred @type, or
// failing that the first parseable block at all.
func extractJSONLD(doc *goquery.Document) map[string]any {
	var first map[string]any
	var preferred map[string]any

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var parsed any
		if err := json.Unmarshal([]byte(sel.Text()), &parsed); err != nil {
			return true
		}
		for _, obj := range flattenJSONLD(parsed) {
			if first == nil {
				first = obj
			}
			if hasPreferredType(obj) {
				preferred = obj
				return false
			}
		}
		return true
	})

	if preferred != nil {
		return preferred
	}
	return first
}

// flattenJSONLD expands top-level arrays and @graph wrappers into candidate
// objects.
func flattenJSONLD(parsed any) []map[string]any {
	var out []map[string]any
	switch v := parsed.(type) {
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			out = append(out, flattenJSONLD(graph)...)
		} else {
			out = append(out, v)
		}
	case []any:
		for _, entry := range v {
			if obj, ok := entry.(map[string]any); ok {
				out = append(out, obj)
			}
		}
	}
	return out
}

func hasPreferredType(obj map[string]any) bool {
	typ, _ := obj["@type"].(string)
	for _, want := range preferredTypes {
		if strings.Contains(typ, want) {
			return true
		}
	}
	return false
}

// extractMetaTags collects OpenGraph, Twitter Card, and a few standard
// meta tags as a flat key/value map.
func extractMetaTags(doc *goquery.Document) map[string]any {
	out := make(map[string]any)

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		content, ok := sel.Attr("content")
		if !ok || content == "" {
			return
		}
		if prop, ok := sel.Attr("property"); ok {
			if name, found := strings.CutPrefix(prop, "og:"); found {
				out["og_"+strings.ReplaceAll(name, ":", "_")] = content
				return
			}
		}
		if name, ok := sel.Attr("name"); ok {
			if tw, found := strings.CutPrefix(name, "twitter:"); found {
				out["twitter_"+strings.ReplaceAll(tw, ":", "_")] = content
				return
			}
			if metaNames[strings.ToLower(name)] {
				out[strings.ToLower(name)] = content
			}
		}
	})

	return out
}

// extractDataAttributes collects key/value-looking data-* attributes. Only
// value-bearing names are kept; framework plumbing (data-reactid and
// friends) carries no extractable facts and is skipped.
func extractDataAttributes(doc *goquery.Document) map[string]any {
	out := make(map[string]any)

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			for _, attr := range node.Attr {
				name, found := strings.CutPrefix(attr.Key, "data-")
				if !found || attr.Val == "" {
					continue
				}
				switch {
				case strings.HasPrefix(name, "product-"):
					out["product_"+strings.TrimPrefix(name, "product-")] = attr.Val
				case name == "price", name == "name", name == "id", name == "sku",
					name == "title", name == "currency", name == "brand":
					if _, exists := out[name]; !exists {
						out[name] = attr.Val
					}
				}
			}
		}
	})

	return out
}
