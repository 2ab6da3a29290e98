package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/pagelift/internal/extract"
	"github.com/jmylchreest/pagelift/internal/llm"
	"github.com/jmylchreest/pagelift/internal/schema"
)

const reshapePrompt = `Map this raw key/value data from a web page to the output contract.

User request: %s

Output contract (JSON Schema):
%s

Raw data:
%s

Return ONLY a JSON object matching the contract: one %q array holding the
mapped item(s). Map only values present in the raw data; omit or use null
for fields with no counterpart. No explanations, no markdown.`

// reshape maps a raw key/value record to the schema contract: model-
// assisted when a client is available, deterministic field-name matching
// otherwise or when the model pass fails.
func (r *Resolver) reshape(ctx context.Context, raw map[string]any, s *schema.Schema, query string) (map[string]any, error) {
	if r.client != nil {
		candidate, err := r.reshapeWithModel(ctx, raw, s, query)
		if err == nil && !extract.IsEmptyContainer(candidate, s) {
			return candidate, nil
		}
		if err != nil {
			r.logger.WarnContext(ctx, "model reshape failed, falling back to name matching", "error", err)
		}
	}
	return reshapeByName(raw, s), nil
}

func (r *Resolver) reshapeWithModel(ctx context.Context, raw map[string]any, s *schema.Schema, query string) (map[string]any, error) {
	rawJSON, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, err
	}
	contract, err := json.MarshalIndent(s.ContainerJSONSchema(), "", "  ")
	if err != nil {
		return nil, err
	}

	result, err := r.client.Complete(ctx,
		fmt.Sprintf(reshapePrompt, query, contract, rawJSON, s.ContainerKey),
		llm.CallOptions{
			Model:     r.model,
			MaxTokens: 2000,
			Timeout:   60 * time.Second,
			JSONMode:  true,
		})
	if err != nil {
		return nil, err
	}
	return extract.ParseCandidate(result.Content, s)
}

// reshapeByName maps raw keys onto schema fields by normalized name: exact
// match first, then suffix match (og_title -> title). One item at most; an
// unmappable record yields an empty container.
func reshapeByName(raw map[string]any, s *schema.Schema) map[string]any {
	item := make(map[string]any)

	for _, f := range s.Fields {
		want := normalizeKey(f.Name)
		for key, val := range raw {
			got := normalizeKey(key)
			if got == want || strings.HasSuffix(got, want) {
				if _, exists := item[f.Name]; !exists {
					item[f.Name] = val
				}
			}
		}
	}

	if len(item) == 0 {
		return map[string]any{s.ContainerKey: []any{}}
	}
	return map[string]any{s.ContainerKey: []any{item}}
}

func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
