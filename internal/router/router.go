// Package router decides, once per request, whether extraction runs the
// structural (selector-driven) or semantic (model-driven) strategy.
//
// The decision is advisory and total: routing never fails a request. Any
// error on the classification path degrades to the semantic strategy, which
// works on every page the semantic extractor can read.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/pagelift/internal/llm"
	"github.com/jmylchreest/pagelift/internal/schema"
)

// Strategy identifies an extraction strategy.
type Strategy string

const (
	// StrategyStructural extracts with caller-supplied CSS selectors.
	StrategyStructural Strategy = "structural"
	// StrategySemantic extracts with a model call over page content.
	StrategySemantic Strategy = "semantic"
)

// FieldSelector maps one schema field to a CSS selector, optionally reading
// an attribute instead of text content.
type FieldSelector struct {
	Name      string `json:"name"`
	Selector  string `json:"selector"`
	Attribute string `json:"attribute,omitempty"`
}

// Selectors is a caller-supplied structural extraction recipe: a base
// selector matching one item element, and per-field selectors scoped to it.
type Selectors struct {
	Base   string          `json:"base_selector"`
	Fields []FieldSelector `json:"fields"`
}

// Empty reports whether no usable selectors were supplied.
func (s *Selectors) Empty() bool {
	return s == nil || s.Base == "" || len(s.Fields) == 0
}

// Decision is the routing outcome, with a human-readable rationale for
// logging and the API response.
type Decision struct {
	Strategy  Strategy `json:"strategy"`
	Rationale string   `json:"rationale"`
}

// Queries containing these intents need generated or derived values, which
// selectors cannot produce.
var semanticIntents = []string{
	"sentiment", "opinion",
	"summar", // summary, summaries, summarize
	"categor", "classif", "group by",
	"only ", "filter", "exclude",
	"compare", "greater than", "less than", "at least", "at most",
	"top ", "best ", "worst ", "average", "most mentioned",
	"identify", "recognize", "extract entities",
}

const intentPrompt = `Determine if this web scraping query requires semantic understanding (a language model) or can be done with simple CSS selectors.

Query: "%s"

A query requires SEMANTIC understanding if it involves ANY of:
- Sentiment analysis or opinion detection
- Summarization or generating summaries from content
- Categorization, classification, or grouping
- Filtering with conditions (e.g. "only products with rating > 4", "best rated")
- Comparisons or calculations
- Creating derived fields that do not literally exist on the page

A query is STRUCTURAL if it only copies visible text or attributes that
already exist on the page, with no interpretation or analysis.

Answer with ONLY one word: "SEMANTIC" or "STRUCTURAL".`

// Router makes strategy decisions.
type Router struct {
	client      llm.Client
	intentModel string
	logger      *slog.Logger
}

// New creates a Router. client may be nil, in which case the classification
// tiebreak is skipped and ambiguous queries resolve semantic.
func New(client llm.Client, intentModel string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{client: client, intentModel: intentModel, logger: logger}
}

// Decide picks the strategy for one request. The precedence is fixed:
// semantic-intent vocabulary, then schema complexity, then missing
// selectors, then a single model classification call. Classification is
// never retried; its failure resolves semantic.
func (r *Router) Decide(ctx context.Context, s *schema.Schema, query string, selectors *Selectors) Decision {
	if intent, ok := matchSemanticIntent(query); ok {
		return r.decided(ctx, Decision{
			Strategy:  StrategySemantic,
			Rationale: "query has semantic intent: " + intent,
		})
	}

	if s.FieldCount() > 10 {
		return r.decided(ctx, Decision{
			Strategy:  StrategySemantic,
			Rationale: "schema is complex: more than 10 fields",
		})
	}
	if s.HasNestedFields() {
		return r.decided(ctx, Decision{
			Strategy:  StrategySemantic,
			Rationale: "schema is complex: nested object fields",
		})
	}

	// Structural extraction needs a selector recipe; without one the
	// classification call would be wasted.
	if selectors.Empty() {
		return r.decided(ctx, Decision{
			Strategy:  StrategySemantic,
			Rationale: "no selectors supplied",
		})
	}

	return r.decided(ctx, r.classify(ctx, query))
}

func (r *Router) decided(ctx context.Context, d Decision) Decision {
	r.logger.InfoContext(ctx, "strategy decided", "strategy", d.Strategy, "rationale", d.Rationale)
	return d
}

// classify asks a fast model for a SEMANTIC/STRUCTURAL verdict. One shot;
// any failure or unrecognized reply resolves semantic.
func (r *Router) classify(ctx context.Context, query string) Decision {
	if r.client == nil {
		return Decision{Strategy: StrategySemantic, Rationale: "no classifier configured"}
	}

	result, err := r.client.Complete(ctx, fmt.Sprintf(intentPrompt, query), llm.CallOptions{
		Model:     r.intentModel,
		MaxTokens: 10,
		Timeout:   15 * time.Second,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "strategy classification failed, defaulting to semantic", "error", err)
		return Decision{Strategy: StrategySemantic, Rationale: "classification failed: " + err.Error()}
	}

	verdict := strings.ToUpper(strings.TrimSpace(result.Content))
	switch {
	case strings.Contains(verdict, "STRUCTURAL"):
		return Decision{Strategy: StrategyStructural, Rationale: "classifier verdict: STRUCTURAL"}
	case strings.Contains(verdict, "SEMANTIC"):
		return Decision{Strategy: StrategySemantic, Rationale: "classifier verdict: SEMANTIC"}
	default:
		r.logger.WarnContext(ctx, "unrecognized classifier verdict, defaulting to semantic", "verdict", verdict)
		return Decision{Strategy: StrategySemantic, Rationale: "unrecognized classifier verdict"}
	}
}

func matchSemanticIntent(query string) (string, bool) {
	q := strings.ToLower(query)
	for _, intent := range semanticIntents {
		if strings.Contains(q, intent) {
			return strings.TrimSpace(intent), true
		}
	}
	return "", false
}
