package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jmylchreest/pagelift/internal/fetch"
	"github.com/jmylchreest/pagelift/internal/llm"
	"github.com/jmylchreest/pagelift/internal/schema"
)

// maxContentLen caps the page content sent to the model, roughly 25k
// tokens.
const maxContentLen = 100000

const extractionPromptTemplate = `Extract structured data from this web page content.

User request: %s

Output contract (JSON Schema):
%s

Page content:
%s

Return ONLY a JSON object matching the contract exactly: one %q array
holding the extracted items. Use null for optional fields that are absent.
Do not invent values that are not on the page. No explanations, no markdown.`

var (
	stripScriptRegex   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	stripStyleRegex    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	stripNoscriptRegex = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	stripTagRegex      = regexp.MustCompile(`<[^>]+>`)
	collapseWSRegex    = regexp.MustCompile(`[ \t]+`)
	collapseNLRegex    = regexp.MustCompile(`\n{3,}`)
)

// SemanticStrategy extracts by sending trimmed page content and the schema
// contract to a model.
type SemanticStrategy struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// NewSemanticStrategy creates the model-driven strategy.
func NewSemanticStrategy(client llm.Client, model string, logger *slog.Logger) *SemanticStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticStrategy{client: client, model: model, logger: logger}
}

// Extract runs one model call over the page and parses the reply into a
// container-shaped candidate.
func (st *SemanticStrategy) Extract(ctx context.Context, page *fetch.Page, s *schema.Schema, query string) (map[string]any, error) {
	content := TrimContent(page.HTML)

	contract, err := json.MarshalIndent(s.ContainerJSONSchema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render schema contract: %w", err)
	}

	prompt := fmt.Sprintf(extractionPromptTemplate, query, contract, content, s.ContainerKey)

	// MaxTokens is left to the client default so the operator-configured
	// ceiling governs the largest call in the pipeline.
	result, err := st.client.Complete(ctx, prompt, llm.CallOptions{
		Model:    st.model,
		Timeout:  180 * time.Second,
		JSONMode: true,
	})
	if err != nil {
		return nil, err
	}

	st.logger.DebugContext(ctx, "semantic extraction reply",
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"content_length", len(result.Content),
	)

	return ParseCandidate(result.Content, s)
}

// TrimContent strips script/style/noscript blocks and tags from HTML,
// collapses whitespace, and caps the length for model consumption.
func TrimContent(html string) string {
	cleaned := stripScriptRegex.ReplaceAllString(html, " ")
	cleaned = stripStyleRegex.ReplaceAllString(cleaned, " ")
	cleaned = stripNoscriptRegex.ReplaceAllString(cleaned, " ")
	cleaned = stripTagRegex.ReplaceAllString(cleaned, "\n")
	cleaned = collapseWSRegex.ReplaceAllString(cleaned, " ")
	cleaned = collapseNLRegex.ReplaceAllString(cleaned, "\n\n")
	cleaned = strings.TrimSpace(cleaned)

	if len(cleaned) > maxContentLen {
		cleaned = cleaned[:maxContentLen] + "\n\n[Content truncated...]"
	}
	return cleaned
}
