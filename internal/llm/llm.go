// Package llm provides model access for the extraction pipeline. The
// pipeline depends only on the Client interface so tests can substitute
// deterministic stand-ins for real provider calls.
package llm

import (
	"context"
	"strings"
	"time"
)

// Client is the injectable model capability used by the router, the
// semantic strategy, the fallback reshaper, and schema generation.
type Client interface {
	// Complete sends a single-turn prompt and returns the model output.
	Complete(ctx context.Context, prompt string, opts CallOptions) (*CallResult, error)
}

// CallOptions configures a model call.
type CallOptions struct {
	Model       string        // overrides the client default when set
	Temperature float64       // default: 0.0
	MaxTokens   int           // default: 4096
	Timeout     time.Duration // default: 120s
	JSONMode    bool          // request JSON response format (OpenAI-compatible APIs only)
}

// CallResult holds the result of a model call including token usage.
type CallResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	FinishReason string // "stop", "length", etc. - "length" indicates truncation
	Model        string
}

// IsTruncated returns true if the response was cut off at max_tokens.
func (r *CallResult) IsTruncated() bool {
	return r.FinishReason == "length"
}

// StripFences removes a surrounding markdown code fence from model output.
// Models routinely wrap JSON replies in ```json blocks even when told not to.
func StripFences(content string) string {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
	} else {
		return s
	}
	if j := strings.Index(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}
