package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Provider identifiers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// ErrOutputTruncated is returned when the model response was cut off at the
// max_tokens limit. Truncated JSON is unparseable, so callers treat this as
// a retryable failure rather than attempting repair.
type ErrOutputTruncated struct {
	OutputTokens int
	MaxTokens    int
	Model        string
}

func (e *ErrOutputTruncated) Error() string {
	return fmt.Sprintf("model output truncated: generated %d tokens (limit: %d) for model %s", e.OutputTokens, e.MaxTokens, e.Model)
}

// IsOutputTruncated returns true if the error is an output truncation error.
func IsOutputTruncated(err error) bool {
	var truncErr *ErrOutputTruncated
	return errors.As(err, &truncErr)
}

// ClientConfig configures an HTTPClient.
type ClientConfig struct {
	Provider string // anthropic, openai, ollama
	APIKey   string
	Model    string // default model when CallOptions.Model is empty
	BaseURL  string // optional override; required default exists per provider

	// Defaults applied when CallOptions leave them unset.
	MaxTokens   int
	Temperature float64
}

// HTTPClient is the production Client: a single-turn chat completion call
// against an Anthropic, OpenAI-compatible, or Ollama endpoint.
type HTTPClient struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewHTTPClient creates a Client for the configured provider.
func NewHTTPClient(cfg ClientConfig, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.APIKey == "" && cfg.Provider != ProviderOllama {
		return nil, fmt.Errorf("no API key available for provider %s", cfg.Provider)
	}
	return &HTTPClient{cfg: cfg, logger: logger}, nil
}

// Complete makes a single-turn model call and returns the response with
// token usage.
func (c *HTTPClient) Complete(ctx context.Context, prompt string, opts CallOptions) (*CallResult, error) {
	if opts.Model == "" {
		opts.Model = c.cfg.Model
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = c.cfg.MaxTokens
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if opts.Temperature == 0 {
		opts.Temperature = c.cfg.Temperature
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}

	reqBody := map[string]any{
		"model": opts.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxTokens,
	}

	// response_format is an OpenAI-ism. Anthropic and Ollama rely on the
	// prompt instructions for JSON output.
	if opts.JSONMode && c.cfg.Provider == ProviderOpenAI {
		reqBody["response_format"] = map[string]string{"type": "json_object"}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := c.apiURL()

	if c.logger != nil {
		c.logger.DebugContext(ctx, "making model API request",
			"provider", c.cfg.Provider,
			"model", opts.Model,
			"api_url", apiURL,
			"prompt_length", len(prompt),
			"temperature", opts.Temperature,
			"max_tokens", opts.MaxTokens,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	client := &http.Client{Timeout: opts.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.ErrorContext(ctx, "model API request failed", "provider", c.cfg.Provider, "error", err)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if c.logger != nil {
			c.logger.ErrorContext(ctx, "model API error",
				"provider", c.cfg.Provider,
				"status_code", resp.StatusCode,
				"response", string(body),
			)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	result, err := ParseResponse(c.cfg.Provider, body)
	if err != nil {
		return nil, err
	}
	result.Model = opts.Model

	if result.IsTruncated() {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "model output truncated",
				"provider", c.cfg.Provider,
				"model", opts.Model,
				"output_tokens", result.OutputTokens,
				"max_tokens", opts.MaxTokens,
			)
		}
		return nil, &ErrOutputTruncated{
			OutputTokens: result.OutputTokens,
			MaxTokens:    opts.MaxTokens,
			Model:        opts.Model,
		}
	}

	return result, nil
}

func (c *HTTPClient) apiURL() string {
	switch c.cfg.Provider {
	case ProviderAnthropic:
		base := c.cfg.BaseURL
		if base == "" {
			base = "https://api.anthropic.com"
		}
		return base + "/v1/messages"
	case ProviderOllama:
		base := c.cfg.BaseURL
		if base == "" {
			base = "http://localhost:11434"
		}
		return base + "/api/chat"
	default:
		base := c.cfg.BaseURL
		if base == "" {
			base = "https://api.openai.com"
		}
		return base + "/v1/chat/completions"
	}
}

func (c *HTTPClient) setAuthHeaders(req *http.Request) {
	switch c.cfg.Provider {
	case ProviderAnthropic:
		req.Header.Set("x-api-key", c.cfg.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	case ProviderOllama:
		// No auth needed
	default:
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

// ParseResponse extracts the text response and token usage from the
// provider-specific wire format. Exported for testing.
func ParseResponse(provider string, body []byte) (*CallResult, error) {
	switch provider {
	case ProviderAnthropic:
		return parseAnthropicFormat(body)
	case ProviderOllama:
		return parseOllamaFormat(body)
	default:
		return parseOpenAIFormat(body)
	}
}

func parseAnthropicFormat(body []byte) (*CallResult, error) {
	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"` // "end_turn", "max_tokens", "stop_sequence"
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse Anthropic response: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	result := &CallResult{
		Content:      resp.Content[0].Text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}

	// Normalize Anthropic's stop_reason to OpenAI-style finish_reason
	switch resp.StopReason {
	case "max_tokens":
		result.FinishReason = "length"
	case "end_turn", "stop_sequence":
		result.FinishReason = "stop"
	default:
		result.FinishReason = resp.StopReason
	}

	return result, nil
}

func parseOllamaFormat(body []byte) (*CallResult, error) {
	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		DoneReason      string `json:"done_reason"` // "stop", "length"
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse Ollama response: %w", err)
	}

	return &CallResult{
		Content:      resp.Message.Content,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		FinishReason: resp.DoneReason,
	}, nil
}

func parseOpenAIFormat(body []byte) (*CallResult, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"` // "stop", "length", "content_filter"
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	return &CallResult{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}
