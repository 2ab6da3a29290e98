package api

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pagelift/internal/logging"
	"github.com/jmylchreest/pagelift/internal/router"
	"github.com/jmylchreest/pagelift/internal/schema"
	"github.com/jmylchreest/pagelift/internal/version"
)

// ExtractionHandler handles extraction endpoints.
type ExtractionHandler struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewExtractionHandler creates a new extraction handler.
func NewExtractionHandler(pipeline *Pipeline, logger *slog.Logger) *ExtractionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionHandler{pipeline: pipeline, logger: logger}
}

// FieldSelectorInput maps one schema field to a CSS selector.
type FieldSelectorInput struct {
	Name      string `json:"name" minLength:"1" doc:"Schema field name the selector fills"`
	Selector  string `json:"selector" minLength:"1" doc:"CSS selector, scoped to the base selector"`
	Attribute string `json:"attribute,omitempty" doc:"Attribute to read instead of text content"`
}

// SelectorsInput is an optional structural extraction recipe.
type SelectorsInput struct {
	Base   string               `json:"base_selector" minLength:"1" doc:"CSS selector matching one item element"`
	Fields []FieldSelectorInput `json:"fields" minItems:"1" doc:"Per-field selectors"`
}

// ExtractInput represents an extraction request.
type ExtractInput struct {
	Body struct {
		URL       string          `json:"url" minLength:"1" format:"uri" doc:"URL of the page to extract from"`
		Query     string          `json:"query" minLength:"1" doc:"Natural-language description of the data to extract"`
		Selectors *SelectorsInput `json:"selectors,omitempty" doc:"Optional CSS selector recipe enabling structural extraction"`
	}
}

// SchemaResponse describes the generated contract in the response.
type SchemaResponse struct {
	Name         string         `json:"name" doc:"Item type name"`
	ContainerKey string         `json:"container_key" doc:"Key the item array lives under"`
	Fields       []schema.Field `json:"fields" doc:"Item fields"`
}

// MetadataResponse represents extraction metadata.
type MetadataResponse struct {
	Strategy     string `json:"strategy" doc:"Extraction strategy used: structural or semantic"`
	Rationale    string `json:"rationale" doc:"Why that strategy was chosen"`
	Attempts     int    `json:"attempts" doc:"Fetch/extract attempts consumed"`
	UsedFallback bool   `json:"used_fallback" doc:"True when data came from JSON-LD, meta tags, or data attributes"`
	FetchPolicy  string `json:"fetch_policy" doc:"Fetch policy the final attempt ran under"`
	Fetcher      string `json:"fetcher" doc:"Fetcher used: static or browser"`
}

// ExtractOutput represents an extraction response.
type ExtractOutput struct {
	Body struct {
		RequestID string           `json:"request_id" doc:"Server-assigned request ID"`
		URL       string           `json:"url" doc:"URL that was extracted"`
		Data      map[string]any   `json:"data" doc:"Validated data under the container key"`
		Schema    SchemaResponse   `json:"schema" doc:"Generated extraction contract"`
		Metadata  MetadataResponse `json:"metadata" doc:"Extraction metadata"`
	}
}

// Extract handles single-page extraction.
func (h *ExtractionHandler) Extract(ctx context.Context, input *ExtractInput) (*ExtractOutput, error) {
	reqID := ulid.Make().String()
	ctx = logging.WithRequestID(ctx, reqID)

	if _, err := url.ParseRequestURI(input.Body.URL); err != nil {
		return nil, huma.Error400BadRequest("'url' is not a valid absolute URL")
	}

	result, err := h.pipeline.Run(ctx, input.Body.URL, input.Body.Query, convertSelectors(input.Body.Selectors))
	if err != nil {
		h.logger.ErrorContext(ctx, "extraction failed", "url", input.Body.URL, "error", err)
		return nil, mapError(err)
	}

	out := &ExtractOutput{}
	out.Body.RequestID = reqID
	out.Body.URL = input.Body.URL
	out.Body.Data = result.Data
	out.Body.Schema = SchemaResponse{
		Name:         result.Schema.Name,
		ContainerKey: result.Schema.ContainerKey,
		Fields:       result.Schema.Fields,
	}
	out.Body.Metadata = MetadataResponse{
		Strategy:     string(result.Decision.Strategy),
		Rationale:    result.Decision.Rationale,
		Attempts:     result.Extract.Attempts,
		UsedFallback: result.Extract.UsedFallback,
		FetchPolicy:  result.Extract.Policy,
		Fetcher:      result.Extract.Fetcher,
	}
	return out, nil
}

func convertSelectors(in *SelectorsInput) *router.Selectors {
	if in == nil {
		return nil
	}
	out := &router.Selectors{Base: in.Base}
	for _, f := range in.Fields {
		out.Fields = append(out.Fields, router.FieldSelector{
			Name:      f.Name,
			Selector:  f.Selector,
			Attribute: f.Attribute,
		})
	}
	return out
}

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Version
	return out, nil
}

// Livez is the liveness probe.
func Livez(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "ok"
	out.Body.Version = version.Get().Version
	return out, nil
}
