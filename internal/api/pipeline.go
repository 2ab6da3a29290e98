// Package api exposes the extraction pipeline over HTTP: one request takes
// a natural-language query and a URL through schema generation, strategy
// routing, resilient extraction, and validation.
package api

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/pagelift/internal/extract"
	"github.com/jmylchreest/pagelift/internal/llm"
	"github.com/jmylchreest/pagelift/internal/router"
	"github.com/jmylchreest/pagelift/internal/schema"
)

// SchemaGenerator turns a query into the extraction contract.
type SchemaGenerator interface {
	Generate(ctx context.Context, query string) (*schema.Schema, error)
}

// StrategyRouter picks the extraction strategy for a request.
type StrategyRouter interface {
	Decide(ctx context.Context, s *schema.Schema, query string, selectors *router.Selectors) router.Decision
}

// Runner runs the resilient extraction loop for one URL.
type Runner interface {
	Extract(ctx context.Context, url string, s *schema.Schema, query string, primary extract.Strategy) (*extract.Result, error)
}

// Validator checks extracted data against the contract.
type Validator func(candidate map[string]any, s *schema.Schema) (map[string]any, error)

// Pipeline wires the per-request stages together.
type Pipeline struct {
	generator SchemaGenerator
	router    StrategyRouter
	runner    Runner
	validate  Validator

	client llm.Client
	model  string
	logger *slog.Logger
}

// PipelineConfig configures a Pipeline. Validate defaults to
// schema.Validate.
type PipelineConfig struct {
	Generator SchemaGenerator
	Router    StrategyRouter
	Runner    Runner
	Validate  Validator

	// Client and Model build the semantic strategy for requests routed
	// that way.
	Client llm.Client
	Model  string
	Logger *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Validate == nil {
		cfg.Validate = schema.Validate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		generator: cfg.Generator,
		router:    cfg.Router,
		runner:    cfg.Runner,
		validate:  cfg.Validate,
		client:    cfg.Client,
		model:     cfg.Model,
		logger:    cfg.Logger,
	}
}

// PipelineResult is one successful pass through every stage.
type PipelineResult struct {
	Data     map[string]any
	Schema   *schema.Schema
	Decision router.Decision
	Extract  *extract.Result
}

// Run executes the full pipeline for one request. The schema contract is
// generated once and never modified afterwards; every later stage reads the
// same contract.
func (p *Pipeline) Run(ctx context.Context, url, query string, selectors *router.Selectors) (*PipelineResult, error) {
	s, err := p.generator.Generate(ctx, query)
	if err != nil {
		return nil, err
	}

	decision := p.router.Decide(ctx, s, query, selectors)

	var primary extract.Strategy
	switch decision.Strategy {
	case router.StrategyStructural:
		primary = extract.NewStructuralStrategy(selectors, p.logger)
	default:
		primary = extract.NewSemanticStrategy(p.client, p.model, p.logger)
	}

	result, err := p.runner.Extract(ctx, url, s, query, primary)
	if err != nil {
		return nil, err
	}
	result.Strategy = decision.Strategy

	validated, err := p.validate(result.Data, s)
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "pipeline completed",
		"url", url,
		"strategy", decision.Strategy,
		"attempts", result.Attempts,
		"used_fallback", result.UsedFallback,
	)

	return &PipelineResult{
		Data:     validated,
		Schema:   s,
		Decision: decision,
		Extract:  result,
	}, nil
}
