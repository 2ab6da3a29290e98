package api

import (
	"context"
	"errors"
	"testing"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/pagelift/internal/extract"
	"github.com/jmylchreest/pagelift/internal/router"
	"github.com/jmylchreest/pagelift/internal/schema"
	"github.com/jmylchreest/pagelift/internal/schemagen"
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		Name:         "Post",
		ContainerKey: "posts",
		Fields: []schema.Field{
			{Name: "title", Type: schema.TypeString, Required: true},
			{Name: "points", Type: schema.TypeInteger},
		},
	}
}

type stubGenerator struct {
	s   *schema.Schema
	err error
}

func (g *stubGenerator) Generate(_ context.Context, _ string) (*schema.Schema, error) {
	return g.s, g.err
}

type stubRouter struct {
	decision router.Decision
}

func (r *stubRouter) Decide(_ context.Context, _ *schema.Schema, _ string, _ *router.Selectors) router.Decision {
	return r.decision
}

type stubRunner struct {
	result   *extract.Result
	err      error
	strategy extract.Strategy
}

func (r *stubRunner) Extract(_ context.Context, _ string, _ *schema.Schema, _ string, primary extract.Strategy) (*extract.Result, error) {
	r.strategy = primary
	return r.result, r.err
}

func okResult() *extract.Result {
	return &extract.Result{
		Data: map[string]any{
			"posts": []any{map[string]any{"title": "A", "points": float64(5)}},
		},
		Attempts: 1,
		Policy:   "fast",
		Fetcher:  "static",
	}
}

func newTestHandler(gen *stubGenerator, rt *stubRouter, run *stubRunner) *ExtractionHandler {
	p := NewPipeline(PipelineConfig{
		Generator: gen,
		Router:    rt,
		Runner:    run,
	})
	return NewExtractionHandler(p, nil)
}

func extractInput(url, query string) *ExtractInput {
	in := &ExtractInput{}
	in.Body.URL = url
	in.Body.Query = query
	return in
}

func TestExtractSuccess(t *testing.T) {
	run := &stubRunner{result: okResult()}
	h := newTestHandler(
		&stubGenerator{s: testSchema()},
		&stubRouter{decision: router.Decision{Strategy: router.StrategySemantic, Rationale: "no selectors supplied"}},
		run,
	)

	out, err := h.Extract(context.Background(), extractInput("https://news.example.com", "get the posts"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if out.Body.RequestID == "" {
		t.Error("missing request ID")
	}
	if out.Body.Schema.ContainerKey != "posts" {
		t.Errorf("container key = %q", out.Body.Schema.ContainerKey)
	}
	items, _ := out.Body.Data["posts"].([]any)
	if len(items) != 1 {
		t.Fatalf("data = %#v, want one validated item", out.Body.Data)
	}
	if out.Body.Metadata.Strategy != "semantic" {
		t.Errorf("strategy = %q, want semantic", out.Body.Metadata.Strategy)
	}
	if out.Body.Metadata.Rationale == "" {
		t.Error("missing rationale")
	}
	if _, ok := run.strategy.(*extract.SemanticStrategy); !ok {
		t.Errorf("runner got %T, want semantic strategy", run.strategy)
	}
}

func TestExtractStructuralStrategySelection(t *testing.T) {
	run := &stubRunner{result: okResult()}
	h := newTestHandler(
		&stubGenerator{s: testSchema()},
		&stubRouter{decision: router.Decision{Strategy: router.StrategyStructural, Rationale: "classifier verdict: STRUCTURAL"}},
		run,
	)

	in := extractInput("https://news.example.com", "get the posts")
	in.Body.Selectors = &SelectorsInput{
		Base:   "div.post",
		Fields: []FieldSelectorInput{{Name: "title", Selector: "h3"}},
	}

	out, err := h.Extract(context.Background(), in)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, ok := run.strategy.(*extract.StructuralStrategy); !ok {
		t.Errorf("runner got %T, want structural strategy", run.strategy)
	}
	if out.Body.Metadata.Strategy != "structural" {
		t.Errorf("strategy = %q, want structural", out.Body.Metadata.Strategy)
	}
}

func TestExtractInvalidURL(t *testing.T) {
	h := newTestHandler(&stubGenerator{s: testSchema()}, &stubRouter{}, &stubRunner{result: okResult()})

	_, err := h.Extract(context.Background(), extractInput("not a url", "get the posts"))
	assertStatus(t, err, 400)
}

func TestExtractValidationDropsBadItems(t *testing.T) {
	run := &stubRunner{result: &extract.Result{
		Data: map[string]any{"posts": []any{
			map[string]any{"title": "keep"},
			map[string]any{"points": float64(2)}, // required title missing
		}},
		Attempts: 1,
	}}
	h := newTestHandler(
		&stubGenerator{s: testSchema()},
		&stubRouter{decision: router.Decision{Strategy: router.StrategySemantic}},
		run,
	)

	out, err := h.Extract(context.Background(), extractInput("https://a.example.com", "q"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	items, _ := out.Body.Data["posts"].([]any)
	if len(items) != 1 {
		t.Errorf("items = %#v, want the invalid item dropped", items)
	}
}

func TestExtractErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		gen        *stubGenerator
		run        *stubRunner
		wantStatus int
	}{
		{
			"schema generation failure",
			&stubGenerator{err: &schemagen.Error{Query: "q", Err: errors.New("model down")}},
			&stubRunner{result: okResult()},
			422,
		},
		{
			"transport failure",
			&stubGenerator{s: testSchema()},
			&stubRunner{err: &extract.Error{Kind: extract.KindTransport, Attempts: 3, Err: errors.New("connect refused")}},
			502,
		},
		{
			"empty extraction failure",
			&stubGenerator{s: testSchema()},
			&stubRunner{err: &extract.Error{Kind: extract.KindEmpty, Attempts: 1, Err: errors.New("no items")}},
			404,
		},
		{
			"budget exceeded",
			&stubGenerator{s: testSchema()},
			&stubRunner{err: &extract.Error{Kind: extract.KindTransport, Attempts: 2, Err: context.DeadlineExceeded}},
			504,
		},
		{
			"validation empties container",
			&stubGenerator{s: testSchema()},
			&stubRunner{result: &extract.Result{Data: map[string]any{"posts": []any{}}, Attempts: 1}},
			422,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(tt.gen, &stubRouter{decision: router.Decision{Strategy: router.StrategySemantic}}, tt.run)
			_, err := h.Extract(context.Background(), extractInput("https://a.example.com", "q"))
			assertStatus(t, err, tt.wantStatus)
		})
	}
}

func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var se huma.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v (%T), want status error", err, err)
	}
	if se.GetStatus() != want {
		t.Errorf("status = %d, want %d (err: %v)", se.GetStatus(), want, err)
	}
}

func TestHealthCheck(t *testing.T) {
	out, err := HealthCheck(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Body.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", out.Body.Status)
	}
}

func TestLivez(t *testing.T) {
	out, err := Livez(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Body.Status != "ok" {
		t.Errorf("Status = %q, want ok", out.Body.Status)
	}
}
