// Package schemagen turns a free-text extraction query into a Schema
// Contract by asking a model to emit a container-shaped JSON Schema
// document.
package schemagen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jmylchreest/pagelift/internal/llm"
	"github.com/jmylchreest/pagelift/internal/schema"
)

// Error is the typed schema-generation failure. It always surfaces to the
// caller: without a contract there is nothing to extract against.
type Error struct {
	Query string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema generation failed for query %q: %v", e.Query, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsSchemaGenerationError returns true if the error is a schema-generation
// failure.
func IsSchemaGenerationError(err error) bool {
	var genErr *Error
	return errors.As(err, &genErr)
}

const generationPrompt = `You are a data schema expert. Generate a JSON Schema describing the structured data a user wants extracted from a web page.

**IMPORTANT RULES:**
1. Output ONLY a valid JSON Schema document, no explanations or markdown
2. The root must be an object with EXACTLY ONE property: an array of item objects
3. Name the array property as a plural of the item type (e.g. "products", "jobs", "articles")
4. Give the item object a "title" naming the item type (e.g. "Product")
5. Use types: string, number, integer, boolean; nested objects and arrays only when the query demands them
6. Mark a field required only when the query implies it always exists
7. Add a "description" to a field when the name alone is ambiguous

**EXAMPLE 1:**
Query: "Extract job listings with title, company, salary range, and remote status"

Output:
{
  "type": "object",
  "title": "JobListings",
  "properties": {
    "jobs": {
      "type": "array",
      "items": {
        "type": "object",
        "title": "JobListing",
        "properties": {
          "title": {"type": "string"},
          "company": {"type": "string"},
          "salary_range": {"type": "string"},
          "is_remote": {"type": "boolean"}
        },
        "required": ["title", "company"]
      }
    }
  },
  "required": ["jobs"]
}

**EXAMPLE 2:**
Query: "Get product name, price, rating, and stock status"

Output:
{
  "type": "object",
  "title": "ProductList",
  "properties": {
    "products": {
      "type": "array",
      "items": {
        "type": "object",
        "title": "Product",
        "properties": {
          "name": {"type": "string"},
          "price": {"type": "string"},
          "rating": {"type": "number"},
          "in_stock": {"type": "boolean"}
        },
        "required": ["name", "price"]
      }
    }
  },
  "required": ["products"]
}

Now generate a JSON Schema for this query:
%s

Remember: Output ONLY the JSON Schema document.`

// Generator produces extraction schemas from natural-language queries.
type Generator struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// New creates a Generator. model may be empty to use the client default.
func New(client llm.Client, model string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, model: model, logger: logger}
}

// Generate asks the model for a container-shaped JSON Schema and parses it
// into the Schema Contract. The contract is immutable for the rest of the
// request.
func (g *Generator) Generate(ctx context.Context, query string) (*schema.Schema, error) {
	g.logger.InfoContext(ctx, "generating schema", "query_length", len(query))

	result, err := g.client.Complete(ctx, fmt.Sprintf(generationPrompt, query), llm.CallOptions{
		Model:    g.model,
		JSONMode: true,
		Timeout:  60 * time.Second,
	})
	if err != nil {
		return nil, &Error{Query: query, Err: err}
	}

	raw := llm.StripFences(result.Content)
	if !gjson.Valid(raw) {
		return nil, &Error{Query: query, Err: fmt.Errorf("model did not return valid JSON")}
	}

	s, err := schema.ParseJSONSchema([]byte(raw))
	if err != nil {
		return nil, &Error{Query: query, Err: err}
	}

	g.logger.InfoContext(ctx, "schema generated",
		"item_type", s.Name,
		"container_key", s.ContainerKey,
		"field_count", s.FieldCount(),
	)
	return s, nil
}
