package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/jmylchreest/pagelift/internal/extract"
	"github.com/jmylchreest/pagelift/internal/fetch"
	"github.com/jmylchreest/pagelift/internal/llm"
	"github.com/jmylchreest/pagelift/internal/schema"
)

type stubClient struct {
	content string
	err     error
	calls   int
}

func (c *stubClient) Complete(_ context.Context, _ string, _ llm.CallOptions) (*llm.CallResult, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &llm.CallResult{Content: c.content, FinishReason: "stop"}, nil
}

func productSchema() *schema.Schema {
	return &schema.Schema{
		Name:         "Product",
		ContainerKey: "products",
		Fields: []schema.Field{
			{Name: "name", Type: schema.TypeString, Required: true},
			{Name: "price", Type: schema.TypeString},
			{Name: "description", Type: schema.TypeString},
		},
	}
}

const jsonLDPage = `<html><head>
<script type="application/ld+json">
{"@context": "https://schema.org", "@type": "Product", "name": "Air Max", "offers": {"price": "129.99"}}
</script>
<meta property="og:title" content="should not be used">
</head><body></body></html>`

const metaOnlyPage = `<html><head>
<meta property="og:title" content="Wool Jumper">
<meta property="og:price:amount" content="59.00">
<meta name="twitter:card" content="summary">
<meta name="description" content="A very warm jumper">
</head><body></body></html>`

const dataAttrPage = `<html><body>
<div class="card" data-name="Desk Lamp" data-price="24.50" data-sku="DL-1"></div>
</body></html>`

const bareBlogPage = `<html><head><title>Blog</title></head><body><p>hello</p></body></html>`

func TestResolveJSONLDWins(t *testing.T) {
	client := &stubClient{content: `{"products": [{"name": "Air Max", "price": "129.99"}]}`}
	r := New(client, "m", nil)

	got, err := r.Resolve(context.Background(), &fetch.Page{HTML: jsonLDPage}, productSchema(), "get products")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	items, _ := got["products"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %#v, want one", got)
	}
	if client.calls != 1 {
		t.Errorf("model calls = %d, want 1", client.calls)
	}
}

func TestResolveMetaTagsSecond(t *testing.T) {
	// No model: deterministic name matching maps og_title -> nothing
	// (no "title" field), og_price_amount has suffix... map by name.
	r := New(nil, "", nil)

	got, err := r.Resolve(context.Background(), &fetch.Page{HTML: metaOnlyPage}, productSchema(), "get products")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	items, _ := got["products"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %#v, want one mapped item", got)
	}
	item, _ := items[0].(map[string]any)
	if item["description"] != "A very warm jumper" {
		t.Errorf("description = %v, want meta description", item["description"])
	}
}

func TestResolveDataAttributesLast(t *testing.T) {
	r := New(nil, "", nil)

	got, err := r.Resolve(context.Background(), &fetch.Page{HTML: dataAttrPage}, productSchema(), "get products")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	items, _ := got["products"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %#v, want one mapped item", got)
	}
	item, _ := items[0].(map[string]any)
	if item["name"] != "Desk Lamp" {
		t.Errorf("name = %v, want Desk Lamp", item["name"])
	}
	if item["price"] != "24.50" {
		t.Errorf("price = %v, want 24.50", item["price"])
	}
}

func TestResolveNothingFound(t *testing.T) {
	client := &stubClient{content: `{"products": [{"name": "ghost"}]}`}
	r := New(client, "m", nil)

	got, err := r.Resolve(context.Background(), &fetch.Page{HTML: bareBlogPage}, productSchema(), "get products")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !extract.IsEmptyContainer(got, productSchema()) {
		t.Errorf("got %#v, want empty container", got)
	}
	if client.calls != 0 {
		t.Errorf("model calls = %d, want 0 when no source found", client.calls)
	}
}

func TestResolveModelFailureFallsBackToNameMatch(t *testing.T) {
	client := &stubClient{err: errors.New("model down")}
	r := New(client, "m", nil)

	got, err := r.Resolve(context.Background(), &fetch.Page{HTML: dataAttrPage}, productSchema(), "get products")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	items, _ := got["products"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %#v, want deterministic mapping despite model failure", got)
	}
}

func TestReshapeByName(t *testing.T) {
	s := productSchema()

	tests := []struct {
		name      string
		raw       map[string]any
		wantEmpty bool
		wantName  any
	}{
		{"exact keys", map[string]any{"name": "X", "price": "1"}, false, "X"},
		{"prefixed keys", map[string]any{"og_name": "Y", "product_price": "2"}, false, "Y"},
		{"nothing mappable", map[string]any{"breadcrumbs": "a > b"}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reshapeByName(tt.raw, s)
			if extract.IsEmptyContainer(got, s) != tt.wantEmpty {
				t.Fatalf("got %#v, wantEmpty=%v", got, tt.wantEmpty)
			}
			if tt.wantEmpty {
				return
			}
			items := got["products"].([]any)
			item := items[0].(map[string]any)
			if item["name"] != tt.wantName {
				t.Errorf("name = %v, want %v", item["name"], tt.wantName)
			}
		})
	}
}

func TestExtractJSONLDPrefersTaxonomy(t *testing.T) {
	page := `<html><head>
<script type="application/ld+json">{"@type": "BreadcrumbList", "itemListElement": []}</script>
<script type="application/ld+json">{"@type": "Product", "name": "Boots"}</script>
</head></html>`

	client := &stubClient{content: `{"products": [{"name": "Boots"}]}`}
	r := New(client, "m", nil)

	got, err := r.Resolve(context.Background(), &fetch.Page{HTML: page}, productSchema(), "q")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	items, _ := got["products"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %#v, want one", got)
	}
}
