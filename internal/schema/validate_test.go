package schema

import (
	"errors"
	"reflect"
	"testing"
)

func postSchema() *Schema {
	return &Schema{
		Name:         "Post",
		ContainerKey: "posts",
		Fields: []Field{
			{Name: "title", Type: TypeString, Required: true},
			{Name: "points", Type: TypeInteger},
			{Name: "score", Type: TypeNumber},
			{Name: "pinned", Type: TypeBoolean},
		},
	}
}

func TestValidateCoercion(t *testing.T) {
	tests := []struct {
		name string
		item map[string]any
		want map[string]any
	}{
		{
			"clean item",
			map[string]any{"title": "A", "points": float64(42)},
			map[string]any{"title": "A", "points": float64(42)},
		},
		{
			"number to string",
			map[string]any{"title": float64(3)},
			map[string]any{"title": "3"},
		},
		{
			"string to integer",
			map[string]any{"title": "A", "points": " 42 "},
			map[string]any{"title": "A", "points": float64(42)},
		},
		{
			"string to number",
			map[string]any{"title": "A", "score": "4.5"},
			map[string]any{"title": "A", "score": 4.5},
		},
		{
			"string to boolean",
			map[string]any{"title": "A", "pinned": "yes"},
			map[string]any{"title": "A", "pinned": true},
		},
		{
			"unknown field dropped",
			map[string]any{"title": "A", "color": "red"},
			map[string]any{"title": "A"},
		},
		{
			"nil optional field omitted",
			map[string]any{"title": "A", "points": nil},
			map[string]any{"title": "A"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(map[string]any{"posts": []any{tt.item}}, postSchema())
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			items := got["posts"].([]any)
			if !reflect.DeepEqual(items[0], tt.want) {
				t.Errorf("item = %#v, want %#v", items[0], tt.want)
			}
		})
	}
}

func TestValidateDropsMalformedItems(t *testing.T) {
	candidate := map[string]any{"posts": []any{
		map[string]any{"title": "keep me", "points": float64(1)},
		map[string]any{"points": float64(2)},              // required title missing
		map[string]any{"title": "bad", "points": "many"},  // uncoercible integer
		map[string]any{"title": "frac", "points": 1.5},    // non-integral number
		"not an object",
		map[string]any{"title": "also keep", "pinned": true},
	}}

	got, err := Validate(candidate, postSchema())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	items := got["posts"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 survivors (got %#v)", len(items), items)
	}
}

func TestValidateFailsWhenContainerEmpties(t *testing.T) {
	candidate := map[string]any{"posts": []any{
		map[string]any{"points": float64(1)},
		map[string]any{"points": "nope"},
	}}

	_, err := Validate(candidate, postSchema())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	// One missing-required error plus one missing-required for the second
	// item (title checked before points).
	if len(verr.Fields) < 2 {
		t.Errorf("field errors = %+v, want one per dropped item", verr.Fields)
	}
	for _, fe := range verr.Fields {
		if fe.Path == "" || fe.Message == "" {
			t.Errorf("incomplete field error: %+v", fe)
		}
	}
}

func TestValidateEmptyContainer(t *testing.T) {
	_, err := Validate(map[string]any{"posts": []any{}}, postSchema())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Path != "posts" {
		t.Errorf("fields = %+v, want single container-empty error", verr.Fields)
	}
}

func TestValidateNested(t *testing.T) {
	s := &Schema{
		Name:         "Article",
		ContainerKey: "articles",
		Fields: []Field{
			{Name: "headline", Type: TypeString, Required: true},
			{Name: "author", Type: TypeObject, Fields: []Field{
				{Name: "name", Type: TypeString, Required: true},
			}},
			{Name: "comments", Type: TypeArray, Fields: []Field{
				{Name: "text", Type: TypeString, Required: true},
			}},
			{Name: "tags", Type: TypeArray},
		},
	}

	candidate := map[string]any{"articles": []any{map[string]any{
		"headline": "News",
		"author":   map[string]any{"name": "Ada", "extra": "drop"},
		"comments": []any{map[string]any{"text": "first", "junk": 1}},
		"tags":     []any{"go", "web"},
	}}}

	got, err := Validate(candidate, s)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	item := got["articles"].([]any)[0].(map[string]any)
	author := item["author"].(map[string]any)
	if _, ok := author["extra"]; ok {
		t.Error("unknown nested field not dropped")
	}
	comments := item["comments"].([]any)
	if c := comments[0].(map[string]any); c["text"] != "first" {
		t.Errorf("comment = %#v", c)
	}
	if _, ok := comments[0].(map[string]any)["junk"]; ok {
		t.Error("unknown array element field not dropped")
	}
	tags := item["tags"].([]any)
	if len(tags) != 2 {
		t.Errorf("tags = %v, want passthrough primitive array", tags)
	}
}

func TestValidateIdempotent(t *testing.T) {
	candidate := map[string]any{"posts": []any{
		map[string]any{"title": float64(1), "points": "5", "pinned": "no", "junk": true},
		map[string]any{"title": "B"},
	}}

	first, err := Validate(candidate, postSchema())
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := Validate(first, postSchema())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("not idempotent:\nfirst  %#v\nsecond %#v", first, second)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Fields: []FieldError{
		{Path: "posts[0].title", Message: "required field missing"},
		{Path: "posts[1].points", Message: `cannot coerce "x" to integer`},
	}}
	msg := err.Error()
	if msg == "" || msg == "validation failed" {
		t.Errorf("message = %q, want field details", msg)
	}
}
