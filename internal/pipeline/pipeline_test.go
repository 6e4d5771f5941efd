package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestPipelineBasic(t *testing.T) {
	p := NewPipeline(testLogger)
	p.Use(&TrimMiddleware{})

	rec := types.NewRecord("https://example.com")
	rec.Set("title", "  Hello World  ")
	rec.Set("extra", map[string]any{"note": " spaces "})
	rec.Set("missing", types.Absent)

	result, err := p.Process(rec)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result.GetString("title") != "Hello World" {
		t.Errorf("expected trimmed title, got %q", result.GetString("title"))
	}
	extra, _ := result.Get("extra")
	if extra.(map[string]any)["note"] != "spaces" {
		t.Errorf("expected nested value trimmed, got %v", extra)
	}
	if v, _ := result.Get("missing"); !types.IsAbsent(v) {
		t.Errorf("absent value should be preserved, got %v", v)
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "failing" }
func (failingMiddleware) Process(*types.Record) (*types.Record, error) {
	return nil, errors.New("boom")
}

type dropMiddleware struct{}

func (dropMiddleware) Name() string { return "drop" }
func (dropMiddleware) Process(*types.Record) (*types.Record, error) { return nil, nil }

func TestPipelineErrorAndDrop(t *testing.T) {
	p := NewPipeline(testLogger)
	p.Use(failingMiddleware{})

	_, err := p.Process(types.NewRecord("rec-1"))
	var pe *types.PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PipelineError, got %v", err)
	}
	if pe.Stage != "failing" || pe.ID != "rec-1" {
		t.Errorf("unexpected error fields: %+v", pe)
	}

	p = NewPipeline(testLogger)
	p.Use(dropMiddleware{})
	p.Use(&TrimMiddleware{})
	rec := types.NewRecord("rec-2")
	rec.Set("title", " kept ")
	result, err := p.Process(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Relevant {
		t.Error("dropped record should be marked not relevant")
	}
	if result.Reason != "rejected by drop" {
		t.Errorf("unexpected reason %q", result.Reason)
	}
	if result.GetString("title") != "kept" {
		t.Error("later stages should still run on a rejected record")
	}
}

func TestNewFromConfig(t *testing.T) {
	pc := config.PipelineConfig{
		Trim:      true,
		Collapse:  true,
		Required:  []string{"title"},
		WordCount: []string{"body"},
		Keep:      []string{"title", "body", "body_word_count"},
		Rename:    map[string]string{"heading": "title"},
	}
	p, err := New(pc, testLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := []string{"trim", "collapse", "field_rename", "required_fields", "word_count", "field_filter"}
	if !reflect.DeepEqual(p.Names(), want) {
		t.Fatalf("chain = %v, want %v", p.Names(), want)
	}

	rec := types.NewRecord("https://example.com/a")
	rec.Set("heading", "  The   Title ")
	rec.Set("body", "one  two\n\n\n\nthree")
	rec.Set("noise", "x")

	result, err := p.Process(rec)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.Relevant {
		t.Fatalf("record should stay relevant, reason %q", result.Reason)
	}
	if got := result.GetString("title"); got != "The Title" {
		t.Errorf("title = %q", got)
	}
	if got := result.GetString("body"); got != "one two\n\nthree" {
		t.Errorf("body = %q", got)
	}
	if wc, _ := result.Get("body_word_count"); wc != 3 {
		t.Errorf("word count = %v", wc)
	}
	if result.Has("noise") || result.Has("heading") {
		t.Errorf("unexpected fields kept: %v", result.Keys())
	}

	_, err = New(config.PipelineConfig{Validate: map[string]string{"year": "("}}, testLogger)
	var ce *types.ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("expected ConfigError for bad pattern, got %v", err)
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	m := &RequiredFieldsMiddleware{Fields: []string{"title"}}

	rec1 := types.NewRecord("https://example.com")
	rec1.Set("title", "Hello")
	result, err := m.Process(rec1)
	if err != nil || !result.Relevant {
		t.Error("record with required field should stay relevant")
	}

	tests := []any{nil, types.Absent, "   "}
	for _, v := range tests {
		rec := types.NewRecord("https://example.com")
		if v != nil {
			rec.Set("title", v)
		}
		result, _ := m.Process(rec)
		if result.Relevant {
			t.Errorf("title=%v: record should be rejected", v)
		}
		if result.Reason != "missing required field title" {
			t.Errorf("title=%v: unexpected reason %q", v, result.Reason)
		}
	}
}

func TestHTMLSanitizeMiddleware(t *testing.T) {
	m := NewHTMLSanitizeMiddleware()
	rec := types.NewRecord("https://example.com")
	rec.Set("content", `<p>Hello <b>World</b></p> &amp; <a href="x">link</a>`)

	result, err := m.Process(rec)
	if err != nil {
		t.Fatalf("error: %v", err)
	}

	cleaned := result.GetString("content")
	if cleaned != "Hello World & link" {
		t.Errorf("expected 'Hello World & link', got %q", cleaned)
	}
}

func TestDateNormalizeMiddleware(t *testing.T) {
	m := NewDateNormalizeMiddleware([]string{"date"}, "2006-01-02")

	tests := []struct {
		input    string
		expected string
	}{
		{"January 15, 2024", "2024-01-15"},
		{"2024-01-15", "2024-01-15"},
		{"Jan 15, 2024", "2024-01-15"},
		{"24 October 1648", "1648-10-24"},
		{"sometime in spring", "sometime in spring"},
	}

	for _, tt := range tests {
		rec := types.NewRecord("https://example.com")
		rec.Set("date", tt.input)

		result, _ := m.Process(rec)
		got := result.GetString("date")
		if got != tt.expected {
			t.Errorf("date %q: expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestCurrencyNormalizeMiddleware(t *testing.T) {
	m := NewCurrencyNormalizeMiddleware([]string{"price"})

	tests := []struct {
		input    string
		expected string
	}{
		{"$1,234.56", "1234.56"},
		{"€1.234,56", "1234.56"},
		{"£99.99", "99.99"},
		{"¥10000", "10000"},
	}

	for _, tt := range tests {
		rec := types.NewRecord("https://example.com")
		rec.Set("price", tt.input)

		result, _ := m.Process(rec)
		got := result.GetString("price")
		if got != tt.expected {
			t.Errorf("currency %q: expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestPIIRedactMiddleware(t *testing.T) {
	m := NewPIIRedactMiddleware(testLogger)

	rec := types.NewRecord("https://example.com")
	rec.Set("text", "Contact john@example.com or call 555-123-4567. SSN: 123-45-6789")

	result, err := m.Process(rec)
	if err != nil {
		t.Fatalf("error: %v", err)
	}

	text := result.GetString("text")
	if strings.Contains(text, "john@example.com") {
		t.Error("email should be redacted")
	}
	if strings.Contains(text, "123-45-6789") {
		t.Error("SSN should be redacted")
	}
	for _, placeholder := range []string{"[REDACTED_EMAIL]", "[REDACTED_SSN]", "[REDACTED_PHONE_US]"} {
		if !strings.Contains(text, placeholder) {
			t.Errorf("expected %s placeholder in %q", placeholder, text)
		}
	}
}

func TestTypeCoercionMiddleware(t *testing.T) {
	m := NewTypeCoercionMiddleware(map[string]string{
		"count":  "int",
		"price":  "float",
		"active": "bool",
		"year":   "int",
	})

	rec := types.NewRecord("https://example.com")
	rec.Set("count", "42")
	rec.Set("price", "19.99")
	rec.Set("active", "true")
	rec.Set("year", "unknown")

	result, _ := m.Process(rec)

	if v, _ := result.Get("count"); v != int64(42) {
		t.Errorf("expected int64(42), got %v (%T)", v, v)
	}
	if v, _ := result.Get("price"); v != float64(19.99) {
		t.Errorf("expected float64(19.99), got %v", v)
	}
	if v, _ := result.Get("active"); v != true {
		t.Errorf("expected true, got %v", v)
	}
	if v, _ := result.Get("year"); v != "unknown" {
		t.Errorf("unparseable value should be kept, got %v", v)
	}
}

func TestFieldValidateAndDefaults(t *testing.T) {
	v, err := NewFieldValidateMiddleware(map[string]string{"year": `^\d{4}$`})
	if err != nil {
		t.Fatal(err)
	}
	d := &DefaultValueMiddleware{Defaults: map[string]any{"year": "unknown"}}

	rec := types.NewRecord("treaty")
	rec.Set("year", "circa 1648")
	result, _ := v.Process(rec)
	if val, _ := result.Get("year"); !types.IsAbsent(val) {
		t.Errorf("invalid value should become absent, got %v", val)
	}

	result, _ = d.Process(result)
	if got := result.GetString("year"); got != "unknown" {
		t.Errorf("default should fill absent field, got %q", got)
	}
}

func TestWordCountMiddleware(t *testing.T) {
	m := NewWordCountMiddleware([]string{"body"})

	rec := types.NewRecord("https://example.com")
	rec.Set("body", "The quick brown fox jumps over the lazy dog")

	result, _ := m.Process(rec)

	wc, ok := result.Get("body_word_count")
	if !ok {
		t.Fatal("expected body_word_count field")
	}
	if wc != 9 {
		t.Errorf("expected 9 words, got %v", wc)
	}
}

// --- Benchmarks ---

func BenchmarkPipeline(b *testing.B) {
	p := NewPipeline(testLogger)
	p.Use(&TrimMiddleware{})
	p.Use(NewHTMLSanitizeMiddleware())
	p.Use(NewDateNormalizeMiddleware([]string{"date"}, "2006-01-02"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := types.NewRecord("https://example.com")
		rec.Set("title", "  Hello <b>World</b>  ")
		rec.Set("body", "  <p>Content</p>  ")
		rec.Set("date", "January 15, 2024")
		p.Process(rec)
	}
}
