package pipeline

import (
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/gleaner/internal/types"
)

// --- Text Middleware ---

// HTMLSanitizeMiddleware strips HTML tags from string fields.
type HTMLSanitizeMiddleware struct {
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		stripRe: regexp.MustCompile(`<[^>]*>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(rec *types.Record) (*types.Record, error) {
	mapStrings(rec, func(s string) string {
		if !strings.ContainsAny(s, "<&") {
			return s
		}
		cleaned := m.stripRe.ReplaceAllString(s, " ")
		cleaned = html.UnescapeString(cleaned)
		return strings.Join(strings.Fields(cleaned), " ")
	})
	return rec, nil
}

// CollapseMiddleware squeezes runs of blanks to one space and runs of blank
// lines to a single paragraph break.
type CollapseMiddleware struct {
	blankRe *regexp.Regexp
	breakRe *regexp.Regexp
}

func NewCollapseMiddleware() *CollapseMiddleware {
	return &CollapseMiddleware{
		blankRe: regexp.MustCompile(`[ \t\f\v\r\x{00a0}]+`),
		breakRe: regexp.MustCompile(`\n(?: ?\n)+`),
	}
}

func (m *CollapseMiddleware) Name() string { return "collapse" }

func (m *CollapseMiddleware) Process(rec *types.Record) (*types.Record, error) {
	mapStrings(rec, func(s string) string {
		s = m.blankRe.ReplaceAllString(s, " ")
		s = strings.ReplaceAll(s, " \n", "\n")
		s = strings.ReplaceAll(s, "\n ", "\n")
		return m.breakRe.ReplaceAllString(s, "\n\n")
	})
	return rec, nil
}

// --- Normalisation Middleware ---

// DateNormalizeMiddleware normalizes date fields to a standard format.
// Values that match no known layout are left unchanged.
type DateNormalizeMiddleware struct {
	fields    []string
	outFormat string
	inFormats []string
}

func NewDateNormalizeMiddleware(fields []string, outFormat string) *DateNormalizeMiddleware {
	if outFormat == "" {
		outFormat = "2006-01-02"
	}
	return &DateNormalizeMiddleware{
		fields:    fields,
		outFormat: outFormat,
		inFormats: []string{
			time.RFC3339,
			time.RFC1123,
			time.RFC1123Z,
			time.RFC822,
			time.RFC822Z,
			"2006-01-02",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
			"01/02/2006",
			"January 2, 2006",
			"Jan 2, 2006",
			"2 January 2006",
			"2 Jan 2006",
			"January 2006",
			"Mon, 02 Jan 2006",
			"02-Jan-2006",
			"2006/01/02",
			"Mon Jan 2 15:04:05 2006",
		},
	}
}

func (m *DateNormalizeMiddleware) Name() string { return "date_normalize" }

func (m *DateNormalizeMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, field := range m.fields {
		s := strings.TrimSpace(rec.GetString(field))
		if s == "" {
			continue
		}
		for _, format := range m.inFormats {
			if t, err := time.Parse(format, s); err == nil {
				rec.Set(field, t.Format(m.outFormat))
				break
			}
		}
	}
	return rec, nil
}

// CurrencyNormalizeMiddleware reduces currency strings to a plain decimal.
type CurrencyNormalizeMiddleware struct {
	fields  []string
	stripRe *regexp.Regexp
}

func NewCurrencyNormalizeMiddleware(fields []string) *CurrencyNormalizeMiddleware {
	return &CurrencyNormalizeMiddleware{
		fields:  fields,
		stripRe: regexp.MustCompile(`[^0-9.,\-]`),
	}
}

func (m *CurrencyNormalizeMiddleware) Name() string { return "currency_normalize" }

func (m *CurrencyNormalizeMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, field := range m.fields {
		s := rec.GetString(field)
		if s == "" {
			continue
		}

		numeric := m.stripRe.ReplaceAllString(s, "")
		if numeric == "" {
			continue
		}

		// 1.234,56 and 1,234.56 both become 1234.56
		if strings.Contains(numeric, ",") {
			lastComma := strings.LastIndex(numeric, ",")
			lastDot := strings.LastIndex(numeric, ".")
			if lastComma > lastDot {
				numeric = strings.ReplaceAll(numeric, ".", "")
				numeric = strings.Replace(numeric, ",", ".", 1)
			} else {
				numeric = strings.ReplaceAll(numeric, ",", "")
			}
		}

		rec.Set(field, numeric)
	}
	return rec, nil
}

// TypeCoercionMiddleware converts field values to target types. Values that
// do not parse are left as they are.
type TypeCoercionMiddleware struct {
	coercions map[string]string // field -> "int", "float", "bool", "string"
}

func NewTypeCoercionMiddleware(coercions map[string]string) *TypeCoercionMiddleware {
	return &TypeCoercionMiddleware{coercions: coercions}
}

func (m *TypeCoercionMiddleware) Name() string { return "type_coercion" }

func (m *TypeCoercionMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for field, targetType := range m.coercions {
		val, ok := rec.Get(field)
		if !ok || types.IsAbsent(val) {
			continue
		}

		s := strings.TrimSpace(fmt.Sprintf("%v", val))

		switch targetType {
		case "int":
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				rec.Set(field, i)
			} else if f, err := strconv.ParseFloat(s, 64); err == nil {
				rec.Set(field, int64(f))
			}
		case "float":
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				rec.Set(field, f)
			}
		case "bool":
			switch strings.ToLower(s) {
			case "true", "1", "yes", "y":
				rec.Set(field, true)
			case "false", "0", "no", "n":
				rec.Set(field, false)
			}
		case "string":
			rec.Set(field, s)
		}
	}
	return rec, nil
}

// --- Privacy & Validation Middleware ---

type piiPattern struct {
	kind string
	re   *regexp.Regexp
}

// PIIRedactMiddleware detects and redacts personally identifiable information.
// Patterns are applied in a fixed order so output is reproducible.
type PIIRedactMiddleware struct {
	patterns []piiPattern
	logger   *slog.Logger
}

func NewPIIRedactMiddleware(logger *slog.Logger) *PIIRedactMiddleware {
	return &PIIRedactMiddleware{
		patterns: []piiPattern{
			{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
			{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
			{"credit_card", regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
			{"phone_intl", regexp.MustCompile(`\+\d{1,3}[-.\s]?\(?\d{1,4}\)?[-.\s]?\d{1,4}[-.\s]?\d{1,9}`)},
			{"phone_us", regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)},
			{"ip_v4", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
		},
		logger: logger.With("component", "pii_redact"),
	}
}

func (m *PIIRedactMiddleware) Name() string { return "pii_redact" }

func (m *PIIRedactMiddleware) Process(rec *types.Record) (*types.Record, error) {
	mapStrings(rec, func(s string) string {
		for _, p := range m.patterns {
			if p.re.MatchString(s) {
				s = p.re.ReplaceAllString(s, "[REDACTED_"+strings.ToUpper(p.kind)+"]")
				m.logger.Debug("PII redacted", "id", rec.ID, "type", p.kind)
			}
		}
		return s
	})
	return rec, nil
}

// FieldValidateMiddleware checks field values against regex patterns. A value
// that does not match is replaced by Absent.
type FieldValidateMiddleware struct {
	fields      []string
	validations map[string]*regexp.Regexp
}

func NewFieldValidateMiddleware(patterns map[string]string) (*FieldValidateMiddleware, error) {
	m := &FieldValidateMiddleware{validations: make(map[string]*regexp.Regexp, len(patterns))}
	for field, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid validation regex for %q: %w", field, err)
		}
		m.validations[field] = re
		m.fields = append(m.fields, field)
	}
	sort.Strings(m.fields)
	return m, nil
}

func (m *FieldValidateMiddleware) Name() string { return "field_validate" }

func (m *FieldValidateMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, field := range m.fields {
		val, ok := rec.Get(field)
		if !ok || types.IsAbsent(val) {
			continue
		}
		if !m.validations[field].MatchString(fmt.Sprintf("%v", val)) {
			rec.Set(field, types.Absent)
		}
	}
	return rec, nil
}

// WordCountMiddleware adds a word count field for specified text fields.
type WordCountMiddleware struct {
	fields []string
	suffix string
}

func NewWordCountMiddleware(fields []string) *WordCountMiddleware {
	return &WordCountMiddleware{
		fields: fields,
		suffix: "_word_count",
	}
}

func (m *WordCountMiddleware) Name() string { return "word_count" }

func (m *WordCountMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, field := range m.fields {
		s := rec.GetString(field)
		if s == "" {
			continue
		}
		rec.Set(field+m.suffix, len(strings.Fields(s)))
	}
	return rec, nil
}
