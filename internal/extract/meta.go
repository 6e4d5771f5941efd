package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/gleaner/internal/types"
)

// JSONLD returns every object found in <script type="application/ld+json">
// blocks. Blocks that fail to parse are skipped.
func JSONLD(doc *goquery.Document) []map[string]any {
	if doc == nil {
		return nil
	}
	var results []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err == nil {
			results = append(results, obj)
			return
		}

		var arr []map[string]any
		if err := json.Unmarshal([]byte(raw), &arr); err == nil {
			results = append(results, arr...)
		}
	})
	return results
}

// Meta resolves a metadata name. It checks, in order, <meta property=name>,
// <meta name=name>, the same with an "og:" or "twitter:" prefix, and finally a
// dotted path into the page's JSON-LD objects.
func Meta(doc *goquery.Document, name string) any {
	if doc == nil || name == "" {
		return types.Absent
	}

	candidates := []string{name}
	if !strings.Contains(name, ":") {
		candidates = append(candidates, "og:"+name, "twitter:"+name)
	}
	for _, n := range candidates {
		for _, sel := range []string{`meta[property="` + n + `"]`, `meta[name="` + n + `"]`} {
			if v, ok := doc.Find(sel).First().Attr("content"); ok {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
	}

	for _, obj := range JSONLD(doc) {
		if v := Lookup(obj, name); !types.IsAbsent(v) {
			return v
		}
	}
	return types.Absent
}

// Title returns the page's best title: og:title, then <title>.
func Title(doc *goquery.Document) any {
	if v := Meta(doc, "og:title"); !types.IsAbsent(v) {
		return v
	}
	if doc == nil {
		return types.Absent
	}
	return orAbsent(Collapse(doc.Find("title").First().Text()))
}
