package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/gleaner/internal/types"
)

var spaceRe = regexp.MustCompile(`\s+`)

// Collapse trims s and folds runs of whitespace into single spaces.
func Collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// orAbsent returns s, or Absent when s is empty.
func orAbsent(s string) any {
	if s == "" {
		return types.Absent
	}
	return s
}

// selectionValue reads text, HTML or an attribute from sel.
func selectionValue(sel *goquery.Selection, attr string) string {
	switch attr {
	case "", "text":
		return Collapse(sel.Text())
	case "html", "innerHTML":
		h, _ := sel.Html()
		return strings.TrimSpace(h)
	case "outerHTML":
		h, _ := goquery.OuterHtml(sel)
		return strings.TrimSpace(h)
	default:
		v, _ := sel.Attr(attr)
		return strings.TrimSpace(v)
	}
}

// Text returns the first non-empty value under scope matching selector.
func Text(scope *goquery.Selection, selector, attr string) any {
	if scope == nil {
		return types.Absent
	}
	var out string
	scope.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		out = selectionValue(sel, attr)
		return out == ""
	})
	return orAbsent(out)
}

// Texts returns every non-empty value matching selector as a list.
func Texts(scope *goquery.Selection, selector, attr string) any {
	if scope == nil {
		return types.Absent
	}
	var values []any
	scope.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if v := selectionValue(sel, attr); v != "" {
			values = append(values, v)
		}
	})
	if len(values) == 0 {
		return types.Absent
	}
	return values
}

// LabelledValue scans table rows under scope for a header cell matching one
// of labels and returns the text of the row's data cell. Rows with list
// content yield a list. This is the infobox shape: <tr><th>Date</th><td>..</td></tr>.
func LabelledValue(scope *goquery.Selection, labels []string) any {
	if scope == nil || scope.Length() == 0 {
		return types.Absent
	}
	var out any = types.Absent
	scope.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		header := Collapse(row.Find("th").First().Text())
		if header == "" || !matchesLabel(header, labels) {
			return true
		}
		cell := row.Find("td").First()
		if cell.Length() == 0 {
			return true
		}
		if items := cell.Find("li"); items.Length() > 1 {
			var values []any
			items.Each(func(_ int, li *goquery.Selection) {
				if v := Collapse(li.Text()); v != "" {
					values = append(values, v)
				}
			})
			if len(values) > 0 {
				out = values
				return false
			}
		}
		if v := Collapse(cell.Text()); v != "" {
			out = v
			return false
		}
		return true
	})
	return out
}

func matchesLabel(header string, labels []string) bool {
	h := strings.ToLower(header)
	for _, l := range labels {
		if l != "" && strings.Contains(h, strings.ToLower(l)) {
			return true
		}
	}
	return false
}

// Table parses the first table matching selector into rows of cell text.
func Table(scope *goquery.Selection, selector string) [][]string {
	if scope == nil {
		return nil
	}
	var table [][]string
	scope.Find(selector).First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, Collapse(cell.Text()))
		})
		if len(cells) > 0 {
			table = append(table, cells)
		}
	})
	return table
}

// Paragraphs returns the collapsed text of every non-empty <p> under scope,
// skipping paragraphs nested in tables (infoboxes, navboxes).
func Paragraphs(scope *goquery.Selection) []string {
	if scope == nil {
		return nil
	}
	var out []string
	scope.Find("p").Each(func(_ int, p *goquery.Selection) {
		if p.Closest("table").Length() > 0 {
			return
		}
		if t := Collapse(p.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// Attr returns the named attribute of the first element matching selector.
func Attr(scope *goquery.Selection, selector, attr string) any {
	if attr == "" {
		return Text(scope, selector, "text")
	}
	return Text(scope, selector, attr)
}

// pick turns matched values into a field value: Absent when nothing matched,
// the first match, or every match as a list when all is set.
func pick(values []string, all bool) any {
	if len(values) == 0 {
		return types.Absent
	}
	if !all {
		return values[0]
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
