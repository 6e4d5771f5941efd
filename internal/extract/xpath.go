package extract

import (
	"bytes"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/gleaner/internal/types"
)

// ParseHTML parses body into a node tree for XPath queries.
func ParseHTML(body []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(body))
}

// XPathValues evaluates expr against doc and returns the non-empty values of
// the matched nodes.
func XPathValues(doc *html.Node, expr, attr string) ([]string, error) {
	if doc == nil {
		return nil, nil
	}
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, err
	}

	var values []string
	for _, node := range nodes {
		var val string
		switch attr {
		case "", "text":
			val = Collapse(htmlquery.InnerText(node))
		case "html", "innerHTML":
			val = strings.TrimSpace(htmlquery.OutputHTML(node, false))
		case "outerHTML":
			val = strings.TrimSpace(htmlquery.OutputHTML(node, true))
		default:
			val = strings.TrimSpace(htmlquery.SelectAttr(node, attr))
		}
		if val != "" {
			values = append(values, val)
		}
	}
	return values, nil
}

// XPathText returns the first value matched by expr, or Absent. An invalid
// expression is treated like a missing node.
func XPathText(doc *html.Node, expr, attr string) any {
	values, err := XPathValues(doc, expr, attr)
	if err != nil {
		return types.Absent
	}
	return pick(values, false)
}
