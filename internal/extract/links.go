package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Links returns the absolute http(s) links found under selector, resolved
// against base, with fragments removed, de-duplicated in document order.
func Links(doc *goquery.Document, selector string, base *url.URL) []string {
	if doc == nil {
		return nil
	}
	if selector == "" {
		selector = "a[href]"
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		// The selector may point at a container rather than the anchors.
		anchors := sel
		if goquery.NodeName(sel) != "a" {
			anchors = sel.Find("a[href]")
		}
		anchors.Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok {
				return
			}
			if abs := resolveLink(base, href); abs != "" && !seen[abs] {
				seen[abs] = true
				links = append(links, abs)
			}
		})
	})

	return links
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") {
		return ""
	}

	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := parsed
	if base != nil {
		resolved = base.ResolveReference(parsed)
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}
