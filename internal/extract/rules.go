package extract

import (
	"bytes"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// RuleExtractor applies config-declared rules to a page. Every rule produces a
// field; rules that match nothing produce Absent.
type RuleExtractor struct {
	rules       []config.ParseRule
	readability bool
	regex       *regexCache
	logger      *slog.Logger
}

// NewRuleExtractor validates the rule patterns up front.
func NewRuleExtractor(rules []config.ParseRule, useReadability bool, logger *slog.Logger) (*RuleExtractor, error) {
	e := &RuleExtractor{
		rules:       rules,
		readability: useReadability,
		regex:       newRegexCache(),
		logger:      logger.With("component", "rule_extractor"),
	}
	for _, r := range rules {
		if r.Type == "regex" {
			if _, err := e.regex.get(r.Pattern); err != nil {
				return nil, &types.ConfigError{Field: "extract.rules." + r.Name, Err: err}
			}
		}
	}
	return e, nil
}

// page lazily parses the content in the shapes the rules need.
type page struct {
	content *types.Content

	doc     *goquery.Document
	docDone bool

	node     *html.Node
	nodeDone bool

	json     any
	jsonErr  error
	jsonDone bool
}

func (p *page) document() *goquery.Document {
	if !p.docDone {
		p.docDone = true
		if doc, err := p.content.Document(); err == nil {
			p.doc = doc
		}
	}
	return p.doc
}

func (p *page) tree() *html.Node {
	if !p.nodeDone {
		p.nodeDone = true
		if n, err := ParseHTML(p.content.Body); err == nil {
			p.node = n
		}
	}
	return p.node
}

func (p *page) decoded() (any, error) {
	if !p.jsonDone {
		p.jsonDone = true
		p.json, p.jsonErr = DecodeJSON(p.content.Body)
	}
	return p.json, p.jsonErr
}

// Extract implements Extractor.
func (e *RuleExtractor) Extract(c *types.Content) types.Outcome {
	rec := types.NewRecord(c.ID)
	rec.Set("url", orAbsent(c.FinalURL))
	p := &page{content: c}

	for _, rule := range e.rules {
		rec.Set(rule.Name, e.apply(p, rule))
	}

	if e.readability {
		title, text := MainText(c)
		if _, ok := rec.Get("title"); !ok {
			if title == "" {
				rec.Set("title", Title(p.document()))
			} else {
				rec.Set("title", title)
			}
		}
		if _, ok := rec.Get("text"); !ok {
			rec.Set("text", orAbsent(text))
		}
	}

	return types.Extracted(rec)
}

func (e *RuleExtractor) apply(p *page, rule config.ParseRule) any {
	switch rule.Type {
	case "css":
		doc := p.document()
		if doc == nil {
			return types.Absent
		}
		var values []string
		doc.Find(rule.Selector).Each(func(_ int, sel *goquery.Selection) {
			if v := selectionValue(sel, rule.Attribute); v != "" {
				values = append(values, v)
			}
		})
		return pick(values, rule.All)

	case "xpath":
		values, err := XPathValues(p.tree(), rule.Selector, rule.Attribute)
		if err != nil {
			e.logger.Warn("invalid xpath", "rule", rule.Name, "selector", rule.Selector, "error", err)
			return types.Absent
		}
		return pick(values, rule.All)

	case "regex":
		re, err := e.regex.get(rule.Pattern)
		if err != nil {
			return types.Absent
		}
		return pick(RegexValues(re, string(p.content.Body)), rule.All)

	case "json":
		v, err := p.decoded()
		if err != nil {
			return types.Absent
		}
		return Lookup(v, rule.Path)

	case "meta":
		return Meta(p.document(), rule.Selector)
	}
	return types.Absent
}

// MainText runs readability over an HTML page and returns its title and the
// flattened text of the main content. When readability finds nothing the
// page's paragraphs are used instead.
func MainText(c *types.Content) (title, text string) {
	base := c.BaseURL()
	if base == nil {
		base = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(c.Body), base)
	if err == nil {
		title = Collapse(article.Title)
		if article.Content != "" {
			if doc, err := goquery.NewDocumentFromReader(strings.NewReader(spaceBlocks(article.Content))); err == nil {
				text = Collapse(doc.Text())
			}
		}
	}
	if text == "" {
		if doc, err := c.Document(); err == nil {
			text = strings.Join(Paragraphs(doc.Selection), "\n\n")
		}
	}
	return title, text
}

var blockTags = []string{"p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "td", "th", "br"}

// spaceBlocks pads block-level tags so their text does not run together once
// the markup is dropped.
func spaceBlocks(s string) string {
	for _, tag := range blockTags {
		s = strings.ReplaceAll(s, "</"+tag+">", "</"+tag+"> ")
		s = strings.ReplaceAll(s, "<"+tag+">", " <"+tag+">")
	}
	return s
}
