package extract

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// ArticleExtractor reads encyclopedia-style pages: a heading, a lead
// paragraph, an infobox of labelled rows and the body text.
//
// With no labels configured the whole infobox is returned as a nested record
// under "infobox"; with labels, each configured field is looked up by its
// aliases ("date" -> {"Date", "Signed"}) and stored at the top level.
type ArticleExtractor struct {
	cfg    config.ArticleConfig
	labels []string
	logger *slog.Logger
}

// NewArticleExtractor creates an article extractor.
func NewArticleExtractor(cfg config.ArticleConfig, logger *slog.Logger) *ArticleExtractor {
	labels := make([]string, 0, len(cfg.Labels))
	for k := range cfg.Labels {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return &ArticleExtractor{
		cfg:    cfg,
		labels: labels,
		logger: logger.With("component", "article_extractor"),
	}
}

// Extract implements Extractor.
func (e *ArticleExtractor) Extract(c *types.Content) types.Outcome {
	rec := types.NewRecord(c.ID)
	rec.Set("url", orAbsent(c.FinalURL))

	doc, err := c.Document()
	if err != nil {
		doc = nil
	}
	var root *goquery.Selection
	if doc != nil {
		root = doc.Selection
	}

	title := Text(root, e.cfg.TitleSelector, "text")
	if types.IsAbsent(title) {
		title = Title(doc)
	}
	rec.Set("title", title)

	body := firstMatch(root, e.cfg.ContentSelector)
	paragraphs := Paragraphs(body)
	if len(paragraphs) > 0 {
		rec.Set("description", paragraphs[0])
		rec.Set("text", strings.Join(paragraphs, "\n\n"))
	} else {
		rec.Set("description", types.Absent)
		rec.Set("text", types.Absent)
	}

	var infobox *goquery.Selection
	if root != nil && e.cfg.InfoboxSelector != "" {
		infobox = root.Find(e.cfg.InfoboxSelector).First()
	}
	if len(e.labels) == 0 {
		rec.Set("infobox", infoboxRecord(infobox))
	} else {
		for _, field := range e.labels {
			rec.Set(field, LabelledValue(infobox, e.cfg.Labels[field]))
		}
	}

	links := 0
	if body != nil {
		links = body.Find("a[href]").Length()
	}
	rec.Set("links", links)

	return types.Extracted(rec)
}

// firstMatch tries each comma-separated selector in priority order and
// returns the first that matches.
func firstMatch(root *goquery.Selection, selectors string) *goquery.Selection {
	if root == nil {
		return nil
	}
	for _, sel := range strings.Split(selectors, ",") {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if found := root.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// infoboxRecord turns every header/data row of an infobox into a nested record.
func infoboxRecord(box *goquery.Selection) any {
	if box == nil || box.Length() == 0 {
		return types.Absent
	}
	fields := make(map[string]any)
	box.Find("tr").Each(func(_ int, row *goquery.Selection) {
		header := Collapse(row.Find("th").First().Text())
		value := Collapse(row.Find("td").First().Text())
		if header != "" && value != "" {
			fields[header] = value
		}
	})
	if len(fields) == 0 {
		return types.Absent
	}
	return fields
}
