package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/extract"
	"github.com/IshaanNene/gleaner/internal/types"
)

// Expander discovers child identifiers on fetched content.
type Expander interface {
	Expand(c *types.Content) ([]string, error)
}

// HTMLLinkExpander follows a[href] links under Selector, resolved against the
// page URL.
type HTMLLinkExpander struct {
	Selector string
}

// Expand returns the links found on an HTML page.
func (x HTMLLinkExpander) Expand(c *types.Content) ([]string, error) {
	doc, err := c.Document()
	if err != nil {
		return nil, err
	}
	return extract.Links(doc, x.Selector, c.BaseURL()), nil
}

// JSONLinkExpander reads identifiers from a JSON listing: Path selects the
// values ("results[*].id") and Template, when set, turns each value into an
// identifier ("{id}" is replaced).
type JSONLinkExpander struct {
	Path     string
	Template string
}

// Expand returns the identifiers listed in a JSON document.
func (x JSONLinkExpander) Expand(c *types.Content) ([]string, error) {
	v, err := extract.DecodeJSON(c.Body)
	if err != nil {
		return nil, err
	}
	found := extract.Lookup(v, x.Path)
	if types.IsAbsent(found) {
		return nil, nil
	}

	values, ok := found.([]any)
	if !ok {
		values = []any{found}
	}
	ids := make([]string, 0, len(values))
	for _, val := range values {
		s := extract.Stringify(val)
		if s == "" {
			continue
		}
		if x.Template != "" {
			s = strings.ReplaceAll(x.Template, "{id}", s)
		}
		ids = append(ids, s)
	}
	return ids, nil
}

// ListingStore remembers the links found on expanded identifiers.
// progress.Store satisfies it.
type ListingStore interface {
	Get(id string) (types.ProgressEntry, bool)
	Record(ctx context.Context, entry types.ProgressEntry) error
}

// Enumerator turns seeds into the ordered, deduplicated list of work items,
// optionally expanding them breadth-first up to a bounded depth.
//
// With a ListingStore attached, an identifier expanded in an earlier run is
// expanded again from its stored children instead of being fetched.
type Enumerator struct {
	normalizer *Normalizer
	fetcher    Fetcher
	expander   Expander
	depth      int
	leavesOnly bool
	follow     []*regexp.Regexp
	ignore     []*regexp.Regexp
	logger     *slog.Logger

	listings ListingStore

	mu      sync.Mutex
	fetched map[string]types.FetchResult
}

// NewEnumerator builds an Enumerator from configuration. fetcher is only used
// when expansion is enabled.
func NewEnumerator(ec config.EnumerateConfig, fetcher Fetcher, logger *slog.Logger) (*Enumerator, error) {
	e := &Enumerator{
		normalizer: NewNormalizer(ec.StripParams),
		fetcher:    fetcher,
		depth:      min(max(ec.ExpandDepth, 0), config.MaxExpandDepth),
		leavesOnly: ec.LeavesOnly,
		logger:     logger.With("component", "enumerator"),
		fetched:    make(map[string]types.FetchResult),
	}

	switch ec.Expander {
	case "json":
		e.expander = JSONLinkExpander{Path: ec.LinkPath, Template: ec.LinkTemplate}
	default:
		e.expander = HTMLLinkExpander{Selector: ec.LinkSelector}
	}

	var err error
	if e.follow, err = compileAll(ec.LinkFollow); err != nil {
		return nil, &types.ConfigError{Field: "enumerate.link_follow", Err: err}
	}
	if e.ignore, err = compileAll(ec.LinkIgnore); err != nil {
		return nil, &types.ConfigError{Field: "enumerate.link_ignore", Err: err}
	}
	return e, nil
}

// Normalizer returns the identifier normalizer.
func (e *Enumerator) Normalizer() *Normalizer { return e.normalizer }

// SetListingStore attaches the store used to replay and record expansions.
func (e *Enumerator) SetListingStore(ls ListingStore) { e.listings = ls }

// Take returns, once, the fetch made while expanding id. Only parents that
// are also work items are kept.
func (e *Enumerator) Take(id string) (types.FetchResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, ok := e.fetched[id]
	if ok {
		delete(e.fetched, id)
	}
	return res, ok
}

// Enumerate returns the work items for seeds in first-seen order. Seeds that
// cannot be normalised are kept under their trimmed form and flagged Invalid.
func (e *Enumerator) Enumerate(ctx context.Context, seeds []string) ([]types.WorkItem, error) {
	seen := make(map[string]struct{})
	var level []types.WorkItem

	for _, raw := range seeds {
		item, ok := e.item(raw, 0, "", seen)
		if !ok {
			continue
		}
		level = append(level, item)
	}

	items := level
	for depth := 1; depth <= e.depth && len(level) > 0; depth++ {
		var next []types.WorkItem
		for _, parent := range level {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if parent.Invalid != nil {
				continue
			}
			links, err := e.expand(ctx, parent)
			if err != nil {
				return nil, err
			}
			for _, link := range links {
				if !e.allowLink(link) {
					continue
				}
				child, ok := e.item(link, depth, parent.ID, seen)
				if !ok || child.Invalid != nil {
					continue
				}
				next = append(next, child)
			}
		}
		e.logger.Info("expanded level", "depth", depth, "parents", len(level), "discovered", len(next))

		level = next
		if e.leavesOnly {
			items = level
		} else {
			items = append(items, level...)
		}
	}

	for i := range items {
		items[i].Order = i
	}
	return items, nil
}

// item normalises raw and registers it in seen. It reports false for blank
// input and duplicates.
func (e *Enumerator) item(raw string, depth int, parent string, seen map[string]struct{}) (types.WorkItem, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return types.WorkItem{}, false
	}

	item := types.WorkItem{Raw: raw, Depth: depth, Parent: parent}
	id, err := e.normalizer.Normalize(trimmed)
	if err != nil {
		item.ID = trimmed
		item.Invalid = err
		e.logger.Warn("malformed identifier", "id", trimmed, "reason", err)
	} else {
		item.ID = id
	}

	if _, dup := seen[item.ID]; dup {
		return types.WorkItem{}, false
	}
	seen[item.ID] = struct{}{}
	return item, true
}

// expand returns the identifiers parent links to, from the listing store when
// parent was expanded before and by fetching it otherwise. A failed fetch or
// unparsable page yields no children. Only a listing store write failure is
// returned.
func (e *Enumerator) expand(ctx context.Context, parent types.WorkItem) ([]string, error) {
	if e.listings != nil {
		if entry, ok := e.listings.Get(parent.ID); ok && entry.Expanded {
			e.logger.Debug("expansion replayed", "id", parent.ID, "children", len(entry.Children))
			return entry.Children, nil
		}
	}
	if e.fetcher == nil {
		return nil, nil
	}

	res := e.fetcher.Fetch(ctx, parent)
	if ctx.Err() == nil && !e.leavesOnly {
		e.mu.Lock()
		e.fetched[parent.ID] = res
		e.mu.Unlock()
	}
	if !res.OK() {
		e.logger.Warn("expansion fetch failed", "id", parent.ID, "kind", res.Kind.String(), "reason", res.Err)
		return nil, nil
	}
	links, err := e.expander.Expand(res.Content)
	if err != nil {
		e.logger.Warn("expansion failed", "id", parent.ID, "reason", err)
		return nil, nil
	}
	return links, e.remember(ctx, parent, links)
}

// remember stores the links found on parent. An existing entry keeps its
// status; a new one is Listed when parent is not itself a work item.
func (e *Enumerator) remember(ctx context.Context, parent types.WorkItem, links []string) error {
	if e.listings == nil {
		return nil
	}
	entry, ok := e.listings.Get(parent.ID)
	if !ok {
		entry = types.ProgressEntry{ID: parent.ID, Order: -1, Status: types.StatusListed}
		if !e.leavesOnly {
			entry.Status = types.StatusPending
		}
	}
	entry.Attempts = 0
	entry.UpdatedAt = time.Time{}
	entry.Expanded = true
	entry.Children = append([]string{}, links...)
	if err := e.listings.Record(ctx, entry); err != nil {
		return fmt.Errorf("record links of %s: %w", parent.ID, err)
	}
	return nil
}

func (e *Enumerator) allowLink(link string) bool {
	for _, re := range e.ignore {
		if re.MatchString(link) {
			return false
		}
	}
	if len(e.follow) == 0 {
		return true
	}
	for _, re := range e.follow {
		if re.MatchString(link) {
			return true
		}
	}
	return false
}

func compileAll(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}
