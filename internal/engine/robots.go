package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/IshaanNene/gleaner/internal/types"
)

// Filter decides before fetching whether an identifier is processed at all.
// A rejected identifier is recorded as Skipped with the returned reason.
type Filter interface {
	Name() string
	Allow(ctx context.Context, item types.WorkItem) (bool, string)
}

// PatternFilter skips identifiers matching any exclusion pattern.
type PatternFilter struct {
	patterns []*regexp.Regexp
}

// NewPatternFilter compiles the exclusion patterns.
func NewPatternFilter(exprs []string) (*PatternFilter, error) {
	patterns, err := compileAll(exprs)
	if err != nil {
		return nil, &types.ConfigError{Field: "enumerate.exclude", Err: err}
	}
	return &PatternFilter{patterns: patterns}, nil
}

func (f *PatternFilter) Name() string { return "pattern" }

// Allow rejects identifiers matching an exclusion pattern.
func (f *PatternFilter) Allow(_ context.Context, item types.WorkItem) (bool, string) {
	for _, re := range f.patterns {
		if re.MatchString(item.ID) {
			return false, fmt.Sprintf("%v: %s", types.ErrExcluded, re.String())
		}
	}
	return true, ""
}

// HostThrottle spaces requests to one host. *fetcher.Throttle satisfies it.
type HostThrottle interface {
	Wait(ctx context.Context, host string) error
	Done(host string)
}

// RobotsFilter enforces robots.txt. Files are fetched once per host and
// cached for the run. An unreachable robots.txt allows everything; a 5xx
// answer disallows everything.
type RobotsFilter struct {
	client    *http.Client
	throttle  HostThrottle
	userAgent string
	mu        sync.Mutex
	cache     map[string]*robotsEntry
	logger    *slog.Logger
}

type robotsEntry struct {
	once sync.Once
	data *robotstxt.RobotsData
}

// NewRobotsFilter creates a RobotsFilter matching rules for userAgent. When
// throttle is not nil, robots.txt requests share the page fetches' per-host
// spacing.
func NewRobotsFilter(userAgent string, throttle HostThrottle, logger *slog.Logger) *RobotsFilter {
	return &RobotsFilter{
		client:    &http.Client{Timeout: 10 * time.Second},
		throttle:  throttle,
		userAgent: userAgent,
		cache:     make(map[string]*robotsEntry),
		logger:    logger.With("component", "robots"),
	}
}

func (f *RobotsFilter) Name() string { return "robots" }

// Allow checks item against its host's robots.txt. Record ids always pass.
func (f *RobotsFilter) Allow(ctx context.Context, item types.WorkItem) (bool, string) {
	u, err := url.Parse(item.ID)
	if err != nil || u.Host == "" {
		return true, ""
	}

	data := f.robots(ctx, u)
	if data == nil {
		return true, ""
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if data.TestAgent(path, f.userAgent) {
		return true, ""
	}
	return false, "robots.txt"
}

func (f *RobotsFilter) robots(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	origin := u.Scheme + "://" + u.Host

	f.mu.Lock()
	entry, ok := f.cache[origin]
	if !ok {
		entry = &robotsEntry{}
		f.cache[origin] = entry
	}
	f.mu.Unlock()

	entry.once.Do(func() {
		data, err := f.fetch(ctx, u.Host, origin+"/robots.txt")
		if err != nil {
			f.logger.Debug("robots.txt unavailable, allowing all", "origin", origin, "error", err)
			return
		}
		entry.data = data
	})
	return entry.data
}

func (f *RobotsFilter) fetch(ctx context.Context, host, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	if f.throttle != nil {
		if err := f.throttle.Wait(ctx, host); err != nil {
			return nil, err
		}
		defer f.throttle.Done(host)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, err
	}
	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}
