package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// BrowserSource implements Source using a headless browser via Rod, for
// targets that only render their content with JavaScript.
type BrowserSource struct {
	browser  *rod.Browser
	cfg      *config.Config
	logger   *slog.Logger
	pagePool chan *rod.Page
}

// NewBrowserSource launches a headless Chromium and connects to it.
func NewBrowserSource(cfg *config.Config, logger *slog.Logger) (*BrowserSource, error) {
	launchURL, err := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	bs := &BrowserSource{
		browser:  browser,
		cfg:      cfg,
		logger:   logger.With("component", "browser_source"),
		pagePool: make(chan *rod.Page, cfg.Engine.Workers),
	}

	bs.logger.Info("browser source ready",
		"max_pages", cfg.Engine.Workers,
		"stealth", cfg.Fetcher.Stealth,
	)

	return bs, nil
}

// Fetch navigates to target and returns the rendered page content.
func (bs *BrowserSource) Fetch(ctx context.Context, id, target string) (*types.Content, error) {
	start := time.Now()

	page, err := bs.getPage()
	if err != nil {
		return nil, types.Transient(target, 0, err)
	}
	defer bs.putPage(page)

	page = page.Context(ctx)

	if len(bs.cfg.Engine.UserAgents) > 0 {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: bs.cfg.Engine.UserAgents[0],
		})
		if err != nil {
			bs.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if len(bs.cfg.Fetcher.Headers) > 0 {
		headers := make([]string, 0, len(bs.cfg.Fetcher.Headers)*2)
		for k, v := range bs.cfg.Fetcher.Headers {
			headers = append(headers, k, v)
		}
		_, _ = page.SetExtraHeaders(headers)
	}

	timeout := bs.cfg.Engine.RequestTimeout
	if err := page.Timeout(timeout).Navigate(target); err != nil {
		if ctx.Err() != nil {
			return nil, types.Permanent(target, 0, ctx.Err())
		}
		return nil, types.Transient(target, 0, err)
	}

	if err := page.Timeout(timeout).WaitStable(300 * time.Millisecond); err != nil {
		bs.logger.Warn("page stability timeout, continuing", "url", target, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, types.Transient(target, 0, err)
	}

	finalURL := target
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	duration := time.Since(start)
	bs.logger.Debug("browser fetch complete",
		"url", target,
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	return types.NewBrowserContent(id, target, []byte(html), finalURL, duration), nil
}

// Close shuts down the browser and releases resources.
func (bs *BrowserSource) Close() error {
	close(bs.pagePool)
	for page := range bs.pagePool {
		_ = page.Close()
	}
	if bs.browser != nil {
		return bs.browser.Close()
	}
	return nil
}

// Type returns the source type identifier.
func (bs *BrowserSource) Type() string {
	return "browser"
}

// getPage retrieves a page from the pool or creates a new one.
func (bs *BrowserSource) getPage() (*rod.Page, error) {
	select {
	case page := <-bs.pagePool:
		return page, nil
	default:
	}
	if bs.cfg.Fetcher.Stealth {
		return stealth.Page(bs.browser)
	}
	return bs.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}

// putPage returns a page to the pool.
func (bs *BrowserSource) putPage(page *rod.Page) {
	_ = page.Navigate("about:blank")

	select {
	case bs.pagePool <- page:
	default:
		_ = page.Close() // Pool full, close the page
	}
}
