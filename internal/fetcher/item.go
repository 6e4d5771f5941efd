package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/IshaanNene/gleaner/internal/types"
)

// Fetcher turns an identifier into a FetchResult. It resolves the target URL,
// waits for the host's politeness slot before every request and retries
// transient failures under its Policy. It never returns an error.
type Fetcher struct {
	source   Source
	resolver Resolver
	policy   Policy
	throttle *Throttle
	sleep    SleepFunc
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithSleep replaces the backoff sleep (tests use a no-op).
func WithSleep(sleep SleepFunc) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// WithThrottle sets the per-host politeness throttle.
func WithThrottle(t *Throttle) Option {
	return func(f *Fetcher) { f.throttle = t }
}

// WithResolver sets identifier to URL resolution.
func WithResolver(r Resolver) Option {
	return func(f *Fetcher) { f.resolver = r }
}

// NewFetcher creates an item fetcher over source.
func NewFetcher(source Source, policy Policy, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		source: source,
		policy: policy,
		sleep:  Sleep,
		logger: logger.With("component", "fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves the raw content for item.
func (f *Fetcher) Fetch(ctx context.Context, item types.WorkItem) types.FetchResult {
	if item.Invalid != nil {
		return types.FetchResult{
			Kind: types.FetchPermanent,
			Err:  types.Permanent(item.Raw, 0, item.Invalid),
		}
	}

	target, err := f.resolver.Resolve(item.ID)
	if err != nil {
		return types.FetchResult{Kind: types.FetchPermanent, Err: err}
	}
	host := hostOf(target)

	var content *types.Content
	attempts, err := Retry(ctx, f.policy, f.sleep, types.IsRetryable, func(ctx context.Context, attempt int) error {
		if err := f.throttle.Wait(ctx, host); err != nil {
			return err
		}
		c, err := f.source.Fetch(ctx, item.ID, target)
		f.throttle.Done(host)
		if err != nil {
			f.logger.Debug("fetch attempt failed",
				"id", item.ID,
				"attempt", attempt,
				"retryable", types.IsRetryable(err),
				"error", err,
			)
			return err
		}
		content = c
		return nil
	})

	switch {
	case err == nil:
		return types.FetchResult{Kind: types.FetchSuccess, Content: content, Attempts: attempts}
	case types.IsRetryable(err):
		return types.FetchResult{Kind: types.FetchTransient, Err: err, Attempts: attempts}
	case ctx.Err() != nil:
		return types.FetchResult{Kind: types.FetchTransient, Err: errors.Join(types.ErrRunStopped, ctx.Err()), Attempts: attempts}
	default:
		return types.FetchResult{Kind: types.FetchPermanent, Err: err, Attempts: attempts}
	}
}

// Source returns the underlying content source.
func (f *Fetcher) Source() Source {
	return f.source
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Host
}
