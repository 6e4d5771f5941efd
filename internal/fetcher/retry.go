package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	BackoffExponential Backoff = iota
	BackoffFixed
)

// Policy bounds retries of transient failures.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Backoff   Backoff
	Jitter    bool
}

// PolicyFromConfig builds the fetch retry policy.
func PolicyFromConfig(rc config.RetryConfig) Policy {
	p := Policy{
		Attempts:  rc.Attempts,
		BaseDelay: rc.BaseDelay,
		MaxDelay:  rc.MaxDelay,
		Jitter:    rc.Jitter,
	}
	if rc.Backoff == "fixed" {
		p.Backoff = BackoffFixed
	}
	return p
}

// FixedPolicy is a policy with a constant delay between attempts.
func FixedPolicy(attempts int, delay time.Duration) Policy {
	return Policy{Attempts: attempts, BaseDelay: delay, Backoff: BackoffFixed}
}

// Delay returns the wait after the given number of failed attempts (1-based).
func (p Policy) Delay(failures int) time.Duration {
	d := p.BaseDelay
	if p.Backoff == BackoffExponential {
		for i := 1; i < failures; i++ {
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				break
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d > 0 {
		d = RandomDelay(d)
	}
	return d
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls op until it succeeds, fails with an error retryable rejects, or
// the policy's attempts are used up. It returns the number of attempts made.
// A server retry hint longer than the computed backoff wins.
func Retry(ctx context.Context, p Policy, sleep SleepFunc, retryable func(error) bool, op func(ctx context.Context, attempt int) error) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}
	attempts := max(p.Attempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx, attempt); err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return attempt, err
		}
		if attempt == attempts {
			break
		}
		delay := max(p.Delay(attempt), types.RetryHint(err))
		if serr := sleep(ctx, delay); serr != nil {
			return attempt, serr
		}
	}
	return attempts, fmt.Errorf("%w after %d attempts: %w", types.ErrMaxRetries, attempts, err)
}
