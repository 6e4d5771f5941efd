package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/IshaanNene/gleaner/internal/config"
	"github.com/IshaanNene/gleaner/internal/types"
)

// Source is a raw content source. Failures are returned as *types.FetchError
// so the caller can tell transient from permanent.
type Source interface {
	// Fetch retrieves the content at target on behalf of identifier id.
	Fetch(ctx context.Context, id, target string) (*types.Content, error)

	// Close releases any resources held by the source.
	Close() error

	// Type returns the source type identifier.
	Type() string
}

// Resolver maps identifiers to fetchable URLs. Record ids are rendered through
// a template such as "https://api.example.com/v2/product/{id}/"; URL
// identifiers are used as they are.
type Resolver struct {
	Template string
}

// Resolve returns the URL to fetch for id, or a permanent FetchError when id
// cannot be turned into an absolute http(s) URL.
func (r Resolver) Resolve(id string) (string, error) {
	target := id
	if r.Template != "" && !isURL(id) {
		target = strings.ReplaceAll(r.Template, "{id}", url.PathEscape(id))
	}
	if err := config.ValidateURL(target); err != nil {
		return "", types.Permanent(id, 0, fmt.Errorf("%w: %v", types.ErrInvalidIdentifier, err))
	}
	return target, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// New builds the Source selected by fetcher.type.
func New(cfg *config.Config, logger *slog.Logger) (Source, error) {
	switch cfg.Fetcher.Type {
	case "browser":
		return NewBrowserSource(cfg, logger)
	default:
		return NewHTTPSource(cfg, logger)
	}
}
