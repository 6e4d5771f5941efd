package engine

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/IshaanNene/gleaner/internal/types"
)

// Normalizer collapses equivalent identifiers to one canonical form so that
// enumeration dedups them.
type Normalizer struct {
	strip []string
}

// NewNormalizer creates a Normalizer that drops the given query parameters.
// A trailing "*" matches by prefix ("utm_*").
func NewNormalizer(stripParams []string) *Normalizer {
	strip := make([]string, 0, len(stripParams))
	for _, p := range stripParams {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			strip = append(strip, p)
		}
	}
	return &Normalizer{strip: strip}
}

// Normalize returns the canonical identifier for raw:
//   - protocol-relative "//host/path" becomes https
//   - scheme and host are lower-cased, default ports removed
//   - the fragment and noise query parameters are dropped
//   - remaining query parameters are sorted
//   - the path is re-escaped canonically
//   - a trailing slash is removed (except root "/")
//
// Identifiers without a scheme are record ids and are only trimmed.
func (n *Normalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty identifier", types.ErrInvalidIdentifier)
	}
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}
	if !strings.Contains(s, "://") {
		return s, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidIdentifier, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", types.ErrInvalidIdentifier, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", types.ErrInvalidIdentifier)
	}
	u.Host = strings.ToLower(u.Host)

	u.Fragment = ""
	u.RawFragment = ""

	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = u.Hostname()
	}

	u.RawQuery = n.query(u.Query())
	u.ForceQuery = false

	// Path holds the decoded form, so raw-Unicode and escaped spellings
	// serialise identically once RawPath is cleared.
	u.RawPath = ""
	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String(), nil
}

// query re-encodes params without noise keys, sorted by key then value.
func (n *Normalizer) query(params url.Values) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		if !n.noise(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sorted []string
	for _, k := range keys {
		vals := params[k]
		sort.Strings(vals)
		for _, v := range vals {
			sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(sorted, "&")
}

func (n *Normalizer) noise(key string) bool {
	key = strings.ToLower(key)
	for _, p := range n.strip {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(key, prefix) {
				return true
			}
			continue
		}
		if key == p {
			return true
		}
	}
	return false
}
