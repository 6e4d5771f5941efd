package extract

import (
	"regexp"
	"sync"
)

// regexCache compiles each pattern once. Extractors are shared by workers,
// so access is locked.
type regexCache struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

func newRegexCache() *regexCache {
	return &regexCache{cache: make(map[string]*regexp.Regexp)}
}

func (c *regexCache) get(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.cache[pattern] = re
	return re, nil
}

// RegexValues applies re to body. With a named group the named captures are
// returned, otherwise the first group, otherwise the full match.
func RegexValues(re *regexp.Regexp, body string) []string {
	named := -1
	for i, name := range re.SubexpNames() {
		if name != "" {
			named = i
			break
		}
	}

	var values []string
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		var val string
		switch {
		case named > 0 && named < len(m):
			val = m[named]
		case len(m) > 1:
			val = m[1]
		default:
			val = m[0]
		}
		if val = Collapse(val); val != "" {
			values = append(values, val)
		}
	}
	return values
}
