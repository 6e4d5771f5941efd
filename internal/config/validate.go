package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"text/template"

	"github.com/IshaanNene/gleaner/internal/types"
)

func invalid(field, format string, args ...any) error {
	return &types.ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.Workers < 1 || cfg.Engine.Workers > MaxWorkers {
		return invalid("engine.workers", "must be 1-%d, got %d", MaxWorkers, cfg.Engine.Workers)
	}
	if cfg.Engine.MaxRelevant < 0 {
		return invalid("engine.max_relevant", "must be >= 0, got %d", cfg.Engine.MaxRelevant)
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return invalid("engine.request_timeout", "must be > 0")
	}
	if cfg.Engine.PolitenessDelay < 0 {
		return invalid("engine.politeness_delay", "must be >= 0")
	}

	if cfg.Retry.Attempts < 1 || cfg.Retry.Attempts > MaxAttempts {
		return invalid("retry.attempts", "must be 1-%d, got %d", MaxAttempts, cfg.Retry.Attempts)
	}
	if cfg.Retry.BaseDelay < 0 || cfg.Retry.MaxDelay < 0 {
		return invalid("retry", "delays must be >= 0")
	}
	if cfg.Retry.Backoff != "exponential" && cfg.Retry.Backoff != "fixed" {
		return invalid("retry.backoff", "must be 'exponential' or 'fixed', got %q", cfg.Retry.Backoff)
	}

	if cfg.Enumerate.ExpandDepth < 0 || cfg.Enumerate.ExpandDepth > MaxExpandDepth {
		return invalid("enumerate.expand_depth", "must be 0-%d, got %d", MaxExpandDepth, cfg.Enumerate.ExpandDepth)
	}
	if cfg.Enumerate.ExpandDepth > 0 {
		switch cfg.Enumerate.Expander {
		case "html":
			if cfg.Enumerate.LinkSelector == "" {
				return invalid("enumerate.link_selector", "required for the html expander")
			}
		case "json":
			if cfg.Enumerate.LinkPath == "" {
				return invalid("enumerate.link_path", "required for the json expander")
			}
		default:
			return invalid("enumerate.expander", "must be 'html' or 'json', got %q", cfg.Enumerate.Expander)
		}
	}
	for field, patterns := range map[string][]string{
		"enumerate.link_follow": cfg.Enumerate.LinkFollow,
		"enumerate.link_ignore": cfg.Enumerate.LinkIgnore,
		"enumerate.exclude":     cfg.Enumerate.Exclude,
	} {
		if err := validatePatterns(field, patterns); err != nil {
			return err
		}
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return invalid("fetcher.max_body_size", "must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return invalid("fetcher.max_redirects", "must be >= 0")
	}
	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return invalid("fetcher.type", "must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if t := cfg.Fetcher.URLTemplate; t != "" {
		if !strings.Contains(t, "{id}") {
			return invalid("fetcher.url_template", "must contain {id}")
		}
		if err := ValidateURL(strings.ReplaceAll(t, "{id}", "0")); err != nil {
			return invalid("fetcher.url_template", "%v", err)
		}
	}

	if err := validateExtract(&cfg.Extract); err != nil {
		return err
	}
	if err := validateClassify(&cfg.Classify); err != nil {
		return err
	}
	if err := validatePipeline(&cfg.Pipeline); err != nil {
		return err
	}

	switch cfg.Progress.Backend {
	case "file":
		if cfg.Progress.Path == "" {
			return invalid("progress.path", "required for the file backend")
		}
	case "mongo":
		if cfg.Mongo.URI == "" || cfg.Progress.Collection == "" {
			return invalid("progress", "mongo backend needs mongo.uri and progress.collection")
		}
	case "postgres":
		if cfg.Progress.DSN == "" {
			return invalid("progress.dsn", "required for the postgres backend")
		}
		if !identRe.MatchString(cfg.Progress.Table) {
			return invalid("progress.table", "%q is not a valid table name", cfg.Progress.Table)
		}
	default:
		return invalid("progress.backend", "must be file, mongo or postgres, got %q", cfg.Progress.Backend)
	}

	validOutput := map[string]bool{
		"json": true, "jsonl": true, "csv": true, "mongo": true,
	}
	if len(cfg.Output.Formats) == 0 {
		return invalid("output.formats", "at least one format is required")
	}
	for _, f := range cfg.Output.Formats {
		if !validOutput[f] {
			return invalid("output.formats", "%q is not supported (valid: json, jsonl, csv, mongo)", f)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return invalid("logging.level", "must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return invalid("logging.format", "must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return invalid("metrics.addr", "required when metrics are enabled")
	}

	return nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validatePipeline(pc *PipelineConfig) error {
	for field, kind := range pc.Coerce {
		switch kind {
		case "int", "float", "bool", "string":
		default:
			return invalid("pipeline.coerce", "field %q: unknown type %q", field, kind)
		}
	}
	for field, pattern := range pc.Validate {
		if _, err := regexp.Compile(pattern); err != nil {
			return invalid("pipeline.validate", "field %q: %v", field, err)
		}
	}
	return nil
}

func validateExtract(ec *ExtractConfig) error {
	switch ec.Kind {
	case "rules", "article", "json":
	default:
		return invalid("extract.kind", "must be rules, article or json, got %q", ec.Kind)
	}
	if ec.MinLength < 0 {
		return invalid("extract.min_length", "must be >= 0")
	}
	seen := make(map[string]bool, len(ec.Rules))
	for i, r := range ec.Rules {
		field := fmt.Sprintf("extract.rules[%d]", i)
		if r.Name == "" {
			return invalid(field, "name is required")
		}
		if seen[r.Name] {
			return invalid(field, "duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
		switch r.Type {
		case "css", "xpath", "meta":
			if r.Selector == "" {
				return invalid(field, "selector is required for %s rules", r.Type)
			}
		case "json":
			if r.Path == "" {
				return invalid(field, "path is required for json rules")
			}
		case "regex":
			if _, err := regexp.Compile(r.Pattern); err != nil || r.Pattern == "" {
				return invalid(field, "invalid pattern %q", r.Pattern)
			}
		default:
			return invalid(field, "unknown rule type %q", r.Type)
		}
	}
	return nil
}

func validateClassify(cc *ClassifyConfig) error {
	if !cc.Enabled && !cc.Summarize.Enabled {
		return nil
	}
	switch cc.Provider {
	case "openai", "anthropic":
		if cc.APIKey == "" {
			return invalid("classify.api_key", "required for provider %q", cc.Provider)
		}
	case "ollama":
	default:
		return invalid("classify.provider", "must be openai, ollama or anthropic, got %q", cc.Provider)
	}
	if cc.Model == "" {
		return invalid("classify.model", "required")
	}
	if cc.Attempts < 1 || cc.Attempts > MaxAttempts {
		return invalid("classify.attempts", "must be 1-%d, got %d", MaxAttempts, cc.Attempts)
	}
	if cc.Delay < 0 {
		return invalid("classify.delay", "must be >= 0")
	}
	if cc.Enabled && cc.Prompt == "" && cc.Topic == "" {
		return invalid("classify.topic", "a topic or a prompt template is required")
	}
	for field, text := range map[string]string{"classify.prompt": cc.Prompt, "classify.summarize.prompt": cc.Summarize.Prompt} {
		if text == "" {
			continue
		}
		if _, err := template.New(field).Parse(text); err != nil {
			return invalid(field, "%v", err)
		}
	}
	return nil
}

func validatePatterns(field string, patterns []string) error {
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return invalid(field, "invalid pattern %q: %v", p, err)
		}
	}
	return nil
}

// ValidateURL checks if a URL string is valid for fetching.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
