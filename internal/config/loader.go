package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	// GLEANER_ENGINE_WORKERS, GLEANER_CLASSIFY_API_KEY, ...
	v.SetEnvPrefix("GLEANER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gleaner")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".gleaner"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so that every key is known
// to AutomaticEnv.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.workers", cfg.Engine.Workers)
	v.SetDefault("engine.max_relevant", cfg.Engine.MaxRelevant)
	v.SetDefault("engine.request_timeout", cfg.Engine.RequestTimeout)
	v.SetDefault("engine.politeness_delay", cfg.Engine.PolitenessDelay)
	v.SetDefault("engine.politeness_jitter", cfg.Engine.PolitenessJitter)
	v.SetDefault("engine.respect_robots_txt", cfg.Engine.RespectRobotsTxt)
	v.SetDefault("engine.user_agents", cfg.Engine.UserAgents)

	v.SetDefault("retry.attempts", cfg.Retry.Attempts)
	v.SetDefault("retry.base_delay", cfg.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", cfg.Retry.MaxDelay)
	v.SetDefault("retry.backoff", cfg.Retry.Backoff)
	v.SetDefault("retry.jitter", cfg.Retry.Jitter)

	v.SetDefault("enumerate.seeds_file", cfg.Enumerate.SeedsFile)
	v.SetDefault("enumerate.strip_params", cfg.Enumerate.StripParams)
	v.SetDefault("enumerate.expand_depth", cfg.Enumerate.ExpandDepth)
	v.SetDefault("enumerate.leaves_only", cfg.Enumerate.LeavesOnly)
	v.SetDefault("enumerate.expander", cfg.Enumerate.Expander)
	v.SetDefault("enumerate.link_selector", cfg.Enumerate.LinkSelector)
	v.SetDefault("enumerate.link_path", cfg.Enumerate.LinkPath)
	v.SetDefault("enumerate.link_template", cfg.Enumerate.LinkTemplate)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.url_template", cfg.Fetcher.URLTemplate)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.stealth", cfg.Fetcher.Stealth)

	v.SetDefault("extract.kind", cfg.Extract.Kind)
	v.SetDefault("extract.readability", cfg.Extract.Readability)
	v.SetDefault("extract.min_length", cfg.Extract.MinLength)
	v.SetDefault("extract.length_field", cfg.Extract.LengthField)
	v.SetDefault("extract.article.title_selector", cfg.Extract.Article.TitleSelector)
	v.SetDefault("extract.article.content_selector", cfg.Extract.Article.ContentSelector)
	v.SetDefault("extract.article.infobox_selector", cfg.Extract.Article.InfoboxSelector)

	v.SetDefault("classify.enabled", cfg.Classify.Enabled)
	v.SetDefault("classify.provider", cfg.Classify.Provider)
	v.SetDefault("classify.model", cfg.Classify.Model)
	v.SetDefault("classify.base_url", cfg.Classify.BaseURL)
	v.SetDefault("classify.api_key", cfg.Classify.APIKey)
	v.SetDefault("classify.topic", cfg.Classify.Topic)
	v.SetDefault("classify.prompt", cfg.Classify.Prompt)
	v.SetDefault("classify.field", cfg.Classify.Field)
	v.SetDefault("classify.max_chars", cfg.Classify.MaxChars)
	v.SetDefault("classify.temperature", cfg.Classify.Temperature)
	v.SetDefault("classify.max_tokens", cfg.Classify.MaxTokens)
	v.SetDefault("classify.attempts", cfg.Classify.Attempts)
	v.SetDefault("classify.delay", cfg.Classify.Delay)
	v.SetDefault("classify.summarize.enabled", cfg.Classify.Summarize.Enabled)
	v.SetDefault("classify.summarize.field", cfg.Classify.Summarize.Field)
	v.SetDefault("classify.summarize.max_words", cfg.Classify.Summarize.MaxWords)

	v.SetDefault("pipeline.trim", cfg.Pipeline.Trim)
	v.SetDefault("pipeline.collapse", cfg.Pipeline.Collapse)
	v.SetDefault("pipeline.sanitize_html", cfg.Pipeline.SanitizeHTML)
	v.SetDefault("pipeline.redact_pii", cfg.Pipeline.RedactPII)
	v.SetDefault("pipeline.date_format", cfg.Pipeline.DateFormat)

	v.SetDefault("progress.backend", cfg.Progress.Backend)
	v.SetDefault("progress.path", cfg.Progress.Path)
	v.SetDefault("progress.collection", cfg.Progress.Collection)
	v.SetDefault("progress.dsn", cfg.Progress.DSN)
	v.SetDefault("progress.table", cfg.Progress.Table)

	v.SetDefault("output.formats", cfg.Output.Formats)
	v.SetDefault("output.path", cfg.Output.Path)
	v.SetDefault("output.name", cfg.Output.Name)
	v.SetDefault("output.collection", cfg.Output.Collection)

	v.SetDefault("mongo.uri", cfg.Mongo.URI)
	v.SetDefault("mongo.database", cfg.Mongo.Database)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.file", cfg.Logging.File)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
