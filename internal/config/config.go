package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Hard limits enforced by Validate.
const (
	MaxWorkers     = 8
	MaxExpandDepth = 3
	MaxAttempts    = 10
)

// Config is the root configuration for gleaner.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"    yaml:"engine"`
	Retry     RetryConfig     `mapstructure:"retry"     yaml:"retry"`
	Enumerate EnumerateConfig `mapstructure:"enumerate" yaml:"enumerate"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Extract   ExtractConfig   `mapstructure:"extract"   yaml:"extract"`
	Classify  ClassifyConfig  `mapstructure:"classify"  yaml:"classify"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"  yaml:"pipeline"`
	Progress  ProgressConfig  `mapstructure:"progress"  yaml:"progress"`
	Output    OutputConfig    `mapstructure:"output"    yaml:"output"`
	Mongo     MongoConfig     `mapstructure:"mongo"     yaml:"mongo"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// EngineConfig controls the driver loop.
type EngineConfig struct {
	Workers          int           `mapstructure:"workers"            yaml:"workers"`
	MaxRelevant      int           `mapstructure:"max_relevant"       yaml:"max_relevant"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"    yaml:"request_timeout"`
	PolitenessDelay  time.Duration `mapstructure:"politeness_delay"   yaml:"politeness_delay"`
	PolitenessJitter bool          `mapstructure:"politeness_jitter"  yaml:"politeness_jitter"`
	RespectRobotsTxt bool          `mapstructure:"respect_robots_txt" yaml:"respect_robots_txt"`
	UserAgents       []string      `mapstructure:"user_agents"        yaml:"user_agents"`
}

// RetryConfig controls bounded retry of transient fetch failures.
type RetryConfig struct {
	Attempts  int           `mapstructure:"attempts"   yaml:"attempts"`
	BaseDelay time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay"  yaml:"max_delay"`
	Backoff   string        `mapstructure:"backoff"    yaml:"backoff"` // exponential, fixed
	Jitter    bool          `mapstructure:"jitter"     yaml:"jitter"`
}

// EnumerateConfig controls seed reading, normalisation and expansion.
type EnumerateConfig struct {
	SeedsFile    string   `mapstructure:"seeds_file"    yaml:"seeds_file"`
	Seeds        []string `mapstructure:"seeds"         yaml:"seeds"`
	StripParams  []string `mapstructure:"strip_params"  yaml:"strip_params"`
	ExpandDepth  int      `mapstructure:"expand_depth"  yaml:"expand_depth"`
	LeavesOnly   bool     `mapstructure:"leaves_only"   yaml:"leaves_only"`
	Expander     string   `mapstructure:"expander"      yaml:"expander"` // html, json
	LinkSelector string   `mapstructure:"link_selector" yaml:"link_selector"`
	LinkPath     string   `mapstructure:"link_path"     yaml:"link_path"`
	LinkTemplate string   `mapstructure:"link_template" yaml:"link_template"`
	LinkFollow   []string `mapstructure:"link_follow"   yaml:"link_follow"`
	LinkIgnore   []string `mapstructure:"link_ignore"   yaml:"link_ignore"`
	Exclude      []string `mapstructure:"exclude"       yaml:"exclude"`
}

// FetcherConfig controls the raw content source.
type FetcherConfig struct {
	Type            string            `mapstructure:"type"              yaml:"type"`
	URLTemplate     string            `mapstructure:"url_template"      yaml:"url_template"`
	Headers         map[string]string `mapstructure:"headers"           yaml:"headers"`
	FollowRedirects bool              `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int               `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64             `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool              `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration     `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	Stealth         bool              `mapstructure:"stealth"           yaml:"stealth"`
}

// ExtractConfig selects and configures the field extractor.
type ExtractConfig struct {
	Kind          string        `mapstructure:"kind"           yaml:"kind"` // rules, article, json
	Rules         []ParseRule   `mapstructure:"rules"          yaml:"rules"`
	Readability   bool          `mapstructure:"readability"    yaml:"readability"`
	Article       ArticleConfig `mapstructure:"article"        yaml:"article"`
	MinLength     int           `mapstructure:"min_length"     yaml:"min_length"`
	LengthField   string        `mapstructure:"length_field"   yaml:"length_field"`
	Keywords      []string      `mapstructure:"keywords"       yaml:"keywords"`
	KeywordFields []string      `mapstructure:"keyword_fields" yaml:"keyword_fields"`
}

// ParseRule defines a single extraction rule.
type ParseRule struct {
	Name      string `mapstructure:"name"      yaml:"name"`
	Type      string `mapstructure:"type"      yaml:"type"` // css, xpath, regex, json, meta
	Selector  string `mapstructure:"selector"  yaml:"selector"`
	Attribute string `mapstructure:"attribute" yaml:"attribute"`
	Pattern   string `mapstructure:"pattern"   yaml:"pattern"`
	Path      string `mapstructure:"path"      yaml:"path"`
	All       bool   `mapstructure:"all"       yaml:"all"`
}

// ArticleConfig configures the article (infobox) extractor.
type ArticleConfig struct {
	TitleSelector   string              `mapstructure:"title_selector"   yaml:"title_selector"`
	ContentSelector string              `mapstructure:"content_selector" yaml:"content_selector"`
	InfoboxSelector string              `mapstructure:"infobox_selector" yaml:"infobox_selector"`
	Labels          map[string][]string `mapstructure:"labels"           yaml:"labels"`
}

// ClassifyConfig controls the completion-service classification step.
type ClassifyConfig struct {
	Enabled     bool            `mapstructure:"enabled"     yaml:"enabled"`
	Provider    string          `mapstructure:"provider"    yaml:"provider"` // openai, ollama, anthropic
	Model       string          `mapstructure:"model"       yaml:"model"`
	BaseURL     string          `mapstructure:"base_url"    yaml:"base_url"`
	APIKey      string          `mapstructure:"api_key"     yaml:"-"`
	Topic       string          `mapstructure:"topic"       yaml:"topic"`
	Prompt      string          `mapstructure:"prompt"      yaml:"prompt"`
	Field       string          `mapstructure:"field"       yaml:"field"`
	MaxChars    int             `mapstructure:"max_chars"   yaml:"max_chars"`
	Temperature float64         `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int             `mapstructure:"max_tokens"  yaml:"max_tokens"`
	Attempts    int             `mapstructure:"attempts"    yaml:"attempts"`
	Delay       time.Duration   `mapstructure:"delay"       yaml:"delay"`
	Summarize   SummarizeConfig `mapstructure:"summarize"   yaml:"summarize"`
}

// SummarizeConfig controls the summary enricher.
type SummarizeConfig struct {
	Enabled  bool   `mapstructure:"enabled"   yaml:"enabled"`
	Field    string `mapstructure:"field"     yaml:"field"`
	MaxWords int    `mapstructure:"max_words" yaml:"max_words"`
	Prompt   string `mapstructure:"prompt"    yaml:"prompt"`
}

// PipelineConfig controls record clean-up before persist.
type PipelineConfig struct {
	Trim         bool              `mapstructure:"trim"          yaml:"trim"`
	Collapse     bool              `mapstructure:"collapse"      yaml:"collapse"`
	SanitizeHTML bool              `mapstructure:"sanitize_html" yaml:"sanitize_html"`
	RedactPII    bool              `mapstructure:"redact_pii"    yaml:"redact_pii"`
	Dates        []string          `mapstructure:"dates"         yaml:"dates"`
	DateFormat   string            `mapstructure:"date_format"   yaml:"date_format"`
	Currency     []string          `mapstructure:"currency"      yaml:"currency"`
	Coerce       map[string]string `mapstructure:"coerce"        yaml:"coerce"` // field -> int, float, bool, string
	Validate     map[string]string `mapstructure:"validate"      yaml:"validate"`
	Defaults     map[string]string `mapstructure:"defaults"      yaml:"defaults"`
	WordCount    []string          `mapstructure:"word_count"    yaml:"word_count"`
	Required     []string          `mapstructure:"required"      yaml:"required"`
	Keep         []string          `mapstructure:"keep"          yaml:"keep"`
	Rename       map[string]string `mapstructure:"rename"        yaml:"rename"`
}

// ProgressConfig selects the progress store backend.
type ProgressConfig struct {
	Backend    string `mapstructure:"backend"     yaml:"backend"` // file, mongo, postgres
	Path       string `mapstructure:"path"        yaml:"path"`
	Collection string `mapstructure:"collection"  yaml:"collection"`
	DSN        string `mapstructure:"dsn"         yaml:"-"`
	Table      string `mapstructure:"table"       yaml:"table"`
}

// OutputConfig controls the structured output sink.
type OutputConfig struct {
	Formats    []string `mapstructure:"formats"    yaml:"formats"` // json, jsonl, csv, mongo
	Path       string   `mapstructure:"path"       yaml:"path"`
	Name       string   `mapstructure:"name"       yaml:"name"`
	Collection string   `mapstructure:"collection" yaml:"collection"`
}

// MongoConfig is shared by the mongo progress backend and output sink.
type MongoConfig struct {
	URI      string `mapstructure:"uri"      yaml:"-"`
	Database string `mapstructure:"database" yaml:"database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file"   yaml:"file"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr"    yaml:"addr"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers:          1,
			RequestTimeout:   15 * time.Second,
			PolitenessDelay:  500 * time.Millisecond,
			RespectRobotsTxt: true,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Retry: RetryConfig{
			Attempts:  3,
			BaseDelay: 5 * time.Second,
			MaxDelay:  60 * time.Second,
			Backoff:   "exponential",
		},
		Enumerate: EnumerateConfig{
			StripParams:  []string{"utm", "utm_*", "fbclid", "gclid", "mc_cid", "mc_eid", "_ga"},
			Expander:     "html",
			LinkSelector: "a[href]",
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
		},
		Extract: ExtractConfig{
			Kind:        "rules",
			Readability: true,
			LengthField: "text",
			Article: ArticleConfig{
				TitleSelector:   "h1",
				ContentSelector: "#mw-content-text .mw-parser-output, article, main, body",
				InfoboxSelector: "table.infobox",
			},
		},
		Classify: ClassifyConfig{
			Provider:    "openai",
			Model:       "gpt-4.1-mini",
			Field:       "text",
			MaxChars:    10000,
			Temperature: 0.2,
			MaxTokens:   500,
			Attempts:    3,
			Delay:       5 * time.Second,
			Summarize: SummarizeConfig{
				Field:    "text",
				MaxWords: 120,
			},
		},
		Pipeline: PipelineConfig{
			Trim:     true,
			Collapse: true,
		},
		Progress: ProgressConfig{
			Backend:    "file",
			Path:       "./output/progress.json",
			Collection: "progress",
			Table:      "gleaner_progress",
		},
		Output: OutputConfig{
			Formats:    []string{"jsonl"},
			Path:       "./output",
			Name:       "records",
			Collection: "records",
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "gleaner",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}
