package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for shopbot.
type Config struct {
	General    GeneralConfig    `yaml:"general" json:"general"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Telegram   TelegramConfig   `yaml:"telegram" json:"telegram"`
	Completion CompletionConfig `yaml:"completion" json:"completion"`
	Enricher   EnricherConfig   `yaml:"enricher" json:"enricher"`
	Rules      RulesConfig      `yaml:"rules" json:"rules"`
	Replies    RepliesConfig    `yaml:"replies" json:"replies"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit" json:"rateLimit"`
	Dedup      DedupConfig      `yaml:"dedup" json:"dedup"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
}

type GeneralConfig struct {
	LogLevel  string `yaml:"logLevel" json:"logLevel"`   // debug | info | warn | error
	LogFormat string `yaml:"logFormat" json:"logFormat"` // text | json
}

type ServerConfig struct {
	Host                  string `yaml:"host" json:"host"`
	Port                  int    `yaml:"port" json:"port"`
	Path                  string `yaml:"path" json:"path"`
	HandlerTimeoutSeconds int    `yaml:"handlerTimeoutSeconds" json:"handlerTimeoutSeconds"`
}

type TelegramConfig struct {
	Token         string `yaml:"token" json:"token"`
	WebhookSecret string `yaml:"webhookSecret" json:"webhookSecret"`
	ParseMode     string `yaml:"parseMode" json:"parseMode"` // "" (plain) | Markdown | MarkdownV2 | HTML
	APIEndpoint   string `yaml:"apiEndpoint,omitempty" json:"apiEndpoint,omitempty"`
	PublicURL     string `yaml:"publicUrl,omitempty" json:"publicUrl,omitempty"`
	SendTyping    bool   `yaml:"sendTyping" json:"sendTyping"`
}

type CompletionConfig struct {
	APIBase        string  `yaml:"apiBase" json:"apiBase"`
	APIKey         string  `yaml:"apiKey" json:"apiKey"`
	Model          string  `yaml:"model" json:"model"`
	MaxTokens      int     `yaml:"maxTokens" json:"maxTokens"`
	Temperature    float64 `yaml:"temperature" json:"temperature"`
	TimeoutSeconds int     `yaml:"timeoutSeconds" json:"timeoutSeconds"`
}

// Strategy is one way of pulling a value out of a page: the first element
// matching Selector, read as text or, when Attr is set, as that attribute.
type Strategy struct {
	Selector string `yaml:"selector" json:"selector"`
	Attr     string `yaml:"attr,omitempty" json:"attr,omitempty"`
}

// ProductSelectors lists the extraction strategies per product field, in
// priority order.
type ProductSelectors struct {
	Title        []Strategy `yaml:"title" json:"title"`
	Price        []Strategy `yaml:"price" json:"price"`
	Availability []Strategy `yaml:"availability" json:"availability"`
}

type SearchConfig struct {
	Enabled    bool       `yaml:"enabled" json:"enabled"`
	BaseURL    string     `yaml:"baseUrl" json:"baseUrl"`
	Path       string     `yaml:"path" json:"path"`
	QueryParam string     `yaml:"queryParam" json:"queryParam"`
	MaxResults int        `yaml:"maxResults" json:"maxResults"`
	Item       string     `yaml:"item" json:"item"`
	Name       []Strategy `yaml:"name" json:"name"`
	Price      []Strategy `yaml:"price" json:"price"`
	Link       []Strategy `yaml:"link" json:"link"`
}

type EnricherConfig struct {
	AllowedHosts   []string         `yaml:"allowedHosts" json:"allowedHosts"`
	MaxURLs        int              `yaml:"maxUrls" json:"maxUrls"`
	TimeoutMs      int              `yaml:"timeoutMs" json:"timeoutMs"`
	MaxConcurrency int              `yaml:"maxConcurrency" json:"maxConcurrency"`
	FetchMode      string           `yaml:"fetchMode" json:"fetchMode"` // http | browser
	UserAgent      string           `yaml:"userAgent" json:"userAgent"`
	MaxBodyBytes   int64            `yaml:"maxBodyBytes" json:"maxBodyBytes"`
	Product        ProductSelectors `yaml:"product" json:"product"`
	Search         SearchConfig     `yaml:"search" json:"search"`
}

// FactTopic is a static fact included when any of its keywords appears.
type FactTopic struct {
	Topic    string   `yaml:"topic" json:"topic"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Text     string   `yaml:"text" json:"text"`
}

// Substitution replaces a disallowed term with a polite one.
type Substitution struct {
	Term        string `yaml:"term" json:"term"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

// RulesConfig is the versioned classification and post-processing resource.
type RulesConfig struct {
	Version        string         `yaml:"version" json:"version"`
	DomainKeywords []string       `yaml:"domainKeywords" json:"domainKeywords"`
	Greetings      []string       `yaml:"greetings" json:"greetings"`
	ProductPhrases []string       `yaml:"productPhrases" json:"productPhrases"`
	ProductNouns   []string       `yaml:"productNouns" json:"productNouns"`
	Facts          []FactTopic    `yaml:"facts" json:"facts"`
	Profanity      []Substitution `yaml:"profanity" json:"profanity"`
}

type RepliesConfig struct {
	SystemPrompt string `yaml:"systemPrompt" json:"systemPrompt"`
	Greeting     string `yaml:"greeting" json:"greeting"`
	Start        string `yaml:"start" json:"start"`
	Help         string `yaml:"help" json:"help"`
	OutOfDomain  string `yaml:"outOfDomain" json:"outOfDomain"`
	Apology      string `yaml:"apology" json:"apology"`
	Fallback     string `yaml:"fallback" json:"fallback"`
	FetchError   string `yaml:"fetchError" json:"fetchError"`
	SearchError  string `yaml:"searchError" json:"searchError"`
}

type RateLimitConfig struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Burst     int     `yaml:"burst" json:"burst"`
	PerMinute float64 `yaml:"perMinute" json:"perMinute"`
	MaxWaitMs int     `yaml:"maxWaitMs" json:"maxWaitMs"`
}

type DedupConfig struct {
	Backend       string `yaml:"backend" json:"backend"` // none | memory | sqlite | redis
	TTLSeconds    int    `yaml:"ttlSeconds" json:"ttlSeconds"`
	SQLitePath    string `yaml:"sqlitePath,omitempty" json:"sqlitePath,omitempty"`
	RedisAddr     string `yaml:"redisAddr,omitempty" json:"redisAddr,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty" json:"redisPassword,omitempty"`
	RedisDB       int    `yaml:"redisDb,omitempty" json:"redisDb,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Load reads a YAML config file on top of the defaults, then applies
// environment overrides and validates the result. An empty path skips the
// file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		path = expandPath(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}

		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Dedup.SQLitePath = expandPath(cfg.Dedup.SQLitePath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays the deployment environment variables onto cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	str(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	str(&cfg.Telegram.WebhookSecret, "WEBHOOK_SECRET")
	str(&cfg.Telegram.PublicURL, "WEBHOOK_URL")
	str(&cfg.Completion.APIKey, "COMPLETION_API_KEY", "FIREWORKS_API_KEY")
	str(&cfg.Completion.APIBase, "COMPLETION_API_BASE")
	str(&cfg.Completion.Model, "MODEL")
	str(&cfg.General.LogLevel, "LOG_LEVEL")
	str(&cfg.Dedup.RedisAddr, "REDIS_ADDR")

	if v, ok := lookup("MAX_TOKENS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_TOKENS: %w", err)
		}
		cfg.Completion.MaxTokens = n
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = n
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.Path, "/") {
		errs = append(errs, "server.path must start with /")
	}
	if cfg.Server.HandlerTimeoutSeconds < 1 {
		errs = append(errs, "server.handlerTimeoutSeconds must be >= 1")
	}

	switch cfg.Telegram.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
	default:
		errs = append(errs, "telegram.parseMode must be one of: \"\", Markdown, MarkdownV2, HTML")
	}

	if cfg.Completion.APIBase == "" {
		errs = append(errs, "completion.apiBase is required")
	}
	if cfg.Completion.Model == "" {
		errs = append(errs, "completion.model is required")
	}
	if cfg.Completion.MaxTokens < 1 || cfg.Completion.MaxTokens > 32768 {
		errs = append(errs, "completion.maxTokens must be between 1 and 32768")
	}
	if cfg.Completion.Temperature < 0 || cfg.Completion.Temperature > 2 {
		errs = append(errs, "completion.temperature must be between 0 and 2")
	}
	if cfg.Completion.TimeoutSeconds < 1 {
		errs = append(errs, "completion.timeoutSeconds must be >= 1")
	}

	if len(cfg.Enricher.AllowedHosts) == 0 {
		errs = append(errs, "enricher.allowedHosts must not be empty")
	}
	for _, h := range cfg.Enricher.AllowedHosts {
		if strings.TrimSpace(h) == "" || strings.ContainsAny(h, "/:@ ") {
			errs = append(errs, fmt.Sprintf("enricher.allowedHosts: invalid host %q", h))
		}
	}
	if cfg.Enricher.TimeoutMs < 1 || cfg.Enricher.TimeoutMs > 10000 {
		errs = append(errs, "enricher.timeoutMs must be between 1 and 10000")
	}
	if cfg.Enricher.MaxURLs < 1 {
		errs = append(errs, "enricher.maxUrls must be >= 1")
	}
	if cfg.Enricher.MaxConcurrency < 1 {
		errs = append(errs, "enricher.maxConcurrency must be >= 1")
	}
	switch cfg.Enricher.FetchMode {
	case "http", "browser":
	default:
		errs = append(errs, "enricher.fetchMode must be one of: http, browser")
	}
	if cfg.Enricher.Search.Enabled {
		if cfg.Enricher.Search.BaseURL == "" {
			errs = append(errs, "enricher.search.baseUrl is required when search is enabled")
		}
		if cfg.Enricher.Search.Item == "" {
			errs = append(errs, "enricher.search.item is required when search is enabled")
		}
		if cfg.Enricher.Search.MaxResults < 1 {
			errs = append(errs, "enricher.search.maxResults must be >= 1")
		}
	}

	if len(cfg.Rules.DomainKeywords) == 0 {
		errs = append(errs, "rules.domainKeywords must not be empty")
	}
	errs = append(errs, validateProfanity(cfg.Rules.Profanity)...)

	for _, r := range []struct{ name, value string }{
		{"replies.greeting", cfg.Replies.Greeting},
		{"replies.outOfDomain", cfg.Replies.OutOfDomain},
		{"replies.apology", cfg.Replies.Apology},
		{"replies.fallback", cfg.Replies.Fallback},
		{"replies.fetchError", cfg.Replies.FetchError},
	} {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, r.name+" must not be empty")
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Burst < 1 {
			errs = append(errs, "rateLimit.burst must be >= 1")
		}
		if cfg.RateLimit.PerMinute <= 0 {
			errs = append(errs, "rateLimit.perMinute must be > 0")
		}
	}

	switch cfg.Dedup.Backend {
	case "none", "":
	case "memory":
	case "sqlite":
		if cfg.Dedup.SQLitePath == "" {
			errs = append(errs, "dedup.sqlitePath is required for the sqlite backend")
		}
	case "redis":
		if cfg.Dedup.RedisAddr == "" {
			errs = append(errs, "dedup.redisAddr is required for the redis backend")
		}
	default:
		errs = append(errs, "dedup.backend must be one of: none, memory, sqlite, redis")
	}
	if cfg.Dedup.Backend != "none" && cfg.Dedup.Backend != "" && cfg.Dedup.TTLSeconds < 1 {
		errs = append(errs, "dedup.ttlSeconds must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// validateProfanity rejects substitutions whose replacement reintroduces a
// disallowed term; without that the pass would not be idempotent.
func validateProfanity(subs []Substitution) []string {
	var errs []string
	for i, s := range subs {
		if strings.TrimSpace(s.Term) == "" {
			errs = append(errs, fmt.Sprintf("rules.profanity[%d].term must not be empty", i))
			continue
		}
		repl := strings.ToLower(s.Replacement)
		for _, other := range subs {
			t := strings.ToLower(strings.TrimSpace(other.Term))
			if t != "" && strings.Contains(repl, t) {
				errs = append(errs, fmt.Sprintf("rules.profanity[%d].replacement contains disallowed term %q", i, other.Term))
			}
		}
	}
	return errs
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

func (c *Config) HandlerTimeout() time.Duration {
	return time.Duration(c.Server.HandlerTimeoutSeconds) * time.Second
}

func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.Completion.TimeoutSeconds) * time.Second
}

func (c *Config) EnrichTimeout() time.Duration {
	return time.Duration(c.Enricher.TimeoutMs) * time.Millisecond
}

func (c *Config) RateLimitMaxWait() time.Duration {
	return time.Duration(c.RateLimit.MaxWaitMs) * time.Millisecond
}
