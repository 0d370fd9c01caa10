// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Endpoint is one reasoning-service endpoint. Internal endpoints (LAN or
// loopback) get a shorter request timeout than external ones.
type Endpoint struct {
	URL      string `yaml:"url"`
	Internal bool   `yaml:"internal"`
}

// ReasoningConfig holds reasoning-service connectivity and retry tuning.
type ReasoningConfig struct {
	Endpoints       []Endpoint    `yaml:"endpoints"`
	Model           string        `yaml:"model"`
	APIKey          string        `yaml:"api_key"`
	InternalTimeout time.Duration `yaml:"internal_timeout"` // default 15s
	ExternalTimeout time.Duration `yaml:"external_timeout"` // default 25s
	MaxAttempts     int           `yaml:"max_attempts"`     // attempts across endpoints, default 2
	Cooldown        time.Duration `yaml:"cooldown"`         // breaker open window, default 300s
	CooldownAllOpen time.Duration `yaml:"cooldown_all_open"` // window when every endpoint is open, default 30s
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`   // default 5
	RateLimitBurst  int           `yaml:"rate_limit_burst"` // default 10
}

// CacheConfig tunes the trained-plan cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`         // store reload interval, default 120s
	MaxEntries int           `yaml:"max_entries"` // entries loaded per refresh, default 300
}

// SimilarityConfig holds the empirically tuned plan-reuse thresholds.
// The values come from the original corpus; treat them as knobs, not truths.
type SimilarityConfig struct {
	Accept      float64 `yaml:"accept"`        // default 0.88
	Relaxed     float64 `yaml:"relaxed"`       // default 0.70, forced-data mode only
	ShortRunes  int     `yaml:"short_runes"`   // questions shorter than this need an exact match, default 4
	MinConfidence float64 `yaml:"min_confidence"` // oracle confidence gate in conversational mode, default 0.8
}

// Config holds the configuration for the pipeline and its backing stores.
type Config struct {
	MetaDBPath   string // path to the SQLite metastore (catalog, plans, exemplars)
	WarehouseDSN string // go-ora DSN for the Oracle-dialect backend (optional)
	LogLevel     string // debug, info, warn, error (default "info")

	DefaultMode string // "conversational" (default) or "forced-data"

	// DomainKeywords widen the relaxed similarity path: a near-miss cached
	// plan is still accepted when the question shares one of these words.
	DomainKeywords []string

	// DefaultLimit and MaxLimit clamp every compiled row limit.
	DefaultLimit int // default 50
	MaxLimit     int // default 200

	// BroadenFreshBudget gives the broadened regeneration a fresh oracle
	// attempt budget instead of whatever the first pass left over.
	BroadenFreshBudget bool

	Reasoning  ReasoningConfig
	Cache      CacheConfig
	Similarity SimilarityConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.MetaDBPath == "" {
		return fmt.Errorf("META_DB_PATH must not be empty")
	}
	if c.DefaultMode != "conversational" && c.DefaultMode != "forced-data" {
		return fmt.Errorf("invalid DEFAULT_MODE %q: must be \"conversational\" or \"forced-data\"", c.DefaultMode)
	}
	if c.DefaultLimit <= 0 || c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("DEFAULT_LIMIT (%d) must be in [1, MAX_LIMIT=%d]", c.DefaultLimit, c.MaxLimit)
	}
	if c.Similarity.Relaxed > c.Similarity.Accept {
		return fmt.Errorf("SIMILARITY_RELAXED (%v) must not exceed SIMILARITY_ACCEPT (%v)",
			c.Similarity.Relaxed, c.Similarity.Accept)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables, applying
// defaults for anything unset. An optional YAML overlay (CONFIG_FILE) can
// provide endpoint lists and tuning blocks that are awkward as env vars.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:   os.Getenv("META_DB_PATH"),
		WarehouseDSN: os.Getenv("WAREHOUSE_DSN"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		DefaultMode:  os.Getenv("DEFAULT_MODE"),
		Reasoning: ReasoningConfig{
			Model:  os.Getenv("REASONING_MODEL"),
			APIKey: os.Getenv("REASONING_API_KEY"),
		},
		BroadenFreshBudget: parseBoolEnvDefault("BROADEN_FRESH_BUDGET", true),
	}

	if v := os.Getenv("REASONING_URLS"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			cfg.Reasoning.Endpoints = append(cfg.Reasoning.Endpoints, Endpoint{
				URL:      raw,
				Internal: isInternalURL(raw),
			})
		}
	}

	if v := os.Getenv("DOMAIN_KEYWORDS"); v != "" {
		for _, kw := range strings.Split(v, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				cfg.DomainKeywords = append(cfg.DomainKeywords, strings.ToLower(kw))
			}
		}
	}

	if v := os.Getenv("DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultLimit = n
		}
	}
	if v := os.Getenv("MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxLimit = n
		}
	}
	if v := os.Getenv("PLAN_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}

	// Optional YAML overlay for structured blocks.
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyOverlay(cfg, path); err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)

	if len(cfg.Reasoning.Endpoints) == 0 {
		cfg.Warnings = append(cfg.Warnings,
			"no reasoning endpoints configured (REASONING_URLS) — pipeline will answer from cache and keywords only")
	}
	if cfg.WarehouseDSN == "" {
		cfg.Warnings = append(cfg.Warnings,
			"WAREHOUSE_DSN not set — oracle-dialect plans cannot be executed")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlay is the YAML file shape. Only the blocks present override env.
type overlay struct {
	Reasoning  *ReasoningConfig  `yaml:"reasoning"`
	Cache      *CacheConfig      `yaml:"cache"`
	Similarity *SimilarityConfig `yaml:"similarity"`
	Keywords   []string          `yaml:"domain_keywords"`
}

func applyOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if o.Reasoning != nil {
		cfg.Reasoning = *o.Reasoning
	}
	if o.Cache != nil {
		cfg.Cache = *o.Cache
	}
	if o.Similarity != nil {
		cfg.Similarity = *o.Similarity
	}
	if len(o.Keywords) > 0 {
		cfg.DomainKeywords = o.Keywords
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "datachat_meta.sqlite"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = "conversational"
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.MaxLimit == 0 {
		cfg.MaxLimit = 200
	}

	r := &cfg.Reasoning
	if r.Model == "" {
		r.Model = "llama3.1-gguf"
	}
	if r.InternalTimeout == 0 {
		r.InternalTimeout = 15 * time.Second
	}
	if r.ExternalTimeout == 0 {
		r.ExternalTimeout = 25 * time.Second
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 2
	}
	if r.Cooldown == 0 {
		r.Cooldown = 300 * time.Second
	}
	if r.CooldownAllOpen == 0 {
		r.CooldownAllOpen = 30 * time.Second
	}
	if r.RateLimitRPS == 0 {
		r.RateLimitRPS = 5
	}
	if r.RateLimitBurst == 0 {
		r.RateLimitBurst = 10
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 120 * time.Second
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 300
	}

	s := &cfg.Similarity
	if s.Accept == 0 {
		s.Accept = 0.88
	}
	if s.Relaxed == 0 {
		s.Relaxed = 0.70
	}
	if s.ShortRunes == 0 {
		s.ShortRunes = 4
	}
	if s.MinConfidence == 0 {
		s.MinConfidence = 0.8
	}
}

// isInternalURL reports whether the endpoint is loopback or RFC1918.
func isInternalURL(u string) bool {
	for _, marker := range []string{"127.0.0.1", "localhost", "192.168.", "10.", "172.16."} {
		if strings.Contains(u, "://"+marker) || strings.Contains(u, "://[::1]") {
			return true
		}
	}
	return false
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Env vars take precedence over .env entries.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
