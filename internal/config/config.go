// Package config provides configuration management for the blog MCP server.
// It supports loading configuration from multiple sources: command-line flags,
// config files, and environment variables, with proper precedence handling.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the blog MCP server.
// It covers the GitHub source settings, caching, tool limits, and the
// transport the server listens on.
type Config struct {
	// Server settings
	LogLevel  string // Log level: debug, info, warn, error (default: info)
	Transport string // Transport: stdio, sse, http (default: stdio)
	Host      string // Host for network transports (default: localhost)
	Port      int    // Port for network transports (default: 8080)

	// GitHub source settings
	RepoOwner     string   // GitHub owner of the blog repositories (default: idvorkin)
	Repos         []string // Allowed repositories; "*" expands to all owner repos (default: idvorkin.github.io)
	DefaultRepo   string   // Repository used when a tool call names none (default: idvorkin.github.io)
	Branch        string   // Branch raw files are fetched from (default: master)
	BacklinksPath string   // Path of the metadata index inside each repo (default: back-links.json)
	BlogURL       string   // Public base URL of the rendered blog (default: https://idvork.in)
	GitHubToken   string   // Optional token for authenticated GitHub requests

	// Fetching settings
	FetchTimeout  int // Timeout for HTTP fetches in seconds (default: 30)
	MaxConcurrent int // Maximum concurrent fetches (default: 5)
	MaxRetries    int // Retries for transient fetch failures (default: 3)

	// Cache settings
	CacheTTL int    // Metadata cache TTL in seconds (default: 300)
	CacheDir string // Directory for disk snapshots (default: empty, no persistence)

	// Tool limits
	MaxSearchResults int // Maximum search results per call (default: 20)
	MaxRecentPosts   int // Maximum recent posts per call (default: 50)
}

// NewConfig creates a new Config with default values for all optional
// parameters, so the server can run without explicit configuration.
func NewConfig() *Config {
	return &Config{
		// Server defaults
		LogLevel:  "info",
		Transport: "stdio",
		Host:      "localhost",
		Port:      8080,

		// GitHub source defaults
		RepoOwner:     "idvorkin",
		Repos:         []string{"idvorkin.github.io"},
		DefaultRepo:   "idvorkin.github.io",
		Branch:        "master",
		BacklinksPath: "back-links.json",
		BlogURL:       "https://idvork.in",

		// Fetching defaults
		FetchTimeout:  30,
		MaxConcurrent: 5,
		MaxRetries:    3,

		// Cache defaults
		CacheTTL: 300,
		CacheDir: "",

		// Tool limit defaults
		MaxSearchResults: 20,
		MaxRecentPosts:   50,
	}
}

// Load loads configuration from environment variables with defaults.
// Returns a Config with values from environment variables or defaults.
func Load() (*Config, error) {
	cfg := NewConfig()
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file, with environment
// variables as fallback, and defaults as final fallback.
// The precedence order is: config file > environment variables > defaults.
func LoadFromFile(configPath string) (*Config, error) {
	cfg := NewConfig()
	loadFromEnv(cfg)

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	applyFile(cfg, v)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithFlags loads configuration from command-line flags, config file,
// environment variables, and defaults.
// The precedence order is: flags > config file > environment variables > defaults.
func LoadWithFlags(configPath string, flags map[string]interface{}) (*Config, error) {
	cfg := NewConfig()
	loadFromEnv(cfg)

	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		applyFile(cfg, v)
	}

	applyFlags(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile overrides cfg with values present in the config file.
func applyFile(cfg *Config, v *viper.Viper) {
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("transport") {
		cfg.Transport = v.GetString("transport")
	}
	if v.IsSet("host") {
		cfg.Host = v.GetString("host")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetInt("port")
	}
	if v.IsSet("repo_owner") {
		cfg.RepoOwner = v.GetString("repo_owner")
	}
	if v.IsSet("repos") {
		cfg.Repos = v.GetStringSlice("repos")
	}
	if v.IsSet("default_repo") {
		cfg.DefaultRepo = v.GetString("default_repo")
	}
	if v.IsSet("branch") {
		cfg.Branch = v.GetString("branch")
	}
	if v.IsSet("backlinks_path") {
		cfg.BacklinksPath = v.GetString("backlinks_path")
	}
	if v.IsSet("blog_url") {
		cfg.BlogURL = v.GetString("blog_url")
	}
	if v.IsSet("github_token") {
		cfg.GitHubToken = v.GetString("github_token")
	}
	if v.IsSet("fetch_timeout") {
		cfg.FetchTimeout = v.GetInt("fetch_timeout")
	}
	if v.IsSet("max_concurrent") {
		cfg.MaxConcurrent = v.GetInt("max_concurrent")
	}
	if v.IsSet("max_retries") {
		cfg.MaxRetries = v.GetInt("max_retries")
	}
	if v.IsSet("cache_ttl") {
		cfg.CacheTTL = v.GetInt("cache_ttl")
	}
	if v.IsSet("cache_dir") {
		cfg.CacheDir = v.GetString("cache_dir")
	}
	if v.IsSet("max_search_results") {
		cfg.MaxSearchResults = v.GetInt("max_search_results")
	}
	if v.IsSet("max_recent_posts") {
		cfg.MaxRecentPosts = v.GetInt("max_recent_posts")
	}
}

// applyFlags overrides cfg with explicitly set command-line flags.
func applyFlags(cfg *Config, flags map[string]interface{}) {
	if val, ok := flags["log_level"].(string); ok && val != "" {
		cfg.LogLevel = val
	}
	if val, ok := flags["transport"].(string); ok && val != "" {
		cfg.Transport = val
	}
	if val, ok := flags["host"].(string); ok && val != "" {
		cfg.Host = val
	}
	if val, ok := flags["port"].(int); ok && val != 0 {
		cfg.Port = val
	}
	if val, ok := flags["repo_owner"].(string); ok && val != "" {
		cfg.RepoOwner = val
	}
	if val, ok := flags["repos"].([]string); ok && len(val) > 0 {
		cfg.Repos = val
	}
	if val, ok := flags["default_repo"].(string); ok && val != "" {
		cfg.DefaultRepo = val
	}
	if val, ok := flags["cache_ttl"].(int); ok && val != 0 {
		cfg.CacheTTL = val
	}
	if val, ok := flags["cache_dir"].(string); ok && val != "" {
		cfg.CacheDir = val
	}
}

// loadFromEnv loads configuration from environment variables into the
// provided Config.
func loadFromEnv(cfg *Config) {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	if val := os.Getenv("TRANSPORT"); val != "" {
		cfg.Transport = val
	}
	if val := os.Getenv("HOST"); val != "" {
		cfg.Host = val
	}
	if val := os.Getenv("PORT"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			cfg.Port = intVal
		}
	}
	if val := os.Getenv("GITHUB_REPO_OWNER"); val != "" {
		cfg.RepoOwner = val
	}
	if val := os.Getenv("GITHUB_REPOS"); val != "" {
		cfg.Repos = splitRepos(val)
	}
	if val := os.Getenv("DEFAULT_REPO"); val != "" {
		cfg.DefaultRepo = val
	}
	if val := os.Getenv("GITHUB_BRANCH"); val != "" {
		cfg.Branch = val
	}
	if val := os.Getenv("BACKLINKS_PATH"); val != "" {
		cfg.BacklinksPath = val
	}
	if val := os.Getenv("BLOG_URL"); val != "" {
		cfg.BlogURL = val
	}
	if val := os.Getenv("GITHUB_TOKEN"); val != "" {
		cfg.GitHubToken = val
	}
	if val := os.Getenv("FETCH_TIMEOUT"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			cfg.FetchTimeout = intVal
		}
	}
	if val := os.Getenv("MAX_CONCURRENT"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			cfg.MaxConcurrent = intVal
		}
	}
	if val := os.Getenv("MAX_RETRIES"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			cfg.MaxRetries = intVal
		}
	}
	if val := os.Getenv("CACHE_TTL"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			cfg.CacheTTL = intVal
		}
	}
	if val := os.Getenv("CACHE_DIR"); val != "" {
		cfg.CacheDir = val
	}
	if val := os.Getenv("MAX_SEARCH_RESULTS"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			cfg.MaxSearchResults = intVal
		}
	}
	if val := os.Getenv("MAX_RECENT_POSTS"); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			cfg.MaxRecentPosts = intVal
		}
	}
}

// splitRepos parses a comma-separated repository list from the environment.
func splitRepos(val string) []string {
	parts := strings.Split(val, ",")
	repos := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			repos = append(repos, p)
		}
	}
	return repos
}

// WildcardRepos reports whether the repository list is the "*" wildcard,
// meaning all of the owner's repositories are allowed.
func (c *Config) WildcardRepos() bool {
	return len(c.Repos) == 1 && c.Repos[0] == "*"
}

// Validate validates all configuration values and returns descriptive errors
// for any invalid settings. This should be called after loading configuration
// to ensure the server doesn't start with invalid configuration.
func (c *Config) Validate() error {
	var errors []string

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel))
	}

	if err := c.ValidateTransport(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.RepoOwner == "" {
		errors = append(errors, "repo_owner cannot be empty")
	}
	if len(c.Repos) == 0 {
		errors = append(errors, "repos cannot be empty")
	}
	if c.DefaultRepo == "" {
		errors = append(errors, "default_repo cannot be empty")
	}
	if c.Branch == "" {
		errors = append(errors, "branch cannot be empty")
	}
	if c.BacklinksPath == "" {
		errors = append(errors, "backlinks_path cannot be empty")
	}

	if c.BlogURL == "" {
		errors = append(errors, "blog_url cannot be empty")
	} else if !strings.HasPrefix(c.BlogURL, "http://") && !strings.HasPrefix(c.BlogURL, "https://") {
		errors = append(errors, fmt.Sprintf("blog_url must start with http:// or https://, got: %s", c.BlogURL))
	}

	if c.FetchTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("fetch_timeout must be positive, got: %d", c.FetchTimeout))
	}
	if c.MaxConcurrent <= 0 {
		errors = append(errors, fmt.Sprintf("max_concurrent must be positive, got: %d", c.MaxConcurrent))
	}
	if c.MaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("max_retries cannot be negative, got: %d", c.MaxRetries))
	}
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("cache_ttl must be positive, got: %d", c.CacheTTL))
	}
	if c.MaxSearchResults <= 0 {
		errors = append(errors, fmt.Sprintf("max_search_results must be positive, got: %d", c.MaxSearchResults))
	}
	if c.MaxRecentPosts <= 0 {
		errors = append(errors, fmt.Sprintf("max_recent_posts must be positive, got: %d", c.MaxRecentPosts))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}

// ValidateTransport checks the transport selection and its network settings.
func (c *Config) ValidateTransport() error {
	switch c.Transport {
	case "stdio":
		return nil
	case "sse", "http":
		if c.Host == "" {
			return fmt.Errorf("host cannot be empty for %s transport", c.Transport)
		}
		if c.Port < 1 || c.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got: %d", c.Port)
		}
		return nil
	default:
		return fmt.Errorf("invalid transport: %s (must be one of: stdio, sse, http)", c.Transport)
	}
}

// GetTransportType returns the configured transport name.
func (c *Config) GetTransportType() string {
	return c.Transport
}

// GetPort returns the configured port for network transports.
func (c *Config) GetPort() int {
	return c.Port
}

// GetTransportAddress returns the host:port address for network transports.
// Returns "" for the stdio transport, which has no address.
func (c *Config) GetTransportAddress() string {
	if c.Transport == "stdio" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
