package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %s, want info", cfg.LogLevel)
	}
	if cfg.Transport != "stdio" {
		t.Errorf("Transport: got %s, want stdio", cfg.Transport)
	}
	if cfg.RepoOwner != "idvorkin" {
		t.Errorf("RepoOwner: got %s, want idvorkin", cfg.RepoOwner)
	}
	if len(cfg.Repos) != 1 || cfg.Repos[0] != "idvorkin.github.io" {
		t.Errorf("Repos: got %v", cfg.Repos)
	}
	if cfg.DefaultRepo != "idvorkin.github.io" {
		t.Errorf("DefaultRepo: got %s", cfg.DefaultRepo)
	}
	if cfg.Branch != "master" {
		t.Errorf("Branch: got %s, want master", cfg.Branch)
	}
	if cfg.BacklinksPath != "back-links.json" {
		t.Errorf("BacklinksPath: got %s", cfg.BacklinksPath)
	}
	if cfg.BlogURL != "https://idvork.in" {
		t.Errorf("BlogURL: got %s", cfg.BlogURL)
	}
	if cfg.CacheTTL != 300 {
		t.Errorf("CacheTTL: got %d, want 300", cfg.CacheTTL)
	}
	if cfg.MaxSearchResults != 20 {
		t.Errorf("MaxSearchResults: got %d, want 20", cfg.MaxSearchResults)
	}
	if cfg.MaxRecentPosts != 50 {
		t.Errorf("MaxRecentPosts: got %d, want 50", cfg.MaxRecentPosts)
	}
}

func TestDefaultsValidate(t *testing.T) {
	if err := NewConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GITHUB_REPO_OWNER", "someone")
	t.Setenv("GITHUB_REPOS", "blog, notes ,wiki")
	t.Setenv("CACHE_TTL", "60")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("GITHUB_TOKEN", "ghp_secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.RepoOwner != "someone" {
		t.Errorf("RepoOwner: got %s", cfg.RepoOwner)
	}
	want := []string{"blog", "notes", "wiki"}
	if len(cfg.Repos) != len(want) {
		t.Fatalf("Repos: got %v, want %v", cfg.Repos, want)
	}
	for i := range want {
		if cfg.Repos[i] != want[i] {
			t.Errorf("Repos[%d]: got %s, want %s", i, cfg.Repos[i], want[i])
		}
	}
	if cfg.CacheTTL != 60 {
		t.Errorf("CacheTTL: got %d, want 60", cfg.CacheTTL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %s, want debug", cfg.LogLevel)
	}
	if cfg.GitHubToken != "ghp_secret" {
		t.Errorf("GitHubToken not loaded from env")
	}
}

func TestLoadInvalidEnvInt(t *testing.T) {
	t.Setenv("CACHE_TTL", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CacheTTL != 300 {
		t.Errorf("bad int should keep default: got %d", cfg.CacheTTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `log_level: warn
repo_owner: fileowner
repos:
  - alpha
  - beta
cache_ttl: 120
transport: http
port: 9090
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel: got %s, want warn", cfg.LogLevel)
	}
	if cfg.RepoOwner != "fileowner" {
		t.Errorf("RepoOwner: got %s", cfg.RepoOwner)
	}
	if len(cfg.Repos) != 2 || cfg.Repos[0] != "alpha" || cfg.Repos[1] != "beta" {
		t.Errorf("Repos: got %v", cfg.Repos)
	}
	if cfg.CacheTTL != 120 {
		t.Errorf("CacheTTL: got %d, want 120", cfg.CacheTTL)
	}
	if cfg.Transport != "http" || cfg.Port != 9090 {
		t.Errorf("transport settings: got %s:%d", cfg.Transport, cfg.Port)
	}
	// Unset keys keep their defaults.
	if cfg.Branch != "master" {
		t.Errorf("Branch: got %s, want master", cfg.Branch)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestFileOverridesEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: error\n"), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("file should override env: got %s", cfg.LogLevel)
	}
}

func TestLoadWithFlagsPrecedence(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\ncache_ttl: 120\n"), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg, err := LoadWithFlags(path, map[string]interface{}{
		"log_level": "error",
	})
	if err != nil {
		t.Fatalf("LoadWithFlags failed: %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("flag should win: got %s", cfg.LogLevel)
	}
	if cfg.CacheTTL != 120 {
		t.Errorf("file value should apply where no flag is set: got %d", cfg.CacheTTL)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := NewConfig()
	cfg.LogLevel = "loud"
	cfg.RepoOwner = ""
	cfg.CacheTTL = 0
	cfg.BlogURL = "idvork.in"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"invalid log level", "repo_owner", "cache_ttl", "blog_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}

func TestValidateTransport(t *testing.T) {
	tests := []struct {
		name      string
		transport string
		host      string
		port      int
		wantErr   bool
	}{
		{"stdio ignores network settings", "stdio", "", 0, false},
		{"sse valid", "sse", "localhost", 8080, false},
		{"http valid", "http", "0.0.0.0", 3000, false},
		{"unknown transport", "tcp", "localhost", 8080, true},
		{"sse missing host", "sse", "", 8080, true},
		{"http bad port", "http", "localhost", 70000, true},
		{"http zero port", "http", "localhost", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Transport = tt.transport
			cfg.Host = tt.host
			cfg.Port = tt.port

			err := cfg.ValidateTransport()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransport() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetTransportAddress(t *testing.T) {
	cfg := NewConfig()
	cfg.Transport = "sse"
	cfg.Host = "127.0.0.1"
	cfg.Port = 3001

	if got := cfg.GetTransportAddress(); got != "127.0.0.1:3001" {
		t.Errorf("GetTransportAddress: got %s", got)
	}
}

func TestWildcardRepos(t *testing.T) {
	cfg := NewConfig()
	if cfg.WildcardRepos() {
		t.Error("default repos should not be wildcard")
	}

	cfg.Repos = []string{"*"}
	if !cfg.WildcardRepos() {
		t.Error("single * should be wildcard")
	}

	cfg.Repos = []string{"*", "blog"}
	if cfg.WildcardRepos() {
		t.Error("mixed list is not a wildcard")
	}
}
