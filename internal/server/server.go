// Package server provides the MCP server core: wiring of the fetchers and
// metadata cache, tool registration, and request routing over the selected
// transport.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/blogsmith/blog-mcp-server/internal/cache"
	"github.com/blogsmith/blog-mcp-server/internal/config"
	"github.com/blogsmith/blog-mcp-server/internal/fetcher"
	"github.com/blogsmith/blog-mcp-server/internal/index"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

const (
	serverName    = "blog-mcp-server"
	serverVersion = "1.0.0"
)

// Server is the MCP server instance with all its dependencies. It routes
// tool calls through the per-repository metadata cache and the GitHub
// fetchers, and serves the MCP protocol over the configured transport.
type Server struct {
	config    *config.Config
	store     *cache.Store
	raw       *fetcher.RawFetcher
	github    *fetcher.GitHubClient
	logger    *slog.Logger
	mcpServer *server.MCPServer
	transport TransportStarter

	// repos is the resolved repository allow-list, set by Initialize.
	repos []string

	rngMu sync.Mutex
	rng   *rand.Rand

	initialized bool
}

// NewServer creates a new MCP server instance with the provided
// configuration and logger. The server is not started until Start() is
// called; call Initialize() and RegisterTools() first.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.ValidateTransport(); err != nil {
		return nil, fmt.Errorf("invalid transport configuration: %w", err)
	}

	mcpServer := server.NewMCPServer(serverName, serverVersion)

	// The fetcher layer logs through zerolog on stderr.
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	httpClient := fetcher.NewHTTPClient(
		time.Duration(cfg.FetchTimeout)*time.Second,
		cfg.MaxRetries,
		cfg.MaxConcurrent,
		cfg.GitHubToken,
	)
	raw := fetcher.NewRawFetcher(httpClient, cfg.RepoOwner, cfg.Branch, cfg.BacklinksPath, zl)
	github := fetcher.NewGitHubClient(httpClient, cfg.RepoOwner, zl)

	var storeOpts []cache.Option
	if cfg.CacheDir != "" {
		snaps, err := cache.NewSnapshots(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot store: %w", err)
		}
		storeOpts = append(storeOpts, cache.WithSnapshots(snaps))
	}
	store := cache.NewStore(raw, time.Duration(cfg.CacheTTL)*time.Second, logger, storeOpts...)

	transport, err := NewTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return &Server{
		config:    cfg,
		store:     store,
		raw:       raw,
		github:    github,
		logger:    logger,
		mcpServer: mcpServer,
		transport: transport,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Initialize resolves the repository allow-list and warms the default
// repository's metadata. A wildcard repository configuration is expanded via
// the GitHub API; on failure the server degrades to the default repository
// instead of refusing to start.
func (s *Server) Initialize(ctx context.Context) error {
	if s.initialized {
		return fmt.Errorf("server already initialized")
	}

	s.logger.Info("Starting server initialization", "owner", s.config.RepoOwner)

	if s.config.WildcardRepos() {
		names, err := s.github.ListRepos(ctx)
		if err != nil {
			s.logger.Warn("Failed to expand wildcard repository list, falling back to default repo",
				"error", err, "default_repo", s.config.DefaultRepo)
			s.repos = []string{s.config.DefaultRepo}
		} else {
			s.repos = names
			s.logger.Info("Expanded wildcard repository list", "count", len(names))
		}
	} else {
		s.repos = append([]string(nil), s.config.Repos...)
	}

	// The default repository is always queryable, even when the configured
	// allow-list omits it.
	if !containsRepo(s.repos, s.config.DefaultRepo) {
		s.repos = append(s.repos, s.config.DefaultRepo)
	}

	// Warm the default repository. A cold upstream should not block
	// startup; tool calls will retry through the cache.
	if _, err := s.store.Get(ctx, s.config.DefaultRepo); err != nil {
		s.logger.Warn("Failed to warm metadata for default repository",
			"repo", s.config.DefaultRepo, "error", err)
	} else {
		s.logger.Info("Warmed metadata for default repository", "repo", s.config.DefaultRepo)
	}

	s.initialized = true
	return nil
}

// Repos returns the resolved repository allow-list.
func (s *Server) Repos() []string {
	return append([]string(nil), s.repos...)
}

// resolveRepo maps an optional repo argument to a repository name, checking
// it against the allow-list. An empty argument selects the default repo.
func (s *Server) resolveRepo(repo string) (string, error) {
	if repo == "" {
		return s.config.DefaultRepo, nil
	}
	if containsRepo(s.repos, repo) {
		return repo, nil
	}
	return "", fmt.Errorf("unknown repository: %s (allowed: %v)", repo, s.repos)
}

func containsRepo(repos []string, repo string) bool {
	for _, r := range repos {
		if r == repo {
			return true
		}
	}
	return false
}

// randomPost picks a uniformly random post under the server's RNG lock.
func (s *Server) randomPost(meta *index.Metadata) (index.Entry, error) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return meta.Random(s.rng)
}

// Start starts the MCP server on the configured transport. Blocking; runs
// until the transport stops or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	if !s.initialized {
		return fmt.Errorf("server not initialized, call Initialize() first")
	}

	s.logger.Info("Starting MCP server", "transport", s.transport.Type())
	if addr := s.config.GetTransportAddress(); addr != "" {
		s.logger.Info("Transport address", "address", addr)
	}

	if err := s.transport.Start(ctx, s.mcpServer); err != nil {
		s.logger.Error("MCP server error", "error", err, "transport", s.transport.Type())
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and its transport.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server", "transport", s.transport.Type())

	if err := s.transport.Shutdown(ctx); err != nil {
		s.logger.Error("Error during transport shutdown", "error", err)
		return fmt.Errorf("transport shutdown error: %w", err)
	}

	s.logger.Info("Server shutdown complete")
	return nil
}
