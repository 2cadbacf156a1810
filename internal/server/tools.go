package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blogsmith/blog-mcp-server/internal/cache"
	"github.com/blogsmith/blog-mcp-server/internal/fetcher"
	"github.com/blogsmith/blog-mcp-server/internal/index"
	"github.com/blogsmith/blog-mcp-server/internal/parser"
	"github.com/mark3labs/mcp-go/mcp"
)

// Limits for the recent-changes tool.
const (
	defaultChangeDays    = 7
	maxChangeDays        = 90
	defaultChangeCount   = 10
	maxChangeCount       = 50
	maxPatchBytesPerFile = 4000
)

// RegisterTools registers all MCP tools with the server.
// Call after Initialize() and before Start().
func (s *Server) RegisterTools() error {
	if !s.initialized {
		return fmt.Errorf("server not initialized, call Initialize() first")
	}

	s.logger.Info("Registering MCP tools")

	repoArg := mcp.WithString("repo",
		mcp.Description("Repository to query (default: the configured default repository)"),
	)

	s.mcpServer.AddTool(mcp.NewTool(
		"list_repos",
		mcp.WithDescription("List the blog repositories this server can query."),
	), s.handleListRepos)

	s.mcpServer.AddTool(mcp.NewTool(
		"blog_info",
		mcp.WithDescription("List every blog post with its title, URL, and markdown path."),
		repoArg,
	), s.handleBlogInfo)

	s.mcpServer.AddTool(mcp.NewTool(
		"blog_search",
		mcp.WithDescription("Search blog posts by title and description. Returns matching posts with URLs and descriptions."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query, matched case-insensitively against titles and descriptions"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results (default: %d)", index.DefaultSearchLimit)),
		),
		repoArg,
	), s.handleBlogSearch)

	s.mcpServer.AddTool(mcp.NewTool(
		"recent_blog_posts",
		mcp.WithDescription("List the most recently modified blog posts."),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of posts (default: %d)", index.DefaultRecentLimit)),
		),
		repoArg,
	), s.handleRecentPosts)

	s.mcpServer.AddTool(mcp.NewTool(
		"all_blog_posts",
		mcp.WithDescription("List every blog post, most recently modified first."),
		repoArg,
	), s.handleAllPosts)

	s.mcpServer.AddTool(mcp.NewTool(
		"read_blog_post",
		mcp.WithDescription("Read the full markdown content of a blog post by URL path, full URL, or markdown path."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Post identifier: URL path (e.g. '/42'), full URL, or markdown path (e.g. '_d/42.md')"),
		),
		repoArg,
	), s.handleReadPost)

	s.mcpServer.AddTool(mcp.NewTool(
		"random_blog",
		mcp.WithDescription("Read the full content of a randomly chosen blog post."),
		repoArg,
	), s.handleRandomPost)

	s.mcpServer.AddTool(mcp.NewTool(
		"random_blog_url",
		mcp.WithDescription("Return the title and URL of a randomly chosen blog post, without fetching its content."),
		repoArg,
	), s.handleRandomURL)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_recent_changes",
		mcp.WithDescription("List recent commits to a blog repository, optionally with file-level diffs."),
		mcp.WithNumber("days",
			mcp.Description(fmt.Sprintf("Look back this many days (default: %d, max: %d)", defaultChangeDays, maxChangeDays)),
		),
		mcp.WithNumber("max_commits",
			mcp.Description(fmt.Sprintf("Maximum commits to return (default: %d, max: %d)", defaultChangeCount, maxChangeCount)),
		),
		mcp.WithBoolean("include_diff",
			mcp.Description("Include per-file patches (default: false)"),
		),
		mcp.WithString("path",
			mcp.Description("Only include commits touching this path (e.g. '_d/')"),
		),
		repoArg,
	), s.handleRecentChanges)

	s.logger.Info("MCP tools registered successfully")
	return nil
}

// metadata resolves the repo argument and returns its cached metadata.
func (s *Server) metadata(ctx context.Context, request mcp.CallToolRequest) (string, *index.Metadata, error) {
	repo, err := s.resolveRepo(request.GetString("repo", ""))
	if err != nil {
		return "", nil, err
	}
	meta, err := s.store.Get(ctx, repo)
	if err != nil {
		return "", nil, err
	}
	return repo, meta, nil
}

// toolError converts an operation error to a tool error result, mapping the
// sentinel errors to stable messages.
func (s *Server) toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, index.ErrInvalidArgument):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, index.ErrNotFound), errors.Is(err, fetcher.ErrNotFound):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, index.ErrEmptyIndex):
		return mcp.NewToolResultError("no blog posts available")
	case errors.Is(err, cache.ErrUpstreamUnavailable):
		return mcp.NewToolResultError("blog metadata is currently unavailable, try again later")
	default:
		return mcp.NewToolResultError(fmt.Sprintf("operation failed: %v", err))
	}
}

// publicURL joins the configured blog base URL with a post's URL path.
func (s *Server) publicURL(path string) string {
	return strings.TrimRight(s.config.BlogURL, "/") + path
}

// writeEntry appends one post listing line pair to a builder.
func (s *Server) writeEntry(b *strings.Builder, n int, e index.Entry) {
	fmt.Fprintf(b, "%d. %s\n", n, e.Post.Title)
	fmt.Fprintf(b, "   URL: %s\n", s.publicURL(e.Path))
	if desc := parser.StripHTML(e.Post.Description); desc != "" {
		fmt.Fprintf(b, "   Description: %s\n", desc)
	}
	if e.Post.LastModified != "" {
		fmt.Fprintf(b, "   Last modified: %s\n", e.Post.LastModified)
	}
	b.WriteString("\n")
}

func (s *Server) handleListRepos(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Available repositories (owner: %s):\n\n", s.config.RepoOwner)
	for _, repo := range s.repos {
		marker := ""
		if repo == s.config.DefaultRepo {
			marker = " (default)"
		}
		fmt.Fprintf(&b, "- %s%s\n", repo, marker)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleBlogInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, meta, err := s.metadata(ctx, request)
	if err != nil {
		return s.toolError(err), nil
	}

	entries := meta.Posts()
	var b strings.Builder
	fmt.Fprintf(&b, "%d posts in %s:\n\n", len(entries), repo)
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.Post.Title)
		fmt.Fprintf(&b, "   URL: %s\n", s.publicURL(e.Path))
		fmt.Fprintf(&b, "   Markdown: %s\n\n", e.Post.MarkdownPath)
	}

	s.logger.Info("Blog info listed", "repo", repo, "posts", len(entries))
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleBlogSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required and must be a non-empty string"), nil
	}
	limit := request.GetInt("limit", index.DefaultSearchLimit)

	repo, meta, err := s.metadata(ctx, request)
	if err != nil {
		return s.toolError(err), nil
	}

	results, err := meta.Search(query, limit, s.config.MaxSearchResults)
	if err != nil {
		return s.toolError(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results for query: %s\n\n", len(results), query)
	for i, e := range results {
		s.writeEntry(&b, i+1, e)
	}

	s.logger.Info("Search completed", "repo", repo, "query", query, "results", len(results))
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleRecentPosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", index.DefaultRecentLimit)

	repo, meta, err := s.metadata(ctx, request)
	if err != nil {
		return s.toolError(err), nil
	}

	entries := meta.Recent(limit, s.config.MaxRecentPosts)

	var b strings.Builder
	fmt.Fprintf(&b, "%d most recently modified posts in %s:\n\n", len(entries), repo)
	for i, e := range entries {
		s.writeEntry(&b, i+1, e)
	}

	s.logger.Info("Recent posts listed", "repo", repo, "posts", len(entries))
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleAllPosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, meta, err := s.metadata(ctx, request)
	if err != nil {
		return s.toolError(err), nil
	}

	entries := meta.Posts()

	var b strings.Builder
	fmt.Fprintf(&b, "All %d posts in %s, newest first:\n\n", len(entries), repo)
	for i, e := range entries {
		s.writeEntry(&b, i+1, e)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleReadPost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pathArg, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path parameter is required and must be a non-empty string"), nil
	}

	repo, meta, err := s.metadata(ctx, request)
	if err != nil {
		return s.toolError(err), nil
	}

	path, post, err := meta.Resolve(pathArg)
	if err != nil {
		return s.toolError(err), nil
	}

	return s.readPost(ctx, repo, path, post)
}

// readPost fetches a post's markdown and formats the full content result.
func (s *Server) readPost(ctx context.Context, repo, path string, post index.Post) (*mcp.CallToolResult, error) {
	content, err := s.raw.FetchMarkdown(ctx, repo, post.MarkdownPath)
	if err != nil {
		return s.toolError(err), nil
	}

	parsed := parser.ParsePost(content, post.MarkdownPath, post.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", parsed.Title)
	fmt.Fprintf(&b, "URL: %s\n", s.publicURL(path))
	fmt.Fprintf(&b, "Markdown: %s\n", post.MarkdownPath)
	if parsed.Date != "" {
		fmt.Fprintf(&b, "Date: %s\n", parsed.Date)
	}
	b.WriteString("\n")
	b.WriteString(parsed.Body)

	s.logger.Info("Post read", "repo", repo, "path", path, "title", parsed.Title)
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleRandomPost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, meta, err := s.metadata(ctx, request)
	if err != nil {
		return s.toolError(err), nil
	}

	e, err := s.randomPost(meta)
	if err != nil {
		return s.toolError(err), nil
	}

	return s.readPost(ctx, repo, e.Path, e.Post)
}

func (s *Server) handleRandomURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, meta, err := s.metadata(ctx, request)
	if err != nil {
		return s.toolError(err), nil
	}

	e, err := s.randomPost(meta)
	if err != nil {
		return s.toolError(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", e.Post.Title, s.publicURL(e.Path))
	if desc := parser.StripHTML(e.Post.Description); desc != "" {
		fmt.Fprintf(&b, "%s\n", desc)
	}

	s.logger.Info("Random URL chosen", "repo", repo, "path", e.Path)
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleRecentChanges(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := clampInt(request.GetInt("days", defaultChangeDays), 1, maxChangeDays)
	maxCommits := clampInt(request.GetInt("max_commits", defaultChangeCount), 1, maxChangeCount)
	includeDiff := request.GetBool("include_diff", false)

	repo, err := s.resolveRepo(request.GetString("repo", ""))
	if err != nil {
		return s.toolError(err), nil
	}

	pathFilter := request.GetString("path", "")
	since := time.Now().AddDate(0, 0, -days)
	commits, err := s.github.ListCommits(ctx, repo, fetcher.CommitListOptions{
		Path:    pathFilter,
		Since:   since,
		PerPage: maxCommits,
	})
	if err != nil {
		return s.toolError(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d commits to %s in the last %d days:\n\n", len(commits), repo, days)

	if includeDiff {
		details := s.github.FetchCommitDetails(ctx, repo, commits)
		for i, d := range details {
			files := d.Files
			if pathFilter == "" {
				// Without an explicit path, only changes to the post
				// directories are of interest.
				files = postFiles(files)
			}
			writeCommitHeader(&b, i+1, d.CommitSummary)
			for _, f := range files {
				fmt.Fprintf(&b, "   %s %s (+%d -%d)\n", f.Status, f.Filename, f.Additions, f.Deletions)
				if f.Patch != "" {
					patch := f.Patch
					if len(patch) > maxPatchBytesPerFile {
						patch = patch[:maxPatchBytesPerFile] + "\n   ... (patch truncated)"
					}
					fmt.Fprintf(&b, "%s\n", indent(patch, "   "))
				}
			}
			b.WriteString("\n")
		}
	} else {
		for i, c := range commits {
			writeCommitHeader(&b, i+1, c)
			b.WriteString("\n")
		}
	}

	s.logger.Info("Recent changes listed", "repo", repo, "days", days, "commits", len(commits), "include_diff", includeDiff)
	return mcp.NewToolResultText(b.String()), nil
}

// postFiles filters a commit's changed files to the blog post directories.
func postFiles(files []fetcher.CommitFile) []fetcher.CommitFile {
	out := make([]fetcher.CommitFile, 0, len(files))
	for _, f := range files {
		if index.IsPostPath(f.Filename) {
			out = append(out, f)
		}
	}
	return out
}

// writeCommitHeader appends one commit's summary lines to a builder.
func writeCommitHeader(b *strings.Builder, n int, c fetcher.CommitSummary) {
	subject := c.Commit.Message
	if idx := strings.Index(subject, "\n"); idx >= 0 {
		subject = subject[:idx]
	}
	fmt.Fprintf(b, "%d. %s %s\n", n, shortSHA(c.SHA), subject)
	fmt.Fprintf(b, "   Author: %s  Date: %s\n", c.Commit.Author.Name, c.Commit.Author.Date)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
