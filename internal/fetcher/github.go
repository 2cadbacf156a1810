// Package fetcher provides HTTP client functionality for retrieving blog
// content from GitHub, including repository and commit listings via the
// GitHub REST API.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// GitHubClient talks to the GitHub REST API for repository discovery and
// commit history. Raw file content goes through RawFetcher instead.
type GitHubClient struct {
	client  *HTTPClient
	apiHost string
	owner   string
	logger  zerolog.Logger
}

// NewGitHubClient creates a GitHub API client for the given owner.
func NewGitHubClient(client *HTTPClient, owner string, logger zerolog.Logger) *GitHubClient {
	return &GitHubClient{
		client:  client,
		apiHost: "https://api.github.com",
		owner:   owner,
		logger:  logger,
	}
}

// SetAPIHost overrides the API host. Used by tests.
func (gc *GitHubClient) SetAPIHost(host string) {
	gc.apiHost = host
}

// repoEntry is the subset of the repos API response we need.
type repoEntry struct {
	Name string `json:"name"`
}

// ListRepos returns the names of the owner's public repositories.
// Used to expand a wildcard repository configuration at startup.
func (gc *GitHubClient) ListRepos(ctx context.Context) ([]string, error) {
	u := fmt.Sprintf("%s/users/%s/repos?per_page=100&type=public", gc.apiHost, gc.owner)

	body, err := gc.client.Fetch(ctx, u)
	if err != nil {
		if isRateLimitError(err) {
			return nil, fmt.Errorf("failed to list repositories for %s: %w. "+
				"GitHub API rate limit reached; configure GITHUB_TOKEN to raise it", gc.owner, err)
		}
		return nil, fmt.Errorf("failed to list repositories for %s: %w", gc.owner, err)
	}

	var repos []repoEntry
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, fmt.Errorf("failed to parse repository list: %w", err)
	}

	names := make([]string, 0, len(repos))
	for _, r := range repos {
		names = append(names, r.Name)
	}

	gc.logger.Info().
		Str("owner", gc.owner).
		Int("count", len(names)).
		Msg("Listed repositories")

	return names, nil
}

// isRateLimitError checks whether an error indicates GitHub API rate limiting.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "403") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "API rate limit exceeded")
}

// CommitListOptions filters a commit listing.
type CommitListOptions struct {
	Path    string    // restrict to commits touching this path, optional
	Since   time.Time // restrict to commits after this time, optional
	PerPage int       // page size, defaults to 10
}

// CommitSummary is one entry of the commits list API response.
type CommitSummary struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// CommitFile describes one changed file in a commit detail response.
type CommitFile struct {
	Filename         string `json:"filename"`
	Status           string `json:"status"`
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	PreviousFilename string `json:"previous_filename,omitempty"`
	Patch            string `json:"patch,omitempty"`
}

// CommitDetail is a commit with its file changes.
type CommitDetail struct {
	CommitSummary
	Files []CommitFile `json:"files"`
}

// ListCommits returns recent commits for a repository, newest first.
func (gc *GitHubClient) ListCommits(ctx context.Context, repo string, opts CommitListOptions) ([]CommitSummary, error) {
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 10
	}

	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	if opts.Path != "" {
		params.Set("path", strings.TrimPrefix(opts.Path, "/"))
	}
	if !opts.Since.IsZero() {
		params.Set("since", opts.Since.UTC().Format(time.RFC3339))
	}

	u := fmt.Sprintf("%s/repos/%s/%s/commits?%s", gc.apiHost, gc.owner, repo, params.Encode())

	gc.logger.Debug().
		Str("repo", repo).
		Str("url", u).
		Msg("Listing commits")

	body, err := gc.client.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits for %s: %w", repo, err)
	}

	var commits []CommitSummary
	if err := json.Unmarshal(body, &commits); err != nil {
		return nil, fmt.Errorf("failed to parse commit list: %w", err)
	}

	return commits, nil
}

// GetCommit returns one commit with its file changes.
func (gc *GitHubClient) GetCommit(ctx context.Context, repo, sha string) (*CommitDetail, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/commits/%s", gc.apiHost, gc.owner, repo, sha)

	body, err := gc.client.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch commit %s: %w", sha, err)
	}

	var detail CommitDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("failed to parse commit %s: %w", sha, err)
	}

	return &detail, nil
}

// FetchCommitDetails fetches file-level details for a list of commits
// concurrently. Individual failures are logged and skipped; the returned
// slice preserves the input order of the commits that succeeded.
func (gc *GitHubClient) FetchCommitDetails(ctx context.Context, repo string, commits []CommitSummary) []*CommitDetail {
	results := make([]*CommitDetail, len(commits))
	var wg sync.WaitGroup

	for i, c := range commits {
		wg.Add(1)
		go func(slot int, sha string) {
			defer wg.Done()
			detail, err := gc.GetCommit(ctx, repo, sha)
			if err != nil {
				gc.logger.Warn().
					Err(err).
					Str("repo", repo).
					Str("sha", sha).
					Msg("Failed to fetch commit detail, skipping")
				return
			}
			results[slot] = detail
		}(i, c.SHA)
	}

	wg.Wait()

	details := make([]*CommitDetail, 0, len(commits))
	for _, d := range results {
		if d != nil {
			details = append(details, d)
		}
	}

	gc.logger.Info().
		Str("repo", repo).
		Int("requested", len(commits)).
		Int("fetched", len(details)).
		Msg("Fetched commit details")

	return details
}
