// Package fetcher provides HTTP client functionality for retrieving blog
// content from GitHub: the back-links.json metadata document and raw
// markdown files via raw.githubusercontent.com, plus repository and commit
// listings via the GitHub REST API.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/blogsmith/blog-mcp-server/internal/index"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Errors returned by fetch operations. Callers match with errors.Is.
var (
	// ErrNotFound indicates the remote document returned HTTP 404.
	ErrNotFound = errors.New("remote document not found")
	// ErrParse indicates the metadata document body was not valid JSON.
	ErrParse = errors.New("malformed metadata document")
)

// maxContentBytes caps response bodies. Raw markdown files and metadata
// documents larger than this are truncated.
const maxContentBytes = 1 << 20

const userAgent = "blog-mcp-server/1.0"

// HTTPClient wraps http.Client with timeout, bounded retry with exponential
// backoff, rate limiting, and an optional GitHub token header.
type HTTPClient struct {
	client      *http.Client
	maxRetries  int
	rateLimiter *rate.Limiter
	token       string
}

// NewHTTPClient creates an HTTP client. maxConcurrent bounds the sustained
// outbound request rate; token, when non-empty, is sent as a GitHub token
// header on every request (raises the GitHub rate limit).
func NewHTTPClient(timeout time.Duration, maxRetries, maxConcurrent int, token string) *HTTPClient {
	return &HTTPClient{
		client:      &http.Client{Timeout: timeout},
		maxRetries:  maxRetries,
		rateLimiter: rate.NewLimiter(rate.Limit(maxConcurrent), maxConcurrent),
		token:       token,
	}
}

// Fetch retrieves a URL with retry on network and 5xx errors. 4xx responses
// are returned immediately; 404 maps to ErrNotFound. Backoff starts at one
// second and doubles per attempt, capped at 60 seconds.
func (c *HTTPClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var lastErr error
	initialDelay := 1 * time.Second
	maxDelay := 60 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			if delay > maxDelay {
				delay = maxDelay
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		if c.token != "" {
			req.Header.Set("Authorization", fmt.Sprintf("token %s", c.token))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return nil, fmt.Errorf("client error: HTTP %d", resp.StatusCode)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: HTTP %d", resp.StatusCode)
			continue
		default:
			return nil, fmt.Errorf("unexpected status code: HTTP %d", resp.StatusCode)
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// RawFetcher retrieves repository content from the raw GitHub content host.
type RawFetcher struct {
	client        *HTTPClient
	rawHost       string
	owner         string
	branch        string
	backlinksPath string
	logger        zerolog.Logger
}

// NewRawFetcher creates a fetcher for raw repository content.
// backlinksPath is the in-repo path of the metadata document,
// typically "back-links.json".
func NewRawFetcher(client *HTTPClient, owner, branch, backlinksPath string, logger zerolog.Logger) *RawFetcher {
	return &RawFetcher{
		client:        client,
		rawHost:       "https://raw.githubusercontent.com",
		owner:         owner,
		branch:        branch,
		backlinksPath: backlinksPath,
		logger:        logger,
	}
}

// SetRawHost overrides the raw content host. Used by tests.
func (rf *RawFetcher) SetRawHost(host string) {
	rf.rawHost = host
}

// rawURL builds the raw content URL for a file in a repository.
func (rf *RawFetcher) rawURL(repo, path string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", rf.rawHost, rf.owner, repo, rf.branch, path)
}

// FetchBacklinks retrieves and parses a repository's metadata document.
// Returns ErrNotFound when the document is absent and ErrParse when the
// body is not valid JSON. No retries beyond HTTPClient's transport-level
// policy; the caller's staleness check is the retry boundary.
func (rf *RawFetcher) FetchBacklinks(ctx context.Context, repo string) (*index.Metadata, error) {
	url := rf.rawURL(repo, rf.backlinksPath)

	rf.logger.Debug().
		Str("repo", repo).
		Str("url", url).
		Msg("Fetching metadata document")

	body, err := rf.client.Fetch(ctx, url)
	if err != nil {
		rf.logger.Error().
			Err(err).
			Str("repo", repo).
			Msg("Failed to fetch metadata document")
		return nil, fmt.Errorf("failed to fetch metadata for %s: %w", repo, err)
	}

	meta, err := index.Parse(body)
	if err != nil {
		rf.logger.Error().
			Err(err).
			Str("repo", repo).
			Msg("Failed to parse metadata document")
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	rf.logger.Info().
		Str("repo", repo).
		Int("entries", meta.Len()).
		Msg("Fetched metadata document")

	return meta, nil
}

// FetchMarkdown retrieves a raw markdown file from a repository.
// Returns ErrNotFound when the file is absent.
func (rf *RawFetcher) FetchMarkdown(ctx context.Context, repo, markdownPath string) ([]byte, error) {
	url := rf.rawURL(repo, markdownPath)

	rf.logger.Debug().
		Str("repo", repo).
		Str("path", markdownPath).
		Msg("Fetching markdown file")

	content, err := rf.client.Fetch(ctx, url)
	if err != nil {
		rf.logger.Error().
			Err(err).
			Str("repo", repo).
			Str("path", markdownPath).
			Msg("Failed to fetch markdown file")
		return nil, fmt.Errorf("failed to fetch %s from %s: %w", markdownPath, repo, err)
	}

	if len(content) == maxContentBytes {
		rf.logger.Warn().
			Str("repo", repo).
			Str("path", markdownPath).
			Int("bytes", len(content)).
			Msg("Markdown content truncated at size cap")
	}

	return content, nil
}
