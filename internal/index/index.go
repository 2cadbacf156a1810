// Package index provides the in-memory metadata index built from a
// repository's back-links.json document, along with the pure query
// operations the server exposes: path resolution, substring search,
// recency ordering, and random selection.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"unicode/utf8"
)

// Errors returned by query operations. Callers match with errors.Is.
var (
	// ErrNotFound indicates the requested path has no entry in the index.
	ErrNotFound = errors.New("post not found")
	// ErrEmptyIndex indicates the index contains no posts.
	ErrEmptyIndex = errors.New("no posts in index")
	// ErrInvalidArgument indicates a malformed query argument.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Default and maximum result limits. Limits outside [1, max] are clamped.
const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 20
	DefaultRecentLimit = 20
	MaxRecentLimit     = 50

	// maxQueryLength bounds search queries before matching.
	maxQueryLength = 100
)

// postDirs are the repository directories whose markdown files count as
// blog posts. Entries outside these directories (static pages, includes)
// are excluded from every query operation.
var postDirs = []string{"_d/", "_posts/", "td/"}

// Post holds the metadata recorded for a single URL path in the
// back-links.json url_info table.
type Post struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	MarkdownPath string `json:"markdown_path"`
	FilePath     string `json:"file_path"`
	LastModified string `json:"last_modified"` // ISO-8601, may be empty
	DocSize      int    `json:"doc_size"`
	// RedirectURL is the deprecated per-post redirect field. Newer
	// documents carry a top-level redirects table instead; this field is
	// still honored as a fallback during path resolution.
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Entry pairs a URL path with its post metadata.
type Entry struct {
	Path string
	Post Post
}

// Metadata is an immutable snapshot of a repository's metadata document.
// It is built once (by Parse or FromEntries) and never mutated, so readers
// may hold a *Metadata across a cache refresh without synchronization.
type Metadata struct {
	posts     map[string]Post
	order     []string // url_info document order, used for tie-breaking
	redirects map[string]string
}

// FromEntries builds a Metadata snapshot from explicit entries and a
// redirect table. Entry order is preserved for tie-breaking.
func FromEntries(entries []Entry, redirects map[string]string) *Metadata {
	m := &Metadata{
		posts:     make(map[string]Post, len(entries)),
		order:     make([]string, 0, len(entries)),
		redirects: make(map[string]string, len(redirects)),
	}
	for _, e := range entries {
		if _, exists := m.posts[e.Path]; !exists {
			m.order = append(m.order, e.Path)
		}
		m.posts[e.Path] = e.Post
	}
	for from, to := range redirects {
		m.redirects[from] = to
	}
	return m
}

// Parse decodes a back-links.json document into a Metadata snapshot.
// The url_info object is decoded token-by-token so that document order is
// preserved; search ties are broken by this order.
func Parse(data []byte) (*Metadata, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid metadata document: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("invalid metadata document: expected object, got %v", tok)
	}

	var entries []Entry
	redirects := make(map[string]string)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid metadata document: %w", err)
		}
		key, _ := keyTok.(string)

		switch key {
		case "url_info":
			if err := decodeURLInfo(dec, &entries); err != nil {
				return nil, err
			}
		case "redirects":
			if err := dec.Decode(&redirects); err != nil {
				return nil, fmt.Errorf("invalid redirects table: %w", err)
			}
		default:
			// Unknown top-level field, skip its value.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("invalid metadata document: %w", err)
			}
		}
	}

	return FromEntries(entries, redirects), nil
}

// decodeURLInfo consumes a url_info object from the decoder, appending
// entries in document order.
func decodeURLInfo(dec *json.Decoder, entries *[]Entry) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid url_info: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("invalid url_info: expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("invalid url_info: %w", err)
		}
		path, _ := keyTok.(string)

		var post Post
		if err := dec.Decode(&post); err != nil {
			return fmt.Errorf("invalid url_info entry %q: %w", path, err)
		}
		*entries = append(*entries, Entry{Path: path, Post: post})
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("invalid url_info: %w", err)
	}
	return nil
}

// Entries returns all entries in document order, including non-post pages.
// Used for snapshot persistence.
func (m *Metadata) Entries() []Entry {
	entries := make([]Entry, 0, len(m.order))
	for _, path := range m.order {
		entries = append(entries, Entry{Path: path, Post: m.posts[path]})
	}
	return entries
}

// Redirects returns a copy of the redirect table.
func (m *Metadata) Redirects() map[string]string {
	out := make(map[string]string, len(m.redirects))
	for from, to := range m.redirects {
		out[from] = to
	}
	return out
}

// Len returns the total number of entries, including non-post pages.
func (m *Metadata) Len() int {
	return len(m.order)
}

// isPost reports whether a markdown path belongs to a blog post directory.
func isPost(markdownPath string) bool {
	if markdownPath == "" {
		return false
	}
	for _, dir := range postDirs {
		if strings.HasPrefix(markdownPath, dir) {
			return true
		}
	}
	return false
}

// IsPostPath reports whether a repository file path lies under one of the
// blog post directories.
func IsPostPath(path string) bool {
	return isPost(path)
}

// postEntries returns post entries in document order.
func (m *Metadata) postEntries() []Entry {
	entries := make([]Entry, 0, len(m.order))
	for _, path := range m.order {
		post := m.posts[path]
		if isPost(post.MarkdownPath) {
			entries = append(entries, Entry{Path: path, Post: post})
		}
	}
	return entries
}

// Lookup returns the post at an exact URL path.
func (m *Metadata) Lookup(path string) (Post, bool) {
	post, ok := m.posts[path]
	return post, ok
}

// Resolve maps caller input to a canonical URL path and its post. Input may
// be a URL path ("/42" or "42"), a full public URL, or a markdown path
// ("_d/42.md"). Redirects are followed for a single hop only; chained
// redirects are not resolved. Resolving an already-canonical path returns
// that path unchanged.
func (m *Metadata) Resolve(input string) (string, Post, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", Post{}, fmt.Errorf("%w: path must be a non-empty string", ErrInvalidArgument)
	}

	path, err := m.normalize(input)
	if err != nil {
		return "", Post{}, err
	}

	// Direct hit on the canonical path.
	if post, ok := m.posts[path]; ok && post.MarkdownPath != "" {
		return path, post, nil
	}

	// Top-level redirect table, single hop.
	if target, ok := m.redirects[path]; ok {
		if post, ok := m.posts[target]; ok && post.MarkdownPath != "" {
			return target, post, nil
		}
	}

	// Deprecated per-post redirect_url fallback, kept for older documents.
	for _, candidate := range m.order {
		post := m.posts[candidate]
		if post.RedirectURL == "" {
			continue
		}
		if post.RedirectURL == path || post.RedirectURL == strings.TrimPrefix(path, "/") {
			if post.MarkdownPath != "" {
				return candidate, post, nil
			}
		}
	}

	return "", Post{}, fmt.Errorf("%w: %s", ErrNotFound, input)
}

// normalize converts raw caller input into a URL path key.
func (m *Metadata) normalize(input string) (string, error) {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		// Full URL: strip scheme and host, keep the path.
		rest := strings.TrimPrefix(strings.TrimPrefix(input, "https://"), "http://")
		if idx := strings.Index(rest, "/"); idx >= 0 {
			return rest[idx:], nil
		}
		return "/", nil
	}

	if strings.Contains(input, ".md") {
		// Markdown path: locate the entry whose markdown_path matches.
		for _, path := range m.order {
			mp := m.posts[path].MarkdownPath
			if mp == "" {
				continue
			}
			if mp == input || strings.HasSuffix(mp, input) || strings.HasSuffix(input, mp) ||
				baseName(mp) == baseName(input) {
				return path, nil
			}
		}
		return "", fmt.Errorf("%w: no entry for markdown path %s", ErrNotFound, input)
	}

	if !strings.HasPrefix(input, "/") {
		return "/" + input, nil
	}
	return input, nil
}

func baseName(p string) string {
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// Search returns posts whose title or description contains the query,
// case-insensitively. Results keep document order; at most limit entries
// are returned, clamped to [1, max]. An empty query is an error.
func (m *Metadata) Search(query string, limit, max int) ([]Entry, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("%w: search query must be a non-empty string", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(query) > maxQueryLength {
		// Truncate on a rune boundary so multibyte queries stay valid UTF-8.
		query = string([]rune(query)[:maxQueryLength])
	}
	limit = clampLimit(limit, max)

	var matches []Entry
	for _, e := range m.postEntries() {
		title := strings.ToLower(e.Post.Title)
		desc := strings.ToLower(e.Post.Description)
		if strings.Contains(title, query) || strings.Contains(desc, query) {
			matches = append(matches, e)
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}

// Recent returns posts ordered by last_modified descending. Posts without a
// timestamp sort last; equal timestamps keep document order. At most limit
// entries are returned, clamped to [1, max].
func (m *Metadata) Recent(limit, max int) []Entry {
	limit = clampLimit(limit, max)

	entries := m.postEntries()
	sort.SliceStable(entries, func(i, j int) bool {
		// ISO-8601 timestamps compare correctly as strings; empty
		// timestamps sort after everything else under descending order.
		return entries[i].Post.LastModified > entries[j].Post.LastModified
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Posts returns every post, most recently modified first.
func (m *Metadata) Posts() []Entry {
	entries := m.postEntries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Post.LastModified > entries[j].Post.LastModified
	})
	return entries
}

// Random returns a uniformly chosen post using the provided source.
func (m *Metadata) Random(rng *rand.Rand) (Entry, error) {
	entries := m.postEntries()
	if len(entries) == 0 {
		return Entry{}, ErrEmptyIndex
	}
	return entries[rng.Intn(len(entries))], nil
}

// clampLimit bounds a requested limit to [1, max].
func clampLimit(limit, max int) int {
	if max < 1 {
		max = 1
	}
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}
