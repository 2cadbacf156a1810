// Package cache provides the per-repository metadata cache. Each repository
// gets one entry holding an immutable metadata snapshot and a fetch
// timestamp; entries are refreshed through the fetcher once older than the
// TTL, with concurrent refreshes of the same repository collapsed into a
// single outbound request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blogsmith/blog-mcp-server/internal/index"
	"golang.org/x/sync/singleflight"
)

// ErrUpstreamUnavailable indicates a refresh failed and no previously
// fetched snapshot exists to fall back on.
var ErrUpstreamUnavailable = errors.New("metadata source unavailable")

// DefaultTTL is the default maximum age of a cached metadata snapshot.
const DefaultTTL = 5 * time.Minute

// Fetcher retrieves a repository's metadata document.
type Fetcher interface {
	FetchBacklinks(ctx context.Context, repo string) (*index.Metadata, error)
}

// entry holds one repository's cached snapshot. The meta pointer is
// replaced wholesale on refresh, never mutated, so a reader holding the
// pointer is unaffected by later refreshes.
type entry struct {
	meta      *index.Metadata
	fetchedAt time.Time
}

// Store is the per-repository metadata cache. Entries live for the process
// lifetime; a failed refresh never evicts a previously good snapshot.
type Store struct {
	fetcher   Fetcher
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
	snapshots *Snapshots // optional disk persistence, may be nil

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]*entry
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects a clock. Tests use this to control staleness.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSnapshots enables disk snapshot persistence for warm starts.
func WithSnapshots(snaps *Snapshots) Option {
	return func(s *Store) { s.snapshots = snaps }
}

// NewStore creates a metadata cache backed by the given fetcher.
// A non-positive ttl falls back to DefaultTTL.
func NewStore(fetcher Fetcher, ttl time.Duration, logger *slog.Logger, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the repository's metadata snapshot, refreshing it first when
// stale or absent. Concurrent callers during a refresh share one in-flight
// fetch. When a refresh fails and a previous snapshot exists, the stale
// snapshot is returned instead of the error; with no snapshot at all the
// error is wrapped in ErrUpstreamUnavailable.
func (s *Store) Get(ctx context.Context, repo string) (*index.Metadata, error) {
	if e := s.lookup(repo); e != nil && s.fresh(e) {
		return e.meta, nil
	}

	v, err, _ := s.group.Do(repo, func() (interface{}, error) {
		// Re-check under the flight: a previous waiter may have already
		// refreshed this repository.
		if e := s.lookup(repo); e != nil && s.fresh(e) {
			return e.meta, nil
		}
		return s.refresh(ctx, repo)
	})
	if err == nil {
		return v.(*index.Metadata), nil
	}

	// Refresh failed. Serve the stale snapshot when one exists; transient
	// upstream failures must not take down repositories we have data for.
	if e := s.lookup(repo); e != nil {
		s.logger.Warn("Serving stale metadata after refresh failure",
			"repo", repo,
			"age", s.now().Sub(e.fetchedAt),
			"error", err)
		return e.meta, nil
	}

	return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

// lookup returns the current entry for a repository, or nil.
func (s *Store) lookup(repo string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[repo]
}

// fresh reports whether an entry is within the TTL.
func (s *Store) fresh(e *entry) bool {
	return s.now().Sub(e.fetchedAt) < s.ttl
}

// refresh fetches a new snapshot and swaps it in. Runs inside the
// singleflight group, so at most one refresh per repository is in flight.
func (s *Store) refresh(ctx context.Context, repo string) (*index.Metadata, error) {
	// On a cold start, a disk snapshot may satisfy the request without a
	// network call.
	if s.lookup(repo) == nil && s.snapshots != nil {
		if snap, err := s.snapshots.Load(repo); err == nil {
			e := &entry{meta: snap.Metadata, fetchedAt: snap.FetchedAt}
			s.store(repo, e)
			if s.fresh(e) {
				s.logger.Debug("Warm start from disk snapshot", "repo", repo, "entries", snap.Metadata.Len())
				return e.meta, nil
			}
			// Stale snapshot: keep it as the fallback and fetch fresh data.
		}
	}

	s.logger.Info("Refreshing metadata", "repo", repo)

	meta, err := s.fetcher.FetchBacklinks(ctx, repo)
	if err != nil {
		return nil, err
	}

	e := &entry{meta: meta, fetchedAt: s.now()}
	s.store(repo, e)

	s.logger.Info("Metadata refreshed", "repo", repo, "entries", meta.Len())

	if s.snapshots != nil {
		if err := s.snapshots.Save(repo, meta, e.fetchedAt); err != nil {
			s.logger.Warn("Failed to persist metadata snapshot", "repo", repo, "error", err)
		}
	}

	return meta, nil
}

// store swaps in a new entry for a repository.
func (s *Store) store(repo string, e *entry) {
	s.mu.Lock()
	s.entries[repo] = e
	s.mu.Unlock()
}

// Len returns the number of cached repositories.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
