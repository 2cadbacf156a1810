package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blogsmith/blog-mcp-server/internal/index"
)

func TestSnapshotsSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	snaps, err := NewSnapshots(tmpDir)
	if err != nil {
		t.Fatalf("NewSnapshots failed: %v", err)
	}

	meta := index.FromEntries([]index.Entry{
		{Path: "/b", Post: index.Post{Title: "B", MarkdownPath: "_d/b.md", LastModified: "2025-01-01T00:00:00Z"}},
		{Path: "/a", Post: index.Post{Title: "A", MarkdownPath: "_d/a.md"}},
	}, map[string]string{"/old": "/a"})

	fetchedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := snaps.Save("blog", meta, fetchedAt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap, err := snaps.Load("blog")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !snap.FetchedAt.Equal(fetchedAt) {
		t.Errorf("FetchedAt mismatch: got %v, want %v", snap.FetchedAt, fetchedAt)
	}
	if snap.Metadata.Len() != 2 {
		t.Errorf("entry count mismatch: got %d, want 2", snap.Metadata.Len())
	}

	// Document order survives the round trip.
	entries := snap.Metadata.Entries()
	if entries[0].Path != "/b" || entries[1].Path != "/a" {
		t.Errorf("entry order not preserved: %v", entries)
	}
	if got := snap.Metadata.Redirects()["/old"]; got != "/a" {
		t.Errorf("redirects not preserved: got %s", got)
	}
}

func TestSnapshotsLoadMissing(t *testing.T) {
	snaps, _ := NewSnapshots(t.TempDir())

	if _, err := snaps.Load("nothere"); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestSnapshotsRejectsVersionMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	snaps, _ := NewSnapshots(tmpDir)

	file := snapshotFile{Version: "0.9", Repo: "blog", FetchedAt: time.Now().Add(-time.Hour)}
	data, _ := json.Marshal(file)
	if err := os.WriteFile(filepath.Join(tmpDir, "blog.json"), data, 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := snaps.Load("blog"); err == nil {
		t.Fatal("expected version mismatch error")
	}
}

func TestSnapshotsRejectsRepoMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	snaps, _ := NewSnapshots(tmpDir)

	meta := index.FromEntries(nil, nil)
	if err := snaps.Save("other", meta, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// Rename the file so the envelope's repo no longer matches.
	if err := os.Rename(filepath.Join(tmpDir, "other.json"), filepath.Join(tmpDir, "blog.json")); err != nil {
		t.Fatalf("rename failed: %v", err)
	}

	if _, err := snaps.Load("blog"); err == nil {
		t.Fatal("expected repo mismatch error")
	}
}

func TestSnapshotsClearIdempotent(t *testing.T) {
	snaps, _ := NewSnapshots(t.TempDir())

	if err := snaps.Clear("never-saved"); err != nil {
		t.Errorf("Clear of missing snapshot should succeed: %v", err)
	}
}

func TestStoreWarmStartsFromFreshSnapshot(t *testing.T) {
	tmpDir := t.TempDir()
	snaps, _ := NewSnapshots(tmpDir)
	clock := newFakeClock()

	meta := testMeta("blog")
	if err := snaps.Save("blog", meta, clock.now().Add(-time.Minute)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	fetcher := newCountingFetcher()
	store := NewStore(fetcher, 5*time.Minute, testLogger(),
		WithClock(clock.now), WithSnapshots(snaps))

	got, err := store.Get(context.Background(), "blog")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Len() != 1 {
		t.Errorf("unexpected metadata from snapshot")
	}
	if n := fetcher.count("blog"); n != 0 {
		t.Errorf("fresh snapshot should avoid the network, got %d fetches", n)
	}
}

func TestStoreStaleSnapshotIsFallbackOnly(t *testing.T) {
	tmpDir := t.TempDir()
	snaps, _ := NewSnapshots(tmpDir)
	clock := newFakeClock()

	meta := testMeta("blog")
	if err := snaps.Save("blog", meta, clock.now().Add(-time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Upstream is down; the stale disk snapshot must still serve.
	fetcher := newCountingFetcher()
	fetcher.fail["blog"] = os.ErrDeadlineExceeded
	store := NewStore(fetcher, 5*time.Minute, testLogger(),
		WithClock(clock.now), WithSnapshots(snaps))

	got, err := store.Get(context.Background(), "blog")
	if err != nil {
		t.Fatalf("expected stale snapshot fallback, got error: %v", err)
	}
	if got.Len() != 1 {
		t.Errorf("unexpected metadata from stale snapshot")
	}
	if n := fetcher.count("blog"); n != 1 {
		t.Errorf("stale snapshot should still trigger a fetch attempt, got %d", n)
	}
}

func TestStorePersistsSnapshotAfterRefresh(t *testing.T) {
	tmpDir := t.TempDir()
	snaps, _ := NewSnapshots(tmpDir)

	fetcher := newCountingFetcher()
	store := NewStore(fetcher, 5*time.Minute, testLogger(), WithSnapshots(snaps))

	if _, err := store.Get(context.Background(), "blog"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "blog.json")); err != nil {
		t.Errorf("snapshot file not written: %v", err)
	}
}
