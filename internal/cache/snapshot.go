package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blogsmith/blog-mcp-server/internal/index"
)

const (
	// snapshotVersion is the current snapshot format version.
	snapshotVersion = "1.0"
	// snapshotDirPermissions is the permissions for the snapshot directory.
	snapshotDirPermissions = 0755
	// snapshotFilePermissions is the permissions for snapshot files.
	snapshotFilePermissions = 0644
)

// snapshotEntry is the serialized form of one index entry.
type snapshotEntry struct {
	Path string     `json:"path"`
	Post index.Post `json:"post"`
}

// snapshotFile is the on-disk envelope for a repository's metadata.
type snapshotFile struct {
	Version    string            `json:"version"`
	Repo       string            `json:"repo"`
	FetchedAt  time.Time         `json:"fetched_at"`
	EntryCount int               `json:"entry_count"`
	Entries    []snapshotEntry   `json:"entries"`
	Redirects  map[string]string `json:"redirects"`
}

// Snapshot is a metadata snapshot restored from disk.
type Snapshot struct {
	Metadata  *index.Metadata
	FetchedAt time.Time
}

// Snapshots persists metadata snapshots to disk so a restarted process can
// serve from the last known state without an immediate network fetch.
type Snapshots struct {
	baseDir string
}

// NewSnapshots creates a snapshot store rooted at baseDir, creating the
// directory if needed.
func NewSnapshots(baseDir string) (*Snapshots, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("snapshot base directory cannot be empty")
	}
	if err := os.MkdirAll(baseDir, snapshotDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Snapshots{baseDir: baseDir}, nil
}

// path returns the snapshot file path for a repository.
func (sn *Snapshots) path(repo string) string {
	return filepath.Join(sn.baseDir, repo+".json")
}

// Save writes a repository's metadata snapshot atomically (temp file plus
// rename), so a crash mid-write never leaves a truncated snapshot.
func (sn *Snapshots) Save(repo string, meta *index.Metadata, fetchedAt time.Time) error {
	if repo == "" {
		return fmt.Errorf("repo cannot be empty")
	}

	entries := meta.Entries()
	serialized := make([]snapshotEntry, 0, len(entries))
	for _, e := range entries {
		serialized = append(serialized, snapshotEntry{Path: e.Path, Post: e.Post})
	}

	file := &snapshotFile{
		Version:    snapshotVersion,
		Repo:       repo,
		FetchedAt:  fetchedAt,
		EntryCount: len(serialized),
		Entries:    serialized,
		Redirects:  meta.Redirects(),
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	target := sn.path(repo)
	temp := target + ".tmp"

	if err := os.WriteFile(temp, data, snapshotFilePermissions); err != nil {
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := os.Rename(temp, target); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("failed to rename temp snapshot: %w", err)
	}

	return nil
}

// Load reads and validates a repository's snapshot from disk.
func (sn *Snapshots) Load(repo string) (*Snapshot, error) {
	if repo == "" {
		return nil, fmt.Errorf("repo cannot be empty")
	}

	data, err := os.ReadFile(sn.path(repo))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	if err := validateSnapshot(&file, repo); err != nil {
		return nil, fmt.Errorf("snapshot validation failed: %w", err)
	}

	entries := make([]index.Entry, 0, len(file.Entries))
	for _, e := range file.Entries {
		entries = append(entries, index.Entry{Path: e.Path, Post: e.Post})
	}

	return &Snapshot{
		Metadata:  index.FromEntries(entries, file.Redirects),
		FetchedAt: file.FetchedAt,
	}, nil
}

// Clear removes a repository's snapshot file. Idempotent.
func (sn *Snapshots) Clear(repo string) error {
	if repo == "" {
		return fmt.Errorf("repo cannot be empty")
	}
	if err := os.Remove(sn.path(repo)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}

// validateSnapshot checks the structure of a loaded snapshot file.
func validateSnapshot(file *snapshotFile, repo string) error {
	if file.Version != snapshotVersion {
		return fmt.Errorf("version mismatch: got %s, expected %s", file.Version, snapshotVersion)
	}
	if file.Repo != repo {
		return fmt.Errorf("repo mismatch: snapshot is for %s", file.Repo)
	}
	if file.EntryCount != len(file.Entries) {
		return fmt.Errorf("entry count mismatch: metadata says %d, actual %d", file.EntryCount, len(file.Entries))
	}
	if file.FetchedAt.After(time.Now()) {
		return fmt.Errorf("fetched timestamp is in the future")
	}
	return nil
}
