package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

// Entry is the persisted form of a cached bundle.
type Entry struct {
	Fingerprint string         `json:"fingerprint"`
	CapturedAt  time.Time      `json:"captured_at"`
	Bundle      *schema.Bundle `json:"bundle"`
}

// Store maps fingerprints to previously produced bundles on disk. Writes
// follow a stage-then-commit protocol: the entry is written to a temp file
// in the same directory, fsynced, then renamed into place. A concurrent
// reader sees the old entry or the new one, never a torn write.
//
// Concurrent writers for the same fingerprint race benignly: the cached
// value is a pure function of the fingerprint's inputs, so last writer wins
// with an equivalent bundle. The store owns no eviction policy.
type Store struct {
	dir     string
	enabled bool
	now     func() time.Time
}

// NewStore creates a cache store rooted at dir. When enabled is false the
// store is inert: Lookup always misses and Store is a no-op. Callers must
// then report cache status as unknown, not miss.
func NewStore(dir string, enabled bool) *Store {
	return &Store{dir: dir, enabled: enabled, now: time.Now}
}

// Enabled reports whether the cache participates in lookups at all.
func (s *Store) Enabled() bool {
	return s.enabled
}

// Lookup returns the cached bundle for a fingerprint. A missing, corrupt,
// or unreadable entry is reported as absent; corruption is never surfaced
// as an error because the caller can always regenerate.
func (s *Store) Lookup(fingerprint string) (*schema.Bundle, bool) {
	if !s.enabled {
		return nil, false
	}
	data, err := os.ReadFile(s.entryPath(fingerprint))
	if err != nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if entry.Bundle == nil {
		return nil, false
	}
	return entry.Bundle, true
}

// Store persists a bundle under its fingerprint. No-op when disabled.
func (s *Store) Store(fingerprint string, bundle *schema.Bundle) error {
	if !s.enabled {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	entry := Entry{Fingerprint: fingerprint, CapturedAt: s.now().UTC(), Bundle: bundle}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	final := s.entryPath(fingerprint)
	tmp := final + ".tmp." + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("stage cache entry: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync cache entry: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

func (s *Store) entryPath(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint+".json")
}
