package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore persists objects as files under a root directory. Writes are
// staged to a temp file in the target directory and committed with an
// atomic rename.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the filesystem directory backing the store.
func (s *LocalStore) Root() string {
	return s.root
}

// Path maps a storage key to its filesystem location.
func (s *LocalStore) Path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes data under key, creating parent directories as needed.
func (s *LocalStore) Put(key string, data []byte) error {
	if err := validKey(key); err != nil {
		return Fail("put", err)
	}
	final := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return Fail("put", err)
	}
	tmp := final + ".tmp." + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Fail("put", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return Fail("put", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return Fail("put", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return Fail("put", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return Fail("put", err)
	}
	return nil
}

// Get reads the object at key. Absence is not an error.
func (s *LocalStore) Get(key string) ([]byte, bool, error) {
	if err := validKey(key); err != nil {
		return nil, false, Fail("get", err)
	}
	data, err := os.ReadFile(s.Path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, Fail("get", err)
	}
	return data, true, nil
}

func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}
