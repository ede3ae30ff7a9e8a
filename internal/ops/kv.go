package ops

import (
	"context"
	"errors"
	"sync"
)

// KV errors. Callers race on Create and Update by design; both errors are
// expected outcomes, not faults.
var (
	ErrKeyExists       = errors.New("key already exists")
	ErrVersionMismatch = errors.New("version mismatch")
)

// KV is the small versioned store the dedup logic runs on. Create is
// first-writer-wins; Update succeeds only when the caller holds the
// current version. Both must be atomic.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, version int64, found bool, err error)
	Create(ctx context.Context, key string, value []byte) error
	Update(ctx context.Context, key string, value []byte, expectedVersion int64) error
}

// MemoryKV is the in-process KV used in tests and single-node setups.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   []byte
	version int64
}

// NewMemoryKV creates an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string]memoryEntry)}
}

func (kv *MemoryKV) Get(_ context.Context, key string) ([]byte, int64, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	entry, ok := kv.entries[key]
	if !ok {
		return nil, 0, false, nil
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, entry.version, true, nil
}

func (kv *MemoryKV) Create(_ context.Context, key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if _, ok := kv.entries[key]; ok {
		return ErrKeyExists
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	kv.entries[key] = memoryEntry{value: stored, version: 1}
	return nil
}

func (kv *MemoryKV) Update(_ context.Context, key string, value []byte, expectedVersion int64) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	entry, ok := kv.entries[key]
	if !ok || entry.version != expectedVersion {
		return ErrVersionMismatch
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	kv.entries[key] = memoryEntry{value: stored, version: entry.version + 1}
	return nil
}
