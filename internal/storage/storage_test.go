package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

func TestKeyNamespaces(t *testing.T) {
	assert.Equal(t, "bundles/b1.json", BundleKey("b1"))
	assert.Equal(t, "exports/b1/adr.md", ExportKey("b1", schema.DocTypeADR))
	assert.Equal(t, "exports/b1", ExportDir("b1"))
	assert.Equal(t, "reports/incidents/index/inc-abc.json", IncidentIndexKey("inc-abc"))
	assert.Equal(t, "reports/incidents/inc-abc/run1/report.json", IncidentReportKey("inc-abc", "run1", "json"))
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, found, err := store.Get("bundles/missing.json")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put("bundles/b1.json", []byte(`{"ok":true}`)))
	data, found, err := store.Get("bundles/b1.json")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestLocalStoreOverwrite(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put("k", []byte("one")))
	require.NoError(t, store.Put("k", []byte("two")))
	data, found, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "two", string(data))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.Put("../outside", []byte("x"))
	require.ErrorIs(t, err, ErrStorageFailed)

	_, _, err = store.Get("/absolute")
	require.ErrorIs(t, err, ErrStorageFailed)
}

func TestLocalStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put("exports/b1/adr.md", []byte("# ADR")))

	entries, err := os.ReadDir(store.Path("exports/b1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "adr.md", entries[0].Name())
}

func TestMemoryStoreCopiesData(t *testing.T) {
	store := NewMemoryStore()
	src := []byte("abc")
	require.NoError(t, store.Put("k", src))
	src[0] = 'z'

	data, found, err := store.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "abc", string(data))
	assert.Equal(t, 1, store.Len())
}
