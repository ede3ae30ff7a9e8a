package generation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sungjin9288/DecisionDoc-AI/internal/cache"
	"github.com/sungjin9288/DecisionDoc-AI/internal/provider"
	"github.com/sungjin9288/DecisionDoc-AI/internal/render"
	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
	"github.com/sungjin9288/DecisionDoc-AI/internal/storage"
)

// countingProvider wraps another provider and counts upstream calls.
type countingProvider struct {
	inner provider.Provider
	calls atomic.Int64
	block chan struct{}
}

func (p *countingProvider) Name() string { return p.inner.Name() }

func (p *countingProvider) GenerateBundle(ctx context.Context, prompt string) (json.RawMessage, provider.Usage, error) {
	p.calls.Add(1)
	if p.block != nil {
		<-p.block
	}
	return p.inner.GenerateBundle(ctx, prompt)
}

// staticProvider returns a fixed raw payload or error.
type staticProvider struct {
	raw json.RawMessage
	err error
}

func (p *staticProvider) Name() string { return "static" }

func (p *staticProvider) GenerateBundle(context.Context, string) (json.RawMessage, provider.Usage, error) {
	return p.raw, provider.Usage{}, p.err
}

// failingStore rejects every write.
type failingStore struct{}

func (failingStore) Put(key string, _ []byte) error {
	return storage.Fail("put "+key, errors.New("disk full"))
}

func (failingStore) Get(string) ([]byte, bool, error) { return nil, false, nil }

func newTestService(t *testing.T, p provider.Provider, cacheEnabled bool, store storage.Store) *Service {
	t.Helper()
	r, err := render.NewRenderer(render.DefaultTemplateVersion)
	require.NoError(t, err)
	if store == nil {
		store = storage.NewMemoryStore()
	}
	c := cache.NewStore(t.TempDir(), cacheEnabled)
	return NewService(p, c, store, r, zap.NewNop())
}

func testRequest() *schema.GenerateRequest {
	req := &schema.GenerateRequest{
		Title:    "Adopt queue-based ingestion",
		Goal:     "Decouple producers from the ingestion pipeline",
		Context:  "Spiky producer traffic overwhelms the synchronous path",
		DocTypes: schema.AllDocTypes(),
	}
	req.Normalize()
	return req
}

func TestGenerateSuccess(t *testing.T) {
	mem := storage.NewMemoryStore()
	svc := newTestService(t, provider.NewMockProvider(), true, mem)

	result, err := svc.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, result.BundleID)
	assert.Equal(t, CacheMiss, result.CacheStatus)
	assert.Len(t, result.Docs, len(schema.AllDocTypes()))
	assert.Equal(t, "mock", result.Bundle.Provenance.Provider)

	_, found, err := mem.Get(storage.BundleKey(result.BundleID))
	require.NoError(t, err)
	assert.True(t, found, "bundle should be persisted")
}

func TestGenerateCacheHitSkipsProvider(t *testing.T) {
	counting := &countingProvider{inner: provider.NewMockProvider()}
	svc := newTestService(t, counting, true, nil)

	first, err := svc.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, first.CacheStatus)

	second, err := svc.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, CacheHit, second.CacheStatus)
	assert.Equal(t, int64(1), counting.calls.Load())

	// Each run is its own bundle identity even when the content is shared.
	assert.NotEqual(t, first.BundleID, second.BundleID)
}

func TestGenerateCacheDisabledReportsUnknown(t *testing.T) {
	counting := &countingProvider{inner: provider.NewMockProvider()}
	svc := newTestService(t, counting, false, nil)

	first, err := svc.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, CacheUnknown, first.CacheStatus)

	second, err := svc.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, CacheUnknown, second.CacheStatus)
	assert.Equal(t, int64(2), counting.calls.Load())
}

func TestGenerateProviderFailure(t *testing.T) {
	svc := newTestService(t, &staticProvider{err: errors.New("upstream 500")}, true, nil)

	_, err := svc.Generate(context.Background(), testRequest())
	require.Error(t, err)
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureProvider, failure.Kind)
}

func TestGenerateMalformedBundleIsProviderFailure(t *testing.T) {
	svc := newTestService(t, &staticProvider{raw: json.RawMessage(`"not an object"`)}, true, nil)

	_, err := svc.Generate(context.Background(), testRequest())
	require.Error(t, err)
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureProvider, failure.Kind)
}

func TestGenerateLintFailure(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"adr": map[string]any{
			"decision": "TODO decide later",
			"options":  []string{"Queue", "Retries"},
			"checks":   []string{"Load test"},
		},
	})
	require.NoError(t, err)
	svc := newTestService(t, &staticProvider{raw: raw}, true, nil)

	req := testRequest()
	req.DocTypes = []schema.DocType{schema.DocTypeADR}
	_, err = svc.Generate(context.Background(), req)
	require.Error(t, err)

	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureLints, failure.Kind)
	assert.Contains(t, failure.Details, "adr:banned_token:TODO")
}

func TestGenerateValidationFailure(t *testing.T) {
	// One enumerated option is structurally invalid for an ADR but clears
	// every lint, so only the validator can reject it.
	raw, err := json.Marshal(map[string]any{
		"adr": map[string]any{
			"decision": "Adopt the queue.",
			"options":  []string{"Queue"},
			"checks":   []string{"Load test"},
		},
	})
	require.NoError(t, err)
	svc := newTestService(t, &staticProvider{raw: raw}, true, nil)

	req := testRequest()
	req.DocTypes = []schema.DocType{schema.DocTypeADR}
	_, err = svc.Generate(context.Background(), req)
	require.Error(t, err)

	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureValidation, failure.Kind)
	assert.Contains(t, failure.Details, "adr:adr_options_lt_2")
}

func TestGenerateStorageFailure(t *testing.T) {
	svc := newTestService(t, provider.NewMockProvider(), true, failingStore{})

	_, err := svc.Generate(context.Background(), testRequest())
	require.Error(t, err)
	failure, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureStorage, failure.Kind)
	assert.True(t, errors.Is(err, storage.ErrStorageFailed))
}

func TestExportPersistsEveryDocument(t *testing.T) {
	mem := storage.NewMemoryStore()
	svc := newTestService(t, provider.NewMockProvider(), true, mem)

	req := testRequest()
	result, err := svc.Export(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.ExportKeys, len(req.DocTypes))

	for i, dt := range req.DocTypes {
		key := storage.ExportKey(result.BundleID, dt)
		assert.Equal(t, key, result.ExportKeys[i])
		data, found, err := mem.Get(key)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, result.Docs[i].Markdown, string(data))
	}
}

func TestConcurrentIdenticalRequestsShareOneProviderCall(t *testing.T) {
	counting := &countingProvider{
		inner: provider.NewMockProvider(),
		block: make(chan struct{}),
	}
	svc := newTestService(t, counting, true, nil)

	const goroutines = 4
	var wg sync.WaitGroup
	results := make([]*Result, goroutines)
	errs := make([]error, goroutines)
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Generate(context.Background(), testRequest())
		}()
	}

	// Let every goroutine reach the collapsed section, then release the
	// single in-flight provider call.
	for counting.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(counting.block)
	wg.Wait()

	for i := range goroutines {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
	}
	assert.Equal(t, int64(1), counting.calls.Load(),
		"identical in-flight requests should collapse onto one upstream call")
}
