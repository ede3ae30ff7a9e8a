// Package generation orchestrates one end-to-end document run: cache
// lookup, provider call, stabilization, rendering, the quality gate, and
// persistence. The pipeline is strictly ordered and each stage failure
// maps onto exactly one failure kind so callers can translate outcomes
// without inspecting error text.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sungjin9288/DecisionDoc-AI/internal/cache"
	"github.com/sungjin9288/DecisionDoc-AI/internal/provider"
	"github.com/sungjin9288/DecisionDoc-AI/internal/quality"
	"github.com/sungjin9288/DecisionDoc-AI/internal/render"
	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
	"github.com/sungjin9288/DecisionDoc-AI/internal/stabilize"
	"github.com/sungjin9288/DecisionDoc-AI/internal/storage"
)

// FailureKind is the wire-level classification of a generation failure.
type FailureKind string

const (
	FailureProvider   FailureKind = "PROVIDER_FAILED"
	FailureLints      FailureKind = "EVAL_LINT_FAILED"
	FailureValidation FailureKind = "DOC_VALIDATION_FAILED"
	FailureStorage    FailureKind = "STORAGE_FAILED"
)

// Failure is the typed error the orchestrator returns. Details carry the
// individual violations for gate failures and are safe to expose.
type Failure struct {
	Kind    FailureKind
	Message string
	Details []string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// CacheStatus is the tri-state cache outcome of a run. Unknown means the
// cache was disabled, which is distinct from a lookup that missed.
type CacheStatus string

const (
	CacheHit     CacheStatus = "hit"
	CacheMiss    CacheStatus = "miss"
	CacheUnknown CacheStatus = "unknown"
)

// Result is a successful run.
type Result struct {
	BundleID    string         `json:"bundle_id"`
	Bundle      *schema.Bundle `json:"bundle"`
	Docs        []render.Doc   `json:"docs"`
	CacheStatus CacheStatus    `json:"cache_status"`
	ExportKeys  []string       `json:"export_keys,omitempty"`
	Timings     Timings        `json:"timings"`
}

// Timings records per-stage wall-clock milliseconds. A stage that did not
// run (provider on a cache hit, export on a plain generate) reports zero.
type Timings struct {
	ProviderMS  int64 `json:"provider_ms"`
	RenderMS    int64 `json:"render_ms"`
	LintsMS     int64 `json:"lints_ms"`
	ValidatorMS int64 `json:"validator_ms"`
	ExportMS    int64 `json:"export_ms"`
}

// Service runs the generation pipeline. Safe for concurrent use; identical
// in-flight requests are collapsed onto one provider call per fingerprint.
type Service struct {
	provider provider.Provider
	cache    *cache.Store
	store    storage.Store
	renderer *render.Renderer
	log      *zap.Logger
	group    singleflight.Group
	now      func() time.Time
}

// NewService wires a pipeline. The cache store may be disabled but must
// not be nil.
func NewService(p provider.Provider, c *cache.Store, store storage.Store, r *render.Renderer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		provider: p,
		cache:    c,
		store:    store,
		renderer: r,
		log:      log,
		now:      time.Now,
	}
}

// bundleOutcome is what the collapsed provider path produces.
type bundleOutcome struct {
	bundle     *schema.Bundle
	status     CacheStatus
	providerMS int64
}

// Generate runs the pipeline through persistence of the bundle. The
// request must already be normalized and validated by the caller.
func (s *Service) Generate(ctx context.Context, req *schema.GenerateRequest) (*Result, error) {
	fingerprint, err := cache.Fingerprint(s.provider.Name(), schema.SchemaVersion, req)
	if err != nil {
		return nil, &Failure{Kind: FailureProvider, Message: "fingerprint request", Err: err}
	}

	outcome, err := s.obtainBundle(ctx, fingerprint, req)
	if err != nil {
		return nil, err
	}

	result := &Result{
		BundleID:    uuid.NewString(),
		Bundle:      outcome.bundle,
		CacheStatus: outcome.status,
		Timings:     Timings{ProviderMS: outcome.providerMS},
	}

	start := s.now()
	docs, err := s.renderer.RenderAll(req, outcome.bundle)
	result.Timings.RenderMS = s.since(start)
	if err != nil {
		return nil, &Failure{Kind: FailureProvider, Message: "render documents", Err: err}
	}
	result.Docs = docs

	report, lintsMS, validatorMS := s.runGate(docs)
	result.Timings.LintsMS = lintsMS
	result.Timings.ValidatorMS = validatorMS

	// All-or-nothing: a single violation in any document rejects the whole
	// set. Lint failures take precedence over structural ones.
	if !report.LintsPassed() {
		return nil, &Failure{
			Kind:    FailureLints,
			Message: "document set failed lints",
			Details: report.LintViolations(),
		}
	}
	if !report.ValidationsPassed() {
		return nil, &Failure{
			Kind:    FailureValidation,
			Message: "document set failed structural validation",
			Details: report.ValidationViolations(),
		}
	}

	if err := s.persistBundle(result); err != nil {
		return nil, err
	}
	return result, nil
}

// Export runs Generate and then persists each rendered document under the
// bundle's export prefix. Exports happen only for a set that cleared the
// gate; a partial export is surfaced as STORAGE_FAILED.
func (s *Service) Export(ctx context.Context, req *schema.GenerateRequest) (*Result, error) {
	result, err := s.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	start := s.now()
	keys := make([]string, 0, len(result.Docs))
	for _, doc := range result.Docs {
		key := storage.ExportKey(result.BundleID, doc.DocType)
		if err := s.store.Put(key, []byte(doc.Markdown)); err != nil {
			result.Timings.ExportMS = s.since(start)
			return nil, &Failure{Kind: FailureStorage, Message: "persist export " + key, Err: err}
		}
		keys = append(keys, key)
	}
	result.Timings.ExportMS = s.since(start)
	result.ExportKeys = keys
	return result, nil
}

// obtainBundle returns the stabilized bundle for a fingerprint, from cache
// when possible. Concurrent callers with the same fingerprint share one
// upstream call; the shared bundle is treated as read-only downstream.
func (s *Service) obtainBundle(ctx context.Context, fingerprint string, req *schema.GenerateRequest) (*bundleOutcome, error) {
	v, err, shared := s.group.Do(fingerprint, func() (any, error) {
		return s.obtainBundleOnce(ctx, fingerprint, req)
	})
	if err != nil {
		return nil, err
	}
	outcome := v.(*bundleOutcome)
	if shared {
		s.log.Debug("collapsed concurrent generation",
			zap.String("fingerprint", fingerprint))
	}
	return outcome, nil
}

func (s *Service) obtainBundleOnce(ctx context.Context, fingerprint string, req *schema.GenerateRequest) (*bundleOutcome, error) {
	if !s.cache.Enabled() {
		return s.generateBundle(ctx, fingerprint, req, CacheUnknown)
	}
	if bundle, ok := s.cache.Lookup(fingerprint); ok {
		s.log.Debug("cache hit", zap.String("fingerprint", fingerprint))
		return &bundleOutcome{bundle: bundle, status: CacheHit}, nil
	}
	return s.generateBundle(ctx, fingerprint, req, CacheMiss)
}

func (s *Service) generateBundle(ctx context.Context, fingerprint string, req *schema.GenerateRequest, status CacheStatus) (*bundleOutcome, error) {
	prompt, err := provider.BuildPrompt(req, schema.SchemaVersion)
	if err != nil {
		return nil, &Failure{Kind: FailureProvider, Message: "build prompt", Err: err}
	}

	start := s.now()
	raw, usage, err := s.provider.GenerateBundle(ctx, prompt)
	providerMS := s.since(start)
	if err != nil {
		return nil, &Failure{Kind: FailureProvider, Message: "provider " + s.provider.Name(), Err: err}
	}

	decoded, err := provider.DecodeRawBundle(raw)
	if err != nil {
		return nil, &Failure{Kind: FailureProvider, Message: "decode bundle", Err: err}
	}

	bundle, patched := stabilize.Stabilize(decoded)
	bundle.Provenance = schema.Provenance{
		Provider:     s.provider.Name(),
		PromptTokens: usage.PromptTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
	}
	if len(patched) > 0 {
		s.log.Info("stabilizer patched bundle",
			zap.String("fingerprint", fingerprint),
			zap.Strings("patched", patched))
	}

	// Cache writes are best effort. A failed write costs a future provider
	// call, not this request.
	if err := s.cache.Store(fingerprint, bundle); err != nil {
		s.log.Warn("cache write failed",
			zap.String("fingerprint", fingerprint),
			zap.Error(err))
	}

	return &bundleOutcome{bundle: bundle, status: status, providerMS: providerMS}, nil
}

func (s *Service) runGate(docs []render.Doc) (quality.Report, int64, int64) {
	start := s.now()
	lints := make([]quality.LintResult, 0, len(docs))
	for _, doc := range docs {
		lints = append(lints, quality.LintDocument(doc.DocType, doc.Markdown))
	}
	lintsMS := s.since(start)

	start = s.now()
	validations := make([]quality.ValidationResult, 0, len(docs))
	for _, doc := range docs {
		validations = append(validations, quality.ValidateDocument(doc.DocType, doc.Markdown))
	}
	validatorMS := s.since(start)

	return quality.Report{Lints: lints, Validations: validations}, lintsMS, validatorMS
}

func (s *Service) persistBundle(result *Result) error {
	data, err := storage.EncodeJSON(result.Bundle)
	if err != nil {
		return &Failure{Kind: FailureStorage, Message: "encode bundle", Err: err}
	}
	key := storage.BundleKey(result.BundleID)
	if err := s.store.Put(key, data); err != nil {
		return &Failure{Kind: FailureStorage, Message: "persist bundle " + key, Err: err}
	}
	return nil
}

func (s *Service) since(start time.Time) int64 {
	return s.now().Sub(start).Milliseconds()
}
