// Package storage exposes the durable object store the service persists
// into: saved bundles, exported documents, and incident reports. The core
// depends on the Store capability, not a concrete backend; production uses
// the local filesystem, tests use an in-memory map.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

// ErrStorageFailed wraps any backend failure so the orchestrators can map
// it onto the STORAGE_FAILED result kind without inspecting backend errors.
var ErrStorageFailed = errors.New("storage operation failed")

// Store is the durable object store capability. Put must be atomic at the
// key level: a concurrent Get observes the prior value or the complete new
// one. Backends are expected to support idempotent overwrite.
type Store interface {
	Put(key string, data []byte) error
	Get(key string) ([]byte, bool, error)
}

// Key namespaces. Everything the service persists lives under exactly one
// of these prefixes.
const (
	bundlePrefix   = "bundles"
	exportPrefix   = "exports"
	incidentPrefix = "reports/incidents"
)

// BundleKey is the storage key for a persisted bundle.
func BundleKey(bundleID string) string {
	return path.Join(bundlePrefix, bundleID+".json")
}

// ExportKey is the storage key for one exported rendered document.
func ExportKey(bundleID string, dt schema.DocType) string {
	return path.Join(exportPrefix, bundleID, string(dt)+".md")
}

// ExportDir is the directory-like prefix holding all exports of a bundle.
func ExportDir(bundleID string) string {
	return path.Join(exportPrefix, bundleID)
}

// IncidentIndexKey is the storage key for the dedupe index of an incident.
func IncidentIndexKey(incidentKey string) string {
	return path.Join(incidentPrefix, "index", incidentKey+".json")
}

// IncidentReportKey is the storage key for one investigation run's report.
// ext is "json" or "md".
func IncidentReportKey(incidentKey, runID, ext string) string {
	return path.Join(incidentPrefix, incidentKey, runID, "report."+ext)
}

// EncodeJSON renders a value in the indented form every persisted JSON
// object uses, so stored artifacts stay diffable.
func EncodeJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}

// Fail wraps a backend error into the STORAGE_FAILED taxonomy.
func Fail(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageFailed, op, err)
}
