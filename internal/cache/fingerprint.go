// Package cache provides the content-addressed bundle cache: a
// deterministic fingerprint over the normalized request, and a file-backed
// store whose writes are staged to a temp file and published with a single
// atomic rename.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

// fingerprintPayload is the canonical serialization input. Field order is
// fixed by the struct declaration; list fields that are order-insignificant
// are sorted before encoding.
type fingerprintPayload struct {
	Provider      string           `json:"provider"`
	SchemaVersion string           `json:"schema_version"`
	Title         string           `json:"title"`
	Goal          string           `json:"goal"`
	Context       string           `json:"context"`
	Constraints   string           `json:"constraints"`
	Priority      string           `json:"priority"`
	Audience      string           `json:"audience"`
	DocTypes      []schema.DocType `json:"doc_types"`
	Assumptions   []string         `json:"assumptions"`
}

// Fingerprint derives the cache key for a normalized request against one
// provider and schema version. Equal normalized inputs always produce equal
// fingerprints. The fingerprint is a lookup key only, never a business
// identity.
//
// The request must already be normalized; Fingerprint performs no semantic
// normalization of its own, only deterministic serialization and digest.
func Fingerprint(provider, schemaVersion string, req *schema.GenerateRequest) (string, error) {
	payload := fingerprintPayload{
		Provider:      provider,
		SchemaVersion: schemaVersion,
		Title:         req.Title,
		Goal:          req.Goal,
		Context:       req.Context,
		Constraints:   req.Constraints,
		Priority:      req.Priority,
		Audience:      req.Audience,
		DocTypes:      req.SortedDocTypes(),
		Assumptions:   req.Assumptions,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Unreachable for well-typed requests; kept as a contract check.
		return "", fmt.Errorf("encode fingerprint payload: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
