// Package ops holds the operational response side of the service:
// deterministic incident keys, the deduplication and notification throttle
// store, the statuspage client, and the investigation orchestrator.
package ops

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultBucketSeconds is the alignment bucket for incident keys. Two
// triggers inside the same bucket with the same stage, window, and
// normalized reason derive the same key.
const DefaultBucketSeconds = 300

// maxReasonLen caps the normalized reason so arbitrarily long alert text
// cannot produce unbounded key inputs.
const maxReasonLen = 80

// NormalizeReason lowercases, collapses runs of whitespace, trims, and
// caps the trigger reason. Keys are derived from the normalized form so
// cosmetic differences in alert text do not split incidents.
func NormalizeReason(reason string) string {
	normalized := strings.ToLower(strings.TrimSpace(reason))
	normalized = strings.Join(strings.Fields(normalized), " ")
	if len(normalized) > maxReasonLen {
		normalized = normalized[:maxReasonLen]
	}
	return normalized
}

// DeriveIncidentKey produces the stable identity of an incident: the
// stage, the investigation window, the time bucket, and the normalized
// reason, hashed and truncated. bucketSeconds of zero or below falls back
// to the default bucket.
func DeriveIncidentKey(stage, window, reason string, bucketSeconds int64, now time.Time) string {
	if bucketSeconds <= 0 {
		bucketSeconds = DefaultBucketSeconds
	}
	bucket := now.Unix() / bucketSeconds
	input := fmt.Sprintf("%s|%s|%d|%s", stage, window, bucket, NormalizeReason(reason))
	sum := sha256.Sum256([]byte(input))
	return "inc-" + hex.EncodeToString(sum[:])[:12]
}
