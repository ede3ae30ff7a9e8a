package ops

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIncidentKeyStable(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := DeriveIncidentKey("generate", "60m", "provider error rate high", 300, now)
	b := DeriveIncidentKey("generate", "60m", "provider error rate high", 300, now)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "inc-"))
	assert.Len(t, a, len("inc-")+12)
}

func TestDeriveIncidentKeyNormalizesReason(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := DeriveIncidentKey("generate", "60m", "Provider   Error Rate High ", 300, now)
	b := DeriveIncidentKey("generate", "60m", "provider error rate high", 300, now)
	assert.Equal(t, a, b)
}

func TestDeriveIncidentKeySameBucketSameKey(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := DeriveIncidentKey("generate", "60m", "errors", 300, base)
	b := DeriveIncidentKey("generate", "60m", "errors", 300, base.Add(4*time.Minute))
	assert.Equal(t, a, b, "triggers inside one bucket should share a key")

	c := DeriveIncidentKey("generate", "60m", "errors", 300, base.Add(6*time.Minute))
	assert.NotEqual(t, a, c, "a later bucket should derive a different key")
}

func TestDeriveIncidentKeyDistinguishesInputs(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	base := DeriveIncidentKey("generate", "60m", "errors", 300, now)
	assert.NotEqual(t, base, DeriveIncidentKey("export", "60m", "errors", 300, now))
	assert.NotEqual(t, base, DeriveIncidentKey("generate", "30m", "errors", 300, now))
	assert.NotEqual(t, base, DeriveIncidentKey("generate", "60m", "timeouts", 300, now))
}

func TestNormalizeReasonCaps(t *testing.T) {
	long := strings.Repeat("x", 200)
	assert.Len(t, NormalizeReason(long), maxReasonLen)
	assert.Equal(t, "", NormalizeReason("   "))
}
