package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sungjin9288/DecisionDoc-AI/internal/eventlog"
)

// IndexEntry is the persisted dedup record for one incident key. Stats
// holds the owning run's aggregated window so deduplicated triggers can
// return the same summary without re-aggregating.
type IndexEntry struct {
	IncidentKey          string                `json:"incident_key"`
	RunID                string                `json:"run_id"`
	Stage                string                `json:"stage"`
	Window               string                `json:"window"`
	Reason               string                `json:"reason"`
	CreatedAt            time.Time             `json:"created_at"`
	LastNotifyAt         time.Time             `json:"last_notify_at,omitzero"`
	StatuspageIncidentID string                `json:"statuspage_incident_id,omitempty"`
	Stats                *eventlog.WindowStats `json:"stats,omitempty"`
}

// DedupStore decides whether an incident trigger starts a fresh
// investigation or rides an existing one, and throttles outbound
// notifications per incident. All decisions go through the KV's CAS so
// concurrent triggers for the same key converge on a single winner.
type DedupStore struct {
	kv  KV
	now func() time.Time
}

// NewDedupStore creates a dedup store over a KV backend.
func NewDedupStore(kv KV) *DedupStore {
	return &DedupStore{kv: kv, now: time.Now}
}

// Acquire claims an incident key for a new investigation run. It returns
// the authoritative entry and whether the caller owns a fresh run.
//
// A fresh run is granted when the key is unseen, the existing entry is
// older than ttl, or force is set. When two callers race on an unseen key
// exactly one create succeeds; the loser re-reads the winner's entry and
// is reported as deduplicated.
func (d *DedupStore) Acquire(ctx context.Context, entry IndexEntry, ttl time.Duration, force bool) (IndexEntry, bool, error) {
	now := d.now().UTC()
	entry.CreatedAt = now

	existingValue, version, found, err := d.kv.Get(ctx, entry.IncidentKey)
	if err != nil {
		return IndexEntry{}, false, err
	}

	if !found {
		value, err := json.Marshal(entry)
		if err != nil {
			return IndexEntry{}, false, fmt.Errorf("encode index entry: %w", err)
		}
		switch createErr := d.kv.Create(ctx, entry.IncidentKey, value); {
		case createErr == nil:
			return entry, true, nil
		case errors.Is(createErr, ErrKeyExists):
			// Lost the create race; the winner's entry is authoritative.
			return d.readEntry(ctx, entry.IncidentKey)
		default:
			return IndexEntry{}, false, createErr
		}
	}

	var existing IndexEntry
	if err := json.Unmarshal(existingValue, &existing); err != nil {
		return IndexEntry{}, false, fmt.Errorf("decode index entry %s: %w", entry.IncidentKey, err)
	}

	if !force && now.Sub(existing.CreatedAt) < ttl {
		return existing, false, nil
	}

	// Refresh the entry for a forced or expired re-run, carrying forward
	// the notification throttle state, any upstream incident id, and the
	// previous run's stats until the new run records its own.
	entry.LastNotifyAt = existing.LastNotifyAt
	entry.StatuspageIncidentID = existing.StatuspageIncidentID
	entry.Stats = existing.Stats
	value, err := json.Marshal(entry)
	if err != nil {
		return IndexEntry{}, false, fmt.Errorf("encode index entry: %w", err)
	}
	switch updateErr := d.kv.Update(ctx, entry.IncidentKey, value, version); {
	case updateErr == nil:
		return entry, true, nil
	case errors.Is(updateErr, ErrVersionMismatch):
		// A concurrent re-run won; treat ours as deduplicated.
		return d.readEntry(ctx, entry.IncidentKey)
	default:
		return IndexEntry{}, false, updateErr
	}
}

// ShouldNotify atomically claims the right to send an outbound
// notification for an incident. It returns false while the last
// notification is younger than minInterval. The claim is a CAS on the
// entry's last_notify_at, so racing callers yield exactly one sender.
// The second return is the timestamp the claim replaced; if the send
// fails, hand it to ReleaseNotify so the cooldown is not consumed by a
// notification that never went out.
func (d *DedupStore) ShouldNotify(ctx context.Context, incidentKey string, minInterval time.Duration) (bool, time.Time, error) {
	for {
		value, version, found, err := d.kv.Get(ctx, incidentKey)
		if err != nil {
			return false, time.Time{}, err
		}
		if !found {
			return false, time.Time{}, fmt.Errorf("incident %s has no index entry", incidentKey)
		}
		var entry IndexEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return false, time.Time{}, fmt.Errorf("decode index entry %s: %w", incidentKey, err)
		}

		now := d.now().UTC()
		if !entry.LastNotifyAt.IsZero() && now.Sub(entry.LastNotifyAt) < minInterval {
			return false, time.Time{}, nil
		}

		prev := entry.LastNotifyAt
		entry.LastNotifyAt = now
		updated, err := json.Marshal(entry)
		if err != nil {
			return false, time.Time{}, fmt.Errorf("encode index entry: %w", err)
		}
		switch updateErr := d.kv.Update(ctx, incidentKey, updated, version); {
		case updateErr == nil:
			return true, prev, nil
		case errors.Is(updateErr, ErrVersionMismatch):
			// Another writer moved the entry; re-evaluate against it.
			continue
		default:
			return false, time.Time{}, updateErr
		}
	}
}

// ReleaseNotify rolls a claimed notification back to the previous
// last_notify_at after the outbound call failed, allowing a prompt
// retry instead of waiting out the full cooldown.
func (d *DedupStore) ReleaseNotify(ctx context.Context, incidentKey string, prev time.Time) error {
	return d.mutate(ctx, incidentKey, func(entry *IndexEntry) {
		entry.LastNotifyAt = prev
	})
}

// RecordStats stores the owning run's aggregated window on the entry so
// deduplicated triggers return the same summary.
func (d *DedupStore) RecordStats(ctx context.Context, incidentKey string, stats *eventlog.WindowStats) error {
	return d.mutate(ctx, incidentKey, func(entry *IndexEntry) {
		entry.Stats = stats
	})
}

// RecordStatuspageIncident stores the upstream incident id on the entry so
// later runs post updates instead of opening duplicates.
func (d *DedupStore) RecordStatuspageIncident(ctx context.Context, incidentKey, statuspageID string) error {
	return d.mutate(ctx, incidentKey, func(entry *IndexEntry) {
		entry.StatuspageIncidentID = statuspageID
	})
}

// mutate applies fn to the entry under a CAS retry loop.
func (d *DedupStore) mutate(ctx context.Context, incidentKey string, fn func(*IndexEntry)) error {
	for {
		value, version, found, err := d.kv.Get(ctx, incidentKey)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("incident %s has no index entry", incidentKey)
		}
		var entry IndexEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("decode index entry %s: %w", incidentKey, err)
		}
		fn(&entry)
		updated, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode index entry: %w", err)
		}
		switch updateErr := d.kv.Update(ctx, incidentKey, updated, version); {
		case updateErr == nil:
			return nil
		case errors.Is(updateErr, ErrVersionMismatch):
			continue
		default:
			return updateErr
		}
	}
}

// Lookup returns the current entry for a key.
func (d *DedupStore) Lookup(ctx context.Context, incidentKey string) (IndexEntry, bool, error) {
	value, _, found, err := d.kv.Get(ctx, incidentKey)
	if err != nil || !found {
		return IndexEntry{}, false, err
	}
	var entry IndexEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		return IndexEntry{}, false, fmt.Errorf("decode index entry %s: %w", incidentKey, err)
	}
	return entry, true, nil
}

func (d *DedupStore) readEntry(ctx context.Context, incidentKey string) (IndexEntry, bool, error) {
	entry, found, err := d.Lookup(ctx, incidentKey)
	if err != nil {
		return IndexEntry{}, false, err
	}
	if !found {
		return IndexEntry{}, false, fmt.Errorf("incident %s vanished during acquire", incidentKey)
	}
	return entry, false, nil
}
