package ops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sungjin9288/DecisionDoc-AI/internal/eventlog"
	"github.com/sungjin9288/DecisionDoc-AI/internal/storage"
)

// ErrNotifyFailed marks a notification failure that strict mode promotes
// to a request failure. Outside strict mode notification problems are
// logged and swallowed; the investigation artifacts are already durable.
var ErrNotifyFailed = errors.New("ops notify failed")

// WindowAggregator is the slice of the event log an investigation needs.
type WindowAggregator interface {
	AggregateWindow(ctx context.Context, from, to time.Time) (*eventlog.WindowStats, error)
}

// Notifier is the outbound status page capability.
type Notifier interface {
	Configured() bool
	CreateIncident(ctx context.Context, name, body string) (string, error)
	PostUpdate(ctx context.Context, incidentID, body string) error
}

// InvestigatorConfig tunes deduplication and notification behavior.
type InvestigatorConfig struct {
	// DedupTTL is how long an incident key suppresses re-investigation.
	DedupTTL time.Duration
	// NotifyCooldown is the minimum gap between outbound notifications
	// for one incident. Independent of DedupTTL: a forced re-run inside
	// the TTL still must not spam the status page.
	NotifyCooldown time.Duration
	// BucketSeconds aligns incident keys in time.
	BucketSeconds int64
	// Strict promotes notification failures to request failures.
	Strict bool
}

// DefaultInvestigatorConfig returns the standard dedup windows.
func DefaultInvestigatorConfig() InvestigatorConfig {
	return InvestigatorConfig{
		DedupTTL:       5 * time.Minute,
		NotifyCooldown: 10 * time.Minute,
		BucketSeconds:  DefaultBucketSeconds,
	}
}

// Params is one investigation trigger.
type Params struct {
	Stage  string `json:"stage"`
	Window string `json:"window"`
	Reason string `json:"reason"`
	Force  bool   `json:"force"`
}

// Validate checks trigger fields. Window must parse as a positive Go
// duration such as "30m" or "1h".
func (p *Params) Validate() error {
	if strings.TrimSpace(p.Stage) == "" {
		return errors.New("stage is required")
	}
	if strings.TrimSpace(p.Reason) == "" {
		return errors.New("reason is required")
	}
	d, err := time.ParseDuration(p.Window)
	if err != nil {
		return fmt.Errorf("window %q is not a duration: %w", p.Window, err)
	}
	if d <= 0 {
		return fmt.Errorf("window %q must be positive", p.Window)
	}
	return nil
}

// Report is the outcome of one investigation trigger.
type Report struct {
	IncidentKey string                `json:"incident_key"`
	RunID       string                `json:"run_id"`
	Deduped     bool                  `json:"deduped"`
	Notified    bool                  `json:"notified"`
	Stage       string                `json:"stage"`
	Window      string                `json:"window"`
	Reason      string                `json:"reason"`
	GeneratedAt time.Time             `json:"generated_at"`
	Stats       *eventlog.WindowStats `json:"stats,omitempty"`
	ReportKeys  []string              `json:"report_keys,omitempty"`
	NotifyError string                `json:"notify_error,omitempty"`
}

// Investigator turns incident triggers into durable reports.
type Investigator struct {
	cfg    InvestigatorConfig
	dedup  *DedupStore
	events WindowAggregator
	store  storage.Store
	notify Notifier
	log    *zap.Logger
	now    func() time.Time
}

// NewInvestigator wires an investigator. notify may be an unconfigured
// client; it must not be nil.
func NewInvestigator(cfg InvestigatorConfig, dedup *DedupStore, events WindowAggregator, store storage.Store, notify Notifier, log *zap.Logger) *Investigator {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = DefaultInvestigatorConfig().DedupTTL
	}
	if cfg.NotifyCooldown <= 0 {
		cfg.NotifyCooldown = DefaultInvestigatorConfig().NotifyCooldown
	}
	return &Investigator{
		cfg:    cfg,
		dedup:  dedup,
		events: events,
		store:  store,
		notify: notify,
		log:    log,
		now:    time.Now,
	}
}

// Investigate runs one trigger end to end: derive the incident key, settle
// deduplication, aggregate the event window, persist the report pair, and
// notify the status page subject to the cooldown.
func (inv *Investigator) Investigate(ctx context.Context, p Params) (*Report, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := inv.now().UTC()
	key := DeriveIncidentKey(p.Stage, p.Window, p.Reason, inv.cfg.BucketSeconds, now)

	entry, fresh, err := inv.dedup.Acquire(ctx, IndexEntry{
		IncidentKey: key,
		RunID:       uuid.NewString(),
		Stage:       p.Stage,
		Window:      p.Window,
		Reason:      NormalizeReason(p.Reason),
	}, inv.cfg.DedupTTL, p.Force)
	if err != nil {
		return nil, fmt.Errorf("acquire incident %s: %w", key, err)
	}

	if !fresh {
		inv.log.Info("incident deduplicated",
			zap.String("incident_key", key),
			zap.String("existing_run", entry.RunID))
		report := &Report{
			IncidentKey: key,
			RunID:       entry.RunID,
			Deduped:     true,
			Stage:       entry.Stage,
			Window:      entry.Window,
			Reason:      entry.Reason,
			GeneratedAt: entry.CreatedAt,
			Stats:       entry.Stats,
		}
		// The cooldown runs independently of the dedup TTL, so a hit on
		// a long-lived incident still sends updates once it elapses.
		if err := inv.notifyStatuspage(ctx, report, entry); err != nil {
			return nil, err
		}
		return report, nil
	}

	windowDur, _ := time.ParseDuration(p.Window)
	stats, err := inv.events.AggregateWindow(ctx, now.Add(-windowDur), now)
	if err != nil {
		return nil, fmt.Errorf("aggregate window for %s: %w", key, err)
	}

	report := &Report{
		IncidentKey: key,
		RunID:       entry.RunID,
		Stage:       p.Stage,
		Window:      p.Window,
		Reason:      NormalizeReason(p.Reason),
		GeneratedAt: now,
		Stats:       stats,
	}

	entry.Stats = stats
	if err := inv.dedup.RecordStats(ctx, key, stats); err != nil {
		return nil, fmt.Errorf("record stats for %s: %w", key, err)
	}

	if err := inv.persistReport(report, entry); err != nil {
		return nil, err
	}

	if err := inv.notifyStatuspage(ctx, report, entry); err != nil {
		return nil, err
	}
	return report, nil
}

func (inv *Investigator) persistReport(report *Report, entry IndexEntry) error {
	jsonKey := storage.IncidentReportKey(report.IncidentKey, report.RunID, "json")
	mdKey := storage.IncidentReportKey(report.IncidentKey, report.RunID, "md")

	data, err := storage.EncodeJSON(report)
	if err != nil {
		return storage.Fail("encode incident report", err)
	}
	if err := inv.store.Put(jsonKey, data); err != nil {
		return fmt.Errorf("persist %s: %w", jsonKey, err)
	}
	if err := inv.store.Put(mdKey, []byte(renderIncidentMarkdown(report))); err != nil {
		return fmt.Errorf("persist %s: %w", mdKey, err)
	}

	// A browsable copy of the index entry sits next to the reports.
	indexData, err := storage.EncodeJSON(entry)
	if err != nil {
		return storage.Fail("encode incident index", err)
	}
	if err := inv.store.Put(storage.IncidentIndexKey(report.IncidentKey), indexData); err != nil {
		return fmt.Errorf("persist incident index %s: %w", report.IncidentKey, err)
	}

	report.ReportKeys = []string{jsonKey, mdKey}
	return nil
}

func (inv *Investigator) notifyStatuspage(ctx context.Context, report *Report, entry IndexEntry) error {
	if !inv.notify.Configured() {
		return nil
	}
	ok, prev, err := inv.dedup.ShouldNotify(ctx, report.IncidentKey, inv.cfg.NotifyCooldown)
	if err != nil {
		return fmt.Errorf("notification throttle for %s: %w", report.IncidentKey, err)
	}
	if !ok {
		inv.log.Info("notification throttled",
			zap.String("incident_key", report.IncidentKey))
		return nil
	}

	body := incidentSummaryLine(report)
	if entry.StatuspageIncidentID != "" {
		err = inv.notify.PostUpdate(ctx, entry.StatuspageIncidentID, body)
	} else {
		var id string
		id, err = inv.notify.CreateIncident(ctx, "Service degradation: "+report.Stage, body)
		if err == nil {
			if recordErr := inv.dedup.RecordStatuspageIncident(ctx, report.IncidentKey, id); recordErr != nil {
				inv.log.Warn("failed to record statuspage incident id",
					zap.String("incident_key", report.IncidentKey),
					zap.Error(recordErr))
			}
		}
	}
	if err != nil {
		// Give the cooldown back so the next trigger can retry promptly.
		if releaseErr := inv.dedup.ReleaseNotify(ctx, report.IncidentKey, prev); releaseErr != nil {
			inv.log.Warn("failed to release notification claim",
				zap.String("incident_key", report.IncidentKey),
				zap.Error(releaseErr))
		}
		report.NotifyError = err.Error()
		if inv.cfg.Strict {
			return fmt.Errorf("%w: %v", ErrNotifyFailed, err)
		}
		inv.log.Warn("statuspage notification failed",
			zap.String("incident_key", report.IncidentKey),
			zap.Error(err))
		return nil
	}
	report.Notified = true
	return nil
}

func incidentSummaryLine(report *Report) string {
	if report.Stats == nil {
		return fmt.Sprintf(
			"Investigating elevated failures in %s over %s (reason: %s).",
			report.Stage, report.Window, report.Reason,
		)
	}
	return fmt.Sprintf(
		"Investigating elevated failures in %s over %s: %d of %d requests failed (reason: %s).",
		report.Stage, report.Window, report.Stats.Failures, report.Stats.Total, report.Reason,
	)
}

// renderIncidentMarkdown produces the human-readable companion of the
// JSON report.
func renderIncidentMarkdown(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Incident %s\n\n", report.IncidentKey)
	fmt.Fprintf(&b, "- Run: %s\n", report.RunID)
	fmt.Fprintf(&b, "- Stage: %s\n", report.Stage)
	fmt.Fprintf(&b, "- Window: %s\n", report.Window)
	fmt.Fprintf(&b, "- Reason: %s\n", report.Reason)
	fmt.Fprintf(&b, "- Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))

	stats := report.Stats
	b.WriteString("\n## Request window\n\n")
	fmt.Fprintf(&b, "- Total requests: %d\n", stats.Total)
	fmt.Fprintf(&b, "- Failures: %d\n", stats.Failures)
	fmt.Fprintf(&b, "- p95 latency: %d ms\n", stats.P95DurationMS)
	fmt.Fprintf(&b, "- Tokens: %d prompt, %d output, %d total (avg %.1f/request)\n",
		stats.PromptTokens, stats.OutputTokens, stats.TotalTokens, stats.AvgTotalTokens)

	if len(stats.TopErrorCodes) > 0 {
		b.WriteString("\n## Top error codes\n\n")
		for _, ec := range stats.TopErrorCodes {
			fmt.Fprintf(&b, "- %s: %d\n", ec.Code, ec.Count)
		}
	}
	if len(stats.SampleRequestIDs) > 0 {
		b.WriteString("\n## Sample request ids\n\n")
		for _, id := range stats.SampleRequestIDs {
			fmt.Fprintf(&b, "- %s\n", id)
		}
	}
	return b.String()
}
