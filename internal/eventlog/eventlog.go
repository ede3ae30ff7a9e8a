// Package eventlog persists one row per handled request into sqlite and
// answers windowed aggregate queries over those rows. Investigations read
// this log instead of scraping server logs, so the aggregation is exact
// rather than sampled.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

// Event is one handled request.
type Event struct {
	RequestID    string    `json:"request_id"`
	Route        string    `json:"route"`
	StatusCode   int       `json:"status_code"`
	ErrorCode    string    `json:"error_code,omitempty"`
	CacheStatus  string    `json:"cache_status,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	PromptTokens int       `json:"prompt_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// Failed reports whether the request ended in an error response.
func (e Event) Failed() bool {
	return e.StatusCode >= 400
}

// ErrorCount is one error code with its frequency in a window.
type ErrorCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// WindowStats is the aggregate over one time window.
type WindowStats struct {
	From             time.Time    `json:"from"`
	To               time.Time    `json:"to"`
	Total            int          `json:"total"`
	Failures         int          `json:"failures"`
	TopErrorCodes    []ErrorCount `json:"top_error_codes"`
	PromptTokens     int64        `json:"prompt_tokens"`
	OutputTokens     int64        `json:"output_tokens"`
	TotalTokens      int64        `json:"total_tokens"`
	AvgTotalTokens   float64      `json:"avg_total_tokens"`
	P95DurationMS    int64        `json:"p95_duration_ms"`
	SampleRequestIDs []string     `json:"sample_request_ids"`
}

// maxTopErrors and maxSamples bound the report size no matter how noisy
// the window was.
const (
	maxTopErrors = 5
	maxSamples   = 10
)

// Log is the sqlite-backed request log. Safe for concurrent use; sqlite
// serializes writers and the busy timeout absorbs contention.
type Log struct {
	db   *sql.DB
	path string
}

// Open creates or opens the request log under dir.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	path := filepath.Join(dir, "events.db")
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	log := &Log{db: db, path: path}
	if err := log.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize event log schema: %w", err)
	}
	return log, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Log) Path() string {
	return l.path
}

func (l *Log) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS request_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		route TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		error_code TEXT NOT NULL DEFAULT '',
		cache_status TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL,
		prompt_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_request_events_created ON request_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_request_events_error ON request_events(error_code);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Append records one handled request. A zero CreatedAt is stamped with the
// current time.
func (l *Log) Append(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO request_events
			(request_id, route, status_code, error_code, cache_status,
			 duration_ms, prompt_tokens, output_tokens, total_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Route, e.StatusCode, e.ErrorCode, e.CacheStatus,
		e.DurationMS, e.PromptTokens, e.OutputTokens, e.TotalTokens,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append request event: %w", err)
	}
	return nil
}

// AggregateWindow computes the stats for [from, to). Failed requests are
// preferred for the sample id list so an investigation lands on evidence
// first.
func (l *Log) AggregateWindow(ctx context.Context, from, to time.Time) (*WindowStats, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT request_id, status_code, error_code, duration_ms,
		       prompt_tokens, output_tokens, total_tokens
		FROM request_events
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	stats := &WindowStats{From: from.UTC(), To: to.UTC()}
	errorCounts := map[string]int{}
	var durations []int64
	var failedIDs, okIDs []string

	for rows.Next() {
		var (
			requestID, errorCode            string
			statusCode                      int
			durationMS                      int64
			promptTokens, outputTok, totTok int64
		)
		if err := rows.Scan(&requestID, &statusCode, &errorCode, &durationMS,
			&promptTokens, &outputTok, &totTok); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		stats.Total++
		stats.PromptTokens += promptTokens
		stats.OutputTokens += outputTok
		stats.TotalTokens += totTok
		durations = append(durations, durationMS)
		if statusCode >= 400 {
			stats.Failures++
			if errorCode != "" {
				errorCounts[errorCode]++
			}
			failedIDs = append(failedIDs, requestID)
		} else {
			okIDs = append(okIDs, requestID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate window: %w", err)
	}

	if stats.Total > 0 {
		stats.AvgTotalTokens = float64(stats.TotalTokens) / float64(stats.Total)
		stats.P95DurationMS = percentile(durations, 0.95)
	}
	stats.TopErrorCodes = topErrors(errorCounts)
	stats.SampleRequestIDs = sampleIDs(failedIDs, okIDs)
	return stats, nil
}

func topErrors(counts map[string]int) []ErrorCount {
	out := make([]ErrorCount, 0, len(counts))
	for code, count := range counts {
		out = append(out, ErrorCount{Code: code, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if len(out) > maxTopErrors {
		out = out[:maxTopErrors]
	}
	return out
}

func sampleIDs(failed, ok []string) []string {
	out := make([]string, 0, maxSamples)
	for _, id := range failed {
		if len(out) == maxSamples {
			return out
		}
		out = append(out, id)
	}
	for _, id := range ok {
		if len(out) == maxSamples {
			return out
		}
		out = append(out, id)
	}
	return out
}

// percentile returns the value at rank ceil(p*n) of the sorted input,
// matching the nearest-rank definition.
func percentile(values []int64, p float64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := int(p * float64(len(sorted)))
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
