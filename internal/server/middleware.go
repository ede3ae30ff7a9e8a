package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sungjin9288/DecisionDoc-AI/internal/eventlog"
	"github.com/sungjin9288/DecisionDoc-AI/internal/provider"
)

// Header names of the wire contract.
const (
	HeaderAPIKey    = "X-DecisionDoc-Api-Key"
	HeaderOpsKey    = "X-DecisionDoc-Ops-Key"
	HeaderRequestID = "X-Request-Id"
)

// safeRequestID is the shape a client-supplied request id must have to be
// echoed back; anything else is replaced, never reflected.
var safeRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

type contextKey int

const (
	requestIDKey contextKey = iota
	requestMetaKey
)

// requestMeta is filled by handlers so the observability layer can emit
// one complete event per request.
type requestMeta struct {
	errorCode   string
	cacheStatus string
	usage       provider.Usage
}

// RequestIDFromContext returns the id assigned to the request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func metaFromContext(ctx context.Context) *requestMeta {
	meta, _ := ctx.Value(requestMetaKey).(*requestMeta)
	return meta
}

// withRequestID accepts a well-formed client request id or assigns one,
// and echoes the final id on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if !safeRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = context.WithValue(ctx, requestMetaKey, &requestMeta{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for the event log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// EventSink receives one event per handled request. A nil sink disables
// event recording.
type EventSink interface {
	Append(ctx context.Context, e eventlog.Event) error
}

// withObservability logs every request and appends it to the event log.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)

		requestID := RequestIDFromContext(r.Context())
		meta := metaFromContext(r.Context())
		if meta == nil {
			meta = &requestMeta{}
		}

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("route", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", duration),
		}
		if meta.cacheStatus != "" {
			fields = append(fields, zap.String("cache_status", meta.cacheStatus))
		}
		if meta.usage.TotalTokens > 0 {
			fields = append(fields, zap.Int("total_tokens", meta.usage.TotalTokens))
		}
		if recorder.status >= 400 {
			fields = append(fields, zap.String("error_code", meta.errorCode))
			s.log.Warn("request.failed", fields...)
		} else {
			s.log.Info("request.completed", fields...)
		}

		if s.events != nil {
			event := eventlog.Event{
				RequestID:    requestID,
				Route:        r.URL.Path,
				StatusCode:   recorder.status,
				ErrorCode:    meta.errorCode,
				CacheStatus:  meta.cacheStatus,
				DurationMS:   duration.Milliseconds(),
				PromptTokens: meta.usage.PromptTokens,
				OutputTokens: meta.usage.OutputTokens,
				TotalTokens:  meta.usage.TotalTokens,
			}
			if err := s.events.Append(r.Context(), event); err != nil {
				s.log.Warn("event log append failed", zap.Error(err))
			}
		}
	})
}

// withMaintenance refuses requests while the maintenance marker exists.
func (s *Server) withMaintenance(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.maint != nil && s.maint.Active() {
			s.writeError(w, r, apiError{
				status:  http.StatusServiceUnavailable,
				code:    CodeMaintenanceMode,
				message: "service is in maintenance mode",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withKeyAuth guards a route with a shared key header. An empty configured
// key leaves the route open, which is the development default.
func (s *Server) withKeyAuth(header, key string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key != "" {
			supplied := r.Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(key)) != 1 {
				s.writeError(w, r, apiError{
					status:  http.StatusUnauthorized,
					code:    CodeUnauthorized,
					message: "missing or invalid key",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
