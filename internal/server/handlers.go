package server

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sungjin9288/DecisionDoc-AI/internal/generation"
	"github.com/sungjin9288/DecisionDoc-AI/internal/ops"
	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

// maxRequestBody caps request payloads; requirement text is small.
const maxRequestBody = 1 << 20

// generateResponse is the success envelope of the generation routes.
type generateResponse struct {
	RequestID   string                    `json:"request_id"`
	BundleID    string                    `json:"bundle_id"`
	CacheStatus generation.CacheStatus    `json:"cache_status"`
	Docs        map[schema.DocType]string `json:"docs"`
	Usage       schema.Provenance         `json:"usage"`
	Timings     generation.Timings        `json:"timings"`
	ExportKeys  []string                  `json:"export_keys,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.maint != nil && s.maint.Active() {
		status = "maintenance"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":   status,
		"provider": s.cfg.Provider.Name,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.runGeneration(w, r, s.gen.Generate)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	s.runGeneration(w, r, s.gen.Export)
}

func (s *Server) runGeneration(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, req *schema.GenerateRequest) (*generation.Result, error)) {
	req, ok := s.decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout())
	defer cancel()
	result, err := run(ctx, req)
	if err != nil {
		s.log.Warn("generation failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err))
		s.writeError(w, r, mapError(err))
		return
	}

	if meta := metaFromContext(r.Context()); meta != nil {
		meta.cacheStatus = string(result.CacheStatus)
		meta.usage.PromptTokens = result.Bundle.Provenance.PromptTokens
		meta.usage.OutputTokens = result.Bundle.Provenance.OutputTokens
		meta.usage.TotalTokens = result.Bundle.Provenance.TotalTokens
	}

	docs := make(map[schema.DocType]string, len(result.Docs))
	for _, doc := range result.Docs {
		docs[doc.DocType] = doc.Markdown
	}
	s.writeJSON(w, http.StatusOK, generateResponse{
		RequestID:   RequestIDFromContext(r.Context()),
		BundleID:    result.BundleID,
		CacheStatus: result.CacheStatus,
		Docs:        docs,
		Usage:       result.Bundle.Provenance,
		Timings:     result.Timings,
		ExportKeys:  result.ExportKeys,
	})
}

func (s *Server) decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (*schema.GenerateRequest, bool) {
	var req schema.GenerateRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, r, apiError{
			status:  http.StatusUnprocessableEntity,
			code:    CodeRequestValidationFailed,
			message: "request body is not a valid generate request",
		})
		return nil, false
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.writeError(w, r, apiError{
			status:  http.StatusUnprocessableEntity,
			code:    CodeRequestValidationFailed,
			message: err.Error(),
		})
		return nil, false
	}
	return &req, true
}

// investigateResponse is the success envelope of the investigation route.
type investigateResponse struct {
	RequestID string      `json:"request_id"`
	Report    *ops.Report `json:"report"`
}

func (s *Server) handleInvestigate(w http.ResponseWriter, r *http.Request) {
	var params ops.Params
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&params); err != nil {
		s.writeError(w, r, apiError{
			status:  http.StatusUnprocessableEntity,
			code:    CodeRequestValidationFailed,
			message: "request body is not a valid investigation trigger",
		})
		return
	}
	if err := params.Validate(); err != nil {
		s.writeError(w, r, apiError{
			status:  http.StatusUnprocessableEntity,
			code:    CodeRequestValidationFailed,
			message: err.Error(),
		})
		return
	}

	report, err := s.inv.Investigate(r.Context(), params)
	if err != nil {
		s.log.Warn("investigation failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err))
		s.writeError(w, r, mapError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, investigateResponse{
		RequestID: RequestIDFromContext(r.Context()),
		Report:    report,
	})
}
