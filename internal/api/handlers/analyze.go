package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/prodscope/prodscope/internal/domain"
	"github.com/prodscope/prodscope/internal/services/intel"
	"github.com/prodscope/prodscope/pkg/httputil"
)

// AnalyzeHandler exposes the competitor analysis pipeline over HTTP.
type AnalyzeHandler struct {
	pipeline *intel.Pipeline
	defaults intel.FetchOptions
	logger   *zap.Logger
}

// NewAnalyzeHandler creates the analyze handler.
func NewAnalyzeHandler(pipeline *intel.Pipeline, defaults intel.FetchOptions, logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		pipeline: pipeline,
		defaults: defaults,
		logger:   logger,
	}
}

// AnalyzeRequest is the request body for POST /api/v1/analyze.
type AnalyzeRequest struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	SkipTier2      bool   `json:"skip_tier2,omitempty"`
}

// Analyze runs one competitor analysis for the requested URL.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if req.URL == "" {
		httputil.BadRequest(w, "url is required")
		return
	}

	opts := h.defaults
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if req.SkipTier2 {
		opts.SkipTier2 = true
	}

	result, err := h.pipeline.Run(r.Context(), req.URL, opts)
	if err != nil {
		if errors.Is(err, intel.ErrInvalidURL) {
			httputil.JSONError(w, domain.NewValidationError(err.Error(), err))
			return
		}
		h.logger.Error("analysis failed", zap.String("url", req.URL), zap.Error(err))
		httputil.JSONError(w, domain.NewCapabilityError("competitor analysis failed", err))
		return
	}

	// The raw page is kept server-side for diagnostics, not returned.
	result.Page = nil
	httputil.JSON(w, http.StatusOK, result)
}
