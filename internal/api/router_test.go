package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prodscope/prodscope/internal/services/intel"
)

type fakeFetcher struct {
	page *intel.FetchedPage
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, _ intel.FetchOptions) (*intel.FetchedPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestRouter(fetcher intel.Fetcher, generator intel.TextGenerator) http.Handler {
	logger := zap.NewNop()
	pipeline := intel.NewPipeline(fetcher, generator, logger)
	return NewRouter(RouterConfig{
		Pipeline:     pipeline,
		FetchOptions: intel.DefaultFetchOptions(),
		Logger:       logger,
	})
}

func happyRouter() http.Handler {
	return newTestRouter(
		&fakeFetcher{page: &intel.FetchedPage{
			URL:      "https://acme.test/widget",
			Title:    "Widget",
			BodyText: "Widget body.",
			Tier:     intel.TierStatic,
		}},
		&fakeGenerator{response: `{"brand":"Acme","productName":"Widget","description":"d","cost":"$9","link":""}`},
	)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(t *testing.T, h http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestHealthEndpoint(t *testing.T) {
	rec, env := doRequest(t, happyRouter(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestAnalyzeEndpoint(t *testing.T) {
	body := []byte(`{"url":"https://acme.test/widget"}`)
	rec, env := doRequest(t, happyRouter(), http.MethodPost, "/api/v1/analyze", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.Success)

	var result intel.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "Acme", result.Record.Brand)
	assert.Equal(t, "https://acme.test/widget", result.Record.Link)
	assert.Equal(t, intel.StatusOK, result.Status)
	assert.Nil(t, result.Page, "the raw page stays server-side")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAnalyzeEndpointValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{}`},
		{"empty url", `{"url":""}`},
		{"malformed json", `{"url":`},
		{"relative url", `{"url":"/not/absolute"}`},
		{"bad scheme", `{"url":"ftp://acme.test/x"}`},
	}

	router := happyRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doRequest(t, router, http.MethodPost, "/api/v1/analyze", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		})
	}
}

func TestAnalyzeEndpointFetchFailureStillSucceeds(t *testing.T) {
	router := newTestRouter(
		&fakeFetcher{err: errors.New("connection refused")},
		&fakeGenerator{response: `{"brand":"","productName":"","description":"","cost":"","link":""}`},
	)

	body := []byte(`{"url":"https://down.test/p"}`)
	rec, env := doRequest(t, router, http.MethodPost, "/api/v1/analyze", body)

	require.Equal(t, http.StatusOK, rec.Code)
	var result intel.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, intel.StatusDegraded, result.Status)
	assert.NotEmpty(t, result.Notes)
}

func TestAnalyzeEndpointCapabilityFailure(t *testing.T) {
	router := newTestRouter(
		&fakeFetcher{page: &intel.FetchedPage{URL: "https://acme.test/w", Title: "W"}},
		&fakeGenerator{err: errors.New("provider outage")},
	)

	body := []byte(`{"url":"https://acme.test/w"}`)
	rec, env := doRequest(t, router, http.MethodPost, "/api/v1/analyze", body)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "EXTERNAL_API_ERROR", env.Error.Code)
}
