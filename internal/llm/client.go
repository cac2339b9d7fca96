// Package llm implements the text-generation capability against an
// Anthropic-compatible messages API. Provider fallback chains live
// outside this service; the analysis pipeline consumes this client
// through a single-method interface.
package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prodscope/prodscope/internal/observability"
	"github.com/prodscope/prodscope/internal/resilience"
)

// Config for the generation client.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Timeout      time.Duration
	RateLimitRPM int // client-side request budget, not a caller-facing limit
	CacheTTL     time.Duration
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://api.anthropic.com",
		Model:        "claude-sonnet-4-20250514",
		MaxTokens:    2048,
		Timeout:      120 * time.Second,
		RateLimitRPM: 50,
		CacheTTL:     time.Hour,
	}
}

// Client talks to the messages API. It performs no retries: retry and
// multi-provider fallback are the surrounding capability chain's job.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client

	rateLimiter *rate.Limiter
	breaker     *resilience.CircuitBreaker
	cache       *responseCache
	cacheTTL    time.Duration
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// Option configures optional client collaborators.
type Option func(*Client)

// WithBreaker guards requests with a circuit breaker. An open breaker
// surfaces as a capability failure.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithMetrics records request and token metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a generation client.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = def.RateLimitRPM
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	c := &Client{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 1),
		cache:       newResponseCache(),
		cacheTTL:    cfg.CacheTTL,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// request is a messages API request.
type request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// response is a messages API response.
type response struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// GenerateText sends one completion request and returns the generated
// text. Implements the pipeline's TextGenerator capability.
func (c *Client) GenerateText(ctx context.Context, prompt, systemPrompt string) (string, error) {
	cacheKey := c.cacheKey(systemPrompt, prompt)
	if cached, ok := c.cache.get(cacheKey); ok {
		return cached, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	req := request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []message{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3, // extraction wants determinism, not creativity
	}

	start := time.Now()
	var resp *response
	call := func() error {
		var err error
		resp, err = c.doRequest(ctx, req)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.ObserveGeneration("error", 0, 0)
		}
		return "", err
	}

	if c.metrics != nil {
		c.metrics.ObserveGeneration("ok", resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	if len(resp.Content) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	text := resp.Content[0].Text

	c.logger.Debug("generation complete",
		zap.String("model", resp.Model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("latency", time.Since(start)))

	c.cache.set(cacheKey, text, c.cacheTTL)
	return text, nil
}

func (c *Client) doRequest(ctx context.Context, req request) (*response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &apiResp, nil
}

// cacheKey hashes both prompts so identical extractions within the TTL
// are served without a second API call.
func (c *Client) cacheKey(systemPrompt, prompt string) string {
	h := sha256.Sum256([]byte(c.model + "\x00" + systemPrompt + "\x00" + prompt))
	return hex.EncodeToString(h[:])
}

// responseCache is an in-memory TTL cache of generation responses.
type responseCache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	text      string
	expiresAt time.Time
}

func newResponseCache() *responseCache {
	return &responseCache{data: make(map[string]cacheEntry)}
}

func (rc *responseCache) get(key string) (string, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	entry, ok := rc.data[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.text, true
}

func (rc *responseCache) set(key, text string, ttl time.Duration) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.data[key] = cacheEntry{text: text, expiresAt: time.Now().Add(ttl)}
}
