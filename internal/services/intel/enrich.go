package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// maxPromptBody caps how much body text reaches the prompt. Tighter
// than the fetcher's cap: prompt cost and latency scale with this, and
// the opening of a page is usually its most information-dense region.
const maxPromptBody = 1500

const enrichSystemPrompt = `You are a competitive-intelligence analyst. ` +
	`Given the content of a competitor's product page, extract structured product data. ` +
	`Return ONLY a JSON object with exactly these five fields: ` +
	`{"brand": string, "productName": string, "description": string, "cost": string, "link": string}. ` +
	`Use an empty string for anything the page does not reveal. No markdown, no explanations.`

// TextGenerator is the external text-generation capability. Provider
// selection, fallback chains, and retries live behind this interface;
// the pipeline assumes only that some text comes back, with no
// guarantee it is valid JSON.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Enricher turns a fetched page into a structured CompetitorRecord via
// a text-generation call with defensive output parsing.
type Enricher struct {
	generator TextGenerator
	logger    *zap.Logger
}

// NewEnricher creates an enrichment step backed by the given generator.
func NewEnricher(generator TextGenerator, logger *zap.Logger) *Enricher {
	return &Enricher{
		generator: generator,
		logger:    logger,
	}
}

// Enrich extracts competitor data from the page. A malformed model
// response never fails outward: it degrades to a minimal record built
// from the page's own title and description. Only a failure of the
// generation capability itself propagates, since there is no safe
// degraded output for "we could not even attempt enrichment".
// The bool return reports whether the parse fallback was taken.
func (e *Enricher) Enrich(ctx context.Context, pageURL string, page *FetchedPage) (CompetitorRecord, bool, error) {
	prompt := buildEnrichPrompt(pageURL, page)

	raw, err := e.generator.GenerateText(ctx, prompt, enrichSystemPrompt)
	if err != nil {
		return CompetitorRecord{}, false, fmt.Errorf("generating competitor data: %w", err)
	}

	jsonStr := extractJSONObject(raw)

	var payload enrichmentPayload
	if jsonStr == "" || json.Unmarshal([]byte(jsonStr), &payload) != nil {
		e.logger.Warn("enrichment output was not valid JSON, using minimal record",
			zap.String("url", pageURL),
			zap.String("raw_output", truncate(raw, 300)))
		return minimalRecord(pageURL, page), true, nil
	}

	return CompetitorRecord{
		Brand:       payload.Brand,
		ProductName: payload.ProductName,
		Description: payload.Description,
		Cost:        payload.Cost,
		Link:        pageURL,
	}, false, nil
}

// enrichmentPayload mirrors the exact key names the system prompt
// instructs the model to emit. Decoding into a dedicated shape keeps
// the wire contract with the model independent of CompetitorRecord's
// own serialization.
type enrichmentPayload struct {
	Brand       string `json:"brand"`
	ProductName string `json:"productName"`
	Description string `json:"description"`
	Cost        string `json:"cost"`
	Link        string `json:"link"`
}

// buildEnrichPrompt assembles the bounded prompt for extraction.
func buildEnrichPrompt(pageURL string, page *FetchedPage) string {
	body := truncateRunes(page.BodyText, maxPromptBody)

	var b strings.Builder
	fmt.Fprintf(&b, "Competitor page URL: %s\n", pageURL)
	if page.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", page.Title)
	}
	if page.Description != "" {
		fmt.Fprintf(&b, "Page description: %s\n", page.Description)
	}
	if body != "" {
		fmt.Fprintf(&b, "\nPage content:\n%s\n", body)
	}
	b.WriteString("\nExtract the competitor's product data as JSON.")
	return b.String()
}

// minimalRecord is the degraded enrichment output: structurally valid,
// populated from the page itself. The orchestrator has no retry budget
// for this stage, so this path must never be a nil or an error.
func minimalRecord(pageURL string, page *FetchedPage) CompetitorRecord {
	return CompetitorRecord{
		Brand:       "",
		ProductName: page.Title,
		Description: page.Description,
		Cost:        "",
		Link:        pageURL,
	}
}

var codeFencePattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// extractJSONObject pulls a JSON object out of model output. Models
// sometimes wrap JSON in markdown code fences or surround it with
// prose; this strips fences first, then falls back to scanning for the
// first balanced object. Returns "" when no object is found.
func extractJSONObject(text string) string {
	if matches := codeFencePattern.FindStringSubmatch(text); len(matches) > 1 {
		text = matches[1]
	}
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	text = text[start:]

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
