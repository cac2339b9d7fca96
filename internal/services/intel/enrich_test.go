package intel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubGenerator returns a canned response or error.
type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubGenerator) GenerateText(_ context.Context, prompt, _ string) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testPage() *FetchedPage {
	return &FetchedPage{
		URL:         "https://rival.test/widget",
		Title:       "Rival Widget",
		Description: "A rival's take on widgets.",
		BodyText:    "Rival Widget is the premium widget for professionals. Pricing starts at $49.",
		Tier:        TierStatic,
	}
}

func TestEnricher_CleanJSON(t *testing.T) {
	gen := &stubGenerator{response: `{"brand":"Rival Co","productName":"Rival Widget","description":"Premium widget.","cost":"$49","link":"https://rival.test/guessed"}`}
	e := NewEnricher(gen, zap.NewNop())

	record, fallback, err := e.Enrich(context.Background(), "https://rival.test/widget", testPage())
	require.NoError(t, err)
	assert.False(t, fallback)

	assert.Equal(t, "Rival Co", record.Brand)
	assert.Equal(t, "Rival Widget", record.ProductName)
	assert.Equal(t, "$49", record.Cost)
	// The model's guessed link is discarded.
	assert.Equal(t, "https://rival.test/widget", record.Link)
}

func TestEnricher_FencedJSON(t *testing.T) {
	fenced := "```json\n{\"brand\":\"Rival Co\",\"productName\":\"Rival Widget\",\"description\":\"Premium.\",\"cost\":\"\",\"link\":\"\"}\n```"
	unfenced := `{"brand":"Rival Co","productName":"Rival Widget","description":"Premium.","cost":"","link":""}`

	e1 := NewEnricher(&stubGenerator{response: fenced}, zap.NewNop())
	e2 := NewEnricher(&stubGenerator{response: unfenced}, zap.NewNop())

	r1, fb1, err := e1.Enrich(context.Background(), "https://rival.test/widget", testPage())
	require.NoError(t, err)
	r2, fb2, err := e2.Enrich(context.Background(), "https://rival.test/widget", testPage())
	require.NoError(t, err)

	// Fenced and unfenced output parse identically.
	assert.Equal(t, r2, r1)
	assert.False(t, fb1)
	assert.False(t, fb2)
}

func TestEnricher_ProseWrappedJSON(t *testing.T) {
	gen := &stubGenerator{response: `Here is the extracted data:
{"brand":"Rival Co","productName":"Rival Widget","description":"d","cost":"","link":""}
Hope that helps!`}
	e := NewEnricher(gen, zap.NewNop())

	record, fallback, err := e.Enrich(context.Background(), "https://rival.test/widget", testPage())
	require.NoError(t, err)
	assert.False(t, fallback)
	assert.Equal(t, "Rival Co", record.Brand)
}

func TestEnricher_UnparsableOutputDegrades(t *testing.T) {
	gen := &stubGenerator{response: "not json at all"}
	e := NewEnricher(gen, zap.NewNop())

	page := testPage()
	record, fallback, err := e.Enrich(context.Background(), "https://rival.test/widget", page)
	require.NoError(t, err)
	assert.True(t, fallback)

	assert.Equal(t, "", record.Brand)
	assert.Equal(t, page.Title, record.ProductName)
	assert.Equal(t, page.Description, record.Description)
	assert.Equal(t, "", record.Cost)
	assert.Equal(t, "https://rival.test/widget", record.Link)
}

func TestEnricher_CapabilityFailurePropagates(t *testing.T) {
	backendDown := errors.New("provider outage")
	e := NewEnricher(&stubGenerator{err: backendDown}, zap.NewNop())

	_, _, err := e.Enrich(context.Background(), "https://rival.test/widget", testPage())
	require.Error(t, err)
	assert.ErrorIs(t, err, backendDown)
}

func TestEnricher_PromptIsBounded(t *testing.T) {
	page := testPage()
	page.BodyText = strings.Repeat("lorem ipsum widget text ", 400)

	gen := &stubGenerator{response: `{"brand":"","productName":"","description":"","cost":"","link":""}`}
	e := NewEnricher(gen, zap.NewNop())

	_, _, err := e.Enrich(context.Background(), page.URL, page)
	require.NoError(t, err)

	// The prompt carries at most maxPromptBody of body text plus the
	// fixed framing.
	assert.Less(t, len(gen.lastPrompt), maxPromptBody+500)
	assert.Contains(t, gen.lastPrompt, page.URL)
}

func TestEnricher_MultibyteBodyTruncatesCleanly(t *testing.T) {
	page := testPage()
	// A multibyte rune straddling the byte position of the cap must not
	// be split in half.
	page.BodyText = strings.Repeat("a", maxPromptBody-1) + "déjà vu " + strings.Repeat("é", 50)

	gen := &stubGenerator{response: `{"brand":"","productName":"","description":"","cost":"","link":""}`}
	e := NewEnricher(gen, zap.NewNop())

	_, _, err := e.Enrich(context.Background(), page.URL, page)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(gen.lastPrompt))
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced with language", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced without language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", `sure: {"a":1}`, `{"a":1}`},
		{"trailing prose", `{"a":1} done`, `{"a":1}`},
		{"nested objects", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"braces inside strings", `{"a":"{not a brace}"}`, `{"a":"{not a brace}"}`},
		{"escaped quotes", `{"a":"he said \"hi\""}`, `{"a":"he said \"hi\""}`},
		{"no object", "nothing here", ""},
		{"unbalanced", `{"a":1`, ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSONObject(tt.in))
		})
	}
}
