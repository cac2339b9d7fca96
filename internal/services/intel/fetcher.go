package intel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"go.uber.org/zap"
)

const (
	// Realistic desktop headers. Some sites serve empty shells or block
	// outright when they see a naive bot client.
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptLanguage   = "en-US,en;q=0.9"

	// maxBodyText bounds the plain-text extraction. Prompt size
	// downstream scales with this, so it is a cost control knob.
	maxBodyText = 5000

	// minParagraphLen filters out navigation labels and other short UI
	// strings when falling back to body text for the description.
	minParagraphLen = 40

	// spaBodyThreshold: an SPA root marker plus less than this much
	// extracted text means the page renders client-side and tier-1
	// parsing saw only the pre-render shell.
	spaBodyThreshold = 200
)

// Fetcher retrieves a competitor page and normalizes it into a
// FetchedPage. Implemented by the static HTTP fetcher (tier 1) and the
// browser-rendering fetcher (tier 2).
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string, opts FetchOptions) (*FetchedPage, error)
}

// StaticFetcher is the tier-1 fetcher: one HTTP GET plus static HTML
// parsing. It fails only on transport-level errors; absent HTML
// elements simply yield empty fields.
type StaticFetcher struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewStaticFetcher creates a tier-1 fetcher. Each fetcher owns its own
// HTTP client so one slow host cannot starve unrelated pipeline runs.
func NewStaticFetcher(logger *zap.Logger) *StaticFetcher {
	return &StaticFetcher{
		client:    &http.Client{},
		userAgent: defaultUserAgent,
		logger:    logger,
	}
}

// Fetch performs the tier-1 fetch. Transport errors (DNS, timeout,
// non-2xx) return a *FetchFailure with Tier=1.
func (f *StaticFetcher) Fetch(ctx context.Context, pageURL string, opts FetchOptions) (*FetchedPage, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchOptions().Timeout
	}

	// The deadline cancels the in-flight request at the transport, not
	// just a client-side timer, so server-side resources are released.
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchFailure{URL: pageURL, Tier: TierStatic, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchFailure{URL: pageURL, Tier: TierStatic, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchFailure{URL: pageURL, Tier: TierStatic, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	finalURL := resp.Request.URL

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		// A body that cannot be tokenized at all is a transport-level
		// problem (truncated or non-HTML payload), not a parse failure.
		return nil, &FetchFailure{URL: pageURL, Tier: TierStatic, Err: fmt.Errorf("reading body: %w", err)}
	}

	page := f.parse(doc, finalURL)

	f.logger.Debug("tier-1 fetch complete",
		zap.String("url", finalURL.String()),
		zap.String("title", page.Title),
		zap.Int("images", len(page.Images)),
		zap.Int("body_len", len(page.BodyText)),
		zap.Bool("needs_tier2", page.NeedsTier2))

	return page, nil
}

// parse extracts the normalized page record from a parsed document.
// It never fails: missing elements produce empty fields.
func (f *StaticFetcher) parse(doc *goquery.Document, finalURL *url.URL) *FetchedPage {
	og := parseOpenGraph(doc)

	page := &FetchedPage{
		URL:        finalURL.String(),
		Images:     []FetchedImage{},
		Tier:       TierStatic,
		JSRendered: false,
	}

	// Title: og:title wins, then the document title.
	page.Title = strings.TrimSpace(og.Title)
	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	// Description: og:description, then meta description, then the
	// first paragraph-like block long enough to be real content.
	page.Description = strings.TrimSpace(og.Description)
	if page.Description == "" {
		page.Description = strings.TrimSpace(doc.Find(`meta[name="description"]`).First().AttrOr("content", ""))
	}
	if page.Description == "" {
		doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.TrimSpace(s.Text())
			if len(text) > minParagraphLen {
				page.Description = text
				return false
			}
			return true
		})
	}

	// Hero image: og:image, used only as a last-resort photo candidate.
	if len(og.Images) > 0 && og.Images[0].URL != "" {
		if resolved := resolveURL(finalURL, og.Images[0].URL); resolved != "" {
			page.HeroImageURL = resolved
		}
	}

	page.Images = extractImages(doc, finalURL)
	page.BodyText = extractBodyText(doc)
	page.NeedsTier2 = detectSPAShell(doc, page.BodyText)

	return page
}

// parseOpenGraph re-serializes the head and runs the opengraph parser
// over it. Parse errors yield an empty graph rather than failing the
// fetch.
func parseOpenGraph(doc *goquery.Document) *opengraph.OpenGraph {
	og := opengraph.NewOpenGraph()
	html, err := doc.Find("head").Html()
	if err != nil {
		return og
	}
	// ProcessHTML only reads meta tags, so feeding it the head alone
	// is sufficient and cheaper than the whole document.
	_ = og.ProcessHTML(strings.NewReader("<html><head>" + html + "</head><body></body></html>"))
	return og
}

// extractImages collects every image element, resolving src/data-src
// against the final URL. Unresolvable URLs are dropped silently.
func extractImages(doc *goquery.Document, base *url.URL) []FetchedImage {
	images := []FetchedImage{}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		if src == "" {
			src = s.AttrOr("data-src", "")
		}
		resolved := resolveURL(base, src)
		if resolved == "" {
			return
		}

		images = append(images, FetchedImage{
			URL:     resolved,
			AltText: strings.TrimSpace(s.AttrOr("alt", "")),
			Width:   parseDimension(s.AttrOr("width", "")),
			Height:  parseDimension(s.AttrOr("height", "")),
		})
	})
	return images
}

// extractBodyText produces plain text from the document body with
// script/style/nav/header/footer/aside subtrees removed first. Those
// inflate noise and can leak unrelated text into the AI prompt.
func extractBodyText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, nav, header, footer, aside").Remove()

	text := strings.Join(strings.Fields(body.Text()), " ")
	return truncateRunes(text, maxBodyText)
}

// truncateRunes caps s at max characters. Slicing by bytes would split
// a multibyte sequence at the cap and leave invalid UTF-8 behind.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// detectSPAShell flags pages whose markup exposes a known SPA root
// marker while the extracted body text is nearly empty. Such pages
// render their entire content client-side; without this flag tier-1
// parsing would silently return near-empty data with no error raised.
func detectSPAShell(doc *goquery.Document, bodyText string) bool {
	if len(bodyText) >= spaBodyThreshold {
		return false
	}
	return doc.Find("#root, #app, [data-reactroot]").Length() > 0
}

// resolveURL resolves a possibly-relative reference against the final
// page URL. Returns "" for empty, data:, or unparsable references.
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// parseDimension parses a width/height attribute. Non-numeric values
// (percentages, "auto") are treated as unknown.
func parseDimension(raw string) int {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "px"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
