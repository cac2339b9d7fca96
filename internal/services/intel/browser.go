package intel

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// BrowserFetcher is the tier-2 fetch service: a full browser render for
// pages that build their content client-side. It accepts the same
// options and returns the same result shape as the tier-1 fetcher,
// with Tier=2 and JSRendered=true. The core pipeline only sees it
// through the Fetcher interface.
type BrowserFetcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
}

// NewBrowserFetcher launches a headless browser for tier-2 fetches.
func NewBrowserFetcher(headless bool, logger *zap.Logger) (*BrowserFetcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return &BrowserFetcher{
		pw:      pw,
		browser: browser,
		logger:  logger,
	}, nil
}

// Close shuts down the browser and the playwright driver.
func (f *BrowserFetcher) Close() error {
	if f.browser != nil {
		f.browser.Close()
	}
	if f.pw != nil {
		return f.pw.Stop()
	}
	return nil
}

// Fetch renders the page in a browser and extracts the same normalized
// record as the tier-1 fetcher, from the post-render DOM.
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string, opts FetchOptions) (*FetchedPage, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchOptions().Timeout
	}

	// playwright-go carries no context plumbing; honor cancellation at
	// the entry point and lean on the navigation timeout after that.
	if err := ctx.Err(); err != nil {
		return nil, &FetchFailure{URL: pageURL, Tier: TierBrowser, Err: err}
	}

	browserCtx, err := f.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:  &playwright.Size{Width: 1920, Height: 1080},
		UserAgent: playwright.String(defaultUserAgent),
	})
	if err != nil {
		return nil, &FetchFailure{URL: pageURL, Tier: TierBrowser, Err: fmt.Errorf("creating browser context: %w", err)}
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, &FetchFailure{URL: pageURL, Tier: TierBrowser, Err: fmt.Errorf("creating page: %w", err)}
	}
	defer page.Close()

	resp, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, &FetchFailure{URL: pageURL, Tier: TierBrowser, Err: fmt.Errorf("navigating: %w", err)}
	}
	if resp != nil && resp.Status() >= 400 {
		return nil, &FetchFailure{URL: pageURL, Tier: TierBrowser, Err: fmt.Errorf("status %d", resp.Status())}
	}

	// Late-rendering components in React/Vue/Angular apps settle after
	// networkidle.
	page.WaitForTimeout(1500)

	finalURL := page.URL()
	title, _ := page.Title()

	description, _ := page.Evaluate(`() => {
		const og = document.querySelector('meta[property="og:description"]');
		if (og && og.content) return og.content;
		const meta = document.querySelector('meta[name="description"]');
		if (meta && meta.content) return meta.content;
		const p = [...document.querySelectorAll('p')].find(el => el.innerText.trim().length > 40);
		return p ? p.innerText.trim() : '';
	}`)

	heroImage, _ := page.Evaluate(`() => {
		const og = document.querySelector('meta[property="og:image"]');
		return og && og.content ? og.content : '';
	}`)

	rawImages, _ := page.Evaluate(`() => [...document.querySelectorAll('img')].map(img => ({
		src: img.currentSrc || img.src || img.dataset.src || '',
		alt: img.alt || '',
		width: img.naturalWidth || img.width || 0,
		height: img.naturalHeight || img.height || 0
	}))`)

	bodyText, _ := page.Evaluate(`() => {
		const clone = document.body.cloneNode(true);
		clone.querySelectorAll('script, style, noscript, nav, header, footer, aside').forEach(el => el.remove());
		return clone.innerText || '';
	}`)

	base, err := url.Parse(finalURL)
	if err != nil {
		base, _ = url.Parse(pageURL)
	}

	result := &FetchedPage{
		URL:         finalURL,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(asString(description)),
		Images:      convertBrowserImages(rawImages, base),
		BodyText:    collapseText(asString(bodyText)),
		Tier:        TierBrowser,
		JSRendered:  true,
	}
	if hero := resolveURL(base, asString(heroImage)); hero != "" {
		result.HeroImageURL = hero
	}

	f.logger.Debug("tier-2 fetch complete",
		zap.String("url", finalURL),
		zap.String("title", result.Title),
		zap.Int("images", len(result.Images)),
		zap.Int("body_len", len(result.BodyText)))

	return result, nil
}

// convertBrowserImages maps the evaluated image list into FetchedImage
// records, resolving URLs and dropping unresolvable entries.
func convertBrowserImages(raw interface{}, base *url.URL) []FetchedImage {
	images := []FetchedImage{}
	entries, ok := raw.([]interface{})
	if !ok {
		return images
	}

	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		resolved := resolveURL(base, asString(m["src"]))
		if resolved == "" {
			continue
		}
		images = append(images, FetchedImage{
			URL:     resolved,
			AltText: strings.TrimSpace(asString(m["alt"])),
			Width:   asInt(m["width"]),
			Height:  asInt(m["height"]),
		})
	}
	return images
}

func collapseText(text string) string {
	return truncateRunes(strings.Join(strings.Fields(text), " "), maxBodyText)
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
