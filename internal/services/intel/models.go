package intel

import (
	"fmt"
	"time"
)

// Fetch tiers. Tier 1 is a plain HTTP GET plus static HTML parsing;
// tier 2 is a full browser render for pages that build their content
// client-side.
const (
	TierStatic  = 1
	TierBrowser = 2
)

// FetchOptions controls a single fetch attempt. The same options are
// passed unchanged to both fetch tiers.
type FetchOptions struct {
	Timeout   time.Duration `json:"timeout"`
	SkipTier2 bool          `json:"skip_tier2"`
}

// DefaultFetchOptions returns the default fetch configuration.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		Timeout:   15 * time.Second,
		SkipTier2: false,
	}
}

// FetchedImage is one image discovered on a fetched page. Width and
// height are best-effort: zero when the source markup omits them.
type FetchedImage struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// HasDimensions reports whether both width and height are known.
func (img FetchedImage) HasDimensions() bool {
	return img.Width > 0 && img.Height > 0
}

// Area returns width*height, or 0 when dimensions are unknown.
func (img FetchedImage) Area() int {
	if !img.HasDimensions() {
		return 0
	}
	return img.Width * img.Height
}

// FetchedPage is the normalized result of one page fetch. It is built
// once by a fetcher and passed by value downstream; no stage mutates it
// after creation.
type FetchedPage struct {
	URL          string         `json:"url"` // post-redirect
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	HeroImageURL string         `json:"hero_image_url,omitempty"`
	Images       []FetchedImage `json:"images"`
	BodyText     string         `json:"body_text"`
	Tier         int            `json:"tier"`
	JSRendered   bool           `json:"js_rendered"`

	// NeedsTier2 is advisory: tier-1 parsing found an SPA root marker
	// and almost no body text, so the pre-render HTML is likely empty
	// of real content. The orchestrator decides whether to escalate.
	NeedsTier2 bool `json:"needs_tier2,omitempty"`
}

// EmptyPage returns the degraded page used when a fetch failed
// entirely. Enrichment can still attempt extraction from the URL alone.
func EmptyPage(url string) *FetchedPage {
	return &FetchedPage{
		URL:        url,
		Images:     []FetchedImage{},
		Tier:       TierStatic,
		JSRendered: false,
	}
}

// CompetitorRecord is the pipeline's final output. Link always carries
// the originally requested URL, never the enrichment model's guess.
type CompetitorRecord struct {
	Brand       string `json:"brand"`
	ProductName string `json:"product_name"`
	Description string `json:"description"`
	Cost        string `json:"cost"`
	Link        string `json:"link"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// PhotoFilterCriteria holds the dimension thresholds used by the photo
// classifier.
type PhotoFilterCriteria struct {
	MinWidth       int     `json:"min_width"`
	MinHeight      int     `json:"min_height"`
	MinArea        int     `json:"min_area"`
	MinAspectRatio float64 `json:"min_aspect_ratio"`
	MaxAspectRatio float64 `json:"max_aspect_ratio"`
}

// DefaultPhotoCriteria returns the default classification thresholds.
// The values are empirical; the aspect-ratio band rejects thin banner
// strips and extreme crops that are rarely primary product shots.
func DefaultPhotoCriteria() PhotoFilterCriteria {
	return PhotoFilterCriteria{
		MinWidth:       200,
		MinHeight:      150,
		MinArea:        40000,
		MinAspectRatio: 0.4,
		MaxAspectRatio: 3.0,
	}
}

// FetchFailure is a transport-level fetch error tagged with the URL and
// the tier that failed. HTML parsing never produces a FetchFailure.
type FetchFailure struct {
	URL  string
	Tier int
	Err  error
}

// Error implements the error interface.
func (f *FetchFailure) Error() string {
	return fmt.Sprintf("fetch tier %d failed for %s: %v", f.Tier, f.URL, f.Err)
}

// Unwrap returns the underlying transport error.
func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// Status distinguishes a fully successful run from one that completed
// through a degraded path. Soft failures are recorded here instead of
// being raised as errors.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// AnalysisResult is the orchestrator's output: the record plus explicit
// status so "succeeded-with-fallback" is visible to callers and tests.
type AnalysisResult struct {
	RunID    string           `json:"run_id"`
	Record   CompetitorRecord `json:"record"`
	Status   Status           `json:"status"`
	Notes    []string         `json:"notes,omitempty"` // one entry per degradation
	Page     *FetchedPage     `json:"page,omitempty"`  // raw fetch output, kept for diagnostics
	Duration time.Duration    `json:"duration"`

	// PhotoCandidates is the boundary pre-filter output: up to
	// MaxPhotoCandidates images that passed classification.
	PhotoCandidates []FetchedImage `json:"photo_candidates,omitempty"`
}
