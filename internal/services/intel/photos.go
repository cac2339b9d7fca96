package intel

import (
	"net/url"
	"strings"
)

// Photo classification is a deliberate rule set rather than ML: URL
// patterns, alt-text patterns, and dimension thresholds. Everything in
// this file is pure and deterministic given identical inputs.

// MaxPhotoCandidates bounds how many candidate photos survive the
// boundary filter between fetcher and orchestrator.
const MaxPhotoCandidates = 5

// urlExclusionPatterns match path/query substrings of assets that are
// essentially never product photos: UI chrome, branding, tracking.
var urlExclusionPatterns = []string{
	"icon",
	"logo",
	"sprite",
	"avatar",
	"banner",
	"tracking",
	"pixel",
	"/ads/",
	"/ad/",
	"placeholder",
	"1x1",
	".svg",
}

// altExclusionExact are alt-text values (after trimming and lowering)
// that mark non-product imagery; altExclusionPrefixes match loosely.
var altExclusionExact = []string{
	"logo",
	"icon",
	"avatar",
	"spacer",
	"pixel",
}

var altExclusionPrefixes = []string{
	"tracking",
	"advertisement",
}

// IsExcludedByURL reports whether the image URL matches a known
// non-product pattern. Malformed URLs cannot be classified and are
// excluded by construction.
func IsExcludedByURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return true
	}

	target := strings.ToLower(parsed.Path)
	if parsed.RawQuery != "" {
		target += "?" + strings.ToLower(parsed.RawQuery)
	}

	for _, pattern := range urlExclusionPatterns {
		if strings.Contains(target, pattern) {
			return true
		}
	}
	return false
}

// IsExcludedByAlt reports whether the alt text marks the image as
// non-product (logos, icons, tracking pixels, ads).
func IsExcludedByAlt(altText string) bool {
	alt := strings.ToLower(strings.TrimSpace(altText))
	if alt == "" {
		return false
	}

	for _, label := range altExclusionExact {
		if alt == label {
			return true
		}
	}
	for _, prefix := range altExclusionPrefixes {
		if strings.HasPrefix(alt, prefix) {
			return true
		}
	}
	return false
}

// MeetsMinimumSize checks dimension thresholds. Images with unknown
// dimensions pass: absence of evidence is not evidence of exclusion,
// and the enrichment model can still judge suitability from URL and
// alt text alone.
func MeetsMinimumSize(img FetchedImage, criteria PhotoFilterCriteria) bool {
	if !img.HasDimensions() {
		return true
	}

	if img.Width < criteria.MinWidth || img.Height < criteria.MinHeight {
		return false
	}
	if img.Area() < criteria.MinArea {
		return false
	}

	ratio := float64(img.Width) / float64(img.Height)
	if ratio < criteria.MinAspectRatio || ratio > criteria.MaxAspectRatio {
		return false
	}
	return true
}

// IsProductPhoto reports whether the image is a plausible product
// photo: not excluded by URL, not excluded by alt text, and within the
// dimension thresholds.
func IsProductPhoto(img FetchedImage, criteria PhotoFilterCriteria) bool {
	if IsExcludedByURL(img.URL) {
		return false
	}
	if IsExcludedByAlt(img.AltText) {
		return false
	}
	return MeetsMinimumSize(img, criteria)
}

// FilterProductPhotos returns up to maxResults images passing
// IsProductPhoto, preserving original discovery order. maxResults <= 0
// means MaxPhotoCandidates.
func FilterProductPhotos(images []FetchedImage, criteria PhotoFilterCriteria, maxResults int) []FetchedImage {
	if maxResults <= 0 {
		maxResults = MaxPhotoCandidates
	}

	filtered := make([]FetchedImage, 0, maxResults)
	for _, img := range images {
		if !IsProductPhoto(img, criteria) {
			continue
		}
		filtered = append(filtered, img)
		if len(filtered) >= maxResults {
			break
		}
	}
	return filtered
}

// SelectBestPhoto picks the single best product-photo candidate.
// Candidates with known dimensions win over those without; among them
// the largest area wins, ties broken by first-seen order. When no
// candidate has known dimensions the first passing candidate is
// returned. Returns (zero, false) when nothing passes at all.
func SelectBestPhoto(images []FetchedImage, criteria PhotoFilterCriteria) (FetchedImage, bool) {
	var best FetchedImage
	var found bool
	var firstPassing FetchedImage
	var anyPassing bool

	for _, img := range images {
		if !IsProductPhoto(img, criteria) {
			continue
		}
		if !anyPassing {
			firstPassing = img
			anyPassing = true
		}
		if !img.HasDimensions() {
			continue
		}
		// Strict greater-than keeps the first-seen image on area ties.
		if !found || img.Area() > best.Area() {
			best = img
			found = true
		}
	}

	if found {
		return best, true
	}
	if anyPassing {
		return firstPassing, true
	}
	return FetchedImage{}, false
}
