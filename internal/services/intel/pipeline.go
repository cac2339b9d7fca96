package intel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prodscope/prodscope/internal/observability"
)

// Pipeline sequences one competitor analysis run:
//
//	FETCH -> (escalate if needed) -> ENRICH -> ATTACH_PHOTO -> DONE
//
// Each stage contains its own soft failures so that one broken page
// never aborts the caller's broader workflow. Runs are stateless; a
// caller may execute any number of them concurrently.
type Pipeline struct {
	fetcher  Fetcher
	tier2    Fetcher // optional browser-rendering collaborator
	enricher *Enricher
	criteria PhotoFilterCriteria
	metrics  *observability.Metrics
	logger   *zap.Logger

	// Progress reporting
	onPhase func(phase string)
}

// Pipeline phases, reported to the progress callback in order.
const (
	PhaseFetch       = "fetch"
	PhaseEnrich      = "enrich"
	PhaseAttachPhoto = "attach_photo"
	PhaseDone        = "done"
)

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithTier2 wires the full-rendering fetch service consulted when
// tier-1 output signals insufficiency. Without it, tier-1 output is
// authoritative.
func WithTier2(fetcher Fetcher) PipelineOption {
	return func(p *Pipeline) { p.tier2 = fetcher }
}

// WithPhotoCriteria overrides the default photo classification
// thresholds.
func WithPhotoCriteria(criteria PhotoFilterCriteria) PipelineOption {
	return func(p *Pipeline) { p.criteria = criteria }
}

// WithMetrics wires Prometheus metrics for pipeline stages.
func WithMetrics(m *observability.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithProgress sets a callback invoked as each phase starts.
func WithProgress(fn func(phase string)) PipelineOption {
	return func(p *Pipeline) { p.onPhase = fn }
}

// NewPipeline creates a competitor analysis pipeline.
func NewPipeline(fetcher Fetcher, generator TextGenerator, logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		fetcher:  fetcher,
		enricher: NewEnricher(generator, logger),
		criteria: DefaultPhotoCriteria(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ErrInvalidURL is returned when the requested URL is not an absolute
// http(s) URL. Rejected before any network I/O.
var ErrInvalidURL = errors.New("url must be an absolute http or https URL")

// Run executes one analysis for the given competitor URL. It returns
// an error only for an invalid URL or when the generation capability
// itself is unavailable; transport and parse failures degrade instead.
func (p *Pipeline) Run(ctx context.Context, rawURL string, opts FetchOptions) (*AnalysisResult, error) {
	start := time.Now()

	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	result := &AnalysisResult{
		RunID:  uuid.NewString(),
		Status: StatusOK,
	}
	log := p.logger.With(zap.String("run_id", result.RunID), zap.String("url", rawURL))

	// FETCH. A dead or blocked competitor URL still yields a record,
	// possibly with brand and description left blank.
	p.reportPhase(PhaseFetch)
	page := p.fetchPage(ctx, log, rawURL, opts, result)
	result.Page = page

	// Photo pre-filter, applied once at the fetcher/orchestrator
	// boundary; the capped candidate list is recorded on the result so
	// callers can see what the classifier kept. The raw page keeps
	// every discovered image for diagnostics.
	result.PhotoCandidates = FilterProductPhotos(page.Images, p.criteria, MaxPhotoCandidates)

	// ENRICH. Capability failures propagate: nothing safe substitutes
	// for "we could not even attempt enrichment".
	p.reportPhase(PhaseEnrich)
	record, usedFallback, err := p.enricher.Enrich(ctx, rawURL, page)
	if err != nil {
		// Hard failure, not a degraded completion: keep the metric
		// labels apart so dashboards can tell the two cases.
		p.observeEnrichment("error")
		p.observePipeline("error", time.Since(start))
		return nil, fmt.Errorf("enrichment: %w", err)
	}
	if usedFallback {
		p.observeEnrichment("fallback")
		p.degrade(result, "enrichment output unparsable, used minimal record")
	} else {
		p.observeEnrichment("ok")
	}

	// ATTACH_PHOTO. Selection screens the full image inventory itself,
	// so a large photo discovered past the candidate cap can still win.
	p.reportPhase(PhaseAttachPhoto)
	if best, ok := SelectBestPhoto(page.Images, p.criteria); ok {
		record.PhotoURL = best.URL
		p.observePhoto("selected")
	} else if page.HeroImageURL != "" {
		record.PhotoURL = page.HeroImageURL
		p.observePhoto("og_image")
	} else {
		p.observePhoto("none")
	}

	// The model's declared canonical URL is discarded: Link always
	// carries the originally requested URL.
	record.Link = rawURL

	p.reportPhase(PhaseDone)
	result.Record = record
	result.Duration = time.Since(start)
	p.observePipeline(string(result.Status), result.Duration)

	log.Info("analysis complete",
		zap.String("status", string(result.Status)),
		zap.String("brand", record.Brand),
		zap.String("product", record.ProductName),
		zap.Bool("has_photo", record.PhotoURL != ""),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// fetchPage runs tier-1, escalates through the tier-2 collaborator when
// warranted, and converts total fetch failure into a degraded empty
// page rather than an error.
func (p *Pipeline) fetchPage(ctx context.Context, log *zap.Logger, rawURL string, opts FetchOptions, result *AnalysisResult) *FetchedPage {
	fetchStart := time.Now()
	page, err := p.fetcher.Fetch(ctx, rawURL, opts)
	if err != nil {
		p.observeFetch(TierStatic, "error", time.Since(fetchStart))
		log.Warn("tier-1 fetch failed, continuing with empty page", zap.Error(err))
		page = nil
	} else {
		p.observeFetch(TierStatic, "ok", time.Since(fetchStart))
	}

	escalate := !opts.SkipTier2 && p.tier2 != nil && (page == nil || page.NeedsTier2)
	if escalate {
		tier2Start := time.Now()
		rendered, t2err := p.tier2.Fetch(ctx, rawURL, opts)
		if t2err != nil {
			p.observeFetch(TierBrowser, "error", time.Since(tier2Start))
			log.Warn("tier-2 fetch failed, keeping tier-1 output", zap.Error(t2err))
		} else {
			p.observeFetch(TierBrowser, "ok", time.Since(tier2Start))
			return rendered
		}
	}

	if page == nil {
		p.degrade(result, "fetch failed, enrichment attempted from URL alone")
		return EmptyPage(rawURL)
	}
	if page.NeedsTier2 && !escalate {
		log.Debug("page looks client-rendered, tier-2 escalation not configured")
	}
	return page
}

func (p *Pipeline) reportPhase(phase string) {
	if p.onPhase != nil {
		p.onPhase(phase)
	}
}

func (p *Pipeline) degrade(result *AnalysisResult, note string) {
	result.Status = StatusDegraded
	result.Notes = append(result.Notes, note)
}

func (p *Pipeline) observeFetch(tier int, outcome string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveFetch(tier, outcome, d)
	}
}

func (p *Pipeline) observeEnrichment(outcome string) {
	if p.metrics != nil {
		p.metrics.ObserveEnrichment(outcome)
	}
}

func (p *Pipeline) observePhoto(source string) {
	if p.metrics != nil {
		p.metrics.ObservePhotoSource(source)
	}
}

func (p *Pipeline) observePipeline(status string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.ObservePipeline(status, d)
	}
}

// validateURL enforces the caller contract: a syntactically valid
// absolute http(s) URL, checked before any network I/O.
func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
