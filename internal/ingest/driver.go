package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/plugwatch/plugwatch/internal/metrics"
	"github.com/plugwatch/plugwatch/internal/normalize"
	"github.com/plugwatch/plugwatch/internal/review"
)

// Fixed listing page contract: the upstream serves 30 entries per page.
const listingPageSize = 30

// DriverConfig controls pagination bounds and politeness.
type DriverConfig struct {
	// MaxPages caps pages processed per run regardless of the computed
	// total, bounding worst-case latency and remote load.
	MaxPages int
	// MinDelay is the enforced wait between successive page fetches.
	// This is a deliberate throttle against upstream abuse protection,
	// not an incidental side effect.
	MinDelay time.Duration
}

// RawPage carries one fetched payload for archival.
type RawPage struct {
	Page int
	Body []byte
}

// CollectResult is everything one run's acquisition phase produced.
type CollectResult struct {
	Reviews      []review.Review
	RawPages     []RawPage
	PagesFetched int
	PagesSkipped int
}

// Driver runs transport, extraction and normalization cycles across a
// bounded page sequence. Pages are strictly sequential: the dominant
// cost is the mandated delay, so overlapping fetches buys nothing.
type Driver struct {
	transport   review.Transport
	listing     review.Extractor
	syndication review.Extractor
	clock       review.Clock
	urls        FeedURLs
	cfg         DriverConfig
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewDriver builds a Driver.
func NewDriver(
	transport review.Transport,
	listing review.Extractor,
	syndication review.Extractor,
	clock review.Clock,
	urls FeedURLs,
	cfg DriverConfig,
	logger *zap.Logger,
) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 2 * time.Second
	}
	return &Driver{
		transport:   transport,
		listing:     listing,
		syndication: syndication,
		clock:       clock,
		urls:        urls,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Every(cfg.MinDelay), 1),
		logger:      logger,
	}
}

// Collect fetches, extracts and normalizes every page of a slug's feed.
// knownTotal is the review count from the prior record; it sizes the
// listing page walk. Output order is page order then fragment order.
func (d *Driver) Collect(ctx context.Context, slug string, mode review.FeedMode, knownTotal int) (CollectResult, error) {
	if mode == review.ModeSyndication {
		return d.collectFeed(ctx, slug)
	}
	return d.collectListing(ctx, slug, knownTotal)
}

func (d *Driver) collectListing(ctx context.Context, slug string, knownTotal int) (CollectResult, error) {
	var result CollectResult

	totalPages := (knownTotal + listingPageSize - 1) / listingPageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if totalPages > d.cfg.MaxPages {
		totalPages = d.cfg.MaxPages
	}

	parseFailures := 0
	for page := 1; page <= totalPages; page++ {
		if err := d.throttle(ctx); err != nil {
			return result, err
		}

		pageURL := d.urls.ListingPage(slug, page)
		resp, err := d.transport.Fetch(ctx, pageURL)
		if err != nil {
			// A first-page transport failure strongly suggests total
			// failure; later pages only degrade completeness.
			if page == 1 {
				metrics.ObservePage(string(review.ModeListing), "failed")
				return result, fmt.Errorf("page 1: %w", err)
			}
			result.PagesSkipped++
			metrics.ObservePage(string(review.ModeListing), "skipped")
			d.logger.Warn("listing page skipped",
				zap.String("slug", slug),
				zap.Int("page", page),
				zap.Error(err),
			)
			continue
		}

		raws, err := d.listing.Extract(resp.Body)
		if err != nil {
			parseFailures++
			result.PagesSkipped++
			metrics.ObservePage(string(review.ModeListing), "parse_failed")
			d.logger.Warn("listing page unparseable",
				zap.String("slug", slug),
				zap.Int("page", page),
				zap.Error(err),
			)
			continue
		}

		result.PagesFetched++
		result.RawPages = append(result.RawPages, RawPage{Page: page, Body: resp.Body})
		accepted := d.normalizeBatch(raws, review.ModeListing, pageURL, &result)
		metrics.ObservePage(string(review.ModeListing), "ok")
		metrics.ObserveExtracted(string(review.ModeListing), accepted)
	}

	if result.PagesFetched == 0 && parseFailures > 0 {
		return result, fmt.Errorf("all %d pages unparseable: %w", parseFailures, review.ErrParseDocument)
	}
	return result, nil
}

func (d *Driver) collectFeed(ctx context.Context, slug string) (CollectResult, error) {
	var result CollectResult

	feedURL := d.urls.Feed(slug)
	resp, err := d.transport.Fetch(ctx, feedURL)
	if err != nil {
		metrics.ObservePage(string(review.ModeSyndication), "failed")
		return result, fmt.Errorf("feed: %w", err)
	}

	raws, err := d.syndication.Extract(resp.Body)
	if err != nil {
		metrics.ObservePage(string(review.ModeSyndication), "parse_failed")
		return result, fmt.Errorf("feed: %w", err)
	}

	result.PagesFetched = 1
	result.RawPages = []RawPage{{Page: 1, Body: resp.Body}}
	accepted := d.normalizeBatch(raws, review.ModeSyndication, feedURL, &result)
	metrics.ObservePage(string(review.ModeSyndication), "ok")
	metrics.ObserveExtracted(string(review.ModeSyndication), accepted)
	return result, nil
}

func (d *Driver) normalizeBatch(raws []review.RawReview, mode review.FeedMode, baseURL string, result *CollectResult) int {
	accepted := 0
	now := d.clock.Now()
	for _, raw := range raws {
		r, ok := normalize.FromRaw(raw, mode, baseURL, now)
		if !ok {
			continue
		}
		result.Reviews = append(result.Reviews, r)
		accepted++
	}
	return accepted
}

func (d *Driver) throttle(ctx context.Context) error {
	start := time.Now()
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveThrottleDelay(waited)
	}
	return nil
}
