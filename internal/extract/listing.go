// Package extract pulls raw review field bundles out of the two feed
// shapes the upstream exposes: topic-style listing HTML and RSS items.
// Upstream markup is not a stable contract, so partial success is the
// norm: a malformed fragment is skipped and logged, never fatal.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/plugwatch/plugwatch/internal/review"
)

// ListingExtractor walks topic/thread-style listing markup.
type ListingExtractor struct {
	logger *zap.Logger
}

// NewListing builds a ListingExtractor.
func NewListing(logger *zap.Logger) *ListingExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingExtractor{logger: logger}
}

// Extract returns one raw bundle per topic entry, in document order.
// Listing entries carry no content body; the title doubles as content
// downstream.
func (e *ListingExtractor) Extract(body []byte) ([]review.RawReview, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", review.ErrParseDocument, err)
	}

	var out []review.RawReview
	doc.Find("ul[id^='bbp-topic-'], li.bbp-topic, .review-topic").Each(func(i int, entry *goquery.Selection) {
		raw, ok := e.extractEntry(entry)
		if !ok {
			e.logger.Warn("listing fragment skipped", zap.Int("index", i))
			return
		}
		out = append(out, raw)
	})
	return out, nil
}

func (e *ListingExtractor) extractEntry(entry *goquery.Selection) (review.RawReview, bool) {
	anchor := entry.Find("a.bbp-topic-permalink, .bbp-topic-title a").First()
	title := strings.TrimSpace(anchor.Text())
	if title == "" {
		return review.RawReview{}, false
	}
	link, _ := anchor.Attr("href")

	rating := entry.Find(".wporg-ratings").First()
	ratingText, ok := rating.Attr("title")
	if !ok {
		ratingText = strings.TrimSpace(rating.Text())
	}

	author := strings.TrimSpace(entry.Find(".bbp-topic-started-by a.bbp-author-name").First().Text())
	if author == "" {
		author = strings.TrimSpace(entry.Find(".bbp-topic-started-by").First().Text())
		author = strings.TrimSpace(strings.TrimPrefix(author, "Started by:"))
	}

	freshness := entry.Find(".bbp-topic-freshness a").First()
	dateText, ok := freshness.Attr("title")
	if !ok {
		dateText = strings.TrimSpace(freshness.Text())
	}

	return review.RawReview{
		Title:      title,
		RatingText: ratingText,
		AuthorText: author,
		DateText:   dateText,
		Link:       link,
	}, true
}
