package extract

import (
	"encoding/xml"
	"fmt"

	"go.uber.org/zap"

	"github.com/plugwatch/plugwatch/internal/review"
)

// SyndicationExtractor walks item-style RSS/XML feeds.
type SyndicationExtractor struct {
	logger *zap.Logger
}

// NewSyndication builds a SyndicationExtractor.
func NewSyndication(logger *zap.Logger) *SyndicationExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyndicationExtractor{logger: logger}
}

type rssDocument struct {
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Creator     string `xml:"creator"`
	PubDate     string `xml:"pubDate"`
}

// Extract returns one raw bundle per feed item, in document order. A
// document that is not well-formed XML aborts the whole page's
// contribution.
func (e *SyndicationExtractor) Extract(body []byte) ([]review.RawReview, error) {
	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", review.ErrParseDocument, err)
	}

	out := make([]review.RawReview, 0, len(doc.Channel.Items))
	for i, item := range doc.Channel.Items {
		if item.Title == "" && item.Description == "" {
			e.logger.Warn("feed item skipped", zap.Int("index", i))
			continue
		}
		out = append(out, review.RawReview{
			Title:      item.Title,
			AuthorText: item.Creator,
			DateText:   item.PubDate,
			Content:    item.Description,
			Link:       item.Link,
		})
	}
	return out, nil
}
