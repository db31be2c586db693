// Package review defines core types shared across subsystems.
package review

import (
	"net/http"
	"time"
)

// Date is a calendar day in ISO 8601 form (YYYY-MM-DD).
type Date string

// DateOf truncates a timestamp to its calendar day.
func DateOf(t time.Time) Date {
	return Date(t.Format("2006-01-02"))
}

// FeedMode selects the extraction strategy for a refresh run.
type FeedMode string

// Feed modes accepted by the refresh API.
const (
	ModeListing     FeedMode = "listing"
	ModeSyndication FeedMode = "feed"
)

// Review is a single normalized review. Immutable once normalized.
type Review struct {
	ID        string `json:"id,omitempty"`
	Date      Date   `json:"date"`
	Rating    int    `json:"rating"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	ReviewURL string `json:"reviewUrl,omitempty"`
	Title     string `json:"title,omitempty"`
}

// RawReview is the loosely-typed field bundle produced by an extractor
// before normalization. Any field may be empty.
type RawReview struct {
	Title      string
	RatingText string
	AuthorText string
	DateText   string
	Content    string
	Link       string
}

// PluginRecord aggregates everything tracked for one plugin slug.
type PluginRecord struct {
	Slug         string    `json:"slug"`
	Name         string    `json:"name,omitempty"`
	Reviews      []Review  `json:"reviews"`
	LastUpdated  time.Time `json:"lastUpdated"`
	TotalReviews int       `json:"totalReviews"`
}

// RunStatus represents the lifecycle state of a refresh run.
type RunStatus string

// Run status values kept in the run registry.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run records the outcome of one refresh run for a slug.
type Run struct {
	ID        string      `json:"id"`
	Slug      string      `json:"slug"`
	Mode      FeedMode    `json:"mode"`
	Status    RunStatus   `json:"status"`
	Started   time.Time   `json:"started_at"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
	Counters  RunCounters `json:"counters"`
}

// RunCounters tracks per-run completeness stats.
type RunCounters struct {
	PagesFetched     int `json:"pages_fetched"`
	PagesSkipped     int `json:"pages_skipped"`
	ReviewsExtracted int `json:"reviews_extracted"`
	ReviewsTotal     int `json:"reviews_total"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
