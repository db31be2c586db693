package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/plugwatch/plugwatch/internal/review"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})
	req := review.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}

	var result review.FetchResponse
	var fetchErr error
	collector := f.buildCollector(req, time.Unix(0, 0), &result, &fetchErr)
	if collector.UserAgent != "coverage-agent" {
		t.Fatalf("expected user agent override, got %q", collector.UserAgent)
	}
	if !collector.IgnoreRobotsTxt {
		t.Fatal("expected robots txt to be ignored")
	}
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(review.FetchRequest{}, collyReq)
	if len(*collyReq.Headers) != 0 {
		t.Fatalf("expected no headers to be copied, got %+v", *collyReq.Headers)
	}
}

func TestFetchRoundTrip(t *testing.T) {
	t.Parallel()

	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Trace")
		w.Write([]byte("<html>reviews</html>"))
	}))
	defer server.Close()

	f := New(Config{UserAgent: "plugwatch-test", Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), review.FetchRequest{
		URL:     server.URL,
		Headers: http.Header{"X-Trace": {"yes"}},
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if string(resp.Body) != "<html>reviews</html>" {
		t.Fatalf("unexpected body: %q", resp.Body)
	}
	if gotHeader != "yes" {
		t.Fatal("expected request header propagation")
	}
	if resp.Duration <= 0 {
		t.Fatal("expected a measured duration")
	}
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{Timeout: 5 * time.Second})
	if _, err := f.Fetch(ctx, review.FetchRequest{URL: server.URL}); err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}
