// Package ingest drives refresh runs: paged acquisition through the
// transport chain, extraction, normalization, and the final reconcile
// against the plugin store.
package ingest

import "fmt"

// FeedURLs builds the two deterministic per-slug resource URLs.
type FeedURLs struct {
	// Base is the support-forum root, without trailing slash.
	Base string
}

// ListingPage returns the paginated listing-mode URL for a slug.
func (f FeedURLs) ListingPage(slug string, page int) string {
	if page <= 1 {
		return fmt.Sprintf("%s/plugin/%s/reviews/", f.Base, slug)
	}
	return fmt.Sprintf("%s/plugin/%s/reviews/page/%d/", f.Base, slug, page)
}

// Feed returns the unpaginated syndication-mode URL for a slug.
func (f FeedURLs) Feed(slug string) string {
	return fmt.Sprintf("%s/plugin/%s/reviews/feed/", f.Base, slug)
}
