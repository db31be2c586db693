package normalize

import (
	"time"
	"unicode/utf8"

	"github.com/plugwatch/plugwatch/internal/review"
)

// MinContentLen is the acceptance floor for a fragment's derived
// content; anything shorter is dropped as noise.
const MinContentLen = 11

// FromRaw converts one raw field bundle into a normalized Review. The
// second return is false when the fragment fails the acceptance gate
// (content too short, or a non-positive rating).
func FromRaw(raw review.RawReview, mode review.FeedMode, baseURL string, now time.Time) (review.Review, bool) {
	content := CleanText(raw.Content)
	title := Truncate(CleanText(raw.Title), MaxTitleLen)
	if content == "" {
		content = title
	}

	ratingText := raw.RatingText
	if mode == review.ModeSyndication {
		ratingText = title + " " + content
	}
	rating := Rating(ratingText)

	if utf8.RuneCountInString(content) < MinContentLen || rating <= 0 {
		return review.Review{}, false
	}

	var date review.Date
	if mode == review.ModeSyndication {
		date = PubDate(raw.DateText, now)
	} else {
		date = ListingDate(raw.DateText, now)
	}

	return review.Review{
		Date:      date,
		Rating:    rating,
		Content:   Truncate(content, MaxContentLen),
		Author:    Author(raw.AuthorText),
		ReviewURL: ResolveURL(baseURL, raw.Link),
		Title:     title,
	}, true
}
