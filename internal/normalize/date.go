package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/plugwatch/plugwatch/internal/review"
)

var (
	absoluteDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	relativeDatePattern = regexp.MustCompile(`(?i)(\d+)\s*(day|week|month|year)s?\s*ago`)
)

// pubDateLayouts cover the publication-date formats seen in the wild.
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
}

// ListingDate interprets a listing-mode date fragment. An absolute
// YYYY-MM-DD literal wins; otherwise a relative "<N> <unit> ago"
// expression is subtracted from now (weeks count as 7N days, months
// and years use calendar arithmetic); anything else is today.
func ListingDate(text string, now time.Time) review.Date {
	if m := absoluteDatePattern.FindString(text); m != "" {
		if _, err := time.Parse("2006-01-02", m); err == nil {
			return review.Date(m)
		}
	}
	if m := relativeDatePattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			switch strings.ToLower(m[2]) {
			case "day":
				return review.DateOf(now.AddDate(0, 0, -n))
			case "week":
				return review.DateOf(now.AddDate(0, 0, -7*n))
			case "month":
				return review.DateOf(now.AddDate(0, -n, 0))
			case "year":
				return review.DateOf(now.AddDate(-n, 0, 0))
			}
		}
	}
	return review.DateOf(now)
}

// PubDate parses a syndication publication date, falling back to today
// when no known layout matches.
func PubDate(text string, now time.Time) review.Date {
	text = strings.TrimSpace(text)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return review.DateOf(t)
		}
	}
	return review.DateOf(now)
}
