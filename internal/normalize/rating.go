package normalize

import (
	"regexp"
	"strconv"
)

// DefaultRating is used when no recognizable rating pattern appears.
const DefaultRating = 5

var ratingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d)\s*out\s*of\s*5`),
	regexp.MustCompile(`(\d)\s*/\s*5`),
	regexp.MustCompile(`(?i)(\d)\s*stars?`),
}

// Rating extracts an integer rating in [1,5] from free-form text. The
// first capturing group of the first matching pattern wins; anything
// unrecognizable, including out-of-range digits, falls through to the
// default.
func Rating(text string) int {
	for _, p := range ratingPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 5 {
			continue
		}
		return n
	}
	return DefaultRating
}
