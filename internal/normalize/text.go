// Package normalize converts raw extracted fields into the scalar
// types a Review carries: calendar dates, 1-5 ratings, bounded strings
// and absolute URLs.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
)

// Hard truncation limits applied after entity decoding.
const (
	MaxContentLen = 1000
	MaxAuthorLen  = 100
	MaxTitleLen   = 200
)

// AnonymousAuthor is the sentinel used when no author can be extracted.
const AnonymousAuthor = "Anonymous"

var (
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
	// En and em dashes separate on their own; a plain hyphen only
	// separates when whitespace surrounds it, so hyphenated words like
	// "Anti-spam" survive.
	nameSplitPattern = regexp.MustCompile(`\s+[\x{2010}-]\s+|\s*[\x{2013}\x{2014}]\s*`)

	entityReplacer = strings.NewReplacer(
		"&#8211;", "–",
		"&ndash;", "–",
		"&#8212;", "—",
		"&mdash;", "—",
		"&#038;", "&",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&#034;", `"`,
		"&quot;", `"`,
		"&#039;", "'",
		"&#8217;", "'",
		"&apos;", "'",
	)
)

// CleanText strips markup tags, decodes the common character entities
// and collapses surrounding whitespace.
func CleanText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = entityReplacer.Replace(s)
	return strings.TrimSpace(s)
}

// Truncate hard-cuts s to at most n characters. The cut is not
// word-aware.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Author cleans and bounds an author attribution, substituting the
// anonymous sentinel when nothing survives cleaning.
func Author(s string) string {
	s = Truncate(CleanText(s), MaxAuthorLen)
	if s == "" {
		return AnonymousAuthor
	}
	return s
}

// CleanName normalizes a plugin display name: entities are decoded,
// then everything from the first dash-like separator on is dropped.
// "Foo Bar – Best Plugin Ever" becomes "Foo Bar".
func CleanName(s string) string {
	s = CleanText(s)
	parts := nameSplitPattern.Split(s, 2)
	return strings.TrimSpace(parts[0])
}

// SlugTitle derives a display name from a slug when the directory
// lookup is unavailable: dashes become spaces, words are capitalized.
func SlugTitle(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ResolveURL resolves href against base and returns an absolute URL,
// or "" when neither part yields one.
func ResolveURL(base, href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return u.String()
	}
	if base == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ""
	}
	return b.ResolveReference(u).String()
}
