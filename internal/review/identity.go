package review

import (
	"strings"
	"time"
)

// Key is the identity of a review inside a PluginRecord's review set.
type Key string

const keyContentPrefixLen = 50

// IdentityKey derives the stable identity of a review. An explicit
// upstream id wins; otherwise the key is the (author, date, content
// prefix) fingerprint. The fingerprint can falsely merge two reviews
// sharing all three parts; that risk is accepted.
func IdentityKey(r Review) Key {
	if r.ID != "" {
		return Key(r.ID)
	}
	return Key(r.Author + "|" + string(r.Date) + "|" + contentPrefix(r.Content))
}

func contentPrefix(content string) string {
	runes := []rune(content)
	if len(runes) > keyContentPrefixLen {
		runes = runes[:keyContentPrefixLen]
	}
	return string(runes)
}

// sameFingerprint reports whether two unkeyed reviews are the same
// review. Content matching is prefix-aware: an edit that extends a
// short review past the fingerprint window must still resolve to the
// original, so the shorter of the two prefixes decides.
func sameFingerprint(a, b Review) bool {
	if a.Author != b.Author || a.Date != b.Date {
		return false
	}
	pa, pb := contentPrefix(a.Content), contentPrefix(b.Content)
	if len(pa) > len(pb) {
		pa, pb = pb, pa
	}
	return strings.HasPrefix(pb, pa)
}

// MergeReviews upserts a freshly extracted batch into an existing
// collection. Existing reviews keep their positions; a batch entry
// matching an existing identity overwrites that entry in place (last
// write in batch order wins), anything else is appended. No review is
// ever dropped.
func MergeReviews(existing, batch []Review) []Review {
	merged := make([]Review, len(existing))
	copy(merged, existing)

	byID := make(map[string]int)
	byAuthorDate := make(map[string][]int)
	for i, r := range merged {
		if r.ID != "" {
			byID[r.ID] = i
			continue
		}
		group := r.Author + "|" + string(r.Date)
		byAuthorDate[group] = append(byAuthorDate[group], i)
	}

	for _, r := range batch {
		if r.ID != "" {
			if i, ok := byID[r.ID]; ok {
				merged[i] = r
				continue
			}
			byID[r.ID] = len(merged)
			merged = append(merged, r)
			continue
		}
		group := r.Author + "|" + string(r.Date)
		if i, ok := matchInGroup(merged, byAuthorDate[group], r); ok {
			merged[i] = r
			continue
		}
		byAuthorDate[group] = append(byAuthorDate[group], len(merged))
		merged = append(merged, r)
	}
	return merged
}

func matchInGroup(merged []Review, candidates []int, r Review) (int, bool) {
	for _, i := range candidates {
		if sameFingerprint(merged[i], r) {
			return i, true
		}
	}
	return 0, false
}

// Reconcile merges a batch into a prior record (zero value when the
// slug has never been reconciled) and restamps the aggregate. The name
// is refreshed from the latest lookup when non-empty.
func Reconcile(prior PluginRecord, slug, name string, batch []Review, now time.Time) PluginRecord {
	record := prior
	record.Slug = slug
	if name != "" {
		record.Name = name
	}
	record.Reviews = MergeReviews(prior.Reviews, batch)
	record.TotalReviews = len(record.Reviews)
	record.LastUpdated = now
	return record
}
