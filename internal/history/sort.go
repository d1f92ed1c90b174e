package history

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"pagechat/internal/chat"
)

// SortKey selects the sort criterion.
type SortKey string

const (
	SortByTimestamp SortKey = "timestamp"
	SortByTitle     SortKey = "title"
)

// Sort returns a sorted copy of sessions. Timestamps compare numerically;
// titles compare with locale-aware collation. The sort is stable, so equal
// keys keep their input order.
func Sort(sessions []chat.Session, key SortKey, ascending bool) []chat.Session {
	out := make([]chat.Session, len(sessions))
	copy(out, sessions)

	var less func(a, b chat.Session) bool
	switch key {
	case SortByTitle:
		collator := collate.New(language.Und)
		less = func(a, b chat.Session) bool {
			return collator.CompareString(a.Title, b.Title) < 0
		}
	default:
		less = func(a, b chat.Session) bool {
			return a.Timestamp < b.Timestamp
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out
}
