package subscriber

import (
	"strings"

	"bizwatch/internal/domain/listing"
)

// Subscriber is one notification recipient with optional filters.
type Subscriber struct {
	ID         int64
	Email      string
	Categories []string
	Keywords   []string
	Active     bool
}

// Matches reports whether the listing passes the subscriber's filters.
// A subscriber with no categories and no keywords matches everything;
// otherwise a category hit or a keyword hit is enough. Blank entries
// never match anything.
func (s *Subscriber) Matches(l *listing.Listing) bool {
	if len(s.Categories) == 0 && len(s.Keywords) == 0 {
		return true
	}

	for _, c := range s.Categories {
		c = strings.TrimSpace(c)
		if c != "" && strings.EqualFold(c, strings.TrimSpace(l.Category)) {
			return true
		}
	}

	text := strings.ToLower(l.Title + " " + l.Summary)
	for _, kw := range s.Keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}

	return false
}
