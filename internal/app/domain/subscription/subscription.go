// Package subscription defines the per-user subscription model that drives
// the Scope Router's pull-only distribution (spec §3, §4.6).
package subscription

// NewsFilters gates which DTUs a subscriber is notified about.
type NewsFilters struct {
	MinCRETI     float64 // 0..100
	MinConfidence float64 // 0..1
	MaxPerHour   int
	MutedTypes   map[string]bool
}

// LocalSubstrate controls how DTUs land in a user's local pulled store.
type LocalSubstrate struct {
	ScopeToSubscribed bool
	AllowEventDTUs    bool
}

// Subscription is one per user.
type Subscription struct {
	UserID           string
	SubscribedLenses map[string]bool
	NewsFilters      NewsFilters
	LocalSubstrate   LocalSubstrate
}

// Matches reports whether a DTU with the given lenses, CRETI score,
// confidence, and event type passes this subscription's filters.
func (s Subscription) Matches(lenses []string, creti, confidence float64, eventType string) bool {
	if s.NewsFilters.MutedTypes[eventType] {
		return false
	}
	if creti < s.NewsFilters.MinCRETI {
		return false
	}
	if confidence < s.NewsFilters.MinConfidence {
		return false
	}
	for _, l := range lenses {
		if s.SubscribedLenses[l] {
			return true
		}
	}
	return false
}
