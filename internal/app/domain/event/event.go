// Package event defines the incoming event shape the Event Bridge consumes,
// along with the frozen classification and scope-routing tables from
// spec §4.6 and §6.
package event

import "time"

// Event is a runtime occurrence offered to the Event Bridge for possible
// conversion into a DTU.
type Event struct {
	ID        string
	Type      string
	Data      map[string]interface{}
	Timestamp time.Time
	Source    string // non-empty marks this as an externally-sourced event
	NoBridge  bool
}

// Classification is the result of looking an event type up in
// DTU_WORTHY_EVENTS (or an external source's classifier map).
type Classification struct {
	Domain     string
	Confidence float64
}

// DTUWorthyEvents is the frozen internal event-type → classification table.
// Event types absent from this map are not DTU-worthy unless an external
// source supplies its own classifier entry or the type is a system event
// (IsSystemEvent), which the bridge classifies under the "system" domain.
var DTUWorthyEvents = map[string]Classification{
	"news:politics":          {Domain: "governance", Confidence: 0.7},
	"news:science":           {Domain: "science", Confidence: 0.75},
	"news:technology":        {Domain: "technology", Confidence: 0.7},
	"news:culture":           {Domain: "culture", Confidence: 0.65},
	"council:vote":           {Domain: "governance", Confidence: 0.9},
	"council:proposal":       {Domain: "governance", Confidence: 0.8},
	"dream:captured":         {Domain: "cognition", Confidence: 0.6},
	"research:published":     {Domain: "science", Confidence: 0.85},
	"market:listing_created": {Domain: "marketplace", Confidence: 0.5},
}

// systemEventNamespaces marks event types that are dispatched to the
// system-only store rather than the knowledge store (spec §4.6 stage 6).
// A type matches if it equals an entry exactly or has it as a "prefix:"
// namespace (e.g. "repair:cycle_complete" matches "repair:").
var systemEventNamespaces = []string{
	"repair:",
	"system:",
}

var systemEventExact = map[string]bool{
	"system:heartbeat":  true,
	"system:migration":  true,
	"repair:cycle_complete": true,
}

// IsSystemEvent reports whether eventType routes to the system-only store.
func IsSystemEvent(eventType string) bool {
	if systemEventExact[eventType] {
		return true
	}
	for _, ns := range systemEventNamespaces {
		if len(eventType) >= len(ns) && eventType[:len(ns)] == ns {
			return true
		}
	}
	return false
}

// EventScopeMap is the frozen event-type → lens-name list table used to
// resolve DTU scope (spec §4.6). Unknown types resolve to an empty list.
var EventScopeMap = map[string][]string{
	"news:politics":          {"news", "governance", "law"},
	"news:science":           {"news", "science", "research"},
	"news:technology":        {"news", "technology"},
	"news:culture":           {"news", "culture"},
	"council:vote":           {"governance"},
	"council:proposal":       {"governance"},
	"repair:cycle_complete":  {"system"},
	"system:heartbeat":       {"system"},
	"system:migration":       {"system"},
	"dream:captured":         {"cognition"},
	"research:published":     {"science", "research"},
	"market:listing_created": {"marketplace"},
}

// ResolveScopeLenses returns the lens names an event type maps to. Unknown
// event types produce no lenses. The bridge drops such events rather than
// committing a DTU with an empty scope, except for externally classified
// events, which it routes to a single lens named after the classifier's
// domain.
func ResolveScopeLenses(eventType string) []string {
	lenses, ok := EventScopeMap[eventType]
	if !ok {
		return nil
	}
	out := make([]string, len(lenses))
	copy(out, lenses)
	return out
}

// SourceClassifier is a per-external-source {type -> Classification} map,
// registered by callers that feed events from outside the core process.
type SourceClassifier map[string]Classification
