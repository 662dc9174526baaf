// Package cycle reconstructs translation cycles from an ordered stream of
// protocol events. One cycle is one speech/response round-trip on one
// side, from its anchor event to finalization.
package cycle

import (
	"time"

	"github.com/tjfontaine/realtime-session-analyzer/internal/event"
)

// Status is the lifecycle state of a cycle.
type Status string

const (
	StatusOpen       Status = "open"
	StatusComplete   Status = "complete"
	StatusIncomplete Status = "incomplete"
	// StatusSuperseded marks a cycle finalized by the arrival of the next
	// anchor on the same side rather than by its own terminal event.
	StatusSuperseded Status = "superseded"
)

// Cycle is one reconstructed round-trip.
type Cycle struct {
	// ID is session-scoped and strictly increasing in anchor-arrival
	// order, independent of side.
	ID   int
	Side event.Side

	// ResponseID is bound the first time a correlation-bearing event
	// arrives for this cycle. Empty if none ever did.
	ResponseID string

	// Anchor is the timestamp of the event that opened the cycle.
	Anchor time.Time

	// Milestones records the first-observed timestamp per event kind.
	// Delta-style kinds (response.audio.delta) therefore collapse to
	// their first occurrence.
	Milestones map[event.Kind]time.Time

	Status Status

	// Missing lists the required milestones absent at finalization, in
	// the order the profile declares them. Populated for superseded
	// cycles too.
	Missing []event.Kind

	// ConversationItems is the session item counter snapshot at anchor
	// time.
	ConversationItems int

	// RateLimits is the most recent rate_limits.updated payload observed
	// while this cycle was open. Opaque, display only.
	RateLimits map[string]any

	// Response is the terminal response payload, when one arrived.
	// Opaque; the transcript analyzer reads it, the reconstructor never
	// does.
	Response map[string]any
}

// Milestone returns the recorded timestamp for kind.
func (c *Cycle) Milestone(kind event.Kind) (time.Time, bool) {
	ts, ok := c.Milestones[kind]
	return ts, ok
}

// IsComplete reports whether every required milestone was recorded. A
// superseded cycle can still be complete if its checklist was satisfied
// before the next anchor arrived.
func (c *Cycle) IsComplete() bool {
	return c.Status != StatusOpen && len(c.Missing) == 0
}

// Profile configures the reconstructor for one analysis variant.
type Profile struct {
	Name string

	// Anchor is the kind that opens a new cycle.
	Anchor event.Kind

	// Terminals are the kinds that finalize an open cycle, in preference
	// order.
	Terminals []event.Kind

	// Required is the milestone checklist evaluated at finalization.
	Required []event.Kind

	// MatchByID restricts correlation-bearing events (terminals
	// included) to the cycle's bound response id. When false a terminal
	// finalizes whichever cycle is open on its side.
	MatchByID bool
}

// IsTerminal reports whether kind finalizes an open cycle under this
// profile.
func (p Profile) IsTerminal(kind event.Kind) bool {
	for _, t := range p.Terminals {
		if t == kind {
			return true
		}
	}
	return false
}
