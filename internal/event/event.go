// Package event defines the typed protocol events the analyzer consumes
// and the classifier that produces them from parsed log lines.
package event

import "time"

// Side identifies which logical participant of the session emitted an event.
type Side string

const (
	SideCaller Side = "caller"
	SideAgent  Side = "agent"
)

// Sides lists all sides in deterministic order.
var Sides = []Side{SideCaller, SideAgent}

// Kind is the protocol event vocabulary. Values match the wire-level
// "type" field of the realtime API messages so configuration files can
// name kinds the same way the logs do.
type Kind string

const (
	KindSpeechStarted           Kind = "input_audio_buffer.speech_started"
	KindSpeechStopped           Kind = "input_audio_buffer.speech_stopped"
	KindBufferCleared           Kind = "input_audio_buffer.cleared"
	KindBufferCommitted         Kind = "input_audio_buffer.committed"
	KindResponseCreated         Kind = "response.created"
	KindOutputItemAdded         Kind = "response.output_item.added"
	KindAudioDelta              Kind = "response.audio.delta"
	KindResponseDone            Kind = "response.done"
	KindAudioDone               Kind = "response.audio.done"
	KindConversationItemCreated Kind = "conversation.item.created"
	KindRateLimitsUpdated       Kind = "rate_limits.updated"
	KindSessionCreated          Kind = "session.created"
	KindSessionUpdated          Kind = "session.updated"
)

// knownKinds is the closed set the classifier will emit. Payloads with any
// other "type" value are dropped without error.
var knownKinds = map[Kind]bool{
	KindSpeechStarted:           true,
	KindSpeechStopped:           true,
	KindBufferCleared:           true,
	KindBufferCommitted:         true,
	KindResponseCreated:         true,
	KindOutputItemAdded:         true,
	KindAudioDelta:              true,
	KindResponseDone:            true,
	KindAudioDone:               true,
	KindConversationItemCreated: true,
	KindRateLimitsUpdated:       true,
	KindSessionCreated:          true,
	KindSessionUpdated:          true,
}

// Known reports whether k is part of the fixed protocol vocabulary.
func Known(k Kind) bool {
	return knownKinds[k]
}

// Event is one typed protocol event. Fields carries the raw payload
// through for later inspection (rate limits, transcripts); the
// reconstructor never interprets it.
type Event struct {
	Timestamp  time.Time
	Side       Side
	Kind       Kind
	ResponseID string
	Fields     map[string]any
}
