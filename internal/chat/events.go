package chat

import "github.com/ilyra-ai/december/internal/model"

type EventType string

const (
	EventUser      EventType = "user"
	EventAssistant EventType = "assistant"
	EventDone      EventType = "done"
)

// Event is one item of the incremental delivery sequence. Assistant events
// carry the full accumulated content so far, not a delta: consumers replace,
// never append. The sequence is finite and ordered: one user event, zero or
// more assistant snapshots, then one done event. A stream that fails ends
// without done.
type Event struct {
	Type EventType     `json:"type"`
	Data model.Message `json:"data"`
}
