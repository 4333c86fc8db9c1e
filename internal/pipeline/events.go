package pipeline

import "time"

// EventKind identifies a pipeline progress stage.
type EventKind string

const (
	EventPlanning     EventKind = "planning"
	EventSearching    EventKind = "searching"
	EventEvaluating   EventKind = "evaluating"
	EventSynthesizing EventKind = "synthesizing"
	EventDone         EventKind = "done"
)

// Event is a best-effort progress signal for UI feedback. Delivery never
// blocks the pipeline; slow or absent observers simply miss events.
type Event struct {
	Kind      EventKind `json:"kind"`
	Message   string    `json:"message"`
	Iteration int       `json:"iteration,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer receives progress events.
type Observer chan<- Event

func emit(obs Observer, kind EventKind, msg string, iteration, count int) {
	if obs == nil {
		return
	}
	select {
	case obs <- Event{Kind: kind, Message: msg, Iteration: iteration, Count: count, Timestamp: time.Now()}:
	default:
	}
}
