package load

import (
	"time"

	"github.com/wesleyorama2/volley/internal/load/metrics"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventRunStarted   EventType = "run-started"
	EventStageStarted EventType = "stage-started"
	EventVUsChanged   EventType = "vus-changed"
	EventSnapshot     EventType = "snapshot"
	EventCancelled    EventType = "cancelled"
	EventDrainTimeout EventType = "drain-timeout"
	EventCompleted    EventType = "completed"
)

// Event is a lifecycle notification emitted by the orchestrator.
type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"runId"`
	Time  time.Time `json:"time"`

	// Elapsed since run start.
	Elapsed time.Duration `json:"elapsed"`

	Stage     int    `json:"stage"`
	StageName string `json:"stageName,omitempty"`
	ActiveVUs int    `json:"activeVUs"`
	TargetVUs int    `json:"targetVUs"`

	// Abandoned is set on drain-timeout: runners left behind.
	Abandoned int `json:"abandoned,omitempty"`

	// Snapshot is set on snapshot and completed events.
	Snapshot *metrics.Snapshot `json:"snapshot,omitempty"`

	Err error `json:"-"`
}

// Observer receives lifecycle events.
//
// OnEvent is called synchronously from the orchestrator's control loop, so
// implementations should return quickly.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}
