package events

import "fmt"

type Type string

const (
	ResponseCreated Type = "response.created"
	ResponseUpdated Type = "response.updated"
	ResponseDeleted Type = "response.deleted"
)

// Message is the human-readable status string pushed to live subscribers.
func (t Type) Message() string {
	switch t {
	case ResponseCreated:
		return "A new response submitted"
	case ResponseUpdated:
		return "A response updated"
	case ResponseDeleted:
		return "A response deleted"
	}
	return string(t)
}

// Event is the domain event emitted on every response write. Report
// recomputation and live pushes hang off these, not off storage callbacks.
type Event struct {
	Type       Type `json:"type"`
	PipelineID int  `json:"pipeline_id"`
	OwnerID    int  `json:"owner_id"`
	ResponseID int  `json:"response_id,omitempty"`
}

// Topic names the per-pipeline report update channel.
func Topic(pipelineID int) string {
	return fmt.Sprintf("report-updates.%d", pipelineID)
}

// Bus decouples response writes from their side effects. Publish is
// best-effort and must never block or fail the originating write path;
// Subscribe returns an unsubscribe function.
type Bus interface {
	Publish(topic string, e Event) error
	Subscribe(topic string, fn func(Event)) (func(), error)
}
