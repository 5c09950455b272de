package domain

// Event types pushed over the progress stream.
const (
	EventProgress  = "progress"
	EventStatus    = "status"
	EventHeartbeat = "heartbeat"
	EventPong      = "pong"
)

// Event is one message on the live stream. Exactly one of Task or Queue is
// set for progress/status events; heartbeats carry only the type.
type Event struct {
	Type  string         `json:"type"`
	Task  *Task          `json:"task,omitempty"`
	Queue *QueueSnapshot `json:"queue,omitempty"`
}
