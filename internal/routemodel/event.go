package routemodel

import "time"

// EventType distinguishes events raised by the route executor itself from
// activity events relayed from the surrounding BPMN process engine.
type EventType string

const (
	EventTypeCamelNode   EventType = "CAMEL_NODE"
	EventTypeCamundaTask EventType = "CAMUNDA_TASK"
)

// EventStatus is the lifecycle status carried by an ExecutionEvent.
type EventStatus string

const (
	EventStarted   EventStatus = "STARTED"
	EventCompleted EventStatus = "COMPLETED"
	EventFailed    EventStatus = "FAILED"
)

// ExecutionEvent is emitted by the executor for every node invocation (and
// for the route as a whole) and fanned out by the event bus to subscribers.
type ExecutionEvent struct {
	TaskID            string      `json:"taskId"`
	Type              EventType   `json:"type"`
	NodeType          string      `json:"nodeType,omitempty"`
	RouteID           string      `json:"routeId"`
	Status            EventStatus `json:"status"`
	Message           string      `json:"message,omitempty"`
	Result            interface{} `json:"result,omitempty"`
	Error             string      `json:"error,omitempty"`
	DurationMs        int64       `json:"durationMs,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
	Sequence          uint64      `json:"sequence"`
	ProcessInstanceID string      `json:"processInstanceId,omitempty"`
	ActivityID        string      `json:"activityId,omitempty"`
}
