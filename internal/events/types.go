package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	CallID() string
}

// Topic constants
const (
	TopicOperation = "operation"
	TopicService   = "service"
)

// Event type constants
const (
	EventTypeOperationStarted   = "operation.started"
	EventTypeOperationCompleted = "operation.completed"
	EventTypeOperationFailed    = "operation.failed"
	EventTypeServiceStatus      = "service.status"
)

// OperationStartedEvent is published when a gateway operation begins.
type OperationStartedEvent struct {
	ID        string
	Op        string
	Timestamp time.Time
}

func (e OperationStartedEvent) EventType() string { return EventTypeOperationStarted }
func (e OperationStartedEvent) CallID() string    { return e.ID }

// OperationCompletedEvent is published when an operation returns a value.
type OperationCompletedEvent struct {
	ID        string
	Op        string
	Duration  time.Duration
	Timestamp time.Time
}

func (e OperationCompletedEvent) EventType() string { return EventTypeOperationCompleted }
func (e OperationCompletedEvent) CallID() string    { return e.ID }

// OperationFailedEvent is published when an operation returns an error.
// Kind is the gateway error kind name.
type OperationFailedEvent struct {
	ID        string
	Op        string
	Kind      string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e OperationFailedEvent) EventType() string { return EventTypeOperationFailed }
func (e OperationFailedEvent) CallID() string    { return e.ID }

// ServiceStatusEvent reports the outcome of a status refresh.
type ServiceStatusEvent struct {
	ServiceUp     bool
	ToolInstalled bool
	InterpreterUp bool
	ShellEnabled  bool
	Timestamp     time.Time
}

func (e ServiceStatusEvent) EventType() string { return EventTypeServiceStatus }
func (e ServiceStatusEvent) CallID() string    { return "" }
