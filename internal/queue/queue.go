package queue

import "context"

// Queue names for the clinic event bus.
const (
	// AppointmentEventsQueue receives appointment lifecycle events published
	// by the scheduling core for downstream consumers (analytics, billing).
	AppointmentEventsQueue = "appointments.events"
	// NotificationTriggerQueue receives inbound notification trigger requests
	// consumed by the dispatch worker.
	NotificationTriggerQueue = "notifications.trigger"
)

// Message is a publishable bus payload.
type Message interface {
	Validate() error
	MessageID() string
	Correlation() string
}

// Publisher publishes messages to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
	Close() error
}

// Consumer drains a queue until its context is done.
type Consumer interface {
	Run(ctx context.Context) error
	Close() error
}

// WorkQueueNames returns the queues this module declares on the broker.
func WorkQueueNames() []string {
	return []string{AppointmentEventsQueue, NotificationTriggerQueue}
}
