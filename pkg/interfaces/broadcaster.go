package interfaces

import "modelmine/internal/model"

// WildcardTopic subscribes to the events of every job.
const WildcardTopic = "*"

// ProgressPublisher is the publishing side of the progress broadcaster.
type ProgressPublisher interface {
	Publish(event model.ProgressEvent)
}

// ProgressSubscription is one subscriber's event stream.
type ProgressSubscription interface {
	// Events is closed after a terminal event (per-job topics) or on Close.
	Events() <-chan model.ProgressEvent
	Close()
}

// ProgressBroadcaster fans progress events out to subscribers.
// Delivery is at-most-once with no replay.
type ProgressBroadcaster interface {
	ProgressPublisher
	Subscribe(topic string) ProgressSubscription
}
