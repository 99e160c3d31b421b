package broadcast

import (
	"sync"

	"modelmine/internal/model"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/metrics"
)

// DefaultBufferSize is the per-subscriber event buffer.
const DefaultBufferSize = 64

// Hub is the in-process progress fan-out. Publishing never blocks: an event
// that does not fit a subscriber's buffer is dropped for that subscriber.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*subscription]struct{}
	buffer int
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &Hub{
		topics: make(map[string]map[*subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a subscriber on a job id or on WildcardTopic.
func (h *Hub) Subscribe(topic string) interfaces.ProgressSubscription {
	sub := &subscription{
		hub:   h,
		topic: topic,
		ch:    make(chan model.ProgressEvent, h.buffer),
	}

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Publish delivers event to the job's subscribers and to wildcard subscribers.
// A terminal event closes the job's subscriptions after delivery.
func (h *Hub) Publish(event model.ProgressEvent) {
	terminal := event.IsTerminal()

	h.mu.Lock()
	jobSubs := collect(h.topics[event.JobID])
	if terminal {
		delete(h.topics, event.JobID)
	}
	wildcard := collect(h.topics[interfaces.WildcardTopic])
	h.mu.Unlock()

	for _, sub := range jobSubs {
		sub.deliver(event)
		if terminal {
			sub.close()
		}
	}
	for _, sub := range wildcard {
		sub.deliver(event)
	}
}

// SubscriberCount returns the number of subscribers on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	if subs, ok := h.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	h.mu.Unlock()
}

func collect(subs map[*subscription]struct{}) []*subscription {
	out := make([]*subscription, 0, len(subs))
	for sub := range subs {
		out = append(out, sub)
	}
	return out
}

type subscription struct {
	hub    *Hub
	topic  string
	ch     chan model.ProgressEvent
	mu     sync.Mutex
	closed bool
}

func (s *subscription) Events() <-chan model.ProgressEvent {
	return s.ch
}

func (s *subscription) Close() {
	s.hub.remove(s)
	s.close()
}

func (s *subscription) deliver(event model.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
		metrics.BroadcastDroppedTotal.Inc()
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}
