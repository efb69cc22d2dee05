package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ritzau/impact-analyzer/pkg/logging"
)

var (
	// ErrClosed is returned once the broker has shut down
	ErrClosed = errors.New("broker is closed")
	// ErrUnknownTopic is returned for topics the broker does not carry
	ErrUnknownTopic = errors.New("unknown topic")
)

// EventSessionStarted on the rounds topic drops the rounds of the previous session
const EventSessionStarted = "session_started"

// subscriberBuffer is how far a client may fall behind before events are dropped
const subscriberBuffer = 128

// replay decides what a new subscriber is sent before live events
type replay int

const (
	replayLatest  replay = iota // the current status only
	replaySession               // every round of the running session
)

type topic struct {
	replay  replay
	limit   int // history bound, at most subscriberBuffer so a replay never blocks
	version int
	history []Event
	subs    map[*subscriber]struct{}
}

func (t *topic) remember(ev Event) {
	switch t.replay {
	case replayLatest:
		t.history = []Event{ev}
	case replaySession:
		if ev.Type == EventSessionStarted {
			t.history = t.history[:0]
		}
		t.history = append(t.history, ev)
		if len(t.history) > t.limit {
			t.history = t.history[len(t.history)-t.limit:]
		}
	}
}

// Broker fans analysis events out to SSE subscribers. It carries two topics:
// session_status, where a new subscriber gets the latest status, and rounds,
// where it gets every round of the running session.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

// NewBroker creates a broker for the session_status and rounds topics
func NewBroker() *Broker {
	return &Broker{topics: map[string]*topic{
		TopicSessionStatus: {replay: replayLatest, subs: make(map[*subscriber]struct{})},
		TopicRounds:        {replay: replaySession, limit: subscriberBuffer, subs: make(map[*subscriber]struct{})},
	}}
}

// Subscribe registers a subscriber. The subscription ends, and its channel
// is closed, when ctx is done, on Close, or when the broker shuts down.
func (b *Broker) Subscribe(ctx context.Context, name string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	t, ok := b.topics[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTopic, name)
	}

	sub := &subscriber{topic: name, events: make(chan Event, subscriberBuffer), broker: b}
	for _, ev := range t.history {
		sub.events <- ev
	}
	t.subs[sub] = struct{}{}
	logging.Debug("subscribed", "topic", name, "replayed", len(t.history))

	sub.stop = context.AfterFunc(ctx, func() { sub.Close() })
	return sub, nil
}

// Publish sends an event to every subscriber of a topic. A subscriber whose
// buffer is full misses the event.
func (b *Broker) Publish(name string, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	t, ok := b.topics[name]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTopic, name)
	}

	t.version++
	ev := Event{Topic: name, Type: eventType, Data: payload, Version: t.version}
	t.remember(ev)

	for sub := range t.subs {
		select {
		case sub.events <- ev:
		default:
			logging.Warn("subscriber too slow, dropping event", "topic", name, "version", ev.Version)
		}
	}
	return nil
}

// Close ends every subscription and rejects further use
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, t := range b.topics {
		for sub := range t.subs {
			b.dropLocked(t, sub)
		}
	}
	return nil
}

// dropLocked removes sub and closes its channel. The broker lock guards the
// channel, so it is closed exactly once.
func (b *Broker) dropLocked(t *topic, sub *subscriber) {
	if _, ok := t.subs[sub]; !ok {
		return
	}
	delete(t.subs, sub)
	close(sub.events)
}

type subscriber struct {
	topic  string
	events chan Event
	broker *Broker
	stop   func() bool
}

func (s *subscriber) Topic() string { return s.topic }

func (s *subscriber) Events() <-chan Event { return s.events }

func (s *subscriber) Close() error {
	b := s.broker
	b.mu.Lock()
	b.dropLocked(b.topics[s.topic], s)
	stop := s.stop
	b.mu.Unlock()

	if stop != nil {
		stop()
	}
	return nil
}

// WriteSSE writes one event in text/event-stream framing. The id lets a
// reconnecting EventSource report the last version it saw.
func WriteSSE(w io.Writer, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Version, event.Type, data)
	return err
}
