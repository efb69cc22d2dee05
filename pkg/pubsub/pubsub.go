package pubsub

import (
	"context"
	"encoding/json"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "session_status", "rounds")
	Type    string          `json:"type"`    // Event type (e.g., "COMPILING", "round_completed")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// Topics published during analysis
const (
	TopicSessionStatus = "session_status"
	TopicRounds        = "rounds"
)

// SessionStatus is the state of the latest analysis session
type SessionStatus struct {
	SessionID  string `json:"session_id,omitempty"`
	State      string `json:"state"`   // idle, COLLECTING ... DONE, FAILED
	Message    string `json:"message"` // Human-readable status message
	Round      int    `json:"round"`
	Generation uint64 `json:"generation"`
}

// RoundEvent summarizes one completed round
type RoundEvent struct {
	SessionID  string   `json:"session_id"`
	Round      int      `json:"round"`
	Generation uint64   `json:"generation"`
	Compiled   []string `json:"compiled"`
	Scheduled  []string `json:"scheduled"`
	Changes    []string `json:"changes"`
	DurationMS int64    `json:"duration_ms"`
}
