package pubsub

import (
	"fmt"
	"sync"

	"github.com/ritzau/impact-analyzer/pkg/logging"
	"github.com/ritzau/impact-analyzer/pkg/session"
)

// SessionObserver publishes round driver progress. It implements session.Observer.
type SessionObserver struct {
	pub Publisher

	mu         sync.Mutex
	generation uint64
}

// NewSessionObserver creates an observer that publishes to pub
func NewSessionObserver(pub Publisher) *SessionObserver {
	return &SessionObserver{pub: pub}
}

// StateChanged publishes the new driver state on the session_status topic
func (o *SessionObserver) StateChanged(sessionID string, round int, state session.State) {
	o.mu.Lock()
	gen := o.generation
	o.mu.Unlock()

	if state == session.StateCollecting {
		if err := o.pub.Publish(TopicRounds, EventSessionStarted, RoundEvent{SessionID: sessionID}); err != nil {
			logging.Warn("failed to publish session start", "session", sessionID, "error", err)
		}
	}

	o.PublishStatus(SessionStatus{
		SessionID:  sessionID,
		State:      state.String(),
		Message:    fmt.Sprintf("Round %d: %s", round, state),
		Round:      round,
		Generation: gen,
	})
}

// RoundCompleted publishes a round summary on the rounds topic
func (o *SessionObserver) RoundCompleted(sessionID string, report session.RoundReport) {
	o.mu.Lock()
	o.generation = uint64(report.Generation)
	o.mu.Unlock()

	ev := RoundEvent{
		SessionID:  sessionID,
		Round:      report.Round,
		Generation: uint64(report.Generation),
		Compiled:   make([]string, len(report.Compiled)),
		Scheduled:  make([]string, len(report.Scheduled)),
		Changes:    make([]string, len(report.Changes)),
		DurationMS: report.Duration.Milliseconds(),
	}
	for i, u := range report.Compiled {
		ev.Compiled[i] = string(u)
	}
	for i, u := range report.Scheduled {
		ev.Scheduled[i] = string(u)
	}
	for i, c := range report.Changes {
		ev.Changes[i] = c.String()
	}
	if err := o.pub.Publish(TopicRounds, "round_completed", ev); err != nil {
		logging.Warn("failed to publish round", "round", report.Round, "error", err)
	}
}

// PublishStatus publishes an arbitrary status, e.g. idle or a failure raised
// before the driver started
func (o *SessionObserver) PublishStatus(status SessionStatus) {
	if err := o.pub.Publish(TopicSessionStatus, status.State, status); err != nil {
		logging.Warn("failed to publish session status", "state", status.State, "error", err)
	}
}
