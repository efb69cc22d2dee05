package watcher

import (
	"context"
	"time"

	"github.com/ritzau/impact-analyzer/pkg/logging"
)

// Debouncer batches rapid file system events so that an editor saving many
// files at once produces one analysis run
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer. A batch is flushed once no event
// arrived for quietPeriod, or maxWait after its first event at the latest.
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	var (
		quiet    <-chan time.Time
		deadline <-chan time.Time
		batch    = newBatch()
	)

	flush := func() {
		quiet, deadline = nil, nil
		if batch.empty() {
			return
		}
		logging.Debug("flushing accumulated events", "count", batch.events)

		// Build files first: they need a full analysis anyway
		for _, t := range []ChangeType{ChangeTypeBuildFile, ChangeTypeRemoved, ChangeTypeSource} {
			if paths := batch.paths[t]; len(paths) > 0 {
				d.output <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}
			}
		}
		batch = newBatch()
	}

	defer close(d.output)

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}
			batch.add(event)

			quiet = time.After(d.quietPeriod)
			if deadline == nil {
				deadline = time.After(d.maxWait)
			}

		case <-quiet:
			flush()

		case <-deadline:
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}

// batch accumulates paths per change type. A path keeps the type of its
// latest event: a file written then deleted is reported as removed.
type batch struct {
	paths  map[ChangeType][]string
	typeOf map[string]ChangeType
	events int
}

func newBatch() *batch {
	return &batch{
		paths:  make(map[ChangeType][]string),
		typeOf: make(map[string]ChangeType),
	}
}

func (b *batch) add(event ChangeEvent) {
	b.events++
	for _, p := range event.Paths {
		if prev, ok := b.typeOf[p]; ok {
			if prev == event.Type {
				continue
			}
			b.paths[prev] = without(b.paths[prev], p)
		}
		b.typeOf[p] = event.Type
		b.paths[event.Type] = append(b.paths[event.Type], p)
	}
}

func (b *batch) empty() bool {
	return len(b.typeOf) == 0
}

func without(paths []string, p string) []string {
	out := paths[:0]
	for _, q := range paths {
		if q != p {
			out = append(out, q)
		}
	}
	return out
}
