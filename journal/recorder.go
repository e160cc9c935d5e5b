package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/ggoodman/wamp-router-go/wamp"
)

// Recorder appends observed meta events to a Journal. Observe never blocks:
// events are queued for Run and dropped when the queue is full.
type Recorder struct {
	j       Journal
	log     *slog.Logger
	queue   chan wamp.MetaEvent
	dropped atomic.Uint64
	written atomic.Uint64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithBuffer sets the number of events queued ahead of Run. Default 1024.
func WithBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan wamp.MetaEvent, n)
		}
	}
}

// WithLogger sets the logger used to report append failures.
func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRecorder returns a Recorder writing to j.
func NewRecorder(j Journal, opts ...RecorderOption) *Recorder {
	r := &Recorder{j: j, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	if r.queue == nil {
		r.queue = make(chan wamp.MetaEvent, 1024)
	}
	return r
}

// Observe queues ev for Run.
func (r *Recorder) Observe(ev wamp.MetaEvent) {
	select {
	case r.queue <- ev:
	default:
		if r.dropped.Add(1) == 1 {
			r.log.Warn("journal.queue_full", slog.String("realm", ev.Realm))
		}
	}
}

// Run appends queued events until ctx ends.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.queue:
			r.write(ctx, ev)
		}
	}
}

func (r *Recorder) write(ctx context.Context, ev wamp.MetaEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.Error("journal.encode_failed", slog.String("kind", string(ev.Kind)), slog.String("err", err.Error()))
		return
	}
	if _, err := r.j.Append(ctx, ev.Realm, data); err != nil {
		if ctx.Err() == nil {
			r.log.Warn("journal.append_failed",
				slog.String("realm", ev.Realm),
				slog.String("kind", string(ev.Kind)),
				slog.String("err", err.Error()),
			)
		}
		return
	}
	r.written.Add(1)
}

// Dropped counts events discarded because the queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written counts events appended to the journal.
func (r *Recorder) Written() uint64 { return r.written.Load() }
