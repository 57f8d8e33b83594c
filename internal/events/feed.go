package events

import (
	"sync"

	"github.com/mixtape/mixtape/internal/models"
)

// Progress is a point-in-time view of a transfer.
type Progress struct {
	BytesWritten  int64
	TotalBytes    int64   // 0 when unknown
	Fraction      float64 // clamped to [0, 1]; meaningless when Indeterminate
	Indeterminate bool
}

// NewProgress builds a progress value. Without a known total the fraction is
// left at zero and the value is marked indeterminate.
func NewProgress(written, total int64) Progress {
	p := Progress{BytesWritten: written, TotalBytes: total}
	if total <= 0 {
		p.Indeterminate = true
		return p
	}
	f := float64(written) / float64(total)
	if f < 0 {
		f = 0
	} else if f > 1 {
		f = 1
	}
	p.Fraction = f
	return p
}

// Outcome is the terminal value of a transfer run.
type Outcome struct {
	SessionID string
	Status    models.SessionStatus // Completed, Paused or Failed; cancellation reports Failed with context.Canceled
	Progress  Progress
	// Durable is the byte count synced to the temp artifact, where a resume
	// picks up. It can trail Progress when bytes past the last sync were lost.
	Durable int64
	Locator string // final artifact, on completion
	Err     error
}

// Feed carries progress for a single run of a transfer.
//
// Updates is latest-value-wins: a slow consumer only ever sees the newest
// value, publishing never blocks, and reported byte counts never go backwards.
// Done delivers exactly one Outcome.
type Feed struct {
	mu       sync.Mutex
	updates  chan Progress
	done     chan Outcome
	last     Progress
	started  bool
	finished bool
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		updates: make(chan Progress, 1),
		done:    make(chan Outcome, 1),
	}
}

// Publish replaces any unread value with p. Values that would move the byte
// count backwards, and anything published after Finish, are ignored.
func (f *Feed) Publish(p Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.finished {
		return
	}
	if f.started && p.BytesWritten < f.last.BytesWritten {
		return
	}
	f.started = true
	f.last = p

	select {
	case <-f.updates:
	default:
	}
	// Only publishers send, and they hold mu, so the slot is free here.
	select {
	case f.updates <- p:
	default:
	}
}

// Finish delivers the terminal outcome and closes Updates. It returns false if
// the feed was already finished; the first outcome wins. The outcome's
// Progress is never behind the last value sent on Updates.
func (f *Feed) Finish(o Outcome) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.finished {
		return false
	}
	f.finished = true
	if o.Progress == (Progress{}) || (f.started && o.Progress.BytesWritten < f.last.BytesWritten) {
		o.Progress = f.last
	}
	f.done <- o
	close(f.updates)
	return true
}

// Updates returns the latest-value channel. It is closed after Finish.
func (f *Feed) Updates() <-chan Progress {
	return f.updates
}

// Done returns the channel that receives the single terminal outcome.
func (f *Feed) Done() <-chan Outcome {
	return f.done
}

// Last returns the most recently published progress.
func (f *Feed) Last() Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// Finished reports whether Finish has been called.
func (f *Feed) Finished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}
