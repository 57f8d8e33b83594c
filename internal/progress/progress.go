// Package progress renders a transfer's progress feed in the terminal. It
// only consumes events.Feed values and never drives the transfer.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/mixtape/mixtape/internal/events"
)

// Reporter displays progress for one transfer run.
type Reporter interface {
	// Start is called once with the total (-1 when unknown) and the first
	// byte count, which is non-zero when resuming.
	Start(total, offset int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
}

// Follow feeds every update from feed into r until the feed finishes. It
// does not consume the outcome.
func Follow(feed *events.Feed, r Reporter, description string) {
	started := false
	for p := range feed.Updates() {
		if !started {
			total := p.TotalBytes
			if p.Indeterminate {
				total = -1
			}
			r.Start(total, p.BytesWritten, description)
			started = true
			continue
		}
		r.Update(p.BytesWritten)
	}
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// CLIProgress implements Reporter with a single progressbar line. An
// unknown total renders as a spinner.
type CLIProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a reporter writing to out (os.Stderr when nil).
func NewCLIProgress(out io.Writer) *CLIProgress {
	if out == nil {
		out = os.Stderr
	}
	return &CLIProgress{out: out}
}

// Start initializes the progress bar.
func (p *CLIProgress) Start(total, offset int64, description string) {
	out := p.out
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
	if offset > 0 {
		_ = p.bar.Set64(offset)
	}
}

// Update moves the bar to current.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error stops the bar and prints err.
func (p *CLIProgress) Error(err error) {
	if p.bar != nil {
		_ = p.bar.Exit()
	}
	if err != nil {
		fmt.Fprintf(p.out, "\nError: %v\n", err)
	}
}

// NoOpProgress is a progress reporter that does nothing (for quiet runs).
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

// Start does nothing.
func (p *NoOpProgress) Start(total, offset int64, description string) {}

// Update does nothing.
func (p *NoOpProgress) Update(current int64) {}

// Finish does nothing.
func (p *NoOpProgress) Finish() {}

// Error does nothing.
func (p *NoOpProgress) Error(err error) {}
