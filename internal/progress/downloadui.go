package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/mixtape/mixtape/internal/events"
	"github.com/mixtape/mixtape/internal/models"
)

// DownloadUI renders a transfer with an mpb bar on a terminal and with plain
// start and summary lines elsewhere. It implements Reporter.
type DownloadUI struct {
	progress   *mpb.Progress
	bar        *mpb.Bar
	out        io.Writer
	isTerminal bool

	name       string
	total      int64
	offset     int64
	startTime  time.Time
	lastUpdate time.Time
}

// NewDownloadUI creates a UI for the named artifact. Bars go to stderr.
func NewDownloadUI(name string) *DownloadUI {
	isTerminal := IsTerminal(os.Stderr)

	var p *mpb.Progress
	if isTerminal {
		enableANSI(os.Stderr)
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &DownloadUI{
		progress:   p,
		out:        os.Stdout,
		isTerminal: isTerminal,
		name:       name,
	}
}

// Start creates the bar. An unknown total shows a spinner.
func (u *DownloadUI) Start(total, offset int64, description string) {
	now := time.Now()
	u.total, u.offset = total, offset
	u.startTime, u.lastUpdate = now, now

	if !u.isTerminal {
		fmt.Fprintf(u.out, "Downloading %s (%s)\n", u.name, sizeLabel(total))
		if offset > 0 {
			fmt.Fprintf(u.out, "Resuming at %s\n", humanize.IBytes(uint64(offset)))
		}
		return
	}

	label := decor.Name(description, decor.WCSyncSpaceR)
	if total > 0 {
		u.bar = u.progress.New(total,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(label),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Any(func(s decor.Statistics) string {
					if s.Total <= 0 {
						return "  0.00%"
					}
					return fmt.Sprintf("%6.2f%%", float64(s.Current)/float64(s.Total)*100)
				}, decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
				decor.Name("  ETA "),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		u.bar = u.progress.New(0,
			mpb.SpinnerStyle(),
			mpb.PrependDecorators(label),
			mpb.AppendDecorators(
				decor.Current(decor.SizeB1024(0), "% .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	}
	if offset > 0 {
		u.bar.SetCurrent(offset)
	}
}

// Update moves the bar to current. Elapsed time is fed to the EWMA decorators
// so speed and ETA only count bytes moved in this run.
func (u *DownloadUI) Update(current int64) {
	if u.bar == nil {
		return
	}
	now := time.Now()
	u.bar.EwmaSetCurrent(current, now.Sub(u.lastUpdate))
	u.lastUpdate = now
}

// Finish completes the bar.
func (u *DownloadUI) Finish() {
	if u.bar == nil {
		return
	}
	if u.total > 0 {
		u.bar.SetCurrent(u.total)
	}
	u.bar.SetTotal(-1, true)
}

// Error stops the bar, leaving it on screen.
func (u *DownloadUI) Error(err error) {
	if u.bar != nil {
		u.bar.Abort(false)
	}
}

// Complete finishes the display for a run's outcome and prints a one-line
// summary above the bars.
func (u *DownloadUI) Complete(o events.Outcome) {
	switch o.Status {
	case models.StatusCompleted:
		u.Finish()
		moved := o.Progress.BytesWritten - u.offset
		elapsed := time.Since(u.startTime)
		speed := ""
		if elapsed > 0 && moved > 0 {
			speed = fmt.Sprintf(", %s/s", humanize.IBytes(uint64(float64(moved)/elapsed.Seconds())))
		}
		u.writeLine(fmt.Sprintf("✓ %s (%s, %s%s)\n", u.name,
			humanize.IBytes(uint64(o.Progress.BytesWritten)), elapsed.Round(time.Second), speed))
	case models.StatusPaused:
		u.Error(nil)
		u.writeLine(fmt.Sprintf("‖ %s paused at %s\n", u.name, humanize.IBytes(uint64(o.Durable))))
	default:
		u.Error(o.Err)
		u.writeLine(fmt.Sprintf("✗ %s: %v\n", u.name, o.Err))
	}
}

// writeLine prints through mpb when bars are live so they are not corrupted.
func (u *DownloadUI) writeLine(msg string) {
	if u.isTerminal && u.progress != nil {
		u.progress.Write([]byte(msg))
		return
	}
	fmt.Fprint(u.out, msg)
}

// Wait blocks until the bar is done rendering.
func (u *DownloadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// IsTerminal returns whether output is to a terminal
func (u *DownloadUI) IsTerminal() bool {
	return u.isTerminal
}

// ShortLocator keeps the last two components of a path-like locator.
func ShortLocator(loc string) string {
	parts := strings.Split(filepath.ToSlash(loc), "/")
	if len(parts) <= 2 {
		return filepath.Base(loc)
	}
	return "…/" + strings.Join(parts[len(parts)-2:], "/")
}

func sizeLabel(total int64) string {
	if total <= 0 {
		return "size unknown"
	}
	return humanize.IBytes(uint64(total))
}
