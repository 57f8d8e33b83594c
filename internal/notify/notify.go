// Package notify raises desktop notifications for finished downloads through
// github.com/gen2brain/beeep.
package notify

import (
	"fmt"
	"strings"

	"github.com/gen2brain/beeep"

	"github.com/mixtape/mixtape/internal/logging"
)

const (
	appTitle = "MixTape"

	maxNameLen    = 40
	maxReasonLen  = 100
	maxLocatorLen = 60
)

// Config selects which notifications are shown.
type Config struct {
	Enabled              bool
	ShowDownloadComplete bool
	ShowDownloadFailed   bool
}

// DefaultConfig enables everything.
func DefaultConfig() *Config {
	return &Config{Enabled: true, ShowDownloadComplete: true, ShowDownloadFailed: true}
}

// Notifier sends notifications. A delivery failure is logged and otherwise
// ignored.
type Notifier struct {
	cfg    Config
	logger *logging.Logger

	// replaced in tests
	send  func(title, message string) error
	alert func(title, message string) error
}

// NewNotifier creates a notifier; a nil cfg means DefaultConfig.
func NewNotifier(cfg *Config, logger *logging.Logger) *Notifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Notifier{
		cfg:    *cfg,
		logger: logging.OrNop(logger).Component("notify"),
		send:   func(title, message string) error { return beeep.Notify(title, message, "") },
		alert:  func(title, message string) error { return beeep.Alert(title, message, "") },
	}
}

// DownloadComplete announces a committed artifact.
func (n *Notifier) DownloadComplete(fileName, locator string) {
	if !n.cfg.Enabled || !n.cfg.ShowDownloadComplete {
		return
	}
	n.deliver("Download Complete",
		fmt.Sprintf("%q saved to\n%s", truncate(fileName, maxNameLen), shortLocator(locator)))
}

// DownloadFailed announces a failed transfer.
func (n *Notifier) DownloadFailed(fileName, reason string) {
	if !n.cfg.Enabled || !n.cfg.ShowDownloadFailed {
		return
	}
	n.deliver("Download Failed",
		fmt.Sprintf("%q failed:\n%s", truncate(fileName, maxNameLen), truncate(reason, maxReasonLen)))
}

// Alert is for problems the user has to act on, such as a revoked grant. It
// falls back to a plain notification where alerts are unsupported.
func (n *Notifier) Alert(message string) {
	if !n.cfg.Enabled {
		return
	}
	title := appTitle + " needs attention"
	if err := n.alert(title, message); err == nil {
		return
	}
	n.deliver(title, message)
}

func (n *Notifier) deliver(title, message string) {
	if err := n.send(title, message); err != nil {
		n.logger.Warn().Err(err).Str("title", title).Msg("notification not delivered")
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortLocator abbreviates a path or URI to its last two segments when it is
// too long to show.
func shortLocator(loc string) string {
	if len(loc) <= maxLocatorLen {
		return loc
	}
	norm := strings.ReplaceAll(loc, `\`, "/")
	parts := strings.Split(strings.TrimRight(norm, "/"), "/")
	if len(parts) >= 2 {
		short := ".../" + parts[len(parts)-2] + "/" + parts[len(parts)-1]
		if len(short) <= maxLocatorLen {
			return short
		}
	}
	return "..." + loc[len(loc)-(maxLocatorLen-3):]
}
