package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Display periodically renders the tracker status as a single line
type Display struct {
	tracker  *Tracker
	interval time.Duration
	out      io.Writer
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewDisplay creates a new progress display writing to out
func NewDisplay(tracker *Tracker, interval time.Duration, out io.Writer) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		out:      out,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop stops the display and prints the final summary
func (d *Display) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		<-d.doneCh
	})
}

func (d *Display) displayLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprintf(d.out, "\r%s", Line(d.tracker.GetStatus()))
		case <-d.stopCh:
			status := d.tracker.GetStatus()
			fmt.Fprintf(d.out, "\r%s\n", Line(status))
			fmt.Fprintf(d.out, "finished in %s, average %s/s\n",
				FormatDuration(time.Since(status.StartTime)), humanize.Bytes(uint64(status.AverageSpeed)))
			return
		}
	}
}

// Line renders a status as one line of text
func Line(s Status) string {
	remaining := "?"
	if s.Remaining >= 0 {
		remaining = humanize.Comma(s.Remaining)
	}

	line := fmt.Sprintf("migrated %s (%s) | requeued %s | queued %s | %s/s",
		humanize.Comma(s.Migrated),
		humanize.Bytes(uint64(s.Bytes)),
		humanize.Comma(s.Requeued),
		remaining,
		humanize.Bytes(uint64(s.CurrentSpeed)),
	)
	if s.ETA > 0 {
		line += " | eta " + FormatDuration(s.ETA)
	}
	return line
}

// FormatDuration formats duration in human readable format
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// IsTerminalSupported reports whether stdout is an interactive terminal
func IsTerminalSupported() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
