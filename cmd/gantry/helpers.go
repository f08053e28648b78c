package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"gantry/internal/progress"
)

func formatBytes(n int64) string {
	if n < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(n))
}

func formatRate(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytesPerSecond)) + "/s"
}

func formatETA(ev progress.Event) string {
	if !ev.HasETA() {
		return "-"
	}
	return (time.Duration(ev.ETA) * time.Second).String()
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// newTransferBar builds a byte-progress bar for interactive terminals. Piped
// output keeps the bar silent; state changes are still printed.
func newTransferBar(description string, total int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(isatty.IsTerminal(os.Stderr.Fd())),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func percent(bytes, total int64) string {
	if total <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d%%", bytes*100/total)
}
