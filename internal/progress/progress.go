// Package progress wraps schollz/progressbar behind a small no-op-when-
// disabled facade so callers never branch on whether progress output is
// wanted; a Bar just does nothing when ShowProgress is false.
package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

const updateInterval = 50 * time.Millisecond

// Bar wraps progressbar with enabled/disabled handling and an optional
// phase label, so the same type serves the scanner's walk phase and the
// detector's hash phase without either caller formatting its own prefix.
// All methods are no-ops when disabled.
type Bar struct {
	bar   *progressbar.ProgressBar
	label string
}

// New creates an unlabeled progress bar. If enabled=false, returns a Bar
// where all methods are no-ops. Use total=-1 for spinner mode, or total>0
// for determinate progress.
func New(enabled bool, total int64) *Bar {
	return NewLabeled(enabled, total, "")
}

// NewLabeled is New with a phase label prefixed to every description and
// the final completion line, so interleaved phases (scan, then hash) stay
// distinguishable in the terminal.
func NewLabeled(enabled bool, total int64, label string) *Bar {
	if !enabled {
		return &Bar{label: label}
	}

	opts := []progressbar.Option{
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
	}

	if total < 0 {
		opts = append(opts,
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetElapsedTime(false),
		)
		return &Bar{bar: progressbar.NewOptions(-1, opts...), label: label}
	}

	opts = append(opts, progressbar.OptionSetWidth(40))
	return &Bar{bar: progressbar.NewOptions64(total, opts...), label: label}
}

// Set moves the bar to an absolute value; a no-op when disabled.
func (b *Bar) Set(n uint64) {
	if b.bar != nil {
		_ = b.bar.Set64(int64(n))
	}
}

func (b *Bar) prefixed(s string) string {
	if b.label == "" {
		return s
	}
	return b.label + ": " + s
}

// Describe updates the progress bar description, prefixed with this Bar's
// label when one was given.
func (b *Bar) Describe(s fmt.Stringer) {
	if b.bar != nil {
		b.bar.Describe(b.prefixed(s.String()))
	}
}

// Finish completes the progress bar and prints a final summary line.
func (b *Bar) Finish(s fmt.Stringer) {
	if b.bar != nil {
		_ = b.bar.Finish()
		fmt.Fprintln(os.Stderr, "done — "+b.prefixed(s.String()))
	}
}
