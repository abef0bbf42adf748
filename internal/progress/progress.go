// Package progress renders stage progress bars on a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Bar wraps a progress bar for one stage.
type Bar struct {
	bar   *progressbar.ProgressBar
	label string
	w     io.Writer
}

// NewSpinner creates a spinner for operations with unknown total count.
func NewSpinner(w io.Writer, label string) *Bar {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &Bar{bar: bar, label: label, w: w}
}

// NewBar creates a progress bar with the given label and total count.
func NewBar(w io.Writer, label string, total int) *Bar {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Bar{bar: bar, label: label, w: w}
}

// Set moves the bar to n.
func (b *Bar) Set(n int) {
	_ = b.bar.Set(n)
}

// Tick increments the progress by 1.
func (b *Bar) Tick() {
	_ = b.bar.Add(1)
}

// FinishSuccess clears the bar completely.
func (b *Bar) FinishSuccess() {
	_ = b.bar.Finish()
	_ = b.bar.Clear()
}

// FinishError clears the bar and prints the error.
func (b *Bar) FinishError(err error) {
	_ = b.bar.Finish()
	_ = b.bar.Clear()
	fmt.Fprintf(b.w, "  %s error: %v\n", b.label, err)
}

// Reporter draws one bar per stage from progress callbacks. Its Report
// method matches analyzer.ProgressFunc.
type Reporter struct {
	mu   sync.Mutex
	w    io.Writer
	bars map[string]*Bar
	done map[string]bool
}

// NewReporter creates a reporter writing to w, or stderr when w is nil.
func NewReporter(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stderr
	}
	return &Reporter{w: w, bars: make(map[string]*Bar), done: make(map[string]bool)}
}

// Report advances the bar of stage, creating it on first use and clearing
// it when the stage completes. A stage without a known total gets a spinner.
func (r *Reporter) Report(stage string, current, total int, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done[stage] {
		return
	}
	b, ok := r.bars[stage]
	if !ok {
		if total > 0 {
			b = NewBar(r.w, stage, total)
		} else {
			b = NewSpinner(r.w, stage)
		}
		r.bars[stage] = b
	}
	b.Set(current)
	if total > 0 && current >= total {
		b.FinishSuccess()
		r.done[stage] = true
	}
}

// Close clears any bar left unfinished, e.g. after cancellation.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for stage, b := range r.bars {
		if !r.done[stage] {
			b.FinishSuccess()
			r.done[stage] = true
		}
	}
}

// Stages returns how many stages have drawn a bar.
func (r *Reporter) Stages() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bars)
}

// Finished reports whether stage's bar has completed.
func (r *Reporter) Finished(stage string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done[stage]
}
