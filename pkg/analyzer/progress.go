package analyzer

import (
	"context"
	"sync/atomic"
)

// Stage names reported to progress callbacks.
const (
	StageScan  = "scan"
	StageParse = "parse"
	StageSATD  = "satd"
)

// ProgressFunc is called after each item of a stage completes. current
// counts completed items, total is the stage size known so far and path
// names the item just finished.
type ProgressFunc func(stage string, current, total int, path string)

// Tracker counts progress through one stage. It is safe for concurrent use.
type Tracker struct {
	stage    string
	total    atomic.Int32
	current  atomic.Int32
	callback ProgressFunc
}

// NewTracker creates a tracker for stage. A nil callback only counts.
func NewTracker(stage string, callback ProgressFunc) *Tracker {
	return &Tracker{stage: stage, callback: callback}
}

// Stage returns the stage name.
func (t *Tracker) Stage() string {
	return t.stage
}

// Add grows the total by n.
func (t *Tracker) Add(n int) {
	t.total.Add(int32(n))
}

// SetTotal replaces the total.
func (t *Tracker) SetTotal(n int) {
	t.total.Store(int32(n))
}

// Tick marks one item done and invokes the callback.
func (t *Tracker) Tick(path string) {
	current := int(t.current.Add(1))
	total := int(t.total.Load())
	if t.callback != nil {
		t.callback(t.stage, current, total, path)
	}
}

// Done reports whether every item of the stage has ticked.
func (t *Tracker) Done() bool {
	return t.current.Load() >= t.total.Load()
}

// Current returns the completed count.
func (t *Tracker) Current() int {
	return int(t.current.Load())
}

// Total returns the total count.
func (t *Tracker) Total() int {
	return int(t.total.Load())
}

type trackerKey struct{}

// WithTracker returns a context that carries a progress tracker for the
// pass that receives it.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// TrackerFromContext returns the tracker carried by ctx, or nil.
func TrackerFromContext(ctx context.Context) *Tracker {
	if t, ok := ctx.Value(trackerKey{}).(*Tracker); ok {
		return t
	}
	return nil
}
