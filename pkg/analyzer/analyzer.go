package analyzer

import (
	"context"
	"fmt"

	"github.com/panbanda/strata/pkg/project"
)

// ProjectAnalyzer is the interface every analysis pass implements. Passes
// read the assembled project and never mutate it, so they may run concurrently.
type ProjectAnalyzer[T any] interface {
	// Analyze runs the pass over the assembled project. The context is
	// checked between units of work.
	Analyze(ctx context.Context, proj *project.Context) (T, error)
}

// PassDegraded is a warning raised when a pass skipped part of its input
// (an oversize block, a saturated bucket, a node cap) but still produced a result.
type PassDegraded struct {
	Pass   string `json:"pass"`
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

func (d *PassDegraded) Error() string {
	if d.Count > 0 {
		return fmt.Sprintf("%s degraded: %s (%d)", d.Pass, d.Reason, d.Count)
	}
	return fmt.Sprintf("%s degraded: %s", d.Pass, d.Reason)
}

// Degraded builds a PassDegraded warning.
func Degraded(pass, reason string, count int) *PassDegraded {
	return &PassDegraded{Pass: pass, Reason: reason, Count: count}
}
