package engine

import "fmt"

// FatalIOError means the analysis root could not be read. It is the only
// error that aborts a run.
type FatalIOError struct {
	Path string
	Err  error
}

func (e *FatalIOError) Error() string {
	return fmt.Sprintf("cannot read analysis root %s: %v", e.Path, e.Err)
}

func (e *FatalIOError) Unwrap() error {
	return e.Err
}
