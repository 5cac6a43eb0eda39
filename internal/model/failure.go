package model

import "fmt"

// Failure records one file operation that did not complete. Runs collect
// failures instead of aborting so that sibling entries are still processed.
type Failure struct {
	Op   string
	Path string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.Path, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
