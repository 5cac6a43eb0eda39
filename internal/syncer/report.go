package syncer

import (
	"errors"
	"fmt"
	"strings"

	"cabinet/internal/model"
)

// DirLog lists what one directory level of a sync changed, by entry name.
type DirLog struct {
	Src string
	Dst string

	Copied         []string
	Moved          []string
	RemovedSrc     []string
	RemovedDst     []string
	RemovedDstDirs []string
}

func (d DirLog) Mutations() int {
	return len(d.Copied) + len(d.Moved) + len(d.RemovedSrc) + len(d.RemovedDst) + len(d.RemovedDstDirs)
}

// String renders the log in the "src -> dst:" block format, or "" when
// nothing changed.
func (d DirLog) String() string {
	if d.Mutations() == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s:\n", d.Src, d.Dst)

	lines := []struct {
		label string
		names []string
	}{
		{"Src copy", d.Copied},
		{"Src move", d.Moved},
		{"Src remove", d.RemovedSrc},
		{"Dst remove", d.RemovedDst},
		{"Dst remove dir", d.RemovedDstDirs},
	}
	for _, l := range lines {
		if len(l.names) > 0 {
			fmt.Fprintf(&b, "%s: [%s]\n", l.label, strings.Join(l.names, ", "))
		}
	}

	return b.String()
}

type Report struct {
	Dirs     []DirLog
	Failures []*model.Failure
}

func (r *Report) Mutations() int {
	n := 0
	for _, d := range r.Dirs {
		n += d.Mutations()
	}

	return n
}

func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}

	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}

	return errors.Join(errs...)
}

// String concatenates the log of every directory that changed.
func (r *Report) String() string {
	var b strings.Builder
	for _, d := range r.Dirs {
		b.WriteString(d.String())
	}

	return b.String()
}
