package model

import "time"

type EntryKind int

const (
	KindOther EntryKind = iota
	KindFile
	KindDir
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "other"
	}
}

// Entry is one child of a directory as seen by a single listing.
type Entry struct {
	Name    string
	Path    string
	Kind    EntryKind
	Size    int64
	ModTime time.Time
}

func (e Entry) IsFile() bool {
	return e.Kind == KindFile
}

func (e Entry) IsDir() bool {
	return e.Kind == KindDir
}
