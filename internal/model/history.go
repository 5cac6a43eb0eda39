package model

import (
	"time"

	"gorm.io/gorm"
)

type RunKind string

const (
	RunMerge RunKind = "MERGE"
	RunSync  RunKind = "SYNC"
	RunWorks RunKind = "WORKS"
	RunClean RunKind = "CLEAN"
	RunWatch RunKind = "WATCH"
)

type RunStatus string

const (
	StatusSuccess RunStatus = "SUCCESS"
	StatusFailed  RunStatus = "FAILED"
)

type History struct {
	gorm.Model
	Kind      RunKind   `gorm:"not null;index" json:"kind"`
	Status    RunStatus `gorm:"not null" json:"status"`
	SrcPath   string    `gorm:"not null" json:"src"`
	DstPath   string    `json:"dst"`
	Policy    string    `json:"policy"`
	Mutations int       `json:"mutations"`
	Failures  int       `json:"failures"`
	ErrMsg    string    `json:"error,omitempty"`
	RanAt     time.Time `gorm:"not null;index" json:"ran_at"`
}

// RunResult is what a finished merge, sync or cleanup hands to the history store.
type RunResult struct {
	Kind      RunKind
	SrcPath   string
	DstPath   string
	Policy    string
	Mutations int
	Failures  int
	Err       error
}
