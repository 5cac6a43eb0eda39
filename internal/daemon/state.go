package daemon

import (
	"context"
	"sync"
	"time"

	"cabinet/internal/model"
)

type JobState struct {
	mu        sync.RWMutex
	JobID     uint
	Src       string
	Dst       string
	Preset    string
	Status    model.JobStatus
	StartedAt time.Time
	Runs      int
	Mutations int
	Failed    int
	LastRun   *time.Time
	LastError string

	// dirty is set when events arrive while paused; resume resyncs once.
	dirty bool

	ctx      context.Context
	cancel   context.CancelFunc
	PauseCh  chan struct{}
	ResumeCh chan struct{}
	StopCh   chan struct{}
	done     chan struct{}
}

func NewJobState(job model.Job) *JobState {
	status := job.Status
	if status != model.JobStatusPaused {
		status = model.JobStatusActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobState{
		JobID:     job.ID,
		Src:       job.SrcPath,
		Dst:       job.DstPath,
		Preset:    job.Preset,
		Status:    status,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		PauseCh:   make(chan struct{}, 1),
		ResumeCh:  make(chan struct{}, 1),
		StopCh:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (s *JobState) RecordRun(mutations int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Runs++
	s.Mutations += mutations
	s.LastRun = new(time.Now())
	if err != nil {
		s.Failed++
		s.LastError = err.Error()
	} else {
		s.LastError = ""
	}
}

func (s *JobState) SetStatus(status model.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

func (s *JobState) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status == model.JobStatusPaused
}

// markDirty records pending changes and reports whether any were pending
// before.
func (s *JobState) markDirty(dirty bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.dirty
	s.dirty = dirty
	return was
}

func (s *JobState) Snapshot() model.JobSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.JobSnapshot{
		JobID:     s.JobID,
		Src:       s.Src,
		Dst:       s.Dst,
		Preset:    s.Preset,
		Status:    s.Status,
		StartedAt: s.StartedAt,
		Runs:      s.Runs,
		Mutations: s.Mutations,
		Failed:    s.Failed,
		LastRun:   s.LastRun,
		LastError: s.LastError,
	}
}

// signal delivers a control message without blocking when one is already
// queued.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
