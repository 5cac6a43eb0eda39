// Package daemon keeps saved mirror jobs current: each job watches its
// source tree and resyncs the destination after a burst of changes.
package daemon

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"cabinet/internal/config"
	"cabinet/internal/fslock"
	"cabinet/internal/logger"
	"cabinet/internal/model"
	"cabinet/internal/pipeline"
	"cabinet/internal/policy"
	"cabinet/internal/repository"
	"cabinet/internal/syncer"
	"cabinet/internal/syncer/local"

	"go.uber.org/zap"
)

var ErrJobNotFound = errors.New("job not found")

type JobManager struct {
	mu      sync.RWMutex
	jobs    map[uint]*JobState
	cfg     *config.Config
	engine  *syncer.Engine
	repo    *repository.HistoryRepository
	jobRepo *repository.JobRepository
	log     *zap.Logger
}

func NewJobManager(cfg *config.Config, log *zap.Logger) *JobManager {
	if log == nil {
		log = logger.Log
	}

	return &JobManager{
		jobs:    make(map[uint]*JobState),
		cfg:     cfg,
		engine:  syncer.New(cfg.SyncOptions(log)),
		repo:    repository.NewHistoryRepository(),
		jobRepo: repository.NewJobRepository(),
		log:     log,
	}
}

// StartJob watches the job's source and runs an initial sync unless the job
// was saved as paused.
func (m *JobManager) StartJob(job model.Job) error {
	p, err := m.cfg.SyncPreset(job.Preset)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %d already running", job.ID)
	}

	src, err := local.NewSource(job.SrcPath, m.cfg.BufferSize, m.log)
	if err != nil {
		return err
	}
	if err := src.Start(); err != nil {
		return fmt.Errorf("failed to start source: %w", err)
	}

	state := NewJobState(job)
	m.jobs[job.ID] = state
	go m.runPipeline(state, src, p)

	m.log.Info("job started",
		zap.Uint("id", job.ID),
		zap.String("src", job.SrcPath),
		zap.String("dst", job.DstPath),
		zap.String("preset", p.Name))

	return nil
}

func (m *JobManager) runPipeline(state *JobState, src syncer.EventSource, p policy.SyncPolicy) {
	filteredCh := pipeline.Filter(src.Events(), m.cfg.IgnoreList)
	changedCh := pipeline.NewChecksumFilter().Run(filteredCh)
	batchCh := pipeline.Debounce(changedCh, m.cfg.Debounce)

	defer func() {
		src.Stop()
		// Let the pipeline stages unwind after the watcher closes.
		go func() {
			for range batchCh {
			}
		}()

		m.mu.Lock()
		delete(m.jobs, state.JobID)
		m.mu.Unlock()
		close(state.done)

		m.log.Info("job stopped",
			zap.Uint("id", state.JobID))
	}()

	if state.Paused() {
		state.markDirty(true)
	} else {
		m.resync(state, p)
	}

	for {
		select {
		case batch, ok := <-batchCh:
			if !ok {
				return
			}

			if state.Paused() {
				state.markDirty(true)
				continue
			}

			m.log.Debug("changes settled",
				zap.Uint("id", state.JobID),
				zap.Int("paths", len(batch)))
			m.resync(state, p)

		case <-state.PauseCh:
			state.SetStatus(model.JobStatusPaused)
			m.saveStatus(state.JobID, model.JobStatusPaused)
			m.log.Info("job paused",
				zap.Uint("id", state.JobID))

		case <-state.ResumeCh:
			state.SetStatus(model.JobStatusActive)
			m.saveStatus(state.JobID, model.JobStatusActive)
			m.log.Info("job resumed",
				zap.Uint("id", state.JobID))

			if state.markDirty(false) {
				m.resync(state, p)
			}

		case <-state.StopCh:
			return
		}
	}
}

// resync mirrors the whole job tree once. A run that cannot take the tree
// locks is retried on the next batch.
func (m *JobManager) resync(state *JobState, p policy.SyncPolicy) {
	lock, err := fslock.Acquire(m.cfg.LockDir, state.Src, state.Dst)
	if err != nil {
		state.markDirty(true)
		m.log.Warn("resync deferred",
			zap.Uint("id", state.JobID),
			zap.Error(err))
		return
	}
	defer lock.Release()

	state.markDirty(false)
	report, err := m.engine.Sync(state.ctx, state.Src, state.Dst, p)

	for _, d := range report.Dirs {
		m.log.Debug("synced dir",
			zap.Uint("id", state.JobID),
			zap.String("log", d.String()))
	}

	if _, err := m.repo.Save(model.RunResult{
		Kind:      model.RunWatch,
		SrcPath:   state.Src,
		DstPath:   state.Dst,
		Policy:    p.Name,
		Mutations: report.Mutations(),
		Failures:  len(report.Failures),
		Err:       err,
	}); err != nil {
		m.log.Warn("failed to save history",
			zap.Error(err))
	}

	state.RecordRun(report.Mutations(), err)
}

func (m *JobManager) saveStatus(id uint, status model.JobStatus) {
	if err := m.jobRepo.UpdateStatus(id, status); err != nil {
		m.log.Warn("failed to save job status",
			zap.Uint("id", id),
			zap.Error(err))
	}
}

func (m *JobManager) get(id uint) (*JobState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.jobs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, id)
	}

	return state, nil
}

// StopJob cancels a running sync of the job and waits for its pipeline to
// exit.
func (m *JobManager) StopJob(id uint) error {
	state, err := m.get(id)
	if err != nil {
		return err
	}

	state.cancel()
	signal(state.StopCh)
	<-state.done
	return nil
}

func (m *JobManager) StopAll() {
	m.mu.RLock()
	ids := make([]uint, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.StopJob(id)
	}
}

func (m *JobManager) PauseJob(id uint) error {
	state, err := m.get(id)
	if err != nil {
		return err
	}

	signal(state.PauseCh)
	return nil
}

func (m *JobManager) ResumeJob(id uint) error {
	state, err := m.get(id)
	if err != nil {
		return err
	}

	signal(state.ResumeCh)
	return nil
}

func (m *JobManager) Snapshots() []model.JobSnapshot {
	m.mu.RLock()
	snaps := make([]model.JobSnapshot, 0, len(m.jobs))
	for _, state := range m.jobs {
		snaps = append(snaps, state.Snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].JobID < snaps[j].JobID })
	return snaps
}
