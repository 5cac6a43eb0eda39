package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cabinet/internal/config"
	"cabinet/internal/db"
	"cabinet/internal/model"
	"cabinet/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*JobManager, string, string) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, db.Init(filepath.Join(root, "test.db")))
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Default
	cfg.LockDir = filepath.Join(root, "locks")
	cfg.Debounce = 50 * time.Millisecond

	m := NewJobManager(&cfg, zap.NewNop())
	t.Cleanup(m.StopAll)

	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(dst, 0755))

	return m, src, dst
}

func addJob(t *testing.T, src, dst string) model.Job {
	t.Helper()
	job, err := repository.NewJobRepository().Add(src, dst, "default")
	require.NoError(t, err)
	return job
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestJobInitialSyncAndWatch(t *testing.T) {
	m, src, dst := setup(t)
	write(t, filepath.Join(src, "before.bms"), "#TITLE")

	job := addJob(t, src, dst)
	require.NoError(t, m.StartJob(job))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dst, "before.bms"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "initial sync")

	write(t, filepath.Join(src, "after.ogg"), "ogg")
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dst, "after.ogg"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "resync after change")

	snaps := m.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, job.ID, snaps[0].JobID)
	assert.GreaterOrEqual(t, snaps[0].Runs, 2)
	assert.NotNil(t, snaps[0].LastRun)

	assert.Error(t, m.StartJob(job), "already running")

	require.NoError(t, m.StopJob(job.ID))
	assert.Empty(t, m.Snapshots())
	assert.ErrorIs(t, m.StopJob(job.ID), ErrJobNotFound)

	recent, err := repository.NewHistoryRepository().GetRecent(10)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, model.RunWatch, recent[0].Kind)
}

func TestPausedJobResyncsOnResume(t *testing.T) {
	m, src, dst := setup(t)
	job := addJob(t, src, dst)
	require.NoError(t, m.StartJob(job))

	require.Eventually(t, func() bool {
		snaps := m.Snapshots()
		return len(snaps) == 1 && snaps[0].Runs == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, m.PauseJob(job.ID))
	require.Eventually(t, func() bool {
		return m.Snapshots()[0].Status == model.JobStatusPaused
	}, 5*time.Second, 20*time.Millisecond)

	write(t, filepath.Join(src, "while-paused.flac"), "f")
	time.Sleep(300 * time.Millisecond)
	assert.NoFileExists(t, filepath.Join(dst, "while-paused.flac"))

	saved, err := repository.NewJobRepository().GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPaused, saved.Status)

	require.NoError(t, m.ResumeJob(job.ID))
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dst, "while-paused.flac"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, m.PauseJob(999), ErrJobNotFound)
}

func TestStartJobRejectsUnknownPreset(t *testing.T) {
	m, src, dst := setup(t)
	job := addJob(t, src, dst)
	job.Preset = "nope"

	assert.Error(t, m.StartJob(job))
	assert.Empty(t, m.Snapshots())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServerRoutes(t *testing.T) {
	m, src, dst := setup(t)
	s := NewServer(m, 0)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/jobs", `{"src":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/jobs", `{"src":"`+src+`","dst":"`+dst+`","preset":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/jobs", `{"src":"`+src+`","dst":"`+dst+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var job model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "default", job.Preset)

	rec = do(t, h, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Jobs    []model.Job                  `json:"jobs"`
		Running map[string]model.JobSnapshot `json:"running"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Jobs, 1)
	assert.Contains(t, list.Running, "1")

	rec = do(t, h, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/jobs/x/pause", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/jobs/42/pause", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/jobs/1/pause", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/jobs/1/resume", "").Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/jobs/1", "").Code)
	assert.Empty(t, m.Snapshots())

	rec = do(t, h, http.MethodGet, "/history?n=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var histories []model.History
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &histories))
	assert.LessOrEqual(t, len(histories), 5)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/stop", "").Code)
	select {
	case <-s.StopCh():
	case <-time.After(time.Second):
		t.Fatal("stop not signalled")
	}
}

func TestServerErrorReplies(t *testing.T) {
	m, _, _ := setup(t)
	h := NewServer(m, 0).Handler()

	var body map[string]string

	rec := do(t, h, http.MethodPost, "/jobs/42/resume", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], ErrJobNotFound.Error())

	rec = do(t, h, http.MethodDelete, "/jobs/x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid id", body["error"])

	rec = do(t, h, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/history?n=abc", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/history?n=-3", "").Code)
}
