package local

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cabinet/internal/model"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func waitFor(t *testing.T, events <-chan model.FileEvent, path string) model.FileEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-events:
			require.True(t, ok, "event channel closed")
			if e.Path == path {
				return e
			}
		case <-deadline:
			t.Fatalf("no event for %s", path)
		}
	}
}

func TestSourceReportsNestedChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "existing"), 0o755))

	src, err := NewSource(dir, 64, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, src.Start())
	defer src.Stop()

	top := filepath.Join(dir, "a.bms")
	require.NoError(t, os.WriteFile(top, []byte("x"), 0o644))
	waitFor(t, src.Events(), top)

	nested := filepath.Join(dir, "existing", "b.ogg")
	require.NoError(t, os.WriteFile(nested, []byte("y"), 0o644))
	waitFor(t, src.Events(), nested)

	fresh := filepath.Join(dir, "fresh")
	require.NoError(t, os.Mkdir(fresh, 0o755))
	waitFor(t, src.Events(), fresh)

	// give the watcher a moment to pick up the new directory
	time.Sleep(100 * time.Millisecond)
	inner := filepath.Join(fresh, "c.flac")
	require.NoError(t, os.WriteFile(inner, []byte("z"), 0o644))
	waitFor(t, src.Events(), inner)
}

func TestSourceStartMissingDir(t *testing.T) {
	src, err := NewSource(filepath.Join(t.TempDir(), "missing"), 1, zap.NewNop())
	require.NoError(t, err)
	require.Error(t, src.Start())
	src.Stop()
	src.Stop()
}

func TestWatcherHandleDropsWhenFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w, err := New(1, zap.New(core))
	require.NoError(t, err)
	defer w.Stop()

	w.handle(fsnotify.Event{Name: "/x/chmod", Op: fsnotify.Chmod})
	assert.Empty(t, w.eventCh, "chmod is not forwarded")

	w.handle(fsnotify.Event{Name: "/x/a", Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: "/x/b", Op: fsnotify.Remove})

	require.Len(t, w.eventCh, 1)
	e := <-w.eventCh
	assert.Equal(t, model.EventWrite, e.Type)
	assert.Equal(t, "/x/a", e.Path)
	assert.Equal(t, 1, logs.FilterMessage("event channel is full, dropping event").Len())
}
