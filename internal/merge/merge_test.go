package merge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cabinet/internal/conflict"
	"cabinet/internal/model"
	"cabinet/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// snapshot maps every regular file under root to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	require.NoError(t, err)
	return out
}

func newEngine() *Engine {
	return New(Options{Logger: zap.NewNop()})
}

var sampleTree = map[string]string{
	"x.bms":              "#TITLE x",
	"y.flac":             "flac-bytes",
	"bga/intro.mp4":      "video",
	"bga/deep/a.bmp":     "image",
	"notes/readme.txt":   "hello",
	"notes/empty.ogg":    "",
	"LICENSE":            "mit",
	"nested/a/b/c/d.wav": "wave",
}

func TestMergeConcreteScenario(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src", "A")
	dst := filepath.Join(root, "dst", "A")
	writeTree(t, src, map[string]string{"x.bms": "chart", "y.flac": "audio"})

	report, err := Merge(context.Background(), src, dst, policy.DefaultReplacePolicy())
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dst, "x.bms"))
	assert.FileExists(t, filepath.Join(dst, "y.flac"))
	assert.NoDirExists(t, src)
	assert.Equal(t, 1, report.DirsMoved)
}

func TestMergeNoLossIntoEmptyDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeTree(t, src, sampleTree)
	require.NoError(t, os.Mkdir(dst, 0o755))

	_, err := newEngine().Merge(context.Background(), src, dst, policy.DefaultReplacePolicy())
	require.NoError(t, err)

	assert.Equal(t, sampleTree, snapshot(t, dst))
	assert.NoDirExists(t, src)
}

func TestMergeFastPathMatchesFullWalk(t *testing.T) {
	root := t.TempDir()

	fastSrc := filepath.Join(root, "fast", "src")
	fastDst := filepath.Join(root, "fast", "out", "dst")
	writeTree(t, fastSrc, sampleTree)

	fullSrc := filepath.Join(root, "full", "src")
	fullDst := filepath.Join(root, "full", "out", "dst")
	writeTree(t, fullSrc, sampleTree)
	require.NoError(t, os.MkdirAll(fullDst, 0o755))

	e := newEngine()
	_, err := e.Merge(context.Background(), fastSrc, fastDst, policy.DefaultReplacePolicy())
	require.NoError(t, err)
	_, err = e.Merge(context.Background(), fullSrc, fullDst, policy.DefaultReplacePolicy())
	require.NoError(t, err)

	assert.Equal(t, snapshot(t, fullDst), snapshot(t, fastDst))
	assert.NoDirExists(t, fastSrc)
	assert.NoDirExists(t, fullSrc)
}

func TestMergeCheckReplace(t *testing.T) {
	p := policy.ReplacePolicy{Default: policy.ActionCheckReplace}

	t.Run("identical destination", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "src")
		dst := filepath.Join(root, "dst")
		writeTree(t, src, map[string]string{"song.flac": "same"})
		writeTree(t, dst, map[string]string{"song.flac": "same"})

		report, err := newEngine().Merge(context.Background(), src, dst, p)
		require.NoError(t, err)

		assert.Equal(t, map[string]string{"song.flac": "same"}, snapshot(t, dst))
		assert.Equal(t, 1, report.Replaced)
		assert.NoDirExists(t, src)
	})

	t.Run("different destination", func(t *testing.T) {
		root := t.TempDir()
		src := filepath.Join(root, "src")
		dst := filepath.Join(root, "dst")
		writeTree(t, src, map[string]string{"song.flac": "new"})
		writeTree(t, dst, map[string]string{"song.flac": "old"})

		report, err := newEngine().Merge(context.Background(), src, dst, p)
		require.NoError(t, err)

		assert.Equal(t, map[string]string{
			"song.flac":   "old",
			"song.0.flac": "new",
		}, snapshot(t, dst))
		assert.Equal(t, 1, report.Renamed)
		assert.NoDirExists(t, src)
	})
}

func TestMergeRenameCap(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")

	existing := map[string]string{"song.flac": "orig"}
	for i := range conflict.DefaultRenameLimit {
		existing[conflict.RenameCandidate("song", "flac", i)] = fmt.Sprintf("v%d", i)
	}
	writeTree(t, dst, existing)
	writeTree(t, src, map[string]string{"song.flac": "one more", "other.txt": "fine"})

	report, err := newEngine().Merge(context.Background(), src, dst, policy.ReplacePolicy{Default: policy.ActionRename})
	require.Error(t, err)
	assert.True(t, errors.Is(err, conflict.ErrRenameLimit))

	var failure *model.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, filepath.Join(src, "song.flac"), failure.Path)
	require.Len(t, report.Failures, 1)

	// the overflowing file survives, and so does its directory
	assert.FileExists(t, filepath.Join(src, "song.flac"))
	assert.NoFileExists(t, filepath.Join(src, "other.txt"))
	assert.FileExists(t, filepath.Join(dst, "other.0.txt"))
	assert.Equal(t, "orig", snapshot(t, dst)["song.flac"])
}

func TestMergeSkipDefaultKeepsLeftovers(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeTree(t, src, map[string]string{"a.txt": "incoming", "b.txt": "new"})
	writeTree(t, dst, map[string]string{"a.txt": "kept"})

	core, logs := observer.New(zapcore.InfoLevel)
	e := New(Options{Logger: zap.New(core)})

	report, err := e.Merge(context.Background(), src, dst, policy.ReplacePolicy{Default: policy.ActionSkip})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"a.txt": "kept", "b.txt": "new"}, snapshot(t, dst))
	assert.Equal(t, map[string]string{"a.txt": "incoming"}, snapshot(t, src))
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Moved)
	assert.Equal(t, 1, logs.FilterMessage("source kept: skipped files remain").Len())
}

func TestMergeSkipByExtensionDropsSource(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeTree(t, src, map[string]string{"a.txt": "incoming", "b.ogg": "sound"})
	writeTree(t, dst, map[string]string{"a.txt": "kept"})

	p := policy.DefaultReplacePolicy().With("txt", policy.ActionSkip)
	_, err := newEngine().Merge(context.Background(), src, dst, p)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"a.txt": "kept", "b.ogg": "sound"}, snapshot(t, dst))
	assert.NoDirExists(t, src)
}

func TestMergeNestedConflicts(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeTree(t, src, map[string]string{
		"pack/song/chart.bms":   "v2",
		"pack/song/audio.ogg":   "a",
		"pack/song/new/bg.mp4":  "bg",
		"pack/other/readme.txt": "r",
	})
	writeTree(t, dst, map[string]string{
		"pack/song/chart.bms": "v1",
		"pack/keep.txt":       "k",
	})

	report, err := New(Options{Workers: 2, Logger: zap.NewNop()}).
		Merge(context.Background(), src, dst, policy.UpdatePackReplacePolicy())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"pack/song/chart.bms":   "v1",
		"pack/song/chart.0.bms": "v2",
		"pack/song/audio.ogg":   "a",
		"pack/song/new/bg.mp4":  "bg",
		"pack/other/readme.txt": "r",
		"pack/keep.txt":         "k",
	}, snapshot(t, dst))
	assert.NoDirExists(t, src)
	assert.Equal(t, 2, report.DirsMoved)
	assert.Empty(t, report.CleanupErrors)
}

func TestMergePreconditions(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "dir")
	writeTree(t, dir, map[string]string{"a.txt": "x"})
	file := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	e := newEngine()
	ctx := context.Background()

	_, err := e.Merge(ctx, dir, dir+string(filepath.Separator), policy.DefaultReplacePolicy())
	assert.NoError(t, err, "same path is a no-op")
	assert.FileExists(t, filepath.Join(dir, "a.txt"))

	_, err = e.Merge(ctx, filepath.Join(root, "missing"), dir, policy.DefaultReplacePolicy())
	assert.NoError(t, err, "missing source is a no-op")

	_, err = e.Merge(ctx, file, filepath.Join(root, "out"), policy.DefaultReplacePolicy())
	assert.True(t, errors.Is(err, ErrNotDir))
	assert.NoDirExists(t, filepath.Join(root, "out"))

	_, err = e.Merge(ctx, dir, file, policy.DefaultReplacePolicy())
	assert.True(t, errors.Is(err, ErrNotDir))

	inner := filepath.Join(dir, "inner")
	require.NoError(t, os.Mkdir(inner, 0o755))
	_, err = e.Merge(ctx, dir, inner, policy.DefaultReplacePolicy())
	assert.ErrorIs(t, err, ErrNested)
	assert.FileExists(t, filepath.Join(dir, "a.txt"))

	_, err = e.Merge(ctx, dir, filepath.Join(root, "out"), policy.ReplacePolicy{Default: "BOGUS"})
	assert.Error(t, err)
	assert.DirExists(t, dir)
}

func TestMergeCancelled(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeTree(t, src, sampleTree)
	require.NoError(t, os.Mkdir(dst, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine().Merge(ctx, src, dst, policy.DefaultReplacePolicy())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, sampleTree, snapshot(t, src))
	assert.Empty(t, snapshot(t, dst))
}

func TestReportErr(t *testing.T) {
	r := &Report{}
	assert.NoError(t, r.Err())

	r.Failures = append(r.Failures, &model.Failure{Op: "merge", Path: "a", Err: os.ErrPermission})
	assert.ErrorIs(t, r.Err(), os.ErrPermission)
}

func TestMergeIntoParentKeepsSameNamedChild(t *testing.T) {
	pack := t.TempDir()
	work := filepath.Join(pack, "work")
	writeTree(t, work, map[string]string{
		"top.txt":    "top",
		"work/g.bms": "#TITLE g",
	})

	report, err := newEngine().Merge(context.Background(), work, pack, policy.DefaultReplacePolicy())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"top.txt":        "top",
		"work-rep/g.bms": "#TITLE g",
	}, snapshot(t, pack))
	assert.NoDirExists(t, work)
	assert.Empty(t, report.Failures)
}

func TestMergeIntoParentPicksFreeAsideName(t *testing.T) {
	pack := t.TempDir()
	work := filepath.Join(pack, "work")
	writeTree(t, work, map[string]string{
		"work/a.ogg":     "a",
		"work-rep/b.ogg": "b",
	})

	_, err := newEngine().Merge(context.Background(), work, pack, policy.DefaultReplacePolicy())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"work-rep/b.ogg":   "b",
		"work-rep.1/a.ogg": "a",
	}, snapshot(t, pack))
}

func TestMergeDirRefusesTargetInsideSource(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	writeTree(t, src, map[string]string{"sub/a.txt": "a"})

	report := &Report{}
	r := &run{
		engine: newEngine(),
		report: report,
		root:   src,
		pairs:  []pair{{src: src, dst: root, parent: -1}},
	}

	_, ok := r.mergeDir(0, filepath.Join(src, "sub"), src)
	assert.False(t, ok)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], ErrNested)
	assert.True(t, r.pairs[0].hold, "source stays for cleanup")
}

func TestMergeCleanupFailureIsAdvisory(t *testing.T) {
	removeAll = func(string) error { return os.ErrPermission }
	t.Cleanup(func() { removeAll = os.RemoveAll })

	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeTree(t, src, map[string]string{"a.txt": "a"})
	require.NoError(t, os.Mkdir(dst, 0o755))

	report, err := newEngine().Merge(context.Background(), src, dst, policy.DefaultReplacePolicy())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"a.txt": "a"}, snapshot(t, dst))
	require.Len(t, report.CleanupErrors, 1)
	assert.ErrorIs(t, report.CleanupErrors[0], os.ErrPermission)
	assert.DirExists(t, src)
}

func TestMergeWorkerLimit(t *testing.T) {
	for _, workers := range []int{0, 2} {
		r := &run{engine: New(Options{Workers: workers, Logger: zap.NewNop()})}
		want := workers
		if want == 0 {
			want = DefaultWorkers
		}

		var (
			mu             sync.Mutex
			inFlight, peak int
		)
		g := r.group()
		for range 20 {
			g.Go(func() error {
				mu.Lock()
				inFlight++
				peak = max(peak, inFlight)
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.LessOrEqual(t, peak, want)
		assert.Positive(t, peak)
	}
}

func TestMergeLeavesLinkedDirAlone(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "outside")
	writeTree(t, outside, map[string]string{"keep.flac": "flac"})

	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeTree(t, src, map[string]string{"a.txt": "a"})
	require.NoError(t, os.Symlink(outside, filepath.Join(src, "linked")))
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "linked"), 0o755))

	_, err := newEngine().Merge(context.Background(), src, dst, policy.DefaultReplacePolicy())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"keep.flac": "flac"}, snapshot(t, outside))
	assert.FileExists(t, filepath.Join(dst, "a.txt"))
	_, err = os.Lstat(filepath.Join(src, "linked"))
	assert.NoError(t, err, "link is held in the source")
}
