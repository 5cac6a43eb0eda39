package fslock

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireExcludesOverlappingRuns(t *testing.T) {
	lockDir := filepath.Join(t.TempDir(), "locks")
	root := t.TempDir()
	a := filepath.Join(root, "a")
	b := filepath.Join(root, "b")
	c := filepath.Join(root, "c")

	first, err := Acquire(lockDir, a, b)
	require.NoError(t, err)

	_, err = Acquire(lockDir, b, c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))

	// c was released when the second attempt failed
	other, err := Acquire(lockDir, c)
	require.NoError(t, err)
	other.Release()

	first.Release()

	again, err := Acquire(lockDir, b, c)
	require.NoError(t, err)
	again.Release()
}

func TestAcquireDeduplicatesPaths(t *testing.T) {
	lockDir := t.TempDir()
	dir := t.TempDir()

	l, err := Acquire(lockDir, dir, dir+"/.")
	require.NoError(t, err)
	defer l.Release()

	assert.FileExists(t, LockPath(lockDir, dir))

	_, err = Acquire(lockDir, dir)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestAcquireExcludesAncestorsAndDescendants(t *testing.T) {
	lockDir := t.TempDir()
	lib := filepath.Join(t.TempDir(), "lib")
	pack := filepath.Join(lib, "pack")

	whole, err := Acquire(lockDir, lib)
	require.NoError(t, err)

	_, err = Acquire(lockDir, pack)
	assert.ErrorIs(t, err, ErrBusy, "descendant of a locked tree")
	whole.Release()

	part, err := Acquire(lockDir, pack)
	require.NoError(t, err)

	_, err = Acquire(lockDir, lib)
	assert.ErrorIs(t, err, ErrBusy, "ancestor of a locked tree")

	sibling, err := Acquire(lockDir, filepath.Join(lib, "other"))
	require.NoError(t, err, "siblings share their parent")
	sibling.Release()
	part.Release()
}

func TestAcquireParentAndChildTogether(t *testing.T) {
	lockDir := t.TempDir()
	lib := filepath.Join(t.TempDir(), "lib")

	l, err := Acquire(lockDir, filepath.Join(lib, "work"), lib)
	require.NoError(t, err)
	l.Release()
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	assert.NotPanics(t, l.Release)
}
