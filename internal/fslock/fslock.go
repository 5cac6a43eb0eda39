// Package fslock keeps two runs from working on overlapping trees at once.
// Locks are advisory files kept outside the trees: a run holds its own trees
// exclusively and every ancestor of them shared, so a run on lib and a run on
// lib/pack exclude each other while lib/a and lib/b do not.
package fslock

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/gofrs/flock"
)

var ErrBusy = errors.New("tree is in use by another run")

// Lock holds the locks of a set of trees.
type Lock struct {
	held []*flock.Flock
}

// Acquire takes non-blocking locks for every path and its ancestors, in a
// stable order. Either all of them are held on return or none are.
func Acquire(lockDir string, paths ...string) (*Lock, error) {
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}

	exclusive := make(map[string]bool)
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", p, err)
		}
		exclusive[a] = true
	}

	all := make(map[string]bool, len(exclusive))
	for a := range exclusive {
		all[a] = true
		for dir := filepath.Dir(a); ; dir = filepath.Dir(dir) {
			all[dir] = all[dir] || exclusive[dir]
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}

	order := make([]string, 0, len(all))
	for a := range all {
		order = append(order, a)
	}
	slices.Sort(order)

	l := &Lock{}
	for _, a := range order {
		fl := flock.New(LockPath(lockDir, a))

		var (
			ok  bool
			err error
		)
		if all[a] {
			ok, err = fl.TryLock()
		} else {
			ok, err = fl.TryRLock()
		}
		if err != nil {
			l.Release()
			return nil, fmt.Errorf("acquire lock for %s: %w", a, err)
		}
		if !ok {
			l.Release()
			return nil, fmt.Errorf("%w: %s", ErrBusy, a)
		}

		l.held = append(l.held, fl)
	}

	return l, nil
}

// LockPath names the lock file of an absolute tree path.
func LockPath(lockDir, absPath string) string {
	sum := sha1.Sum([]byte(absPath))
	return filepath.Join(lockDir, hex.EncodeToString(sum[:])+".lock")
}

func (l *Lock) Release() {
	if l == nil {
		return
	}

	for _, fl := range l.held {
		_ = fl.Unlock()
	}
	l.held = nil
}
