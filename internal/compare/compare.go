// Package compare decides whether two files on disk hold the same data.
//
// Every helper fails closed: a path that is missing or is not a regular file
// never compares equal to anything.
package compare

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const chunkSize = 64 * 1024

func regular(path string) (os.FileInfo, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return info, info.Mode().IsRegular(), nil
}

// SameContent compares a and b byte for byte. Sizes are checked first, then
// both files are streamed in chunks.
func SameContent(a, b string) (bool, error) {
	ia, ok, err := regular(a)
	if err != nil || !ok {
		return false, err
	}
	ib, ok, err := regular(b)
	if err != nil || !ok {
		return false, err
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}
	if os.SameFile(ia, ib) {
		return true, nil
	}

	fa, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(fa)

	fb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(fb)

	bufA := make([]byte, chunkSize)
	bufB := make([]byte, chunkSize)
	for {
		na, errA := io.ReadFull(fa, bufA)
		nb, errB := io.ReadFull(fb, bufB)

		if !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}

		doneA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		doneB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		switch {
		case errA != nil && !doneA:
			return false, fmt.Errorf("failed to read %s: %w", a, errA)
		case errB != nil && !doneB:
			return false, fmt.Errorf("failed to read %s: %w", b, errB)
		case doneA || doneB:
			return doneA && doneB, nil
		}
	}
}

// Digest returns the SHA-512 of the file at path.
func Digest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

func SameDigest(a, b string) (bool, error) {
	if _, ok, err := regular(a); err != nil || !ok {
		return false, err
	}
	if _, ok, err := regular(b); err != nil || !ok {
		return false, err
	}

	da, err := Digest(a)
	if err != nil {
		return false, err
	}
	db, err := Digest(b)
	if err != nil {
		return false, err
	}

	return bytes.Equal(da, db), nil
}

// Checks selects the staleness checks a Comparator runs. A destination is
// unchanged only when every enabled check agrees.
type Checks struct {
	Size          bool
	ModTime       bool
	Hash          bool
	Bytes         bool
	ModTimeWindow time.Duration
}

type Comparator struct {
	checks Checks
}

func New(checks Checks) *Comparator {
	return &Comparator{checks: checks}
}

func (c *Comparator) Checks() Checks {
	return c.checks
}

// Unchanged reports whether dst already matches src. A missing destination is
// always stale. Metadata checks run before content checks and the first
// disagreement ends the evaluation.
func (c *Comparator) Unchanged(src, dst string) (bool, error) {
	si, ok, err := regular(src)
	if err != nil || !ok {
		return false, err
	}
	di, ok, err := regular(dst)
	if err != nil || !ok {
		return false, err
	}

	if c.checks.Size && si.Size() != di.Size() {
		return false, nil
	}

	if c.checks.ModTime && !sameTime(si.ModTime(), di.ModTime(), c.checks.ModTimeWindow) {
		return false, nil
	}

	if c.checks.Hash {
		same, err := SameDigest(src, dst)
		if err != nil || !same {
			return false, err
		}
	}

	if c.checks.Bytes {
		same, err := SameContent(src, dst)
		if err != nil || !same {
			return false, err
		}
	}

	return true, nil
}

func sameTime(a, b time.Time, window time.Duration) bool {
	if window <= 0 {
		return a.Equal(b)
	}

	d := a.Sub(b)
	if d < 0 {
		d = -d
	}

	return d <= window
}
