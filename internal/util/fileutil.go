package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"cabinet/internal/model"
)

const tmpSuffix = ".cabinet.tmp"

func AtomicWrite(dst string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	tmp := dst + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

// CopyFile writes src to dst through a temp file and stamps dst with the
// modification time of src.
func CopyFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open src: %w", err)
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat src: %w", err)
	}

	if err := AtomicWrite(dst, f, info.Mode().Perm()); err != nil {
		return err
	}

	return StampModTime(dst, info.ModTime())
}

func StampModTime(path string, mtime time.Time) error {
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return fmt.Errorf("failed to set mtime: %w", err)
	}

	return nil
}

// MoveFile renames src onto dst, replacing an existing file. Across devices
// it falls back to copy and remove.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	if !IsCrossDevice(err) {
		return fmt.Errorf("failed to move: %w", err)
	}

	if err := CopyFile(src, dst); err != nil {
		return err
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove src after copy: %w", err)
	}

	return nil
}

func IsCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}

func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Within reports whether path lies strictly below root. Both must be clean
// absolute paths.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// HasNonEmptyFile reports whether the tree under dir holds at least one
// regular file with data in it.
func HasNonEmptyFile(dir string) (bool, error) {
	entries, err := ListDir(dir)
	if err != nil {
		return false, err
	}

	for _, e := range entries {
		switch e.Kind {
		case model.KindFile:
			if e.Size > 0 {
				return true, nil
			}
		case model.KindDir:
			found, err := HasNonEmptyFile(e.Path)
			if err != nil || found {
				return found, err
			}
		}
	}

	return false, nil
}

// ListDir reads the direct children of dir. A link to a file lists as the
// file it points at. Links to directories and dangling links list as
// KindOther, so no walk leaves the tree through a link.
func ListDir(dir string) ([]model.Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]model.Entry, 0, len(des))
	for _, de := range des {
		path := filepath.Join(dir, de.Name())
		e := model.Entry{Name: de.Name(), Path: path}

		info, err := os.Stat(path)
		switch {
		case err != nil:
			e.Kind = model.KindOther
		case info.IsDir() && de.Type()&os.ModeSymlink != 0:
			e.Kind = model.KindOther
		case info.IsDir():
			e.Kind = model.KindDir
			e.ModTime = info.ModTime()
		case info.Mode().IsRegular():
			e.Kind = model.KindFile
			e.Size = info.Size()
			e.ModTime = info.ModTime()
		default:
			e.Kind = model.KindOther
		}

		entries = append(entries, e)
	}

	return entries, nil
}
