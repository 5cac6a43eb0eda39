// Package cleanup tidies a media library after merges: empty work folders,
// zero-byte media left by broken extractions, and lower-quality duplicates.
package cleanup

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"cabinet/internal/logger"
	"cabinet/internal/model"
	"cabinet/internal/policy"
	"cabinet/internal/util"

	"go.uber.org/zap"
)

var MediaExtensions = []string{"ogg", "wav", "flac", "mp4", "wmv", "avi", "mpg", "mpeg", "bmp"}

// MediaShadows removes a From file when a non-empty sibling with the same
// stem and a To extension exists.
var MediaShadows = []policy.ShadowPair{
	{From: []string{"avi", "wmv", "mpg", "mpeg"}, To: []string{"mp4"}},
	{From: []string{"wmv", "mpg", "mpeg"}, To: []string{"avi"}},
	{From: []string{"ogg"}, To: []string{"flac", "wav"}},
	{From: []string{"wav"}, To: []string{"flac"}},
	{From: []string{"wmv"}, To: []string{"mpg"}},
}

type Result struct {
	Removed []string
	// Failures are entries that could not be removed; they were skipped.
	Failures []*model.Failure
}

func (r *Result) remove(path string, all bool) {
	var err error
	if all {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}

	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			logger.Log.Warn("permission denied, skipping", zap.String("path", path))
		} else {
			logger.Log.Error("remove failed", zap.String("path", path), zap.Error(err))
		}
		r.Failures = append(r.Failures, &model.Failure{Op: "remove", Path: path, Err: err})
		return
	}

	logger.Log.Info("removed", zap.String("path", path))
	r.Removed = append(r.Removed, path)
}

// RemoveEmptyFolders removes every direct child directory of parent whose
// subtree holds no non-empty file.
func RemoveEmptyFolders(parent string) (*Result, error) {
	entries, err := util.ListDir(parent)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", parent, err)
	}

	res := &Result{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		has, err := util.HasNonEmptyFile(e.Path)
		if err != nil {
			res.Failures = append(res.Failures, &model.Failure{Op: "scan", Path: e.Path, Err: err})
			continue
		}
		if !has {
			res.remove(e.Path, true)
		}
	}

	return res, nil
}

// RemoveZeroSizeMedia removes zero-byte files with one of exts anywhere
// under root. A nil exts means MediaExtensions.
func RemoveZeroSizeMedia(root string, exts []string) (*Result, error) {
	if exts == nil {
		exts = MediaExtensions
	}

	res := &Result{}
	err := walkDirs(root, res, func(dir string, entries []model.Entry) {
		for _, e := range entries {
			if !e.IsFile() || e.Size > 0 {
				continue
			}
			if slices.Contains(exts, strings.ToLower(policy.Ext(e.Name))) {
				res.remove(e.Path, false)
			}
		}
	})

	return res, err
}

// RemoveShadowedMedia removes, in every directory under root, the files a
// preferred sibling makes redundant. A nil pairs means MediaShadows.
func RemoveShadowedMedia(root string, pairs []policy.ShadowPair) (*Result, error) {
	if pairs == nil {
		pairs = MediaShadows
	}
	rules := policy.SyncPolicy{ShadowPairs: pairs, FoldCase: true}

	res := &Result{}
	err := walkDirs(root, res, func(dir string, entries []model.Entry) {
		// stem -> extensions present with data
		present := make(map[string][]string)
		for _, e := range entries {
			if e.IsFile() && e.Size > 0 {
				stem := policy.Stem(e.Name)
				present[stem] = append(present[stem], rules.NormalizeExt(policy.Ext(e.Name)))
			}
		}

		for _, e := range entries {
			if !e.IsFile() {
				continue
			}

			stem := policy.Stem(e.Name)
			ext := rules.NormalizeExt(policy.Ext(e.Name))
			for _, to := range rules.ShadowTargets(ext) {
				if to != ext && slices.Contains(present[stem], to) {
					logger.Log.Debug("shadowed media",
						zap.String("path", e.Path),
						zap.String("preferred", to))
					res.remove(e.Path, false)
					break
				}
			}
		}
	})

	return res, err
}

// walkDirs lists root and each directory below it once, depth first.
func walkDirs(root string, res *Result, visit func(dir string, entries []model.Entry)) error {
	if !util.IsDir(root) {
		return fmt.Errorf("not a directory: %s", root)
	}

	stack := []string{root}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := util.ListDir(dir)
		if err != nil {
			logger.Log.Warn("failed to list, skipping", zap.String("dir", dir), zap.Error(err))
			res.Failures = append(res.Failures, &model.Failure{Op: "list", Path: dir, Err: err})
			continue
		}

		visit(dir, entries)

		for _, e := range entries {
			if e.IsDir() {
				stack = append(stack, e.Path)
			}
		}
	}

	return nil
}
