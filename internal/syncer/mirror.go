package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cabinet/internal/compare"
	"cabinet/internal/model"
	"cabinet/internal/policy"
	"cabinet/internal/util"

	"go.uber.org/zap"
)

type mirror struct {
	policy policy.SyncPolicy
	cmp    *compare.Comparator
	log    *zap.Logger
	report *Report
}

// dir mirrors one directory level and recurses into subdirectories. Only
// cancellation is returned; per-entry errors land in the report.
func (m *mirror) dir(ctx context.Context, src, dst string) error {
	srcEntries, err := util.ListDir(src)
	if err != nil {
		m.fail("list", src, err)
		return nil
	}
	dstEntries, err := util.ListDir(dst)
	if err != nil {
		m.fail("list", dst, err)
		return nil
	}

	dstByName := make(map[string]model.Entry, len(dstEntries))
	for _, e := range dstEntries {
		dstByName[e.Name] = e
	}

	log := DirLog{Src: src, Dst: dst}
	defer func() {
		if log.Mutations() > 0 {
			m.report.Dirs = append(m.report.Dirs, log)
		}
	}()

	srcNames := make(map[string]struct{}, len(srcEntries))
	for _, entry := range srcEntries {
		srcNames[entry.Name] = struct{}{}

		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(dst, entry.Name)
		existing, exists := dstByName[entry.Name]

		switch entry.Kind {
		case model.KindDir:
			if exists && !existing.IsDir() {
				if !m.replaceable() {
					m.fail("sync", entry.Path, fmt.Errorf("destination is not a directory: %s", target))
					continue
				}
				if !m.removeDst(&log, existing) {
					continue
				}
				exists = false
			}

			if !exists {
				// Nothing below would be executed without an action.
				if m.policy.Action == policy.SyncNone {
					continue
				}
				if err := os.Mkdir(target, 0755); err != nil {
					m.fail("mkdir", target, err)
					continue
				}
			}

			if err := m.dir(ctx, entry.Path, target); err != nil {
				return err
			}

		case model.KindFile:
			if exists && existing.IsDir() && m.replaceable() && m.wants(entry, dst) {
				if !m.removeDst(&log, existing) {
					continue
				}
			}
			m.file(&log, entry, dst, target)

		default:
			m.log.Debug("irregular entry skipped", zap.String("path", entry.Path))
		}
	}

	if !m.policy.PruneDestinationExtras {
		return nil
	}

	for _, e := range dstEntries {
		if _, ok := srcNames[e.Name]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		m.removeDst(&log, e)
	}

	return nil
}

// replaceable reports whether a destination entry of the wrong kind may be
// removed to make room for its source counterpart.
func (m *mirror) replaceable() bool {
	return m.policy.PruneDestinationExtras && m.policy.Action != policy.SyncNone
}

// wants reports whether the file passes the extension filter and shadow rules.
func (m *mirror) wants(entry model.Entry, dstDir string) bool {
	ext := m.policy.NormalizeExt(policy.Ext(entry.Name))
	if !m.policy.Allowed(ext) {
		return false
	}

	stem := policy.Stem(entry.Name)
	for _, to := range m.policy.ShadowTargets(ext) {
		shadow := filepath.Join(dstDir, stem+"."+to)
		if util.Exists(shadow) {
			m.log.Debug("shadowed by preferred format",
				zap.String("src", entry.Path),
				zap.String("shadow", shadow))
			return false
		}
	}

	return true
}

func (m *mirror) file(log *DirLog, entry model.Entry, dstDir, target string) {
	if !m.wants(entry, dstDir) {
		return
	}

	unchanged, err := m.cmp.Unchanged(entry.Path, target)
	if err != nil {
		m.fail("compare", entry.Path, err)
		return
	}

	if unchanged {
		if !m.policy.RemoveSourceOnMatch {
			return
		}
		if err := os.Remove(entry.Path); err != nil {
			m.fail("remove", entry.Path, err)
			return
		}
		log.RemovedSrc = append(log.RemovedSrc, entry.Name)
		return
	}

	switch m.policy.Action {
	case policy.SyncNone:
		return

	case policy.SyncCopy:
		if err := util.CopyFile(entry.Path, target); err != nil {
			m.fail("copy", entry.Path, err)
			return
		}
		log.Copied = append(log.Copied, entry.Name)

	case policy.SyncMove:
		if err := util.MoveFile(entry.Path, target); err != nil {
			m.fail("move", entry.Path, err)
			return
		}
		if err := util.StampModTime(target, entry.ModTime); err != nil {
			m.fail("stamp", target, err)
		}
		log.Moved = append(log.Moved, entry.Name)

	default:
		m.fail("sync", entry.Path, fmt.Errorf("unknown sync action: %q", m.policy.Action))
	}
}

func (m *mirror) removeDst(log *DirLog, e model.Entry) bool {
	if e.IsDir() {
		if err := os.RemoveAll(e.Path); err != nil {
			m.fail("prune", e.Path, err)
			return false
		}
		log.RemovedDstDirs = append(log.RemovedDstDirs, e.Name)
		return true
	}

	if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
		m.fail("prune", e.Path, err)
		return false
	}
	log.RemovedDst = append(log.RemovedDst, e.Name)
	return true
}

func (m *mirror) fail(op, path string, err error) {
	m.log.Error("sync failed",
		zap.String("op", op),
		zap.String("path", path),
		zap.Error(err))
	m.report.Failures = append(m.report.Failures, &model.Failure{Op: op, Path: path, Err: err})
}
