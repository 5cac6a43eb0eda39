package conflict

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cabinet/internal/compare"
	"cabinet/internal/logger"
	"cabinet/internal/policy"
	"cabinet/internal/util"

	"go.uber.org/zap"
)

const DefaultRenameLimit = 100

var ErrRenameLimit = errors.New("too many files with the same name")

type Outcome string

const (
	// OutcomeMove: the destination was free.
	OutcomeMove Outcome = "MOVE"
	// OutcomeReplace: the destination was overwritten.
	OutcomeReplace Outcome = "REPLACE"
	// OutcomeSkip: the destination was kept and the source left for cleanup.
	OutcomeSkip Outcome = "SKIP"
	// OutcomeRename: the source must go to a free name.N.ext; Apply settles it.
	OutcomeRename Outcome = "RENAME"
	// OutcomeRenamed: the source now lives at Target.
	OutcomeRenamed Outcome = "RENAMED"
	// OutcomeConsume: Target already held identical content, so the source was removed.
	OutcomeConsume Outcome = "CONSUME"
)

type Decision struct {
	Action  policy.ReplaceAction
	Outcome Outcome
	Target  string
}

type Resolver struct {
	policy policy.ReplacePolicy
	limit  int
	log    *zap.Logger
}

func NewResolver(p policy.ReplacePolicy, limit int, log *zap.Logger) *Resolver {
	if p.Default == "" {
		p.Default = policy.ActionReplace
	}
	if limit <= 0 {
		limit = DefaultRenameLimit
	}
	if log == nil {
		log = logger.Log
	}

	return &Resolver{policy: p, limit: limit, log: log}
}

func (r *Resolver) Policy() policy.ReplacePolicy {
	return r.policy
}

// Plan decides what should happen to src given the current state of dst. It
// only reads the filesystem.
func (r *Resolver) Plan(src, dst string) (Decision, error) {
	action := r.policy.Lookup(src)
	d := Decision{Action: action, Target: dst}
	exists := util.Exists(dst)

	switch action {
	case policy.ActionReplace:
		d.Outcome = OutcomeReplace
		if !exists {
			d.Outcome = OutcomeMove
		}

	case policy.ActionSkip:
		d.Outcome = OutcomeSkip
		if !exists {
			d.Outcome = OutcomeMove
		}

	case policy.ActionRename:
		d.Outcome = OutcomeRename
		d.Target = ""

	case policy.ActionCheckReplace:
		if !exists {
			d.Outcome = OutcomeMove
			break
		}

		same, err := compare.SameContent(src, dst)
		if err != nil {
			return d, fmt.Errorf("failed to compare with %s: %w", dst, err)
		}

		if same {
			d.Outcome = OutcomeReplace
		} else {
			d.Outcome = OutcomeRename
			d.Target = ""
		}

	default:
		return d, fmt.Errorf("unknown replace action: %q", action)
	}

	return d, nil
}

// Apply carries out a planned decision. dst is the original destination path;
// for renames the returned decision carries the final target.
func (r *Resolver) Apply(src, dst string, d Decision) (Decision, error) {
	switch d.Outcome {
	case OutcomeMove, OutcomeReplace:
		if err := util.MoveFile(src, dst); err != nil {
			return d, err
		}
		r.log.Debug("file merged",
			zap.String("src", src),
			zap.String("dst", dst),
			zap.String("outcome", string(d.Outcome)))
		return d, nil

	case OutcomeSkip:
		r.log.Debug("existing file kept",
			zap.String("src", src),
			zap.String("dst", dst))
		return d, nil

	case OutcomeRename:
		return r.rename(src, dst, d)

	default:
		return d, fmt.Errorf("decision already settled: %s", d.Outcome)
	}
}

// Resolve plans and applies in one step.
func (r *Resolver) Resolve(src, dst string) (Decision, error) {
	d, err := r.Plan(src, dst)
	if err != nil {
		return d, err
	}

	return r.Apply(src, dst, d)
}

func (r *Resolver) rename(src, dst string, d Decision) (Decision, error) {
	dir := filepath.Dir(dst)
	name := filepath.Base(dst)
	stem, ext := policy.Stem(name), policy.Ext(name)

	for i := range r.limit {
		candidate := filepath.Join(dir, RenameCandidate(stem, ext, i))

		if _, err := os.Lstat(candidate); err != nil {
			if !os.IsNotExist(err) {
				return d, fmt.Errorf("failed to stat %s: %w", candidate, err)
			}

			if err := util.MoveFile(src, candidate); err != nil {
				return d, err
			}

			d.Outcome = OutcomeRenamed
			d.Target = candidate
			r.log.Info("conflict resolved: renamed",
				zap.String("src", src),
				zap.String("dst", candidate))
			return d, nil
		}

		same, err := compare.SameContent(src, candidate)
		if err != nil {
			return d, fmt.Errorf("failed to compare with %s: %w", candidate, err)
		}
		if !same {
			continue
		}

		if err := os.Remove(src); err != nil {
			return d, fmt.Errorf("failed to remove merged src: %w", err)
		}

		d.Outcome = OutcomeConsume
		d.Target = candidate
		r.log.Info("conflict resolved: identical copy exists",
			zap.String("src", src),
			zap.String("dst", candidate))
		return d, nil
	}

	return d, fmt.Errorf("%w: %s (limit %d)", ErrRenameLimit, dst, r.limit)
}

// RenameCandidate builds the i-th disambiguated file name.
func RenameCandidate(stem, ext string, i int) string {
	if ext == "" {
		return fmt.Sprintf("%s.%d", stem, i)
	}

	return fmt.Sprintf("%s.%d.%s", stem, i, ext)
}
