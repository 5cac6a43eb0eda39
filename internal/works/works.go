// Package works moves the work folders of one pack into another.
package works

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"cabinet/internal/logger"
	"cabinet/internal/merge"
	"cabinet/internal/model"
	"cabinet/internal/policy"
	"cabinet/internal/util"

	"go.uber.org/zap"
)

type Merger interface {
	Merge(ctx context.Context, srcDir, dstDir string, p policy.ReplacePolicy) (*merge.Report, error)
}

type Result struct {
	// Works names the folders merged, or is empty when fromRoot was merged as
	// one work.
	Works     []string
	Mutations int
	Failures  []*model.Failure
}

// MoveWorks merges every direct subdirectory of fromRoot into the folder of
// the same name under toRoot. A fromRoot without subdirectories is itself a
// single work and is merged into toRoot.
func MoveWorks(ctx context.Context, fromRoot, toRoot string, p policy.ReplacePolicy, m Merger) (*Result, error) {
	res := &Result{}

	from, err := filepath.Abs(fromRoot)
	if err != nil {
		return res, fmt.Errorf("invalid src path: %w", err)
	}
	to, err := filepath.Abs(toRoot)
	if err != nil {
		return res, fmt.Errorf("invalid dst path: %w", err)
	}
	if from == to {
		return res, nil
	}

	entries, err := util.ListDir(from)
	if err != nil {
		return res, fmt.Errorf("failed to list %s: %w", from, err)
	}

	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		logger.Log.Info("moving work", zap.String("work", e.Name))

		report, err := m.Merge(ctx, e.Path, filepath.Join(to, e.Name), p)
		res.add(report)
		res.Works = append(res.Works, e.Name)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
	}

	if len(res.Works) > 0 {
		logger.Log.Info("works moved", zap.Int("count", len(res.Works)))
		return res, errors.Join(errs...)
	}

	report, err := m.Merge(ctx, from, to, p)
	res.add(report)

	return res, err
}

func (r *Result) add(report *merge.Report) {
	if report == nil {
		return
	}

	r.Mutations += report.Mutations()
	r.Failures = append(r.Failures, report.Failures...)
}
