// Package merge absorbs one directory tree into another. Every source file
// ends up moved, merged into an identical destination file, or kept under a
// disambiguated name; the emptied source tree is removed afterwards.
package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cabinet/internal/conflict"
	"cabinet/internal/logger"
	"cabinet/internal/model"
	"cabinet/internal/policy"
	"cabinet/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 4

var (
	ErrNotDir = errors.New("not a directory")
	// ErrNested marks a destination inside the source tree.
	ErrNested = errors.New("destination lies inside the source tree")
)

// removeAll deletes merged source dirs during cleanup.
var removeAll = os.RemoveAll

type Options struct {
	Workers     int
	RenameLimit int
	Logger      *zap.Logger
}

type Report struct {
	Moved     int
	Replaced  int
	Renamed   int
	Consumed  int
	Skipped   int
	DirsMoved int

	Failures      []*model.Failure
	CleanupErrors []*model.Failure
}

// Mutations counts the operations that changed the destination.
func (r *Report) Mutations() int {
	return r.Moved + r.Replaced + r.Renamed + r.Consumed + r.DirsMoved
}

// Err joins every per-item failure, or returns nil.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}

	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}

	return errors.Join(errs...)
}

type Engine struct {
	workers int
	limit   int
	log     *zap.Logger
}

func New(opts Options) *Engine {
	e := &Engine{
		workers: opts.Workers,
		limit:   opts.RenameLimit,
		log:     opts.Logger,
	}

	if e.workers <= 0 {
		e.workers = DefaultWorkers
	}
	if e.limit <= 0 {
		e.limit = conflict.DefaultRenameLimit
	}
	if e.log == nil {
		e.log = logger.Log
	}

	return e
}

// Merge runs an Engine with default options.
func Merge(ctx context.Context, srcDir, dstDir string, p policy.ReplacePolicy) (*Report, error) {
	return New(Options{}).Merge(ctx, srcDir, dstDir, p)
}

func (e *Engine) Merge(ctx context.Context, srcDir, dstDir string, p policy.ReplacePolicy) (*Report, error) {
	report := &Report{}

	if p.Default == "" {
		p.Default = policy.ActionReplace
	}
	if err := p.Validate(); err != nil {
		return report, err
	}

	src, err := filepath.Abs(srcDir)
	if err != nil {
		return report, fmt.Errorf("invalid src path: %w", err)
	}
	dst, err := filepath.Abs(dstDir)
	if err != nil {
		return report, fmt.Errorf("invalid dst path: %w", err)
	}

	if src == dst {
		return report, nil
	}

	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		e.log.Debug("merge source missing", zap.String("src", src))
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("failed to stat src: %w", err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("%w: %s", ErrNotDir, src)
	}

	if util.Within(src, dst) {
		return report, fmt.Errorf("%w: %s, %s", ErrNested, src, dst)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	if !util.Exists(dst) {
		moved, err := e.moveWhole(src, dst)
		if err != nil {
			return report, err
		}
		if moved {
			report.DirsMoved++
			return report, nil
		}
	} else if !util.IsDir(dst) {
		return report, fmt.Errorf("%w: %s", ErrNotDir, dst)
	}

	if util.Within(dst, src) {
		if err := e.moveAside(src, dst); err != nil {
			return report, err
		}
	}

	r := &run{
		engine:   e,
		policy:   p,
		resolver: conflict.NewResolver(p, e.limit, e.log),
		report:   report,
		root:     src,
		pairs:    []pair{{src: src, dst: dst, parent: -1}},
	}

	if err := r.walk(ctx); err != nil {
		e.log.Warn("merge cancelled",
			zap.String("src", src),
			zap.String("dst", dst),
			zap.Error(err))
		return report, err
	}

	r.cleanup()

	e.log.Info("merged",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.Int("mutations", report.Mutations()),
		zap.Int("failures", len(report.Failures)))

	return report, report.Err()
}

// moveWhole renames src onto the missing dst. It reports false with dst
// created as an empty directory when the two sit on different devices.
func (e *Engine) moveWhole(src, dst string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, fmt.Errorf("failed to create dst parent: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		e.log.Info("merged by rename", zap.String("src", src), zap.String("dst", dst))
		return true, nil
	}

	if !util.IsCrossDevice(err) {
		return false, fmt.Errorf("failed to move %s: %w", src, err)
	}

	if err := os.Mkdir(dst, 0755); err != nil {
		return false, fmt.Errorf("failed to create dst dir: %w", err)
	}

	return false, nil
}

// moveAside renames the child of src that would land back on src itself when
// src is merged into its ancestor dst, as in flattening pack/work into pack
// while pack/work/work exists. The child is kept as <name>-rep.
func (e *Engine) moveAside(src, dst string) error {
	rel, err := filepath.Rel(dst, src)
	if err != nil {
		return err
	}
	head, _, _ := strings.Cut(rel, string(filepath.Separator))

	inner := filepath.Join(src, head)
	if !util.Exists(inner) {
		return nil
	}

	for i := range e.limit {
		name := head + "-rep"
		if i > 0 {
			name = fmt.Sprintf("%s-rep.%d", head, i)
		}

		aside := filepath.Join(src, name)
		if util.Exists(aside) {
			continue
		}
		if err := os.Rename(inner, aside); err != nil {
			return fmt.Errorf("failed to move %s aside: %w", inner, err)
		}

		e.log.Info("moved aside", zap.String("path", inner), zap.String("to", aside))
		return nil
	}

	return fmt.Errorf("%w: %s", conflict.ErrRenameLimit, inner)
}

// pair is one pending (source dir, existing destination dir) merge. parent
// indexes the pair that queued it.
type pair struct {
	src    string
	dst    string
	parent int
	hold   bool
}

type rename struct {
	pair int
	src  string
	dst  string
	d    conflict.Decision
}

type run struct {
	engine   *Engine
	policy   policy.ReplacePolicy
	resolver *conflict.Resolver
	report   *Report
	// root is the source dir of the whole run.
	root string

	mu      sync.Mutex
	pairs   []pair
	renames []rename
}

// walk processes the worklist one level at a time. Every level finishes
// before the next one starts.
func (r *run) walk(ctx context.Context) error {
	level := []int{0}

	for len(level) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, err := r.level(ctx, level)
		if err != nil {
			return err
		}

		level = next
	}

	return nil
}

func (r *run) level(ctx context.Context, idxs []int) ([]int, error) {
	var next []int
	r.renames = r.renames[:0]

	g := r.group()
	cancelled := func() error {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return err
		}
		return nil
	}

	for _, idx := range idxs {
		r.mu.Lock()
		p := r.pairs[idx]
		r.mu.Unlock()

		entries, err := util.ListDir(p.src)
		if err != nil {
			r.fail(idx, "list", p.src, err)
			continue
		}

		for _, entry := range entries {
			if err := cancelled(); err != nil {
				return nil, err
			}

			target := filepath.Join(p.dst, entry.Name)

			switch entry.Kind {
			case model.KindFile:
				g.Go(func() error {
					r.mergeFile(idx, entry.Path, target)
					return nil
				})

			case model.KindDir:
				g.Go(func() error {
					if child, ok := r.mergeDir(idx, entry.Path, target); ok {
						r.mu.Lock()
						next = append(next, child)
						r.mu.Unlock()
					}
					return nil
				})

			default:
				r.engine.log.Warn("irregular entry left in place", zap.String("path", entry.Path))
				r.mu.Lock()
				r.pairs[idx].hold = true
				r.mu.Unlock()
			}
		}
	}

	_ = g.Wait()
	g = r.group()

	// Renames probe sibling names in the destination, so they run only after
	// every plain move of the level has landed.
	for _, rn := range r.renames {
		if err := cancelled(); err != nil {
			return nil, err
		}

		g.Go(func() error {
			r.settle(rn.pair, rn.src, rn.dst, rn.d)
			return nil
		})
	}

	_ = g.Wait()

	return next, nil
}

func (r *run) group() *errgroup.Group {
	g := new(errgroup.Group)
	g.SetLimit(r.engine.workers)
	return g
}

func (r *run) mergeFile(idx int, src, dst string) {
	d, err := r.resolver.Plan(src, dst)
	if err != nil {
		r.fail(idx, "plan", src, err)
		return
	}

	if d.Outcome == conflict.OutcomeRename {
		r.mu.Lock()
		r.renames = append(r.renames, rename{pair: idx, src: src, dst: dst, d: d})
		r.mu.Unlock()
		return
	}

	r.settle(idx, src, dst, d)
}

func (r *run) settle(idx int, src, dst string, d conflict.Decision) {
	d, err := r.resolver.Apply(src, dst, d)
	if err != nil {
		r.fail(idx, "merge", src, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch d.Outcome {
	case conflict.OutcomeMove:
		r.report.Moved++
	case conflict.OutcomeReplace:
		r.report.Replaced++
	case conflict.OutcomeRenamed:
		r.report.Renamed++
	case conflict.OutcomeConsume:
		r.report.Consumed++
	case conflict.OutcomeSkip:
		r.report.Skipped++
	}
}

// mergeDir moves a directory whose destination is free, or queues the pair.
func (r *run) mergeDir(idx int, src, dst string) (int, bool) {
	// Merging into the source itself would have cleanup delete the result.
	if dst == r.root || util.Within(r.root, dst) {
		r.fail(idx, "merge", src, fmt.Errorf("%w: %s", ErrNested, dst))
		return 0, false
	}

	info, err := os.Stat(dst)
	switch {
	case os.IsNotExist(err):
		err := os.Rename(src, dst)
		if err == nil {
			r.mu.Lock()
			r.report.DirsMoved++
			r.mu.Unlock()
			r.engine.log.Debug("dir moved", zap.String("src", src), zap.String("dst", dst))
			return 0, false
		}

		if !util.IsCrossDevice(err) {
			r.fail(idx, "move", src, err)
			return 0, false
		}

		if err := os.Mkdir(dst, 0755); err != nil {
			r.fail(idx, "mkdir", dst, err)
			return 0, false
		}

	case err != nil:
		r.fail(idx, "stat", dst, err)
		return 0, false

	case !info.IsDir():
		r.fail(idx, "merge", src, fmt.Errorf("%w: %s", ErrNotDir, dst))
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pairs = append(r.pairs, pair{src: src, dst: dst, parent: idx})
	return len(r.pairs) - 1, true
}

func (r *run) fail(idx int, op, path string, err error) {
	f := &model.Failure{Op: op, Path: path, Err: err}
	r.engine.log.Error("merge failed",
		zap.String("op", op),
		zap.String("path", path),
		zap.Error(err))

	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Failures = append(r.report.Failures, f)
	r.pairs[idx].hold = true
}

// cleanup removes merged source dirs, deepest first. A dir is held back when
// it or anything below it failed, or when the default action is Skip and
// content was left behind.
func (r *run) cleanup() {
	for i := len(r.pairs) - 1; i >= 0; i-- {
		p := r.pairs[i]

		if !p.hold && r.policy.Default == policy.ActionSkip {
			left, err := util.HasNonEmptyFile(p.src)
			switch {
			case err != nil:
				r.cleanupFailed(p.src, err)
				p.hold = true
			case left:
				r.engine.log.Info("source kept: skipped files remain", zap.String("src", p.src))
				p.hold = true
			}
		}

		if p.hold {
			if p.parent >= 0 {
				r.pairs[p.parent].hold = true
			}
			continue
		}

		if err := removeAll(p.src); err != nil {
			r.cleanupFailed(p.src, err)
		}
	}
}

func (r *run) cleanupFailed(path string, err error) {
	r.engine.log.Warn("cleanup failed", zap.String("path", path), zap.Error(err))
	r.report.CleanupErrors = append(r.report.CleanupErrors, &model.Failure{Op: "cleanup", Path: path, Err: err})
}
