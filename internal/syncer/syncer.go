// Package syncer mirrors a source tree onto a destination tree under a
// SyncPolicy. The walk is sequential and lists every directory once.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cabinet/internal/compare"
	"cabinet/internal/logger"
	"cabinet/internal/model"
	"cabinet/internal/policy"
	"cabinet/internal/util"

	"go.uber.org/zap"
)

var (
	ErrMissingDir = errors.New("directory does not exist")
	ErrSamePath   = errors.New("source and destination are the same directory")
	ErrNested     = errors.New("source and destination trees overlap")
)

// EventSource feeds filesystem events of a watched tree.
type EventSource interface {
	Events() <-chan model.FileEvent
	Start() error
	Stop()
}

type Options struct {
	// ModTimeWindow tolerates coarse filesystem timestamps. Zero means exact.
	ModTimeWindow time.Duration
	Logger        *zap.Logger
}

type Engine struct {
	window time.Duration
	log    *zap.Logger
}

func New(opts Options) *Engine {
	e := &Engine{window: opts.ModTimeWindow, log: opts.Logger}
	if e.log == nil {
		e.log = logger.Log
	}

	return e
}

// Sync runs an Engine with default options.
func Sync(ctx context.Context, srcDir, dstDir string, p policy.SyncPolicy) (*Report, error) {
	return New(Options{}).Sync(ctx, srcDir, dstDir, p)
}

func (e *Engine) Sync(ctx context.Context, srcDir, dstDir string, p policy.SyncPolicy) (*Report, error) {
	report := &Report{}

	if err := p.Validate(); err != nil {
		return report, err
	}

	src, dst, err := checkDirs(srcDir, dstDir)
	if err != nil {
		return report, err
	}

	m := &mirror{
		policy: p,
		cmp: compare.New(compare.Checks{
			Size:          p.CheckSize,
			ModTime:       p.CheckModTime,
			Hash:          p.CheckHash,
			ModTimeWindow: e.window,
		}),
		log:    e.log,
		report: report,
	}

	e.log.Debug("sync started",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.String("policy", p.String()))

	if err := m.dir(ctx, src, dst); err != nil {
		e.log.Warn("sync cancelled",
			zap.String("src", src),
			zap.String("dst", dst),
			zap.Error(err))
		return report, err
	}

	e.log.Info("synced",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.String("preset", p.Name),
		zap.Int("mutations", report.Mutations()),
		zap.Int("failures", len(report.Failures)))

	return report, report.Err()
}

func checkDirs(srcDir, dstDir string) (string, string, error) {
	src, err := filepath.Abs(srcDir)
	if err != nil {
		return "", "", fmt.Errorf("invalid src path: %w", err)
	}
	dst, err := filepath.Abs(dstDir)
	if err != nil {
		return "", "", fmt.Errorf("invalid dst path: %w", err)
	}

	if src == dst {
		return "", "", fmt.Errorf("%w: %s", ErrSamePath, src)
	}
	if util.Within(src, dst) || util.Within(dst, src) {
		return "", "", fmt.Errorf("%w: %s, %s", ErrNested, src, dst)
	}

	for _, dir := range []string{src, dst} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return "", "", fmt.Errorf("%w: %s", ErrMissingDir, dir)
		}
	}

	return src, dst, nil
}
