package local

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cabinet/internal/model"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher turns fsnotify events of a directory tree into model.FileEvent.
// Directories created after Watch are added as they appear.
type Watcher struct {
	fw       *fsnotify.Watcher
	log      *zap.Logger
	eventCh  chan model.FileEvent
	doneCh   chan struct{}
	stopOnce sync.Once
}

func New(bufferSize int, log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		fw:      fw,
		log:     log,
		eventCh: make(chan model.FileEvent, bufferSize),
		doneCh:  make(chan struct{}),
	}, nil
}

func (w *Watcher) Watch(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if _, err := os.Stat(absDir); err != nil {
		return fmt.Errorf("source directory not found: %w", err)
	}

	if err := w.addRecursive(absDir); err != nil {
		return err
	}

	go w.run()

	w.log.Info("watcher started",
		zap.String("dir", absDir))
	return nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			w.log.Debug("watching directory",
				zap.String("path", path))
		}

		return nil
	})
}

func (w *Watcher) run() {
	defer close(w.eventCh)

	for {
		select {
		case <-w.doneCh:
			w.log.Info("watcher stopping")
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Error("watcher error", zap.Error(err))
		}
	}
}

// handle forwards one fsnotify event. A created dir is watched along with
// everything already inside it, since a tree moved in reports only its root.
func (w *Watcher) handle(ev fsnotify.Event) {
	typ := toEventType(ev.Op)
	if typ == "" {
		return
	}

	if typ == model.EventCreate {
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.log.Warn("failed to watch new directory",
					zap.String("path", ev.Name),
					zap.Error(err))
			}
		}
	}

	select {
	case w.eventCh <- model.FileEvent{Type: typ, Path: ev.Name, Timestamp: time.Now()}:
	default:
		// Dropped events are covered by the next full resync.
		w.log.Warn("event channel is full, dropping event",
			zap.String("path", ev.Name))
	}
}

func (w *Watcher) Events() <-chan model.FileEvent {
	return w.eventCh
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.doneCh)
		_ = w.fw.Close()
	})
}

func toEventType(op fsnotify.Op) model.EventType {
	switch {
	case op.Has(fsnotify.Create):
		return model.EventCreate
	case op.Has(fsnotify.Write):
		return model.EventWrite
	case op.Has(fsnotify.Remove):
		return model.EventRemove
	case op.Has(fsnotify.Rename):
		return model.EventRename
	default:
		return ""
	}
}
