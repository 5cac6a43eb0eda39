// Package local watches a source tree on the local filesystem.
package local

import (
	"cabinet/internal/logger"
	"cabinet/internal/model"
	"cabinet/internal/syncer"

	"go.uber.org/zap"
)

var _ syncer.EventSource = (*Source)(nil)

// Source is a syncer.EventSource for one local directory tree. Nothing is
// watched until Start.
type Source struct {
	path string
	w    *Watcher
}

func NewSource(path string, bufSize int, log *zap.Logger) (*Source, error) {
	if log == nil {
		log = logger.Log
	}

	w, err := New(bufSize, log)
	if err != nil {
		return nil, err
	}

	return &Source{path: path, w: w}, nil
}

func (s *Source) Events() <-chan model.FileEvent {
	return s.w.Events()
}

func (s *Source) Start() error {
	return s.w.Watch(s.path)
}

func (s *Source) Stop() {
	s.w.Stop()
}
