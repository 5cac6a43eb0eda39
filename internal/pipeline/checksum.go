package pipeline

import (
	"bytes"
	"os"
	"sync"

	"cabinet/internal/compare"
	"cabinet/internal/logger"
	"cabinet/internal/model"

	"go.uber.org/zap"
)

// ChecksumFilter drops write events that leave a file's content unchanged,
// such as a touch or an editor saving the same bytes.
type ChecksumFilter struct {
	mu    sync.Mutex
	cache map[string][]byte
}

func NewChecksumFilter() *ChecksumFilter {
	return &ChecksumFilter{
		cache: make(map[string][]byte),
	}
}

func (cf *ChecksumFilter) Run(inCh <-chan model.FileEvent) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			if cf.Changed(event) {
				outCh <- event
			}
		}
	}()

	return outCh
}

// Changed reports whether event should reach the resync stage.
func (cf *ChecksumFilter) Changed(event model.FileEvent) bool {
	if event.Type == model.EventRemove || event.Type == model.EventRename {
		cf.forget(event.Path)
		return true
	}

	info, err := os.Stat(event.Path)
	if err != nil {
		// Gone before we looked; the resync will notice.
		cf.forget(event.Path)
		return true
	}
	if !info.Mode().IsRegular() {
		return true
	}

	sum, err := compare.Digest(event.Path)
	if err != nil {
		logger.Log.Debug("checksum failed, passing event",
			zap.String("path", event.Path),
			zap.Error(err))
		return true
	}

	cf.mu.Lock()
	defer cf.mu.Unlock()

	prev, seen := cf.cache[event.Path]
	if seen && bytes.Equal(prev, sum) {
		logger.Log.Debug("checksum unchanged, skipping",
			zap.String("path", event.Path))
		return false
	}

	cf.cache[event.Path] = sum
	return true
}

func (cf *ChecksumFilter) forget(path string) {
	cf.mu.Lock()
	delete(cf.cache, path)
	cf.mu.Unlock()
}
