package pipeline

import (
	"path/filepath"
	"strings"

	"cabinet/internal/model"
)

// Filter drops events whose path has any component matching an ignore
// pattern (filepath.Match syntax).
func Filter(inCh <-chan model.FileEvent, ignoreList []string) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			if ShouldIgnore(event.Path, ignoreList) {
				continue
			}
			outCh <- event
		}
	}()

	return outCh
}

func ShouldIgnore(path string, ignoreList []string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")

	for _, part := range parts {
		if part == "" {
			continue
		}
		for _, pattern := range ignoreList {
			matched, err := filepath.Match(pattern, part)
			if err == nil && matched {
				return true
			}
		}
	}

	return false
}
