package parse

import (
	"fmt"
	"os"
	"sync"
)

// Loader reads header bytes for the engine's file_text input query.
// Implementations must be safe for concurrent use.
type Loader interface {
	Load(path string) ([]byte, error)
}

// FileLoader reads headers from the filesystem, with an overlay map that
// shadows on-disk content. Overlays serve two callers: tests, which never
// want to touch the real filesystem, and hosts that re-bind against
// unsaved editor buffers.
type FileLoader struct {
	mu       sync.RWMutex
	overlays map[string][]byte
}

// NewFileLoader returns a loader with no overlays.
func NewFileLoader() *FileLoader {
	return &FileLoader{overlays: make(map[string][]byte)}
}

// Load returns the bytes for path: the overlay if one is set, otherwise
// the file on disk. The returned slice is a copy; callers may hold it
// across overlay changes.
func (l *FileLoader) Load(path string) ([]byte, error) {
	l.mu.RLock()
	data, ok := l.overlays[path]
	l.mu.RUnlock()
	if ok {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	out, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	return out, nil
}

// SetOverlay shadows path with the given content.
func (l *FileLoader) SetOverlay(path string, content []byte) {
	data := make([]byte, len(content))
	copy(data, content)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.overlays[path] = data
}

// DropOverlay removes the overlay for path, exposing on-disk content
// again.
func (l *FileLoader) DropOverlay(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.overlays, path)
}

// HasOverlay reports whether path is currently shadowed.
func (l *FileLoader) HasOverlay(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.overlays[path]
	return ok
}
