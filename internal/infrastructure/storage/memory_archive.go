package storage

import (
	"context"
	"errors"
	"sync"
)

// MemoryReportArchive keeps reports in process. Tests use it in place of
// the S3 archive.
type MemoryReportArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryReportArchive() *MemoryReportArchive {
	return &MemoryReportArchive{objects: make(map[string][]byte)}
}

// Store keeps a copy of body and returns a mem:// location.
func (m *MemoryReportArchive) Store(_ context.Context, key string, body []byte, _ string) (string, error) {
	if key == "" {
		return "", errors.New("archive key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), body...)
	return "mem://" + key, nil
}

// Get returns a stored report.
func (m *MemoryReportArchive) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	return b, ok
}

// Keys lists stored report keys in no particular order.
func (m *MemoryReportArchive) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
