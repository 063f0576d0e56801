// Package storage provides an in-memory content store used by tests and the
// CLI dry-run path.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/storyforge/storyforge-backend/internal/pipeline"
)

// Memory is a threadsafe in-memory pipeline.ContentStore.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ pipeline.ContentStore = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Store keeps a copy of data under objectKey.
func (m *Memory) Store(_ context.Context, objectKey string, data []byte, _ string) (pipeline.StoredObject, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.objects[objectKey] = cp
	m.mu.Unlock()
	sum := sha256.Sum256(data)
	return pipeline.StoredObject{
		Key:    objectKey,
		Size:   int64(len(data)),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

// Fetch returns a copy of the stored bytes.
func (m *Memory) Fetch(_ context.Context, objectKey string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.objects[objectKey]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectKey)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Delete removes the object if present.
func (m *Memory) Delete(_ context.Context, objectKey string) error {
	m.mu.Lock()
	delete(m.objects, objectKey)
	m.mu.Unlock()
	return nil
}
