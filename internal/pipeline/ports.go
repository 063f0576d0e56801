// Package pipeline drives one project record through validate → fetch →
// analyze → persist → finalize, delegating all I/O to injected ports.
package pipeline

import (
	"context"
	"errors"

	"github.com/storyforge/storyforge-backend/internal/record"
)

// ErrRecordNotFound is returned by RecordStore implementations when the record
// does not exist or has been soft-deleted.
var ErrRecordNotFound = errors.New("record not found")

// StoredObject describes the result of storing content.
type StoredObject struct {
	Key    string
	Size   int64
	SHA256 string
}

// ContentStore is the object-storage port. The pipeline never assumes a
// specific backend or protocol.
type ContentStore interface {
	Fetch(ctx context.Context, objectKey string) ([]byte, error)
	Store(ctx context.Context, objectKey string, data []byte, contentType string) (StoredObject, error)
	Delete(ctx context.Context, objectKey string) error
}

// RecordStore is the persistence port for project records.
type RecordStore interface {
	Get(ctx context.Context, id string) (*record.Project, error)
	UpdateProcessing(ctx context.Context, id string, upd record.ProcessingUpdate) error
	UpdateCounts(ctx context.Context, id string, counts record.CountsUpdate) error
}

// ProgressEvent is published at every checkpoint write.
type ProgressEvent struct {
	RecordID   string            `json:"record_id"`
	FileStatus record.FileStatus `json:"file_status"`
	Progress   float64           `json:"progress"`
	Error      string            `json:"error,omitempty"`
}

// ProgressNotifier pushes checkpoint events to observers. Implementations are
// best-effort; failures must not affect processing.
type ProgressNotifier interface {
	Notify(ctx context.Context, ev ProgressEvent)
}
