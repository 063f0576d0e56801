// Package record defines the project record tracked through upload and
// processing, plus the typed status dimensions and their transition tables.
package record

import "fmt"

// Status describes the overall project lifecycle.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusArchived   Status = "archived"
)

// FileStatus describes the upload/processing lifecycle of the backing file.
type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileUploading  FileStatus = "uploading"
	FileUploaded   FileStatus = "uploaded"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileFailed     FileStatus = "failed"
)

// statusNext is the explicit transition table for the project dimension.
// completed and failed re-enter processing when a record is reprocessed.
var statusNext = map[Status][]Status{
	StatusDraft:      {StatusProcessing, StatusArchived},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusProcessing, StatusArchived},
	StatusFailed:     {StatusProcessing, StatusArchived},
	StatusArchived:   {StatusDraft},
}

// fileStatusNext is the transition table for the file dimension. failed and
// completed both allow re-entry into processing (retry and reprocess).
var fileStatusNext = map[FileStatus][]FileStatus{
	FilePending:    {FileUploading, FileFailed},
	FileUploading:  {FileUploaded, FileFailed},
	FileUploaded:   {FileProcessing, FileFailed},
	FileProcessing: {FileCompleted, FileFailed},
	FileCompleted:  {FileProcessing},
	FileFailed:     {FileProcessing},
}

// AllowedNext returns the project statuses reachable from cur.
func AllowedNext(cur Status) []Status {
	return statusNext[cur]
}

// AllowedNextFile returns the file statuses reachable from cur.
func AllowedNextFile(cur FileStatus) []FileStatus {
	return fileStatusNext[cur]
}

// CanTransition reports whether cur may move to next in the project dimension.
func CanTransition(cur, next Status) bool {
	for _, s := range statusNext[cur] {
		if s == next {
			return true
		}
	}
	return false
}

// CanTransitionFile reports whether cur may move to next in the file dimension.
func CanTransitionFile(cur, next FileStatus) bool {
	for _, s := range fileStatusNext[cur] {
		if s == next {
			return true
		}
	}
	return false
}

// CheckTransitionFile returns a descriptive error when the move is not in the
// transition table.
func CheckTransitionFile(cur, next FileStatus) error {
	if !CanTransitionFile(cur, next) {
		return fmt.Errorf("illegal file status transition %s -> %s", cur, next)
	}
	return nil
}

// ClampProgress bounds a progress value to [0,100]. Every progress write goes
// through this.
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
