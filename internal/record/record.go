package record

import "time"

// Project is the persisted record tracking one uploaded document through the
// processing pipeline.
type Project struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	Name       string     `json:"name"`
	FileName   string     `json:"fileName"`
	FileKind   string     `json:"fileKind,omitempty"`
	FileSize   int64      `json:"fileSize"`
	FileHash   string     `json:"fileHash,omitempty"`
	ObjectKey  string     `json:"-"`
	Status     Status     `json:"status"`
	FileStatus FileStatus `json:"fileStatus"`
	Progress   float64    `json:"progress"`
	Error      *string    `json:"error,omitempty"`

	WordCount      int `json:"wordCount"`
	ParagraphCount int `json:"paragraphCount"`
	SentenceCount  int `json:"sentenceCount"`
	ChapterCount   int `json:"chapterCount"`
	CharacterCount int `json:"characterCount"`

	IsDeleted bool      `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CanReprocess reports whether the record is in a state where analysis may be
// re-run: the file must already be in storage and no run may be in flight.
func (p *Project) CanReprocess() bool {
	if p.IsDeleted {
		return false
	}
	switch p.Status {
	case StatusDraft, StatusFailed, StatusCompleted:
	default:
		return false
	}
	switch p.FileStatus {
	case FileUploaded, FileFailed, FileCompleted:
		return true
	}
	return false
}

// ProcessingUpdate carries a partial record update. Nil fields are left
// untouched; ClearError wipes a previous failure message.
type ProcessingUpdate struct {
	Status     *Status
	FileStatus *FileStatus
	Progress   *float64
	Error      *string
	ClearError bool
}

// CountsUpdate carries the analysis results persisted at the 90% checkpoint.
type CountsUpdate struct {
	WordCount      int
	ParagraphCount int
	SentenceCount  int
	ChapterCount   int
	CharacterCount int
}
