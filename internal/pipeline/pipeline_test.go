package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge-backend/internal/logging"
	"github.com/storyforge/storyforge-backend/internal/record"
)

// fakeRecordStore applies updates in memory so tests can assert the record's
// final state after a run.
type fakeRecordStore struct {
	records     map[string]*record.Project
	countsErr   error
	updateCalls []record.ProcessingUpdate
}

func newFakeRecordStore(recs ...*record.Project) *fakeRecordStore {
	s := &fakeRecordStore{records: map[string]*record.Project{}}
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return s
}

func (s *fakeRecordStore) Get(_ context.Context, id string) (*record.Project, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *fakeRecordStore) UpdateProcessing(_ context.Context, id string, upd record.ProcessingUpdate) error {
	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	s.updateCalls = append(s.updateCalls, upd)
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.FileStatus != nil {
		rec.FileStatus = *upd.FileStatus
	}
	if upd.Progress != nil {
		rec.Progress = record.ClampProgress(*upd.Progress)
	}
	if upd.ClearError {
		rec.Error = nil
	} else if upd.Error != nil {
		msg := *upd.Error
		rec.Error = &msg
	}
	return nil
}

func (s *fakeRecordStore) UpdateCounts(_ context.Context, id string, counts record.CountsUpdate) error {
	if s.countsErr != nil {
		return s.countsErr
	}
	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.WordCount = counts.WordCount
	rec.ParagraphCount = counts.ParagraphCount
	rec.SentenceCount = counts.SentenceCount
	rec.ChapterCount = counts.ChapterCount
	rec.CharacterCount = counts.CharacterCount
	return nil
}

type fakeContentStore struct {
	objects  map[string][]byte
	fetchErr error
}

func (s *fakeContentStore) Fetch(_ context.Context, key string) ([]byte, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object missing: " + key)
	}
	return data, nil
}

func (s *fakeContentStore) Store(_ context.Context, key string, data []byte, _ string) (StoredObject, error) {
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = data
	return StoredObject{Key: key, Size: int64(len(data))}, nil
}

func (s *fakeContentStore) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

type captureNotifier struct {
	events []ProgressEvent
}

func (n *captureNotifier) Notify(_ context.Context, ev ProgressEvent) {
	n.events = append(n.events, ev)
}

func uploadedRecord(id string) *record.Project {
	return &record.Project{
		ID:         id,
		OwnerID:    "owner-1",
		Name:       "My Story",
		FileName:   "story.md",
		FileKind:   "md",
		ObjectKey:  "uploads/owner-1/story.md",
		Status:     record.StatusDraft,
		FileStatus: record.FileUploaded,
	}
}

func TestProcessSuccess(t *testing.T) {
	rec := uploadedRecord("rec-1")
	records := newFakeRecordStore(rec)
	content := &fakeContentStore{objects: map[string][]byte{
		rec.ObjectKey: []byte("# Title\n\npara one\n\npara two."),
	}}
	notifier := &captureNotifier{}
	p := New(records, content, logging.Nop(), WithNotifier(notifier))

	outcome, err := p.Process(context.Background(), "rec-1", "")
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.NotNil(t, outcome.Counts)
	assert.Equal(t, 1, outcome.Counts.ChapterCount)
	assert.Equal(t, 2, outcome.Counts.ParagraphCount)

	stored := records.records["rec-1"]
	assert.Equal(t, record.StatusCompleted, stored.Status)
	assert.Equal(t, record.FileCompleted, stored.FileStatus)
	assert.Equal(t, 100.0, stored.Progress)
	assert.Nil(t, stored.Error)
	assert.Equal(t, outcome.Counts.WordCount, stored.WordCount)

	// Checkpoints arrive in order and end at 100.
	var progress []float64
	for _, ev := range notifier.events {
		assert.Equal(t, "rec-1", ev.RecordID)
		progress = append(progress, ev.Progress)
	}
	assert.Equal(t, []float64{10, 50, 90, 100}, progress)
}

func TestProcessFetchFailureMarksFailed(t *testing.T) {
	rec := uploadedRecord("rec-2")
	records := newFakeRecordStore(rec)
	content := &fakeContentStore{fetchErr: errors.New("connection refused")}
	notifier := &captureNotifier{}
	p := New(records, content, logging.Nop(), WithNotifier(notifier))

	_, err := p.Process(context.Background(), "rec-2", "")
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	stored := records.records["rec-2"]
	assert.Equal(t, record.StatusFailed, stored.Status)
	assert.Equal(t, record.FileFailed, stored.FileStatus)
	assert.Equal(t, 0.0, stored.Progress)
	require.NotNil(t, stored.Error)
	assert.Contains(t, *stored.Error, "fetch content")

	last := notifier.events[len(notifier.events)-1]
	assert.Equal(t, record.FileFailed, last.FileStatus)
	assert.NotEmpty(t, last.Error)
}

func TestProcessPersistCountsFailureIsTransient(t *testing.T) {
	rec := uploadedRecord("rec-3")
	records := newFakeRecordStore(rec)
	records.countsErr = errors.New("deadlock detected")
	content := &fakeContentStore{objects: map[string][]byte{
		rec.ObjectKey: []byte("short text."),
	}}
	p := New(records, content, logging.Nop())

	_, err := p.Process(context.Background(), "rec-3", "")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, record.StatusFailed, records.records["rec-3"].Status)
}

func TestProcessUndecodableContentIsPermanent(t *testing.T) {
	rec := uploadedRecord("rec-4")
	records := newFakeRecordStore(rec)
	content := &fakeContentStore{objects: map[string][]byte{
		rec.ObjectKey: {0x41, 0xFF, 0xFF, 0xFE, 0x42},
	}}
	p := New(records, content, logging.Nop())

	_, err := p.Process(context.Background(), "rec-4", "")
	require.Error(t, err)
	// The stored bytes never change, so retrying cannot help.
	assert.False(t, IsTransient(err))
	require.NotNil(t, records.records["rec-4"].Error)
	assert.Contains(t, *records.records["rec-4"].Error, "extract text")
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestProcessDocxDocument(t *testing.T) {
	rec := uploadedRecord("rec-8")
	rec.FileKind = "docx"
	records := newFakeRecordStore(rec)
	content := &fakeContentStore{objects: map[string][]byte{
		rec.ObjectKey: buildZip(t, map[string]string{
			"[Content_Types].xml": "<Types/>",
			"word/document.xml": `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
				`<w:body><w:p><w:r><w:t>One two three.</w:t></w:r></w:p>` +
				`<w:p><w:r><w:t>Four five.</w:t></w:r></w:p></w:body></w:document>`,
		}),
	}}
	p := New(records, content, logging.Nop())

	outcome, err := p.Process(context.Background(), "rec-8", "")
	require.NoError(t, err)
	require.NotNil(t, outcome.Counts)
	assert.Equal(t, 5, outcome.Counts.WordCount)
	assert.Equal(t, 2, outcome.Counts.ParagraphCount)
	assert.Equal(t, 2, outcome.Counts.SentenceCount)

	stored := records.records["rec-8"]
	assert.Equal(t, record.StatusCompleted, stored.Status)
	assert.Equal(t, record.FileCompleted, stored.FileStatus)
	assert.Equal(t, 100.0, stored.Progress)
}

func TestProcessEpubDocument(t *testing.T) {
	rec := uploadedRecord("rec-9")
	rec.FileKind = "epub"
	records := newFakeRecordStore(rec)
	content := &fakeContentStore{objects: map[string][]byte{
		rec.ObjectKey: buildZip(t, map[string]string{
			"mimetype":               "application/epub+zip",
			"META-INF/container.xml": "<container/>",
			"OEBPS/ch1.xhtml":        `<html><body><p>It was a dark night.</p><p>Nothing stirred.</p></body></html>`,
		}),
	}}
	p := New(records, content, logging.Nop())

	outcome, err := p.Process(context.Background(), "rec-9", "")
	require.NoError(t, err)
	require.NotNil(t, outcome.Counts)
	assert.Equal(t, 2, outcome.Counts.ParagraphCount)
	assert.Equal(t, record.FileCompleted, records.records["rec-9"].FileStatus)
}

func TestProcessReprocessCompletedRecord(t *testing.T) {
	rec := uploadedRecord("rec-5")
	rec.Status = record.StatusCompleted
	rec.FileStatus = record.FileCompleted
	records := newFakeRecordStore(rec)
	content := &fakeContentStore{objects: map[string][]byte{
		rec.ObjectKey: []byte("one two three."),
	}}
	p := New(records, content, logging.Nop())

	first, err := p.Process(context.Background(), "rec-5", "")
	require.NoError(t, err)
	second, err := p.Process(context.Background(), "rec-5", "")
	require.NoError(t, err)
	assert.Equal(t, first.Counts, second.Counts)
	assert.Equal(t, record.StatusCompleted, records.records["rec-5"].Status)
}

func TestProcessRejectsIllegalTransition(t *testing.T) {
	rec := uploadedRecord("rec-6")
	rec.FileStatus = record.FilePending
	records := newFakeRecordStore(rec)
	p := New(records, &fakeContentStore{}, logging.Nop())

	_, err := p.Process(context.Background(), "rec-6", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illegal file status transition")
	assert.False(t, IsTransient(err))

	// The record is untouched: no checkpoint and no failure write.
	assert.Empty(t, records.updateCalls)
	assert.Equal(t, record.FilePending, records.records["rec-6"].FileStatus)
}

func TestProcessRecordNotFound(t *testing.T) {
	p := New(newFakeRecordStore(), &fakeContentStore{}, logging.Nop())

	_, err := p.Process(context.Background(), "missing", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestProcessReadsLocalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.txt")
	require.NoError(t, os.WriteFile(path, []byte("local words here."), 0o600))

	rec := uploadedRecord("rec-7")
	rec.ObjectKey = ""
	rec.FileKind = "txt"
	records := newFakeRecordStore(rec)
	p := New(records, &fakeContentStore{}, logging.Nop())

	outcome, err := p.Process(context.Background(), "rec-7", path)
	require.NoError(t, err)
	require.NotNil(t, outcome.Counts)
	assert.Equal(t, 3, outcome.Counts.WordCount)
}
