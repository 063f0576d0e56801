package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/storyforge/storyforge-backend/internal/analysis"
	"github.com/storyforge/storyforge-backend/internal/extract"
	"github.com/storyforge/storyforge-backend/internal/filetype"
	"github.com/storyforge/storyforge-backend/internal/logging"
	"github.com/storyforge/storyforge-backend/internal/metrics"
	"github.com/storyforge/storyforge-backend/internal/record"
)

// Progress checkpoints written while a record moves through the pipeline.
const (
	progressStarted   = 10
	progressAnalyzed  = 50
	progressPersisted = 90
	progressDone      = 100
)

// Outcome summarizes one Process invocation for the caller.
type Outcome struct {
	Success  bool            `json:"success"`
	RecordID string          `json:"record_id"`
	Counts   *analysis.Stats `json:"counts,omitempty"`
	Err      string          `json:"error,omitempty"`
}

// Pipeline sequences processing for a single record. Instances are safe for
// concurrent use across independent records; record-level exclusivity is
// enforced by the queue (one outstanding task per record id).
type Pipeline struct {
	records  RecordStore
	content  ContentStore
	notifier ProgressNotifier
	log      *logging.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithNotifier attaches a best-effort progress notifier.
func WithNotifier(n ProgressNotifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// New builds a Pipeline over the injected ports.
func New(records RecordStore, content ContentStore, log *logging.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{records: records, content: content, log: log.WithComponent("pipeline")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process drives one record through fetch → analyze → persist → finalize.
// localPath, when set, is read directly instead of fetching from the content
// store. Any failure marks the record failed, records the message and resets
// progress to 0, then returns the error so the caller can decide on retries.
func (p *Pipeline) Process(ctx context.Context, recordID, localPath string) (Outcome, error) {
	start := time.Now()
	log := p.log.WithRecordID(recordID)

	rec, err := p.records.Get(ctx, recordID)
	if err != nil {
		return Outcome{RecordID: recordID, Err: err.Error()}, fmt.Errorf("load record %s: %w", recordID, err)
	}
	if err := record.CheckTransitionFile(rec.FileStatus, record.FileProcessing); err != nil {
		return Outcome{RecordID: recordID, Err: err.Error()}, err
	}

	outcome, err := p.run(ctx, rec, localPath, log)
	if err != nil {
		p.fail(ctx, recordID, err, log)
		metrics.ProcessingTotal.WithLabelValues("failed").Inc()
		metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
		return Outcome{RecordID: recordID, Err: err.Error()}, err
	}
	metrics.ProcessingTotal.WithLabelValues("completed").Inc()
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	log.Info().
		Int("words", outcome.Counts.WordCount).
		Int("paragraphs", outcome.Counts.ParagraphCount).
		Dur("elapsed", time.Since(start)).
		Msg("processing completed")
	return outcome, nil
}

func (p *Pipeline) run(ctx context.Context, rec *record.Project, localPath string, log *logging.Logger) (Outcome, error) {
	processing := record.StatusProcessing
	fileProcessing := record.FileProcessing
	if err := p.checkpoint(ctx, rec.ID, record.ProcessingUpdate{
		Status:     &processing,
		FileStatus: &fileProcessing,
		Progress:   progressPtr(progressStarted),
	}); err != nil {
		return Outcome{}, err
	}

	text, err := p.obtainText(ctx, rec, localPath)
	if err != nil {
		return Outcome{}, err
	}

	stats := analysis.Analyze(text, filetype.Kind(rec.FileKind))
	if err := p.checkpoint(ctx, rec.ID, record.ProcessingUpdate{Progress: progressPtr(progressAnalyzed)}); err != nil {
		return Outcome{}, err
	}

	if err := p.records.UpdateCounts(ctx, rec.ID, record.CountsUpdate{
		WordCount:      stats.WordCount,
		ParagraphCount: stats.ParagraphCount,
		SentenceCount:  stats.SentenceCount,
		ChapterCount:   stats.ChapterCount,
		CharacterCount: stats.CharacterCount,
	}); err != nil {
		return Outcome{}, transient("persist counts", err)
	}
	if err := p.checkpoint(ctx, rec.ID, record.ProcessingUpdate{Progress: progressPtr(progressPersisted)}); err != nil {
		return Outcome{}, err
	}

	completed := record.StatusCompleted
	fileCompleted := record.FileCompleted
	if err := p.checkpoint(ctx, rec.ID, record.ProcessingUpdate{
		Status:     &completed,
		FileStatus: &fileCompleted,
		Progress:   progressPtr(progressDone),
		ClearError: true,
	}); err != nil {
		return Outcome{}, err
	}

	return Outcome{Success: true, RecordID: rec.ID, Counts: &stats}, nil
}

// obtainText reads the document from disk or the content store and extracts
// its plain text per kind. Extraction failures are permanent: the stored bytes
// do not change between attempts.
func (p *Pipeline) obtainText(ctx context.Context, rec *record.Project, localPath string) (string, error) {
	var (
		data []byte
		err  error
	)
	if localPath != "" {
		data, err = os.ReadFile(localPath)
		if err != nil {
			return "", transient("read local file", err)
		}
	} else {
		if rec.ObjectKey == "" {
			return "", fmt.Errorf("record %s has no stored object", rec.ID)
		}
		data, err = p.content.Fetch(ctx, rec.ObjectKey)
		if err != nil {
			return "", transient("fetch content", err)
		}
	}
	text, err := extract.Text(data, filetype.Kind(rec.FileKind))
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

// checkpoint persists a partial update and publishes it to the notifier.
func (p *Pipeline) checkpoint(ctx context.Context, recordID string, upd record.ProcessingUpdate) error {
	if upd.Progress != nil {
		clamped := record.ClampProgress(*upd.Progress)
		upd.Progress = &clamped
	}
	if err := p.records.UpdateProcessing(ctx, recordID, upd); err != nil {
		return transient("update record", err)
	}
	p.notify(ctx, recordID, upd)
	return nil
}

// fail marks both status dimensions failed, records the message and resets
// progress to 0. A failed write here is logged, never propagated: the original
// processing error is what the caller needs to see.
func (p *Pipeline) fail(ctx context.Context, recordID string, cause error, log *logging.Logger) {
	log.Error().Err(cause).Msg("processing failed")
	failed := record.StatusFailed
	fileFailed := record.FileFailed
	msg := cause.Error()
	upd := record.ProcessingUpdate{
		Status:     &failed,
		FileStatus: &fileFailed,
		Progress:   progressPtr(0),
		Error:      &msg,
	}
	if err := p.records.UpdateProcessing(ctx, recordID, upd); err != nil {
		log.Error().Err(err).Msg("mark failed did not persist")
		return
	}
	p.notify(ctx, recordID, upd)
}

func (p *Pipeline) notify(ctx context.Context, recordID string, upd record.ProcessingUpdate) {
	if p.notifier == nil {
		return
	}
	ev := ProgressEvent{RecordID: recordID}
	if upd.FileStatus != nil {
		ev.FileStatus = *upd.FileStatus
	}
	if upd.Progress != nil {
		ev.Progress = *upd.Progress
	}
	if upd.Error != nil {
		ev.Error = *upd.Error
	}
	p.notifier.Notify(ctx, ev)
}

func progressPtr(v float64) *float64 {
	return &v
}
