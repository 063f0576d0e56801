// Package repository wraps all SQL used by the API and the worker.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storyforge/storyforge-backend/internal/pipeline"
	"github.com/storyforge/storyforge-backend/internal/record"
)

const projectColumns = `
	id, owner_id, name, file_name, COALESCE(file_kind,''), file_size,
	COALESCE(file_hash,''), COALESCE(object_key,''), status, file_status,
	progress, error_message, word_count, paragraph_count, sentence_count,
	chapter_count, character_count, is_deleted, created_at, updated_at`

// ProjectRepository persists project records in Postgres.
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository constructs a repository.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

// Create inserts a fresh record in draft/uploading state.
func (r *ProjectRepository) Create(ctx context.Context, p *record.Project) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = record.StatusDraft
	}
	if p.FileStatus == "" {
		p.FileStatus = record.FilePending
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO projects (
			id, owner_id, name, file_name, file_kind, file_size, file_hash,
			object_key, status, file_status, progress, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, p.ID, p.OwnerID, p.Name, p.FileName, p.FileKind, p.FileSize, p.FileHash,
		p.ObjectKey, p.Status, p.FileStatus, record.ClampProgress(p.Progress),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Get returns an active (not soft-deleted) record by id.
func (r *ProjectRepository) Get(ctx context.Context, id string) (*record.Project, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id=$1 AND is_deleted=FALSE`, id)
	return scanProject(row)
}

// GetForOwner returns an active record scoped to its owner.
func (r *ProjectRepository) GetForOwner(ctx context.Context, id, ownerID string) (*record.Project, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id=$1 AND owner_id=$2 AND is_deleted=FALSE`, id, ownerID)
	return scanProject(row)
}

// ListActive returns every active record owned by ownerID, newest first.
func (r *ProjectRepository) ListActive(ctx context.Context, ownerID string) ([]*record.Project, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE owner_id=$1 AND is_deleted=FALSE ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*record.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkUploaded stores the object reference and moves the file status to
// uploaded once the raw object has landed in storage.
func (r *ProjectRepository) MarkUploaded(ctx context.Context, id, objectKey, hash string, size int64, kind string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects
		SET object_key=$1, file_hash=$2, file_size=$3, file_kind=$4,
			file_status=$5, updated_at=$6
		WHERE id=$7 AND is_deleted=FALSE
	`, objectKey, hash, size, kind, record.FileUploaded, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark uploaded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrRecordNotFound
	}
	return nil
}

// UpdateProcessing applies a partial status/progress update. Nil fields leave
// the column untouched; progress is clamped before the write.
func (r *ProjectRepository) UpdateProcessing(ctx context.Context, id string, upd record.ProcessingUpdate) error {
	if upd.Progress != nil {
		clamped := record.ClampProgress(*upd.Progress)
		upd.Progress = &clamped
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects
		SET status = COALESCE($1, status),
			file_status = COALESCE($2, file_status),
			progress = COALESCE($3, progress),
			error_message = CASE WHEN $4 THEN NULL ELSE COALESCE($5, error_message) END,
			updated_at = $6
		WHERE id=$7 AND is_deleted=FALSE
	`, (*string)(upd.Status), (*string)(upd.FileStatus), upd.Progress,
		upd.ClearError, upd.Error, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrRecordNotFound
	}
	return nil
}

// UpdateCounts persists the analysis results.
func (r *ProjectRepository) UpdateCounts(ctx context.Context, id string, counts record.CountsUpdate) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects
		SET word_count=$1, paragraph_count=$2, sentence_count=$3,
			chapter_count=$4, character_count=$5, updated_at=$6
		WHERE id=$7 AND is_deleted=FALSE
	`, counts.WordCount, counts.ParagraphCount, counts.SentenceCount,
		counts.ChapterCount, counts.CharacterCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update counts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrRecordNotFound
	}
	return nil
}

// SoftDelete hides the record from all active queries until restored.
func (r *ProjectRepository) SoftDelete(ctx context.Context, id, ownerID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects SET is_deleted=TRUE, updated_at=$1
		WHERE id=$2 AND owner_id=$3 AND is_deleted=FALSE
	`, time.Now().UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrRecordNotFound
	}
	return nil
}

// Restore brings a soft-deleted record back.
func (r *ProjectRepository) Restore(ctx context.Context, id, ownerID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects SET is_deleted=FALSE, updated_at=$1
		WHERE id=$2 AND owner_id=$3 AND is_deleted=TRUE
	`, time.Now().UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrRecordNotFound
	}
	return nil
}

// PermanentDelete removes the row and returns the object key so the caller can
// delete the backing stored object.
func (r *ProjectRepository) PermanentDelete(ctx context.Context, id, ownerID string) (string, error) {
	var objectKey *string
	row := r.pool.QueryRow(ctx, `
		DELETE FROM projects WHERE id=$1 AND owner_id=$2 RETURNING object_key
	`, id, ownerID)
	if err := row.Scan(&objectKey); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", pipeline.ErrRecordNotFound
		}
		return "", fmt.Errorf("permanent delete: %w", err)
	}
	if objectKey == nil {
		return "", nil
	}
	return *objectKey, nil
}

func scanProject(row pgx.Row) (*record.Project, error) {
	var p record.Project
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.FileName, &p.FileKind, &p.FileSize,
		&p.FileHash, &p.ObjectKey, &p.Status, &p.FileStatus, &p.Progress,
		&p.Error, &p.WordCount, &p.ParagraphCount, &p.SentenceCount,
		&p.ChapterCount, &p.CharacterCount, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.ErrRecordNotFound
		}
		return nil, fmt.Errorf("select project: %w", err)
	}
	return &p, nil
}
