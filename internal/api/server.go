// Package api exposes the HTTP surface: uploads, project visibility, delete/
// restore, reprocessing, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storyforge/storyforge-backend/internal/config"
	"github.com/storyforge/storyforge-backend/internal/filetype"
	"github.com/storyforge/storyforge-backend/internal/logging"
	"github.com/storyforge/storyforge-backend/internal/metrics"
	"github.com/storyforge/storyforge-backend/internal/pipeline"
	"github.com/storyforge/storyforge-backend/internal/queue"
	"github.com/storyforge/storyforge-backend/internal/record"
	"github.com/storyforge/storyforge-backend/internal/validation"
)

// ownerHeader carries the tenant identity; authentication itself is handled
// upstream of this service.
const ownerHeader = "X-Owner-ID"

// ProjectStore is the record persistence surface the API needs.
type ProjectStore interface {
	Create(ctx context.Context, p *record.Project) error
	GetForOwner(ctx context.Context, id, ownerID string) (*record.Project, error)
	ListActive(ctx context.Context, ownerID string) ([]*record.Project, error)
	MarkUploaded(ctx context.Context, id, objectKey, hash string, size int64, kind string) error
	UpdateProcessing(ctx context.Context, id string, upd record.ProcessingUpdate) error
	SoftDelete(ctx context.Context, id, ownerID string) error
	Restore(ctx context.Context, id, ownerID string) error
	PermanentDelete(ctx context.Context, id, ownerID string) (string, error)
}

// Enqueuer schedules processing jobs.
type Enqueuer interface {
	EnqueueProcess(ctx context.Context, payload queue.ProcessPayload) error
}

// Server wires the HTTP routes to the stores and the queue.
type Server struct {
	cfg       *config.Config
	store     ProjectStore
	content   pipeline.ContentStore
	enqueuer  Enqueuer
	validator *validation.Validator
	log       *logging.Logger
	server    *http.Server
}

// New constructs a Server.
func New(cfg *config.Config, store ProjectStore, content pipeline.ContentStore, enqueuer Enqueuer, log *logging.Logger) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		content:   content,
		enqueuer:  enqueuer,
		validator: validation.New(),
		log:       log.WithComponent("api"),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/projects", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Post("/restore", s.handleRestore)
			r.Post("/reprocess", s.handleReprocess)
		})
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("address", s.cfg.Server.Address).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload validates the multipart document, stores it, creates the record
// and enqueues processing.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		s.respondError(w, http.StatusBadRequest, "missing "+ownerHeader+" header")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "expecting multipart form with a file field")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("read upload: %v", err))
		return
	}

	var expected filetype.Kind
	if raw := r.FormValue("expected_type"); raw != "" {
		kind, ok := filetype.ParseKind(raw)
		if !ok {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown expected_type %q", raw))
			return
		}
		expected = kind
	}

	result := s.validator.Validate(content, header.Filename, expected)
	if !result.Valid {
		metrics.ValidationTotal.WithLabelValues("rejected").Inc()
		s.respondJSON(w, http.StatusBadRequest, result)
		return
	}
	metrics.ValidationTotal.WithLabelValues("accepted").Inc()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	proj := &record.Project{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		Name:       name,
		FileName:   header.Filename,
		FileKind:   string(result.Kind),
		FileSize:   result.Metadata.Size,
		Status:     record.StatusDraft,
		FileStatus: record.FileUploading,
	}
	if err := s.store.Create(ctx, proj); err != nil {
		s.log.Error().Err(err).Msg("create project")
		s.respondError(w, http.StatusInternalServerError, "failed to store metadata")
		return
	}

	objectKey := fmt.Sprintf("uploads/%s/%s", proj.ID, filepath.Base(header.Filename))
	stored, err := s.content.Store(ctx, objectKey, content, result.Metadata.DetectedMIME)
	if err != nil {
		s.log.Error().Err(err).Msg("store object")
		s.markUploadFailed(ctx, proj.ID, err)
		s.respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}
	if err := s.store.MarkUploaded(ctx, proj.ID, stored.Key, stored.SHA256, stored.Size, string(result.Kind)); err != nil {
		s.log.Error().Err(err).Msg("mark uploaded")
		s.respondError(w, http.StatusInternalServerError, "failed to update record")
		return
	}
	proj, err = s.store.GetForOwner(ctx, proj.ID, owner)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	payload := queue.ProcessPayload{RecordID: proj.ID, ObjectKey: stored.Key}
	if err := s.enqueuer.EnqueueProcess(ctx, payload); err != nil {
		s.log.Error().Err(err).Msg("enqueue process")
		s.respondError(w, http.StatusInternalServerError, "failed to queue processing")
		return
	}

	// The response reflects the record as persisted, not what this handler
	// intended to write.
	s.respondJSON(w, http.StatusAccepted, map[string]any{
		"id":         proj.ID,
		"status":     proj.Status,
		"fileStatus": proj.FileStatus,
		"kind":       proj.FileKind,
		"warnings":   result.Warnings,
		"sha256":     proj.FileHash,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		s.respondError(w, http.StatusBadRequest, "missing "+ownerHeader+" header")
		return
	}
	projects, err := s.store.ListActive(r.Context(), owner)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	if projects == nil {
		projects = []*record.Project{}
	}
	s.respondJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, proj)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(ownerHeader)
	id := chi.URLParam(r, "id")
	if owner == "" {
		s.respondError(w, http.StatusBadRequest, "missing "+ownerHeader+" header")
		return
	}

	if r.URL.Query().Get("permanent") == "true" {
		objectKey, err := s.store.PermanentDelete(r.Context(), id, owner)
		if err != nil {
			s.respondStoreError(w, err)
			return
		}
		if objectKey != "" {
			if err := s.content.Delete(r.Context(), objectKey); err != nil {
				s.log.Warn().Err(err).Str("object_key", objectKey).Msg("delete stored object")
			}
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.store.SoftDelete(r.Context(), id, owner); err != nil {
		s.respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(ownerHeader)
	id := chi.URLParam(r, "id")
	if owner == "" {
		s.respondError(w, http.StatusBadRequest, "missing "+ownerHeader+" header")
		return
	}
	if err := s.store.Restore(r.Context(), id, owner); err != nil {
		s.respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReprocess re-enqueues analysis for a record whose file is already in
// storage. Re-running on a completed record recomputes and overwrites counts.
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	proj, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if !proj.CanReprocess() {
		s.respondError(w, http.StatusConflict,
			fmt.Sprintf("project in %s/%s cannot be reprocessed", proj.Status, proj.FileStatus))
		return
	}
	payload := queue.ProcessPayload{RecordID: proj.ID, ObjectKey: proj.ObjectKey}
	if err := s.enqueuer.EnqueueProcess(r.Context(), payload); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to queue processing")
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"id": proj.ID, "status": "queued"})
}

func (s *Server) loadProject(w http.ResponseWriter, r *http.Request) (*record.Project, bool) {
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		s.respondError(w, http.StatusBadRequest, "missing "+ownerHeader+" header")
		return nil, false
	}
	proj, err := s.store.GetForOwner(r.Context(), chi.URLParam(r, "id"), owner)
	if err != nil {
		s.respondStoreError(w, err)
		return nil, false
	}
	return proj, true
}

func (s *Server) markUploadFailed(ctx context.Context, id string, cause error) {
	failed := record.FileFailed
	msg := cause.Error()
	upd := record.ProcessingUpdate{FileStatus: &failed, Error: &msg}
	if err := s.store.UpdateProcessing(ctx, id, upd); err != nil {
		s.log.Error().Err(err).Str("record_id", id).Msg("mark upload failed")
	}
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrRecordNotFound) {
		s.respondError(w, http.StatusNotFound, "project not found")
		return
	}
	s.respondError(w, http.StatusInternalServerError, "storage error")
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
