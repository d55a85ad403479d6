package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/artstyle-api/internal/metrics"
	"github.com/maauso/artstyle-api/internal/render"
)

// Static errors for the style service.
var (
	// ErrMissingFile is returned when an upload has no file name.
	ErrMissingFile = errors.New("no file provided")
	// ErrNotRunnable is returned when a job cannot be started from its current state.
	ErrNotRunnable = errors.New("job is not waiting to be processed")
)

// Renderer produces a styled file from an upload. *render.Runner implements it.
type Renderer interface {
	Process(ctx context.Context, req render.Request) (*render.Output, error)
}

// FileStore is the part of storage.Storage the service needs.
type FileStore interface {
	SaveUpload(ctx context.Context, name string, data io.Reader) (string, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	CleanupTemp(ctx context.Context, paths []string) error
	UploadToS3(ctx context.Context, key string, data io.Reader) (string, error)
}

// CreateInput describes an upload.
type CreateInput struct {
	// Filename is the client file name; its extension selects the media kind.
	Filename string
	// Style is the requested style identifier.
	Style string
	// Data is the file content.
	Data io.Reader
}

// StyleService orchestrates the style transfer workflow: store the upload,
// render it, optionally publish the result to S3 and drop the upload.
type StyleService struct {
	repo      Repository
	renderer  Renderer
	store     FileStore
	logger    *slog.Logger
	publishS3 bool
	keepInput bool
}

// ServiceOption configures a StyleService.
type ServiceOption func(*StyleService)

// WithPublishToS3 uploads every result to S3 after rendering.
func WithPublishToS3(enabled bool) ServiceOption {
	return func(s *StyleService) {
		s.publishS3 = enabled
	}
}

// WithKeepUploads keeps uploads after processing instead of deleting them.
func WithKeepUploads(keep bool) ServiceOption {
	return func(s *StyleService) {
		s.keepInput = keep
	}
}

// NewStyleService creates a new StyleService.
func NewStyleService(repo Repository, renderer Renderer, store FileStore, logger *slog.Logger, opts ...ServiceOption) *StyleService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &StyleService{
		repo:     repo,
		renderer: renderer,
		store:    store,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob stores the upload as {id}_{filename} and persists a new job in
// IN_QUEUE status.
func (s *StyleService) CreateJob(ctx context.Context, input CreateInput) (*Job, error) {
	name := filepath.Base(strings.TrimSpace(input.Filename))
	if name == "" || name == "." || name == "/" {
		return nil, ErrMissingFile
	}
	kind, err := render.KindOf(name)
	if err != nil {
		return nil, err
	}

	job := New()
	job.Kind = Kind(kind)
	job.Style = input.Style
	job.OriginalName = name

	path, err := s.store.SaveUpload(ctx, job.ID+"_"+name, input.Data)
	if err != nil {
		s.logger.Error("failed to save upload",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("save upload: %w", err)
	}
	job.InputPath = path

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.String("style", job.Style),
		slog.String("filename", name),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		_ = s.store.CleanupTemp(ctx, []string{path})
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *StyleService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ProcessExistingJob renders a job created by CreateJob and returns its
// final state. Rendering errors are recorded on the job and also returned.
func (s *StyleService) ProcessExistingJob(ctx context.Context, jobID string) (*Job, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRunnable, job.ID, job.GetStatus())
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()
	start := time.Now()

	log := s.logger.With(slog.String("job_id", job.ID))
	log.Info("job started", slog.String("kind", string(job.Kind)), slog.String("style", job.Style))

	defer func() {
		if s.keepInput {
			return
		}
		if err := s.store.CleanupTemp(context.WithoutCancel(ctx), []string{job.InputPath}); err != nil {
			log.Warn("failed to remove upload", slog.String("error", err.Error()))
		}
	}()

	out, err := s.renderer.Process(ctx, render.Request{
		ID:        job.ID,
		InputPath: job.InputPath,
		Style:     job.Style,
		Progress:  s.progressRecorder(ctx, job),
	})
	if err != nil {
		return s.finishWithError(ctx, job, err)
	}

	job.SetResult(out.Path, string(out.Style), out.Frames, out.FallbackFrames)
	if s.publishS3 {
		if url, err := s.publish(ctx, out.Path); err != nil {
			log.Warn("failed to publish result to S3, keeping local copy",
				slog.String("error", err.Error()),
			)
		} else {
			job.SetResultURL(url)
		}
	}

	if err := job.Complete(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(context.WithoutCancel(ctx), job); err != nil {
		return nil, err
	}

	metrics.JobsProcessedTotal.WithLabelValues(string(job.Kind), "completed").Inc()
	log.Info("job completed",
		slog.String("applied_style", string(out.Style)),
		slog.Int("frames", out.Frames),
		slog.Int("fallback_frames", out.FallbackFrames),
		slog.Duration("elapsed", time.Since(start)),
	)
	return job.Clone(), nil
}

// PruneJobs forgets finished jobs older than maxAge, whose results the
// retention sweeper has removed.
func (s *StyleService) PruneJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	n, err := s.repo.Prune(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned finished jobs", slog.Int("removed", n), slog.Duration("max_age", maxAge))
	}
	return n, nil
}

// Process creates a job and renders it synchronously.
func (s *StyleService) Process(ctx context.Context, input CreateInput) (*Job, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.ProcessExistingJob(ctx, job.ID)
}

func (s *StyleService) finishWithError(ctx context.Context, job *Job, cause error) (*Job, error) {
	status := "failed"
	if errors.Is(cause, context.Canceled) {
		status = "cancelled"
		_ = job.Cancel()
	} else {
		_ = job.Fail(cause.Error())
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(job.Kind), status).Inc()

	s.logger.Error("job failed",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.GetStatus())),
		slog.String("error", cause.Error()),
	)
	if err := s.repo.Save(context.WithoutCancel(ctx), job); err != nil {
		return nil, errors.Join(cause, err)
	}
	return job.Clone(), cause
}

// progressRecorder persists video progress as a percentage of the declared
// frame count. Sources that declare no count report nothing until done.
func (s *StyleService) progressRecorder(ctx context.Context, job *Job) render.ProgressFunc {
	last := -1
	return func(done, total int) {
		if total <= 0 {
			return
		}
		// Completion is reported by Complete, after encoding.
		pct := min(done*100/total, 99)
		if pct == last {
			return
		}
		last = pct
		job.UpdateProgress(pct)
		if err := s.repo.Save(ctx, job); err != nil {
			s.logger.Warn("failed to save progress",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *StyleService) publish(ctx context.Context, path string) (string, error) {
	f, err := s.store.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	return s.store.UploadToS3(ctx, "results/"+filepath.Base(path), f)
}
