package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/artstyle-api/internal/job"
	"github.com/maauso/artstyle-api/internal/job/id"
	"github.com/maauso/artstyle-api/internal/render"
	"github.com/maauso/artstyle-api/internal/storage"
	"github.com/maauso/artstyle-api/internal/style"
)

// defaultMaxUploadBytes bounds multipart bodies when no limit is configured.
const defaultMaxUploadBytes = 100 << 20

// Sweeper removes expired files. *storage.Sweeper implements it.
type Sweeper interface {
	Sweep(ctx context.Context, rules ...storage.SweepRule) (int, error)
}

// StyleReporter exposes the startup self-check. *style.Dispatcher implements it.
type StyleReporter interface {
	Report() style.InitReport
}

// CleanupPolicy is the retention applied by POST /cleanup.
type CleanupPolicy struct {
	// Rules are the directories and ages swept.
	Rules []storage.SweepRule
	// JobMaxAge is the age after which finished jobs are forgotten.
	JobMaxAge time.Duration
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.StyleService
	styles             StyleReporter
	sweeper            Sweeper
	cleanup            CleanupPolicy
	resultDir          string
	maxUploadBytes     int64
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob renders the upload before responding with 200
// and the final status, or 500 with the failure message.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithStyleReporter sets the source of style readiness for /styles and /health.
func WithStyleReporter(r StyleReporter) HandlerOption {
	return func(h *Handlers) {
		h.styles = r
	}
}

// WithSweeper enables POST /cleanup with the given policy.
func WithSweeper(s Sweeper, policy CleanupPolicy) HandlerOption {
	return func(h *Handlers) {
		h.sweeper = s
		h.cleanup = policy
	}
}

// WithResultDir sets the directory GET /download serves from.
func WithResultDir(dir string) HandlerOption {
	return func(h *Handlers) {
		h.resultDir = dir
	}
}

// WithMaxUploadBytes limits the size of POST /jobs bodies.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.StyleService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          newValidator(),
		logger:             logger,
		maxUploadBytes:     defaultMaxUploadBytes,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// newValidator registers the "media" and "artstyle" tags used by CreateJobForm.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("media", func(fl validator.FieldLevel) bool {
		_, err := render.KindOf(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("artstyle", func(fl validator.FieldLevel) bool {
		_, ok := style.Parse(fl.Field().String())
		return ok
	})
	return v
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if h.styles != nil && !h.styles.Report().OK() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: status})
}

// Styles handles GET /styles requests.
func (h *Handlers) Styles(w http.ResponseWriter, r *http.Request) {
	var degraded map[style.Style]error
	if h.styles != nil {
		degraded = h.styles.Report().Degraded
	}

	resp := StylesResponse{Default: string(style.Default)}
	for _, s := range style.All() {
		info := StyleInfo{Name: string(s), Title: s.Title(), Ready: true}
		if err, ok := degraded[s]; ok {
			info.Ready = false
			info.Error = err.Error()
		}
		resp.Styles = append(resp.Styles, info)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateJob handles multipart POST /jobs requests with a "file" part and
// an optional "style" field.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit", "FILE_TOO_LARGE")
		case errors.Is(err, http.ErrMissingFile):
			writeError(w, http.StatusBadRequest, "no file provided", "MISSING_FILE")
		default:
			h.logger.Warn("failed to parse multipart form",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_FORM")
		}
		return
	}
	defer func() { _ = file.Close() }()

	form := CreateJobForm{
		Filename: filepath.Base(header.Filename),
		Style:    strings.ToLower(strings.TrimSpace(r.FormValue("style"))),
		Size:     header.Size,
	}
	if form.Style == "" {
		form.Style = string(style.Default)
	}

	// Validate request
	if err := h.validator.Struct(form); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("filename", form.Filename),
			slog.String("style", form.Style),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, validationMessage(err), "VALIDATION_ERROR")
		return
	}

	// Create job first (synchronously)
	createdJob, err := h.service.CreateJob(r.Context(), job.CreateInput{
		Filename: form.Filename,
		Style:    form.Style,
		Data:     file,
	})
	if err != nil {
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	status, code := createdJob.GetStatus(), http.StatusAccepted
	if h.enableAsyncProcess {
		// Detached so the render outlives the request
		go func(ctx context.Context, jobID string) {
			if _, err := h.service.ProcessExistingJob(ctx, jobID); err != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	} else {
		done, err := h.service.ProcessExistingJob(r.Context(), createdJob.ID)
		if done == nil {
			h.logger.Error("processing failed",
				slog.String("job_id", createdJob.ID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to process job", "JOB_PROCESSING_FAILED")
			return
		}
		if done.IsTerminal() && done.GetStatus() != job.StatusCompleted {
			writeError(w, http.StatusInternalServerError, "processing failed: "+done.Error, "JOB_PROCESSING_FAILED")
			return
		}
		status, code = done.GetStatus(), http.StatusOK
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("kind", string(createdJob.Kind)),
		slog.String("style", form.Style),
		slog.Int64("size", form.Size),
	)

	writeJSON(w, code, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(status),
		Kind:   string(createdJob.Kind),
		Style:  form.Style,
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}
	if !id.Valid(jobID) {
		writeError(w, http.StatusBadRequest, "job ID is not a valid UUID", "INVALID_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(foundJob))
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:             j.ID,
		Kind:           string(j.Kind),
		Status:         string(j.Status),
		Progress:       j.Progress,
		Style:          j.Style,
		AppliedStyle:   j.AppliedStyle,
		Filename:       j.OriginalName,
		Frames:         j.Frames,
		FallbackFrames: j.FallbackFrames,
		ResultURL:      j.ResultURL,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	if j.Status == job.StatusCompleted {
		if name := j.ResultName(); name != "" {
			resp.DownloadURL = "/download/" + name
		}
	}
	return resp
}

// Download handles GET /download/{filename} requests.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(r.PathValue("filename"))
	if name == "" || name == "." || name == "/" || h.resultDir == "" {
		writeError(w, http.StatusNotFound, "file not found", "FILE_NOT_FOUND")
		return
	}

	path := filepath.Join(h.resultDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "file not found", "FILE_NOT_FOUND")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

// Cleanup handles POST /cleanup requests by sweeping expired files now.
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "cleanup is not configured", "CLEANUP_DISABLED")
		return
	}

	removed, err := h.sweeper.Sweep(r.Context(), h.cleanup.Rules...)
	if err != nil {
		h.logger.Error("manual cleanup failed",
			slog.Int("removed", removed),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "cleanup failed", "CLEANUP_FAILED")
		return
	}

	var pruned int
	if h.cleanup.JobMaxAge > 0 {
		if pruned, err = h.service.PruneJobs(r.Context(), h.cleanup.JobMaxAge); err != nil {
			writeError(w, http.StatusInternalServerError, "cleanup failed", "CLEANUP_FAILED")
			return
		}
	}

	h.logger.Info("manual cleanup completed",
		slog.Int("files_removed", removed),
		slog.Int("jobs_pruned", pruned),
	)
	writeJSON(w, http.StatusOK, CleanupResponse{FilesRemoved: removed, JobsPruned: pruned})
}

// validationMessage turns validator errors into a client-facing message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	switch fe := verrs[0]; fe.Tag() {
	case "media":
		return "unsupported file type, expected one of: " +
			strings.Join(append(render.ImageExtensions(), render.VideoExtensions()...), ", ")
	case "artstyle":
		names := make([]string, 0, len(style.All()))
		for _, s := range style.All() {
			names = append(names, string(s))
		}
		return "unknown style " + `"` + fe.Value().(string) + `"` + ", expected one of: " + strings.Join(names, ", ")
	case "gt":
		return "file is empty"
	default:
		return fe.Error()
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
