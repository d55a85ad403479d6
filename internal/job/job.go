// Package job provides the Job aggregate for style transfer requests.
// It includes the Job entity with its state machine, the repository port
// and the StyleService use case that drives rendering.
package job

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/maauso/artstyle-api/internal/job/id"
)

// Kind is the media family of the uploaded file.
type Kind string

const (
	// KindImage is a still image upload.
	KindImage Kind = "image"
	// KindVideo is a video upload.
	KindVideo Kind = "video"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the upload is stored and waiting to be rendered.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being rendered.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the styled result is available.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during rendering.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates rendering was interrupted, e.g. by shutdown.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents a style transfer job aggregate.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job. It also prefixes the upload
	// and names the result file.
	ID string
	// Kind is the media family of the upload.
	Kind Kind
	// Style is the style identifier as requested.
	Style string
	// AppliedStyle is the pipeline actually used.
	AppliedStyle string
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains any error message if the job failed.
	Error string
	// OriginalName is the client file name of the upload.
	OriginalName string
	// InputPath is the stored upload.
	InputPath string
	// OutputPath is the styled result.
	OutputPath string
	// ResultURL is the S3 URL when the result was published.
	ResultURL string
	// Frames is the number of frames rendered (1 for images).
	Frames int
	// FallbackFrames counts frames that were returned unstyled.
	FallbackFrames int
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	// Set timestamps based on state
	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted:
		j.CompletedAt = j.UpdatedAt
		j.Progress = 100
	case StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
// Returns ErrInvalidTransition if the job is not in IN_QUEUE state.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel transitions the job to CANCELLED state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress sets the progress percentage (0-100).
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// SetResult records the rendering outcome.
func (j *Job) SetResult(outputPath, appliedStyle string, frames, fallbackFrames int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = outputPath
	j.AppliedStyle = appliedStyle
	j.Frames = frames
	j.FallbackFrames = fallbackFrames
	j.UpdatedAt = time.Now()
}

// SetResultURL records where the result was published.
func (j *Job) SetResultURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ResultURL = url
	j.UpdatedAt = time.Now()
}

// ResultName returns the file name of the result, or "" before completion.
func (j *Job) ResultName() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.OutputPath == "" {
		return ""
	}
	return filepath.Base(j.OutputPath)
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:             j.ID,
		Kind:           j.Kind,
		Style:          j.Style,
		AppliedStyle:   j.AppliedStyle,
		Status:         j.Status,
		Progress:       j.Progress,
		Error:          j.Error,
		OriginalName:   j.OriginalName,
		InputPath:      j.InputPath,
		OutputPath:     j.OutputPath,
		ResultURL:      j.ResultURL,
		Frames:         j.Frames,
		FallbackFrames: j.FallbackFrames,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
