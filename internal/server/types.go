// Package server provides the HTTP server for the artstyle API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// CreateJobForm is the validated form of a multipart POST /jobs request.
type CreateJobForm struct {
	// Filename is the client file name of the "file" part.
	Filename string `validate:"required,max=255,media"`
	// Style is the requested style identifier. Defaults to cartoon.
	Style string `validate:"required,artstyle"`
	// Size is the file size in bytes.
	Size int64 `validate:"gt=0"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the job status when the response was written.
	Status string `json:"status"`
	// Kind is "image" or "video".
	Kind string `json:"kind"`
	// Style is the normalized requested style.
	Style string `json:"style"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Kind is "image" or "video".
	Kind string `json:"kind"`
	// Status is the current job status.
	Status string `json:"status"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Style is the requested style.
	Style string `json:"style"`
	// AppliedStyle is the style that was actually run, once completed.
	AppliedStyle string `json:"applied_style,omitempty"`
	// Filename is the original upload name.
	Filename string `json:"filename"`
	// Frames is the number of frames written (1 for images).
	Frames int `json:"frames,omitempty"`
	// FallbackFrames counts frames kept unstyled after a pipeline failure.
	FallbackFrames int `json:"fallback_frames,omitempty"`
	// DownloadURL is the relative download link of the result.
	DownloadURL string `json:"download_url,omitempty"`
	// ResultURL is the S3 URL of the result, when published.
	ResultURL string `json:"result_url,omitempty"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the job was accepted.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the job reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StyleInfo describes one style in the GET /styles response.
type StyleInfo struct {
	// Name is the identifier accepted by POST /jobs.
	Name string `json:"name"`
	// Title is the display name.
	Title string `json:"title"`
	// Ready is false when the style failed its startup self-check.
	Ready bool `json:"ready"`
	// Error is the self-check failure of a degraded style.
	Error string `json:"error,omitempty"`
}

// StylesResponse is the HTTP response for GET /styles.
type StylesResponse struct {
	// Styles lists every supported style.
	Styles []StyleInfo `json:"styles"`
	// Default is the style used when none is given.
	Default string `json:"default"`
}

// CleanupResponse is the HTTP response for POST /cleanup.
type CleanupResponse struct {
	// FilesRemoved is the number of expired uploads and results deleted.
	FilesRemoved int `json:"files_removed"`
	// JobsPruned is the number of finished jobs forgotten.
	JobsPruned int `json:"jobs_pruned"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is "ok", or "degraded" when a style failed its self-check.
	Status string `json:"status"`
}
