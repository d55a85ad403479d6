// Package render turns an uploaded image or video into its stylized
// counterpart. Images are decoded, dispatched to a style pipeline and
// re-encoded; videos are streamed frame by frame through the same
// dispatcher and re-encoded with ffmpeg.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maauso/artstyle-api/internal/media"
	"github.com/maauso/artstyle-api/internal/metrics"
	"github.com/maauso/artstyle-api/internal/storage"
	"github.com/maauso/artstyle-api/internal/style"
)

// Static errors for rendering.
var (
	// ErrDecode is returned when the input image cannot be read or decoded.
	ErrDecode = errors.New("cannot decode input")
	// ErrEncode is returned when the styled output cannot be written.
	ErrEncode = errors.New("cannot encode output")
	// ErrEmptyVideo is returned when a video yields no frames.
	ErrEmptyVideo = errors.New("video contains no frames")
	// ErrDimensionMismatch is returned when a frame differs in size from the first frame.
	ErrDimensionMismatch = errors.New("frame dimensions differ from first frame")
	// ErrUnsupportedMedia is returned for file extensions that are neither image nor video.
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// Kind is the media family of an input file.
type Kind string

const (
	// KindImage is a still image.
	KindImage Kind = "image"
	// KindVideo is a video file.
	KindVideo Kind = "video"
)

var (
	imageExtensions = []string{"png", "jpg", "jpeg", "gif", "bmp", "tiff"}
	videoExtensions = []string{"mp4", "avi", "mov", "mkv", "webm"}
)

// ImageExtensions returns the accepted image extensions without the dot.
func ImageExtensions() []string {
	return append([]string(nil), imageExtensions...)
}

// VideoExtensions returns the accepted video extensions without the dot.
func VideoExtensions() []string {
	return append([]string(nil), videoExtensions...)
}

// Extension returns the lowercased extension of path without the dot.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// KindOf classifies path by its extension.
func KindOf(path string) (Kind, error) {
	ext := Extension(path)
	for _, e := range imageExtensions {
		if ext == e {
			return KindImage, nil
		}
	}
	for _, e := range videoExtensions {
		if ext == e {
			return KindVideo, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, ext)
}

// Styler applies a named style to an image. *style.Dispatcher implements it.
type Styler interface {
	Apply(img image.Image, name string) style.Result
}

// Store provides output paths and frame workspaces. storage.Storage implements it.
type Store interface {
	ResultPath(name string) string
	NewWorkspace(ctx context.Context, prefix string) (*storage.Workspace, error)
}

// ProgressFunc receives the number of frames styled so far and the frame
// count declared by the source, which is zero when unknown. Calls are
// serialized.
type ProgressFunc func(done, total int)

// Request describes one rendering.
type Request struct {
	// ID names the output file. A UUID is generated when empty.
	ID string
	// InputPath is the uploaded file.
	InputPath string
	// Style is the requested style identifier.
	Style string
	// Progress is called as video frames complete. Optional.
	Progress ProgressFunc
}

// Output describes a finished rendering.
type Output struct {
	// ID is the request ID, generated if the request had none.
	ID string
	// Path is the styled file.
	Path string
	// Kind is the media family of the input.
	Kind Kind
	// Style is the pipeline that was applied.
	Style style.Style
	// Frames is the number of frames written (1 for images).
	Frames int
	// FallbackFrames counts frames returned unstyled after a pipeline failure.
	FallbackFrames int
	// Width and Height are the output dimensions.
	Width, Height int
	// FrameRate is the output frame rate; zero for images.
	FrameRate float64
}

// Runner renders images and videos.
type Runner struct {
	styler           Styler
	processor        media.Processor
	store            Store
	workers          int
	progressInterval int
	logger           *slog.Logger

	progressMu sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithFrameWorkers sets how many video frames are styled concurrently.
// Values below 1 mean sequential processing.
func WithFrameWorkers(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		r.workers = n
	}
}

// WithProgressInterval sets how many frames pass between progress log lines.
func WithProgressInterval(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.progressInterval = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(styler Styler, processor media.Processor, store Store, opts ...Option) *Runner {
	r := &Runner{
		styler:           styler,
		processor:        processor,
		store:            store,
		workers:          1,
		progressInterval: 30,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process renders req with the image or video runner chosen by the input
// extension.
func (r *Runner) Process(ctx context.Context, req Request) (*Output, error) {
	kind, err := KindOf(req.InputPath)
	if err != nil {
		return nil, err
	}
	if kind == KindVideo {
		return r.ProcessVideo(ctx, req)
	}
	return r.ProcessImage(ctx, req)
}

func (r *Runner) prepare(req *Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
}

func observe(kind Kind, start time.Time) {
	metrics.ProcessingDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
}

func (r *Runner) reportProgress(req Request, done, total int) {
	if req.Progress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	req.Progress(done, total)
}
