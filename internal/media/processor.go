// Package media provides video decoding and encoding capabilities.
package media

import (
	"context"
	"image"
)

// VideoInfo describes the primary video stream of a file.
type VideoInfo struct {
	// FrameRate is the stream frame rate in frames per second.
	FrameRate float64
	// Width is the decoded frame width in pixels, after display rotation.
	Width int
	// Height is the decoded frame height in pixels, after display rotation.
	Height int
	// CodedWidth and CodedHeight are the stored size before rotation.
	CodedWidth, CodedHeight int
	// Rotation is the display rotation in degrees: 0, 90, 180 or 270.
	Rotation int
	// FrameCount is the number of frames declared by the container.
	// Zero means the container does not declare it.
	FrameCount int
	// Codec is the name of the source codec.
	Codec string
}

// FrameReader streams decoded frames in decode order.
type FrameReader interface {
	// Next returns the next frame as a new RGBA image, or io.EOF once the
	// source is exhausted.
	Next() (*image.RGBA, error)

	// Close releases the decoder. It is safe to call more than once.
	Close() error
}

// Processor defines the interface for video processing operations.
// Implementations should use ffmpeg or similar tools for media manipulation.
type Processor interface {
	// Probe reads the frame rate, dimensions and frame count of the first
	// video stream in path.
	Probe(ctx context.Context, path string) (VideoInfo, error)

	// OpenFrames starts decoding path and returns a reader over its frames.
	// info must come from Probe on the same file. Each decoded frame is
	// returned exactly once; a frame whose size differs from the first
	// frame ends the stream with ErrFrameSizeChanged.
	OpenFrames(ctx context.Context, path string, info VideoInfo) (FrameReader, error)

	// EncodeFrames encodes the numbered image sequence matching pattern
	// (a printf-style pattern such as frame_%06d.png, numbered from zero)
	// into an MP4 file at the given frame rate using the mp4v codec tag.
	EncodeFrames(ctx context.Context, pattern string, fps float64, output string) error
}
