package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when the provided dimensions are not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrInvalidFrameRate is returned when the frame rate is not positive.
	ErrInvalidFrameRate = errors.New("invalid frame rate: must be positive")
	// ErrNoVideoStream is returned when a file has no video stream.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrTruncatedFrame is returned when the decoder stops in the middle of a frame.
	ErrTruncatedFrame = errors.New("truncated frame")
	// ErrFrameSizeChanged is returned when a frame is not the size of the first frame.
	ErrFrameSizeChanged = errors.New("frame size changed mid-stream")
)

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)

// FFmpegProcessor implements Processor using the ffmpeg and ffprobe CLIs.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegProcessor(ffmpegPath, ffprobePath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

type probeOutput struct {
	Streams []struct {
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		NbReadFrames string `json:"nb_read_frames"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
}

// Probe reads the frame rate, dimensions and frame count of the first
// video stream using ffprobe.
func (p *FFmpegProcessor) Probe(ctx context.Context, path string) (VideoInfo, error) {
	out, err := p.runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,avg_frame_rate,nb_frames:stream_tags=rotate:stream_side_data=rotation",
		"-of", "json",
		path,
	)
	if err != nil {
		return VideoInfo{}, err
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("%w: %s", ErrNoVideoStream, path)
	}

	s := parsed.Streams[0]
	info := VideoInfo{
		Width:       s.Width,
		Height:      s.Height,
		CodedWidth:  s.Width,
		CodedHeight: s.Height,
		Codec:       s.CodecName,
	}
	if info.Width <= 0 || info.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, info.Width, info.Height)
	}

	// ffmpeg applies the display rotation while decoding, so report the
	// size frames come out at.
	rotate := s.Tags.Rotate
	if len(s.SideDataList) > 0 && s.SideDataList[0].Rotation != 0 {
		rotate = strconv.FormatFloat(s.SideDataList[0].Rotation, 'f', 0, 64)
	}
	info.Rotation = normalizeRotation(rotate)
	if info.Rotation == 90 || info.Rotation == 270 {
		info.Width, info.Height = info.Height, info.Width
	}

	// Prefer avg_frame_rate; r_frame_rate is the fallback when the
	// container leaves it empty.
	info.FrameRate = parseRate(s.AvgFrameRate)
	if info.FrameRate <= 0 {
		info.FrameRate = parseRate(s.RFrameRate)
	}
	if info.FrameRate <= 0 {
		return VideoInfo{}, fmt.Errorf("%w: %q", ErrInvalidFrameRate, s.RFrameRate)
	}

	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.FrameCount = n
		return info, nil
	}

	// Matroska and WebM do not store a frame count.
	n, err := p.CountFrames(ctx, path)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("count frames: %w", err)
	}
	info.FrameCount = n
	return info, nil
}

// normalizeRotation maps a rotation in degrees to 0, 90, 180 or 270.
func normalizeRotation(s string) int {
	deg, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	r := int(math.Round(deg/90)) * 90 % 360
	if r < 0 {
		r += 360
	}
	return r
}

// CountFrames decodes the whole stream to count its frames. It is slower
// than Probe but exact for containers without a frame count.
func (p *FFmpegProcessor) CountFrames(ctx context.Context, path string) (int, error) {
	out, err := p.runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=nb_read_frames",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, err
	}

	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoVideoStream, path)
	}
	n, err := strconv.Atoi(parsed.Streams[0].NbReadFrames)
	if err != nil {
		return 0, fmt.Errorf("parse frame count: %w", err)
	}
	return n, nil
}

// parseRate parses an ffprobe rational such as "30000/1001" or "25".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// FrameSizes lists the coded size of every frame of the first video stream
// in decode order.
func (p *FFmpegProcessor) FrameSizes(ctx context.Context, path string) ([]image.Point, error) {
	out, err := p.runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "frame=width,height",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return nil, err
	}
	return parseFrameSizes(string(out))
}

// parseFrameSizes parses ffprobe "width,height" lines.
func parseFrameSizes(out string) ([]image.Point, error) {
	var sizes []image.Point
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		w, h, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("parse frame size %q", line)
		}
		// Side data entries may add trailing fields.
		h, _, _ = strings.Cut(h, ",")
		width, err := strconv.Atoi(w)
		if err != nil {
			return nil, fmt.Errorf("parse frame width %q: %w", line, err)
		}
		height, err := strconv.Atoi(h)
		if err != nil {
			return nil, fmt.Errorf("parse frame height %q: %w", line, err)
		}
		sizes = append(sizes, image.Pt(width, height))
	}
	return sizes, nil
}

// OpenFrames starts ffmpeg decoding path to raw RGB24 on stdout. Frames are
// read one at a time so the video is never held in memory.
//
// Every decoded frame is emitted exactly once, in decode order, with the
// display rotation applied. ffmpeg would rescale frames after a mid-stream
// size change, so the coded size of each frame is listed first with
// ffprobe and Next reports ErrFrameSizeChanged at the first frame that
// differs from frame 0.
func (p *FFmpegProcessor) OpenFrames(ctx context.Context, path string, info VideoInfo) (FrameReader, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, info.Width, info.Height)
	}

	sizes, err := p.FrameSizes(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("list frame sizes: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	args := []string{
		"-v", "error",
		"-i", path, // Input file
		"-map", "0:v:0", // First video stream only
		"-fps_mode", "passthrough", // One output frame per decoded frame
		"-f", "rawvideo", // Headerless output
		"-pix_fmt", "rgb24", // Packed 8-bit RGB
		"-",
	}
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	r := newRawFrameReader(stdout, info.Width, info.Height, sizes)
	r.cmd, r.cancel, r.args = cmd, cancel, args
	cmd.Stderr = &r.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return r, nil
}

// rawFrameReader reads fixed-size RGB24 frames from an ffmpeg pipe.
type rawFrameReader struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.Reader
	stderr bytes.Buffer
	args   []string

	width, height int
	buf           []byte
	// sizes holds the coded size of each frame; index is the next frame.
	sizes []image.Point
	index int

	once    sync.Once
	waitErr error
	done    bool
}

func newRawFrameReader(stdout io.Reader, width, height int, sizes []image.Point) *rawFrameReader {
	return &rawFrameReader{
		cancel: func() {},
		stdout: stdout,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
		sizes:  sizes,
	}
}

func (r *rawFrameReader) Next() (*image.RGBA, error) {
	if r.done {
		return nil, io.EOF
	}
	if r.index > 0 && r.index < len(r.sizes) && r.sizes[r.index] != r.sizes[0] {
		r.done = true
		r.cancel()
		return nil, fmt.Errorf("%w: frame %d is %dx%d, first frame is %dx%d", ErrFrameSizeChanged,
			r.index, r.sizes[r.index].X, r.sizes[r.index].Y, r.sizes[0].X, r.sizes[0].Y)
	}

	_, err := io.ReadFull(r.stdout, r.buf)
	switch {
	case errors.Is(err, io.EOF):
		r.done = true
		if werr := r.wait(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		r.done = true
		if werr := r.wait(); werr != nil {
			return nil, werr
		}
		return nil, ErrTruncatedFrame
	case err != nil:
		return nil, fmt.Errorf("read frame: %w", err)
	}
	r.index++

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	for i, j := 0, 0; i < len(r.buf); i, j = i+3, j+4 {
		img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = r.buf[i], r.buf[i+1], r.buf[i+2], 0xff
	}
	return img, nil
}

// wait reaps ffmpeg and reports a decode failure with its stderr.
func (r *rawFrameReader) wait() error {
	r.once.Do(func() {
		if r.cmd != nil {
			if err := r.cmd.Wait(); err != nil {
				r.waitErr = &FFmpegError{Args: r.args, Stderr: r.stderr.String(), Err: err}
			}
		}
		r.cancel()
	})
	return r.waitErr
}

func (r *rawFrameReader) Close() error {
	if !r.done {
		r.done = true
		r.cancel()
	}
	_ = r.wait()
	return nil
}

// EncodeFrames encodes a zero-based numbered image sequence into an MP4
// using the MPEG-4 Part 2 encoder tagged mp4v.
func (p *FFmpegProcessor) EncodeFrames(ctx context.Context, pattern string, fps float64, output string) error {
	if fps <= 0 {
		return fmt.Errorf("%w: got %.3f", ErrInvalidFrameRate, fps)
	}

	args := []string{
		"-y", // Overwrite output file without asking
		"-framerate", strconv.FormatFloat(fps, 'f', -1, 64), // Source frame rate
		"-start_number", "0", // Sequence starts at frame 0
		"-i", pattern, // Numbered frame files
		"-c:v", "mpeg4", // MPEG-4 Part 2 encoder
		"-vtag", "mp4v", // FourCC
		"-q:v", "3", // Quality (lower = better)
		"-pix_fmt", "yuv420p", // Pixel format for compatibility
		output, // Output file
	}
	return p.runFFmpeg(ctx, args)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// runFFprobe executes ffprobe and returns its stdout.
func (p *FFmpegProcessor) runFFprobe(ctx context.Context, args ...string) ([]byte, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
