package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/artstyle-api/internal/media"
	"github.com/maauso/artstyle-api/internal/style"
)

// fakeProcessor serves in-memory frames and decodes the buffered frame
// sequence back when asked to encode it.
type fakeProcessor struct {
	info      media.VideoInfo
	frames    []*image.RGBA
	probeErr  error
	readErr   error
	encodeErr error

	mu          sync.Mutex
	encodeCalls int
	pattern     string
	fps         float64
	encoded     []*image.RGBA
}

func (p *fakeProcessor) Probe(_ context.Context, _ string) (media.VideoInfo, error) {
	return p.info, p.probeErr
}

func (p *fakeProcessor) OpenFrames(_ context.Context, _ string, _ media.VideoInfo) (media.FrameReader, error) {
	return &fakeReader{frames: p.frames, err: p.readErr}, nil
}

func (p *fakeProcessor) EncodeFrames(_ context.Context, pattern string, fps float64, output string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.encodeCalls++
	p.pattern = pattern
	p.fps = fps
	if p.encodeErr != nil {
		return p.encodeErr
	}

	for i := 0; ; i++ {
		f, err := os.Open(fmt.Sprintf(pattern, i))
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return err
		}
		img, err := png.Decode(f)
		_ = f.Close()
		if err != nil {
			return err
		}
		p.encoded = append(p.encoded, style.ToRGBA(img))
	}
	return os.WriteFile(output, []byte("mp4"), 0600)
}

type fakeReader struct {
	frames []*image.RGBA
	err    error
	next   int
}

func (r *fakeReader) Next() (*image.RGBA, error) {
	if r.next >= len(r.frames) {
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}
	img := r.frames[r.next]
	r.next++
	return img, nil
}

func (r *fakeReader) Close() error { return nil }

// sequence returns n solid frames with distinct red channels.
func sequence(n, w, h int) []*image.RGBA {
	frames := make([]*image.RGBA, n)
	for i := range frames {
		frames[i] = solid(w, h, color.RGBA{uint8(20 * (i + 1)), 100, 150, 255})
	}
	return frames
}

func inverted(t *testing.T, src *image.RGBA) []uint8 {
	t.Helper()
	out, err := invert(src)
	require.NoError(t, err)
	return out.Pix
}

func TestProcessVideo_StylesEveryFrameInOrder(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			store := newTestStore(t)
			frames := sequence(5, 64, 48)
			proc := &fakeProcessor{
				info:   media.VideoInfo{FrameRate: 2, Width: 64, Height: 48, FrameCount: 5},
				frames: frames,
			}

			var (
				mu       sync.Mutex
				progress []int
			)
			r := NewRunner(newTestDispatcher(style.WithPipeline(style.Cartoon, invert)), proc, store,
				WithLogger(quietLogger()), WithFrameWorkers(workers), WithProgressInterval(2))

			out, err := r.ProcessVideo(context.Background(), Request{
				ID:        "vid",
				InputPath: "clip.mp4",
				Style:     "cartoon",
				Progress: func(done, total int) {
					mu.Lock()
					defer mu.Unlock()
					assert.Equal(t, 5, total)
					progress = append(progress, done)
				},
			})
			require.NoError(t, err)

			assert.Equal(t, filepath.Join(store.Dirs().Result, "vid_styled.mp4"), out.Path)
			assert.Equal(t, KindVideo, out.Kind)
			assert.Equal(t, style.Cartoon, out.Style)
			assert.Equal(t, 5, out.Frames)
			assert.Zero(t, out.FallbackFrames)
			assert.Equal(t, 64, out.Width)
			assert.Equal(t, 48, out.Height)
			assert.InDelta(t, 2.0, out.FrameRate, 1e-9)

			assert.Equal(t, 1, proc.encodeCalls)
			assert.InDelta(t, 2.0, proc.fps, 1e-9)
			assert.Equal(t, "frame_%06d.png", filepath.Base(proc.pattern))
			require.Len(t, proc.encoded, 5)
			for i, f := range frames {
				assert.Equal(t, inverted(t, f), proc.encoded[i].Pix, "frame %d", i)
			}

			assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, progress)
			assert.Empty(t, entries(t, store.Dirs().Temp), "workspace must be removed")
		})
	}
}

func TestProcessVideo_FailedFrameKeepsOriginal(t *testing.T) {
	store := newTestStore(t)
	frames := sequence(5, 32, 16)
	failing := frames[2].Pix[0]
	proc := &fakeProcessor{
		info:   media.VideoInfo{FrameRate: 2, Width: 32, Height: 16},
		frames: frames,
	}

	d := newTestDispatcher(style.WithPipeline(style.Watercolor, func(src *image.RGBA) (*image.RGBA, error) {
		if src.Pix[0] == failing {
			return nil, errors.New("numeric failure")
		}
		return invert(src)
	}))
	r := NewRunner(d, proc, store, WithLogger(quietLogger()))

	out, err := r.ProcessVideo(context.Background(), Request{ID: "v", InputPath: "clip.mov", Style: "watercolor"})
	require.NoError(t, err)

	assert.Equal(t, 5, out.Frames)
	assert.Equal(t, 1, out.FallbackFrames)
	require.Len(t, proc.encoded, 5)
	for i, f := range frames {
		if i == 2 {
			assert.Equal(t, f.Pix, proc.encoded[i].Pix, "failed frame is written unstyled")
			continue
		}
		assert.Equal(t, inverted(t, f), proc.encoded[i].Pix, "frame %d", i)
	}
}

func TestProcessVideo_EmptyVideo(t *testing.T) {
	store := newTestStore(t)
	proc := &fakeProcessor{info: media.VideoInfo{FrameRate: 25, Width: 8, Height: 8}}
	r := NewRunner(newTestDispatcher(), proc, store, WithLogger(quietLogger()))

	_, err := r.ProcessVideo(context.Background(), Request{ID: "e", InputPath: "empty.mp4", Style: "sketch"})

	assert.ErrorIs(t, err, ErrEmptyVideo)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDecodeFrame, se.Stage)
	assert.Zero(t, proc.encodeCalls)
	assert.Empty(t, entries(t, store.Dirs().Temp))
	assert.Empty(t, entries(t, store.Dirs().Result))
}

func TestProcessVideo_DimensionMismatch(t *testing.T) {
	store := newTestStore(t)
	frames := sequence(3, 16, 16)
	frames[2] = solid(16, 12, color.RGBA{1, 1, 1, 255})
	proc := &fakeProcessor{info: media.VideoInfo{FrameRate: 25, Width: 16, Height: 16}, frames: frames}
	r := NewRunner(newTestDispatcher(style.WithPipeline(style.Sketch, invert)), proc, store,
		WithLogger(quietLogger()))

	_, err := r.ProcessVideo(context.Background(), Request{ID: "d", InputPath: "a.mkv", Style: "sketch"})

	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Zero(t, proc.encodeCalls)
	assert.Empty(t, entries(t, store.Dirs().Temp))
}

func TestProcessVideo_DecoderReportsSizeChange(t *testing.T) {
	store := newTestStore(t)
	proc := &fakeProcessor{
		info:    media.VideoInfo{FrameRate: 25, Width: 8, Height: 8},
		frames:  sequence(2, 8, 8),
		readErr: fmt.Errorf("%w: frame 2 is 12x8, first frame is 8x8", media.ErrFrameSizeChanged),
	}
	r := NewRunner(newTestDispatcher(style.WithPipeline(style.Sketch, invert)), proc, store,
		WithLogger(quietLogger()))

	_, err := r.ProcessVideo(context.Background(), Request{ID: "sc", InputPath: "a.webm", Style: "sketch"})

	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, media.ErrFrameSizeChanged)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDecodeFrame, se.Stage)
	assert.Zero(t, proc.encodeCalls)
	assert.Empty(t, entries(t, store.Dirs().Temp))
}

func TestProcessVideo_DecodeError(t *testing.T) {
	store := newTestStore(t)
	decodeErr := errors.New("corrupt packet")
	proc := &fakeProcessor{
		info:    media.VideoInfo{FrameRate: 25, Width: 8, Height: 8},
		frames:  sequence(2, 8, 8),
		readErr: decodeErr,
	}
	r := NewRunner(newTestDispatcher(style.WithPipeline(style.Sketch, invert)), proc, store,
		WithLogger(quietLogger()))

	_, err := r.ProcessVideo(context.Background(), Request{ID: "c", InputPath: "a.avi", Style: "sketch"})

	assert.ErrorIs(t, err, decodeErr)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDecodeFrame, se.Stage)
	assert.Empty(t, entries(t, store.Dirs().Temp))
}

func TestProcessVideo_ProbeError(t *testing.T) {
	store := newTestStore(t)
	proc := &fakeProcessor{probeErr: media.ErrNoVideoStream}
	r := NewRunner(newTestDispatcher(), proc, store, WithLogger(quietLogger()))

	_, err := r.ProcessVideo(context.Background(), Request{ID: "p", InputPath: "a.mp4", Style: "anime"})

	assert.ErrorIs(t, err, media.ErrNoVideoStream)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageOpenSource, se.Stage)
}

func TestProcessVideo_EncodeError(t *testing.T) {
	store := newTestStore(t)
	proc := &fakeProcessor{
		info:      media.VideoInfo{FrameRate: 2, Width: 8, Height: 8},
		frames:    sequence(2, 8, 8),
		encodeErr: &media.FFmpegError{Args: []string{"-i"}, Stderr: "encoder not found", Err: errors.New("exit status 1")},
	}
	r := NewRunner(newTestDispatcher(style.WithPipeline(style.Anime, invert)), proc, store,
		WithLogger(quietLogger()))

	_, err := r.ProcessVideo(context.Background(), Request{ID: "x", InputPath: "a.webm", Style: "anime"})

	assert.ErrorIs(t, err, ErrEncode)
	var ffErr *media.FFmpegError
	assert.ErrorAs(t, err, &ffErr)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageEncodeOutput, se.Stage)
	assert.Empty(t, entries(t, store.Dirs().Temp))
}

func TestProcessVideo_WithFFmpeg(t *testing.T) {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}

	store := newTestStore(t)
	input := filepath.Join(store.Dirs().Upload, "clip.mp4")
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=2",
		"-frames:v", "5",
		"-c:v", "mpeg4", "-pix_fmt", "yuv420p",
		input,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}

	proc := media.NewFFmpegProcessor("", "")
	r := NewRunner(newTestDispatcher(), proc, store, WithLogger(quietLogger()))
	ctx := context.Background()

	out, err := r.Process(ctx, Request{ID: "real", InputPath: input, Style: "cartoon"})
	require.NoError(t, err)
	assert.Equal(t, 5, out.Frames)

	info, err := proc.Probe(ctx, out.Path)
	require.NoError(t, err)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)
	assert.InDelta(t, 2.0, info.FrameRate, 0.01)

	n, err := proc.CountFrames(ctx, out.Path)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Empty(t, entries(t, store.Dirs().Temp))
}

func TestProcessVideo_WithFFmpegSizeChange(t *testing.T) {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}

	// A numbered PNG sequence is a valid ffmpeg input whose frames may
	// differ in size.
	store := newTestStore(t)
	dir := t.TempDir()
	for i := 0; i < 4; i++ {
		w := 16
		if i >= 2 {
			w = 24
		}
		writePNG(t, filepath.Join(dir, fmt.Sprintf("src_%03d.png", i)), solid(w, 16, color.RGBA{uint8(40 * i), 80, 120, 255}))
	}

	proc := media.NewFFmpegProcessor("", "")
	r := NewRunner(newTestDispatcher(style.WithPipeline(style.Sketch, invert)), proc, store,
		WithLogger(quietLogger()))

	_, err := r.ProcessVideo(context.Background(), Request{ID: "sz", InputPath: filepath.Join(dir, "src_%03d.png"), Style: "sketch"})

	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Empty(t, entries(t, store.Dirs().Temp))
	assert.Empty(t, entries(t, store.Dirs().Result))
}
