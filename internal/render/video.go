package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/artstyle-api/internal/media"
	"github.com/maauso/artstyle-api/internal/metrics"
	"github.com/maauso/artstyle-api/internal/storage"
	"github.com/maauso/artstyle-api/internal/style"
)

// frameStats summarizes the styled frame sequence.
type frameStats struct {
	frames    int
	fallbacks int
	size      image.Point
	applied   style.Style
}

// ProcessVideo streams the input video through the style dispatcher and
// encodes the styled frames into {id}_styled.mp4 at the source frame rate.
//
// Frames are decoded one at a time and styled by up to the configured
// number of workers. Styled frames are buffered on disk under
// index-numbered names, so encode order equals decode order whatever order
// the workers finish in. The frame workspace is removed on every path.
// Failures are returned as *StageError.
func (r *Runner) ProcessVideo(ctx context.Context, req Request) (*Output, error) {
	r.prepare(&req)
	start := time.Now()
	defer observe(KindVideo, start)

	log := r.logger.With(slog.String("id", req.ID))
	enter := func(s Stage) {
		log.Debug("video stage", slog.String("stage", string(s)))
	}
	fail := func(err error) error {
		var se *StageError
		if !errors.As(err, &se) {
			se = &StageError{Stage: StageFailed, Err: err}
		}
		log.Error("video rendering failed",
			slog.String("stage", string(se.Stage)),
			slog.String("error", se.Err.Error()),
		)
		return se
	}

	enter(StageOpenSource)
	info, err := r.processor.Probe(ctx, req.InputPath)
	if err != nil {
		return nil, fail(&StageError{Stage: StageOpenSource, Err: err})
	}
	frames, err := r.processor.OpenFrames(ctx, req.InputPath, info)
	if err != nil {
		return nil, fail(&StageError{Stage: StageOpenSource, Err: err})
	}
	defer func() { _ = frames.Close() }()

	ws, err := r.store.NewWorkspace(ctx, req.ID)
	if err != nil {
		return nil, fail(&StageError{Stage: StageOpenSource, Err: err})
	}
	defer func() {
		enter(StageCleanup)
		if err := ws.Remove(); err != nil {
			log.Warn("failed to remove frame workspace", slog.String("error", err.Error()))
		}
	}()

	log.Info("video rendering started",
		slog.String("style", req.Style),
		slog.Float64("fps", info.FrameRate),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
		slog.Int("frame_count", info.FrameCount),
		slog.Int("rotation", info.Rotation),
		slog.Int("workers", r.workers),
		slog.String("workspace", ws.Dir()),
	)

	stats, err := r.styleFrames(ctx, req, frames, ws, info.FrameCount, log)
	if err != nil {
		return nil, fail(err)
	}
	_ = frames.Close()

	enter(StageEncodeOutput)
	outPath := r.store.ResultPath(req.ID + "_styled.mp4")
	if err := r.processor.EncodeFrames(ctx, ws.FramePattern(), info.FrameRate, outPath); err != nil {
		return nil, fail(&StageError{Stage: StageEncodeOutput, Err: fmt.Errorf("%w: %w", ErrEncode, err)})
	}

	if stats.fallbacks > 0 {
		log.Warn("some frames were left unstyled",
			slog.Int("fallback_frames", stats.fallbacks),
			slog.Int("frames", stats.frames),
		)
	}
	log.Info("video rendering completed",
		slog.String("style", string(stats.applied)),
		slog.Int("frames", stats.frames),
		slog.Duration("elapsed", time.Since(start)),
		slog.String("output", outPath),
	)
	enter(StageDone)

	return &Output{
		ID:             req.ID,
		Path:           outPath,
		Kind:           KindVideo,
		Style:          stats.applied,
		Frames:         stats.frames,
		FallbackFrames: stats.fallbacks,
		Width:          stats.size.X,
		Height:         stats.size.Y,
		FrameRate:      info.FrameRate,
	}, nil
}

// styleFrames decodes every frame, styles it on the worker pool and writes
// it to ws. Decoding stays on the calling goroutine; the pool limit bounds
// how many decoded frames are held at once.
func (r *Runner) styleFrames(
	ctx context.Context,
	req Request,
	src media.FrameReader,
	ws *storage.Workspace,
	total int,
	log *slog.Logger,
) (frameStats, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	var (
		stats     frameStats
		done      atomic.Int64
		fallbacks atomic.Int64
		once      sync.Once
		readErr   error
		index     int
	)

	for ; ; index++ {
		if gctx.Err() != nil {
			break
		}
		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, media.ErrFrameSizeChanged) {
			readErr = &StageError{Stage: StageDecodeFrame, Err: fmt.Errorf("%w: %w", ErrDimensionMismatch, err)}
			break
		}
		if err != nil {
			readErr = &StageError{Stage: StageDecodeFrame, Err: err}
			break
		}

		size := img.Bounds().Size()
		if index == 0 {
			stats.size = size
		} else if size != stats.size {
			readErr = &StageError{
				Stage: StageDecodeFrame,
				Err:   fmt.Errorf("%w: frame %d is %v, first frame is %v", ErrDimensionMismatch, index, size, stats.size),
			}
			break
		}

		frame := media.Frame{Index: index, Image: img}
		g.Go(func() error {
			res := r.styler.Apply(frame.Image, req.Style)
			if res.Image == nil {
				return &StageError{Stage: StageStyleFrame, Err: fmt.Errorf("frame %d: styler returned no image", frame.Index)}
			}
			once.Do(func() { stats.applied = res.Applied })
			if res.Fallback {
				fallbacks.Add(1)
				metrics.StyleFallbacksTotal.WithLabelValues(string(res.Applied)).Inc()
				log.Warn("frame left unstyled",
					slog.Int("frame", frame.Index),
					slog.String("error", errString(res.Err)),
				)
			}

			if err := writeFrame(ws.FramePath(frame.Index), res.Image); err != nil {
				return &StageError{Stage: StageBufferFrame, Err: fmt.Errorf("frame %d: %w", frame.Index, err)}
			}
			metrics.FramesStyledTotal.Inc()

			n := int(done.Add(1))
			if n%r.progressInterval == 0 {
				log.Info("frames styled", slog.Int("done", n), slog.Int("total", total))
			}
			r.reportProgress(req, n, total)
			return nil
		})
	}

	waitErr := g.Wait()
	stats.fallbacks = int(fallbacks.Load())
	switch {
	case readErr != nil:
		return stats, readErr
	case waitErr != nil:
		return stats, waitErr
	case ctx.Err() != nil:
		return stats, &StageError{Stage: StageDecodeFrame, Err: ctx.Err()}
	case index == 0:
		return stats, &StageError{Stage: StageDecodeFrame, Err: ErrEmptyVideo}
	}
	stats.frames = index
	return stats, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
