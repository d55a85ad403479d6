package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/artstyle-api/internal/metrics"
)

// ProcessImage decodes the input image, applies the requested style and
// writes {id}_styled.{ext} to the result directory. The output keeps the
// input's format when it can be encoded and falls back to PNG otherwise.
func (r *Runner) ProcessImage(ctx context.Context, req Request) (*Output, error) {
	r.prepare(&req)
	start := time.Now()
	defer observe(KindImage, start)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	img, format, err := decodeFile(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	res := r.styler.Apply(img, req.Style)
	fallbacks := 0
	if res.Fallback {
		fallbacks = 1
		metrics.StyleFallbacksTotal.WithLabelValues(string(res.Applied)).Inc()
	}

	ext := outputExtension(req.InputPath)
	path := r.store.ResultPath(fmt.Sprintf("%s_styled.%s", req.ID, ext))
	if err := encodeFile(path, res.Image, ext); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	size := res.Image.Bounds().Size()
	r.logger.Info("image styled",
		slog.String("id", req.ID),
		slog.String("style", string(res.Applied)),
		slog.String("source_format", format),
		slog.Int("width", size.X),
		slog.Int("height", size.Y),
		slog.Bool("fallback", res.Fallback),
		slog.String("output", path),
	)

	return &Output{
		ID:             req.ID,
		Path:           path,
		Kind:           KindImage,
		Style:          res.Applied,
		Frames:         1,
		FallbackFrames: fallbacks,
		Width:          size.X,
		Height:         size.Y,
	}, nil
}
