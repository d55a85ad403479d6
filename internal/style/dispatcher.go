package style

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
)

// Static errors reported through Result.Err when a pipeline misbehaves.
var (
	// ErrPipelinePanic wraps a panic recovered from a pipeline.
	ErrPipelinePanic = errors.New("style: pipeline panicked")
	// ErrBadOutput is returned when a pipeline produces no image or changes its size.
	ErrBadOutput = errors.New("style: pipeline produced an invalid image")
	// ErrEmptyImage is returned for images with no pixels.
	ErrEmptyImage = errors.New("style: empty image")
)

// DefaultSeed seeds the k-means restarts when no seed is configured.
const DefaultSeed uint64 = 42

// Result is the outcome of applying a style. When Fallback is true the
// pipeline failed, Image is an exact copy of the input and Err holds the
// cause.
type Result struct {
	// Image is always a new buffer, never the caller's input.
	Image *image.RGBA
	// Requested is the identifier as received.
	Requested string
	// Applied is the pipeline that was selected.
	Applied Style
	// Fallback reports that the unstyled input was returned.
	Fallback bool
	// Err is the pipeline failure behind a fallback.
	Err error
}

// InitReport describes the pipelines after construction.
type InitReport struct {
	// Ready lists pipelines that passed the startup self-check.
	Ready []Style
	// Degraded maps failing pipelines to their self-check error.
	Degraded map[Style]error
}

// OK returns true if every pipeline passed the self-check.
func (r InitReport) OK() bool {
	return len(r.Degraded) == 0
}

// Dispatcher resolves style identifiers and runs the matching pipeline.
// It is safe for concurrent use.
type Dispatcher struct {
	pipelines map[Style]Pipeline
	seed      uint64
	overrides map[Style]Pipeline
	logger    *slog.Logger
	report    InitReport
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSeed sets the seed of the k-means random restarts.
func WithSeed(seed uint64) Option {
	return func(d *Dispatcher) {
		d.seed = seed
	}
}

// WithPipeline replaces the pipeline registered for s.
func WithPipeline(s Style, p Pipeline) Option {
	return func(d *Dispatcher) {
		d.overrides[s] = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher builds every pipeline and runs each once on a small probe
// image. The returned report lists pipelines that failed that check; they
// stay registered since the failure may be input specific.
func NewDispatcher(opts ...Option) (*Dispatcher, InitReport) {
	d := &Dispatcher{
		seed:      DefaultSeed,
		overrides: make(map[Style]Pipeline),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.pipelines = Library(d.seed)
	for s, p := range d.overrides {
		d.pipelines[s] = p
	}

	report := InitReport{Degraded: make(map[Style]error)}
	probe := probeImage()
	for _, s := range All() {
		if _, err := d.run(d.pipelines[s], probe); err != nil {
			report.Degraded[s] = err
			continue
		}
		report.Ready = append(report.Ready, s)
	}
	d.report = report
	return d, report
}

// Report returns the result of the startup self-check.
func (d *Dispatcher) Report() InitReport {
	return d.report
}

// Resolve maps an identifier to a pipeline style. Unknown identifiers
// resolve to Default and ok is false.
func (d *Dispatcher) Resolve(name string) (Style, bool) {
	if s, ok := Parse(name); ok {
		return s, true
	}
	return Default, false
}

// Apply styles img. It never fails: unknown identifiers use the default
// pipeline, and a failing pipeline yields a copy of the input with
// Result.Fallback set. img is not modified.
func (d *Dispatcher) Apply(img image.Image, name string) Result {
	s, known := d.Resolve(name)
	if !known {
		d.logger.Warn("unknown style, using default",
			slog.String("requested", name),
			slog.String("style", string(s)),
		)
	}

	src := ToRGBA(img)
	res := Result{Requested: name, Applied: s}

	out, err := d.run(d.pipelines[s], src)
	if err != nil {
		d.logger.Error("style pipeline failed, returning original image",
			slog.String("style", string(s)),
			slog.String("error", err.Error()),
		)
		res.Image = cloneRGBA(src)
		res.Fallback = true
		res.Err = err
		return res
	}
	if out == src {
		out = cloneRGBA(out)
	}
	res.Image = out
	return res
}

// run executes p and converts panics and malformed output into errors.
func (d *Dispatcher) run(p Pipeline, src *image.RGBA) (out *image.RGBA, err error) {
	if src.Rect.Empty() {
		return nil, ErrEmptyImage
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrPipelinePanic, r)
		}
	}()

	out, err = p(src)
	if err != nil {
		return nil, err
	}
	if out == nil || out.Rect.Size() != src.Rect.Size() {
		return nil, ErrBadOutput
	}
	return out, nil
}

// probeImage is a small gradient used for the startup self-check.
func probeImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			o := img.PixOffset(x, y)
			img.Pix[o] = uint8(x * 16)
			img.Pix[o+1] = uint8(y * 16)
			img.Pix[o+2] = uint8((x + y) * 8)
			img.Pix[o+3] = 0xff
		}
	}
	return img
}
