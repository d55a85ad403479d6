package render

import "fmt"

// Stage is a step of the video pipeline.
type Stage string

const (
	StageOpenSource   Stage = "open_source"
	StageDecodeFrame  Stage = "decode_frame"
	StageStyleFrame   Stage = "style_frame"
	StageBufferFrame  Stage = "buffer_frame"
	StageEncodeOutput Stage = "encode_output"
	StageCleanup      Stage = "cleanup"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// StageError records the stage at which a video rendering failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
