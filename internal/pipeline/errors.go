package pipeline

import (
	"errors"
	"fmt"
)

// ErrBackend indicates an external collaborator failure (TTS timeout,
// renderer unreachable). Calls failing this way are retried with bounded
// exponential backoff before the error surfaces.
var ErrBackend = errors.New("backend failure")

// Stage names the pipeline stage a failure originated in.
type Stage string

const (
	StageSynthesis  Stage = "synthesis"
	StageTiming     Stage = "timing"
	StagePlanning   Stage = "planning"
	StageScheduling Stage = "scheduling"
	StageAssembly   Stage = "assembly"
)

// StageError tags a failure with its originating stage. It wraps the
// underlying typed error, so errors.Is works through it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
