package pipeline

import "fmt"

// Stage is a step of a rebuild run. Stages only move forward.
type Stage string

const (
	StageFetching    Stage = "FETCHING"
	StageResolving   Stage = "RESOLVING_IDENTITY"
	StageAggregating Stage = "AGGREGATING_GRADES"
	StageStaging     Stage = "STAGING"
	StageRewriting   Stage = "REWRITING"
	StageDone        Stage = "DONE"
	StageDryRun      Stage = "DRY_RUN"
)

// StageError reports the stage a run halted in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func fail(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
