package rag

import "fmt"

// Stage identifies the pipeline step where an operation failed. The HTTP
// layer maps stages to status codes: input problems become 400s, collaborator
// failures become 502s.
type Stage string

const (
	StageValidation Stage = "validation"
	StageExtraction Stage = "extraction"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageStorage    Stage = "storage"
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
)

// ClientFault reports whether the stage indicates a problem with the
// caller's input rather than a backend failure.
func (s Stage) ClientFault() bool {
	switch s {
	case StageValidation, StageExtraction, StageChunking:
		return true
	default:
		return false
	}
}

// StageError wraps a pipeline failure with the stage it occurred in.
// A pipeline run surfaces at most one StageError: the first stage to fail
// aborts the run.
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

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

func stageErrf(stage Stage, format string, args ...any) error {
	return &StageError{Stage: stage, Err: fmt.Errorf(format, args...)}
}
