package manager

import "errors"

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrTaskNotReady    = errors.New("task results are not ready")
	ErrArtifactMissing = errors.New("task artifact is missing")
)
