package synthesis

import (
	"errors"
	"fmt"
)

var (
	ErrInputNotFound = errors.New("input image not found")
	ErrModelNotFound = errors.New("model file not found")
	ErrComfyNotFound = errors.New("ComfyUI installation not found")
	ErrExecution     = errors.New("generation failed")
)

// Error describes a failed generation. Iteration is 1-based; zero means the
// job failed before any image was queued.
type Error struct {
	JobImage  string
	Iteration int
	Err       error
}

func (e *Error) Error() string {
	if e.Iteration > 0 {
		return fmt.Sprintf("synthesis: %s (iteration %d): %v", e.JobImage, e.Iteration, e.Err)
	}
	return fmt.Sprintf("synthesis: %s: %v", e.JobImage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
