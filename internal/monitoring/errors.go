package monitoring

import (
	"errors"
	"fmt"

	"github.com/editorialops/referee-monitor/internal/retry"
)

// ErrRunInProgress is returned when a platform is asked to run while its previous run is still going
var ErrRunInProgress = errors.New("run already in progress")

// RunError is a run-level failure. The previous snapshot of Platform is left untouched.
type RunError struct {
	Platform string
	Step     string
	Attempts int
	Cause    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed for %s at %s after %d attempt(s): %v", e.Platform, e.Step, e.Attempts, e.Cause)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

func runError(platform, step string, cause error) *RunError {
	attempts := 1
	var transient *retry.TransientNetworkError
	if errors.As(cause, &transient) && transient.Attempts > 0 {
		attempts = transient.Attempts
	}
	return &RunError{Platform: platform, Step: step, Attempts: attempts, Cause: cause}
}
