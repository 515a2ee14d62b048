package runner

import "fmt"

// PreflightError aborts the run before any session starts: the endpoint
// failed the synchronous pre-flight health check.
type PreflightError struct {
	Status int
	Cause  error
}

func (e *PreflightError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("pre-flight health check failed: HTTP %d", e.Status)
	}
	return fmt.Sprintf("pre-flight health check failed: %v", e.Cause)
}

func (e *PreflightError) Unwrap() error { return e.Cause }
