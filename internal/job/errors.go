package job

import "errors"

// Errors surfaced synchronously by the queue manager. Failures inside the
// background executor never reach the submitter through these; they end up
// in the job's error field instead.
var (
	ErrValidation      = errors.New("invalid submission")
	ErrCapacity        = errors.New("too many active jobs")
	ErrNotFound        = errors.New("job not found")
	ErrAlreadyFinished = errors.New("job already finished")
)
