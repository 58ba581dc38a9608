package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when submitting to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue cannot accept more work
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrUnknownJobKind is returned for job kinds the executor does not handle
	ErrUnknownJobKind = errors.New("unknown job kind")

	// ErrInvalidSchedule is returned for daily schedules that cannot be parsed
	ErrInvalidSchedule = errors.New("invalid daily schedule expression")
)
