package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when submitting to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
	// ErrJobQueueFull is returned when a category queue cannot accept more jobs
	ErrJobQueueFull = errors.New("job queue is full")
)
