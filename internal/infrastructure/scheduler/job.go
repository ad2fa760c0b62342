package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of a background job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobCategory routes a job to its worker pool. Categories are isolated: a
// backlog of scans never starves alert deliveries and vice versa.
type JobCategory string

const (
	CategoryScan        JobCategory = "scan"
	CategoryAlert       JobCategory = "alert"
	CategoryMaintenance JobCategory = "maintenance"
)

// AllCategories returns every job category
func AllCategories() []JobCategory {
	return []JobCategory{CategoryScan, CategoryAlert, CategoryMaintenance}
}

// JobFunc is the work a job performs
type JobFunc func(ctx context.Context) error

// Job represents one unit of background work with retry bookkeeping
type Job struct {
	ID          uuid.UUID
	Name        string
	Category    JobCategory
	Run         JobFunc
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a pending job
func NewJob(name string, category JobCategory, maxRetries int, run JobFunc) *Job {
	return &Job{
		ID:         uuid.New(),
		Name:       name,
		Category:   category,
		Run:        run,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job has retry budget left
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the next attempt after the given delay
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// BackoffDelay returns the exponential backoff delay for the next retry:
// base, 2x base, 4x base and so on
func (j *Job) BackoffDelay(base time.Duration) time.Duration {
	return base << j.RetryCount
}
