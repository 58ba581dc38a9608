package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// JobKind identifies what a background job does
type JobKind string

const (
	// JobKindIncrementalSync imports new orders for every registered account
	JobKindIncrementalSync JobKind = "INCREMENTAL_SYNC"
	// JobKindFullImport replays the whole import window for one account
	JobKindFullImport JobKind = "FULL_IMPORT"
	// JobKindReconcile re-reads stored orders for one account and patches drift
	JobKindReconcile JobKind = "RECONCILE"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// maxRetryBackoff caps the delay between retries of a failed job
const maxRetryBackoff = 30 * time.Minute

// Job is one unit of scheduled work
type Job struct {
	ID   uuid.UUID
	Kind JobKind

	// AccountID selects the seller account; zero means every account
	// (only valid for JobKindIncrementalSync)
	AccountID int64

	// Reconcile window bounds, used by JobKindReconcile
	Since time.Time
	Until *time.Time

	// MaxWorkers overrides the reconcile fetch concurrency when positive
	MaxWorkers int

	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time

	// Outcome counters, filled in by the executor
	Imported    int
	Scanned     int
	Updated     int
	FetchErrors int
}

// NewJob creates a pending job of the given kind
func NewJob(kind JobKind, accountID int64, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       kind,
		AccountID:  accountID,
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

// ShouldRetry returns true if the job still has retry budget
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry re-queues the job with exponential backoff
func (j *Job) ScheduleRetry(baseDelay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	delay := baseDelay * time.Duration(1<<(j.RetryCount-1))
	if delay > maxRetryBackoff {
		delay = maxRetryBackoff
	}
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}
