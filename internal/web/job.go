package web

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"spotifydl/internal/model"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one queued run over a single input.
type Job struct {
	ID          string
	URL         string
	Status      JobStatus
	Progress    int
	Total       int
	Succeeded   int
	Cached      int
	Failed      int
	Lists       []string
	Failures    []string
	Error       string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Cancel      context.CancelFunc
}

// observe counts one finished item.
func (j *Job) observe(item model.Item, out model.Outcome) {
	j.Progress++
	switch out.Status {
	case model.StatusSucceeded:
		j.Succeeded++
	case model.StatusCached:
		j.Cached++
	case model.StatusFailed:
		j.Failed++
		j.Failures = append(j.Failures, fmt.Sprintf("%s (%s)", item, out.Reason))
	}
}

// JobResponse is the wire form of a job, for both the REST API and websocket updates.
type JobResponse struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Cached      int       `json:"cached"`
	Failed      int       `json:"failed"`
	Lists       []string  `json:"lists,omitempty"`
	Failures    []string  `json:"failures,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   string    `json:"created_at"`
	StartedAt   *string   `json:"started_at,omitempty"`
	CompletedAt *string   `json:"completed_at,omitempty"`
}

const timeLayout = "2006-01-02 15:04:05"

// response snapshots j. Callers hold the manager lock.
func (j *Job) response() JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		URL:       j.URL,
		Status:    j.Status,
		Progress:  j.Progress,
		Total:     j.Total,
		Succeeded: j.Succeeded,
		Cached:    j.Cached,
		Failed:    j.Failed,
		Lists:     slices.Clone(j.Lists),
		Failures:  slices.Clone(j.Failures),
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(timeLayout),
	}
	if j.StartedAt != nil {
		started := j.StartedAt.Format(timeLayout)
		resp.StartedAt = &started
	}
	if j.CompletedAt != nil {
		completed := j.CompletedAt.Format(timeLayout)
		resp.CompletedAt = &completed
	}
	return resp
}

// JobManager owns job state and fans updates out to subscribers.
type JobManager struct {
	jobs      map[string]*Job
	order     []string
	mu        sync.RWMutex
	listeners map[string][]chan JobResponse
}

const jobRetention = 1 * time.Hour

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:      make(map[string]*Job),
		listeners: make(map[string][]chan JobResponse),
	}
}

// StartCleanup starts a background goroutine that removes old finished jobs.
// Stops when ctx is cancelled.
func (jm *JobManager) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				jm.cleanup()
			}
		}
	}()
}

func (jm *JobManager) cleanup() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	cutoff := time.Now().Add(-jobRetention)
	for id, job := range jm.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(jm.jobs, id)
			delete(jm.listeners, id)
		}
	}
	jm.order = slices.DeleteFunc(jm.order, func(id string) bool {
		_, ok := jm.jobs[id]
		return !ok
	})
}

// CreateJob registers a pending job for url.
func (jm *JobManager) CreateJob(url string) JobResponse {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		URL:       url,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	jm.jobs[job.ID] = job
	jm.order = append(jm.order, job.ID)
	return job.response()
}

// GetJob returns a snapshot of a job.
func (jm *JobManager) GetJob(id string) (JobResponse, error) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, ok := jm.jobs[id]
	if !ok {
		return JobResponse{}, fmt.Errorf("job not found: %s", id)
	}
	return job.response(), nil
}

// ListJobs returns snapshots of all jobs in creation order.
func (jm *JobManager) ListJobs() []JobResponse {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]JobResponse, 0, len(jm.order))
	for _, id := range jm.order {
		jobs = append(jobs, jm.jobs[id].response())
	}
	return jobs
}

// UpdateJob applies fn under the manager lock and notifies subscribers.
func (jm *JobManager) UpdateJob(id string, fn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, ok := jm.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}

	oldStatus := job.Status
	fn(job)

	// Update timestamps based on status changes
	if oldStatus != job.Status {
		switch job.Status {
		case StatusRunning:
			if job.StartedAt == nil {
				now := time.Now()
				job.StartedAt = &now
			}
		case StatusCompleted, StatusFailed, StatusCancelled:
			if job.CompletedAt == nil {
				now := time.Now()
				job.CompletedAt = &now
			}
		}
	}

	jm.notifyListeners(id, job.response())
	return nil
}

// Subscribe subscribes to job updates
func (jm *JobManager) Subscribe(jobID string) <-chan JobResponse {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	ch := make(chan JobResponse, 16)
	jm.listeners[jobID] = append(jm.listeners[jobID], ch)
	return ch
}

// Unsubscribe removes a listener
func (jm *JobManager) Unsubscribe(jobID string, ch <-chan JobResponse) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	listeners := jm.listeners[jobID]
	for i, listener := range listeners {
		if listener == ch {
			jm.listeners[jobID] = append(listeners[:i], listeners[i+1:]...)
			close(listener)
			break
		}
	}
}

// notifyListeners drops updates for slow subscribers rather than blocking the run.
func (jm *JobManager) notifyListeners(jobID string, resp JobResponse) {
	for _, ch := range jm.listeners[jobID] {
		select {
		case ch <- resp:
		default:
		}
	}
}
