package scheduler

import (
	"sync"
	"time"

	"github.com/pricepulse/pricepulse/internal/domain"
)

// Registry is the explicitly owned, lockable set of polling jobs. All
// status transitions go through Update so a manual pause or cancel
// never races an in-flight cycle's bookkeeping.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*domain.PollingJob
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*domain.PollingJob)}
}

// Put inserts or replaces a job.
func (r *Registry) Put(job *domain.PollingJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID] = job
}

// Remove frees a job's registry entry.
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

// Get returns a copy of the job, so callers never observe a partially
// applied transition.
func (r *Registry) Get(jobID string) (domain.PollingJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return domain.PollingJob{}, false
	}
	return *job, true
}

// Update applies fn to the job under the registry lock and returns a
// copy of the result. fn must not block.
func (r *Registry) Update(jobID string, fn func(*domain.PollingJob)) (domain.PollingJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return domain.PollingJob{}, false
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return *job, true
}

// Due returns copies of schedulable jobs whose next run is at or
// before now, transitioning each to running and advancing its run
// times in the same critical section so a job never double-fires.
func (r *Registry) Due(now time.Time, interval func(job *domain.PollingJob) time.Duration) []domain.PollingJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []domain.PollingJob
	for _, job := range r.jobs {
		if !job.Status.Schedulable() || job.NextRun == nil || job.NextRun.After(now) {
			continue
		}

		job.Status = domain.JobRunning
		lastRun := now
		nextRun := now.Add(interval(job))
		job.LastRun = &lastRun
		job.NextRun = &nextRun
		job.UpdatedAt = now

		due = append(due, *job)
	}
	return due
}

// NextWake returns the earliest next_run among schedulable jobs. The
// second return is false when nothing is scheduled.
func (r *Registry) NextWake() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next time.Time
	found := false
	for _, job := range r.jobs {
		if !job.Status.Schedulable() || job.NextRun == nil {
			continue
		}
		if !found || job.NextRun.Before(next) {
			next = *job.NextRun
			found = true
		}
	}
	return next, found
}

// List returns copies of all registered jobs.
func (r *Registry) List() []domain.PollingJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]domain.PollingJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}
