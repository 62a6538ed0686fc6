package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Job is a maintenance task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type scheduled struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry holds jobs in registration order with their own cadence. A job
// with a zero cadence runs on every cycle of the service.
type Registry struct {
	mu   sync.Mutex
	jobs []*scheduled
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds job; names must be unique since they key metrics and logs.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.jobs {
		if existing.job.Name() == job.Name() {
			return fmt.Errorf("job %q already registered", job.Name())
		}
	}
	if every < 0 {
		every = 0
	}
	r.jobs = append(r.jobs, &scheduled{job: job, every: every})
	return nil
}

// Due returns the jobs whose cadence has elapsed at now and stamps them as
// run, so a failing job waits for its next slot instead of retrying every
// cycle.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Job
	for _, s := range r.jobs {
		if !s.lastRun.IsZero() && now.Sub(s.lastRun) < s.every {
			continue
		}
		s.lastRun = now
		due = append(due, s.job)
	}
	return due
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for _, s := range r.jobs {
		names = append(names, s.job.Name())
	}
	return names
}
