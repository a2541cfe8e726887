package cron

import "context"

// Job is a named unit of scheduled work run by the sync worker loop.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the ordered set of jobs a worker ticks through. Nil jobs
// are silently dropped so callers can register conditionally built jobs.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make([]Job, 0, len(jobs))}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy in registration order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}
