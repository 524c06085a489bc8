package cron

import (
	"context"
	"fmt"
)

// Job is one maintenance task run by the cron worker each cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in run order. Names are unique.
type Registry struct {
	jobs  []Job
	index map[string]int
}

// NewRegistry registers jobs in order, skipping nils so optional jobs can be
// passed unconditionally. A duplicate name panics.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{index: map[string]int{}}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			panic(err)
		}
	}
	return r
}

// Register appends job. Nil is ignored; a name already taken is an error.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if r.index == nil {
		r.index = map[string]int{}
	}
	name := job.Name()
	if _, taken := r.index[name]; taken {
		return fmt.Errorf("cron: duplicate job %q", name)
	}
	r.index[name] = len(r.jobs)
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Registry) Lookup(name string) (Job, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.jobs[i], true
}

// Jobs returns a copy in run order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
