package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one maintenance task run on every cycle.
type Job interface {
	// Name labels the job in metrics and logs and must be unique per registry.
	Name() string
	Run(ctx context.Context) error
}

// Registry holds maintenance jobs in the order they run.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry registers jobs in order and fails on the first invalid one.
func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{names: make(map[string]struct{}, len(jobs))}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register appends job. Nil jobs, blank names and names already taken are
// rejected so two jobs can never share a metric series.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("maintenance job required")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("maintenance job name required")
	}
	if r.names == nil {
		r.names = make(map[string]struct{})
	}
	if _, taken := r.names[name]; taken {
		return fmt.Errorf("maintenance job %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs in run order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

// Names returns the registered job names in run order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, strings.TrimSpace(job.Name()))
	}
	return names
}
