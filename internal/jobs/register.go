// Package jobs holds the concrete job types and constraints the CLI ships
// with. The engine itself only ever sees the registries.
package jobs

import "jobctl/internal/job"

// RegisterJobs installs every built-in job factory.
func RegisterJobs(r *job.Registry) {
	r.Register(ShellFactoryKey, shellFactory)
	r.Register(SleepFactoryKey, sleepFactory)
}

// RegisterConstraints installs every built-in constraint factory.
func RegisterConstraints(r *job.ConstraintRegistry) {
	r.Register(NetworkConstraintKey, networkConstraintFactory)
}
