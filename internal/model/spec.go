package model

const (
	// Unlimited disables a max-attempt or max-instance limit.
	Unlimited = -1

	// Immortal disables the lifespan check on a job.
	Immortal int64 = -1
)

// JobSpec is the persisted form of a single job.
type JobSpec struct {
	ID                  string `json:"id"`
	FactoryKey          string `json:"factory_key"`
	QueueKey            string `json:"queue_key,omitempty"`
	CreateTime          int64  `json:"create_time"`
	LastRunAttemptTime  int64  `json:"last_run_attempt_time"`
	NextBackoffInterval int64  `json:"next_backoff_interval"`
	RunAttempt          int    `json:"run_attempt"`
	MaxAttempts         int    `json:"max_attempts"`
	Lifespan            int64  `json:"lifespan"`
	SerializedData      []byte `json:"serialized_data,omitempty"`
	SerializedInputData []byte `json:"serialized_input_data,omitempty"`
	IsRunning           bool   `json:"is_running"`
	IsMemoryOnly        bool   `json:"is_memory_only"`
	GlobalPriority      int    `json:"global_priority"`
	QueuePriority       int    `json:"queue_priority"`
	InitialDelay        int64  `json:"initial_delay"`
}

// EligibleAt returns the earliest time (unix millis) this job may run.
// A job that has already been attempted waits out its backoff; a fresh job
// waits out its initial delay.
func (j *JobSpec) EligibleAt() int64 {
	if j.RunAttempt > 0 {
		return j.LastRunAttemptTime + j.NextBackoffInterval
	}
	return j.CreateTime + j.InitialDelay
}

// ExpiresAt returns the time (unix millis) after which the job must not be
// retried, or Immortal if it has no lifespan.
func (j *JobSpec) ExpiresAt() int64 {
	if j.Lifespan == Immortal {
		return Immortal
	}
	return j.CreateTime + j.Lifespan
}

// ConstraintSpec attaches a named precondition to a job.
type ConstraintSpec struct {
	JobSpecID    string `json:"job_spec_id"`
	FactoryKey   string `json:"factory_key"`
	IsMemoryOnly bool   `json:"is_memory_only"`
}

// DependencySpec is a directed edge: JobSpecID runs only after
// DependsOnJobSpecID has succeeded.
type DependencySpec struct {
	JobSpecID          string `json:"job_spec_id"`
	DependsOnJobSpecID string `json:"depends_on_job_spec_id"`
	IsMemoryOnly       bool   `json:"is_memory_only"`
}

// FullSpec bundles a job with its constraints and dependencies so the three
// can be inserted atomically.
type FullSpec struct {
	Job          JobSpec
	Constraints  []ConstraintSpec
	Dependencies []DependencySpec
}
