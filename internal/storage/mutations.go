package storage

import (
	"fmt"

	"jobctl/internal/model"
)

// MarkJobAsRunning flags the job as running and records the attempt time.
func (s *Store) MarkJobAsRunning(id string, nowMs int64) error {
	spec, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("mark running: no job with id %q", id)
	}
	spec.IsRunning = true
	spec.LastRunAttemptTime = nowMs

	if spec.IsMemoryOnly {
		return nil
	}
	_, err := s.Db.Exec(`update job_spec set is_running = 1, last_run_attempt_time = ? where id = ?`, nowMs, id)
	return err
}

// UpdateJobAfterRetry puts a failed-but-retryable job back to pending with
// its new attempt count, backoff and re-serialized state. A nil payload
// keeps the previously stored data.
func (s *Store) UpdateJobAfterRetry(id string, nowMs int64, runAttempt int, backoffIntervalMs int64, serializedData []byte) error {
	spec, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("update after retry: no job with id %q", id)
	}
	spec.IsRunning = false
	spec.RunAttempt = runAttempt
	spec.LastRunAttemptTime = nowMs
	spec.NextBackoffInterval = backoffIntervalMs
	if serializedData != nil {
		spec.SerializedData = serializedData
	}

	if spec.IsMemoryOnly {
		return nil
	}
	_, err := s.Db.Exec(`update job_spec set
		is_running = 0,
		run_attempt = ?,
		last_run_attempt_time = ?,
		next_backoff_interval = ?,
		serialized_data = ?
		where id = ?`,
		runAttempt, nowMs, backoffIntervalMs, spec.SerializedData, id)
	return err
}

// UpdateJobs rewrites whole specs in place. Used to inject a producer's
// output data into its dependents before the producer is deleted; the
// rewrite and the delete are issued by the controller as one logical unit
// under its lock.
func (s *Store) UpdateJobs(specs []model.JobSpec) error {
	tx, err := s.Db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range specs {
		spec := specs[i]
		if spec.IsMemoryOnly {
			continue
		}
		if _, err := tx.Exec(`update job_spec set
			factory_key = ?, queue_key = ?, create_time = ?, last_run_attempt_time = ?,
			next_backoff_interval = ?, run_attempt = ?, max_attempts = ?, lifespan = ?,
			serialized_data = ?, serialized_input_data = ?, is_running = ?,
			global_priority = ?, queue_priority = ?, initial_delay = ?
			where id = ?`,
			spec.FactoryKey, nullableQueue(spec.QueueKey), spec.CreateTime,
			spec.LastRunAttemptTime, spec.NextBackoffInterval, spec.RunAttempt,
			spec.MaxAttempts, spec.Lifespan, spec.SerializedData,
			spec.SerializedInputData, spec.IsRunning, spec.GlobalPriority,
			spec.QueuePriority, spec.InitialDelay, spec.ID); err != nil {
			return fmt.Errorf("update job %s: %w", spec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	for i := range specs {
		spec := specs[i]
		s.jobs[spec.ID] = &spec
	}
	return nil
}

func (s *Store) DeleteJob(id string) error {
	return s.DeleteJobs([]string{id})
}

// DeleteJobs removes the jobs, their constraints, and every dependency edge
// touching them, durable rows in one transaction.
func (s *Store) DeleteJobs(ids []string) error {
	tx, err := s.Db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		if spec, ok := s.jobs[id]; ok && spec.IsMemoryOnly {
			continue
		}
		if _, err := tx.Exec(`delete from job_spec where id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`delete from constraint_spec where job_spec_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`delete from dependency_spec where job_spec_id = ? or depends_on_job_spec_id = ?`, id, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	for _, id := range ids {
		s.dropFromMemory(id)
	}
	return nil
}

// UpdateAllJobsToBePending clears every running flag. Called once at
// startup: a surviving running flag means the previous process died
// mid-execution.
func (s *Store) UpdateAllJobsToBePending() error {
	for _, spec := range s.jobs {
		spec.IsRunning = false
	}
	_, err := s.Db.Exec(`update job_spec set is_running = 0`)
	return err
}
