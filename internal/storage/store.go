package storage

import (
	"database/sql"
	"fmt"

	"jobctl/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store holds every job, constraint and dependency spec. The in-memory maps
// are authoritative; durable (non memory-only) rows are mirrored to SQLite
// so the queue survives process restarts. Memory-only specs never touch the
// database.
//
// The store does no locking of its own. The engine's controller is the
// single writer and serializes all access under its lock; the CLI commands
// that read the store directly run single-threaded.
type Store struct {
	Db *sql.DB

	jobs         map[string]*model.JobSpec
	constraints  map[string][]model.ConstraintSpec
	dependencies map[string][]model.DependencySpec
}

func (s *Store) Init() error {
	schema := `
	create table if not exists job_spec(
		id text primary key,
		factory_key text not null,
		queue_key text,
		create_time integer not null,
		last_run_attempt_time integer not null default 0,
		next_backoff_interval integer not null default 0,
		run_attempt integer not null default 0,
		max_attempts integer not null default 1,
		lifespan integer not null default -1,
		serialized_data blob,
		serialized_input_data blob,
		is_running integer not null default 0,
		global_priority integer not null default 0,
		queue_priority integer not null default 0,
		initial_delay integer not null default 0
	);
	create table if not exists constraint_spec(
		job_spec_id text not null,
		factory_key text not null
	);
	create table if not exists dependency_spec(
		job_spec_id text not null,
		depends_on_job_spec_id text not null
	);`
	_, err := s.Db.Exec(schema)
	return err
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	store := &Store{
		Db:           db,
		jobs:         make(map[string]*model.JobSpec),
		constraints:  make(map[string][]model.ConstraintSpec),
		dependencies: make(map[string][]model.DependencySpec),
	}
	if err := store.Init(); err != nil {
		return nil, err
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error { return s.Db.Close() }

// load pulls every durable row into the in-memory maps at startup.
func (s *Store) load() error {
	jobs, err := s.readJobRows(`select id, factory_key, queue_key, create_time, last_run_attempt_time,
		next_backoff_interval, run_attempt, max_attempts, lifespan, serialized_data,
		serialized_input_data, is_running, global_priority, queue_priority, initial_delay
		from job_spec`)
	if err != nil {
		return fmt.Errorf("load job specs: %w", err)
	}
	for i := range jobs {
		spec := jobs[i]
		s.jobs[spec.ID] = &spec
	}

	rows, err := s.Db.Query(`select job_spec_id, factory_key from constraint_spec`)
	if err != nil {
		return fmt.Errorf("load constraint specs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c model.ConstraintSpec
		if err := rows.Scan(&c.JobSpecID, &c.FactoryKey); err != nil {
			return err
		}
		s.constraints[c.JobSpecID] = append(s.constraints[c.JobSpecID], c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	depRows, err := s.Db.Query(`select job_spec_id, depends_on_job_spec_id from dependency_spec`)
	if err != nil {
		return fmt.Errorf("load dependency specs: %w", err)
	}
	defer depRows.Close()
	for depRows.Next() {
		var d model.DependencySpec
		if err := depRows.Scan(&d.JobSpecID, &d.DependsOnJobSpecID); err != nil {
			return err
		}
		s.dependencies[d.JobSpecID] = append(s.dependencies[d.JobSpecID], d)
	}
	return depRows.Err()
}

func (s *Store) readJobRows(query string, args ...any) ([]model.JobSpec, error) {
	rows, err := s.Db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specs []model.JobSpec
	for rows.Next() {
		var spec model.JobSpec
		var queueKey sql.NullString
		if err := rows.Scan(
			&spec.ID,
			&spec.FactoryKey,
			&queueKey,
			&spec.CreateTime,
			&spec.LastRunAttemptTime,
			&spec.NextBackoffInterval,
			&spec.RunAttempt,
			&spec.MaxAttempts,
			&spec.Lifespan,
			&spec.SerializedData,
			&spec.SerializedInputData,
			&spec.IsRunning,
			&spec.GlobalPriority,
			&spec.QueuePriority,
			&spec.InitialDelay,
		); err != nil {
			return nil, err
		}
		if queueKey.Valid {
			spec.QueueKey = queueKey.String
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// InsertJobs persists one or more full specs. The durable rows go in as a
// single transaction so a dependency edge is never visible without its job
// row; memory-only specs are added to the in-memory partition only.
func (s *Store) InsertJobs(fullSpecs []model.FullSpec) error {
	tx, err := s.Db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range fullSpecs {
		full := &fullSpecs[i]
		if !full.Job.IsMemoryOnly {
			if err := insertJobRow(tx, &full.Job); err != nil {
				return fmt.Errorf("insert job %s: %w", full.Job.ID, err)
			}
		}
		for _, c := range full.Constraints {
			if c.IsMemoryOnly {
				continue
			}
			if _, err := tx.Exec(`insert into constraint_spec (job_spec_id, factory_key) values (?,?)`,
				c.JobSpecID, c.FactoryKey); err != nil {
				return fmt.Errorf("insert constraint for %s: %w", c.JobSpecID, err)
			}
		}
		for _, d := range full.Dependencies {
			if d.IsMemoryOnly {
				continue
			}
			if _, err := tx.Exec(`insert into dependency_spec (job_spec_id, depends_on_job_spec_id) values (?,?)`,
				d.JobSpecID, d.DependsOnJobSpecID); err != nil {
				return fmt.Errorf("insert dependency for %s: %w", d.JobSpecID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for i := range fullSpecs {
		full := &fullSpecs[i]
		spec := full.Job
		s.jobs[spec.ID] = &spec
		s.constraints[spec.ID] = append(s.constraints[spec.ID], full.Constraints...)
		s.dependencies[spec.ID] = append(s.dependencies[spec.ID], full.Dependencies...)
	}
	return nil
}

func insertJobRow(tx *sql.Tx, spec *model.JobSpec) error {
	_, err := tx.Exec(`insert into job_spec (
		id, factory_key, queue_key, create_time, last_run_attempt_time,
		next_backoff_interval, run_attempt, max_attempts, lifespan,
		serialized_data, serialized_input_data, is_running,
		global_priority, queue_priority, initial_delay
		) values (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		spec.ID, spec.FactoryKey, nullableQueue(spec.QueueKey), spec.CreateTime,
		spec.LastRunAttemptTime, spec.NextBackoffInterval, spec.RunAttempt,
		spec.MaxAttempts, spec.Lifespan, spec.SerializedData,
		spec.SerializedInputData, spec.IsRunning, spec.GlobalPriority,
		spec.QueuePriority, spec.InitialDelay)
	return err
}

func nullableQueue(queue string) any {
	if queue == "" {
		return nil
	}
	return queue
}

// Refresh reconciles the in-memory view with the database. Rows inserted by
// another process (the enqueue CLI) are picked up; durable rows that
// vanished from disk (the cancel CLI) are dropped unless currently running.
// Memory-only specs are untouched.
func (s *Store) Refresh() error {
	onDisk, err := s.readJobRows(`select id, factory_key, queue_key, create_time, last_run_attempt_time,
		next_backoff_interval, run_attempt, max_attempts, lifespan, serialized_data,
		serialized_input_data, is_running, global_priority, queue_priority, initial_delay
		from job_spec`)
	if err != nil {
		return err
	}

	diskIDs := make(map[string]struct{}, len(onDisk))
	for i := range onDisk {
		spec := onDisk[i]
		diskIDs[spec.ID] = struct{}{}
		if _, known := s.jobs[spec.ID]; known {
			continue
		}
		s.jobs[spec.ID] = &spec

		cRows, err := s.Db.Query(`select job_spec_id, factory_key from constraint_spec where job_spec_id = ?`, spec.ID)
		if err != nil {
			return err
		}
		for cRows.Next() {
			var c model.ConstraintSpec
			if err := cRows.Scan(&c.JobSpecID, &c.FactoryKey); err != nil {
				cRows.Close()
				return err
			}
			s.constraints[spec.ID] = append(s.constraints[spec.ID], c)
		}
		if err := cRows.Err(); err != nil {
			cRows.Close()
			return err
		}
		cRows.Close()

		dRows, err := s.Db.Query(`select job_spec_id, depends_on_job_spec_id from dependency_spec where job_spec_id = ?`, spec.ID)
		if err != nil {
			return err
		}
		for dRows.Next() {
			var d model.DependencySpec
			if err := dRows.Scan(&d.JobSpecID, &d.DependsOnJobSpecID); err != nil {
				dRows.Close()
				return err
			}
			s.dependencies[spec.ID] = append(s.dependencies[spec.ID], d)
		}
		if err := dRows.Err(); err != nil {
			dRows.Close()
			return err
		}
		dRows.Close()
	}

	for id, spec := range s.jobs {
		if spec.IsMemoryOnly || spec.IsRunning {
			continue
		}
		if _, ok := diskIDs[id]; !ok {
			s.dropFromMemory(id)
		}
	}
	return nil
}

func (s *Store) dropFromMemory(id string) {
	delete(s.jobs, id)
	delete(s.constraints, id)
	delete(s.dependencies, id)
	for jobID, deps := range s.dependencies {
		kept := deps[:0]
		for _, d := range deps {
			if d.DependsOnJobSpecID != id {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(s.dependencies, jobID)
		} else {
			s.dependencies[jobID] = kept
		}
	}
}
