package engine

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"jobctl/internal/job"
	"jobctl/internal/model"
	"jobctl/internal/storage"
)

// Predicate filters which persisted jobs a runner is willing to execute.
type Predicate func(*model.JobSpec) bool

// AnyJob accepts every job. General runners use it.
func AnyJob(*model.JobSpec) bool { return true }

// Chain is an ordered list of stages. Every job in a stage depends on every
// job of the previous stage, so stages run sequentially while jobs within a
// stage may run in parallel.
type Chain [][]job.Job

type activeJobInfo struct {
	job        job.Job
	runnerName string
	coreRunner bool
}

// Options configures the controller's runner pool and retry behavior.
type Options struct {
	MinGeneralRunners        int
	MaxGeneralRunners        int
	GeneralRunnerIdleTimeout time.Duration

	// ReservedRunnerPredicates each get a dedicated, always-running runner
	// so their job category cannot starve behind bulk work.
	ReservedRunnerPredicates []Predicate

	// BackoffBase is the exponent base for the default retry backoff.
	BackoffBase float64

	// Scheduler defaults to an in-process TimerScheduler.
	Scheduler Scheduler
}

// Controller is the orchestration brain: the single writer of the store,
// the arbiter of "what runs next", and the owner of the runner pool. All
// public mutation entry points serialize on its lock; job lifecycle
// callbacks (OnSubmit, OnFailure) are always invoked with the lock
// released, since we have no control over what caller code does in them.
type Controller struct {
	mu   sync.Mutex
	cond *sync.Cond

	store       *storage.Store
	factories   *job.Registry
	constraints *job.ConstraintRegistry
	tracker     *Tracker
	scheduler   Scheduler
	backoffBase float64

	runningJobs map[string]*activeJobInfo

	minGeneralRunners        int
	maxGeneralRunners        int
	generalRunnerIdleTimeout time.Duration
	reservedRunnerPredicates []Predicate

	runnersStarted       bool
	nextRunnerID         int
	activeGeneralRunners int
}

func NewController(store *storage.Store, factories *job.Registry, constraints *job.ConstraintRegistry, tracker *Tracker, opts Options) *Controller {
	if opts.MinGeneralRunners < 0 {
		opts.MinGeneralRunners = 0
	}
	if opts.MaxGeneralRunners < 1 {
		opts.MaxGeneralRunners = 1
	}
	if opts.MaxGeneralRunners < opts.MinGeneralRunners {
		opts.MaxGeneralRunners = opts.MinGeneralRunners
	}
	if opts.GeneralRunnerIdleTimeout <= 0 {
		opts.GeneralRunnerIdleTimeout = 30 * time.Second
	}
	if opts.BackoffBase <= 1 {
		opts.BackoffBase = job.DefaultBackoffBase
	}

	c := &Controller{
		store:                    store,
		factories:                factories,
		constraints:              constraints,
		tracker:                  tracker,
		scheduler:                opts.Scheduler,
		backoffBase:              opts.BackoffBase,
		runningJobs:              make(map[string]*activeJobInfo),
		minGeneralRunners:        opts.MinGeneralRunners,
		maxGeneralRunners:        opts.MaxGeneralRunners,
		generalRunnerIdleTimeout: opts.GeneralRunnerIdleTimeout,
		reservedRunnerPredicates: append([]Predicate(nil), opts.ReservedRunnerPredicates...),
	}
	c.cond = sync.NewCond(&c.mu)
	if c.scheduler == nil {
		c.scheduler = NewTimerScheduler(c.WakeUp)
	}
	return c
}

// Tracker exposes the state observer for callers awaiting outcomes.
func (c *Controller) Tracker() *Tracker { return c.tracker }

// Init resets stale running flags left over from a previous process. Call
// once before StartRunners.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.UpdateAllJobsToBePending(); err != nil {
		return err
	}
	c.cond.Broadcast()
	return nil
}

// WakeUp prods the dispatch loop, typically after a scheduler-requested
// delay has elapsed.
func (c *Controller) WakeUp() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cond.Broadcast()
	c.maybeScaleUpRunnersLocked(c.eligibleCountLocked)
}

// RefreshFromStore reconciles with rows written by other processes and
// wakes the dispatch loop.
func (c *Controller) RefreshFromStore() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Refresh(); err != nil {
		return err
	}
	c.cond.Broadcast()
	c.maybeScaleUpRunnersLocked(c.eligibleCountLocked)
	return nil
}

// SubmitJob enqueues a single independent job.
func (c *Controller) SubmitJob(j job.Job) error {
	return c.SubmitChain(Chain{{j}})
}

// SubmitChains enqueues several chains.
func (c *Controller) SubmitChains(chains []Chain) error {
	for _, chain := range chains {
		if err := c.SubmitChain(chain); err != nil {
			return err
		}
	}
	return nil
}

// SubmitChain enqueues a chain of dependent stages. A single-job chain that
// exceeds its factory or queue instance limit is ignored. A chain whose
// later stage carries a higher global priority than its first stage is a
// programming error and panics: the lower-priority predecessor would block
// the higher-priority stage indefinitely.
func (c *Controller) SubmitChain(chain Chain) error {
	stages := make(Chain, 0, len(chain))
	for _, stage := range chain {
		if len(stage) > 0 {
			stages = append(stages, stage)
		}
	}
	if len(stages) == 0 {
		log.Println("engine: tried to submit an empty job chain, skipping")
		return nil
	}

	if chainContainsUnsatisfiablePriorities(stages) {
		panic("engine: job chain has a later stage with a higher global priority than its first stage")
	}

	c.mu.Lock()
	if c.chainExceedsMaxInstancesLocked(stages) {
		solo := stages[0][0]
		c.tracker.OnStateChange(solo.JobBase().ID(), StateIgnored)
		log.Printf("engine: JOB::%s (%s) already at max instance count, skipping", solo.JobBase().ID(), solo.FactoryKey())
		c.mu.Unlock()
		return nil
	}
	if err := c.insertChainLocked(stages); err != nil {
		c.mu.Unlock()
		return err
	}
	c.scheduleStageLocked(stages[0])
	c.mu.Unlock()

	for _, stage := range stages {
		for _, j := range stage {
			notifySubmitted(j)
		}
	}

	c.mu.Lock()
	c.cond.Broadcast()
	c.maybeScaleUpRunnersLocked(c.eligibleCountLocked)
	c.mu.Unlock()
	return nil
}

// SubmitJobs enqueues a flat batch with no inter-dependencies. Each job is
// independently subject to max-instance filtering.
func (c *Controller) SubmitJobs(jobs []job.Job) error {
	canRun := make([]job.Job, 0, len(jobs))

	c.mu.Lock()
	for _, j := range jobs {
		if c.exceedsMaxInstancesLocked(j) {
			c.tracker.OnStateChange(j.JobBase().ID(), StateIgnored)
			log.Printf("engine: JOB::%s (%s) already at max instance count, skipping", j.JobBase().ID(), j.FactoryKey())
			continue
		}
		canRun = append(canRun, j)
	}
	if len(canRun) == 0 {
		c.mu.Unlock()
		return nil
	}

	fullSpecs := make([]model.FullSpec, 0, len(canRun))
	for _, j := range canRun {
		full, err := c.buildFullSpecLocked(j, nil)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		fullSpecs = append(fullSpecs, full)
	}
	if err := c.store.InsertJobs(fullSpecs); err != nil {
		c.mu.Unlock()
		return err
	}
	c.scheduleStageLocked(canRun)
	c.mu.Unlock()

	for _, j := range canRun {
		notifySubmitted(j)
	}

	c.mu.Lock()
	c.cond.Broadcast()
	c.maybeScaleUpRunnersLocked(c.eligibleCountLocked)
	c.mu.Unlock()
	return nil
}

// SubmitWithDependencies attaches a new job as a dependent of
// already-persisted job IDs and/or everything currently in dependsOnQueue.
// If any named dependency is known to have failed, the job is failed on the
// spot (with its OnFailure hook) instead of being stored.
func (c *Controller) SubmitWithDependencies(j job.Job, dependsOn []string, dependsOnQueue string) error {
	c.mu.Lock()
	if c.exceedsMaxInstancesLocked(j) {
		c.tracker.OnStateChange(j.JobBase().ID(), StateIgnored)
		log.Printf("engine: JOB::%s (%s) already at max instance count, skipping", j.JobBase().ID(), j.FactoryKey())
		c.mu.Unlock()
		return nil
	}

	allDependsOn := append([]string(nil), dependsOn...)
	var aliveDependsOn []string
	for _, id := range dependsOn {
		if c.store.GetJobSpec(id) != nil {
			aliveDependsOn = append(aliveDependsOn, id)
		}
	}
	if dependsOnQueue != "" {
		for _, spec := range c.store.GetJobsInQueue(dependsOnQueue) {
			allDependsOn = append(allDependsOn, spec.ID)
			aliveDependsOn = append(aliveDependsOn, spec.ID)
		}
	}

	if c.tracker.HaveAnyFailed(allDependsOn) {
		log.Printf("engine: JOB::%s depends on a job that already failed, failing it immediately", j.JobBase().ID())
		dependents := c.failLocked(j)
		c.mu.Unlock()

		notifyFailed(j)
		for _, d := range dependents {
			notifyFailed(d)
		}
		return nil
	}

	full, err := c.buildFullSpecLocked(j, aliveDependsOn)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.store.InsertJobs([]model.FullSpec{full}); err != nil {
		c.mu.Unlock()
		return err
	}
	c.scheduleStageLocked([]job.Job{j})
	c.mu.Unlock()

	notifySubmitted(j)

	c.mu.Lock()
	c.cond.Broadcast()
	c.maybeScaleUpRunnersLocked(c.eligibleCountLocked)
	c.mu.Unlock()
	return nil
}

// CancelJob cancels a job by ID. A running job is asked to stop
// cooperatively; a pending job is failed immediately along with its
// dependents.
func (c *Controller) CancelJob(id string) {
	var inactive job.Job
	var dependents []job.Job

	c.mu.Lock()
	if info, ok := c.runningJobs[id]; ok {
		log.Printf("engine: canceling JOB::%s while running", id)
		info.job.JobBase().Cancel()
	} else if spec := c.store.GetJobSpec(id); spec != nil {
		j := c.createJobLocked(spec)
		log.Printf("engine: canceling JOB::%s while inactive, failing it", id)
		j.JobBase().Cancel()
		inactive = j
		dependents = c.failLocked(j)
	} else {
		log.Printf("engine: tried to cancel JOB::%s, but it could not be found", id)
	}
	c.mu.Unlock()

	if inactive != nil {
		notifyFailed(inactive)
		for _, d := range dependents {
			notifyFailed(d)
		}
	}
}

// CancelAllInQueue cancels every job currently in the queue.
func (c *Controller) CancelAllInQueue(queue string) {
	c.mu.Lock()
	specs := c.store.GetJobsInQueue(queue)
	c.mu.Unlock()

	for _, spec := range specs {
		c.CancelJob(spec.ID)
	}
}

// AreQueuesEmpty reports whether the given queues have no outstanding jobs.
func (c *Controller) AreQueuesEmpty(queues []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.AreQueuesEmpty(queues)
}

// AreFactoriesEmpty reports whether the given factories have no outstanding
// jobs.
func (c *Controller) AreFactoriesEmpty(factoryKeys []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.AreFactoriesEmpty(factoryKeys)
}

// onRetry reschedules a retryable failure: attempt count up, backoff
// persisted, state back to pending, and a wake-up registered with the
// scheduler.
func (c *Controller) onRetry(j job.Job, backoff time.Duration) {
	if backoff <= 0 {
		panic(fmt.Sprintf("engine: invalid backoff interval %v", backoff))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := j.JobBase().ID()
	nextAttempt := j.JobBase().RunAttempt() + 1

	data, err := j.Serialize()
	if err != nil {
		log.Printf("engine: JOB::%s failed to serialize for retry, keeping stored data: %v", id, err)
		data = nil
	}
	if err := c.store.UpdateJobAfterRetry(id, nowMs(), nextAttempt, backoff.Milliseconds(), data); err != nil {
		log.Printf("engine: JOB::%s retry update failed: %v", id, err)
	}
	c.tracker.OnStateChange(id, StatePending)

	var keys []string
	for _, spec := range c.store.GetConstraintSpecs(id) {
		keys = append(keys, spec.FactoryKey)
	}

	log.Printf("engine: JOB::%s scheduling a retry in %v", id, backoff)
	c.scheduler.Schedule(backoff, keys)
	c.cond.Broadcast()
}

// onSuccess propagates the job's output data into its direct dependents,
// then deletes the producer.
func (c *Controller) onSuccess(j job.Job, outputData []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := j.JobBase().ID()

	if outputData != nil {
		var updates []model.JobSpec
		for _, dep := range c.store.GetDependencySpecsThatDependOnJob(id) {
			spec := c.store.GetJobSpec(dep.JobSpecID)
			if spec == nil {
				continue
			}
			spec.SerializedInputData = outputData
			updates = append(updates, *spec)
		}
		if len(updates) > 0 {
			if err := c.store.UpdateJobs(updates); err != nil {
				log.Printf("engine: JOB::%s failed to hand output to dependents: %v", id, err)
			}
		}
	}

	if err := c.store.DeleteJob(id); err != nil {
		log.Printf("engine: JOB::%s delete after success failed: %v", id, err)
	}
	c.tracker.OnStateChange(id, StateSuccess)
	c.cond.Broadcast()
}

// onFailure terminally fails the job and the full transitive closure of its
// dependents, deleting them in one batch. It returns the dependent jobs so
// the caller can invoke their OnFailure hooks outside the lock.
func (c *Controller) onFailure(j job.Job) []job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()

	dependents := c.failLocked(j)
	c.cond.Broadcast()
	return dependents
}

// onJobFinished clears the running bookkeeping once a runner is done with a
// job, before the outcome is reported.
func (c *Controller) onJobFinished(j job.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.runningJobs, j.JobBase().ID())
}

func (c *Controller) failLocked(j job.Job) []job.Job {
	id := j.JobBase().ID()
	ids := c.transitiveDependentsLocked(id)

	dependents := make([]job.Job, 0, len(ids))
	for _, depID := range ids {
		spec := c.store.GetJobSpec(depID)
		if spec == nil {
			continue
		}
		dependents = append(dependents, c.createJobLocked(spec))
	}

	if err := c.store.DeleteJobs(append([]string{id}, ids...)); err != nil {
		log.Printf("engine: failed to delete JOB::%s and %d dependents: %v", id, len(ids), err)
	}

	c.tracker.OnStateChange(id, StateFailure)
	for _, d := range dependents {
		c.tracker.OnStateChange(d.JobBase().ID(), StateFailure)
	}
	return dependents
}

// transitiveDependentsLocked walks the dependency graph breadth-first and
// returns every descendant of the given job.
func (c *Controller) transitiveDependentsLocked(id string) []string {
	var out []string
	seen := map[string]struct{}{id: {}}
	frontier := []string{id}

	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, dep := range c.store.GetDependencySpecsThatDependOnJob(next) {
			if _, ok := seen[dep.JobSpecID]; ok {
				continue
			}
			seen[dep.JobSpecID] = struct{}{}
			out = append(out, dep.JobSpecID)
			frontier = append(frontier, dep.JobSpecID)
		}
	}
	return out
}

// pullNextEligibleJob blocks until a job matching the predicate becomes
// eligible, then atomically marks it running and hands it out. A timeout of
// zero waits forever; otherwise nil is returned once the timeout elapses.
func (c *Controller) pullNextEligibleJob(predicate Predicate, runnerName string, timeout time.Duration) job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if j := c.nextEligibleJobLocked(predicate); j != nil {
			id := j.JobBase().ID()
			now := nowMs()
			if err := c.store.MarkJobAsRunning(id, now); err != nil {
				log.Printf("engine: JOB::%s mark running failed: %v", id, err)
			}
			j.JobBase().SetLastRunAttemptTime(now)
			c.runningJobs[id] = &activeJobInfo{job: j, runnerName: runnerName, coreRunner: timeout == 0}
			c.tracker.OnStateChange(id, StateRunning)
			return j
		}

		if timeout > 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil
			}
			timer := time.AfterFunc(remaining, c.cond.Broadcast)
			c.cond.Wait()
			timer.Stop()
		} else {
			c.cond.Wait()
		}
	}
}

func (c *Controller) nextEligibleJobLocked(predicate Predicate) job.Job {
	spec := c.store.GetNextEligibleJob(nowMs(), func(s *model.JobSpec) bool {
		if predicate != nil && !predicate(s) {
			return false
		}
		return c.constraintsMetLocked(s.ID)
	})
	if spec == nil {
		return nil
	}
	return c.createJobLocked(spec)
}

func (c *Controller) constraintsMetLocked(id string) bool {
	for _, spec := range c.store.GetConstraintSpecs(id) {
		constraint, err := c.constraints.Instantiate(spec.FactoryKey)
		if err != nil {
			log.Printf("engine: JOB::%s has unknown constraint %q, treating as unmet: %v", id, spec.FactoryKey, err)
			return false
		}
		if !constraint.IsMet() {
			return false
		}
	}
	return true
}

// createJobLocked reconstitutes an executable job from its spec. A factory
// failure means the persisted data no longer matches the code: the row and
// its transitive dependents are deleted without OnFailure callbacks, and
// the panic surfaces the corruption on whatever goroutine was pulling.
func (c *Controller) createJobLocked(spec *model.JobSpec) job.Job {
	var keys []string
	for _, cs := range c.store.GetConstraintSpecs(spec.ID) {
		keys = append(keys, cs.FactoryKey)
	}

	params := job.Parameters{
		Queue:                  spec.QueueKey,
		MaxAttempts:            spec.MaxAttempts,
		Lifespan:               msToDur(spec.Lifespan),
		MaxInstancesForFactory: job.Unlimited,
		MaxInstancesForQueue:   job.Unlimited,
		Constraints:            keys,
		GlobalPriority:         spec.GlobalPriority,
		QueuePriority:          spec.QueuePriority,
		InitialDelay:           msToDur(spec.InitialDelay),
		MemoryOnly:             spec.IsMemoryOnly,
	}

	j, err := c.factories.Instantiate(spec.FactoryKey, params, spec.SerializedData)
	if err != nil {
		ids := c.transitiveDependentsLocked(spec.ID)
		if derr := c.store.DeleteJobs(append([]string{spec.ID}, ids...)); derr != nil {
			log.Printf("engine: cleanup of corrupt JOB::%s failed: %v", spec.ID, derr)
		}
		log.Printf("engine: failed to instantiate JOB::%s (%s), deleted it and %d dependents without OnFailure, crash imminent", spec.ID, spec.FactoryKey, len(ids))
		panic(fmt.Sprintf("engine: corrupt job %s (%s): %v", spec.ID, spec.FactoryKey, err))
	}

	b := j.JobBase()
	b.SetID(spec.ID)
	b.SetRunAttempt(spec.RunAttempt)
	b.SetCreateTime(spec.CreateTime)
	b.SetLastRunAttemptTime(spec.LastRunAttemptTime)
	b.SetNextBackoffInterval(time.Duration(spec.NextBackoffInterval) * time.Millisecond)
	b.SetInputData(spec.SerializedInputData)
	return j
}

func (c *Controller) buildFullSpecLocked(j job.Job, dependsOn []string) (model.FullSpec, error) {
	b := j.JobBase()
	b.SetRunAttempt(0)
	now := nowMs()
	b.SetCreateTime(now)
	p := b.Params()

	data, err := j.Serialize()
	if err != nil {
		return model.FullSpec{}, fmt.Errorf("serialize job %s (%s): %w", b.ID(), j.FactoryKey(), err)
	}

	spec := model.JobSpec{
		ID:             b.ID(),
		FactoryKey:     j.FactoryKey(),
		QueueKey:       p.Queue,
		CreateTime:     now,
		MaxAttempts:    p.MaxAttempts,
		Lifespan:       durToMs(p.Lifespan),
		SerializedData: data,
		IsMemoryOnly:   p.MemoryOnly,
		GlobalPriority: p.GlobalPriority,
		QueuePriority:  p.QueuePriority,
		InitialDelay:   durToMs(p.InitialDelay),
	}

	constraints := make([]model.ConstraintSpec, 0, len(p.Constraints))
	for _, key := range p.Constraints {
		constraints = append(constraints, model.ConstraintSpec{JobSpecID: spec.ID, FactoryKey: key, IsMemoryOnly: p.MemoryOnly})
	}

	dependencies := make([]model.DependencySpec, 0, len(dependsOn))
	for _, depID := range dependsOn {
		memoryOnly := p.MemoryOnly
		if depSpec := c.store.GetJobSpec(depID); depSpec != nil && depSpec.IsMemoryOnly {
			memoryOnly = true
		}
		dependencies = append(dependencies, model.DependencySpec{JobSpecID: spec.ID, DependsOnJobSpecID: depID, IsMemoryOnly: memoryOnly})
	}

	return model.FullSpec{Job: spec, Constraints: constraints, Dependencies: dependencies}, nil
}

func (c *Controller) insertChainLocked(stages Chain) error {
	var fullSpecs []model.FullSpec
	var dependsOn []string

	for _, stage := range stages {
		stageIDs := make([]string, 0, len(stage))
		for _, j := range stage {
			full, err := c.buildFullSpecLocked(j, dependsOn)
			if err != nil {
				return err
			}
			fullSpecs = append(fullSpecs, full)
			stageIDs = append(stageIDs, j.JobBase().ID())
		}
		dependsOn = stageIDs
	}

	return c.store.InsertJobs(fullSpecs)
}

func (c *Controller) scheduleStageLocked(jobs []job.Job) {
	for _, j := range jobs {
		p := j.JobBase().Params()
		c.scheduler.Schedule(p.InitialDelay, p.Constraints)
	}
}

func (c *Controller) chainExceedsMaxInstancesLocked(stages Chain) bool {
	if len(stages) == 1 && len(stages[0]) == 1 {
		return c.exceedsMaxInstancesLocked(stages[0][0])
	}
	return false
}

// exceedsMaxInstancesLocked applies the factory and queue instance limits.
// Non-positive limits mean unlimited.
func (c *Controller) exceedsMaxInstancesLocked(j job.Job) bool {
	p := j.JobBase().Params()

	if p.MaxInstancesForFactory > 0 && c.store.GetJobCountForFactory(j.FactoryKey()) >= p.MaxInstancesForFactory {
		return true
	}
	if p.Queue != "" && p.MaxInstancesForQueue > 0 && c.store.GetJobCountForFactoryAndQueue(j.FactoryKey(), p.Queue) >= p.MaxInstancesForQueue {
		return true
	}
	return false
}

func chainContainsUnsatisfiablePriorities(stages Chain) bool {
	first := stages[0][0].JobBase().Params().GlobalPriority
	for _, stage := range stages {
		for _, j := range stage {
			if j.JobBase().Params().GlobalPriority > first {
				return true
			}
		}
	}
	return false
}

// StartRunners boots the pool: one dedicated runner per reserved predicate,
// the minimum number of general runners, plus whatever scale-up current
// demand warrants.
func (c *Controller) StartRunners() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runnersStarted {
		return
	}
	c.runnersStarted = true

	log.Printf("engine: starting runners (reserved: %d, minGeneral: %d, maxGeneral: %d, idleTimeout: %v)",
		len(c.reservedRunnerPredicates), c.minGeneralRunners, c.maxGeneralRunners, c.generalRunnerIdleTimeout)

	for i, predicate := range c.reservedRunnerPredicates {
		if predicate == nil {
			predicate = AnyJob
		}
		r := newRunner(runnerName(i+1, true), c, predicate, 0)
		r.start()
		log.Printf("engine: spawned reserved runner %s", r.name)
	}

	for i := 0; i < c.minGeneralRunners; i++ {
		c.spawnGeneralRunnerLocked(0)
	}

	c.maybeScaleUpRunnersLocked(c.eligibleCountLocked)
	c.cond.Broadcast()
}

// maybeScaleUpRunners spawns additional general runners to cover eligible
// demand, never exceeding the configured maximum.
func (c *Controller) maybeScaleUpRunners(eligibleJobCount func() int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeScaleUpRunnersLocked(eligibleJobCount)
}

func (c *Controller) maybeScaleUpRunnersLocked(eligibleJobCount func() int) {
	if !c.runnersStarted {
		return
	}

	eligible := eligibleJobCount()
	active := c.activeGeneralRunners
	maxPossible := c.maxGeneralRunners - active
	needed := eligible - active

	toSpawn := needed
	if maxPossible < toSpawn {
		toSpawn = maxPossible
	}
	if toSpawn <= 0 {
		return
	}

	log.Printf("engine: spawning %d runner(s) to meet demand (active: %d, eligible: %d, max: %d)",
		toSpawn, active, eligible, c.maxGeneralRunners)
	for i := 0; i < toSpawn; i++ {
		c.spawnGeneralRunnerLocked(c.generalRunnerIdleTimeout)
	}
}

func (c *Controller) spawnGeneralRunnerLocked(idleTimeout time.Duration) {
	c.nextRunnerID++
	r := newRunner(runnerName(c.nextRunnerID, false), c, AnyJob, idleTimeout)
	c.activeGeneralRunners++
	r.start()
	log.Printf("engine: spawned general runner %s (active: %d)", r.name, c.activeGeneralRunners)
}

func (c *Controller) onRunnerTerminated(r *Runner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeGeneralRunners--
	log.Printf("engine: %s terminated after idling (active: %d)", r.name, c.activeGeneralRunners)
}

func (c *Controller) eligibleCountLocked() int {
	return c.store.GetEligibleJobCount(nowMs())
}

// DebugInfo renders the queue, constraint, dependency and runner-pool state
// for diagnostic bundles.
func (c *Controller) DebugInfo() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder

	b.WriteString("-- Running Jobs\n")
	if len(c.runningJobs) == 0 {
		b.WriteString("None\n")
	} else {
		for id, info := range c.runningJobs {
			if spec := c.store.GetJobSpec(id); spec != nil {
				fmt.Fprintf(&b, "[%s] %s\n", info.runnerName, specSummary(spec))
			} else {
				fmt.Fprintf(&b, "[%s] JOB::%s (not in store)\n", info.runnerName, id)
			}
		}
	}

	b.WriteString("\n-- Jobs\n")
	jobs := c.store.GetAllJobSpecs()
	if len(jobs) == 0 {
		b.WriteString("None\n")
	} else {
		for i := range jobs {
			b.WriteString(specSummary(&jobs[i]))
			b.WriteByte('\n')
		}
	}

	b.WriteString("\n-- Constraints\n")
	constraints := c.store.DebugConstraintSpecs(1000)
	if len(constraints) == 0 {
		b.WriteString("None\n")
	} else {
		for _, cs := range constraints {
			fmt.Fprintf(&b, "JOB::%s requires %s\n", cs.JobSpecID, cs.FactoryKey)
		}
	}

	b.WriteString("\n-- Dependencies\n")
	dependencies := c.store.DebugDependencySpecs()
	if len(dependencies) == 0 {
		b.WriteString("None\n")
	} else {
		for _, d := range dependencies {
			fmt.Fprintf(&b, "JOB::%s depends on JOB::%s\n", d.JobSpecID, d.DependsOnJobSpecID)
		}
	}

	b.WriteString("\n-- Runner Pool\n")
	fmt.Fprintf(&b, "Runners started: %t\n", c.runnersStarted)
	fmt.Fprintf(&b, "General runner count: %d\n", c.activeGeneralRunners)
	fmt.Fprintf(&b, "Reserved runner count: %d\n", len(c.reservedRunnerPredicates))

	return b.String()
}

func specSummary(spec *model.JobSpec) string {
	return fmt.Sprintf("JOB::%s (%s) queue=%q attempt=%d/%d prio=%d/%d running=%t memoryOnly=%t",
		spec.ID, spec.FactoryKey, spec.QueueKey, spec.RunAttempt, spec.MaxAttempts,
		spec.GlobalPriority, spec.QueuePriority, spec.IsRunning, spec.IsMemoryOnly)
}

func notifySubmitted(j job.Job) {
	if s, ok := j.(job.Submitter); ok {
		s.OnSubmit()
	}
}

func notifyFailed(j job.Job) {
	if f, ok := j.(job.FailureHandler); ok {
		f.OnFailure()
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

// durToMs converts a duration to millis, preserving the "no limit"
// sentinel.
func durToMs(d time.Duration) int64 {
	if d < 0 {
		return model.Immortal
	}
	return d.Milliseconds()
}

func msToDur(ms int64) time.Duration {
	if ms < 0 {
		return job.Immortal
	}
	return time.Duration(ms) * time.Millisecond
}
