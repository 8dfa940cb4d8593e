package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"jobctl/internal/job"
)

// Runner is one unit of concurrency: it repeatedly pulls an eligible job
// from the controller and executes it. Reserved runners wait forever on
// their predicate; general runners give up after the idle timeout and
// deregister, shrinking the pool under light load.
type Runner struct {
	name        string
	controller  *Controller
	predicate   Predicate
	idleTimeout time.Duration
}

func newRunner(name string, c *Controller, predicate Predicate, idleTimeout time.Duration) *Runner {
	return &Runner{
		name:        name,
		controller:  c,
		predicate:   predicate,
		idleTimeout: idleTimeout,
	}
}

func runnerName(id int, reserved bool) string {
	if reserved {
		return fmt.Sprintf("runner-r%d", id)
	}
	return fmt.Sprintf("runner-%d", id)
}

func (r *Runner) start() {
	go r.loop()
}

func (r *Runner) loop() {
	for {
		j := r.controller.pullNextEligibleJob(r.predicate, r.name, r.idleTimeout)
		if j == nil {
			r.controller.onRunnerTerminated(r)
			return
		}
		r.execute(j)
	}
}

func (r *Runner) execute(j job.Job) {
	b := j.JobBase()
	log.Printf("%s: running JOB::%s (%s), attempt %d", r.name, b.ID(), j.FactoryKey(), b.RunAttempt()+1)

	ctx, cancel := context.WithCancel(context.Background())
	b.AttachCancel(cancel)
	output, err := j.Run(ctx)
	cancel()

	r.controller.onJobFinished(j)

	switch {
	case b.IsCancelled():
		log.Printf("%s: JOB::%s was cancelled, failing it", r.name, b.ID())
		r.failTerminally(j)
	case err == nil:
		log.Printf("%s: JOB::%s succeeded", r.name, b.ID())
		r.controller.onSuccess(j, output)
	case r.canRetry(j, err):
		backoff := r.backoffFor(j)
		log.Printf("%s: JOB::%s failed, will retry in %v: %v", r.name, b.ID(), backoff, err)
		r.controller.onRetry(j, backoff)
	default:
		log.Printf("%s: JOB::%s failed terminally: %v", r.name, b.ID(), err)
		r.failTerminally(j)
	}
}

func (r *Runner) failTerminally(j job.Job) {
	dependents := r.controller.onFailure(j)

	// Lifecycle callbacks run with the controller lock released.
	notifyFailed(j)
	for _, d := range dependents {
		notifyFailed(d)
	}
}

// canRetry checks the job's own verdict, then the attempt budget, then the
// lifespan.
func (r *Runner) canRetry(j job.Job, err error) bool {
	if !j.ShouldRetry(err) {
		return false
	}

	b := j.JobBase()
	p := b.Params()

	if p.MaxAttempts != job.Unlimited {
		maxAttempts := p.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		if b.RunAttempt()+1 >= maxAttempts {
			return false
		}
	}

	if p.Lifespan > 0 && nowMs() >= b.CreateTime()+p.Lifespan.Milliseconds() {
		return false
	}
	return true
}

func (r *Runner) backoffFor(j job.Job) time.Duration {
	attempt := j.JobBase().RunAttempt() + 1
	if bp, ok := j.(job.BackoffProvider); ok {
		if d := bp.NextBackoff(attempt); d > 0 {
			return d
		}
	}
	return job.Exponential(r.controller.backoffBase, attempt, job.MaxBackoff)
}
