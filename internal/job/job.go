package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// Unlimited disables a max-attempt or max-instance limit.
	Unlimited = -1

	// Immortal disables the lifespan check on a job.
	Immortal = time.Duration(-1)
)

// Parameters describes the scheduling metadata of a job: where it runs, how
// often it may be retried, and what gates its eligibility.
type Parameters struct {
	Queue                  string
	MaxAttempts            int
	Lifespan               time.Duration
	MaxInstancesForFactory int
	MaxInstancesForQueue   int
	Constraints            []string
	GlobalPriority         int
	QueuePriority          int
	InitialDelay           time.Duration
	MemoryOnly             bool
}

// DefaultParameters returns parameters for a one-shot job with no limits.
func DefaultParameters() Parameters {
	return Parameters{
		MaxAttempts:            1,
		Lifespan:               Immortal,
		MaxInstancesForFactory: Unlimited,
		MaxInstancesForQueue:   Unlimited,
	}
}

// Job is a unit of schedulable background work. Implementations embed Base
// for the engine-owned bookkeeping.
//
// Run does the actual work and returns optional output data that is handed
// to dependent jobs as their input. Cancellation is advisory: Run should
// watch ctx and bail out at its own suspension points.
type Job interface {
	JobBase() *Base
	FactoryKey() string
	Serialize() ([]byte, error)
	Run(ctx context.Context) ([]byte, error)

	// ShouldRetry reports whether the error Run returned is worth another
	// attempt, assuming attempts and lifespan remain.
	ShouldRetry(err error) bool
}

// Submitter is implemented by jobs that want a callback once they have been
// accepted into the queue. Invoked outside the engine lock.
type Submitter interface {
	OnSubmit()
}

// FailureHandler is implemented by jobs that want a callback on terminal
// failure. Invoked outside the engine lock.
type FailureHandler interface {
	OnFailure()
}

// BackoffProvider lets a job override the default exponential backoff.
type BackoffProvider interface {
	NextBackoff(attempt int) time.Duration
}

// Base carries the bookkeeping the engine needs on every job: identity,
// parameters, attempt counters and the cooperative cancellation flag.
// The zero value is not usable; construct with NewBase.
type Base struct {
	id     string
	params Parameters

	runAttempt          int
	createTime          int64
	lastRunAttemptTime  int64
	nextBackoffInterval time.Duration
	inputData           []byte

	mu        sync.Mutex
	cancelled bool
	cancelFn  context.CancelFunc
}

// NewBase assigns a fresh job ID and stores the parameters.
func NewBase(params Parameters) Base {
	return Base{id: uuid.NewString(), params: params}
}

// JobBase satisfies the Job interface for types that embed this struct. The
// accessor cannot share the embedded field's name: the field would shadow the
// promoted method and the embedding type would no longer implement Job.
func (b *Base) JobBase() *Base { return b }

func (b *Base) ID() string         { return b.id }
func (b *Base) Params() Parameters { return b.params }

func (b *Base) RunAttempt() int           { return b.runAttempt }
func (b *Base) CreateTime() int64         { return b.createTime }
func (b *Base) LastRunAttemptTime() int64 { return b.lastRunAttemptTime }
func (b *Base) InputData() []byte         { return b.inputData }

func (b *Base) NextBackoffInterval() time.Duration { return b.nextBackoffInterval }

// The setters below are used by the engine when restoring a job from its
// persisted spec. Application code has no business calling them.

func (b *Base) SetID(id string)                          { b.id = id }
func (b *Base) SetRunAttempt(n int)                      { b.runAttempt = n }
func (b *Base) SetCreateTime(ms int64)                   { b.createTime = ms }
func (b *Base) SetLastRunAttemptTime(ms int64)           { b.lastRunAttemptTime = ms }
func (b *Base) SetNextBackoffInterval(d time.Duration)   { b.nextBackoffInterval = d }
func (b *Base) SetInputData(data []byte)                 { b.inputData = data }

// Cancel flags the job as cancelled and, if it is mid-run, cancels the
// context its Run was given. Cancellation is cooperative; the job decides
// when to notice.
func (b *Base) Cancel() {
	b.mu.Lock()
	b.cancelled = true
	fn := b.cancelFn
	b.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// IsCancelled reports whether Cancel has been called.
func (b *Base) IsCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

// AttachCancel wires the run context's cancel func so a later Cancel can
// interrupt it. If the job was already cancelled the func fires immediately.
func (b *Base) AttachCancel(fn context.CancelFunc) {
	b.mu.Lock()
	b.cancelFn = fn
	already := b.cancelled
	b.mu.Unlock()

	if already {
		fn()
	}
}
