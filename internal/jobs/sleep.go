package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"jobctl/internal/job"
)

// SleepFactoryKey identifies sleep jobs in the persisted store.
const SleepFactoryKey = "SleepJob"

// SleepJob waits for a fixed duration and passes its input data through as
// output. Handy for exercising queues, chains and cancellation.
type SleepJob struct {
	job.Base
	Duration time.Duration
}

type sleepPayload struct {
	DurationMs int64 `json:"duration_ms"`
}

func NewSleepJob(d time.Duration, params job.Parameters) *SleepJob {
	return &SleepJob{Base: job.NewBase(params), Duration: d}
}

func (j *SleepJob) FactoryKey() string { return SleepFactoryKey }

func (j *SleepJob) Serialize() ([]byte, error) {
	return json.Marshal(sleepPayload{DurationMs: j.Duration.Milliseconds()})
}

func (j *SleepJob) Run(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(j.Duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return j.InputData(), nil
	}
}

func (j *SleepJob) ShouldRetry(error) bool { return false }

func sleepFactory(params job.Parameters, data []byte) (job.Job, error) {
	var p sleepPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode sleep payload: %w", err)
	}
	return NewSleepJob(time.Duration(p.DurationMs)*time.Millisecond, params), nil
}
