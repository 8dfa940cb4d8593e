package storage

import (
	"sort"

	"jobctl/internal/model"
)

// GetJobSpec returns a copy of the spec with the given ID, or nil.
func (s *Store) GetJobSpec(id string) *model.JobSpec {
	spec, ok := s.jobs[id]
	if !ok {
		return nil
	}
	out := *spec
	return &out
}

// GetAllJobSpecs returns copies of every spec, oldest first.
func (s *Store) GetAllJobSpecs() []model.JobSpec {
	out := make([]model.JobSpec, 0, len(s.jobs))
	for _, spec := range s.jobs {
		out = append(out, *spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateTime < out[j].CreateTime })
	return out
}

// GetJobsInQueue returns the jobs sharing a queue key in queue order.
func (s *Store) GetJobsInQueue(queue string) []model.JobSpec {
	var out []model.JobSpec
	for _, spec := range s.jobs {
		if spec.QueueKey == queue && queue != "" {
			out = append(out, *spec)
		}
	}
	sortQueueOrder(out)
	return out
}

func (s *Store) GetConstraintSpecs(id string) []model.ConstraintSpec {
	return append([]model.ConstraintSpec(nil), s.constraints[id]...)
}

// GetDependencySpecsThatDependOnJob returns the edges whose target is the
// given job, i.e. the direct dependents.
func (s *Store) GetDependencySpecsThatDependOnJob(id string) []model.DependencySpec {
	var out []model.DependencySpec
	for _, deps := range s.dependencies {
		for _, d := range deps {
			if d.DependsOnJobSpecID == id {
				out = append(out, d)
			}
		}
	}
	return out
}

// GetNextEligibleJob returns the highest-priority job that is past its
// delay, has no unresolved dependencies, is not running, respects queue
// serialization, and passes the supplied predicate. Ordering: global
// priority desc, queue priority desc, create time asc.
func (s *Store) GetNextEligibleJob(nowMs int64, predicate func(*model.JobSpec) bool) *model.JobSpec {
	for _, spec := range s.eligibleCandidates(nowMs) {
		if predicate != nil && !predicate(spec) {
			continue
		}
		out := *spec
		return &out
	}
	return nil
}

// GetEligibleJobCount counts the jobs that would be handed out right now,
// ignoring constraints. Used to decide how many runners to spawn.
func (s *Store) GetEligibleJobCount(nowMs int64) int {
	return len(s.eligibleCandidates(nowMs))
}

// eligibleCandidates applies every store-level eligibility rule and returns
// the survivors in dispatch order. Within a queue only the head job is a
// candidate, and a queue with a running job is skipped entirely, which is
// what serializes chains sharing a queue key.
func (s *Store) eligibleCandidates(nowMs int64) []*model.JobSpec {
	byQueue := make(map[string][]*model.JobSpec)
	var candidates []*model.JobSpec

	for _, spec := range s.jobs {
		if spec.QueueKey == "" {
			candidates = append(candidates, spec)
			continue
		}
		byQueue[spec.QueueKey] = append(byQueue[spec.QueueKey], spec)
	}

	for _, queued := range byQueue {
		busy := false
		for _, spec := range queued {
			if spec.IsRunning {
				busy = true
				break
			}
		}
		if busy {
			continue
		}
		sort.Slice(queued, func(i, j int) bool { return queueLess(queued[i], queued[j]) })
		candidates = append(candidates, queued[0])
	}

	eligible := candidates[:0]
	for _, spec := range candidates {
		if spec.IsRunning {
			continue
		}
		if spec.EligibleAt() > nowMs {
			continue
		}
		if len(s.dependencies[spec.ID]) > 0 {
			continue
		}
		eligible = append(eligible, spec)
	}

	sort.Slice(eligible, func(i, j int) bool { return dispatchLess(eligible[i], eligible[j]) })
	return eligible
}

func queueLess(a, b *model.JobSpec) bool {
	if a.QueuePriority != b.QueuePriority {
		return a.QueuePriority > b.QueuePriority
	}
	return a.CreateTime < b.CreateTime
}

func dispatchLess(a, b *model.JobSpec) bool {
	if a.GlobalPriority != b.GlobalPriority {
		return a.GlobalPriority > b.GlobalPriority
	}
	return queueLess(a, b)
}

func sortQueueOrder(specs []model.JobSpec) {
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].QueuePriority != specs[j].QueuePriority {
			return specs[i].QueuePriority > specs[j].QueuePriority
		}
		return specs[i].CreateTime < specs[j].CreateTime
	})
}

// GetJobCountForFactory counts outstanding jobs of one factory.
func (s *Store) GetJobCountForFactory(factoryKey string) int {
	count := 0
	for _, spec := range s.jobs {
		if spec.FactoryKey == factoryKey {
			count++
		}
	}
	return count
}

// GetJobCountForFactoryAndQueue counts outstanding jobs of one factory
// within one queue.
func (s *Store) GetJobCountForFactoryAndQueue(factoryKey, queue string) int {
	count := 0
	for _, spec := range s.jobs {
		if spec.FactoryKey == factoryKey && spec.QueueKey == queue {
			count++
		}
	}
	return count
}

// AreQueuesEmpty reports whether none of the given queues has an
// outstanding job.
func (s *Store) AreQueuesEmpty(queues []string) bool {
	lookup := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		lookup[q] = struct{}{}
	}
	for _, spec := range s.jobs {
		if _, ok := lookup[spec.QueueKey]; ok {
			return false
		}
	}
	return true
}

// AreFactoriesEmpty reports whether none of the given factories has an
// outstanding job.
func (s *Store) AreFactoriesEmpty(factoryKeys []string) bool {
	lookup := make(map[string]struct{}, len(factoryKeys))
	for _, k := range factoryKeys {
		lookup[k] = struct{}{}
	}
	for _, spec := range s.jobs {
		if _, ok := lookup[spec.FactoryKey]; ok {
			return false
		}
	}
	return true
}

// CountsByFactory returns factory key -> outstanding job count.
func (s *Store) CountsByFactory() map[string]int {
	out := make(map[string]int)
	for _, spec := range s.jobs {
		out[spec.FactoryKey]++
	}
	return out
}

// CountsByQueue returns queue key -> outstanding job count. Jobs without a
// queue are grouped under the empty key.
func (s *Store) CountsByQueue() map[string]int {
	out := make(map[string]int)
	for _, spec := range s.jobs {
		out[spec.QueueKey]++
	}
	return out
}

// DebugConstraintSpecs returns up to limit constraint specs for diagnostics.
func (s *Store) DebugConstraintSpecs(limit int) []model.ConstraintSpec {
	var out []model.ConstraintSpec
	for _, specs := range s.constraints {
		for _, c := range specs {
			if len(out) >= limit {
				return out
			}
			out = append(out, c)
		}
	}
	return out
}

// DebugDependencySpecs returns every dependency edge for diagnostics.
func (s *Store) DebugDependencySpecs() []model.DependencySpec {
	var out []model.DependencySpec
	for _, deps := range s.dependencies {
		out = append(out, deps...)
	}
	return out
}
