package storage

import (
	"path/filepath"
	"testing"
	"time"

	"jobctl/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func spec(id string) model.JobSpec {
	return model.JobSpec{
		ID:          id,
		FactoryKey:  "TestJob",
		CreateTime:  time.Now().UnixMilli(),
		MaxAttempts: 1,
		Lifespan:    model.Immortal,
	}
}

func mustInsert(t *testing.T, s *Store, fulls ...model.FullSpec) {
	t.Helper()
	if err := s.InsertJobs(fulls); err != nil {
		t.Fatalf("insert jobs: %v", err)
	}
}

func TestInsertAndGetReturnsCopies(t *testing.T) {
	s := newTestStore(t)

	js := spec("a")
	js.SerializedData = []byte("payload")
	mustInsert(t, s, model.FullSpec{
		Job:         js,
		Constraints: []model.ConstraintSpec{{JobSpecID: "a", FactoryKey: "NetworkConstraint"}},
	})

	got := s.GetJobSpec("a")
	if got == nil {
		t.Fatal("job not found after insert")
	}
	if string(got.SerializedData) != "payload" {
		t.Errorf("serialized data = %q, want %q", got.SerializedData, "payload")
	}

	// Mutating the returned copy must not leak into the store.
	got.FactoryKey = "Mutated"
	if s.GetJobSpec("a").FactoryKey != "TestJob" {
		t.Error("GetJobSpec returned a reference into the store")
	}

	constraints := s.GetConstraintSpecs("a")
	if len(constraints) != 1 || constraints[0].FactoryKey != "NetworkConstraint" {
		t.Errorf("constraints = %v", constraints)
	}
}

func TestDispatchOrderPrefersHigherPriority(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UnixMilli()

	low := spec("low")
	low.CreateTime = now - 100
	high := spec("high")
	high.CreateTime = now
	high.GlobalPriority = 1

	mustInsert(t, s, model.FullSpec{Job: low}, model.FullSpec{Job: high})

	next := s.GetNextEligibleJob(now, nil)
	if next == nil || next.ID != "high" {
		t.Fatalf("next eligible = %v, want high", next)
	}

	if err := s.MarkJobAsRunning("high", now); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	next = s.GetNextEligibleJob(now, nil)
	if next == nil || next.ID != "low" {
		t.Fatalf("next eligible = %v, want low", next)
	}
}

func TestEqualPriorityFallsBackToOldestFirst(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UnixMilli()

	older := spec("older")
	older.CreateTime = now - 100
	newer := spec("newer")
	newer.CreateTime = now

	mustInsert(t, s, model.FullSpec{Job: newer}, model.FullSpec{Job: older})

	next := s.GetNextEligibleJob(now, nil)
	if next == nil || next.ID != "older" {
		t.Fatalf("next eligible = %v, want older", next)
	}
}

func TestQueueOnlyExposesItsHead(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UnixMilli()

	first := spec("first")
	first.QueueKey = "q"
	first.CreateTime = now - 100
	second := spec("second")
	second.QueueKey = "q"
	second.CreateTime = now

	mustInsert(t, s, model.FullSpec{Job: first}, model.FullSpec{Job: second})

	if s.GetEligibleJobCount(now) != 1 {
		t.Fatalf("eligible count = %d, want 1", s.GetEligibleJobCount(now))
	}
	next := s.GetNextEligibleJob(now, nil)
	if next == nil || next.ID != "first" {
		t.Fatalf("next eligible = %v, want first", next)
	}

	// A running member makes the whole queue ineligible.
	if err := s.MarkJobAsRunning("first", now); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if next := s.GetNextEligibleJob(now, nil); next != nil {
		t.Fatalf("busy queue still handed out %s", next.ID)
	}
}

func TestQueuePriorityOrdersWithinQueue(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UnixMilli()

	back := spec("back")
	back.QueueKey = "q"
	back.CreateTime = now - 100
	front := spec("front")
	front.QueueKey = "q"
	front.CreateTime = now
	front.QueuePriority = 1

	mustInsert(t, s, model.FullSpec{Job: back}, model.FullSpec{Job: front})

	next := s.GetNextEligibleJob(now, nil)
	if next == nil || next.ID != "front" {
		t.Fatalf("next eligible = %v, want front", next)
	}
}

func TestDependenciesGateEligibility(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UnixMilli()

	parent := spec("parent")
	child := spec("child")

	mustInsert(t, s,
		model.FullSpec{Job: parent},
		model.FullSpec{
			Job:          child,
			Dependencies: []model.DependencySpec{{JobSpecID: "child", DependsOnJobSpecID: "parent"}},
		})

	deps := s.GetDependencySpecsThatDependOnJob("parent")
	if len(deps) != 1 || deps[0].JobSpecID != "child" {
		t.Fatalf("dependents of parent = %v", deps)
	}

	next := s.GetNextEligibleJob(now, nil)
	if next == nil || next.ID != "parent" {
		t.Fatalf("next eligible = %v, want parent", next)
	}

	if err := s.DeleteJob("parent"); err != nil {
		t.Fatalf("delete parent: %v", err)
	}
	next = s.GetNextEligibleJob(now, nil)
	if next == nil || next.ID != "child" {
		t.Fatalf("next eligible after parent deleted = %v, want child", next)
	}
}

func TestInitialDelayAndBackoffGateEligibility(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UnixMilli()

	delayed := spec("delayed")
	delayed.CreateTime = now
	delayed.InitialDelay = 60_000
	mustInsert(t, s, model.FullSpec{Job: delayed})

	if next := s.GetNextEligibleJob(now, nil); next != nil {
		t.Fatalf("delayed job handed out early: %s", next.ID)
	}
	if next := s.GetNextEligibleJob(now+60_000, nil); next == nil {
		t.Fatal("delayed job not handed out after its delay")
	}

	// Once attempted, backoff replaces the initial delay.
	if err := s.UpdateJobAfterRetry("delayed", now, 1, 30_000, nil); err != nil {
		t.Fatalf("update after retry: %v", err)
	}
	if next := s.GetNextEligibleJob(now+10_000, nil); next != nil {
		t.Fatalf("retrying job handed out before its backoff: %s", next.ID)
	}
	if next := s.GetNextEligibleJob(now+30_000, nil); next == nil {
		t.Fatal("retrying job not handed out after its backoff")
	}
}

func TestUpdateJobAfterRetryKeepsDataWhenNil(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UnixMilli()

	js := spec("a")
	js.SerializedData = []byte("original")
	mustInsert(t, s, model.FullSpec{Job: js})

	if err := s.UpdateJobAfterRetry("a", now, 1, 1000, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	got := s.GetJobSpec("a")
	if got.RunAttempt != 1 || got.NextBackoffInterval != 1000 || got.IsRunning {
		t.Errorf("retry fields not updated: %+v", got)
	}
	if string(got.SerializedData) != "original" {
		t.Errorf("nil payload overwrote stored data: %q", got.SerializedData)
	}

	if err := s.UpdateJobAfterRetry("a", now, 2, 2000, []byte("rewritten")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.GetJobSpec("a"); string(got.SerializedData) != "rewritten" {
		t.Errorf("payload not rewritten: %q", got.SerializedData)
	}
}

func TestDeleteJobsRemovesEdgesBothDirections(t *testing.T) {
	s := newTestStore(t)

	a := spec("a")
	b := spec("b")
	c := spec("c")
	mustInsert(t, s,
		model.FullSpec{Job: a},
		model.FullSpec{Job: b, Dependencies: []model.DependencySpec{{JobSpecID: "b", DependsOnJobSpecID: "a"}}},
		model.FullSpec{Job: c, Dependencies: []model.DependencySpec{{JobSpecID: "c", DependsOnJobSpecID: "b"}}},
	)

	if err := s.DeleteJobs([]string{"b"}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if s.GetJobSpec("b") != nil {
		t.Error("deleted job still present")
	}
	if deps := s.GetDependencySpecsThatDependOnJob("b"); len(deps) != 0 {
		t.Errorf("edges pointing at deleted job remain: %v", deps)
	}
	if deps := s.GetDependencySpecsThatDependOnJob("a"); len(deps) != 0 {
		t.Errorf("deleted job's own edges remain: %v", deps)
	}
}

func TestDurableJobsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.db")

	s1, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	durable := spec("durable")
	durable.QueueKey = "q"
	durable.SerializedData = []byte("payload")
	ephemeral := spec("ephemeral")
	ephemeral.IsMemoryOnly = true

	mustInsert(t, s1,
		model.FullSpec{
			Job:          durable,
			Constraints:  []model.ConstraintSpec{{JobSpecID: "durable", FactoryKey: "NetworkConstraint"}},
			Dependencies: []model.DependencySpec{{JobSpecID: "durable", DependsOnJobSpecID: "gone"}},
		},
		model.FullSpec{Job: ephemeral},
	)
	if err := s1.MarkJobAsRunning("durable", time.Now().UnixMilli()); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	s1.Close()

	s2, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got := s2.GetJobSpec("durable")
	if got == nil {
		t.Fatal("durable job lost across reopen")
	}
	if got.QueueKey != "q" || string(got.SerializedData) != "payload" || !got.IsRunning {
		t.Errorf("reloaded spec mismatch: %+v", got)
	}
	if len(s2.GetConstraintSpecs("durable")) != 1 {
		t.Error("constraint lost across reopen")
	}
	if len(s2.GetDependencySpecsThatDependOnJob("gone")) != 1 {
		t.Error("dependency edge lost across reopen")
	}
	if s2.GetJobSpec("ephemeral") != nil {
		t.Error("memory-only job leaked to disk")
	}

	if err := s2.UpdateAllJobsToBePending(); err != nil {
		t.Fatalf("reset running flags: %v", err)
	}
	if s2.GetJobSpec("durable").IsRunning {
		t.Error("running flag survived the pending reset")
	}
}

func TestRefreshPicksUpCrossProcessChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.db")

	worker, err := NewStore(path)
	if err != nil {
		t.Fatalf("open worker store: %v", err)
	}
	defer worker.Close()

	cli, err := NewStore(path)
	if err != nil {
		t.Fatalf("open cli store: %v", err)
	}
	defer cli.Close()

	js := spec("remote")
	mustInsert(t, cli, model.FullSpec{
		Job:         js,
		Constraints: []model.ConstraintSpec{{JobSpecID: "remote", FactoryKey: "NetworkConstraint"}},
	})

	if worker.GetJobSpec("remote") != nil {
		t.Fatal("worker saw the row before refreshing")
	}
	if err := worker.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if worker.GetJobSpec("remote") == nil {
		t.Fatal("refresh missed a row written by another process")
	}
	if len(worker.GetConstraintSpecs("remote")) != 1 {
		t.Error("refresh missed the row's constraints")
	}

	if err := cli.DeleteJob("remote"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := worker.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if worker.GetJobSpec("remote") != nil {
		t.Error("refresh kept a row deleted by another process")
	}
}

func TestCountsAndEmptiness(t *testing.T) {
	s := newTestStore(t)

	a := spec("a")
	a.QueueKey = "q1"
	b := spec("b")
	b.QueueKey = "q1"
	c := spec("c")
	c.FactoryKey = "OtherJob"

	mustInsert(t, s, model.FullSpec{Job: a}, model.FullSpec{Job: b}, model.FullSpec{Job: c})

	if got := s.GetJobCountForFactory("TestJob"); got != 2 {
		t.Errorf("factory count = %d, want 2", got)
	}
	if got := s.GetJobCountForFactoryAndQueue("TestJob", "q1"); got != 2 {
		t.Errorf("factory+queue count = %d, want 2", got)
	}
	if s.AreQueuesEmpty([]string{"q1"}) {
		t.Error("q1 reported empty")
	}
	if !s.AreQueuesEmpty([]string{"q2"}) {
		t.Error("q2 reported non-empty")
	}
	if s.AreFactoriesEmpty([]string{"OtherJob"}) {
		t.Error("OtherJob reported empty")
	}
	if byFactory := s.CountsByFactory(); byFactory["TestJob"] != 2 || byFactory["OtherJob"] != 1 {
		t.Errorf("counts by factory = %v", byFactory)
	}
	if byQueue := s.CountsByQueue(); byQueue["q1"] != 2 || byQueue[""] != 1 {
		t.Errorf("counts by queue = %v", byQueue)
	}
}
