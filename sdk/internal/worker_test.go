// Copyright 2026 The Taskmill Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskmill-io/taskmill/api"
	"github.com/taskmill-io/taskmill/api/serde"
)

// memoryQueue is an in-process TaskQueueClient with the same contract as
// the JetStream one: at-least-once tokens, first outcome report wins.
type memoryQueue struct {
	mu       sync.Mutex
	outcomes map[string]*api.Outcome
	tokens   chan *TaskToken
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{
		outcomes: make(map[string]*api.Outcome),
		tokens:   make(chan *TaskToken),
	}
}

func (q *memoryQueue) Poll(ctx context.Context, includeWorkflow, includeActivity bool) (iter.Seq[*TaskToken], error) {
	return func(yield func(*TaskToken) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-q.tokens:
				if !ok {
					return
				}
				if !yield(t) {
					return
				}
			}
		}
	}, nil
}

func (q *memoryQueue) Complete(ctx context.Context, correlationID string, result []any, decisions []api.Decision) error {
	return q.record(&api.Outcome{
		CorrelationID: correlationID,
		Status:        api.OutcomeCompleted,
		Result:        result,
		Decisions:     decisions,
	})
}

func (q *memoryQueue) Fail(ctx context.Context, correlationID string, cause error) error {
	status := api.OutcomeFailed
	var te *TimeoutError
	if errors.As(cause, &te) {
		status = api.OutcomeTimedOut
	}
	return q.record(&api.Outcome{
		CorrelationID: correlationID,
		Status:        status,
		Error:         cause.Error(),
	})
}

func (q *memoryQueue) record(o *api.Outcome) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.outcomes[o.CorrelationID]; exists {
		return nil
	}
	q.outcomes[o.CorrelationID] = o
	return nil
}

func (q *memoryQueue) outcome(id string) (*api.Outcome, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	o, ok := q.outcomes[id]
	return o, ok
}

// settleCounter builds token handles that count how deliveries settle.
type settleCounter struct {
	acks, naks, terms atomic.Int64
}

func (s *settleCounter) token(task api.Task) *TaskToken {
	return &TaskToken{
		Task: task,
		Ack:  func(context.Context) error { s.acks.Add(1); return nil },
		Nak:  func(context.Context) error { s.naks.Add(1); return nil },
		Term: func(context.Context) error { s.terms.Add(1); return nil },
	}
}

func newTestWorker(t *testing.T, queue TaskQueueClient) *workerImpl {
	t.Helper()
	w, err := newWorkerWithQueue(queue, &serde.MsgpackSerde{}, &WorkerOptions{
		TaskQueue:  "test",
		MaxWorkers: 2,
	})
	if err != nil {
		t.Fatalf("newWorkerWithQueue() error = %v", err)
	}
	return w
}

func waitForState(t *testing.T, w *workerImpl, want WorkerState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("worker state = %s, want %s", w.State(), want)
}

func TestWorkerStateString(t *testing.T) {
	tests := []struct {
		state WorkerState
		want  string
	}{
		{WorkerCreated, "Created"},
		{WorkerRunning, "Running"},
		{WorkerDraining, "Draining"},
		{WorkerStopped, "Stopped"},
		{WorkerState(99), "WorkerState(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestWorkerRunRequiresRegistrations(t *testing.T) {
	w := newTestWorker(t, newMemoryQueue())
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("Run() with no registrations should error")
	}
	if w.State() != WorkerStopped {
		t.Errorf("state = %s, want Stopped", w.State())
	}
}

func TestWorkerLifecycle(t *testing.T) {
	q := newMemoryQueue()
	w := newTestWorker(t, q)
	if err := w.RegisterActivity(actDouble); err != nil {
		t.Fatalf("RegisterActivity() error = %v", err)
	}
	if w.State() != WorkerCreated {
		t.Fatalf("state = %s, want Created", w.State())
	}

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(context.Background()) }()

	waitForState(t, w, WorkerRunning)

	// A second Run on a started worker must refuse.
	if err := w.Run(context.Background()); err == nil {
		t.Error("second Run() should error")
	}
	// Registration is frozen once running.
	if err := w.RegisterActivity(actNotify); err == nil {
		t.Error("RegisterActivity() while running should error")
	}
	if err := w.RegisterWorkflow(wfSingleActivity); err == nil {
		t.Error("RegisterWorkflow() while running should error")
	}
	if err := w.RegisterShared("db", 1); err == nil {
		t.Error("RegisterShared() while running should error")
	}

	w.Drain()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Drain()")
	}
	if w.State() != WorkerStopped {
		t.Errorf("state = %s, want Stopped", w.State())
	}

	// A stopped worker is terminal.
	if err := w.Run(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Errorf("Run() after stop error = %v, want ErrShutdown", err)
	}
}

func TestOutcomeReportsAreIdempotent(t *testing.T) {
	// First report per correlation id wins, duplicates are no-ops. The
	// JetStream queue gets this from create-only KV writes; the in-memory
	// queue mirrors the contract so worker tests exercise it.
	q := newMemoryQueue()

	if err := q.Complete(context.Background(), "task-1", []any{"first"}, nil); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := q.Complete(context.Background(), "task-1", []any{"second"}, nil); err != nil {
		t.Fatalf("duplicate Complete() error = %v", err)
	}
	if err := q.Fail(context.Background(), "task-1", errors.New("late failure")); err != nil {
		t.Fatalf("conflicting Fail() error = %v", err)
	}

	outcome, ok := q.outcome("task-1")
	if !ok {
		t.Fatal("no outcome recorded")
	}
	if outcome.Status != api.OutcomeCompleted || outcome.Result[0] != "first" {
		t.Errorf("outcome = %+v, want first Completed report preserved", outcome)
	}
}

func TestWorkerExecutesActivityTask(t *testing.T) {
	q := newMemoryQueue()
	w := newTestWorker(t, q)
	name := mustName(t, actDouble)
	if err := w.RegisterActivity(actDouble, WithDefaultTimeout(5*time.Second)); err != nil {
		t.Fatalf("RegisterActivity() error = %v", err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(context.Background()) }()

	var settles settleCounter
	q.tokens <- settles.token(&api.ActivityTask{
		CorrelationID: "act-1",
		ActivityFn:    name,
		Input:         []any{21},
		Attempt:       1,
	})
	close(q.tokens)

	if err := <-runDone; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	outcome, ok := q.outcome("act-1")
	if !ok {
		t.Fatal("no outcome reported")
	}
	if outcome.Status != api.OutcomeCompleted {
		t.Errorf("status = %s, want Completed", outcome.Status)
	}
	if settles.acks.Load() != 1 || settles.naks.Load() != 0 {
		t.Errorf("settles = %d acks / %d naks, want 1/0", settles.acks.Load(), settles.naks.Load())
	}
}

func TestWorkerActivityFailureDoesNotStopRun(t *testing.T) {
	failing := func(ctx context.Context) error { return errors.New("card declined") }
	q := newMemoryQueue()
	w := newTestWorker(t, q)
	failName := mustName(t, failing)
	okName := mustName(t, actDouble)
	w.RegisterActivity(failing, WithDefaultTimeout(time.Second))
	w.RegisterActivity(actDouble, WithDefaultTimeout(time.Second))

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(context.Background()) }()

	var settles settleCounter
	q.tokens <- settles.token(&api.ActivityTask{CorrelationID: "bad", ActivityFn: failName})
	q.tokens <- settles.token(&api.ActivityTask{CorrelationID: "good", ActivityFn: okName, Input: []any{1}})
	close(q.tokens)

	if err := <-runDone; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if o, ok := q.outcome("bad"); !ok || o.Status != api.OutcomeFailed {
		t.Errorf("bad task outcome = %+v, want Failed", o)
	}
	if o, ok := q.outcome("good"); !ok || o.Status != api.OutcomeCompleted {
		t.Errorf("good task outcome = %+v, want Completed", o)
	}
	if settles.acks.Load() != 2 {
		t.Errorf("acks = %d, want 2: failures settle their delivery too", settles.acks.Load())
	}
}

func TestWorkerExecutesWorkflowTask(t *testing.T) {
	q := newMemoryQueue()
	w := newTestWorker(t, q)
	if err := w.RegisterWorkflow(wfSingleActivity); err != nil {
		t.Fatalf("RegisterWorkflow() error = %v", err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(context.Background()) }()

	var settles settleCounter
	q.tokens <- settles.token(&api.WorkflowTask{
		CorrelationID: "wf-1",
		WorkflowFn:    mustName(t, wfSingleActivity),
		Input:         []any{21},
		History: []api.HistoryEvent{
			{EventID: 1, Kind: api.WorkflowStarted, EventTimeMs: 1000},
		},
	})
	close(q.tokens)

	if err := <-runDone; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	outcome, ok := q.outcome("wf-1")
	if !ok {
		t.Fatal("no outcome reported")
	}
	if len(outcome.Decisions) != 1 || outcome.Decisions[0].Kind != api.DecisionScheduleActivity {
		t.Errorf("decisions = %+v, want one ScheduleActivity", outcome.Decisions)
	}
	if settles.acks.Load() != 1 {
		t.Errorf("acks = %d, want 1", settles.acks.Load())
	}
}

func TestWorkerNaksUnknownWorkflow(t *testing.T) {
	q := newMemoryQueue()
	w := newTestWorker(t, q)
	w.RegisterWorkflow(wfSingleActivity)

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(context.Background()) }()

	var settles settleCounter
	q.tokens <- settles.token(&api.WorkflowTask{
		CorrelationID: "wf-2",
		WorkflowFn:    "some/other/package.Workflow",
	})
	close(q.tokens)

	if err := <-runDone; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Another worker on the queue may carry the registration.
	if settles.naks.Load() != 1 || settles.acks.Load() != 0 {
		t.Errorf("settles = %d acks / %d naks, want 0/1", settles.acks.Load(), settles.naks.Load())
	}
	if _, ok := q.outcome("wf-2"); ok {
		t.Error("unknown workflow must not settle an outcome")
	}
}

func TestWorkerTermsNondeterministicWorkflow(t *testing.T) {
	q := newMemoryQueue()
	w := newTestWorker(t, q)
	w.RegisterWorkflow(wfWrongActivity)

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(context.Background()) }()

	var settles settleCounter
	q.tokens <- settles.token(&api.WorkflowTask{
		CorrelationID: "wf-3",
		WorkflowFn:    mustName(t, wfWrongActivity),
		History: []api.HistoryEvent{
			{EventID: 1, Kind: api.WorkflowStarted, EventTimeMs: 1000},
			{EventID: 2, Kind: api.ActivityScheduled, Name: mustName(t, actDouble), EventTimeMs: 1001},
		},
	})
	close(q.tokens)

	if err := <-runDone; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	outcome, ok := q.outcome("wf-3")
	if !ok || outcome.Status != api.OutcomeFailed {
		t.Fatalf("outcome = %+v, want Failed report for nondeterminism", outcome)
	}
	// Terminated, not redelivered: local retry cannot fix nondeterminism.
	if settles.terms.Load() != 1 || settles.naks.Load() != 0 {
		t.Errorf("settles = %d terms / %d naks, want 1/0", settles.terms.Load(), settles.naks.Load())
	}
}

func TestWorkerTermsPoisonPill(t *testing.T) {
	q := newMemoryQueue()
	w := newTestWorker(t, q)
	w.RegisterActivity(actDouble, WithDefaultTimeout(time.Second))

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(context.Background()) }()

	var settles settleCounter
	q.tokens <- settles.token(nil)
	close(q.tokens)

	if err := <-runDone; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if settles.terms.Load() != 1 {
		t.Errorf("terms = %d, want 1", settles.terms.Load())
	}
}

type closableGateway struct {
	closed atomic.Int64
}

func (g *closableGateway) Charge(ctx context.Context, id string) (string, error) { return id, nil }
func (g *closableGateway) Refund(ctx context.Context, id string) (string, error) { return id, nil }
func (g *closableGateway) Close() error {
	g.closed.Add(1)
	return nil
}

func TestWorkerReleasesInstancesOnceOnDrain(t *testing.T) {
	q := newMemoryQueue()
	w := newTestWorker(t, q)
	gateway := &closableGateway{}
	w.RegisterActivity(gateway.Charge, WithInstance(gateway), WithDefaultTimeout(time.Second))
	w.RegisterActivity(gateway.Refund, WithInstance(gateway), WithDefaultTimeout(time.Second))

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(context.Background()) }()
	waitForState(t, w, WorkerRunning)

	if gateway.closed.Load() != 0 {
		t.Fatal("instance closed while worker still running")
	}

	close(q.tokens)
	if err := <-runDone; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := gateway.closed.Load(); got != 1 {
		t.Errorf("instance closed %d times, want exactly 1", got)
	}
}

func TestWorkerDrainWaitsForInFlightActivity(t *testing.T) {
	q := newMemoryQueue()
	w := newTestWorker(t, q)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "settled", nil
	}
	name := mustName(t, slow)
	if err := w.RegisterActivity(slow, WithBlocking(), WithDefaultTimeout(5*time.Second)); err != nil {
		t.Fatalf("RegisterActivity() error = %v", err)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- w.Run(context.Background()) }()

	var settles settleCounter
	q.tokens <- settles.token(&api.ActivityTask{
		CorrelationID: "slow-1",
		ActivityFn:    name,
	})
	<-started

	w.Drain()

	// Draining must not abandon the running activity.
	select {
	case err := <-runDone:
		t.Fatalf("Run() returned %v with an activity still in flight", err)
	case <-time.After(30 * time.Millisecond):
	}
	if w.State() == WorkerStopped {
		t.Fatal("worker stopped with an activity still in flight")
	}
	if _, ok := q.outcome("slow-1"); ok {
		t.Fatal("outcome reported before the activity finished")
	}

	close(release)
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after the in-flight activity finished")
	}

	outcome, ok := q.outcome("slow-1")
	if !ok {
		t.Fatal("in-flight activity outcome was never reported")
	}
	if outcome.Status != api.OutcomeCompleted || outcome.Result[0] != "settled" {
		t.Errorf("outcome = %+v, want Completed with the activity result", outcome)
	}
	if settles.acks.Load() != 1 {
		t.Errorf("acks = %d, want 1", settles.acks.Load())
	}
	if w.State() != WorkerStopped {
		t.Errorf("state = %s, want Stopped", w.State())
	}
}

func TestWorkerDuplicateSharedRegistration(t *testing.T) {
	w := newTestWorker(t, newMemoryQueue())
	if err := w.RegisterShared("rates", map[string]float64{"EUR": 1.1}); err != nil {
		t.Fatalf("RegisterShared() error = %v", err)
	}
	if err := w.RegisterShared("rates", nil); !errors.Is(err, ErrDuplicateRegistration) {
		t.Errorf("duplicate RegisterShared() error = %v, want ErrDuplicateRegistration", err)
	}
}
