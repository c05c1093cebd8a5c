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
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ExecutorKind selects how the bounded pool maps blocking activity bodies
// onto the OS. Go runs both kinds as goroutine pools; the distinction is
// kept as configuration surface for operators used to thread/process pool
// wording.
type ExecutorKind string

const (
	ExecutorKindThread  ExecutorKind = "thread"
	ExecutorKindProcess ExecutorKind = "process"
)

// callFunc is one activity attempt, already bound to its arguments.
type callFunc func(ctx context.Context) ([]any, error)

// executionStrategy is how an activity body runs: inline on the dispatch
// goroutine, or handed to the bounded pool. Selected per activity by its
// Blocking flag at dispatch time; there is no global mode.
type executionStrategy interface {
	submit(ctx context.Context, call callFunc) (*resultFuture, error)
}

// ExecutorStats is a point-in-time snapshot of pool pressure.
type ExecutorStats struct {
	Running int64
	Queued  int64
}

// activityExecutor owns both strategies and routes each submission by the
// definition's Blocking flag.
type activityExecutor struct {
	coop *cooperativeStrategy
	pool *poolStrategy
}

func newActivityExecutor(kind ExecutorKind, maxWorkers int64, logger *slog.Logger) *activityExecutor {
	return &activityExecutor{
		coop: &cooperativeStrategy{},
		pool: newPoolStrategy(kind, maxWorkers, logger),
	}
}

// Submit runs def's body through the strategy its Blocking flag selects.
// For pooled work, submission queues under backpressure when every slot
// is busy; it fails only when ctx expires while waiting.
func (e *activityExecutor) Submit(ctx context.Context, def *ActivityDefinition, call callFunc) (*resultFuture, error) {
	if def.Blocking {
		return e.pool.submit(ctx, call)
	}
	return e.coop.submit(ctx, call)
}

// TrySubmit is the non-queueing variant: a full pool returns
// ErrExecutorCapacityExceeded immediately. The signal is transient
// backpressure, not a failure.
func (e *activityExecutor) TrySubmit(ctx context.Context, def *ActivityDefinition, call callFunc) (*resultFuture, error) {
	if def.Blocking {
		return e.pool.trySubmit(ctx, call)
	}
	return e.coop.submit(ctx, call)
}

func (e *activityExecutor) Stats() ExecutorStats {
	return ExecutorStats{
		Running: e.pool.running.Load(),
		Queued:  e.pool.queued.Load(),
	}
}

// Drain waits for every in-flight pooled execution to finish.
func (e *activityExecutor) Drain() {
	e.pool.wg.Wait()
}

// cooperativeStrategy runs the body inline on the caller's goroutine, the
// same one driving the dispatch loop for that task. The body must not
// block; a blocking call here stalls every sibling task sharing the
// scheduler. That hazard is exactly why blocking activities carry the
// Blocking flag and go through the pool instead.
type cooperativeStrategy struct{}

func (s *cooperativeStrategy) submit(ctx context.Context, call callFunc) (*resultFuture, error) {
	fut := newResultFuture()
	result, err := call(ctx)
	fut.resolve(result, err)
	return fut, nil
}

// poolStrategy is the bounded pool for blocking bodies: at most
// maxWorkers run concurrently, excess submissions queue on the semaphore
// rather than spawning unbounded goroutines. This is the only place true
// parallel execution happens.
type poolStrategy struct {
	kind    ExecutorKind
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	running atomic.Int64
	queued  atomic.Int64
	logger  *slog.Logger
}

func newPoolStrategy(kind ExecutorKind, maxWorkers int64, logger *slog.Logger) *poolStrategy {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &poolStrategy{
		kind:   kind,
		sem:    semaphore.NewWeighted(maxWorkers),
		logger: defaultLogger(logger),
	}
}

func (s *poolStrategy) submit(ctx context.Context, call callFunc) (*resultFuture, error) {
	s.queued.Add(1)
	err := s.sem.Acquire(ctx, 1)
	s.queued.Add(-1)
	if err != nil {
		return nil, err
	}
	return s.launch(ctx, call), nil
}

func (s *poolStrategy) trySubmit(ctx context.Context, call callFunc) (*resultFuture, error) {
	if !s.sem.TryAcquire(1) {
		return nil, ErrExecutorCapacityExceeded
	}
	return s.launch(ctx, call), nil
}

func (s *poolStrategy) launch(ctx context.Context, call callFunc) *resultFuture {
	fut := newResultFuture()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)

		// Cancellation is cooperative: once set, no further work for the
		// task may start. A body already running can only observe it at
		// its own checkpoints; a blocking syscall cannot be interrupted.
		if err := ctx.Err(); err != nil {
			fut.resolve(nil, err)
			return
		}

		s.running.Add(1)
		result, err := call(ctx)
		s.running.Add(-1)
		fut.resolve(result, err)
	}()
	return fut
}
