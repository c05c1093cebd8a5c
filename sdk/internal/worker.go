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
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/errgroup"

	"github.com/taskmill-io/taskmill/api"
	"github.com/taskmill-io/taskmill/api/serde"
)

// WorkerState tracks the worker lifecycle:
// Created -> Running -> Draining -> Stopped.
type WorkerState int32

const (
	WorkerCreated WorkerState = iota
	WorkerRunning
	WorkerDraining
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerCreated:
		return "Created"
	case WorkerRunning:
		return "Running"
	case WorkerDraining:
		return "Draining"
	case WorkerStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

// WorkerOptions configure a worker before it starts.
type WorkerOptions struct {
	// TaskQueue is the name of the queue this worker binds. Required.
	TaskQueue string

	// ExecutorKind selects the pool flavor for blocking activities.
	ExecutorKind ExecutorKind

	// MaxWorkers caps concurrently running blocking activities.
	MaxWorkers int64

	// Serde overrides the payload serializer. Defaults to MessagePack.
	Serde serde.BinarySerde

	Logger *slog.Logger
}

type workerImpl struct {
	queue     TaskQueueClient
	converter serde.BinarySerde

	registry    *registry
	passthrough map[string]any

	executor *activityExecutor
	invoker  *activityInvoker

	logger *slog.Logger

	state     atomic.Int32
	drainOnce sync.Once
	drainCh   chan struct{}
	closeOnce sync.Once
}

// NewWorker builds a worker bound to the given NATS connection's task
// queue. Registration happens before Run; after Run starts the
// registries are frozen.
func NewWorker(conn *Conn, opts *WorkerOptions) (*workerImpl, error) {
	if opts == nil || opts.TaskQueue == "" {
		return nil, fmt.Errorf("worker options must name a task queue")
	}

	conv := opts.Serde
	if conv == nil {
		conv = &serde.MsgpackSerde{}
	}

	queue, err := newNATSTaskQueue(conn, opts.TaskQueue, conv)
	if err != nil {
		return nil, err
	}
	return newWorkerWithQueue(queue, conv, opts)
}

// newWorkerWithQueue wires a worker onto any TaskQueueClient. Tests use
// this with an in-memory queue.
func newWorkerWithQueue(queue TaskQueueClient, conv serde.BinarySerde, opts *WorkerOptions) (*workerImpl, error) {
	logger := defaultLogger(opts.Logger)

	reg := newRegistry()
	exec := newActivityExecutor(opts.ExecutorKind, opts.MaxWorkers, logger)

	return &workerImpl{
		queue:       queue,
		converter:   conv,
		registry:    reg,
		passthrough: make(map[string]any),
		executor:    exec,
		invoker:     newActivityInvoker(reg, exec, queue, conv, logger),
		logger:      logger,
		drainCh:     make(chan struct{}),
	}, nil
}

func (w *workerImpl) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *workerImpl) RegisterWorkflow(fn any, options ...WorkflowRegisterOption) error {
	if w.State() != WorkerCreated {
		return fmt.Errorf("cannot register workflows in state %s", w.State())
	}

	fnName, err := extractFullFunctionName(fn)
	if err != nil {
		return err
	}

	def := &WorkflowDefinition{Name: fnName, Fn: fn}
	for _, opt := range options {
		opt(def)
	}
	return w.registry.addWorkflow(def)
}

func (w *workerImpl) RegisterActivity(fn any, options ...ActivityRegisterOption) error {
	if w.State() != WorkerCreated {
		return fmt.Errorf("cannot register activities in state %s", w.State())
	}

	fnName, err := extractFullFunctionName(fn)
	if err != nil {
		return err
	}

	def := &ActivityDefinition{Name: fnName, Fn: fn}
	for _, opt := range options {
		opt(def)
	}
	return w.registry.addActivity(def)
}

// RegisterShared adds a named value to the sandbox pass-through
// allow-list. The value is injected by reference into every workflow
// replay arena instead of being rebuilt per run, so it must be pure and
// side-effect free.
func (w *workerImpl) RegisterShared(name string, value any) error {
	if w.State() != WorkerCreated {
		return fmt.Errorf("cannot register shared values in state %s", w.State())
	}
	if _, ok := w.passthrough[name]; ok {
		return &RegistrationError{FunctionName: name, Cause: ErrDuplicateRegistration}
	}
	w.passthrough[name] = value
	return nil
}

// Drain moves a running worker into Draining: polling stops, in-flight
// tasks finish, then the worker stops.
func (w *workerImpl) Drain() {
	w.drainOnce.Do(func() {
		if w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerDraining)) {
			w.logger.Info("worker draining")
		}
		close(w.drainCh)
	})
}

// Run starts the dispatch loop and blocks until the context is canceled
// or Drain is called, then waits for in-flight tasks and releases shared
// resources. A single task's failure never brings Run down; only startup
// binding failures do.
func (w *workerImpl) Run(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(WorkerCreated), int32(WorkerRunning)) {
		if s := w.State(); s == WorkerDraining || s == WorkerStopped {
			return ErrShutdown
		}
		return fmt.Errorf("worker already started (state %s)", w.State())
	}

	workflowTasksEnabled := w.registry.workflowCount() > 0
	activityTasksEnabled := w.registry.activityCount() > 0
	if !workflowTasksEnabled && !activityTasksEnabled {
		w.state.Store(int32(WorkerStopped))
		return fmt.Errorf("worker has no registered workflows or activities")
	}

	runner := newSandboxedRunner(w.converter, w.passthrough, w.logger)

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	go func() {
		select {
		case <-w.drainCh:
			cancelPoll()
		case <-pollCtx.Done():
		}
	}()

	tasks, err := w.queue.Poll(pollCtx, workflowTasksEnabled, activityTasksEnabled)
	if err != nil {
		w.state.Store(int32(WorkerStopped))
		return fmt.Errorf("failed to bind task queue: %w", err)
	}
	w.logger.Info("worker running", "workflows", w.registry.workflowCount(), "activities", w.registry.activityCount())

	g := new(errgroup.Group)
	for token := range tasks {
		if w.State() != WorkerRunning {
			// Drain raced a late delivery: hand the task back.
			token.Nak(ctx)
			continue
		}
		g.Go(func() error {
			w.dispatch(ctx, runner, token)
			return nil
		})
	}

	// Polling has ended; no new work is accepted past this point.
	w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerDraining))
	w.logger.Info("worker draining, waiting for in-flight tasks")

	g.Wait()
	w.executor.Drain()
	w.releaseResources()

	w.state.Store(int32(WorkerStopped))
	w.logger.Info("worker stopped")
	return nil
}

// dispatch routes one task by variant. Outcomes are isolated: errors are
// reported per task and acknowledged, never propagated into the loop.
func (w *workerImpl) dispatch(ctx context.Context, runner *sandboxedRunner, token *TaskToken) {
	dispatchID := uuid.Must(uuid.NewV7())

	switch task := token.Task.(type) {
	case *api.WorkflowTask:
		w.logger.Debug("dispatching workflow task", "dispatch_id", dispatchID, "correlation_id", task.CorrelationID)
		w.dispatchWorkflow(ctx, runner, token, task)
	case *api.ActivityTask:
		w.logger.Debug("dispatching activity task", "dispatch_id", dispatchID, "correlation_id", task.CorrelationID)
		w.dispatchActivity(ctx, token, task)
	default:
		// poison pill
		w.logger.Warn("received unknown task variant, terminating task", "dispatch_id", dispatchID)
		token.Term(ctx)
	}
}

func (w *workerImpl) dispatchWorkflow(ctx context.Context, runner *sandboxedRunner, token *TaskToken, task *api.WorkflowTask) {
	def, err := w.registry.workflow(task.WorkflowFn)
	if err != nil {
		// Another worker on this queue may carry the registration.
		w.logger.Error("workflow not found in registry, sending NAK", "workflow", task.WorkflowFn)
		token.Nak(ctx)
		return
	}

	decisions, err := runner.Run(ctx, def, task.History, task.Input)
	if err != nil {
		var ndErr *NondeterminismError
		if errors.As(err, &ndErr) {
			// Fatal to this workflow task: surface it and terminate the
			// delivery so the queue stops redelivering. The orchestrator
			// issues a fresh task only after operator intervention.
			w.logger.Error("workflow replay non-deterministic", "workflow", task.WorkflowFn, "error", err)
			if repErr := w.queue.Fail(ctx, task.CorrelationID, err); repErr != nil {
				w.logger.Error("failed to report nondeterminism", "workflow", task.WorkflowFn, "error", repErr)
			}
			token.Term(ctx)
			return
		}
		w.logger.Error("workflow task failed, sending NAK", "workflow", task.WorkflowFn, "error", err)
		token.Nak(ctx)
		return
	}

	if err := w.queue.Complete(ctx, task.CorrelationID, nil, decisions); err != nil {
		w.logger.Error("failed to report workflow decisions, sending NAK", "workflow", task.WorkflowFn, "error", err)
		token.Nak(ctx)
		return
	}
	w.logger.Debug("workflow task succeeded, sending ACK", "workflow", task.WorkflowFn, "decisions", len(decisions))
	token.Ack(ctx)
}

func (w *workerImpl) dispatchActivity(ctx context.Context, token *TaskToken, task *api.ActivityTask) {
	if err := w.invoker.Invoke(ctx, task); err != nil {
		w.logger.Error("activity outcome report failed, sending NAK", "activity", task.ActivityFn, "error", err)
		token.Nak(ctx)
		return
	}
	w.logger.Debug("activity task settled, sending ACK", "activity", task.ActivityFn)
	token.Ack(ctx)
}

// releaseResources closes bound activity instances exactly once. Shared
// resources are created at startup and live for the worker's lifetime;
// this is the only place they are released.
func (w *workerImpl) releaseResources() {
	w.closeOnce.Do(func() {
		for _, instance := range w.registry.instances() {
			closer, ok := instance.(io.Closer)
			if !ok {
				continue
			}
			if err := closer.Close(); err != nil {
				w.logger.Warn("failed to close activity instance", "error", err)
			}
		}
	})
}
