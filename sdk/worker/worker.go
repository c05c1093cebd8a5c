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

package worker

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/taskmill-io/taskmill/sdk/internal"
)

// Worker is the runtime that executes workflow and activity tasks.
//
// A worker binds a task queue, polls it for tasks, executes registered
// workflow and activity code, and reports outcomes back to the
// orchestrator. Workflows and activities must be registered before Run.
//
// Example:
//
//	w, err := worker.NewWorker(nc, &worker.Options{
//		TaskQueue:  "payments",
//		MaxWorkers: 8,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	w.RegisterWorkflow(SettleOrder)
//	w.RegisterActivity(ChargeCard, worker.WithBlocking(), worker.WithDefaultTimeout(30*time.Second))
//
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
type Worker interface {
	Registry

	// Run starts the worker and blocks until the context is canceled or
	// Drain is called, then finishes in-flight tasks before returning.
	Run(ctx context.Context) error

	// Drain stops polling; in-flight tasks are allowed to finish.
	Drain()

	// State reports the current lifecycle state.
	State() State
}

// Registry combines workflow and activity registration interfaces.
type Registry interface {
	WorkflowRegistry
	ActivityRegistry

	// RegisterShared adds a named, side-effect-free value to the
	// workflow sandbox pass-through allow-list.
	RegisterShared(name string, value any) error
}

// WorkflowRegistry registers workflow functions. The workflow signature
// is: func(workflow.Context, ...args) (result, error).
type WorkflowRegistry = internal.WorkflowRegistry

// ActivityRegistry registers activity functions. The activity signature
// is: func(context.Context, ...args) (result, error).
type ActivityRegistry = internal.ActivityRegistry

// Options contains configuration for creating a new Worker.
type Options = internal.WorkerOptions

// State is the worker lifecycle state: Created, Running, Draining, Stopped.
type State = internal.WorkerState

const (
	StateCreated  = internal.WorkerCreated
	StateRunning  = internal.WorkerRunning
	StateDraining = internal.WorkerDraining
	StateStopped  = internal.WorkerStopped
)

// ExecutorKind selects the pool flavor for blocking activities.
type ExecutorKind = internal.ExecutorKind

const (
	ExecutorThread  = internal.ExecutorKindThread
	ExecutorProcess = internal.ExecutorKindProcess
)

// WithBlocking marks an activity as blocking so it is dispatched to the
// bounded executor pool instead of running inline on the dispatch loop.
var WithBlocking = internal.WithBlocking

// WithDefaultTimeout sets the activity's start-to-close timeout used
// when the task carries none.
var WithDefaultTimeout = internal.WithDefaultTimeout

// WithInstance records the bound object owning the activity's shared
// resources; it is closed once during worker drain if it implements
// io.Closer.
var WithInstance = internal.WithInstance

// NewWorker creates a Worker on an established NATS connection.
func NewWorker(nc *nats.Conn, options *Options) (Worker, error) {
	conn, err := internal.WrapExisting(nc)
	if err != nil {
		return nil, err
	}
	if options != nil && options.Logger != nil {
		conn.SetLogger(options.Logger)
	}
	return internal.NewWorker(conn, options)
}
