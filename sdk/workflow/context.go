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

package workflow

import (
	"time"

	"github.com/taskmill-io/taskmill/sdk/internal"
)

// Context is the deterministic workflow execution context.
//
// Context extends context.Context with orchestration operations. All
// workflow side effects must go through it so replay stays deterministic.
//
// Important: workflow code must be deterministic. Do not:
//   - perform I/O directly
//   - read the real clock (use ctx.Now)
//   - generate random numbers
//   - start goroutines
//
// Use activities for all non-deterministic operations.
type Context = internal.Context

// ExecuteActivity schedules the execution of an activity function and
// returns a Future for its result. Start several activities before
// calling Get on any of them to fan out concurrently.
func ExecuteActivity(ctx Context, activityFn any, args ...any) Future {
	return ctx.ExecuteActivity(activityFn, args...)
}

// Sleep is a durable timer. It holds no thread: the workflow suspends
// and the orchestrator resumes it once the timer fires.
func Sleep(ctx Context, d time.Duration) error {
	return ctx.Sleep(d)
}

// Now returns the deterministic replay clock, never the wall clock.
func Now(ctx Context) time.Time {
	return ctx.Now()
}

// Shared returns a value from the pass-through allow-list registered on
// the worker, or nil when absent.
func Shared(ctx Context, name string) any {
	return ctx.Shared(name)
}
