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
	"errors"
	"fmt"
	"time"
)

var (
	// ErrShutdown is returned from task polling once draining completes.
	// It is an expected signal, not a failure.
	ErrShutdown = errors.New("worker is shutting down")

	// ErrExecutorCapacityExceeded is the transient backpressure signal
	// returned by TrySubmit when every pool slot is busy. Callers that can
	// queue should use Submit instead, which blocks until a slot frees up.
	ErrExecutorCapacityExceeded = errors.New("executor capacity exceeded")

	// ErrWorkflowNotRegistered is returned when a workflow task names a
	// workflow this worker never registered.
	ErrWorkflowNotRegistered = errors.New("workflow not registered")

	// ErrActivityNotRegistered is returned when an activity task names an
	// activity this worker never registered.
	ErrActivityNotRegistered = errors.New("activity not registered")

	// ErrDuplicateRegistration is returned when registering a function name twice.
	ErrDuplicateRegistration = errors.New("function already registered")

	// ErrInvalidFunction is returned when registering something that is not a function.
	ErrInvalidFunction = errors.New("invalid function: must be a function type")

	// ErrMissingTimeout is returned when an activity task carries no
	// start-to-close timeout and its definition has no default. There is
	// no implicit infinite timeout.
	ErrMissingTimeout = errors.New("activity requires a start-to-close timeout")
)

// NondeterminismError is fatal to a workflow replay: the code issued a
// command that does not match the recorded history. It is surfaced to the
// orchestrator and never retried locally.
type NondeterminismError struct {
	Expected string
	Got      string
}

func (e *NondeterminismError) Error() string {
	return fmt.Sprintf("non-deterministic workflow: history recorded %q, replay produced %q", e.Expected, e.Got)
}

// ActivityFailure wraps an error raised by an activity body. It is
// recoverable: the worker reports it and the orchestrator's retry policy
// decides what happens next.
type ActivityFailure struct {
	ActivityFn string
	Attempt    int32
	Cause      error
}

func (e *ActivityFailure) Error() string {
	return fmt.Sprintf("activity %s failed (attempt %d): %v", e.ActivityFn, e.Attempt, e.Cause)
}

func (e *ActivityFailure) Unwrap() error {
	return e.Cause
}

// TimeoutError is reported when an activity attempt exceeds its
// start-to-close deadline. Kept distinct from ActivityFailure so the
// orchestrator can apply different backoff.
type TimeoutError struct {
	ActivityFn string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("activity %s timed out after %s", e.ActivityFn, e.Timeout)
}

// RegistrationError carries the function name that failed to register.
type RegistrationError struct {
	FunctionName string
	Cause        error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register function %s: %v", e.FunctionName, e.Cause)
}

func (e *RegistrationError) Unwrap() error {
	return e.Cause
}
