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
	"log/slog"
	"reflect"
	"time"

	"github.com/taskmill-io/taskmill/api"
	"github.com/taskmill-io/taskmill/api/serde"
)

// ExecutionContext is the per-task execution scope: cancellation signal,
// deadline budget, and retry metadata. Once Cancel is called no further
// side-effecting work for the task may start; work already running only
// observes the signal at its own checkpoints.
type ExecutionContext struct {
	context.Context
	Cancel    context.CancelFunc
	Attempt   int32
	StartedAt time.Time
}

func newExecutionContext(parent context.Context, timeout time.Duration, attempt int32) *ExecutionContext {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return &ExecutionContext{
		Context:   ctx,
		Cancel:    cancel,
		Attempt:   attempt,
		StartedAt: time.Now(),
	}
}

// activityInvoker coordinates one activity task end to end: definition
// lookup, deadline enforcement, executor submission, outcome reporting.
// It never retries; a failed or timed-out attempt is reported and the
// orchestrator's retry policy decides whether a fresh task is issued.
type activityInvoker struct {
	registry      *registry
	executor      *activityExecutor
	reporter      OutcomeReporter
	typeConverter *serde.TypeConverter
	logger        *slog.Logger
}

func newActivityInvoker(reg *registry, exec *activityExecutor, rep OutcomeReporter, conv serde.BinarySerde, logger *slog.Logger) *activityInvoker {
	return &activityInvoker{
		registry:      reg,
		executor:      exec,
		reporter:      rep,
		typeConverter: serde.NewTypeConverter(conv),
		logger:        defaultLogger(logger),
	}
}

// Invoke runs one activity attempt and reports its outcome. The returned
// error reflects the reporting path only: a non-nil error means the
// outcome could not be delivered and the task should be redelivered.
func (inv *activityInvoker) Invoke(ctx context.Context, task *api.ActivityTask) error {
	def, err := inv.registry.activity(task.ActivityFn)
	if err != nil {
		inv.logger.Error("activity not found in registry", "activity", task.ActivityFn, "error", err)
		return inv.reporter.Fail(ctx, task.CorrelationID, err)
	}

	timeout := time.Duration(task.StartToCloseTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = def.DefaultTimeout
	}
	if timeout <= 0 {
		inv.logger.Error("activity task has no usable timeout", "activity", task.ActivityFn)
		return inv.reporter.Fail(ctx, task.CorrelationID, ErrMissingTimeout)
	}

	ectx := newExecutionContext(ctx, timeout, task.Attempt)
	defer ectx.Cancel()

	call := func(callCtx context.Context) ([]any, error) {
		return inv.executeActivityFunc(callCtx, def.Fn, task.Input)
	}

	fut, err := inv.executor.Submit(ectx.Context, def, call)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Deadline hit while queued for a pool slot.
			return inv.reportTimeout(ctx, task, timeout)
		}
		return inv.reporter.Fail(ctx, task.CorrelationID, err)
	}

	result, err := fut.Wait(ectx.Context)
	deadline, _ := ectx.Deadline()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		// Signal cancellation to the running body; best effort only.
		ectx.Cancel()
		return inv.reportTimeout(ctx, task, timeout)
	case time.Now().After(deadline):
		// The body settled past its deadline, whether with a result or an
		// error. The orchestrator already considers this attempt expired,
		// so never report a late settlement as anything but a timeout.
		return inv.reportTimeout(ctx, task, timeout)
	case err != nil:
		inv.logger.Warn("activity execution failed", "activity", task.ActivityFn, "attempt", task.Attempt, "error", err)
		return inv.reporter.Fail(ctx, task.CorrelationID, &ActivityFailure{
			ActivityFn: task.ActivityFn,
			Attempt:    task.Attempt,
			Cause:      err,
		})
	default:
		inv.logger.Debug("activity completed", "activity", task.ActivityFn, "attempt", task.Attempt)
		return inv.reporter.Complete(ctx, task.CorrelationID, result, nil)
	}
}

func (inv *activityInvoker) reportTimeout(ctx context.Context, task *api.ActivityTask, timeout time.Duration) error {
	inv.logger.Warn("activity timed out", "activity", task.ActivityFn, "attempt", task.Attempt, "timeout", timeout)
	return inv.reporter.Fail(ctx, task.CorrelationID, &TimeoutError{
		ActivityFn: task.ActivityFn,
		Timeout:    timeout,
	})
}

func (inv *activityInvoker) executeActivityFunc(ctx context.Context, fn any, inputs []any) (result []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activity panic: %v", r)
		}
	}()

	fnv := reflect.ValueOf(fn)
	fnt := fnv.Type()

	if fnt.NumIn() != len(inputs)+1 { // +1 for the context.Context
		return nil, fmt.Errorf("argument count mismatch: activity expects %d, got %d", fnt.NumIn()-1, len(inputs))
	}
	if fnt.In(0) != reflect.TypeOf((*context.Context)(nil)).Elem() {
		return nil, fmt.Errorf("activity function must accept context.Context as its first argument")
	}

	callArgs := make([]reflect.Value, len(inputs)+1)
	callArgs[0] = reflect.ValueOf(ctx)
	for idx, arg := range inputs {
		convertedArg, err := inv.typeConverter.ConvertToType(arg, fnt.In(idx+1))
		if err != nil {
			return nil, fmt.Errorf("failed to convert parameter %d: %v", idx, err)
		}
		callArgs[idx+1] = convertedArg
	}

	rawResults := fnv.Call(callArgs)

	if len(rawResults) > 0 {
		last := rawResults[len(rawResults)-1]
		if last.Type().Implements(reflect.TypeOf((*error)(nil)).Elem()) {
			if !last.IsNil() {
				err = last.Interface().(error)
			}
			rawResults = rawResults[:len(rawResults)-1]
		}
	}

	return reflectValuesToAny(rawResults), err
}
