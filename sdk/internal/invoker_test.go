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
	"sync"
	"testing"
	"time"

	"github.com/taskmill-io/taskmill/api"
	"github.com/taskmill-io/taskmill/api/serde"
)

// recordingReporter captures outcome reports for assertions.
type recordingReporter struct {
	mu        sync.Mutex
	completed map[string][]any
	failed    map[string]error
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{
		completed: make(map[string][]any),
		failed:    make(map[string]error),
	}
}

func (r *recordingReporter) Complete(ctx context.Context, correlationID string, result []any, decisions []api.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[correlationID] = result
	return nil
}

func (r *recordingReporter) Fail(ctx context.Context, correlationID string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[correlationID] = cause
	return nil
}

func (r *recordingReporter) completedResult(id string) ([]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.completed[id]
	return res, ok
}

func (r *recordingReporter) failure(id string) (error, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	err, ok := r.failed[id]
	return err, ok
}

func newTestInvoker(t *testing.T, reg *registry) (*activityInvoker, *recordingReporter) {
	t.Helper()
	rep := newRecordingReporter()
	exec := newActivityExecutor(ExecutorKindThread, 4, nil)
	return newActivityInvoker(reg, exec, rep, &serde.MsgpackSerde{}, nil), rep
}

func TestInvokeReportsCompletion(t *testing.T) {
	reg := newRegistry()
	name := mustName(t, actDouble)
	reg.addActivity(&ActivityDefinition{Name: name, Fn: actDouble})

	inv, rep := newTestInvoker(t, reg)
	err := inv.Invoke(context.Background(), &api.ActivityTask{
		CorrelationID:         "act-1",
		ActivityFn:            name,
		Input:                 []any{21},
		Attempt:               1,
		StartToCloseTimeoutMs: 5000,
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	result, ok := rep.completedResult("act-1")
	if !ok {
		t.Fatal("no completion reported")
	}
	if len(result) != 1 || result[0] != 42 {
		t.Errorf("result = %v, want [42]", result)
	}
}

func TestInvokeReportsActivityFailure(t *testing.T) {
	failing := func(ctx context.Context) error { return errors.New("card declined") }
	reg := newRegistry()
	name := mustName(t, failing)
	reg.addActivity(&ActivityDefinition{Name: name, Fn: failing})

	inv, rep := newTestInvoker(t, reg)
	err := inv.Invoke(context.Background(), &api.ActivityTask{
		CorrelationID:         "act-2",
		ActivityFn:            name,
		Attempt:               2,
		StartToCloseTimeoutMs: 5000,
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	cause, ok := rep.failure("act-2")
	if !ok {
		t.Fatal("no failure reported")
	}
	var af *ActivityFailure
	if !errors.As(cause, &af) {
		t.Fatalf("failure = %v, want *ActivityFailure", cause)
	}
	if af.Attempt != 2 {
		t.Errorf("failure attempt = %d, want 2", af.Attempt)
	}
}

func TestInvokeReportsPanicAsFailure(t *testing.T) {
	panicking := func(ctx context.Context) error { panic("corrupted state") }
	reg := newRegistry()
	name := mustName(t, panicking)
	reg.addActivity(&ActivityDefinition{Name: name, Fn: panicking})

	inv, rep := newTestInvoker(t, reg)
	if err := inv.Invoke(context.Background(), &api.ActivityTask{
		CorrelationID:         "act-3",
		ActivityFn:            name,
		StartToCloseTimeoutMs: 5000,
	}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if _, ok := rep.failure("act-3"); !ok {
		t.Fatal("activity panic was not reported as a failure")
	}
}

func TestInvokeTimesOutBlockingActivity(t *testing.T) {
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	reg := newRegistry()
	name := mustName(t, slow)
	reg.addActivity(&ActivityDefinition{Name: name, Fn: slow, Blocking: true})

	inv, rep := newTestInvoker(t, reg)
	if err := inv.Invoke(context.Background(), &api.ActivityTask{
		CorrelationID:         "act-4",
		ActivityFn:            name,
		StartToCloseTimeoutMs: 20,
	}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	cause, ok := rep.failure("act-4")
	if !ok {
		t.Fatal("no timeout reported")
	}
	var te *TimeoutError
	if !errors.As(cause, &te) {
		t.Errorf("failure = %v, want *TimeoutError", cause)
	}
}

func TestInvokeNeverReportsLateSuccess(t *testing.T) {
	// The body ignores cancellation and finishes after its deadline; the
	// attempt must still be reported as timed out, never completed.
	stubborn := func(ctx context.Context) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "too late", nil
	}
	reg := newRegistry()
	name := mustName(t, stubborn)
	reg.addActivity(&ActivityDefinition{Name: name, Fn: stubborn})

	inv, rep := newTestInvoker(t, reg)
	if err := inv.Invoke(context.Background(), &api.ActivityTask{
		CorrelationID:         "act-5",
		ActivityFn:            name,
		StartToCloseTimeoutMs: 5,
	}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if _, ok := rep.completedResult("act-5"); ok {
		t.Fatal("late success was reported as completion")
	}
	cause, ok := rep.failure("act-5")
	if !ok {
		t.Fatal("no outcome reported")
	}
	var te *TimeoutError
	if !errors.As(cause, &te) {
		t.Errorf("failure = %v, want *TimeoutError", cause)
	}
}

func TestInvokeReportsLateFailureAsTimeout(t *testing.T) {
	// Same shape as a late success, but the body settles with its own
	// error after the deadline. The attempt expired either way; reporting
	// it as Failed instead of TimedOut would hand the orchestrator the
	// wrong retry classification.
	stubborn := func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return errors.New("gave up after the deadline")
	}
	reg := newRegistry()
	name := mustName(t, stubborn)
	reg.addActivity(&ActivityDefinition{Name: name, Fn: stubborn})

	inv, rep := newTestInvoker(t, reg)
	if err := inv.Invoke(context.Background(), &api.ActivityTask{
		CorrelationID:         "act-10",
		ActivityFn:            name,
		StartToCloseTimeoutMs: 5,
	}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	cause, ok := rep.failure("act-10")
	if !ok {
		t.Fatal("no outcome reported")
	}
	var te *TimeoutError
	if !errors.As(cause, &te) {
		t.Errorf("failure = %v, want *TimeoutError", cause)
	}
	var af *ActivityFailure
	if errors.As(cause, &af) {
		t.Errorf("late body error was reported as *ActivityFailure: %v", cause)
	}
}

func TestInvokeFallsBackToRegistrationTimeout(t *testing.T) {
	reg := newRegistry()
	name := mustName(t, actDouble)
	reg.addActivity(&ActivityDefinition{Name: name, Fn: actDouble, DefaultTimeout: 5 * time.Second})

	inv, rep := newTestInvoker(t, reg)
	if err := inv.Invoke(context.Background(), &api.ActivityTask{
		CorrelationID: "act-6",
		ActivityFn:    name,
		Input:         []any{10},
	}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if _, ok := rep.completedResult("act-6"); !ok {
		t.Fatal("activity with registration-default timeout did not complete")
	}
}

func TestInvokeRejectsMissingTimeout(t *testing.T) {
	reg := newRegistry()
	name := mustName(t, actDouble)
	reg.addActivity(&ActivityDefinition{Name: name, Fn: actDouble})

	inv, rep := newTestInvoker(t, reg)
	if err := inv.Invoke(context.Background(), &api.ActivityTask{
		CorrelationID: "act-7",
		ActivityFn:    name,
		Input:         []any{10},
	}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	cause, ok := rep.failure("act-7")
	if !ok {
		t.Fatal("missing timeout was not reported")
	}
	if !errors.Is(cause, ErrMissingTimeout) {
		t.Errorf("failure = %v, want ErrMissingTimeout", cause)
	}
}

func TestInvokeReportsUnregisteredActivity(t *testing.T) {
	inv, rep := newTestInvoker(t, newRegistry())
	if err := inv.Invoke(context.Background(), &api.ActivityTask{
		CorrelationID:         "act-8",
		ActivityFn:            "ghost",
		StartToCloseTimeoutMs: 5000,
	}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	cause, ok := rep.failure("act-8")
	if !ok {
		t.Fatal("unregistered activity was not reported")
	}
	if !errors.Is(cause, ErrActivityNotRegistered) {
		t.Errorf("failure = %v, want ErrActivityNotRegistered", cause)
	}
}

func TestInvokeConvertsWireTypedArguments(t *testing.T) {
	reg := newRegistry()
	name := mustName(t, actDouble)
	reg.addActivity(&ActivityDefinition{Name: name, Fn: actDouble})

	inv, rep := newTestInvoker(t, reg)
	// Wire decoders hand numbers back as float64.
	if err := inv.Invoke(context.Background(), &api.ActivityTask{
		CorrelationID:         "act-9",
		ActivityFn:            name,
		Input:                 []any{float64(21)},
		StartToCloseTimeoutMs: 5000,
	}); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	result, ok := rep.completedResult("act-9")
	if !ok {
		t.Fatal("no completion reported")
	}
	if result[0] != 42 {
		t.Errorf("result = %v, want [42]", result)
	}
}
