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
	"fmt"
	"log/slog"
	"time"

	"github.com/taskmill-io/taskmill/api"
	"github.com/taskmill-io/taskmill/api/serde"
)

// Context is the deterministic execution context handed to workflow code.
// All orchestration goes through it: activity calls, durable timers, the
// replay clock. Workflow code must not touch the real clock, randomness,
// or I/O directly; those belong in activities.
type Context interface {
	context.Context
	ExecuteActivity(activityFn any, args ...any) Future
	Sleep(d time.Duration) error
	Now() time.Time
	Shared(name string) any
	WithValue(key any, value any) Context
}

var _ Context = (*workflowContext)(nil)

// workflowContext is the per-replay arena. One is built fresh for every
// run from nothing but the recorded history plus the registration-time
// pass-through allow-list, and discarded afterwards, so no mutable state
// can leak between replays.
type workflowContext struct {
	*replayState
	context.Context
	logger *slog.Logger
}

// replayState carries the parts shared across WithValue copies within a
// single run. It never outlives the run.
type replayState struct {
	converter serde.BinarySerde

	// schedule-ordered command events from history (ActivityScheduled,
	// TimerStarted) matched one-to-one against commands re-issued by the
	// workflow code.
	scheduled   []api.HistoryEvent
	scheduleCur int

	// per-name FIFO queues of recorded results.
	activityResults map[string]*resultQueue
	timersFired     map[string]bool

	// wall time of the last consumed history event; the replay clock.
	nowMs int64

	// commands issued past the end of recorded history this run.
	decisions []api.Decision

	// side-effect-free values injected by reference at registration time,
	// exempt from the fresh-rebuild rule.
	passthrough map[string]any

	timerSeq int
}

type resultQueue struct {
	records  []replayRecord
	consumed int
}

type replayRecord struct {
	result []any
	err    error
	timeMs int64
}

func newWorkflowContext(ctx context.Context, history []api.HistoryEvent, conv serde.BinarySerde, passthrough map[string]any, logger *slog.Logger) *workflowContext {
	st := &replayState{
		converter:       conv,
		activityResults: make(map[string]*resultQueue),
		timersFired:     make(map[string]bool),
		passthrough:     passthrough,
	}

	for _, evt := range history {
		switch evt.Kind {
		case api.WorkflowStarted:
			st.nowMs = evt.EventTimeMs
		case api.ActivityScheduled, api.TimerStarted:
			st.scheduled = append(st.scheduled, evt)
		case api.ActivityCompleted:
			st.queueFor(evt.Name).records = append(st.queueFor(evt.Name).records, replayRecord{
				result: evt.Payload,
				timeMs: evt.EventTimeMs,
			})
		case api.ActivityFailed:
			st.queueFor(evt.Name).records = append(st.queueFor(evt.Name).records, replayRecord{
				err:    &ActivityFailure{ActivityFn: evt.Name, Cause: fmt.Errorf("%s", evt.Error)},
				timeMs: evt.EventTimeMs,
			})
		case api.ActivityTimedOut:
			st.queueFor(evt.Name).records = append(st.queueFor(evt.Name).records, replayRecord{
				err:    &TimeoutError{ActivityFn: evt.Name},
				timeMs: evt.EventTimeMs,
			})
		case api.TimerFired:
			st.timersFired[evt.Name] = true
		}
	}

	return &workflowContext{
		replayState: st,
		Context:     ctx,
		logger:      defaultLogger(logger),
	}
}

func (s *replayState) queueFor(name string) *resultQueue {
	q, ok := s.activityResults[name]
	if !ok {
		q = &resultQueue{}
		s.activityResults[name] = q
	}
	return q
}

// nextScheduled consumes the next recorded command event, verifying that
// the replay issues the same command history recorded. A mismatch is
// non-determinism and fatal to this workflow task.
func (s *replayState) nextScheduled(kind api.HistoryEventKind, name string) (api.HistoryEvent, bool) {
	if s.scheduleCur >= len(s.scheduled) {
		return api.HistoryEvent{}, false
	}
	evt := s.scheduled[s.scheduleCur]
	if evt.Kind != kind || evt.Name != name {
		panic(&NondeterminismError{
			Expected: fmt.Sprintf("%s %s", evt.Kind, evt.Name),
			Got:      fmt.Sprintf("%s %s", kind, name),
		})
	}
	s.scheduleCur++
	return evt, true
}

func (c *workflowContext) ExecuteActivity(activityFn any, args ...any) Future {
	fnName, err := extractFullFunctionName(activityFn)
	if err != nil {
		c.loggerOrDefault().Error("failed to extract activity function name", "error", err)
		panic(err)
	}

	if _, replayed := c.nextScheduled(api.ActivityScheduled, fnName); replayed {
		q := c.queueFor(fnName)
		if q.consumed < len(q.records) {
			record := q.records[q.consumed]
			q.consumed++
			if record.timeMs > c.nowMs {
				c.nowMs = record.timeMs
			}
			return &replayFuture{isResolved: true, value: record.result, err: record.err, converter: c.converter, logger: c.logger}
		}
		// Scheduled but no result recorded yet: still in flight.
		return &replayFuture{isResolved: false, converter: c.converter, logger: c.logger}
	}

	// Past the end of history: a fresh command.
	decision := api.Decision{
		Kind:       api.DecisionScheduleActivity,
		ActivityFn: fnName,
		Input:      args,
	}
	if opts := getActivityOptions(c); opts != nil {
		if opts.StartToCloseTimeout > 0 {
			decision.StartToCloseTimeoutMs = opts.StartToCloseTimeout.Milliseconds()
		}
		if opts.RetryPolicy != nil {
			decision.RetryPolicy = convertRetryPolicyToAPI(opts.RetryPolicy)
		}
	}
	c.decisions = append(c.decisions, decision)

	return &replayFuture{isResolved: false, converter: c.converter, logger: c.logger}
}

// Sleep is a durable timer. It holds no thread: when the timer is not yet
// fired the replay suspends entirely and the orchestrator wakes the
// workflow with a fresh task once it fires.
func (c *workflowContext) Sleep(d time.Duration) error {
	c.timerSeq++
	name := fmt.Sprintf("timer-%d", c.timerSeq)

	if evt, replayed := c.nextScheduled(api.TimerStarted, name); replayed {
		if c.timersFired[name] {
			firedAt := evt.EventTimeMs + d.Milliseconds()
			if firedAt > c.nowMs {
				c.nowMs = firedAt
			}
			return nil
		}
		panic(errorBlockingFuture{})
	}

	c.decisions = append(c.decisions, api.Decision{
		Kind:            api.DecisionStartTimer,
		ActivityFn:      name,
		TimerDurationMs: d.Milliseconds(),
	})
	panic(errorBlockingFuture{})
}

// Now returns the replay clock: the orchestrator-recorded time of the
// last consumed history event. Never the real clock.
func (c *workflowContext) Now() time.Time {
	return time.UnixMilli(c.nowMs).UTC()
}

// Shared returns a value from the pass-through allow-list configured at
// registration time, or nil when absent. These values are injected by
// reference into every fresh arena instead of being rebuilt per run.
func (c *workflowContext) Shared(name string) any {
	return c.passthrough[name]
}

func (c *workflowContext) WithValue(key any, value any) Context {
	baseCtx := c.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &workflowContext{
		replayState: c.replayState,
		Context:     context.WithValue(baseCtx, key, value),
		logger:      c.logger,
	}
}

func (c *workflowContext) loggerOrDefault() *slog.Logger {
	if c == nil {
		return slog.Default()
	}
	return defaultLogger(c.logger)
}

func (c *workflowContext) Deadline() (time.Time, bool) {
	if c.Context == nil {
		return time.Time{}, false
	}
	return c.Context.Deadline()
}

func (c *workflowContext) Done() <-chan struct{} {
	if c.Context == nil {
		return nil
	}
	return c.Context.Done()
}

func (c *workflowContext) Err() error {
	if c.Context == nil {
		return nil
	}
	return c.Context.Err()
}

func (c *workflowContext) Value(key any) any {
	if c.Context == nil {
		return nil
	}
	return c.Context.Value(key)
}
