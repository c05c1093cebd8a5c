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

package api

type (
	// Task is a unit of dispatched work pulled from the task queue.
	// The orchestrator creates tasks, a worker consumes each exactly once
	// and terminates it with an outcome report.
	Task interface {
		isTask()
		Correlation() string
	}

	// WorkflowTask asks the worker to replay a workflow function against
	// the recorded history and produce the next decision.
	WorkflowTask struct {
		CorrelationID string         `json:"correlation_id"`
		WorkflowFn    string         `json:"wf_name"`
		Input         []any          `json:"input"`
		Attempt       int32          `json:"attempt"`
		History       []HistoryEvent `json:"history"`
	}

	// ActivityTask asks the worker to run a single activity attempt.
	ActivityTask struct {
		CorrelationID            string `json:"correlation_id"`
		ActivityFn               string `json:"ac_name"`
		Input                    []any  `json:"input"`
		Attempt                  int32  `json:"attempt"`
		StartToCloseTimeoutMs    int64  `json:"start_to_close_ms"`
		ScheduledAtMs            int64  `json:"scheduled_at_ms"`
		ScheduleToCloseTimeoutMs int64  `json:"schedule_to_close_ms,omitempty"`
	}
)

func (t *WorkflowTask) isTask() {}
func (t *ActivityTask) isTask() {}

func (t *WorkflowTask) Correlation() string { return t.CorrelationID }
func (t *ActivityTask) Correlation() string { return t.CorrelationID }

// HistoryEventKind enumerates the event types the orchestrator records.
type HistoryEventKind string

const (
	WorkflowStarted   HistoryEventKind = "WorkflowStarted"
	ActivityScheduled HistoryEventKind = "ActivityScheduled"
	ActivityCompleted HistoryEventKind = "ActivityCompleted"
	ActivityFailed    HistoryEventKind = "ActivityFailed"
	ActivityTimedOut  HistoryEventKind = "ActivityTimedOut"
	TimerStarted      HistoryEventKind = "TimerStarted"
	TimerFired        HistoryEventKind = "TimerFired"
	WorkflowCompleted HistoryEventKind = "WorkflowCompleted"
	WorkflowFailed    HistoryEventKind = "WorkflowFailed"
)

// HistoryEvent is one entry of the orchestrator-owned durable log. The
// worker never writes history; it only replays it. EventTimeMs is the wall
// time the orchestrator recorded the event and doubles as the deterministic
// clock source during replay.
type HistoryEvent struct {
	EventID     int64            `json:"event_id"`
	Kind        HistoryEventKind `json:"kind"`
	Name        string           `json:"name,omitempty"` // activity or timer name
	Payload     []any            `json:"payload,omitempty"`
	Error       string           `json:"error,omitempty"`
	EventTimeMs int64            `json:"event_time_ms"`
}

// DecisionKind enumerates what a workflow replay can ask the orchestrator
// to do next.
type DecisionKind string

const (
	DecisionScheduleActivity DecisionKind = "ScheduleActivity"
	DecisionStartTimer       DecisionKind = "StartTimer"
	DecisionCompleteWorkflow DecisionKind = "CompleteWorkflow"
	DecisionFailWorkflow     DecisionKind = "FailWorkflow"
)

// Decision is the output of one deterministic workflow replay.
type Decision struct {
	Kind                  DecisionKind `json:"kind"`
	ActivityFn            string       `json:"ac_name,omitempty"`
	Input                 []any        `json:"input,omitempty"`
	StartToCloseTimeoutMs int64        `json:"start_to_close_ms,omitempty"`
	RetryPolicy           *RetryPolicy `json:"retry_policy,omitempty"`
	TimerDurationMs       int64        `json:"timer_ms,omitempty"`
	Result                []any        `json:"result,omitempty"`
	Error                 string       `json:"error,omitempty"`
}

// OutcomeStatus is the terminal status of one consumed task.
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "Completed"
	OutcomeFailed    OutcomeStatus = "Failed"
	OutcomeTimedOut  OutcomeStatus = "TimedOut"
)

// Outcome is the completion report published back to the orchestrator,
// keyed by correlation id. Reports are idempotent on retry: the first
// write for a correlation id wins, duplicates are no-ops.
type Outcome struct {
	CorrelationID string        `json:"correlation_id"`
	Status        OutcomeStatus `json:"status"`
	Result        []any         `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
	Decisions     []Decision    `json:"decisions,omitempty"`
}

// RetryPolicy is forwarded to the orchestrator with a ScheduleActivity
// decision. The worker itself never retries; the orchestrator re-issues a
// fresh ActivityTask with an incremented attempt per this policy.
type RetryPolicy struct {
	InitialIntervalMs      int64    `json:"initial_interval_ms,omitempty"`
	BackoffCoefficient     float64  `json:"backoff_coefficient,omitempty"`
	MaximumIntervalMs      int64    `json:"maximum_interval_ms,omitempty"`
	MaximumAttempts        int32    `json:"maximum_attempts,omitempty"`
	NonRetryableErrorTypes []string `json:"non_retryable_error_types,omitempty"`
}
