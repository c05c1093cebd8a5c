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
	"iter"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/taskmill-io/taskmill/api"
	"github.com/taskmill-io/taskmill/api/serde"
)

type (
	// TaskToken is one delivered task plus its acknowledgement handles.
	// The queue guarantees at-least-once delivery with exactly-once
	// active assignment per correlation id; Ack/Nak/Term settle the
	// delivery.
	TaskToken struct {
		Task api.Task
		Ack  func(context.Context) error
		Nak  func(context.Context) error
		Term func(context.Context) error
	}

	// OutcomeReporter publishes terminal task outcomes back to the
	// orchestrator. Both methods are idempotent on retry: a duplicate
	// report for an already-reported correlation id is a no-op, because
	// network retries between worker and orchestrator are expected.
	OutcomeReporter interface {
		Complete(ctx context.Context, correlationID string, result []any, decisions []api.Decision) error
		Fail(ctx context.Context, correlationID string, cause error) error
	}

	// TaskQueueClient abstracts pulling units of work from the named
	// queue exposed by the orchestrator. Poll's iterator ends when ctx
	// is canceled; no ordering is guaranteed across correlation ids.
	TaskQueueClient interface {
		OutcomeReporter
		Poll(ctx context.Context, includeWorkflow, includeActivity bool) (iter.Seq[*TaskToken], error)
	}
)

var _ TaskQueueClient = (*natsTaskQueue)(nil)

// natsTaskQueue is the JetStream-backed TaskQueueClient: one durable
// consumer per enabled task kind, outcomes written to a KV bucket keyed
// by correlation id.
type natsTaskQueue struct {
	conn      *Conn
	queue     string
	converter serde.BinarySerde

	kvMu      sync.Mutex
	outcomeKV jetstream.KeyValue
	// lookupKV is swappable for tests; defaults to the conn's EnsureKV.
	lookupKV func(ctx context.Context) (jetstream.KeyValue, error)
}

func newNATSTaskQueue(conn *Conn, queue string, conv serde.BinarySerde) (*natsTaskQueue, error) {
	if conn == nil {
		return nil, fmt.Errorf("nil connection")
	}
	if queue == "" {
		return nil, fmt.Errorf("task queue name is required")
	}
	if conv == nil {
		conv = &serde.MsgpackSerde{}
	}
	q := &natsTaskQueue{conn: conn, queue: queue, converter: conv}
	q.lookupKV = func(ctx context.Context) (jetstream.KeyValue, error) {
		return conn.EnsureKV(ctx, jetstream.KeyValueConfig{
			Bucket: api.TaskOutcomeBucket,
		})
	}
	return q, nil
}

func (q *natsTaskQueue) workflowFilterSubject() string {
	return fmt.Sprintf(api.WorkflowTasksFilterSubjectPattern, q.queue)
}

func (q *natsTaskQueue) activityFilterSubject() string {
	return fmt.Sprintf(api.ActivityTasksFilterSubjectPattern, q.queue)
}

// taskSource is one consumer feeding the shared task channel. run blocks
// until its context is canceled or the consumer fails.
type taskSource struct {
	taskType string
	run      func(ctx context.Context) error
}

func (q *natsTaskQueue) Poll(ctx context.Context, includeWorkflow, includeActivity bool) (iter.Seq[*TaskToken], error) {
	if !includeWorkflow && !includeActivity {
		return nil, fmt.Errorf("at least one task type must be enabled")
	}

	consumerCtx, cancelConsumers := context.WithCancel(ctx)
	taskChannel := make(chan *TaskToken)

	var sources []taskSource

	if includeWorkflow {
		// The orchestrator normally owns the stream; ensuring it lets a
		// worker start first without racing the orchestrator's bootstrap.
		if _, err := q.conn.EnsureStream(consumerCtx, jetstream.StreamConfig{
			Name:     api.WorkflowTasksStream,
			Subjects: []string{fmt.Sprintf(api.WorkflowTasksFilterSubjectPattern, "*")},
		}); err != nil {
			cancelConsumers()
			return nil, err
		}
		workflowTaskConsumer, err := q.conn.EnsureConsumer(
			consumerCtx,
			api.WorkflowTasksStream,
			jetstream.ConsumerConfig{
				Name:          api.WorkflowTaskWorkerConsumer + "-" + q.queue,
				Durable:       api.WorkflowTaskWorkerConsumer + "-" + q.queue,
				FilterSubject: q.workflowFilterSubject(),
				AckPolicy:     jetstream.AckExplicitPolicy,
			})
		if err != nil {
			cancelConsumers()
			return nil, err
		}
		sources = append(sources, q.consumerSource(workflowTaskConsumer, "workflow", func(msg jetstream.Msg) {
			task := &api.WorkflowTask{}
			if err := q.converter.DeserializeBinary(msg.Data(), task); err != nil {
				msg.Term()
				return
			}
			q.enqueueTask(consumerCtx, task, msg, taskChannel)
		}))
	}

	if includeActivity {
		if _, err := q.conn.EnsureStream(consumerCtx, jetstream.StreamConfig{
			Name:     api.ActivityTasksStream,
			Subjects: []string{fmt.Sprintf(api.ActivityTasksFilterSubjectPattern, "*")},
		}); err != nil {
			cancelConsumers()
			return nil, err
		}
		activityTaskConsumer, err := q.conn.EnsureConsumer(
			consumerCtx,
			api.ActivityTasksStream,
			jetstream.ConsumerConfig{
				Name:          api.ActivityTaskWorkerConsumer + "-" + q.queue,
				Durable:       api.ActivityTaskWorkerConsumer + "-" + q.queue,
				FilterSubject: q.activityFilterSubject(),
				AckPolicy:     jetstream.AckExplicitPolicy,
			})
		if err != nil {
			cancelConsumers()
			return nil, err
		}
		sources = append(sources, q.consumerSource(activityTaskConsumer, "activity", func(msg jetstream.Msg) {
			task := &api.ActivityTask{}
			if err := q.converter.DeserializeBinary(msg.Data(), task); err != nil {
				msg.Term()
				return
			}
			q.enqueueTask(consumerCtx, task, msg, taskChannel)
		}))
	}

	return bridgeTaskSources(ctx, consumerCtx, cancelConsumers, sources, taskChannel, q.conn.Logger()), nil
}

func (q *natsTaskQueue) consumerSource(consumer jetstream.Consumer, taskType string, handler func(msg jetstream.Msg)) taskSource {
	return taskSource{
		taskType: taskType,
		run: func(runCtx context.Context) error {
			consumeCtx, err := consumer.Consume(handler)
			if err != nil {
				return err
			}
			defer consumeCtx.Stop()
			<-runCtx.Done()
			return nil
		},
	}
}

// bridgeTaskSources fans the sources into one task iterator. The channel
// closer must not start waiting until every source is accounted for on
// the wait group; otherwise it can observe a zero counter mid-setup and
// close the channel under a source that is about to send.
func bridgeTaskSources(ctx, consumerCtx context.Context, cancel context.CancelFunc, sources []taskSource, taskChannel chan *TaskToken, logger *slog.Logger) iter.Seq[*TaskToken] {
	var wg sync.WaitGroup
	wg.Add(len(sources))
	go func() {
		wg.Wait()
		close(taskChannel)
	}()

	for _, source := range sources {
		go func(s taskSource) {
			defer wg.Done()
			// One failed or finished source drains the whole poll; the
			// worker treats that as shutdown, not partial operation.
			defer cancel()

			if err := s.run(consumerCtx); err != nil {
				logger.Error("task consumer failed", "type", s.taskType, "error", err)
			}
		}(source)
	}

	return func(yield func(*TaskToken) bool) {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-taskChannel:
				if !ok {
					return
				}
				if t == nil {
					continue
				}
				switch t.Task.(type) {
				case *api.WorkflowTask, *api.ActivityTask:
					if !yield(t) {
						return
					}
				default:
					// poison pill
					t.Term(consumerCtx)
				}
			}
		}
	}
}

func (q *natsTaskQueue) enqueueTask(ctx context.Context, task api.Task, msg jetstream.Msg, taskChannel chan<- *TaskToken) {
	token := &TaskToken{
		Task: task,
		Ack:  msg.DoubleAck,
		Nak:  func(context.Context) error { return msg.Nak() },
		Term: func(context.Context) error { return msg.Term() },
	}

	select {
	case <-ctx.Done():
		msg.Nak()
	case taskChannel <- token:
	}
}

func (q *natsTaskQueue) Complete(ctx context.Context, correlationID string, result []any, decisions []api.Decision) error {
	return q.report(ctx, &api.Outcome{
		CorrelationID: correlationID,
		Status:        api.OutcomeCompleted,
		Result:        result,
		Decisions:     decisions,
	})
}

func (q *natsTaskQueue) Fail(ctx context.Context, correlationID string, cause error) error {
	status := api.OutcomeFailed
	var timeout *TimeoutError
	if errors.As(cause, &timeout) {
		status = api.OutcomeTimedOut
	}
	return q.report(ctx, &api.Outcome{
		CorrelationID: correlationID,
		Status:        status,
		Error:         cause.Error(),
	})
}

// report writes the outcome with a create-only KV put. The first report
// for a correlation id wins; ErrKeyExists on a duplicate means the
// outcome was already delivered and the retry is a no-op.
func (q *natsTaskQueue) report(ctx context.Context, outcome *api.Outcome) error {
	kv, err := q.ensureOutcomeKV(ctx)
	if err != nil {
		return err
	}

	data, err := q.converter.SerializeBinary(outcome)
	if err != nil {
		return fmt.Errorf("failed to serialize outcome for %s: %w", outcome.CorrelationID, err)
	}

	_, err = kv.Create(ctx, outcome.CorrelationID, data)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			q.conn.Logger().Debug("duplicate outcome report ignored", "correlation_id", outcome.CorrelationID)
			return nil
		}
		return fmt.Errorf("failed to report outcome for %s: %w", outcome.CorrelationID, err)
	}
	return nil
}

// ensureOutcomeKV caches the bucket handle on success only. A transient
// lookup failure must not poison the queue; the next report retries.
func (q *natsTaskQueue) ensureOutcomeKV(ctx context.Context) (jetstream.KeyValue, error) {
	q.kvMu.Lock()
	defer q.kvMu.Unlock()

	if q.outcomeKV != nil {
		return q.outcomeKV, nil
	}
	kv, err := q.lookupKV(ctx)
	if err != nil {
		return nil, err
	}
	q.outcomeKV = kv
	return kv, nil
}
