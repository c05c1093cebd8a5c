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

	"github.com/taskmill-io/taskmill/api/serde"
)

// Future is the handle returned by ExecuteActivity inside workflow code.
// During replay Get returns cached history results immediately; for work
// whose result is not yet recorded it suspends the replay.
type Future interface {
	Get(ctx context.Context, valuePtr any) error
}

var _ Future = (*replayFuture)(nil)

// replayFuture is resolved from recorded history, or unresolved when the
// activity result has not been delivered yet. Get on an unresolved future
// panics with the blocking sentinel; the runner catches it and emits the
// pending decisions instead.
type replayFuture struct {
	isResolved bool
	value      []any
	err        error
	converter  serde.BinarySerde
	logger     *slog.Logger
}

func (f *replayFuture) Get(ctx context.Context, valuePtr any) error {
	if !f.isResolved {
		panic(errorBlockingFuture{})
	}
	if f.err != nil {
		return f.err
	}
	if valuePtr == nil || len(f.value) == 0 || f.value[0] == nil {
		return nil
	}

	if f.converter == nil {
		return fmt.Errorf("no converter available for type conversion")
	}

	// Round-trip through the configured serializer so the conversion
	// behaves the same regardless of wire format.
	resultBytes, err := f.converter.SerializeBinary(f.value[0])
	if err != nil {
		return fmt.Errorf("failed to serialize result value: %w", err)
	}
	if err := f.converter.DeserializeBinary(resultBytes, valuePtr); err != nil {
		return fmt.Errorf("failed to deserialize result into target type: %w", err)
	}
	return nil
}

// resultFuture bridges a pooled activity execution back to the awaiting
// invoker as a single resolution.
type resultFuture struct {
	done   chan struct{}
	result []any
	err    error
}

func newResultFuture() *resultFuture {
	return &resultFuture{done: make(chan struct{})}
}

func (f *resultFuture) resolve(result []any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Wait blocks until the execution resolves or ctx expires. On ctx expiry
// the underlying execution keeps running; cancellation is advisory only.
func (f *resultFuture) Wait(ctx context.Context) ([]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.result, f.err
	}
}
