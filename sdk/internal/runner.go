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
	"reflect"

	"github.com/taskmill-io/taskmill/api"
	"github.com/taskmill-io/taskmill/api/serde"
)

// sandboxedRunner replays workflow definitions against recorded history.
// Every run gets a fresh arena built only from the history and the
// pass-through allow-list, so replaying the same history any number of
// times produces identical decisions.
type sandboxedRunner struct {
	converter     serde.BinarySerde
	typeConverter *serde.TypeConverter
	passthrough   map[string]any
	logger        *slog.Logger
}

func newSandboxedRunner(conv serde.BinarySerde, passthrough map[string]any, logger *slog.Logger) *sandboxedRunner {
	return &sandboxedRunner{
		converter:     conv,
		typeConverter: serde.NewTypeConverter(conv),
		passthrough:   passthrough,
		logger:        defaultLogger(logger),
	}
}

// Run replays def against history and returns the next decisions. The
// replay itself performs no observable side effect: no real clock reads,
// no I/O, nothing kept after the arena is discarded. A detected
// non-deterministic command returns a *NondeterminismError; the caller
// surfaces it and must not retry locally.
func (r *sandboxedRunner) Run(ctx context.Context, def *WorkflowDefinition, history []api.HistoryEvent, input []any) ([]api.Decision, error) {
	arena := newWorkflowContext(ctx, history, r.converter, r.passthrough, r.logger)

	var results []reflect.Value
	var pending bool
	var nondeterminism *NondeterminismError

	execErr := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				switch p := rec.(type) {
				case errorBlockingFuture:
					pending = true
				case *NondeterminismError:
					nondeterminism = p
				default:
					r.logger.Error("workflow execution panic", "workflow", def.Name, "panic", rec)
					err = fmt.Errorf("workflow panic: %v", rec)
				}
			}
		}()

		wfv := reflect.ValueOf(def.Fn)
		wft := wfv.Type()
		if wft.NumIn() != len(input)+1 {
			return fmt.Errorf("argument count mismatch: workflow expects %d, got %d", wft.NumIn()-1, len(input))
		}

		inputv := make([]reflect.Value, len(input))
		for idx, arg := range input {
			// Parameter 0 is the workflow Context.
			convertedArg, err := r.typeConverter.ConvertToType(arg, wft.In(idx+1))
			if err != nil {
				return fmt.Errorf("failed to convert workflow parameter %d: %w", idx, err)
			}
			inputv[idx] = convertedArg
		}

		out := wfv.Call(append([]reflect.Value{reflect.ValueOf(arena)}, inputv...))

		// A trailing error return becomes a workflow failure.
		if len(out) > 0 {
			last := out[len(out)-1]
			if last.Type().Implements(reflect.TypeOf((*error)(nil)).Elem()) {
				if !last.IsNil() {
					return last.Interface().(error)
				}
				out = out[:len(out)-1]
			}
		}
		results = out
		return nil
	}()

	switch {
	case nondeterminism != nil:
		return nil, nondeterminism
	case pending:
		// Suspended on an unresolved future: emit whatever fresh commands
		// this run produced and wait for the orchestrator.
		return arena.decisions, nil
	case execErr != nil:
		return append(arena.decisions, api.Decision{
			Kind:  api.DecisionFailWorkflow,
			Error: execErr.Error(),
		}), nil
	default:
		return append(arena.decisions, api.Decision{
			Kind:   api.DecisionCompleteWorkflow,
			Result: reflectValuesToAny(results),
		}), nil
	}
}
