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
	"reflect"
	"sync"
	"time"
)

type (
	// WorkflowDefinition is created at registration time and immutable
	// thereafter. The entry point must be deterministic.
	WorkflowDefinition struct {
		Name string
		Fn   any
	}

	// ActivityDefinition describes one registered activity. Blocking
	// selects the executor strategy at dispatch time. Instance, when set,
	// is the bound object holding shared resources (e.g. a pooled network
	// session); it lives for the worker's lifetime and is closed exactly
	// once during drain if it implements io.Closer.
	ActivityDefinition struct {
		Name           string
		Fn             any
		Instance       any
		Blocking       bool
		DefaultTimeout time.Duration
	}

	// WorkflowRegisterOption configures a workflow registration.
	WorkflowRegisterOption func(*WorkflowDefinition)

	// ActivityRegisterOption configures an activity registration.
	ActivityRegisterOption func(*ActivityDefinition)

	WorkflowRegistry interface {
		RegisterWorkflow(fn any, options ...WorkflowRegisterOption) error
	}

	ActivityRegistry interface {
		RegisterActivity(fn any, options ...ActivityRegisterOption) error
	}
)

// WithBlocking marks the activity body as blocking. Blocking activities
// are dispatched to the bounded executor pool instead of running inline
// on the dispatch loop.
func WithBlocking() ActivityRegisterOption {
	return func(d *ActivityDefinition) { d.Blocking = true }
}

// WithDefaultTimeout sets the start-to-close timeout used when the task
// itself carries none.
func WithDefaultTimeout(d time.Duration) ActivityRegisterOption {
	return func(def *ActivityDefinition) { def.DefaultTimeout = d }
}

// WithInstance records the bound object owning the activity's shared
// resources so the worker can release them at shutdown.
func WithInstance(v any) ActivityRegisterOption {
	return func(d *ActivityDefinition) { d.Instance = v }
}

type registry struct {
	mu         sync.RWMutex
	workflows  map[string]*WorkflowDefinition
	activities map[string]*ActivityDefinition
}

func newRegistry() *registry {
	return &registry{
		workflows:  make(map[string]*WorkflowDefinition),
		activities: make(map[string]*ActivityDefinition),
	}
}

func (r *registry) addWorkflow(def *WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[def.Name]; ok {
		return &RegistrationError{FunctionName: def.Name, Cause: ErrDuplicateRegistration}
	}
	r.workflows[def.Name] = def
	return nil
}

func (r *registry) addActivity(def *ActivityDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activities[def.Name]; ok {
		return &RegistrationError{FunctionName: def.Name, Cause: ErrDuplicateRegistration}
	}
	r.activities[def.Name] = def
	return nil
}

func (r *registry) workflow(name string) (*WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.workflows[name]
	if !ok {
		return nil, ErrWorkflowNotRegistered
	}
	return def, nil
}

func (r *registry) activity(name string) (*ActivityDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.activities[name]
	if !ok {
		return nil, ErrActivityNotRegistered
	}
	return def, nil
}

func (r *registry) workflowCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows)
}

func (r *registry) activityCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activities)
}

// instances returns the distinct bound instances in registration-stable
// order for shutdown release.
func (r *registry) instances() []any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[any]struct{})
	var out []any
	for _, def := range r.activities {
		if def.Instance == nil {
			continue
		}
		// An instance registered by value may be uncomparable (slice or
		// map field) and would panic as a map key; such instances are
		// necessarily distinct copies, so skip deduplication for them.
		if reflect.ValueOf(def.Instance).Comparable() {
			if _, ok := seen[def.Instance]; ok {
				continue
			}
			seen[def.Instance] = struct{}{}
		}
		out = append(out, def.Instance)
	}
	return out
}
