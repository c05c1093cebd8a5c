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
	"strings"
	"testing"
	"time"
)

func sampleActivity(ctx context.Context, in string) (string, error) { return in, nil }

type sampleService struct{}

func (s *sampleService) Fetch(ctx context.Context) (int, error) { return 0, nil }

func TestExtractFullFunctionName(t *testing.T) {
	name, err := extractFullFunctionName(sampleActivity)
	if err != nil {
		t.Fatalf("extractFullFunctionName() error = %v", err)
	}
	if !strings.HasSuffix(name, ".sampleActivity") {
		t.Errorf("name = %q, want package-qualified sampleActivity", name)
	}

	svc := &sampleService{}
	methodName, err := extractFullFunctionName(svc.Fetch)
	if err != nil {
		t.Fatalf("extractFullFunctionName(method) error = %v", err)
	}
	if strings.HasSuffix(methodName, "-fm") {
		t.Errorf("method name %q kept the -fm suffix", methodName)
	}
	if !strings.Contains(methodName, "sampleService") {
		t.Errorf("method name %q missing receiver type", methodName)
	}
}

func TestExtractFullFunctionNameRejectsNonFunctions(t *testing.T) {
	for _, bad := range []any{nil, "not a func", 42, struct{}{}} {
		if _, err := extractFullFunctionName(bad); !errors.Is(err, ErrInvalidFunction) {
			t.Errorf("extractFullFunctionName(%v) error = %v, want ErrInvalidFunction", bad, err)
		}
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	reg := newRegistry()

	if err := reg.addActivity(&ActivityDefinition{Name: "a", Fn: sampleActivity}); err != nil {
		t.Fatalf("first addActivity() error = %v", err)
	}
	err := reg.addActivity(&ActivityDefinition{Name: "a", Fn: sampleActivity})
	if !errors.Is(err, ErrDuplicateRegistration) {
		t.Errorf("duplicate addActivity() error = %v, want ErrDuplicateRegistration", err)
	}
	var regErr *RegistrationError
	if !errors.As(err, &regErr) || regErr.FunctionName != "a" {
		t.Errorf("duplicate addActivity() error = %v, want RegistrationError naming 'a'", err)
	}

	if err := reg.addWorkflow(&WorkflowDefinition{Name: "w", Fn: sampleActivity}); err != nil {
		t.Fatalf("first addWorkflow() error = %v", err)
	}
	if err := reg.addWorkflow(&WorkflowDefinition{Name: "w", Fn: sampleActivity}); !errors.Is(err, ErrDuplicateRegistration) {
		t.Errorf("duplicate addWorkflow() error = %v, want ErrDuplicateRegistration", err)
	}
}

func TestRegistryLookupMisses(t *testing.T) {
	reg := newRegistry()

	if _, err := reg.workflow("ghost"); !errors.Is(err, ErrWorkflowNotRegistered) {
		t.Errorf("workflow() error = %v, want ErrWorkflowNotRegistered", err)
	}
	if _, err := reg.activity("ghost"); !errors.Is(err, ErrActivityNotRegistered) {
		t.Errorf("activity() error = %v, want ErrActivityNotRegistered", err)
	}
}

func TestRegistryOptions(t *testing.T) {
	def := &ActivityDefinition{Name: "a", Fn: sampleActivity}
	svc := &sampleService{}
	for _, opt := range []ActivityRegisterOption{
		WithBlocking(),
		WithDefaultTimeout(45 * time.Second),
		WithInstance(svc),
	} {
		opt(def)
	}

	if !def.Blocking {
		t.Error("WithBlocking() did not set Blocking")
	}
	if def.DefaultTimeout != 45*time.Second {
		t.Errorf("DefaultTimeout = %v, want 45s", def.DefaultTimeout)
	}
	if def.Instance != svc {
		t.Error("WithInstance() did not bind the instance")
	}
}

func TestRegistryInstancesDeduplicated(t *testing.T) {
	reg := newRegistry()
	svc := &sampleService{}

	reg.addActivity(&ActivityDefinition{Name: "a", Fn: svc.Fetch, Instance: svc})
	reg.addActivity(&ActivityDefinition{Name: "b", Fn: svc.Fetch, Instance: svc})
	reg.addActivity(&ActivityDefinition{Name: "c", Fn: sampleActivity})

	if got := len(reg.instances()); got != 1 {
		t.Errorf("instances() returned %d entries, want 1", got)
	}
}

type tagService struct {
	tags []string
}

func (s tagService) First(ctx context.Context) (string, error) { return s.tags[0], nil }

func TestRegistryInstancesToleratesUncomparableValues(t *testing.T) {
	// A value receiver with a slice field is a legal registration but an
	// illegal map key; drain must still enumerate it without panicking.
	reg := newRegistry()
	svc := tagService{tags: []string{"express"}}

	reg.addActivity(&ActivityDefinition{Name: "a", Fn: svc.First, Instance: svc})
	reg.addActivity(&ActivityDefinition{Name: "b", Fn: svc.First, Instance: svc})

	got := reg.instances()
	if len(got) != 2 {
		t.Errorf("instances() returned %d entries, want 2 undeduplicated copies", len(got))
	}
}
