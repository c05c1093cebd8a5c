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

package worker

import (
	"github.com/taskmill-io/taskmill/sdk/internal"
)

var (
	// ErrShutdown is the expected signal from task polling once draining
	// completes.
	ErrShutdown = internal.ErrShutdown

	// ErrExecutorCapacityExceeded is a transient backpressure signal,
	// not a failure; submissions queue instead of erroring by default.
	ErrExecutorCapacityExceeded = internal.ErrExecutorCapacityExceeded

	// ErrWorkflowNotRegistered is returned when a workflow is not
	// registered with the worker.
	ErrWorkflowNotRegistered = internal.ErrWorkflowNotRegistered

	// ErrActivityNotRegistered is returned when an activity is not
	// registered with the worker.
	ErrActivityNotRegistered = internal.ErrActivityNotRegistered

	// ErrInvalidFunction is returned when attempting to register a
	// non-function.
	ErrInvalidFunction = internal.ErrInvalidFunction

	// ErrDuplicateRegistration is returned when a function name is
	// registered twice.
	ErrDuplicateRegistration = internal.ErrDuplicateRegistration
)

// RegistrationError carries the function name that failed to register.
type RegistrationError = internal.RegistrationError
