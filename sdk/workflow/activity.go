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

package workflow

import (
	"github.com/taskmill-io/taskmill/sdk/internal"
)

const activityOptionsKey = internal.ActivityOptionsKey

// ActivityOptions configures an activity call site, most importantly its
// start-to-close timeout:
//
//	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
//		StartToCloseTimeout: 30 * time.Second,
//		RetryPolicy: &workflow.RetryPolicy{
//			InitialInterval:    time.Second,
//			BackoffCoefficient: 2.0,
//			MaximumAttempts:    3,
//		},
//	})
type ActivityOptions = internal.ActivityOptions

// RetryPolicy tells the orchestrator how to retry a failed activity.
// Retries happen server-side: the orchestrator re-issues a fresh
// activity task with an incremented attempt; the worker never retries
// locally.
type RetryPolicy = internal.RetryPolicy

func WithActivityOptions(ctx Context, opts ActivityOptions) Context {
	return ctx.WithValue(activityOptionsKey, opts)
}
