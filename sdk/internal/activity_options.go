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
	"time"

	"github.com/taskmill-io/taskmill/api"
)

const ActivityOptionsKey = "github.com/taskmill-io/taskmill/sdk/workflow.ActivityOptions"

// ActivityOptions configure one activity call site.
type ActivityOptions struct {
	// StartToCloseTimeout is the maximum time of a single activity
	// execution attempt. The worker enforces it per attempt; the
	// orchestrator relies on it to detect lost workers. Required at some
	// level: call site, registration default, or the task itself.
	StartToCloseTimeout time.Duration

	// RetryPolicy is forwarded to the orchestrator with the schedule
	// decision. The worker never retries locally.
	RetryPolicy *RetryPolicy
}

// RetryPolicy mirrors api.RetryPolicy with native durations.
type RetryPolicy struct {
	// Backoff interval for the first retry. Defaults to 1s server-side.
	InitialInterval time.Duration

	// Multiplier applied to the previous interval for each retry.
	// Must be 1 or larger. Default is 2.0.
	BackoffCoefficient float64

	// Cap on the backoff interval. Default is 100x the initial interval.
	MaximumInterval time.Duration

	// Retries stop once this many attempts ran. 0 means unlimited.
	MaximumAttempts int32

	// Error strings the orchestrator will not retry.
	NonRetryableErrorTypes []string
}

func getActivityOptions(ctx Context) *ActivityOptions {
	val := ctx.Value(ActivityOptionsKey)
	if val == nil {
		return nil
	}

	opts, ok := val.(ActivityOptions)
	if !ok {
		panic("ActivityOptions has wrong type in context.")
	}
	return &opts
}

func convertRetryPolicyToAPI(rp *RetryPolicy) *api.RetryPolicy {
	if rp == nil {
		return nil
	}
	return &api.RetryPolicy{
		InitialIntervalMs:      rp.InitialInterval.Milliseconds(),
		BackoffCoefficient:     rp.BackoffCoefficient,
		MaximumIntervalMs:      rp.MaximumInterval.Milliseconds(),
		MaximumAttempts:        rp.MaximumAttempts,
		NonRetryableErrorTypes: rp.NonRetryableErrorTypes,
	}
}
