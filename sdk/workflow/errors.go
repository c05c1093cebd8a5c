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
	"errors"

	"github.com/taskmill-io/taskmill/sdk/internal"
)

// NondeterminismError is fatal to a workflow replay: the code issued a
// command that does not match recorded history. The worker surfaces it
// and never retries locally; the orchestrator issues a fresh workflow
// task only after operator intervention.
type NondeterminismError = internal.NondeterminismError

// ActivityFailure wraps an error raised by an activity body. Whether it
// is retried is the orchestrator's call, per the activity's RetryPolicy.
type ActivityFailure = internal.ActivityFailure

// TimeoutError reports an activity attempt exceeding its start-to-close
// deadline. Distinct from ActivityFailure so callers can apply
// different backoff.
type TimeoutError = internal.TimeoutError

// IsTimeout reports whether err is an activity timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsActivityFailure reports whether err is a failed activity body.
func IsActivityFailure(err error) bool {
	var af *ActivityFailure
	return errors.As(err, &af)
}
