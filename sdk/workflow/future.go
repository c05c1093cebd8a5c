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

// Future represents the result of an activity execution.
//
// Futures enable concurrent fan-out: start multiple activities, then
// await their results later.
//
//	future1 := workflow.ExecuteActivity(ctx, FetchRates, "EUR")
//	future2 := workflow.ExecuteActivity(ctx, FetchRates, "GBP")
//
//	var eur, gbp float64
//	if err := future1.Get(ctx, &eur); err != nil {
//		return err
//	}
//	if err := future2.Get(ctx, &gbp); err != nil {
//		return err
//	}
//
// During replay Get returns recorded results immediately; awaiting a
// result not yet in history suspends the workflow until the
// orchestrator delivers it.
type Future = internal.Future
