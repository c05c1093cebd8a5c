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

// Package workflow is the authoring surface for deterministic workflow
// code.
//
// A workflow function takes a workflow.Context as its first parameter
// and orchestrates activities through it:
//
//	func SettleOrder(ctx workflow.Context, orderID string) (string, error) {
//		ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
//			StartToCloseTimeout: 30 * time.Second,
//		})
//
//		var receipt string
//		err := workflow.ExecuteActivity(ctx, ChargeCard, orderID).Get(ctx, &receipt)
//		if err != nil {
//			return "", err
//		}
//		return receipt, nil
//	}
//
// The orchestrator may replay a workflow's history any number of times
// against the same code and must get identical decisions, so workflow
// code must be deterministic: no I/O, no real clock, no randomness, no
// goroutines. Anything non-deterministic belongs in an activity.
package workflow
