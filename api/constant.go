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

package api

// NATS Stream Names
const (
	WorkflowTasksStream = "WORKFLOW_TASKS"
	ActivityTasksStream = "ACTIVITY_TASKS"
)

// NATS Subject Patterns
const (
	WorkflowTasksFilterSubjectPattern = "tasks.%s.workflow" // task queue name
	ActivityTasksFilterSubjectPattern = "tasks.%s.activity" // task queue name
)

// Consumer Names
const (
	WorkflowTaskWorkerConsumer = "worker-workflow-tasks"
	ActivityTaskWorkerConsumer = "worker-activity-tasks"
)

// KeyValue Bucket Names
const (
	TaskOutcomeBucket = "task-outcome"
)
