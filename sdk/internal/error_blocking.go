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

// errorBlockingFuture is thrown in a panic when workflow code awaits a
// Future whose result is not yet in history. It works like a coroutine
// yield: the replay unwinds here and resumes from scratch once the
// orchestrator delivers the missing result in a fresh workflow task.
type errorBlockingFuture struct{}

func (e errorBlockingFuture) Error() string {
	return "blocking_future"
}
