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
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strings"
)

// extractFullFunctionName extracts the function's name including the
// package path. This is the registry key, so two packages can register
// functions with the same short name without colliding.
func extractFullFunctionName(fn any) (string, error) {
	if fn == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		return "", ErrInvalidFunction
	}
	fnObj := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if fnObj == nil {
		return "", fmt.Errorf("could not retrieve function metadata")
	}

	// Method values get a "-fm" suffix from the runtime.
	return strings.TrimSuffix(fnObj.Name(), "-fm"), nil
}

func reflectValuesToAny(vals []reflect.Value) []any {
	anySlice := make([]any, len(vals))
	for i, v := range vals {
		anySlice[i] = v.Interface()
	}
	return anySlice
}

func defaultLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
