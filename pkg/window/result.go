/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package window

import (
	"fmt"
	"time"
)

// KeyedWindowResult is the result of a window, Key is nil for the windows of a non-keyed aggregation.
type KeyedWindowResult struct {
	Start time.Time
	End   time.Time
	Key   any
	Value any
}

// NewKeyedWindowResult returns the result of the window [start, end) in unix milliseconds.
func NewKeyedWindowResult(start, end int64, key, value any) KeyedWindowResult {
	return KeyedWindowResult{Start: time.UnixMilli(start), End: time.UnixMilli(end), Key: key, Value: value}
}

func (r KeyedWindowResult) String() string {
	return fmt.Sprintf("[%d, %d) %v=%v", r.Start.UnixMilli(), r.End.UnixMilli(), r.Key, r.Value)
}
