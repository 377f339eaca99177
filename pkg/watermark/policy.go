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

package watermark

import (
	"time"
)

// EventTimePolicy tells a source how to timestamp its items and derive its watermark. The zero value disables event
// time: items carry no timestamp and the source only emits MaxWatermark at the end of its input.
type EventTimePolicy struct {
	Enabled bool
	// TimestampFn extracts the event time of an item, when nil the native timestamp of the record is used.
	TimestampFn func(any) time.Time
	AllowedLag  time.Duration
	Late        LatePolicy
}

// WithTimestamps returns a policy extracting the event time with fn.
func WithTimestamps(fn func(any) time.Time, allowedLag time.Duration) EventTimePolicy {
	return EventTimePolicy{Enabled: true, TimestampFn: fn, AllowedLag: allowedLag}
}

// WithNativeTimestamps returns a policy using the timestamps of the source records.
func WithNativeTimestamps(allowedLag time.Duration) EventTimePolicy {
	return EventTimePolicy{Enabled: true, AllowedLag: allowedLag}
}

// EventTime returns the event time of the item read with the given native timestamp.
func (p EventTimePolicy) EventTime(item any, native time.Time) time.Time {
	if !p.Enabled {
		return time.Time{}
	}
	if p.TimestampFn != nil {
		return p.TimestampFn(item)
	}
	return native
}
