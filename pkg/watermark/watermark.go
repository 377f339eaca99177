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

/*
Package watermark tracks event-time progress. A source instance derives its watermark from the greatest event time
seen minus the allowed lag. A vertex instance with several inputs coalesces them, its watermark is the minimum of
the live inputs. Both only ever move forward.
*/
package watermark

import (
	"math"
	"time"
)

// Watermark is the monotonically increasing watermark, with millisecond precision.
type Watermark time.Time

// InitialWatermark is the watermark before any event.
var InitialWatermark = Watermark(time.UnixMilli(math.MinInt64 / 2))

// MaxWatermark is emitted when an input ends, it closes every window.
var MaxWatermark = Watermark(time.UnixMilli(math.MaxInt64 / 2))

// FromMillis returns the watermark of the given unix milliseconds.
func FromMillis(ms int64) Watermark {
	return Watermark(time.UnixMilli(ms))
}

func (w Watermark) String() string {
	switch w.UnixMilli() {
	case InitialWatermark.UnixMilli():
		return "initial"
	case MaxWatermark.UnixMilli():
		return "max"
	}
	return time.Time(w).UTC().Format(time.RFC3339Nano)
}

func (w Watermark) UnixMilli() int64 {
	return time.Time(w).UnixMilli()
}

func (w Watermark) Time() time.Time {
	return time.Time(w)
}

func (w Watermark) After(t time.Time) bool {
	return time.Time(w).After(t)
}

func (w Watermark) AfterWatermark(compare Watermark) bool {
	return w.UnixMilli() > compare.UnixMilli()
}

func (w Watermark) Before(t time.Time) bool {
	return time.Time(w).Before(t)
}

func (w Watermark) BeforeWatermark(compare Watermark) bool {
	return w.UnixMilli() < compare.UnixMilli()
}
