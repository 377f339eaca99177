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

	"github.com/benbjohnson/clock"
)

// EventTimeTracker derives the watermark of a source instance from the event times it reads.
// It is not safe for concurrent use.
type EventTimeTracker struct {
	allowedLag   int64
	emitInterval time.Duration
	clock        clock.Clock
	maxEventTime int64
	seen         bool
	current      Watermark
	lastEmitted  Watermark
	lastEmitAt   time.Time
}

type TrackerOption func(*EventTimeTracker)

// WithEmitInterval throttles the emission, a new watermark is emitted at most once per interval.
func WithEmitInterval(d time.Duration) TrackerOption {
	return func(t *EventTimeTracker) {
		t.emitInterval = d
	}
}

// WithClock sets the clock used to throttle the emission.
func WithClock(c clock.Clock) TrackerOption {
	return func(t *EventTimeTracker) {
		t.clock = c
	}
}

// NewEventTimeTracker returns a tracker allowing events up to allowedLag behind the greatest event time.
func NewEventTimeTracker(allowedLag time.Duration, opts ...TrackerOption) *EventTimeTracker {
	t := &EventTimeTracker{
		allowedLag:  allowedLag.Milliseconds(),
		clock:       clock.New(),
		current:     InitialWatermark,
		lastEmitted: InitialWatermark,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Observe records the event time, it returns true if the event is late, i.e. behind the current watermark.
// A late event does not move the watermark.
func (t *EventTimeTracker) Observe(eventTime time.Time) bool {
	ts := eventTime.UnixMilli()
	if ts < t.current.UnixMilli() {
		return true
	}
	if !t.seen || ts > t.maxEventTime {
		t.maxEventTime = ts
		t.seen = true
		if wm := ts - t.allowedLag; wm > t.current.UnixMilli() {
			t.current = FromMillis(wm)
		}
	}
	return false
}

// IsLate returns true if the event time is behind the current watermark.
func (t *EventTimeTracker) IsLate(eventTime time.Time) bool {
	return eventTime.UnixMilli() < t.current.UnixMilli()
}

// Current returns the current watermark, which may not have been emitted yet.
func (t *EventTimeTracker) Current() Watermark {
	return t.current
}

// TryEmit returns the watermark to emit, if it advanced since the last emission and the emit interval elapsed.
func (t *EventTimeTracker) TryEmit() (Watermark, bool) {
	if !t.current.AfterWatermark(t.lastEmitted) {
		return t.lastEmitted, false
	}
	now := t.clock.Now()
	if t.emitInterval > 0 && !t.lastEmitAt.IsZero() && now.Sub(t.lastEmitAt) < t.emitInterval {
		return t.lastEmitted, false
	}
	t.lastEmitted = t.current
	t.lastEmitAt = now
	return t.current, true
}

// Flush advances the watermark to MaxWatermark at the end of the input and returns it.
func (t *EventTimeTracker) Flush() Watermark {
	t.current = MaxWatermark
	t.lastEmitted = MaxWatermark
	return MaxWatermark
}

// Restore sets the watermark recovered from a snapshot, it never moves backwards.
func (t *EventTimeTracker) Restore(wm Watermark) {
	if wm.AfterWatermark(t.current) {
		t.current = wm
		t.maxEventTime = wm.UnixMilli() + t.allowedLag
		t.seen = true
	}
}
