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
	"math"
)

// SlidingWindowPolicy holds the frame arithmetic, all the values are unix milliseconds.
type SlidingWindowPolicy struct {
	frameSize  int64
	windowSize int64
}

// NewSlidingWindowPolicy returns the policy of windows of windowSize made of frames of frameSize.
func NewSlidingWindowPolicy(windowSize, frameSize int64) SlidingWindowPolicy {
	return SlidingWindowPolicy{frameSize: frameSize, windowSize: windowSize}
}

func (p SlidingWindowPolicy) FrameSize() int64 {
	return p.frameSize
}

func (p SlidingWindowPolicy) WindowSize() int64 {
	return p.windowSize
}

// FramesPerWindow returns the number of frames of a window.
func (p SlidingWindowPolicy) FramesPerWindow() int64 {
	return p.windowSize / p.frameSize
}

// IsTumbling returns true if every frame is a window.
func (p SlidingWindowPolicy) IsTumbling() bool {
	return p.windowSize == p.frameSize
}

// FloorFrameTs returns the greatest frame boundary less than or equal to ts.
func (p SlidingWindowPolicy) FloorFrameTs(ts int64) int64 {
	mod := ts % p.frameSize
	if mod < 0 {
		mod += p.frameSize
	}
	floor := ts - mod
	if floor > ts {
		// overflow near math.MinInt64
		return math.MinInt64
	}
	return floor
}

// HigherFrameTs returns the smallest frame boundary strictly greater than ts, it labels the frame holding ts.
func (p SlidingWindowPolicy) HigherFrameTs(ts int64) int64 {
	floor := p.FloorFrameTs(ts)
	if floor > math.MaxInt64-p.frameSize {
		return math.MaxInt64
	}
	return floor + p.frameSize
}

// WindowStart returns the inclusive start of the window ending at end.
func (p SlidingWindowPolicy) WindowStart(end int64) int64 {
	return end - p.windowSize
}

// OldestFrameOf returns the end of the first frame of the window ending at end.
func (p SlidingWindowPolicy) OldestFrameOf(end int64) int64 {
	return end - p.windowSize + p.frameSize
}
