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
	"sort"
)

// Frame holds the partial accumulators of one frame, by key.
type Frame struct {
	// End is the exclusive end of the frame in unix milliseconds.
	End  int64
	Accs map[any]any
}

// SortedFrameList is a list of frames sorted by end time from lowest to highest. It is owned by a single processor
// and is not safe for concurrent use.
type SortedFrameList struct {
	frames []*Frame
}

// NewSortedFrameList returns an empty list.
func NewSortedFrameList() *SortedFrameList {
	return &SortedFrameList{frames: make([]*Frame, 0)}
}

func (s *SortedFrameList) search(end int64) int {
	return sort.Search(len(s.frames), func(i int) bool {
		return s.frames[i].End >= end
	})
}

// Get returns the frame ending at end.
func (s *SortedFrameList) Get(end int64) (*Frame, bool) {
	i := s.search(end)
	if i < len(s.frames) && s.frames[i].End == end {
		return s.frames[i], true
	}
	return nil, false
}

// InsertIfNotPresent returns the frame ending at end, creating it if needed. The second value is true if the
// frame was already present.
func (s *SortedFrameList) InsertIfNotPresent(end int64) (*Frame, bool) {
	i := s.search(end)
	if i < len(s.frames) && s.frames[i].End == end {
		return s.frames[i], true
	}
	f := &Frame{End: end, Accs: make(map[any]any)}
	// most frames are appended at the tail
	s.frames = append(s.frames, nil)
	copy(s.frames[i+1:], s.frames[i:])
	s.frames[i] = f
	return f, false
}

// RemoveFrames removes and returns the frames ending at or before t.
func (s *SortedFrameList) RemoveFrames(t int64) []*Frame {
	index := sort.Search(len(s.frames), func(i int) bool {
		return s.frames[i].End > t
	})
	removed := make([]*Frame, index)
	copy(removed, s.frames[:index])
	s.frames = s.frames[index:]
	return removed
}

// Range returns the frames ending in (from, to].
func (s *SortedFrameList) Range(from, to int64) []*Frame {
	start := sort.Search(len(s.frames), func(i int) bool {
		return s.frames[i].End > from
	})
	var out []*Frame
	for i := start; i < len(s.frames) && s.frames[i].End <= to; i++ {
		out = append(out, s.frames[i])
	}
	return out
}

// Len returns the number of frames.
func (s *SortedFrameList) Len() int {
	return len(s.frames)
}

// Front returns the oldest frame.
func (s *SortedFrameList) Front() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[0]
}

// Items returns the frames in order.
func (s *SortedFrameList) Items() []*Frame {
	items := make([]*Frame, len(s.frames))
	copy(items, s.frames)
	return items
}
