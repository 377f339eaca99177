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

// Package window implements the event-time windows. Windows are aligned, i.e. applied across all the keys for the
// window of time in question.
//
// A sliding window of length L and slide S is computed from frames. A frame is a non-overlapping bucket of length S,
// a window is the L/S consecutive frames ending at its end. Frames and windows are labelled by their end timestamp
// (exclusive), so the frame of an event at time t is the one ending at the next multiple of S strictly after t.
// A tumbling window is a sliding window whose slide equals its length.
//
// Example: with length 60s and slide 10s, an event at 9:00:15 belongs to frame [9:00:10, 9:00:20) and to the six
// windows ending at 9:00:20 through 9:01:10. The window ending at 9:01:00 is materialized once the watermark passes
// 9:01:00.
package window
