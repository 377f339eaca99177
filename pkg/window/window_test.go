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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefinitionValidate(t *testing.T) {
	assert.NoError(t, Sliding(time.Second, 10*time.Millisecond).Validate())
	assert.NoError(t, Tumbling(time.Minute).Validate())
	assert.Error(t, Sliding(time.Second, 300*time.Millisecond).Validate())
	assert.Error(t, Sliding(0, time.Millisecond).Validate())
	assert.Error(t, Sliding(time.Second, 1500*time.Microsecond).Validate())
	assert.Error(t, Definition{Kind: KindTumbling, Length: time.Second, Slide: time.Millisecond}.Validate())
	assert.Equal(t, "sliding(1s, 10ms)", Sliding(time.Second, 10*time.Millisecond).String())
	assert.Equal(t, "tumbling(1m0s)", Tumbling(time.Minute).String())
	assert.Equal(t, "tumbling", KindTumbling.String())
}

func TestSlidingWindowPolicy(t *testing.T) {
	p := Sliding(60*time.Second, 10*time.Second).Policy()
	assert.Equal(t, int64(6), p.FramesPerWindow())
	assert.False(t, p.IsTumbling())
	assert.Equal(t, int64(10000), p.FrameSize())
	assert.Equal(t, int64(60000), p.WindowSize())

	assert.Equal(t, int64(10000), p.FloorFrameTs(15000))
	assert.Equal(t, int64(20000), p.HigherFrameTs(15000))
	// boundaries belong to the frame on the right
	assert.Equal(t, int64(20000), p.HigherFrameTs(10000))
	assert.Equal(t, int64(-10000), p.FloorFrameTs(-1))
	assert.Equal(t, int64(0), p.HigherFrameTs(-1))
	assert.Equal(t, int64(0), p.WindowStart(60000))
	assert.Equal(t, int64(10000), p.OldestFrameOf(60000))
	assert.Equal(t, int64(math.MaxInt64), p.HigherFrameTs(math.MaxInt64))

	assert.True(t, Tumbling(time.Second).Policy().IsTumbling())
}

func TestSortedFrameList(t *testing.T) {
	l := NewSortedFrameList()
	assert.Nil(t, l.Front())
	f30, present := l.InsertIfNotPresent(30)
	assert.False(t, present)
	l.InsertIfNotPresent(10)
	l.InsertIfNotPresent(20)
	again, present := l.InsertIfNotPresent(30)
	assert.True(t, present)
	assert.Same(t, f30, again)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, int64(10), l.Front().End)

	got, ok := l.Get(20)
	assert.True(t, ok)
	assert.Equal(t, int64(20), got.End)
	_, ok = l.Get(25)
	assert.False(t, ok)

	r := l.Range(10, 30)
	assert.Len(t, r, 2)
	assert.Equal(t, int64(20), r[0].End)

	removed := l.RemoveFrames(20)
	assert.Len(t, removed, 2)
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, []*Frame{f30}, l.Items())
}

func TestKeyedWindowResult(t *testing.T) {
	r := NewKeyedWindowResult(0, 1000, "k", int64(100))
	assert.Equal(t, int64(1000), r.End.UnixMilli())
	assert.Equal(t, "[0, 1000) k=100", r.String())
}
