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

package isb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlotOffset(t *testing.T) {
	o := NewSlotOffset(42, 3)
	assert.Equal(t, "42-3", o.String())
	seq, err := o.Sequence()
	assert.NoError(t, err)
	assert.Equal(t, int64(42), seq)
	assert.Equal(t, int32(3), o.PartitionIdx())
}

func TestStringOffset(t *testing.T) {
	o := StringOffset(func() string { return "17" })
	seq, err := o.Sequence()
	assert.NoError(t, err)
	assert.Equal(t, int64(17), seq)

	_, err = StringOffset(func() string { return "simple-offset-1" }).Sequence()
	assert.Error(t, err)
}

func TestMessageConstructors(t *testing.T) {
	now := time.UnixMilli(1000)
	d := NewDataMessage("a", now)
	assert.Equal(t, Data, d.Kind)
	assert.Equal(t, "a", d.Payload)
	assert.Equal(t, now, d.EventTime)

	wm := NewWatermarkMessage(now)
	assert.Equal(t, WMB, wm.Kind)
	assert.Equal(t, "WMB", wm.Kind.String())

	rm := d.ToReadMessage(SequenceOffset(func() int64 { return 5 }))
	assert.Equal(t, "5", rm.ReadOffset.String())
	assert.Equal(t, "Unknown", MessageType(0).String())
}
