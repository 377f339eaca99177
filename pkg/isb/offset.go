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
	"fmt"
	"strconv"
)

// slotOffset is the offset handed out by the in-memory buffers: the slot sequence plus the consumer instance.
type slotOffset struct {
	seq          int64
	partitionIdx int32
}

func NewSlotOffset(seq int64, partitionIdx int32) Offset {
	return &slotOffset{
		seq:          seq,
		partitionIdx: partitionIdx,
	}
}

func (s *slotOffset) String() string {
	return fmt.Sprintf("%d-%d", s.seq, s.partitionIdx)
}

func (s *slotOffset) Sequence() (int64, error) {
	return s.seq, nil
}

func (s *slotOffset) PartitionIdx() int32 {
	return s.partitionIdx
}

// SequenceOffset adapts a plain sequence number, on instance 0, into an Offset.
type SequenceOffset func() int64

func (so SequenceOffset) String() string {
	return strconv.FormatInt(so(), 10)
}

func (so SequenceOffset) Sequence() (int64, error) {
	return so(), nil
}

func (so SequenceOffset) PartitionIdx() int32 {
	return 0
}

// StringOffset adapts an externally produced position, e.g. a Kafka offset rendered as text.
type StringOffset func() string

func (so StringOffset) String() string {
	return so()
}

func (so StringOffset) Sequence() (int64, error) {
	return strconv.ParseInt(so(), 10, 64)
}

func (so StringOffset) PartitionIdx() int32 {
	return 0
}
