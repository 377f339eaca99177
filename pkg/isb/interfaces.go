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
Package isb defines the inter-step buffer. An edge of the physical DAG is realised as one bounded buffer per
(producer instance, consumer instance) pair; the consumer reads from it, processes and then acknowledges back so
that the producer can reuse the slot.
*/

package isb

import (
	"context"
	"io"
	"math"
)

const PendingNotAvailable = int64(math.MinInt64)

// BufferWriter is the buffer to which we are writing.
type BufferWriter interface {
	BufferWriterInformation
	io.Closer
	// Write writes the messages, the returned errors are indexed as the messages. A full buffer results in a
	// BufferWriteErr with Full set, the caller is expected to retry the failed messages.
	Write(context.Context, []Message) ([]Offset, []error)
}

// BufferReader is the buffer from which we are reading.
type BufferReader interface {
	BufferReaderInformation
	io.Closer
	// Read reads a chunk of messages and returns at the first occurrence of an error. Error does not indicate that the
	// array of result is empty, the callee should process all the elements in the array even if the error is set.
	Read(context.Context, int64) ([]*ReadMessage, error)
	// Ack acknowledges an array of offset.
	Ack(context.Context, []Offset) []error
	// Pending returns the count of pending messages.
	Pending(context.Context) (int64, error)
}

// LagReader is the interface that wraps the Pending method and GetName method.
// will be used by the metrics server to get the pending messages count.
type LagReader interface {
	GetName() string
	// Pending returns the pending messages number.
	Pending(context.Context) (int64, error)
}

// BufferReader can be used as LagReader.
var _ LagReader = (BufferReader)(nil)

// BufferReaderInformation has information regarding the buffer we are reading from.
type BufferReaderInformation interface {
	// GetName returns the name.
	GetName() string
	// GetPartitionIdx returns the partition ID.
	GetPartitionIdx() int32
}

// BufferWriterInformation has information regarding the buffer we are writing to.
type BufferWriterInformation interface {
	// GetName returns the name.
	GetName() string
	// GetPartitionIdx returns the partition ID.
	GetPartitionIdx() int32
}

// Offset locates a message inside one buffer. Acknowledgement goes through BufferReader.Ack.
type Offset interface {
	// String returns the offset identifier
	String() string
	// Sequence returns the slot sequence used to index into the buffer.
	Sequence() (int64, error)
	// PartitionIdx returns the consumer instance the buffer belongs to.
	PartitionIdx() int32
}
